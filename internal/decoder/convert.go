package decoder

import "fmt"

// pcmDivisor returns the value that maps signed integer PCM of the given
// bit depth onto [-1, 1).
func pcmDivisor(bitDepth int) (float32, error) {
	switch bitDepth {
	case 8:
		return 128.0, nil
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}
}

// remix converts interleaved samples between channel counts. Mono output
// averages every source channel; mono input is duplicated. For other
// combinations destination channel c averages the source channels k with
// k%dst == c when down-mixing and copies source channel c%src when
// up-mixing.
func remix(samples []float32, src, dst int) []float32 {
	if src == dst || src <= 0 || dst <= 0 {
		return samples
	}

	frames := len(samples) / src
	out := make([]float32, frames*dst)

	switch {
	case dst == 1:
		inv := 1 / float32(src)
		for f := range frames {
			var sum float32
			for _, s := range samples[f*src : f*src+src] {
				sum += s
			}
			out[f] = sum * inv
		}
	case src < dst:
		for f := range frames {
			in := samples[f*src : f*src+src]
			for c := range dst {
				out[f*dst+c] = in[c%src]
			}
		}
	default:
		for f := range frames {
			in := samples[f*src : f*src+src]
			for c := range dst {
				var sum float32
				var n int
				for k := c; k < src; k += dst {
					sum += in[k]
					n++
				}
				out[f*dst+c] = sum / float32(n)
			}
		}
	}

	return out
}

// resampleInterleaved resamples each channel independently and re-interleaves.
func resampleInterleaved(samples []float32, channels, originalRate, targetRate int) []float32 {
	if originalRate == targetRate || channels <= 0 {
		return samples
	}
	if channels == 1 {
		return resample(samples, originalRate, targetRate)
	}

	frames := len(samples) / channels
	plane := make([]float32, frames)
	var out []float32

	for c := range channels {
		for f := range frames {
			plane[f] = samples[f*channels+c]
		}
		res := resample(plane, originalRate, targetRate)
		if out == nil {
			out = make([]float32, len(res)*channels)
		}
		for f, v := range res {
			out[f*channels+c] = v
		}
	}

	return out
}

// resample resamples a single channel from originalRate to targetRate using
// cubic interpolation. Inputs shorter than four samples use the nearest
// sample since the cubic kernel needs four neighbours.
func resample(audio []float32, originalRate, targetRate int) []float32 {
	if originalRate == targetRate || len(audio) == 0 {
		return audio
	}

	ratio := float64(targetRate) / float64(originalRate)
	newLength := int(float64(len(audio)) * ratio)
	resampled := make([]float32, newLength)

	audioLength := len(audio)
	if audioLength < 4 {
		for i := range resampled {
			resampled[i] = audio[min(int(float64(i)/ratio), audioLength-1)]
		}
		return resampled
	}
	lastIndex := audioLength - 3

	for i := range newLength {
		origPos := float64(i) / ratio
		index := int(origPos)

		index = max(1, min(index, lastIndex))
		frac := float32(origPos - float64(index))

		y0, y1, y2, y3 := audio[index-1], audio[index], audio[index+1], audio[index+2]
		mu2 := frac * frac
		a0 := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
		a1 := y0 - 2.5*y1 + 2*y2 - 0.5*y3
		a2 := -0.5*y0 + 0.5*y2
		a3 := y1

		resampled[i] = a0*frac*mu2 + a1*mu2 + a2*frac + a3
	}

	return resampled
}
