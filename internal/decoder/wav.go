package decoder

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE

	// wavReadFrames is the number of frames pulled per PCMBuffer call
	wavReadFrames = 16384
)

// wavCodec reads RIFF/WAVE files through go-audio/wav. Integer PCM of 8, 16,
// 24 and 32 bits and 32-bit IEEE float are supported.
type wavCodec struct{}

func (wavCodec) Name() string         { return "wav" }
func (wavCodec) Extensions() []string { return []string{".wav", ".wave"} }

func (wavCodec) Probe(r io.ReadSeeker) (SourceInfo, error) {
	dec, err := openWAV(r)
	if err != nil {
		return SourceInfo{}, err
	}

	info := wavInfo(dec)
	if d, err := dec.Duration(); err == nil {
		info.Frames = int64(math.Round(d.Seconds() * float64(info.SampleRate)))
	}
	return info, nil
}

func (wavCodec) Decode(ctx context.Context, r io.ReadSeeker, emit func(SourceInfo, []float32) error) error {
	dec, err := openWAV(r)
	if err != nil {
		return err
	}
	info := wavInfo(dec)

	isFloat := dec.WavAudioFormat == wavFormatFloat
	var divisor float32 = 1
	if !isFloat {
		if divisor, err = pcmDivisor(info.BitDepth); err != nil {
			return fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
		}
	}

	buf := &audio.IntBuffer{
		Data:   make([]int, wavReadFrames*info.Channels),
		Format: &audio.Format{SampleRate: info.SampleRate, NumChannels: info.Channels},
	}
	floats := make([]float32, len(buf.Data))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := dec.PCMBuffer(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		for i, v := range buf.Data[:n] {
			switch {
			case isFloat:
				floats[i] = math.Float32frombits(uint32(int32(v))) //nolint:gosec // reinterpret raw float bits
			case info.BitDepth == 8:
				// 8-bit WAV is unsigned
				floats[i] = float32(v-128) / divisor
			default:
				floats[i] = float32(v) / divisor
			}
		}

		if err := emit(info, floats[:n]); err != nil {
			return err
		}
	}
}

func openWAV(r io.ReadSeeker) (*wav.Decoder, error) {
	dec := wav.NewDecoder(r)
	dec.ReadInfo()
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file")
	}

	switch dec.WavAudioFormat {
	case wavFormatPCM, wavFormatExtensible:
	case wavFormatFloat:
		if dec.BitDepth != 32 {
			return nil, fmt.Errorf("%w: %d-bit float WAV", ErrUnsupportedFormat, dec.BitDepth)
		}
	default:
		return nil, fmt.Errorf("%w: WAV format tag %d", ErrUnsupportedFormat, dec.WavAudioFormat)
	}

	return dec, nil
}

func wavInfo(dec *wav.Decoder) SourceInfo {
	return SourceInfo{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
}
