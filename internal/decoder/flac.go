package decoder

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/tphakala/flac"
)

// flacCodec reads FLAC streams. Frames arrive from the decoder as
// little-endian interleaved integer PCM.
type flacCodec struct{}

func (flacCodec) Name() string         { return "flac" }
func (flacCodec) Extensions() []string { return []string{".flac"} }

func (flacCodec) Probe(r io.ReadSeeker) (SourceInfo, error) {
	dec, err := flac.NewDecoder(r)
	if err != nil {
		return SourceInfo{}, err
	}
	info := flacInfo(dec)
	info.Frames = int64(dec.TotalSamples)
	return info, nil
}

func (flacCodec) Decode(ctx context.Context, r io.ReadSeeker, emit func(SourceInfo, []float32) error) error {
	dec, err := flac.NewDecoder(r)
	if err != nil {
		return err
	}
	info := flacInfo(dec)

	divisor, err := pcmDivisor(info.BitDepth)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupportedFormat, err)
	}
	bytesPerSample := info.BitDepth / 8

	var floats []float32
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := dec.Next()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}

		n := len(frame) / bytesPerSample
		if cap(floats) < n {
			floats = make([]float32, n)
		}
		floats = floats[:n]

		for i := range n {
			floats[i] = float32(decodeLE(frame[i*bytesPerSample:], bytesPerSample)) / divisor
		}

		if err := emit(info, floats); err != nil {
			return err
		}
	}
}

// decodeLE reads one signed little-endian integer sample of width bytes.
func decodeLE(b []byte, width int) int32 {
	switch width {
	case 1:
		return int32(int8(b[0]))
	case 2:
		return int32(int16(binary.LittleEndian.Uint16(b))) //nolint:gosec // two's complement reinterpretation
	case 3:
		v := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		// sign-extend 24-bit
		return v << 8 >> 8
	default:
		return int32(binary.LittleEndian.Uint32(b)) //nolint:gosec // two's complement reinterpretation
	}
}

func flacInfo(dec *flac.Decoder) SourceInfo {
	return SourceInfo{
		SampleRate: dec.SampleRate,
		Channels:   dec.NChannels,
		BitDepth:   dec.BitsPerSample,
	}
}
