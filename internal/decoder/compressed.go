package decoder

import (
	"context"
	"io"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
)

// beepReadFrames is the number of frames pulled per Stream call
const beepReadFrames = 8192

type beepDecodeFunc func(io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error)

// mp3Codec and vorbisCodec adapt gopxl/beep decoders. Beep always yields
// stereo frames; mono sources are taken from the left channel.
type mp3Codec struct{}

func (mp3Codec) Name() string         { return "mp3" }
func (mp3Codec) Extensions() []string { return []string{".mp3"} }

func (mp3Codec) Probe(r io.ReadSeeker) (SourceInfo, error) {
	return beepProbe(r, mp3.Decode)
}

func (mp3Codec) Decode(ctx context.Context, r io.ReadSeeker, emit func(SourceInfo, []float32) error) error {
	return beepDecode(ctx, r, mp3.Decode, emit)
}

type vorbisCodec struct{}

func (vorbisCodec) Name() string         { return "vorbis" }
func (vorbisCodec) Extensions() []string { return []string{".ogg", ".oga"} }

func (vorbisCodec) Probe(r io.ReadSeeker) (SourceInfo, error) {
	return beepProbe(r, vorbis.Decode)
}

func (vorbisCodec) Decode(ctx context.Context, r io.ReadSeeker, emit func(SourceInfo, []float32) error) error {
	return beepDecode(ctx, r, vorbis.Decode, emit)
}

// nopCloser keeps beep from closing the file the Decoder owns.
type nopCloser struct{ io.ReadSeeker }

func (nopCloser) Close() error { return nil }

func beepProbe(r io.ReadSeeker, decode beepDecodeFunc) (SourceInfo, error) {
	stream, format, err := decode(nopCloser{r})
	if err != nil {
		return SourceInfo{}, err
	}
	defer func() { _ = stream.Close() }()

	info := beepInfo(format)
	info.Frames = int64(stream.Len())
	return info, nil
}

func beepDecode(ctx context.Context, r io.ReadSeeker, decode beepDecodeFunc, emit func(SourceInfo, []float32) error) error {
	stream, format, err := decode(nopCloser{r})
	if err != nil {
		return err
	}
	defer func() { _ = stream.Close() }()

	info := beepInfo(format)
	frames := make([][2]float64, beepReadFrames)
	floats := make([]float32, beepReadFrames*info.Channels)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, ok := stream.Stream(frames)
		if n > 0 {
			out := floats[:n*info.Channels]
			for i, fr := range frames[:n] {
				if info.Channels == 1 {
					out[i] = float32(fr[0])
					continue
				}
				out[2*i] = float32(fr[0])
				out[2*i+1] = float32(fr[1])
			}
			if err := emit(info, out); err != nil {
				return err
			}
		}
		if !ok {
			return stream.Err()
		}
	}
}

func beepInfo(format beep.Format) SourceInfo {
	ch := format.NumChannels
	if ch < 1 || ch > 2 {
		ch = 2
	}
	return SourceInfo{
		SampleRate: int(format.SampleRate),
		Channels:   ch,
		BitDepth:   format.Precision * 8,
	}
}
