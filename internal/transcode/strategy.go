package transcode

import (
	"context"
	"errors"
	"fmt"

	"github.com/chaz8081/receipt-stt/internal/audio"
	"github.com/chaz8081/receipt-stt/internal/ffmpeg"
)

// Strategy is one way of producing canonical WAV from input bytes.
type Strategy interface {
	// Name identifies the strategy in logs, metrics and errors.
	Name() string
	// Applies reports whether the strategy should run for format f.
	Applies(ctx context.Context, f audio.Format) bool
	// Convert returns canonical WAV, or an error if this strategy cannot.
	Convert(ctx context.Context, data []byte, f audio.Format) ([]byte, error)
}

// Decode converts in-process: decode as f, mix to mono, resample to 16kHz,
// re-encode as 16-bit WAV.
type Decode struct{}

func (Decode) Name() string { return "decode" }

func (Decode) Applies(context.Context, audio.Format) bool { return true }

func (Decode) Convert(_ context.Context, data []byte, f audio.Format) ([]byte, error) {
	decode, err := audio.Decoder(f)
	if err != nil {
		return nil, err
	}
	pcm, err := decode(data)
	if err != nil {
		return nil, err
	}
	pcm, err = pcm.Canonical()
	if err != nil {
		return nil, err
	}
	return audio.EncodeWAV(pcm, audio.CanonicalBitDepth)
}

// Converter is the part of ffmpeg.Converter the External strategy uses.
type Converter interface {
	Available(ctx context.Context) bool
	ToCanonicalWAV(ctx context.Context, data []byte, ext string) ([]byte, error)
}

var _ Converter = (*ffmpeg.Converter)(nil)

// External converts with an external tool. It is skipped when the tool is
// not available on the host.
type External struct {
	Converter Converter
}

func (External) Name() string { return "ffmpeg" }

func (e External) Applies(ctx context.Context, _ audio.Format) bool {
	return e.Converter != nil && e.Converter.Available(ctx)
}

func (e External) Convert(ctx context.Context, data []byte, f audio.Format) ([]byte, error) {
	return e.Converter.ToCanonicalWAV(ctx, data, f.Ext())
}

// Identity returns the input unchanged when the hint is Format. The output is
// not guaranteed to be 16kHz mono 16-bit.
type Identity struct {
	Format audio.Format
	Label  string
}

func (i Identity) Name() string {
	if i.Label != "" {
		return i.Label
	}
	return "identity-" + string(i.Format)
}

func (i Identity) Applies(_ context.Context, f audio.Format) bool { return f == i.Format }

func (i Identity) Convert(_ context.Context, data []byte, _ audio.Format) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("transcode: empty input")
	}
	return data, nil
}

// Retag reruns Inner with the format forced to Format, only when the hint
// already is Format.
type Retag struct {
	Inner  Strategy
	Format audio.Format
}

func (r Retag) Name() string { return fmt.Sprintf("%s-as-%s", r.Inner.Name(), r.Format) }

func (r Retag) Applies(ctx context.Context, f audio.Format) bool {
	return f == r.Format && r.Inner.Applies(ctx, r.Format)
}

func (r Retag) Convert(ctx context.Context, data []byte, _ audio.Format) ([]byte, error) {
	return r.Inner.Convert(ctx, data, r.Format)
}
