package audio

import (
	"errors"
	"fmt"
	"io"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Canonical output parameters expected by the LINEAR16 backend path.
const (
	CanonicalSampleRate = 16000
	CanonicalChannels   = 1
	CanonicalBitDepth   = 16
)

// wavFormatPCM is the WAVE_FORMAT_PCM tag.
const wavFormatPCM = 1

// PCM is decoded audio as interleaved float32 samples in [-1.0, 1.0].
type PCM struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// Frames returns the number of sample frames (samples per channel).
func (p PCM) Frames() int {
	if p.Channels <= 0 {
		return 0
	}
	return len(p.Samples) / p.Channels
}

// Mono averages all channels into one.
func (p PCM) Mono() PCM {
	if p.Channels <= 1 {
		return p
	}
	frames := p.Frames()
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < p.Channels; c++ {
			sum += p.Samples[i*p.Channels+c]
		}
		out[i] = sum / float32(p.Channels)
	}
	return PCM{Samples: out, SampleRate: p.SampleRate, Channels: 1}
}

// Resample converts mono audio to rate using linear interpolation. The output
// frame count is the input frame count scaled by the rate ratio, rounded.
func (p PCM) Resample(rate int) (PCM, error) {
	if p.Channels != 1 {
		return PCM{}, fmt.Errorf("audio: resample: want mono input, got %d channels", p.Channels)
	}
	if p.SampleRate <= 0 || rate <= 0 {
		return PCM{}, fmt.Errorf("audio: resample: invalid rate %d -> %d", p.SampleRate, rate)
	}
	if p.SampleRate == rate {
		out := make([]float32, len(p.Samples))
		copy(out, p.Samples)
		return PCM{Samples: out, SampleRate: rate, Channels: 1}, nil
	}

	n := len(p.Samples)
	outLen := int(math.Round(float64(n) * float64(rate) / float64(p.SampleRate)))
	out := make([]float32, outLen)
	step := float64(p.SampleRate) / float64(rate)
	for i := range out {
		pos := float64(i) * step
		idx := int(pos)
		if idx >= n-1 {
			out[i] = p.Samples[n-1]
			continue
		}
		frac := float32(pos - float64(idx))
		out[i] = p.Samples[idx]*(1-frac) + p.Samples[idx+1]*frac
	}
	return PCM{Samples: out, SampleRate: rate, Channels: 1}, nil
}

// Canonical mixes p down to mono and resamples it to CanonicalSampleRate.
func (p PCM) Canonical() (PCM, error) {
	if len(p.Samples) == 0 {
		return PCM{}, errors.New("audio: no samples decoded")
	}
	return p.Mono().Resample(CanonicalSampleRate)
}

// EncodeWAV writes p as a PCM WAV file with the given bit depth.
func EncodeWAV(p PCM, bitDepth int) ([]byte, error) {
	if bitDepth != 16 && bitDepth != 24 && bitDepth != 32 {
		return nil, fmt.Errorf("audio: encode wav: unsupported bit depth %d", bitDepth)
	}

	full := float64(int64(1) << (bitDepth - 1))
	data := make([]int, len(p.Samples))
	for i, s := range p.Samples {
		v := math.Round(float64(s) * full)
		if v > full-1 {
			v = full - 1
		} else if v < -full {
			v = -full
		}
		data[i] = int(v)
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: p.Channels, SampleRate: p.SampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	}

	ws := &writeSeeker{}
	enc := wav.NewEncoder(ws, p.SampleRate, bitDepth, p.Channels, wavFormatPCM)
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("audio: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("audio: encode wav: close: %w", err)
	}
	return ws.buf, nil
}

// writeSeeker is an in-memory io.WriteSeeker. The wav encoder seeks back to
// patch chunk sizes once the data length is known.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		if end > cap(w.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, w.buf)
			w.buf = grown
		} else {
			w.buf = w.buf[:end]
		}
	}
	copy(w.buf[w.pos:], p)
	w.pos = end
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(w.pos) + offset
	case io.SeekEnd:
		abs = int64(len(w.buf)) + offset
	default:
		return 0, fmt.Errorf("audio: seek: invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, errors.New("audio: seek: negative position")
	}
	w.pos = int(abs)
	return abs, nil
}
