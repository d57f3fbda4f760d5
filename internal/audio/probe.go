package audio

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/go-audio/wav"
)

// Info describes a WAV payload.
type Info struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Frames     int
	Duration   time.Duration
}

// Canonical reports whether the payload is 16kHz mono 16-bit.
func (i Info) Canonical() bool {
	return i.SampleRate == CanonicalSampleRate &&
		i.Channels == CanonicalChannels &&
		i.BitDepth == CanonicalBitDepth
}

// Probe reads the format and length of WAV data.
func Probe(data []byte) (Info, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return Info{}, errors.New("audio: probe: not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Info{}, fmt.Errorf("audio: probe: %w", err)
	}

	info := Info{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	if info.Channels > 0 {
		info.Frames = len(buf.Data) / info.Channels
	}
	if info.SampleRate > 0 {
		info.Duration = time.Duration(info.Frames) * time.Second / time.Duration(info.SampleRate)
	}
	return info, nil
}
