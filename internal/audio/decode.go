package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	"github.com/mewkiz/flac"
)

// ErrUnsupportedCodec is returned by Decoder for formats with no in-process
// decoder.
var ErrUnsupportedCodec = errors.New("audio: no in-process decoder for format")

// DecodeFunc turns an encoded payload into PCM.
type DecodeFunc func(data []byte) (PCM, error)

var decoders = map[Format]DecodeFunc{
	WAV:  DecodeWAV,
	MP3:  DecodeMP3,
	FLAC: DecodeFLAC,
	OGG:  DecodeOGG,
}

// Decoder returns the in-process decoder for f. m4a, aac and webm have none.
func Decoder(f Format) (DecodeFunc, error) {
	dec, ok := decoders[f]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedCodec, f)
	}
	return dec, nil
}

// DecodeWAV decodes integer PCM WAV data.
func DecodeWAV(data []byte) (PCM, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return PCM{}, errors.New("audio: decode wav: not a valid wav file")
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return PCM{}, fmt.Errorf("audio: decode wav: unsupported wave format tag %d", dec.WavAudioFormat)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return PCM{}, fmt.Errorf("audio: decode wav: %w", err)
	}
	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = buf.SourceBitDepth
	}
	if depth <= 0 || depth > 32 {
		return PCM{}, fmt.Errorf("audio: decode wav: unsupported bit depth %d", depth)
	}

	full := float32(int64(1) << (depth - 1))
	samples := make([]float32, len(buf.Data))
	for i, s := range buf.Data {
		if depth == 8 {
			s -= 128
		}
		samples[i] = float32(s) / full
	}
	return PCM{
		Samples:    samples,
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
	}, nil
}

// DecodeMP3 decodes MPEG-1/2 layer III data. The decoder always yields
// 16-bit little-endian stereo.
func DecodeMP3(data []byte) (PCM, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return PCM{}, fmt.Errorf("audio: decode mp3: %w", err)
	}
	raw, err := io.ReadAll(dec)
	if err != nil {
		return PCM{}, fmt.Errorf("audio: decode mp3: %w", err)
	}

	samples := make([]float32, len(raw)/2)
	for i := range samples {
		v := int16(binary.LittleEndian.Uint16(raw[2*i:]))
		samples[i] = float32(v) / 32768.0
	}
	return PCM{Samples: samples, SampleRate: dec.SampleRate(), Channels: 2}, nil
}

// DecodeFLAC decodes a native FLAC stream frame by frame.
func DecodeFLAC(data []byte) (PCM, error) {
	stream, err := flac.New(bytes.NewReader(data))
	if err != nil {
		return PCM{}, fmt.Errorf("audio: decode flac: %w", err)
	}
	defer stream.Close()

	channels := int(stream.Info.NChannels)
	full := float32(int64(1) << (stream.Info.BitsPerSample - 1))
	var samples []float32
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return PCM{}, fmt.Errorf("audio: decode flac: frame: %w", err)
		}
		if len(frame.Subframes) != channels {
			return PCM{}, fmt.Errorf("audio: decode flac: frame has %d subframes, want %d", len(frame.Subframes), channels)
		}
		n := len(frame.Subframes[0].Samples)
		for i := 0; i < n; i++ {
			for c := 0; c < channels; c++ {
				samples = append(samples, float32(frame.Subframes[c].Samples[i])/full)
			}
		}
	}
	return PCM{
		Samples:    samples,
		SampleRate: int(stream.Info.SampleRate),
		Channels:   channels,
	}, nil
}

// DecodeOGG decodes an Ogg Vorbis stream.
func DecodeOGG(data []byte) (PCM, error) {
	samples, format, err := oggvorbis.ReadAll(bytes.NewReader(data))
	if err != nil {
		return PCM{}, fmt.Errorf("audio: decode ogg: %w", err)
	}
	return PCM{Samples: samples, SampleRate: format.SampleRate, Channels: format.Channels}, nil
}
