package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/chaz8081/receipt-stt/internal/audio"
	"github.com/chaz8081/receipt-stt/internal/config"
)

// audioTranscriber is the part of *openai.Client used here.
type audioTranscriber interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// WhisperTranscriber sends audio to the OpenAI transcription endpoint. The
// endpoint sniffs the container itself, so the declared encoding only picks
// the upload filename.
type WhisperTranscriber struct {
	client  audioTranscriber
	model   string
	timeout time.Duration
}

// NewWhisperFromConfig creates an OpenAI client from cfg.
func NewWhisperFromConfig(cfg *config.TranscribeConfig) (*WhisperTranscriber, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("transcribe: whisper backend requires %s", config.EnvOpenAIKey)
	}
	oc := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		oc.BaseURL = cfg.OpenAIBaseURL
	}
	return newWhisperTranscriber(openai.NewClientWithConfig(oc), cfg.OpenAIModel, cfg.Timeout), nil
}

func newWhisperTranscriber(client audioTranscriber, model string, timeout time.Duration) *WhisperTranscriber {
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperTranscriber{client: client, model: model, timeout: timeout}
}

// Close is a no-op; the HTTP client needs no teardown.
func (t *WhisperTranscriber) Close() error { return nil }

// Transcribe uploads data and returns the recognized text.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, data []byte, enc audio.Encoding, languageCode string) (string, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: uploadName(data, enc),
		Reader:   bytes.NewReader(data),
		Language: isoLanguage(languageCode),
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", &Error{Backend: "whisper", Encoding: enc, Err: err}
	}
	return strings.TrimSpace(resp.Text), nil
}

// uploadName picks a filename whose extension matches the payload. Canonical
// output is always RIFF, even when the declared encoding says otherwise.
func uploadName(data []byte, enc audio.Encoding) string {
	if bytes.HasPrefix(data, []byte("RIFF")) {
		return "audio.wav"
	}
	switch enc {
	case audio.EncodingFLAC:
		return "audio.flac"
	case audio.EncodingMP3:
		return "audio.mp3"
	case audio.EncodingWebMOpus:
		return "audio.webm"
	default:
		return "audio.wav"
	}
}

// isoLanguage reduces a BCP-47 tag such as "en-US" to its ISO-639-1 part.
func isoLanguage(code string) string {
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	return strings.ToLower(code)
}
