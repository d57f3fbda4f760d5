// Package transcribe provides speech-to-text backends.
//
// Supported backends:
//   - google: Google Cloud Speech-to-Text v1 (default)
//   - whisper: OpenAI Whisper API
package transcribe

import (
	"context"
	"fmt"

	"github.com/chaz8081/receipt-stt/internal/audio"
	"github.com/chaz8081/receipt-stt/internal/config"
)

// Transcriber converts audio to text.
type Transcriber interface {
	// Transcribe recognizes speech in data, declared as enc, and returns the
	// joined transcript. Audio without speech yields "" and no error.
	Transcribe(ctx context.Context, data []byte, enc audio.Encoding, languageCode string) (string, error)
	// Close releases backend resources.
	Close() error
}

// Error wraps a backend failure.
type Error struct {
	Backend  string
	Encoding audio.Encoding
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("transcribe: %s backend (encoding %s): %v", e.Backend, e.Encoding, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a Transcriber based on the config backend setting. The
// returned client is safe for concurrent use and should be created once.
func New(ctx context.Context, cfg *config.TranscribeConfig) (Transcriber, error) {
	switch cfg.Backend {
	case "google", "":
		t, err := DialGoogle(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return t, nil
	case "whisper":
		t, err := NewWhisperFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("transcribe: unknown backend %q (supported: google, whisper)", cfg.Backend)
	}
}
