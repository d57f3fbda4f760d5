package transcribe

import (
	"context"
	"fmt"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"

	"github.com/chaz8081/receipt-stt/internal/audio"
	"github.com/chaz8081/receipt-stt/internal/config"
)

// Recognizer is the synchronous recognition call of *speech.Client.
type Recognizer interface {
	Recognize(ctx context.Context, req *speechpb.RecognizeRequest, opts ...gax.CallOption) (*speechpb.RecognizeResponse, error)
}

var _ Recognizer = (*speech.Client)(nil)

var googleEncodings = map[audio.Encoding]speechpb.RecognitionConfig_AudioEncoding{
	audio.EncodingLinear16: speechpb.RecognitionConfig_LINEAR16,
	audio.EncodingFLAC:     speechpb.RecognitionConfig_FLAC,
	audio.EncodingMP3:      speechpb.RecognitionConfig_MP3,
	audio.EncodingWebMOpus: speechpb.RecognitionConfig_WEBM_OPUS,
}

// GoogleTranscriber calls Speech-to-Text v1 Recognize once per request.
// Audio is sent inline, so long recordings hit the backend's sync limit.
type GoogleTranscriber struct {
	rec     Recognizer
	client  *speech.Client // nil when rec was supplied by the caller
	model   string
	timeout time.Duration
}

// NewGoogleTranscriber wraps an existing recognizer. The caller keeps
// ownership of rec.
func NewGoogleTranscriber(rec Recognizer, model string, timeout time.Duration) *GoogleTranscriber {
	if model == "" {
		model = config.DefaultGoogleModel
	}
	return &GoogleTranscriber{rec: rec, model: model, timeout: timeout}
}

// DialGoogle opens a Speech-to-Text client. Credentials come from
// cfg.CredentialsFile or application default credentials.
func DialGoogle(ctx context.Context, cfg *config.TranscribeConfig) (*GoogleTranscriber, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("transcribe: create speech client: %w", err)
	}
	t := NewGoogleTranscriber(client, cfg.Model, cfg.Timeout)
	t.client = client
	return t, nil
}

// Close releases the underlying client if DialGoogle created it.
func (t *GoogleTranscriber) Close() error {
	if t.client != nil {
		return t.client.Close()
	}
	return nil
}

// Transcribe sends data with a config declaring enc and returns the top
// alternative of every result joined by spaces.
func (t *GoogleTranscriber) Transcribe(ctx context.Context, data []byte, enc audio.Encoding, languageCode string) (string, error) {
	encoding, ok := googleEncodings[enc]
	if !ok {
		return "", &Error{Backend: "google", Encoding: enc, Err: fmt.Errorf("unsupported encoding %q", enc)}
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	resp, err := t.rec.Recognize(ctx, t.request(data, encoding, languageCode))
	if err != nil {
		return "", &Error{Backend: "google", Encoding: enc, Err: err}
	}

	var segments []string
	for _, result := range resp.GetResults() {
		alts := result.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		segments = append(segments, alts[0].GetTranscript())
	}

	return strings.TrimSpace(strings.Join(segments, " ")), nil
}

func (t *GoogleTranscriber) request(data []byte, enc speechpb.RecognitionConfig_AudioEncoding, languageCode string) *speechpb.RecognizeRequest {
	return &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   enc,
			LanguageCode:               languageCode,
			EnableAutomaticPunctuation: true,
			EnableWordTimeOffsets:      false,
			EnableWordConfidence:       true,
			Model:                      t.model,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: data},
		},
	}
}
