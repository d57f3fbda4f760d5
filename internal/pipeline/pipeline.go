// Package pipeline turns an uploaded audio asset into a transcript. It
// detects the format, canonicalizes the bytes, declares an encoding and calls
// the speech backend. Canonicalization that fails for the detected format is
// retried under a fixed list of alternate format hints before giving up.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/chaz8081/receipt-stt/internal/audio"
	"github.com/chaz8081/receipt-stt/internal/config"
	"github.com/chaz8081/receipt-stt/internal/logging"
	"github.com/chaz8081/receipt-stt/internal/transcode"
	"github.com/chaz8081/receipt-stt/internal/transcribe"
)

// RetryFormats are the alternate hints tried after the detected format fails
// to canonicalize. The detected format itself is skipped.
var RetryFormats = []audio.Format{audio.WAV, audio.MP3, audio.WebM}

// Canonicalizer converts audio to canonical WAV. *transcode.Transcoder
// implements it.
type Canonicalizer interface {
	CanonicalizeWith(ctx context.Context, data []byte, f audio.Format) ([]byte, string, error)
}

var _ Canonicalizer = (*transcode.Transcoder)(nil)

// Result describes a successful run.
type Result struct {
	RunID        string
	Transcript   string
	LanguageCode string
	// Format and Reason come from detection and decide Encoding.
	Format   audio.Format
	Reason   audio.Reason
	Encoding audio.Encoding
	// CanonicalFormat is the hint canonicalization succeeded under. It
	// differs from Format only after a retry.
	CanonicalFormat audio.Format
	// Strategy names the transcode strategy that produced the audio sent.
	Strategy string
}

// Retried reports whether canonicalization needed an alternate hint.
func (r Result) Retried() bool { return r.CanonicalFormat != r.Format }

// UnrecoverableError is returned when canonicalization failed under the
// detected format and every retry format.
type UnrecoverableError struct {
	// Tried lists the format hints in the order they were attempted.
	Tried []audio.Format
	// Err is the failure for the detected format.
	Err error
	// Last is the failure for the final retry format.
	Last error
}

func (e *UnrecoverableError) Error() string {
	tried := make([]string, len(e.Tried))
	for i, f := range e.Tried {
		tried[i] = string(f)
	}
	msg := fmt.Sprintf("pipeline: canonicalize failed for formats %s: %v", strings.Join(tried, ", "), e.Err)
	if e.Last != nil && e.Last != e.Err {
		msg += fmt.Sprintf(" (last: %v)", e.Last)
	}
	return msg
}

func (e *UnrecoverableError) Unwrap() error { return e.Err }

// Pipeline runs assets through detection, canonicalization and transcription.
// It holds no per-run state and is safe for concurrent use.
type Pipeline struct {
	transcoder  Canonicalizer
	transcriber transcribe.Transcriber
	log         zerolog.Logger
	metrics     *Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(p *Pipeline) { p.log = l }
}

// WithMetrics records runs and retries in m.
func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a Pipeline. The transcriber is shared across runs and is not
// closed by the pipeline.
func New(tc Canonicalizer, tr transcribe.Transcriber, opts ...Option) *Pipeline {
	p := &Pipeline{transcoder: tc, transcriber: tr, log: zerolog.Nop()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Transcribe runs data through the pipeline and returns only the transcript.
// An empty languageCode means en-US.
func (p *Pipeline) Transcribe(ctx context.Context, data []byte, languageCode, filename string) (string, error) {
	res, err := p.Process(ctx, audio.Asset{Data: data, Filename: filename}, languageCode)
	if err != nil {
		return "", err
	}
	return res.Transcript, nil
}

// Process runs one asset to completion. Transcription errors are returned
// unchanged and never retried.
func (p *Pipeline) Process(ctx context.Context, asset audio.Asset, languageCode string) (Result, error) {
	start := time.Now()
	if languageCode == "" {
		languageCode = config.DefaultLanguage
	}

	res := Result{RunID: uuid.NewString(), LanguageCode: languageCode}
	log := p.log.With().Str(logging.FieldRunID, res.RunID).Logger()

	det := audio.Detect(asset)
	res.Format, res.Reason = det.Format, det.Reason
	log.Debug().
		Str("filename", asset.Filename).
		Str("content_type", asset.ContentType).
		Str("format", string(det.Format)).
		Str("reason", string(det.Reason)).
		Int("bytes", len(asset.Data)).
		Msg("format detected")

	canonical, strategy, usedFormat, err := p.canonicalize(ctx, log, asset.Data, det.Format)
	if err != nil {
		p.finish(log, outcomeOf(ctx, OutcomeTranscodeError), start, err)
		return Result{}, err
	}
	res.CanonicalFormat, res.Strategy = usedFormat, strategy

	// Canonical bytes are WAV, but the declared encoding follows detection.
	res.Encoding = audio.SelectEncoding(det.Format)

	text, err := p.transcriber.Transcribe(ctx, canonical, res.Encoding, languageCode)
	if err != nil {
		p.finish(log, outcomeOf(ctx, OutcomeTranscribeError), start, err)
		return Result{}, err
	}
	res.Transcript = text

	p.finish(log, OutcomeSuccess, start, nil)
	log.Info().
		Str("format", string(res.Format)).
		Str("encoding", string(res.Encoding)).
		Str("strategy", res.Strategy).
		Bool("retried", res.Retried()).
		Int("transcript_len", len(res.Transcript)).
		Msg("transcription complete")
	return res, nil
}

func (p *Pipeline) canonicalize(ctx context.Context, log zerolog.Logger, data []byte, detected audio.Format) ([]byte, string, audio.Format, error) {
	out, strategy, err := p.transcoder.CanonicalizeWith(ctx, data, detected)
	if err == nil {
		return out, strategy, detected, nil
	}

	var terr *transcode.Error
	if !errors.As(err, &terr) {
		return nil, "", "", err
	}

	first := err
	tried := []audio.Format{detected}
	for _, f := range RetryFormats {
		if f == detected {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, "", "", fmt.Errorf("pipeline: canonicalize: %w", ctxErr)
		}

		log.Warn().Err(err).Str("retry_format", string(f)).Msg("canonicalize failed, retrying under alternate format")
		tried = append(tried, f)

		out, strategy, err = p.transcoder.CanonicalizeWith(ctx, data, f)
		if err == nil {
			p.metrics.observeRetry(string(f), transcode.OutcomeSuccess)
			return out, strategy, f, nil
		}
		p.metrics.observeRetry(string(f), transcode.OutcomeFailure)
		if !errors.As(err, &terr) {
			return nil, "", "", err
		}
	}

	return nil, "", "", &UnrecoverableError{Tried: tried, Err: first, Last: err}
}

func (p *Pipeline) finish(log zerolog.Logger, outcome string, start time.Time, err error) {
	took := time.Since(start)
	p.metrics.observeRun(outcome, took)
	if err != nil {
		log.Error().Err(err).Str("outcome", outcome).Dur("took", took).Msg("pipeline run failed")
	}
}

func outcomeOf(ctx context.Context, fallback string) string {
	if ctx.Err() != nil {
		return OutcomeCanceled
	}
	return fallback
}
