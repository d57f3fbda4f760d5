// Package transcode turns uploaded audio into 16kHz mono 16-bit PCM WAV by
// running an ordered chain of strategies and stopping at the first success.
//
// The default chain is:
//  1. decode: in-process decode, downmix, resample, re-encode
//  2. ffmpeg: external conversion, when ffmpeg is installed
//  3. identity-wav: pass wav input through unchanged
//  4. decode-as-webm: retry in-process decoding tagged as webm
//  5. passthrough-webm: pass webm input through unchanged
//
// Any other hint that fails every strategy yields an *Error.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chaz8081/receipt-stt/internal/audio"
	"github.com/chaz8081/receipt-stt/internal/ffmpeg"
)

// Attempt outcomes reported to an Observer.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// Attempt records one strategy run.
type Attempt struct {
	Strategy string
	Format   audio.Format
	Skipped  bool
	Err      error
	Took     time.Duration
}

// OK reports whether the attempt produced output.
func (a Attempt) OK() bool { return !a.Skipped && a.Err == nil }

// Error is returned when every strategy failed for a format.
type Error struct {
	Format   audio.Format
	Attempts []Attempt
	// Err is the most recent strategy failure.
	Err error
}

func (e *Error) Error() string {
	var tried []string
	for _, a := range e.Attempts {
		if !a.Skipped {
			tried = append(tried, a.Strategy)
		}
	}
	return fmt.Sprintf("transcode: no strategy converted %s input (tried %s): %v",
		e.Format, strings.Join(tried, ", "), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Observer is notified of every attempt.
type Observer interface {
	ObserveAttempt(strategy string, outcome string)
}

// Transcoder runs a fixed strategy chain. It holds no per-call state and is
// safe for concurrent use.
type Transcoder struct {
	strategies []Strategy
	log        zerolog.Logger
	observer   Observer
}

// Option configures a Transcoder.
type Option func(*Transcoder)

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(t *Transcoder) { t.log = l }
}

// WithObserver registers an attempt observer.
func WithObserver(o Observer) Option {
	return func(t *Transcoder) { t.observer = o }
}

// New builds the standard chain around the given primary (in-process) and
// external strategies. external may be nil.
func New(primary, external Strategy, opts ...Option) *Transcoder {
	chain := []Strategy{primary}
	if external != nil {
		chain = append(chain, external)
	}
	chain = append(chain,
		Identity{Format: audio.WAV},
		Retag{Inner: primary, Format: audio.WebM},
		Identity{Format: audio.WebM, Label: "passthrough-webm"},
	)
	return NewChain(chain, opts...)
}

// NewChain runs exactly the given strategies in order.
func NewChain(strategies []Strategy, opts ...Option) *Transcoder {
	t := &Transcoder{strategies: strategies, log: zerolog.Nop()}
	for _, o := range opts {
		o(t)
	}
	return t
}

// NewDefault builds the standard chain with in-process decoding and the
// given ffmpeg converter (nil disables the external step).
func NewDefault(conv *ffmpeg.Converter, opts ...Option) *Transcoder {
	var external Strategy
	if conv != nil {
		external = External{Converter: conv}
	}
	return New(Decode{}, external, opts...)
}

// Strategies returns the strategy names in chain order.
func (t *Transcoder) Strategies() []string {
	names := make([]string, len(t.strategies))
	for i, s := range t.strategies {
		names[i] = s.Name()
	}
	return names
}

// Canonicalize converts data, hinted as format f, to canonical WAV. Strategies
// run strictly one after another; the first success wins.
func (t *Transcoder) Canonicalize(ctx context.Context, data []byte, f audio.Format) ([]byte, error) {
	out, _, err := t.run(ctx, data, f)
	return out, err
}

// CanonicalizeWith is Canonicalize that also reports which strategy produced
// the output.
func (t *Transcoder) CanonicalizeWith(ctx context.Context, data []byte, f audio.Format) ([]byte, string, error) {
	return t.run(ctx, data, f)
}

func (t *Transcoder) run(ctx context.Context, data []byte, f audio.Format) ([]byte, string, error) {
	log := t.log.With().Str("format", string(f)).Int("bytes", len(data)).Logger()
	attempts := make([]Attempt, 0, len(t.strategies))
	var lastErr error

	for _, s := range t.strategies {
		if err := ctx.Err(); err != nil {
			return nil, "", fmt.Errorf("transcode: %w", err)
		}

		a := Attempt{Strategy: s.Name(), Format: f}
		if !s.Applies(ctx, f) {
			a.Skipped = true
			attempts = append(attempts, a)
			t.observe(a.Strategy, OutcomeSkipped)
			continue
		}

		start := time.Now()
		out, err := s.Convert(ctx, data, f)
		a.Took = time.Since(start)
		a.Err = err
		attempts = append(attempts, a)

		if err != nil {
			lastErr = err
			t.observe(a.Strategy, OutcomeFailure)
			log.Warn().Err(err).Str("strategy", a.Strategy).Dur("took", a.Took).Msg("transcode strategy failed")
			continue
		}

		t.observe(a.Strategy, OutcomeSuccess)
		log.Debug().Str("strategy", a.Strategy).Dur("took", a.Took).Int("out_bytes", len(out)).Msg("transcode strategy succeeded")
		return out, a.Strategy, nil
	}

	if lastErr == nil {
		lastErr = errors.New("transcode: no strategy applies")
	}
	return nil, "", &Error{Format: f, Attempts: attempts, Err: lastErr}
}

func (t *Transcoder) observe(strategy, outcome string) {
	if t.observer != nil {
		t.observer.ObserveAttempt(strategy, outcome)
	}
}
