package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBinary is resolved via PATH.
const DefaultBinary = "ffmpeg"

const (
	defaultTimeout = 60 * time.Second
	probeTimeout   = 5 * time.Second
	stderrTail     = 512
)

// Converter shells out to ffmpeg. It is safe for concurrent use; every call
// works in its own temporary directory.
type Converter struct {
	binary  string
	timeout time.Duration
	tempDir string
	runner  Runner
	log     zerolog.Logger

	probeOnce sync.Once
	probeErr  error
}

// Option configures a Converter.
type Option func(*Converter)

// WithRunner replaces the subprocess runner.
func WithRunner(r Runner) Option {
	return func(c *Converter) { c.runner = r }
}

// WithTimeout bounds a single conversion. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Converter) { c.timeout = d }
}

// WithTempDir sets the parent directory for per-call scratch directories.
func WithTempDir(dir string) Option {
	return func(c *Converter) { c.tempDir = dir }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Converter) { c.log = l }
}

// New creates a Converter for the given binary (DefaultBinary if empty).
func New(binary string, opts ...Option) *Converter {
	if binary == "" {
		binary = DefaultBinary
	}
	c := &Converter{
		binary:  binary,
		timeout: defaultTimeout,
		runner:  ExecRunner{},
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Binary returns the configured ffmpeg binary.
func (c *Converter) Binary() string { return c.binary }

// Probe checks once whether the binary runs. Later calls return the cached
// result. The check ignores cancellation of ctx so one caller's deadline
// cannot mark ffmpeg unavailable for everyone else.
func (c *Converter) Probe(ctx context.Context) error {
	c.probeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), probeTimeout)
		defer cancel()
		_, err := c.runner.Run(ctx, Command{Binary: c.binary, Args: []string{"-version"}})
		if err != nil {
			c.probeErr = fmt.Errorf("ffmpeg: probe %q: %w", c.binary, err)
			c.log.Warn().Err(err).Str("binary", c.binary).Msg("ffmpeg not available")
			return
		}
		c.log.Debug().Str("binary", c.binary).Msg("ffmpeg available")
	})
	return c.probeErr
}

// Available reports whether Probe succeeded.
func (c *Converter) Available(ctx context.Context) bool {
	return c.Probe(ctx) == nil
}

// ToCanonicalWAV converts data to 16kHz mono 16-bit PCM WAV. ext names the
// input container (".webm", ".m4a", ...) so ffmpeg can pick a demuxer. Both
// scratch files are removed before returning, whether or not ffmpeg succeeds.
func (c *Converter) ToCanonicalWAV(ctx context.Context, data []byte, ext string) ([]byte, error) {
	dir, err := os.MkdirTemp(c.tempDir, "receipt-stt-ffmpeg-*")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: create scratch dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			c.log.Warn().Err(rmErr).Str("dir", dir).Msg("failed to remove ffmpeg scratch dir")
		}
	}()

	in := filepath.Join(dir, "input"+ext)
	out := filepath.Join(dir, "output.wav")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, fmt.Errorf("ffmpeg: write input: %w", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	res, err := c.runner.Run(ctx, Command{Binary: c.binary, Args: canonicalArgs(in, out)})
	if err != nil {
		if res != nil && len(res.Stderr) > 0 {
			return nil, fmt.Errorf("%w: %s", err, tail(res.Stderr))
		}
		return nil, err
	}

	wav, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg: read output: %w", err)
	}
	if len(wav) == 0 {
		return nil, fmt.Errorf("ffmpeg: empty output")
	}
	c.log.Debug().Int("in_bytes", len(data)).Int("out_bytes", len(wav)).Dur("took", res.Duration).Msg("ffmpeg conversion done")
	return wav, nil
}

func canonicalArgs(in, out string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-y",
		"-i", in,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ac", "1",
		"-ar", "16000",
		out,
	}
}

func tail(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) > stderrTail {
		b = b[len(b)-stderrTail:]
	}
	return string(b)
}
