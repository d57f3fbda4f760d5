// Package eval scores the pipeline against recordings with known
// transcripts. A manifest lists the recordings; Run transcribes each one and
// reports word error rate per sample and over the whole set.
package eval

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
	"gopkg.in/yaml.v3"

	"github.com/chaz8081/receipt-stt/internal/audio"
	"github.com/chaz8081/receipt-stt/internal/pipeline"
)

// Sample is one manifest entry.
type Sample struct {
	Label       string `yaml:"label" json:"label"`
	File        string `yaml:"file" json:"file"`
	Transcript  string `yaml:"transcript" json:"transcript"`
	Language    string `yaml:"language,omitempty" json:"language,omitempty"`
	ContentType string `yaml:"content_type,omitempty" json:"content_type,omitempty"`
}

// Manifest is a set of reference recordings.
type Manifest struct {
	Language string   `yaml:"language"`
	Samples  []Sample `yaml:"samples"`

	dir string
}

// LoadManifest reads a YAML manifest. Relative sample paths resolve against
// the manifest's directory.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("eval: read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("eval: parse manifest: %w", err)
	}
	if len(m.Samples) == 0 {
		return nil, fmt.Errorf("eval: manifest %s has no samples", path)
	}
	for i, s := range m.Samples {
		if s.File == "" {
			return nil, fmt.Errorf("eval: sample %d has no file", i)
		}
		if s.Label == "" {
			m.Samples[i].Label = filepath.Base(s.File)
		}
	}
	m.dir = filepath.Dir(path)
	return &m, nil
}

func (m *Manifest) path(s Sample) string {
	if filepath.IsAbs(s.File) || m.dir == "" {
		return s.File
	}
	return filepath.Join(m.dir, s.File)
}

// Processor runs one asset through transcription. *pipeline.Pipeline
// implements it.
type Processor interface {
	Process(ctx context.Context, asset audio.Asset, languageCode string) (pipeline.Result, error)
}

var _ Processor = (*pipeline.Pipeline)(nil)

// SampleResult is the outcome for one sample.
type SampleResult struct {
	Sample     Sample        `json:"sample"`
	Hypothesis string        `json:"hypothesis"`
	Score      Score         `json:"score"`
	WER        float64       `json:"wer"`
	Strategy   string        `json:"strategy,omitempty"`
	Retried    bool          `json:"retried,omitempty"`
	Took       time.Duration `json:"took_ns"`
	Err        error         `json:"-"`
	Error      string        `json:"error,omitempty"`
}

// Report aggregates a run. Failed samples are excluded from Total.
type Report struct {
	Results []SampleResult `json:"results"`
	Total   Score          `json:"total"`
	WER     float64        `json:"wer"`
	Failed  int            `json:"failed"`
}

// Runner evaluates manifests.
type Runner struct {
	proc        Processor
	concurrency int64
	log         zerolog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithConcurrency bounds how many samples run at once.
func WithConcurrency(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = int64(n)
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(r *Runner) { r.log = l }
}

// NewRunner creates a Runner around proc.
func NewRunner(proc Processor, opts ...Option) *Runner {
	r := &Runner{proc: proc, concurrency: 1, log: zerolog.Nop()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run evaluates every sample. Per-sample failures are recorded in the report;
// the returned error is non-nil only when ctx ends before all samples start.
func (r *Runner) Run(ctx context.Context, m *Manifest) (Report, error) {
	results := make([]SampleResult, len(m.Samples))
	sem := semaphore.NewWeighted(r.concurrency)

	var runErr error
	started := 0
	done := make(chan struct{}, len(m.Samples))
	for i, s := range m.Samples {
		if err := sem.Acquire(ctx, 1); err != nil {
			runErr = fmt.Errorf("eval: %w", err)
			break
		}
		started++
		go func(i int, s Sample) {
			defer func() {
				sem.Release(1)
				done <- struct{}{}
			}()
			results[i] = r.one(ctx, m, s)
		}(i, s)
	}
	for ; started > 0; started-- {
		<-done
	}
	if runErr != nil {
		return Report{}, runErr
	}

	rep := Report{Results: results}
	for _, res := range results {
		if res.Err != nil {
			rep.Failed++
			continue
		}
		rep.Total = rep.Total.Add(res.Score)
	}
	rep.WER = rep.Total.WER()
	return rep, nil
}

func (r *Runner) one(ctx context.Context, m *Manifest, s Sample) SampleResult {
	res := SampleResult{Sample: s}
	start := time.Now()

	fail := func(err error) SampleResult {
		res.Err, res.Error = err, err.Error()
		res.Took = time.Since(start)
		r.log.Warn().Err(err).Str("sample", s.Label).Msg("eval sample failed")
		return res
	}

	data, err := os.ReadFile(m.path(s))
	if err != nil {
		return fail(fmt.Errorf("eval: read %s: %w", s.File, err))
	}

	lang := s.Language
	if lang == "" {
		lang = m.Language
	}
	out, err := r.proc.Process(ctx, audio.Asset{Data: data, Filename: filepath.Base(s.File), ContentType: s.ContentType}, lang)
	if err != nil {
		return fail(err)
	}

	res.Hypothesis = out.Transcript
	res.Strategy = out.Strategy
	res.Retried = out.Retried()
	res.Score = Compare(s.Transcript, out.Transcript)
	res.WER = res.Score.WER()
	res.Took = time.Since(start)
	r.log.Debug().Str("sample", s.Label).Float64("wer", res.WER).Dur("took", res.Took).Msg("eval sample scored")
	return res
}

// ErrThreshold is returned by Check when the report's WER is too high.
var ErrThreshold = errors.New("eval: word error rate above threshold")

// Check fails when any sample failed or the aggregate WER exceeds maxWER.
// A negative maxWER disables the WER check.
func (rep Report) Check(maxWER float64) error {
	if rep.Failed > 0 {
		return fmt.Errorf("eval: %d of %d samples failed", rep.Failed, len(rep.Results))
	}
	if maxWER >= 0 && rep.WER > maxWER {
		return fmt.Errorf("%w: %.3f > %.3f", ErrThreshold, rep.WER, maxWER)
	}
	return nil
}
