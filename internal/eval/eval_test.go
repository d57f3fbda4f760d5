package eval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chaz8081/receipt-stt/internal/audio"
	"github.com/chaz8081/receipt-stt/internal/pipeline"
)

type fakeProcessor struct {
	mu        sync.Mutex
	byName    map[string]string
	fail      map[string]error
	langs     map[string]string
	inFlight  atomic.Int32
	maxFlight atomic.Int32
	delay     time.Duration
}

func (f *fakeProcessor) Process(_ context.Context, a audio.Asset, lang string) (pipeline.Result, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxFlight.Load()
		if n <= cur || f.maxFlight.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(f.delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.langs == nil {
		f.langs = map[string]string{}
	}
	f.langs[a.Filename] = lang
	if err := f.fail[a.Filename]; err != nil {
		return pipeline.Result{}, err
	}
	return pipeline.Result{Transcript: f.byName[a.Filename], Strategy: "decode", Format: audio.WAV, CanonicalFormat: audio.WAV}, nil
}

func writeManifest(t *testing.T, body string, files ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte("audio:"+f), 0o600))
	}
	path := filepath.Join(dir, "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const manifestYAML = `language: en-US
samples:
  - label: coffee
    file: coffee.wav
    transcript: "Two coffees, $8.50."
  - file: taxi.mp3
    transcript: taxi to the airport
    language: en-GB
  - label: parking
    file: parking.webm
    transcript: parking garage fee
`

func TestLoadManifest(t *testing.T) {
	path := writeManifest(t, manifestYAML)
	m, err := LoadManifest(path)
	require.NoError(t, err)

	require.Len(t, m.Samples, 3)
	assert.Equal(t, "en-US", m.Language)
	assert.Equal(t, "taxi.mp3", m.Samples[1].Label, "label defaults to file name")
	assert.Equal(t, filepath.Join(filepath.Dir(path), "coffee.wav"), m.path(m.Samples[0]))
}

func TestLoadManifestErrors(t *testing.T) {
	_, err := LoadManifest(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadManifest(writeManifest(t, "samples: []\n"))
	assert.ErrorContains(t, err, "no samples")

	_, err = LoadManifest(writeManifest(t, "samples:\n  - transcript: hi\n"))
	assert.ErrorContains(t, err, "no file")

	_, err = LoadManifest(writeManifest(t, "samples: [unclosed\n"))
	assert.ErrorContains(t, err, "parse manifest")
}

func TestRun(t *testing.T) {
	path := writeManifest(t, manifestYAML, "coffee.wav", "taxi.mp3", "parking.webm")
	m, err := LoadManifest(path)
	require.NoError(t, err)

	proc := &fakeProcessor{
		byName: map[string]string{
			"coffee.wav":   "two coffees 850",
			"taxi.mp3":     "taxi to airport",
			"parking.webm": "parking garage fee",
		},
		delay: 10 * time.Millisecond,
	}
	rep, err := NewRunner(proc, WithConcurrency(2)).Run(context.Background(), m)
	require.NoError(t, err)

	require.Len(t, rep.Results, 3)
	assert.Equal(t, "coffee", rep.Results[0].Sample.Label)
	assert.Zero(t, rep.Results[0].Score.Errors())
	assert.Equal(t, 1, rep.Results[1].Score.Deletions)
	assert.Equal(t, "decode", rep.Results[2].Strategy)

	assert.Equal(t, 0, rep.Failed)
	assert.Equal(t, 10, rep.Total.RefWords)
	assert.InDelta(t, 0.1, rep.WER, 1e-9)
	assert.LessOrEqual(t, proc.maxFlight.Load(), int32(2))

	assert.Equal(t, "en-US", proc.langs["coffee.wav"])
	assert.Equal(t, "en-GB", proc.langs["taxi.mp3"])

	assert.NoError(t, rep.Check(0.2))
	assert.ErrorIs(t, rep.Check(0.05), ErrThreshold)
	assert.NoError(t, rep.Check(-1))
}

func TestRunRecordsFailures(t *testing.T) {
	path := writeManifest(t, manifestYAML, "coffee.wav", "parking.webm")
	m, err := LoadManifest(path)
	require.NoError(t, err)

	cause := errors.New("backend down")
	proc := &fakeProcessor{
		byName: map[string]string{"coffee.wav": "two coffees 850"},
		fail:   map[string]error{"parking.webm": cause},
	}
	rep, err := NewRunner(proc).Run(context.Background(), m)
	require.NoError(t, err)

	assert.Equal(t, 2, rep.Failed)
	assert.ErrorIs(t, rep.Results[2].Err, cause)
	assert.Equal(t, "backend down", rep.Results[2].Error)
	assert.ErrorIs(t, rep.Results[1].Err, os.ErrNotExist, "taxi.mp3 was never written")
	assert.Equal(t, 3, rep.Total.RefWords, "failed samples are excluded")
	assert.ErrorContains(t, rep.Check(1), "2 of 3 samples failed")
}

func TestRunCanceled(t *testing.T) {
	path := writeManifest(t, manifestYAML, "coffee.wav", "taxi.mp3", "parking.webm")
	m, err := LoadManifest(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewRunner(&fakeProcessor{}).Run(ctx, m)
	assert.ErrorIs(t, err, context.Canceled)
}
