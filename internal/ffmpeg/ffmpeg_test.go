package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner stands in for ffmpeg. For conversions it copies the input file
// to the output path with a prefix so callers can tell whose bytes they got.
type fakeRunner struct {
	probeErr   error
	convertErr error
	probes     atomic.Int32

	mu     sync.Mutex
	inputs []string
	// barrier, if set, is waited on by every conversion before it writes.
	barrier *sync.WaitGroup
}

func (f *fakeRunner) Run(_ context.Context, cmd Command) (*Result, error) {
	if len(cmd.Args) == 1 && cmd.Args[0] == "-version" {
		f.probes.Add(1)
		if f.probeErr != nil {
			return &Result{ExitCode: -1}, f.probeErr
		}
		return &Result{Stdout: []byte("ffmpeg version test")}, nil
	}

	in, out := argAfter(cmd.Args, "-i"), cmd.Args[len(cmd.Args)-1]
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()

	if f.barrier != nil {
		f.barrier.Done()
		f.barrier.Wait()
	}
	if f.convertErr != nil {
		return &Result{ExitCode: 1, Stderr: []byte("Invalid data found when processing input")}, f.convertErr
	}

	data, err := os.ReadFile(in)
	if err != nil {
		return &Result{ExitCode: 1}, err
	}
	if err := os.WriteFile(out, append([]byte("converted:"), data...), 0o600); err != nil {
		return &Result{ExitCode: 1}, err
	}
	return &Result{}, nil
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func entries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	e, err := os.ReadDir(dir)
	require.NoError(t, err)
	return e
}

func TestToCanonicalWAV(t *testing.T) {
	tmp := t.TempDir()
	r := &fakeRunner{}
	c := New("", WithRunner(r), WithTempDir(tmp))

	out, err := c.ToCanonicalWAV(context.Background(), []byte("webm bytes"), ".webm")
	require.NoError(t, err)
	assert.Equal(t, "converted:webm bytes", string(out))

	require.Len(t, r.inputs, 1)
	assert.True(t, strings.HasSuffix(r.inputs[0], "input.webm"))
	assert.Empty(t, entries(t, tmp), "scratch dir should be removed")
}

func TestToCanonicalWAVCleansUpOnFailure(t *testing.T) {
	tmp := t.TempDir()
	r := &fakeRunner{convertErr: errors.New("exit status 1")}
	c := New("ffmpeg", WithRunner(r), WithTempDir(tmp))

	_, err := c.ToCanonicalWAV(context.Background(), []byte("junk"), ".m4a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid data found")
	assert.Empty(t, entries(t, tmp))

	_, statErr := os.Stat(r.inputs[0])
	assert.True(t, os.IsNotExist(statErr))
}

func TestToCanonicalWAVConcurrentCallsUseDistinctPaths(t *testing.T) {
	tmp := t.TempDir()
	const n = 8
	var barrier sync.WaitGroup
	barrier.Add(n)
	r := &fakeRunner{barrier: &barrier}
	c := New("ffmpeg", WithRunner(r), WithTempDir(tmp))

	results := make([][]byte, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.ToCanonicalWAV(context.Background(), []byte(fmt.Sprintf("payload-%d", i)), ".webm")
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, fmt.Sprintf("converted:payload-%d", i), string(results[i]))
	}
	for _, in := range r.inputs {
		dir := filepath.Dir(in)
		assert.False(t, seen[dir], "scratch dir %s reused", dir)
		seen[dir] = true
	}
	assert.Len(t, seen, n)
	assert.Empty(t, entries(t, tmp))
}

func TestProbeRunsOnce(t *testing.T) {
	r := &fakeRunner{}
	c := New("ffmpeg", WithRunner(r))

	assert.True(t, c.Available(context.Background()))
	assert.True(t, c.Available(context.Background()))
	assert.NoError(t, c.Probe(context.Background()))
	assert.Equal(t, int32(1), r.probes.Load())
}

// slowProbeRunner answers -version after delay unless ctx ends first.
type slowProbeRunner struct {
	delay  time.Duration
	probes atomic.Int32
}

func (r *slowProbeRunner) Run(ctx context.Context, _ Command) (*Result, error) {
	r.probes.Add(1)
	select {
	case <-time.After(r.delay):
		return &Result{Stdout: []byte("ffmpeg version test")}, nil
	case <-ctx.Done():
		return &Result{ExitCode: -1}, ctx.Err()
	}
}

func TestProbeIgnoresCallerDeadline(t *testing.T) {
	r := &slowProbeRunner{delay: 50 * time.Millisecond}
	c := New("ffmpeg", WithRunner(r))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	assert.True(t, c.Available(ctx))
	assert.True(t, c.Available(context.Background()))
	assert.Equal(t, int32(1), r.probes.Load())
}

func TestProbeIgnoresCanceledCaller(t *testing.T) {
	r := &slowProbeRunner{}
	c := New("ffmpeg", WithRunner(r))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, c.Probe(ctx))
	assert.True(t, c.Available(context.Background()))
}

func TestProbeFailure(t *testing.T) {
	r := &fakeRunner{probeErr: exec.ErrNotFound}
	c := New("no-such-ffmpeg", WithRunner(r))

	err := c.Probe(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, exec.ErrNotFound)
	assert.False(t, c.Available(context.Background()))
	assert.Equal(t, int32(1), r.probes.Load())
}

func TestExecRunnerMissingBinary(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), Command{Binary: "receipt-stt-definitely-missing-binary"})
	assert.Error(t, err)
}

func TestExecRunnerRequiresBinary(t *testing.T) {
	_, err := ExecRunner{}.Run(context.Background(), Command{})
	assert.Error(t, err)
}

func TestRealFFmpeg(t *testing.T) {
	if _, err := exec.LookPath(DefaultBinary); err != nil {
		t.Skip("ffmpeg not on PATH")
	}
	c := New("")
	require.True(t, c.Available(context.Background()))

	_, err := c.ToCanonicalWAV(context.Background(), []byte("not audio at all"), ".webm")
	assert.Error(t, err)
}
