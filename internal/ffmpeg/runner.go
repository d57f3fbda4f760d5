// Package ffmpeg runs the ffmpeg binary to convert arbitrary audio into
// 16kHz mono 16-bit PCM WAV.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Command configures a subprocess.
type Command struct {
	// Binary is the executable path or name (resolved via PATH).
	Binary string
	// Args are the command-line arguments.
	Args []string
	// GracePeriod is how long to wait for output pipes after the context is
	// canceled. Defaults to 5 seconds.
	GracePeriod time.Duration
}

// Result holds the output of a completed subprocess.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Runner executes commands. Tests substitute it to simulate ffmpeg.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run executes cmd and waits for it to exit.
func (ExecRunner) Run(ctx context.Context, cmd Command) (*Result, error) {
	if cmd.Binary == "" {
		return nil, errors.New("ffmpeg: binary is required")
	}

	grace := cmd.GracePeriod
	if grace == 0 {
		grace = 5 * time.Second
	}

	c := exec.CommandContext(ctx, cmd.Binary, cmd.Args...) //nolint:gosec // args are built by this package
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	c.WaitDelay = grace

	start := time.Now()
	err := c.Run()
	res := &Result{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		ExitCode: -1,
		Duration: time.Since(start),
	}
	if c.ProcessState != nil {
		res.ExitCode = c.ProcessState.ExitCode()
	}

	if err != nil {
		if ctx.Err() != nil {
			return res, fmt.Errorf("ffmpeg: killed by context: %w", ctx.Err())
		}
		return res, fmt.Errorf("ffmpeg: exit code %d: %w", res.ExitCode, err)
	}
	return res, nil
}
