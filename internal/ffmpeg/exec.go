package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// runFn runs a binary and returns its stderr.
type runFn func(ctx context.Context, path string, args []string) (string, error)

// Executor runs ffmpeg commands.
type Executor struct {
	run runFn
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRunFunc replaces process execution (for testing).
func WithRunFunc(fn runFn) ExecutorOption {
	return func(e *Executor) { e.run = fn }
}

// NewExecutor creates an Executor with the given options.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{run: runProcess}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunOutput executes ffmpeg and returns its stderr, even on failure.
// ffmpeg writes probe information to stderr and exits non-zero when given
// no output file, so callers that parse output decide what the error means.
func (e *Executor) RunOutput(ctx context.Context, ffmpegPath string, args []string) (string, error) {
	return e.run(ctx, ffmpegPath, args)
}

// Run executes ffmpeg and returns an ErrExecFailed-wrapped error carrying
// the last stderr line when the process fails.
func (e *Executor) Run(ctx context.Context, ffmpegPath string, args []string) error {
	out, err := e.run(ctx, ffmpegPath, args)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %v: %s", ErrExecFailed, err, lastLine(out))
}

func runProcess(ctx context.Context, ffmpegPath string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stderr.String(), err
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\n ")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
