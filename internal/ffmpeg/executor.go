package ffmpeg

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"
	"time"
)

// ExecResult holds the outcome of a single external tool invocation.
type ExecResult struct {
	Stdout []byte
	Stderr string
	Err    error
}

// Runner executes an external binary. The production implementation is
// [ExecRunner]; tests substitute fakes that record args.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ExecResult
}

// ExecRunner runs commands with exec.CommandContext. When Tee is set, stderr
// is copied there in real time as well as captured for diagnosis.
type ExecRunner struct {
	Tee io.Writer
}

// Run executes name with args and waits for it to exit.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ExecResult {
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	if r.Tee != nil {
		cmd.Stderr = io.MultiWriter(&stderr, r.Tee)
	} else {
		cmd.Stderr = &stderr
	}

	err := cmd.Run()
	return ExecResult{
		Stdout: stdout.Bytes(),
		Stderr: stderr.String(),
		Err:    err,
	}
}

// Execute runs ffmpeg with args under a wall-clock timeout. A timeout is
// reported through Err like any other failed exit.
func Execute(ctx context.Context, r Runner, timeout time.Duration, args []string) ExecResult {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	res := r.Run(ctx, "ffmpeg", args...)
	if res.Err == nil && ctx.Err() != nil {
		res.Err = ctx.Err()
	}
	return res
}

// StderrTail returns the last n non-empty lines of stderr.
func StderrTail(stderr string, n int) []string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	out := lines[:0]
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}
