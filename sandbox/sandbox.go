// Package sandbox runs model-produced solution code in a subprocess with a
// hard timeout. The script is written to a temp file, executed by the
// configured interpreter, and removed on every path.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrTimedOut reports that the script hit the execution deadline.
var ErrTimedOut = errors.New("sandbox: execution timed out")

// ErrNonZeroExit reports a script that ran but failed.
var ErrNonZeroExit = errors.New("sandbox: non-zero exit")

// Result captures one execution.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

// Runner executes scripts under an interpreter.
type Runner struct {
	interpreter string
	timeout     time.Duration
	logger      *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithTimeout sets the hard execution deadline. Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the runner logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a Runner for the given interpreter, e.g. "python3".
func New(interpreter string, opts ...Option) *Runner {
	r := &Runner{
		interpreter: interpreter,
		timeout:     30 * time.Second,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// codeMarkers distinguish runnable code from a literal answer the model put
// in the code field.
var codeMarkers = []string{"import", "def ", "for ", "while ", "="}

// LooksLikeCode reports whether the text is a program rather than a literal
// answer value.
func LooksLikeCode(text string) bool {
	for _, m := range codeMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// Run writes code to a temp script, executes it, and returns the captured
// output. A timeout yields ErrTimedOut; a non-zero exit yields ErrNonZeroExit
// with stderr in the Result. The temp file is removed in all cases.
func (r *Runner) Run(ctx context.Context, code string) (*Result, error) {
	f, err := os.CreateTemp("", "quizd-solution-*.py")
	if err != nil {
		return nil, fmt.Errorf("create temp script: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(code); err != nil {
		f.Close()
		return nil, fmt.Errorf("write script: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close script: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.interpreter, path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	res := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if ctx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		r.logger.Warn("sandbox: execution timed out", "timeout", r.timeout)
		return res, ErrTimedOut
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			r.logger.Warn("sandbox: script failed",
				"exit_code", res.ExitCode,
				"stderr", truncateForLog(res.Stderr),
				"duration", time.Since(start))
			return res, fmt.Errorf("%w (%d): %s", ErrNonZeroExit, res.ExitCode, res.Stderr)
		}
		return res, fmt.Errorf("exec %s: %w", r.interpreter, runErr)
	}

	r.logger.Debug("sandbox: script completed",
		"duration", time.Since(start), "stdout_bytes", stdout.Len())
	return res, nil
}

func truncateForLog(s string) string {
	if len(s) > 500 {
		return s[:500] + "..."
	}
	return s
}
