// Package shell runs one-shot commands through the platform shell.
package shell

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// Runner executes commands and reports only success or failure to the
// caller; stderr goes to the log.
type Runner struct {
	logger *slog.Logger
	env    []string
}

// NewRunner returns a Runner. A nil logger discards diagnostics.
func NewRunner(logger *slog.Logger, env ...string) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{logger: logger, env: env}
}

// Command builds the platform shell invocation for command.
func Command(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}
	return exec.CommandContext(ctx, "sh", "-c", command)
}

// Run executes command in dir. It returns trimmed stdout and true when the
// command exits zero; otherwise "" and false. It never panics and never
// reads stdin. Cancelling ctx kills the command.
func (r *Runner) Run(ctx context.Context, command, dir string) (string, bool) {
	cmd := Command(ctx, command)
	cmd.Dir = dir
	cmd.Stdin = nil
	// Grandchildren may hold the output pipes open after a cancel.
	cmd.WaitDelay = time.Second
	if len(r.env) > 0 {
		cmd.Env = append(cmd.Environ(), r.env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("running shell command", "command", command, "dir", dir)
	err := cmd.Run()

	if s := strings.TrimSpace(stderr.String()); s != "" {
		r.logger.Warn("shell command wrote to stderr", "command", command, "stderr", s)
	}
	if err != nil {
		code := -1
		if cmd.ProcessState != nil {
			code = cmd.ProcessState.ExitCode()
		}
		r.logger.Error("shell command failed", "command", command, "dir", dir, "exit_code", code, "err", err)
		return "", false
	}
	return strings.TrimSpace(stdout.String()), true
}
