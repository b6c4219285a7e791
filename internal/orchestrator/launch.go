package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/harshul/octo-studio/internal/procman"
	"github.com/harshul/octo-studio/internal/shell"
	"github.com/harshul/octo-studio/internal/terminal"
)

// launch spawns p, registers it and starts copying its output. The
// process outlives the request that started it.
func (e *Engine) launch(appID int64, p launchPlan, sess *session) error {
	var cmd *exec.Cmd
	if len(p.args) > 0 {
		cmd = exec.Command(p.args[0], p.args[1:]...)
	} else {
		cmd = shell.Command(context.Background(), p.command)
	}
	cmd.Dir = p.dir
	cmd.Env = append(os.Environ(), e.opts.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe for %s: %w", p.key, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe for %s: %w", p.key, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe for %s: %w", p.key, err)
	}

	display := p.command
	if len(p.args) > 0 {
		display = strings.Join(p.args[:len(p.args)-1], " ") + " '" + p.command + "'"
	}
	e.deps.Terminal.Route(appID, p.scope, "$ "+display, terminal.SeverityCommand)
	if err := cmd.Start(); err != nil {
		e.deps.Terminal.Route(appID, p.scope, "❌ Error: "+err.Error(), terminal.SeverityError)
		return fmt.Errorf("start %s: %w", p.key, err)
	}

	rec := procman.NewRecord(appID, p.key, cmd, stdin)
	if p.container != "" {
		rec.Containerized = true
		rec.ContainerName = p.container
	}
	e.deps.Registry.Register(rec)

	b := &bridge{e: e, appID: appID, key: p.key, scope: p.scope, sess: sess}
	outW, errW := b.stdoutWriter(), b.stderrWriter()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = io.Copy(outW, stdout)
		outW.Flush()
	}()
	go func() {
		defer wg.Done()
		_, _ = io.Copy(errW, stderr)
		errW.Flush()
	}()
	go func() {
		wg.Wait()
		err := cmd.Wait()
		rec.MarkExited(err)
		e.exited(appID, p, rec, sess, err)
	}()
	return nil
}

func (e *Engine) exited(appID int64, p launchPlan, rec *procman.Record, sess *session, err error) {
	current := e.deps.Registry.RemoveIfCurrent(p.key, rec)
	code := exitCode(err)
	e.logger.Info("process exited", "app_id", appID, "key", p.key, "process_id", rec.ProcessID, "code", code, "current", current)

	sev := terminal.SeverityOutput
	if code != 0 {
		sev = terminal.SeverityError
	}
	e.deps.Terminal.Route(appID, p.scope, fmt.Sprintf("App process exited with code %d", code), sev)
	e.publish(Event{Kind: EventExited, AppID: appID, RunID: sess.runID, Key: p.key, ExitCode: code})
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
