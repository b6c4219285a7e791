package ui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/harshul/octo-studio/internal/orchestrator"
	"github.com/harshul/octo-studio/internal/terminal"
)

// RunConsole shows the console until the user quits or ctx ends, then
// stops the app.
func RunConsole(ctx context.Context, cfg ConsoleConfig) error {
	console := NewConsole(cfg)

	lines, cancelLines := cfg.Logs.Subscribe(256)
	defer cancelLines()
	go func() {
		for l := range lines {
			console.SendLine(l)
		}
	}()

	if cfg.Events != nil {
		events, cancelEvents := cfg.Events(64)
		defer cancelEvents()
		go func() {
			for ev := range events {
				console.SendEvent(ev)
			}
		}()
	}

	program := tea.NewProgram(
		console,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	_, err := program.Run()

	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if stopErr := cfg.Controller.Stop(stopCtx, cfg.AppID); stopErr != nil {
		err = errors.Join(err, stopErr)
	}
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// RunPlain streams the main terminal to w and forwards lines read from in
// to the app's stdin, for non-interactive terminals. It returns when ctx
// ends or every app process has exited.
func RunPlain(ctx context.Context, cfg ConsoleConfig, w io.Writer, in io.Reader) error {
	lines, cancelLines := cfg.Logs.Subscribe(1024)
	defer cancelLines()
	for _, l := range cfg.Logs.Lines(terminal.ScopeMain) {
		fmt.Fprintln(w, l.Message)
	}

	var events <-chan orchestrator.Event
	if cfg.Events != nil {
		ch, cancelEvents := cfg.Events(64)
		defer cancelEvents()
		events = ch
	}

	if in != nil {
		go func() {
			scanner := bufio.NewScanner(in)
			for scanner.Scan() {
				if err := cfg.Controller.RespondToInput(cfg.AppID, strings.TrimSpace(scanner.Text())); err != nil {
					fmt.Fprintln(w, warnStyle.Render("⚠")+" "+err.Error())
				}
			}
		}()
	}

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return cfg.Controller.Stop(stopCtx, cfg.AppID)
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			if l.Scope == terminal.ScopeMain {
				fmt.Fprintln(w, l.Message)
			}
		case ev := <-events:
			if ev.AppID == cfg.AppID && ev.Kind == orchestrator.EventReady {
				fmt.Fprintln(w, successStyle.Render("➜ "+previewOf(ev)))
			}
		case <-ticker.C:
			if !cfg.Controller.Running(cfg.AppID) {
				return nil
			}
		}
	}
}

func previewOf(ev orchestrator.Event) string {
	if ev.ProxyURL != "" {
		return ev.ProxyURL
	}
	return ev.URL
}
