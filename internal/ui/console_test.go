package ui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/harshul/octo-studio/internal/orchestrator"
	"github.com/harshul/octo-studio/internal/terminal"
)

type fakeController struct {
	mu        sync.Mutex
	running   bool
	stopped   int
	restarts  []orchestrator.RestartOptions
	responses []string
	inputErr  error
}

func (f *fakeController) Stop(context.Context, int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	f.running = false
	return nil
}

func (f *fakeController) Restart(_ context.Context, _ int64, opts orchestrator.RestartOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts = append(f.restarts, opts)
	f.running = true
	return nil
}

func (f *fakeController) RespondToInput(_ int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, text)
	return f.inputErr
}

func (f *fakeController) Running(int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newTestConsole(t *testing.T) (*ConsoleModel, *terminal.Router, *fakeController) {
	t.Helper()
	router := terminal.NewRouter(terminal.NewHub(0))
	ctl := &fakeController{running: true}
	m := NewConsole(ConsoleConfig{
		AppID:      1,
		Name:       "todo-app",
		Logs:       router.Hub().Store(1),
		Controller: ctl,
	})
	return m, router, ctl
}

func TestConsoleFollowsActiveTerminal(t *testing.T) {
	m, router, _ := newTestConsole(t)

	router.Route(1, terminal.ScopeFrontend, "VITE ready", terminal.SeverityOutput)
	m.Update(lineMsg(router.Hub().Store(1).Lines(terminal.ScopeFrontend)[0]))

	if m.scope != terminal.ScopeFrontend {
		t.Fatalf("expected frontend terminal to be selected, got %s", m.scope)
	}
	if !strings.Contains(m.viewport.View(), "VITE ready") {
		t.Errorf("expected frontend output in viewport, got %q", m.viewport.View())
	}
}

func TestConsoleTabCyclesTerminals(t *testing.T) {
	m, router, _ := newTestConsole(t)
	store := router.Hub().Store(1)

	want := []terminal.Scope{terminal.ScopeFrontend, terminal.ScopeBackend, terminal.ScopeMain}
	for _, scope := range want {
		m.Update(tea.KeyMsg{Type: tea.KeyTab})
		if m.scope != scope || store.Active() != scope {
			t.Fatalf("expected %s, got console %s store %s", scope, m.scope, store.Active())
		}
	}
	m.Update(tea.KeyMsg{Type: tea.KeyShiftTab})
	if m.scope != terminal.ScopeBackend {
		t.Errorf("expected shift+tab to go back to backend, got %s", m.scope)
	}
}

func TestConsoleAnswersPrompt(t *testing.T) {
	m, _, ctl := newTestConsole(t)

	m.Update(runes("y"))
	if len(ctl.responses) != 0 {
		t.Fatal("keys must not reach the app without a pending prompt")
	}

	m.Update(eventMsg(orchestrator.Event{Kind: orchestrator.EventInputRequested, AppID: 1, Message: "Install? › (y/N)"}))
	if !strings.Contains(m.View(), "Install? › (y/N)") {
		t.Error("expected prompt in view")
	}
	m.Update(runes("y"))
	if len(ctl.responses) != 1 || ctl.responses[0] != "y" {
		t.Fatalf("expected answer y, got %v", ctl.responses)
	}
	if m.prompt != "" {
		t.Error("expected prompt to be cleared")
	}

	ctl.inputErr = errors.New("app 1: app is not running")
	m.Update(eventMsg(orchestrator.Event{Kind: orchestrator.EventInputRequested, AppID: 1, Message: "Again? › (y/N)"}))
	m.Update(runes("n"))
	if !strings.Contains(m.status, "not running") {
		t.Errorf("expected input error in status, got %q", m.status)
	}
}

func TestConsoleShowsReadyURL(t *testing.T) {
	m, _, _ := newTestConsole(t)
	m.Update(eventMsg(orchestrator.Event{
		Kind:     orchestrator.EventReady,
		AppID:    1,
		URL:      "http://localhost:32100/",
		ProxyURL: "http://127.0.0.1:41234",
	}))
	view := m.View()
	if !strings.Contains(view, "http://127.0.0.1:41234") || !strings.Contains(view, "http://localhost:32100/") {
		t.Errorf("expected both URLs in view:\n%s", view)
	}
}

func TestConsoleIgnoresOtherApps(t *testing.T) {
	m, _, _ := newTestConsole(t)
	m.SendEvent(orchestrator.Event{Kind: orchestrator.EventReady, AppID: 2, URL: "http://localhost:1/"})
	select {
	case msg := <-m.updateChan:
		t.Fatalf("unexpected message %#v", msg)
	default:
	}
}

func TestConsoleActions(t *testing.T) {
	m, _, ctl := newTestConsole(t)

	_, cmd := m.Update(runes("R"))
	if cmd == nil {
		t.Fatal("expected restart command")
	}
	done := cmd()
	m.Update(done)
	if len(ctl.restarts) != 1 || !ctl.restarts[0].RemoveNodeModules {
		t.Errorf("expected one clean restart, got %+v", ctl.restarts)
	}
	if m.status != "clean restart done" {
		t.Errorf("unexpected status %q", m.status)
	}

	_, cmd = m.Update(runes("s"))
	m.Update(cmd())
	if ctl.stopped != 1 || m.running {
		t.Errorf("expected app to be stopped")
	}
}

func TestConsoleQuitStopsApp(t *testing.T) {
	m, _, ctl := newTestConsole(t)
	_, cmd := m.Update(runes("q"))
	if ctl.stopped != 1 {
		t.Error("expected quit to stop the app")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected quit command")
	}
}

func TestRunPlainStreamsMainTerminal(t *testing.T) {
	router := terminal.NewRouter(terminal.NewHub(0))
	ctl := &fakeController{running: true}
	cfg := ConsoleConfig{AppID: 1, Logs: router.Hub().Store(1), Controller: ctl}
	router.Route(1, terminal.ScopeMain, "$ npm run dev", terminal.SeverityCommand)

	var out bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunPlain(ctx, cfg, &out, strings.NewReader("y\n")) }()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		ctl.mu.Lock()
		n := len(ctl.responses)
		ctl.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("RunPlain returned %v", err)
	}
	if !strings.Contains(out.String(), "$ npm run dev") {
		t.Errorf("expected backlog in output, got %q", out.String())
	}
	if len(ctl.responses) != 1 || ctl.responses[0] != "y" {
		t.Errorf("expected stdin forwarded, got %v", ctl.responses)
	}
	if ctl.stopped != 1 {
		t.Error("expected app to be stopped when the context ends")
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStatusLines(t *testing.T) {
	var buf bytes.Buffer
	old := Output
	Output = &buf
	defer func() { Output = old }()

	Success("Wrote file")
	Warn("Search string not found")
	Highlight("Commit", "abc123")

	out := buf.String()
	for _, want := range []string{"Wrote file", "Search string not found", "Commit:", "abc123"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in %q", want, out)
		}
	}
}
