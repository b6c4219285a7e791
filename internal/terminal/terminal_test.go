package terminal

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/harshul/octo-studio/internal/tags"
)

func fixedRouter() *Router {
	r := NewRouter(NewHub(0))
	r.now = func() time.Time { return time.Date(2026, 1, 2, 13, 4, 5, 0, time.UTC) }
	return r
}

func TestRouteFormatting(t *testing.T) {
	tests := []struct {
		name     string
		sev      Severity
		wantMsg  string
		wantType OutputType
	}{
		{"command is cyan info", SeverityCommand, "[13:04:05] \x1b[36m$ ls\x1b[0m", TypeInfo},
		{"success is green info", SeveritySuccess, "[13:04:05] \x1b[32m$ ls\x1b[0m", TypeInfo},
		{"error is red stderr", SeverityError, "[13:04:05] \x1b[31m$ ls\x1b[0m", TypeStderr},
		{"output is plain stdout", SeverityOutput, "[13:04:05] $ ls", TypeStdout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := fixedRouter()
			r.Route(1, ScopeMain, "$ ls", tt.sev)
			lines := r.Hub().Store(1).Lines(ScopeMain)
			if len(lines) != 1 {
				t.Fatalf("expected 1 line, got %d", len(lines))
			}
			if lines[0].Message != tt.wantMsg {
				t.Errorf("expected message %q, got %q", tt.wantMsg, lines[0].Message)
			}
			if lines[0].Type != tt.wantType {
				t.Errorf("expected type %s, got %s", tt.wantType, lines[0].Type)
			}
		})
	}
}

func TestRouteMirrorsIntoMain(t *testing.T) {
	r := fixedRouter()
	r.Route(7, ScopeBackend, "pip install flask", SeverityOutput)

	store := r.Hub().Store(7)
	backend := store.Lines(ScopeBackend)
	main := store.Lines(ScopeMain)
	if len(backend) != 1 || backend[0].Message != "[13:04:05] pip install flask" {
		t.Errorf("unexpected backend log: %#v", backend)
	}
	if len(main) != 1 || main[0].Message != "[13:04:05] [backend] pip install flask" {
		t.Errorf("unexpected main log: %#v", main)
	}
	if got := store.Lines(ScopeFrontend); len(got) != 0 {
		t.Errorf("expected empty frontend log, got %d lines", len(got))
	}
}

func TestAutoSelect(t *testing.T) {
	r := fixedRouter()
	store := r.Hub().Store(3)

	if store.Active() != ScopeMain {
		t.Fatalf("expected main to be active initially, got %s", store.Active())
	}

	r.Route(3, ScopeFrontend, "vite", SeverityOutput)
	if store.Active() != ScopeFrontend {
		t.Errorf("expected first frontend line to select frontend, got %s", store.Active())
	}

	// Main already holds a mirror, so a main line must not steal focus.
	r.Route(3, ScopeMain, "hello", SeverityOutput)
	if store.Active() != ScopeFrontend {
		t.Errorf("expected frontend to stay active, got %s", store.Active())
	}

	r.Route(3, ScopeBackend, "uvicorn", SeverityOutput)
	if store.Active() != ScopeBackend {
		t.Errorf("expected first backend line to select backend, got %s", store.Active())
	}

	r.Route(3, ScopeFrontend, "again", SeverityOutput)
	if store.Active() != ScopeBackend {
		t.Errorf("expected non-empty frontend log not to flip selector, got %s", store.Active())
	}
}

func TestAppsAreIsolated(t *testing.T) {
	r := fixedRouter()
	r.Route(1, ScopeMain, "one", SeverityOutput)
	r.Route(2, ScopeMain, "two", SeverityOutput)
	if got := len(r.Hub().Store(1).Lines(ScopeMain)); got != 1 {
		t.Errorf("expected app 1 to have 1 line, got %d", got)
	}
	if got := r.Hub().Store(2).Lines(ScopeMain)[0].AppID; got != 2 {
		t.Errorf("expected app id 2, got %d", got)
	}
}

func TestInputRequest(t *testing.T) {
	r := fixedRouter()
	r.RouteInputRequest(1, ScopeFrontend, "Ok to proceed? › (y/N)")
	lines := r.Hub().Store(1).Lines(ScopeFrontend)
	if len(lines) != 1 || lines[0].Type != TypeInputRequested {
		t.Fatalf("expected one input-requested line, got %#v", lines)
	}
}

func TestLogBufferBounded(t *testing.T) {
	r := NewRouter(NewHub(3))
	for i := 0; i < 5; i++ {
		r.Route(1, ScopeMain, fmt.Sprintf("line %d", i), SeverityOutput)
	}
	lines := r.Hub().Store(1).Lines(ScopeMain)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if !strings.HasSuffix(lines[0].Message, "line 2") {
		t.Errorf("expected oldest kept line to be 'line 2', got %q", lines[0].Message)
	}
}

func TestSubscribe(t *testing.T) {
	r := fixedRouter()
	ch, cancel := r.Hub().Store(1).Subscribe(8)
	r.Route(1, ScopeBackend, "go build", SeverityCommand)

	got := []Scope{(<-ch).Scope, (<-ch).Scope}
	if got[0] != ScopeBackend || got[1] != ScopeMain {
		t.Errorf("expected backend then main, got %v", got)
	}
	cancel()
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed after cancel")
	}
}

func TestLineWriter(t *testing.T) {
	var lines []string
	var partials []string
	w := &LineWriter{
		OnLine: func(l string) { lines = append(lines, l) },
		OnPartial: func(p string) bool {
			partials = append(partials, p)
			return strings.HasSuffix(p, "(y/N)")
		},
	}

	fmt.Fprint(w, "first\r\nsec")
	fmt.Fprint(w, "ond\n\nproceed? (y/N)")
	fmt.Fprint(w, "tail")
	w.Flush()

	want := []string{"first", "second", "tail"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Errorf("expected lines %v, got %v", want, lines)
	}
	if len(partials) != 3 || partials[1] != "proceed? (y/N)" {
		t.Errorf("unexpected partials: %v", partials)
	}
}

func TestScopeFor(t *testing.T) {
	if ScopeFor(tags.ScopeGeneral) != ScopeMain || ScopeFor(tags.ScopeBackend) != ScopeBackend ||
		ScopeFor(tags.ScopeFrontend) != ScopeFrontend {
		t.Error("unexpected scope mapping")
	}
}
