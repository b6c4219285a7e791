package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harshul/octo-studio/internal/terminal"
)

// EventKind names an engine event.
type EventKind string

const (
	EventReady          EventKind = "ready"
	EventStartupTimeout EventKind = "startup-timeout"
	EventInputRequested EventKind = "input-requested"
	EventExited         EventKind = "exited"
)

// Event is published to subscribers as apps change state.
type Event struct {
	ID       string
	Kind     EventKind
	AppID    int64
	RunID    string
	Key      string
	URL      string
	ProxyURL string
	Message  string
	ExitCode int
	Time     time.Time
}

// session is one start of an app. Fields other than runID are guarded by
// Engine.mu.
type session struct {
	runID       string
	ready       bool
	timer       *time.Timer
	promptKey   string
	promptScope terminal.Scope
}

func (e *Engine) newSession(appID int64) *session {
	s := &session{runID: uuid.NewString()}
	e.mu.Lock()
	if old := e.sessions[appID]; old != nil && old.timer != nil {
		old.timer.Stop()
	}
	e.sessions[appID] = s
	e.mu.Unlock()
	return s
}

// endSession disarms the watchdog and closes the proxy of appID.
func (e *Engine) endSession(ctx context.Context, appID int64) {
	e.mu.Lock()
	s := e.sessions[appID]
	delete(e.sessions, appID)
	if s != nil && s.timer != nil {
		s.timer.Stop()
	}
	e.mu.Unlock()
	if s != nil && e.deps.Proxy != nil {
		e.deps.Proxy.Stop(ctx, appID)
	}
}

// armWatchdog reports a startup timeout unless sess becomes ready first.
// It never stops a process.
func (e *Engine) armWatchdog(appID int64, sess *session) {
	if e.opts.StartupTimeout < 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if sess.ready {
		return
	}
	sess.timer = time.AfterFunc(e.opts.StartupTimeout, func() {
		e.mu.Lock()
		stale := sess.ready || e.sessions[appID] != sess
		e.mu.Unlock()
		if stale {
			return
		}
		e.logger.Warn("app startup timed out", "app_id", appID, "run_id", sess.runID, "timeout", e.opts.StartupTimeout)
		e.deps.Terminal.Route(appID, terminal.ScopeMain, StartupTimeoutMessage, terminal.SeverityError)
		e.publish(Event{Kind: EventStartupTimeout, AppID: appID, RunID: sess.runID, Message: StartupTimeoutMessage})
	})
}

// Subscribe returns a channel of engine events and a cancel function.
// Slow subscribers miss events rather than block the engine.
func (e *Engine) Subscribe(buffer int) (<-chan Event, func()) {
	return e.events.subscribe(buffer)
}

func (e *Engine) publish(ev Event) {
	ev.ID = uuid.NewString()
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	e.events.publish(ev)
}

type broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan Event)}
}

func (b *broadcaster) subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, buffer)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
}

func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
