// Package terminal keeps the three output streams (main, frontend,
// backend) of each app and routes command output into them.
package terminal

import (
	"sync"
	"time"

	"github.com/harshul/octo-studio/internal/tags"
)

// Scope selects one of an app's terminal logs.
type Scope string

const (
	ScopeMain     Scope = "main"
	ScopeFrontend Scope = "frontend"
	ScopeBackend  Scope = "backend"
)

// Scopes lists the logs in display order.
var Scopes = []Scope{ScopeMain, ScopeFrontend, ScopeBackend}

// ScopeFor maps a command scope to the log that receives its output.
func ScopeFor(s tags.Scope) Scope {
	switch s {
	case tags.ScopeFrontend:
		return ScopeFrontend
	case tags.ScopeBackend:
		return ScopeBackend
	}
	return ScopeMain
}

// OutputType is the coarse type readers use to style a line.
type OutputType string

const (
	TypeStdout         OutputType = "stdout"
	TypeStderr         OutputType = "stderr"
	TypeInfo           OutputType = "info"
	TypeInputRequested OutputType = "input-requested"
)

// Line is one entry in a terminal log.
type Line struct {
	AppID   int64
	Scope   Scope
	Message string
	Type    OutputType
	Time    time.Time
}

// LogBuffer is a bounded ring of lines.
type LogBuffer struct {
	lines    []Line
	maxLines int
}

// NewLogBuffer creates a buffer holding at most maxLines lines.
func NewLogBuffer(maxLines int) *LogBuffer {
	return &LogBuffer{
		lines:    make([]Line, 0, min(maxLines, 256)),
		maxLines: maxLines,
	}
}

// Append adds a line, dropping the oldest when full.
func (lb *LogBuffer) Append(l Line) {
	if lb.maxLines > 0 && len(lb.lines) >= lb.maxLines {
		copy(lb.lines, lb.lines[1:])
		lb.lines = lb.lines[:len(lb.lines)-1]
	}
	lb.lines = append(lb.lines, l)
}

// All returns a copy of the buffered lines.
func (lb *LogBuffer) All() []Line {
	out := make([]Line, len(lb.lines))
	copy(out, lb.lines)
	return out
}

// Len returns the number of buffered lines.
func (lb *LogBuffer) Len() int { return len(lb.lines) }

// Clear empties the buffer.
func (lb *LogBuffer) Clear() { lb.lines = lb.lines[:0] }

// Store holds one app's logs and the active selector.
type Store struct {
	appID  int64
	mu     sync.RWMutex
	logs   map[Scope]*LogBuffer
	active Scope
	subs   map[int]chan Line
	nextID int
}

func newStore(appID int64, maxLines int) *Store {
	logs := make(map[Scope]*LogBuffer, len(Scopes))
	for _, s := range Scopes {
		logs[s] = NewLogBuffer(maxLines)
	}
	return &Store{appID: appID, logs: logs, active: ScopeMain, subs: make(map[int]chan Line)}
}

// Lines returns a snapshot of the log for scope.
func (s *Store) Lines(scope Scope) []Line {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if lb, ok := s.logs[scope]; ok {
		return lb.All()
	}
	return nil
}

// Active returns the currently selected log.
func (s *Store) Active() Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// Select changes the active log.
func (s *Store) Select(scope Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.logs[scope]; ok {
		s.active = scope
	}
}

// Clear empties one log.
func (s *Store) Clear(scope Scope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lb, ok := s.logs[scope]; ok {
		lb.Clear()
	}
}

// Subscribe returns a channel receiving every appended line and a cancel
// function. Slow subscribers miss lines rather than block writers.
func (s *Store) Subscribe(buffer int) (<-chan Line, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	ch := make(chan Line, buffer)
	s.subs[id] = ch
	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if c, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(c)
		}
	}
}

// append adds entries atomically. When the log of target was empty
// beforehand, target becomes active.
func (s *Store) append(target Scope, entries ...Line) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lb, ok := s.logs[target]; ok && lb.Len() == 0 {
		s.active = target
	}
	for _, l := range entries {
		lb, ok := s.logs[l.Scope]
		if !ok {
			continue
		}
		lb.Append(l)
		for _, ch := range s.subs {
			select {
			case ch <- l:
			default:
			}
		}
	}
}

// Hub owns the stores of all apps.
type Hub struct {
	mu       sync.Mutex
	stores   map[int64]*Store
	maxLines int
}

// NewHub creates a Hub whose logs keep at most maxLines lines each.
func NewHub(maxLines int) *Hub {
	if maxLines <= 0 {
		maxLines = 1000
	}
	return &Hub{stores: make(map[int64]*Store), maxLines: maxLines}
}

// Store returns the store for appID, creating it on first use.
func (h *Hub) Store(appID int64) *Store {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.stores[appID]
	if !ok {
		s = newStore(appID, h.maxLines)
		h.stores[appID] = s
	}
	return s
}
