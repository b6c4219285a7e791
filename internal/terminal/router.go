package terminal

import (
	"time"
)

// Severity classifies a message handed to the router.
type Severity string

const (
	SeverityCommand Severity = "command"
	SeverityOutput  Severity = "output"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

const (
	colorCyan  = "\x1b[36m"
	colorGreen = "\x1b[32m"
	colorRed   = "\x1b[31m"
	colorReset = "\x1b[0m"
)

// TypeFor maps a severity to the output type readers see.
func TypeFor(sev Severity) OutputType {
	switch sev {
	case SeverityError:
		return TypeStderr
	case SeveritySuccess, SeverityCommand:
		return TypeInfo
	}
	return TypeStdout
}

func colorize(sev Severity, msg string) string {
	switch sev {
	case SeverityCommand:
		return colorCyan + msg + colorReset
	case SeveritySuccess:
		return colorGreen + msg + colorReset
	case SeverityError:
		return colorRed + msg + colorReset
	}
	return msg
}

// Router formats messages and appends them to an app's logs.
//
// Every line lands in the main log. Frontend and backend lines are also
// written to their own log, and their main-log copy is prefixed with the
// scope name. Only the target log can become active as a result.
type Router struct {
	hub        *Hub
	now        func() time.Time
	timeFormat string
}

// NewRouter returns a Router writing into hub.
func NewRouter(hub *Hub) *Router {
	return &Router{hub: hub, now: time.Now, timeFormat: "15:04:05"}
}

// Hub returns the store owner the router writes to.
func (r *Router) Hub() *Hub { return r.hub }

// Route records message for appID in scope with the given severity.
func (r *Router) Route(appID int64, scope Scope, message string, sev Severity) {
	r.emit(appID, scope, colorize(sev, message), TypeFor(sev))
}

// RouteInputRequest records that the process in scope is waiting for
// user input.
func (r *Router) RouteInputRequest(appID int64, scope Scope, message string) {
	r.emit(appID, scope, message, TypeInputRequested)
}

func (r *Router) emit(appID int64, scope Scope, body string, typ OutputType) {
	if scope == "" {
		scope = ScopeMain
	}
	ts := r.now()
	stamp := "[" + ts.Format(r.timeFormat) + "] "

	primary := Line{AppID: appID, Scope: scope, Message: stamp + body, Type: typ, Time: ts}
	if scope == ScopeMain {
		r.hub.Store(appID).append(scope, primary)
		return
	}
	mirror := Line{
		AppID:   appID,
		Scope:   ScopeMain,
		Message: stamp + "[" + string(scope) + "] " + body,
		Type:    typ,
		Time:    ts,
	}
	r.hub.Store(appID).append(scope, primary, mirror)
}
