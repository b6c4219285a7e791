package processor

import (
	"fmt"
	"html"
	"strings"
)

// Phase names a step of the pipeline.
type Phase string

const (
	PhasePreflight    Phase = "preflight"
	PhaseSQL          Phase = "sql"
	PhaseCommands     Phase = "commands"
	PhaseDependencies Phase = "dependencies"
	PhaseFiles        Phase = "files"
	PhaseReconcile    Phase = "reconcile"
)

// Severity of an issue.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Issue is a non-fatal problem met while applying a response.
type Issue struct {
	Phase    Phase
	Severity Severity
	Message  string
	Cause    error
}

func (i Issue) String() string {
	if i.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", i.Severity, i.Message, i.Cause)
	}
	return fmt.Sprintf("%s: %s", i.Severity, i.Message)
}

// Journal accumulates issues in the order they occur.
type Journal struct {
	issues []Issue
}

func (j *Journal) Warn(phase Phase, msg string, cause error) {
	j.issues = append(j.issues, Issue{Phase: phase, Severity: SeverityWarning, Message: msg, Cause: cause})
}

func (j *Journal) Error(phase Phase, msg string, cause error) {
	j.issues = append(j.issues, Issue{Phase: phase, Severity: SeverityError, Message: msg, Cause: cause})
}

// Issues returns a copy of everything recorded.
func (j *Journal) Issues() []Issue {
	out := make([]Issue, len(j.issues))
	copy(out, j.issues)
	return out
}

// Count returns the number of issues with severity sev.
func (j *Journal) Count(sev Severity) int {
	n := 0
	for _, i := range j.issues {
		if i.Severity == sev {
			n++
		}
	}
	return n
}

// Annotations renders the issues as output markup appended to the stored
// message: warnings first, then errors.
func (j *Journal) Annotations() string {
	var b strings.Builder
	for _, sev := range []Severity{SeverityWarning, SeverityError} {
		for _, i := range j.issues {
			if i.Severity != sev {
				continue
			}
			cause := ""
			if i.Cause != nil {
				cause = i.Cause.Error()
			}
			fmt.Fprintf(&b, "\n\n<dyad-output type=%q message=\"%s\">\n%s\n</dyad-output>",
				string(sev), html.EscapeString(i.Message), html.EscapeString(cause))
		}
	}
	return b.String()
}
