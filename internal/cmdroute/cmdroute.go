// Package cmdroute decides whether a general terminal command belongs to
// the frontend or the backend part of a project.
package cmdroute

import (
	"regexp"

	"github.com/harshul/octo-studio/internal/tags"
)

// Ecosystem is the toolchain a command was recognized as.
type Ecosystem string

const (
	EcosystemNone   Ecosystem = ""
	EcosystemPython Ecosystem = "python"
	EcosystemNode   Ecosystem = "node"
	EcosystemGo     Ecosystem = "go"
	EcosystemRust   Ecosystem = "rust"
)

// ChatMode is the app's configured conversation mode.
type ChatMode string

const (
	ModeBuild     ChatMode = "build"
	ModeAsk       ChatMode = "ask"
	ModeBackend   ChatMode = "backend"
	ModeFullstack ChatMode = "fullstack"
)

// Valid reports whether m is one of the known modes.
func (m ChatMode) Valid() bool {
	switch m {
	case ModeBuild, ModeAsk, ModeBackend, ModeFullstack:
		return true
	}
	return false
}

// Rule routes commands matching Pattern (and not matching Unless) to Scope.
// EnsureDir asks the caller to create the scope directory when missing.
type Rule struct {
	Name      string
	Pattern   *regexp.Regexp
	Unless    *regexp.Regexp
	Ecosystem Ecosystem
	Scope     tags.Scope
	EnsureDir bool
}

var (
	pythonRe   = regexp.MustCompile(`(?i)\b(python|pip|conda|venv|py|python3|pip3|django|flask|fastapi|uvicorn|poetry)\b`)
	nodeRe     = regexp.MustCompile(`(?i)\b(npm|yarn|pnpm|node|npx|vite|next|react|webpack|create-react-app|vue|angular|typescript|tsc|bun)\b`)
	goRe       = regexp.MustCompile(`(?i)\bgo\b`)
	rustRe     = regexp.MustCompile(`(?i)\bcargo\b`)
	backendRe  = regexp.MustCompile(`(?i)\b(server|backend|api|database|db|postgres|mysql|sqlite|mongodb|redis)\b`)
	frontendRe = regexp.MustCompile(`(?i)\b(frontend|client|web|browser|html|css|scss|sass|tailwind|webpack|babel)\b`)
)

// DefaultRules is the ordered classification table. The first matching
// rule wins.
var DefaultRules = []Rule{
	{Name: "python", Pattern: pythonRe, Ecosystem: EcosystemPython, Scope: tags.ScopeBackend, EnsureDir: true},
	{Name: "go", Pattern: goRe, Ecosystem: EcosystemGo, Scope: tags.ScopeBackend, EnsureDir: true},
	{Name: "rust", Pattern: rustRe, Ecosystem: EcosystemRust, Scope: tags.ScopeBackend, EnsureDir: true},
	{Name: "node", Pattern: nodeRe, Ecosystem: EcosystemNode, Scope: tags.ScopeFrontend, EnsureDir: true},
	{Name: "backend-keywords", Pattern: backendRe, Unless: frontendRe, Scope: tags.ScopeBackend},
	{Name: "frontend-keywords", Pattern: frontendRe, Scope: tags.ScopeFrontend},
}

// Decision is the outcome of classifying one command.
type Decision struct {
	Scope     tags.Scope
	Ecosystem Ecosystem
	EnsureDir bool
	Rule      string
}

// Classifier applies an ordered rule table.
type Classifier struct {
	rules []Rule
}

// New returns a Classifier over rules, or DefaultRules when rules is nil.
func New(rules []Rule) *Classifier {
	if rules == nil {
		rules = DefaultRules
	}
	return &Classifier{rules: rules}
}

// Classify returns the first matching rule's decision, or the chat-mode
// fallback when no rule matches.
func (c *Classifier) Classify(command string, mode ChatMode) Decision {
	for _, r := range c.rules {
		if !r.Pattern.MatchString(command) {
			continue
		}
		if r.Unless != nil && r.Unless.MatchString(command) {
			continue
		}
		return Decision{Scope: r.Scope, Ecosystem: r.Ecosystem, EnsureDir: r.EnsureDir, Rule: r.Name}
	}
	return Decision{Scope: Fallback(mode), Rule: "mode:" + string(mode)}
}

// Fallback maps a chat mode to the scope used for unrecognized commands.
func Fallback(mode ChatMode) tags.Scope {
	if mode == ModeAsk {
		return tags.ScopeFrontend
	}
	return tags.ScopeBackend
}

// DetectEcosystem reports which toolchain command uses, if any.
func DetectEcosystem(command string) Ecosystem {
	switch {
	case pythonRe.MatchString(command):
		return EcosystemPython
	case goRe.MatchString(command):
		return EcosystemGo
	case rustRe.MatchString(command):
		return EcosystemRust
	case nodeRe.MatchString(command):
		return EcosystemNode
	}
	return EcosystemNone
}
