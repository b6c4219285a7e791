// Package tags extracts typed actions from the markup embedded in an AI
// chat response.
package tags

import "strings"

// Kind names an action variant.
type Kind string

const (
	KindWriteFile     Kind = "write-file"
	KindSearchReplace Kind = "search-replace"
	KindRenameFile    Kind = "rename-file"
	KindDeletePath    Kind = "delete-path"
	KindAddDependency Kind = "add-dependency"
	KindExecuteSQL    Kind = "execute-sql"
	KindRunCommand    Kind = "run-command"
)

// Scope says which part of a project a command targets.
type Scope string

const (
	ScopeGeneral  Scope = "general"
	ScopeFrontend Scope = "frontend"
	ScopeBackend  Scope = "backend"
)

// Action is one instruction parsed from a response. The set of
// implementations is closed to this package.
type Action interface {
	Kind() Kind
	isAction()
}

// WriteFile replaces (or creates) a file with Content.
type WriteFile struct {
	Path        string
	Content     string
	Description string
}

// SearchReplace substitutes the first occurrence of Old with New in Path.
type SearchReplace struct {
	Path string
	Old  string
	New  string
}

// RenameFile moves From to To.
type RenameFile struct {
	From string
	To   string
}

// DeletePath removes a file or a directory tree.
type DeletePath struct {
	Path string
}

// AddDependency installs packages with the project's package manager.
type AddDependency struct {
	Packages []string
}

// ExecuteSQL runs SQL against the project's database.
type ExecuteSQL struct {
	SQL         string
	Description string
}

// RunCommand runs a shell command in the project. Cwd, when set, is
// relative to the scope directory (or the project root for general
// commands).
type RunCommand struct {
	Scope       Scope
	Command     string
	Cwd         string
	Description string
}

func (WriteFile) Kind() Kind     { return KindWriteFile }
func (SearchReplace) Kind() Kind { return KindSearchReplace }
func (RenameFile) Kind() Kind    { return KindRenameFile }
func (DeletePath) Kind() Kind    { return KindDeletePath }
func (AddDependency) Kind() Kind { return KindAddDependency }
func (ExecuteSQL) Kind() Kind    { return KindExecuteSQL }
func (RunCommand) Kind() Kind    { return KindRunCommand }

func (WriteFile) isAction()     {}
func (SearchReplace) isAction() {}
func (RenameFile) isAction()    {}
func (DeletePath) isAction()    {}
func (AddDependency) isAction() {}
func (ExecuteSQL) isAction()    {}
func (RunCommand) isAction()    {}

// Label returns the text used in terminal and log lines for the command.
func (c RunCommand) Label() string {
	if c.Description != "" {
		return c.Description
	}
	return c.Command
}

// Parsed groups the actions of one response by kind. Each slice keeps
// source order; All keeps the order across kinds.
type Parsed struct {
	Writes           []WriteFile
	SearchReplaces   []SearchReplace
	Renames          []RenameFile
	Deletes          []DeletePath
	Packages         []string
	SQL              []ExecuteSQL
	BackendCommands  []RunCommand
	FrontendCommands []RunCommand
	GeneralCommands  []RunCommand
	All              []Action
}

// Empty reports whether no action was found.
func (p Parsed) Empty() bool {
	return len(p.All) == 0
}

func (p *Parsed) add(a Action) {
	p.All = append(p.All, a)
	switch v := a.(type) {
	case WriteFile:
		p.Writes = append(p.Writes, v)
	case SearchReplace:
		p.SearchReplaces = append(p.SearchReplaces, v)
	case RenameFile:
		p.Renames = append(p.Renames, v)
	case DeletePath:
		p.Deletes = append(p.Deletes, v)
	case AddDependency:
		p.Packages = append(p.Packages, v.Packages...)
	case ExecuteSQL:
		p.SQL = append(p.SQL, v)
	case RunCommand:
		switch v.Scope {
		case ScopeBackend:
			p.BackendCommands = append(p.BackendCommands, v)
		case ScopeFrontend:
			p.FrontendCommands = append(p.FrontendCommands, v)
		default:
			p.GeneralCommands = append(p.GeneralCommands, v)
		}
	}
}

var commandPrefixes = []string{"cmd:", "command:", "run:", "execute:", "terminal:", "shell:"}

// CleanCommand strips one conversational prefix, markdown fences and
// wrapping backticks from a command.
func CleanCommand(command string) string {
	c := stripFences(strings.TrimSpace(command))
	c = strings.TrimSpace(c)
	lower := strings.ToLower(c)
	for _, p := range commandPrefixes {
		if strings.HasPrefix(lower, p) {
			c = strings.TrimSpace(c[len(p):])
			break
		}
	}
	if len(c) >= 2 && strings.HasPrefix(c, "`") && strings.HasSuffix(c, "`") {
		c = strings.TrimSpace(c[1 : len(c)-1])
	}
	return c
}

// stripFences drops a leading ```lang line and a trailing ``` line.
func stripFences(s string) string {
	trimmed := strings.TrimLeft(s, " \t\r\n")
	if strings.HasPrefix(trimmed, "```") {
		if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
			s = trimmed[nl+1:]
		} else {
			s = strings.TrimPrefix(trimmed, "```")
		}
		end := strings.TrimRight(s, " \t\r\n")
		if strings.HasSuffix(end, "```") {
			s = strings.TrimSuffix(end, "```")
		}
	}
	return s
}
