// Package processor applies the actions of an AI response to an app:
// SQL, terminal commands, dependencies and file changes, each file change
// committed on its own.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/harshul/octo-studio/internal/cmdroute"
	"github.com/harshul/octo-studio/internal/provisioner"
	"github.com/harshul/octo-studio/internal/store"
	"github.com/harshul/octo-studio/internal/terminal"
)

// Repository loads and updates persisted chat state.
type Repository interface {
	GetChat(ctx context.Context, id int64) (store.Chat, error)
	GetApp(ctx context.Context, id int64) (store.App, error)
	GetMessage(ctx context.Context, id int64) (store.Message, error)
	FinalizeMessage(ctx context.Context, id int64, r store.MessageResult) error
}

// BranchSnapshotter records a restore point for an app's database branch.
type BranchSnapshotter interface {
	RecordBranchSnapshot(ctx context.Context, appID int64) error
}

// VersionControl is the git working tree of one app.
type VersionControl interface {
	Add(ctx context.Context, paths ...string) error
	Remove(ctx context.Context, path string) error
	StageAll(ctx context.Context) error
	Commit(ctx context.Context, message string) (string, error)
	Head(ctx context.Context) (string, error)
	Uncommitted(ctx context.Context) ([]string, error)
}

// RepoOpener opens the repository rooted at an app directory.
type RepoOpener func(dir string) (VersionControl, error)

// Installer adds JavaScript packages to an app.
type Installer interface {
	AddPackages(ctx context.Context, appDir string, packages []string) (provisioner.InstallResult, error)
}

// SQLExecutor runs SQL against an app's database project.
type SQLExecutor interface {
	ExecuteSQL(ctx context.Context, projectID, query string) (string, error)
}

// FunctionDeployer manages an app's server functions.
type FunctionDeployer interface {
	DeployFunction(ctx context.Context, projectID, name, source string) error
	DeleteFunction(ctx context.Context, projectID, name string) error
}

// CommandRunner runs one shell command to completion.
type CommandRunner interface {
	Run(ctx context.Context, command, dir string) (string, bool)
}

// TerminalRouter receives terminal output lines.
type TerminalRouter interface {
	Route(appID int64, scope terminal.Scope, message string, sev terminal.Severity)
}

// Deps are the collaborators of a Processor. Repo, OpenRepo, Runner and
// Terminal are required; the rest disable their phase when nil.
type Deps struct {
	Repo      Repository
	Snapshots BranchSnapshotter
	OpenRepo  RepoOpener
	Installer Installer
	SQL       SQLExecutor
	Functions FunctionDeployer
	Runner    CommandRunner
	Terminal  TerminalRouter
	Logger    *slog.Logger
}

// Options tune a Processor.
type Options struct {
	// AppsDir resolves relative app paths.
	AppsDir string
	// WriteSQLMigrations stores each executed query as a migration file.
	WriteSQLMigrations bool
	// DefaultChatMode is used when an app has none.
	DefaultChatMode cmdroute.ChatMode
	// Classifier routes general commands; nil means the default rules.
	Classifier *cmdroute.Classifier
}

// Processor applies responses.
type Processor struct {
	deps    Deps
	opts    Options
	logger  *slog.Logger
	classes *cmdroute.Classifier
}

// New validates deps and returns a Processor.
func New(deps Deps, opts Options) (*Processor, error) {
	if deps.Repo == nil || deps.OpenRepo == nil || deps.Runner == nil || deps.Terminal == nil {
		return nil, errors.New("processor: repo, repo opener, runner and terminal are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.DefaultChatMode == "" {
		opts.DefaultChatMode = cmdroute.ModeBuild
	}
	classes := opts.Classifier
	if classes == nil {
		classes = cmdroute.New(nil)
	}
	return &Processor{
		deps:    deps,
		opts:    opts,
		logger:  logger.With("component", "response_processor"),
		classes: classes,
	}, nil
}

// Request identifies the response to apply. When Response is empty the
// stored message content is used.
type Request struct {
	ChatID    int64
	MessageID int64
	Response  string
}

// Outcome summarizes an application.
type Outcome struct {
	UpdatedFiles    bool
	ExtraFiles      []string
	ExtraFilesError string
	CommitHash      string
	Issues          []Issue
	// Error is set when a pre-flight step failed and nothing was applied.
	Error error
}

// Warnings returns the warning issues.
func (o Outcome) Warnings() []Issue { return o.filter(SeverityWarning) }

// Errors returns the error issues.
func (o Outcome) Errors() []Issue { return o.filter(SeverityError) }

func (o Outcome) filter(sev Severity) []Issue {
	var out []Issue
	for _, i := range o.Issues {
		if i.Severity == sev {
			out = append(out, i)
		}
	}
	return out
}

// ErrUnsafePath is returned for paths that leave the app directory.
var ErrUnsafePath = errors.New("path escapes app directory")

// safeJoin resolves rel inside base.
func safeJoin(base, rel string) (string, error) {
	clean := filepath.FromSlash(rel)
	if filepath.IsAbs(clean) || !filepath.IsLocal(clean) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, rel)
	}
	return filepath.Join(base, clean), nil
}

func (p *Processor) appDir(app store.App) string {
	if filepath.IsAbs(app.Path) || p.opts.AppsDir == "" {
		return app.Path
	}
	return filepath.Join(p.opts.AppsDir, app.Path)
}
