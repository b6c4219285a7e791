package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/harshul/octo-studio/internal/analyzer"
	"github.com/harshul/octo-studio/internal/cmdroute"
	"github.com/harshul/octo-studio/internal/store"
	"github.com/harshul/octo-studio/internal/supabase"
	"github.com/harshul/octo-studio/internal/tags"
	"github.com/harshul/octo-studio/internal/terminal"
)

// ReconcileMessage is the commit message for changes found uncommitted
// after all actions ran.
const ReconcileMessage = "[octo] Committed changes made outside the response pipeline"

// run carries the state of one Apply call.
type run struct {
	app     store.App
	dir     string
	mode    cmdroute.ChatMode
	vcs     VersionControl
	journal Journal
	changed bool
}

// Apply executes every action in the response and commits the results.
// Problems with individual actions are collected as issues; only a failed
// database snapshot stops the pipeline before any file is touched.
func (p *Processor) Apply(ctx context.Context, req Request) (out Outcome) {
	chat, err := p.deps.Repo.GetChat(ctx, req.ChatID)
	if err != nil {
		p.logger.Error("chat not found", "chat_id", req.ChatID, "error", err)
		return Outcome{}
	}
	app, err := p.deps.Repo.GetApp(ctx, chat.AppID)
	if err != nil {
		p.logger.Error("app not found", "app_id", chat.AppID, "error", err)
		return Outcome{}
	}
	msg, err := p.deps.Repo.GetMessage(ctx, req.MessageID)
	if err != nil || msg.ChatID != chat.ID {
		p.logger.Error("message not found", "message_id", req.MessageID, "chat_id", chat.ID, "error", err)
		return Outcome{}
	}

	r := &run{app: app, dir: p.appDir(app)}
	r.mode = p.chatMode(app, r.dir)
	logger := p.logger.With("app_id", app.ID, "message_id", msg.ID)

	defer func() {
		out.Issues = r.journal.Issues()
		p.finalize(ctx, msg, r, out.CommitHash)
	}()

	if app.HasNeonBranch() && p.deps.Snapshots != nil {
		if err := p.deps.Snapshots.RecordBranchSnapshot(ctx, app.ID); err != nil {
			logger.Error("database branch snapshot failed", "error", err)
			r.journal.Error(PhasePreflight, "Failed to snapshot database branch", err)
			out.Error = fmt.Errorf("snapshot database branch: %w", err)
			return out
		}
	}

	response := req.Response
	if response == "" {
		response = msg.Content
	}
	parsed := tags.Parse(response)
	logger.Info("applying response", "actions", len(parsed.All), "mode", r.mode)

	r.vcs, err = p.deps.OpenRepo(r.dir)
	if err != nil {
		logger.Warn("version control unavailable", "dir", r.dir, "error", err)
		r.journal.Warn(PhasePreflight, "Version control unavailable; changes were not committed", err)
		r.vcs = nil
	}

	p.applySQL(ctx, r, parsed.SQL)
	p.applyCommands(ctx, r, parsed)
	p.applyDependencies(ctx, r, parsed.Packages)
	p.applyFiles(ctx, r, parsed)

	out.UpdatedFiles = r.changed
	if r.changed && r.vcs != nil {
		out.ExtraFiles, out.ExtraFilesError = p.reconcile(ctx, r)
	}
	if r.vcs != nil {
		if head, err := r.vcs.Head(ctx); err == nil {
			out.CommitHash = head
		} else {
			r.journal.Warn(PhaseReconcile, "Failed to read commit hash", err)
		}
	}
	logger.Info("response applied",
		"updated_files", out.UpdatedFiles,
		"warnings", r.journal.Count(SeverityWarning),
		"errors", r.journal.Count(SeverityError),
		"commit", out.CommitHash,
	)
	return out
}

// chatMode upgrades the app's mode to backend when a backend directory
// exists, unless it is already fullstack.
func (p *Processor) chatMode(app store.App, dir string) cmdroute.ChatMode {
	mode := cmdroute.ChatMode(app.ChatMode)
	if mode == "" {
		mode = p.opts.DefaultChatMode
	}
	if mode != cmdroute.ModeFullstack && analyzer.DetectLayout(dir).HasBackend() {
		mode = cmdroute.ModeBackend
	}
	return mode
}

func (p *Processor) applySQL(ctx context.Context, r *run, queries []tags.ExecuteSQL) {
	if len(queries) == 0 {
		return
	}
	project := r.app.SupabaseProjectID
	skip := project == "" || p.deps.SQL == nil
	if skip {
		p.logger.Warn("skipping sql actions, no database project", "app_id", r.app.ID, "count", len(queries))
	}
	for _, q := range queries {
		label := q.Description
		if label == "" {
			label = firstLine(q.SQL)
		}
		if skip {
			r.journal.Warn(PhaseSQL, "SQL not executed: app has no Supabase project: "+label, nil)
			continue
		}
		if _, err := p.deps.SQL.ExecuteSQL(ctx, project, q.SQL); err != nil {
			r.journal.Error(PhaseSQL, "Failed to execute SQL query: "+label, err)
			continue
		}
		if !p.opts.WriteSQLMigrations {
			continue
		}
		rel, err := supabase.WriteMigration(r.dir, q.SQL, q.Description)
		if err != nil {
			r.journal.Error(PhaseSQL, "Failed to write SQL migration file for: "+label, err)
			continue
		}
		r.changed = true
		p.commit(ctx, r, PhaseSQL, rel, "Added migration: "+rel, func() error { return r.vcs.Add(ctx, rel) })
	}
}

func (p *Processor) applyCommands(ctx context.Context, r *run, parsed tags.Parsed) {
	for _, c := range parsed.BackendCommands {
		p.runScoped(ctx, r, c, tags.ScopeBackend, true)
	}
	for _, c := range parsed.FrontendCommands {
		p.runScoped(ctx, r, c, tags.ScopeFrontend, true)
	}
	for _, c := range parsed.GeneralCommands {
		d := p.classes.Classify(c.Command, r.mode)
		p.logger.Debug("classified command", "command", c.Command, "scope", d.Scope, "rule", d.Rule)
		p.runScoped(ctx, r, c, d.Scope, d.EnsureDir)
	}
}

// runScoped runs one command in its scope directory. ensureDir creates the
// directory when missing; otherwise a missing scope directory falls back to
// the app root.
func (p *Processor) runScoped(ctx context.Context, r *run, c tags.RunCommand, scope tags.Scope, ensureDir bool) {
	termScope := terminal.ScopeFor(scope)
	base := r.dir
	if scope != tags.ScopeGeneral {
		base = filepath.Join(r.dir, string(scope))
	}

	dir := base
	if c.Cwd != "" {
		root := base
		if c.Scope == tags.ScopeGeneral {
			root = r.dir
		}
		joined, err := safeJoin(root, c.Cwd)
		if err != nil {
			r.journal.Error(PhaseCommands, fmt.Sprintf("Invalid working directory for command: %s", c.Command), err)
			p.deps.Terminal.Route(r.app.ID, termScope, "❌ Error: "+c.Label(), terminal.SeverityError)
			return
		}
		dir = joined
	} else if _, err := os.Stat(base); err != nil {
		if ensureDir {
			if err := os.MkdirAll(base, 0o755); err != nil {
				r.journal.Error(PhaseCommands, "Failed to create directory: "+base, err)
				return
			}
		} else {
			dir = r.dir
		}
	}

	p.deps.Terminal.Route(r.app.ID, termScope, "$ "+c.Command, terminal.SeverityCommand)
	output, ok := p.deps.Runner.Run(ctx, c.Command, dir)
	if output = strings.TrimRight(output, "\r\n"); output != "" {
		p.deps.Terminal.Route(r.app.ID, termScope, output, terminal.SeverityOutput)
	}
	if ok {
		p.deps.Terminal.Route(r.app.ID, termScope, fmt.Sprintf("✅ %s completed successfully", c.Label()), terminal.SeveritySuccess)
		return
	}
	p.deps.Terminal.Route(r.app.ID, termScope, "❌ Error: "+c.Label(), terminal.SeverityError)
	r.journal.Error(PhaseCommands, fmt.Sprintf("%s command failed: %s", scopeName(scope), c.Command), nil)
}

func (p *Processor) applyDependencies(ctx context.Context, r *run, packages []string) {
	if len(packages) == 0 || p.deps.Installer == nil {
		return
	}
	list := strings.Join(packages, ", ")
	p.deps.Terminal.Route(r.app.ID, terminal.ScopeMain, "$ install "+strings.Join(packages, " "), terminal.SeverityCommand)
	res, err := p.deps.Installer.AddPackages(ctx, r.dir, packages)
	if err != nil {
		p.deps.Terminal.Route(r.app.ID, terminal.ScopeMain, "❌ Error: install "+list, terminal.SeverityError)
		r.journal.Error(PhaseDependencies, "Failed to add dependencies: "+list, err)
		r.journal.Warn(PhaseDependencies, "Package installation failed - package.json and lock files not committed", nil)
		return
	}
	p.deps.Terminal.Route(r.app.ID, terminal.ScopeMain, fmt.Sprintf("✅ install %s completed successfully", list), terminal.SeveritySuccess)
	r.changed = true
	p.commit(ctx, r, PhaseDependencies, strings.Join(res.Files, ", "), "Installed packages: "+list, func() error {
		return r.vcs.Add(ctx, res.Files...)
	})
}

func (p *Processor) reconcile(ctx context.Context, r *run) ([]string, string) {
	paths, err := r.vcs.Uncommitted(ctx)
	if err != nil {
		return nil, err.Error()
	}
	if len(paths) == 0 {
		return nil, ""
	}
	p.logger.Warn("committing changes made outside the pipeline", "app_id", r.app.ID, "paths", paths)
	if err := r.vcs.StageAll(ctx); err != nil {
		return nil, err.Error()
	}
	if _, err := r.vcs.Commit(ctx, ReconcileMessage); err != nil {
		return nil, err.Error()
	}
	return paths, ""
}

// commit stages through stage and commits. VCS failures are warnings.
func (p *Processor) commit(ctx context.Context, r *run, phase Phase, path, message string, stage func() error) {
	if r.vcs == nil {
		return
	}
	if err := stage(); err != nil {
		p.logger.Warn("stage failed", "path", path, "error", err)
		r.journal.Warn(phase, "Staging failed for path: "+path, err)
		return
	}
	if _, err := r.vcs.Commit(ctx, message); err != nil {
		p.logger.Warn("commit failed", "path", path, "error", err)
		r.journal.Warn(phase, "Commit failed for path: "+path, err)
	}
}

func (p *Processor) finalize(ctx context.Context, msg store.Message, r *run, hash string) {
	content := tags.StripTerminalCommands(msg.Content) + r.journal.Annotations()
	err := p.deps.Repo.FinalizeMessage(ctx, msg.ID, store.MessageResult{
		ApprovalState: store.ApprovalApproved,
		CommitHash:    hash,
		Content:       content,
	})
	if err != nil {
		p.logger.Error("finalize message failed", "message_id", msg.ID, "error", err)
	}
}

func scopeName(s tags.Scope) string {
	switch s {
	case tags.ScopeBackend:
		return "Backend"
	case tags.ScopeFrontend:
		return "Frontend"
	default:
		return "General"
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
