package processor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/harshul/octo-studio/internal/supabase"
	"github.com/harshul/octo-studio/internal/tags"
)

// applyFiles runs deletes, renames, then writes and search/replace edits
// interleaved in the order they appear in the response.
func (p *Processor) applyFiles(ctx context.Context, r *run, parsed tags.Parsed) {
	for _, d := range parsed.Deletes {
		p.deletePath(ctx, r, d.Path)
	}
	for _, rn := range parsed.Renames {
		p.renamePath(ctx, r, rn.From, rn.To)
	}
	for _, a := range parsed.All {
		switch v := a.(type) {
		case tags.WriteFile:
			p.writeFile(ctx, r, v.Path, v.Content)
		case tags.SearchReplace:
			p.searchReplace(ctx, r, v)
		}
	}
}

func (p *Processor) resolve(r *run, rel string) (string, string, bool) {
	full, err := safeJoin(r.dir, rel)
	if err != nil {
		r.journal.Error(PhaseFiles, "Rejected path outside the app: "+rel, err)
		return "", "", false
	}
	return full, filepath.ToSlash(filepath.Clean(filepath.FromSlash(rel))), true
}

func (p *Processor) deletePath(ctx context.Context, r *run, rel string) {
	full, rel, ok := p.resolve(r, rel)
	if !ok {
		return
	}
	if _, err := os.Lstat(full); errors.Is(err, fs.ErrNotExist) {
		p.logger.Warn("file to delete does not exist", "app_id", r.app.ID, "path", rel)
		r.journal.Warn(PhaseFiles, "File to delete does not exist: "+rel, nil)
		return
	}
	if err := os.RemoveAll(full); err != nil {
		r.journal.Error(PhaseFiles, "Failed to delete file: "+rel, err)
		return
	}
	r.changed = true
	p.commit(ctx, r, PhaseFiles, rel, "Deleted file: "+rel, func() error { return r.vcs.Remove(ctx, rel) })

	if supabase.IsServerFunction(rel) {
		p.deleteFunction(ctx, r, rel)
	}
}

func (p *Processor) renamePath(ctx context.Context, r *run, from, to string) {
	fromFull, from, ok := p.resolve(r, from)
	if !ok {
		return
	}
	toFull, to, ok := p.resolve(r, to)
	if !ok {
		return
	}
	if _, err := os.Lstat(fromFull); errors.Is(err, fs.ErrNotExist) {
		p.logger.Warn("file to rename does not exist", "app_id", r.app.ID, "path", from)
		r.journal.Warn(PhaseFiles, "File to rename does not exist: "+from, nil)
		return
	}
	if err := os.MkdirAll(filepath.Dir(toFull), 0o755); err != nil {
		r.journal.Error(PhaseFiles, "Failed to create directory for: "+to, err)
		return
	}
	if err := os.Rename(fromFull, toFull); err != nil {
		r.journal.Error(PhaseFiles, fmt.Sprintf("Failed to rename file: %s -> %s", from, to), err)
		return
	}
	r.changed = true
	p.commit(ctx, r, PhaseFiles, to, fmt.Sprintf("Renamed file: %s -> %s", from, to), func() error {
		if err := r.vcs.Add(ctx, to); err != nil {
			return err
		}
		return r.vcs.Remove(ctx, from)
	})

	if supabase.IsServerFunction(from) && supabase.FunctionName(from) != supabase.FunctionName(to) {
		p.deleteFunction(ctx, r, from)
	}
	if supabase.IsServerFunction(to) {
		p.deployFunction(ctx, r, to)
	}
}

func (p *Processor) writeFile(ctx context.Context, r *run, rel, content string) {
	full, rel, ok := p.resolve(r, rel)
	if !ok {
		return
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		r.journal.Error(PhaseFiles, "Failed to create directory for: "+rel, err)
		return
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		r.journal.Error(PhaseFiles, "Failed to write file: "+rel, err)
		return
	}
	r.changed = true
	p.commit(ctx, r, PhaseFiles, rel, "Wrote file: "+rel, func() error { return r.vcs.Add(ctx, rel) })

	if supabase.IsServerFunction(rel) {
		p.deployFunction(ctx, r, rel)
	}
}

func (p *Processor) searchReplace(ctx context.Context, r *run, sr tags.SearchReplace) {
	full, rel, ok := p.resolve(r, sr.Path)
	if !ok {
		return
	}
	data, err := os.ReadFile(full)
	if err != nil {
		p.logger.Warn("search/replace target missing", "app_id", r.app.ID, "path", rel, "error", err)
		r.journal.Warn(PhaseFiles, "File not found for search_replace: "+rel, nil)
		return
	}
	content := string(data)
	if sr.Old == "" || !strings.Contains(content, sr.Old) {
		r.journal.Warn(PhaseFiles, "Search string not found in file: "+rel, nil)
		return
	}
	updated := strings.Replace(content, sr.Old, sr.New, 1)
	if err := os.WriteFile(full, []byte(updated), 0o644); err != nil {
		r.journal.Error(PhaseFiles, "Failed to write file: "+rel, err)
		return
	}
	r.changed = true
	p.commit(ctx, r, PhaseFiles, rel, "Applied search_replace to: "+rel, func() error { return r.vcs.Add(ctx, rel) })

	if supabase.IsServerFunction(rel) {
		p.deployFunction(ctx, r, rel)
	}
}

// deployFunction uploads the function's entry point. When index.ts is
// missing the changed file itself is deployed.
func (p *Processor) deployFunction(ctx context.Context, r *run, rel string) {
	if p.deps.Functions == nil || r.app.SupabaseProjectID == "" {
		return
	}
	name := supabase.FunctionName(rel)
	entry := path.Join("supabase/functions", name, "index.ts")
	source, err := os.ReadFile(filepath.Join(r.dir, filepath.FromSlash(entry)))
	if err != nil {
		source, err = os.ReadFile(filepath.Join(r.dir, filepath.FromSlash(rel)))
	}
	if err == nil {
		err = p.deps.Functions.DeployFunction(ctx, r.app.SupabaseProjectID, name, string(source))
	}
	if err != nil {
		r.journal.Error(PhaseFiles, "Failed to deploy Supabase function: "+name, err)
	}
}

func (p *Processor) deleteFunction(ctx context.Context, r *run, rel string) {
	if p.deps.Functions == nil || r.app.SupabaseProjectID == "" {
		return
	}
	name := supabase.FunctionName(rel)
	if err := p.deps.Functions.DeleteFunction(ctx, r.app.SupabaseProjectID, name); err != nil {
		r.journal.Error(PhaseFiles, "Failed to delete Supabase function: "+name, err)
	}
}
