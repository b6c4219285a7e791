// Package vcs wraps the git repository of an app. Every operation is
// time-boxed.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// DefaultTimeout bounds each repository operation.
const DefaultTimeout = 30 * time.Second

// ErrTimeout is returned when an operation exceeds its time box.
var ErrTimeout = errors.New("git operation timed out")

// Options configures a Repo.
type Options struct {
	Timeout     time.Duration
	AuthorName  string
	AuthorEmail string
	// Init creates the repository when dir is not one yet.
	Init bool
}

// Repo is a git working tree rooted at an app directory.
type Repo struct {
	dir     string
	repo    *git.Repository
	opts    Options
	mu      sync.Mutex
	nowFunc func() time.Time
}

// Open opens the repository at dir.
func Open(dir string, opts Options) (*Repo, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.AuthorName == "" {
		opts.AuthorName = "Octo"
	}
	if opts.AuthorEmail == "" {
		opts.AuthorEmail = "octo@localhost"
	}

	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) && opts.Init {
		repo, err = git.PlainInit(dir, false)
	}
	if err != nil {
		return nil, fmt.Errorf("open repository %s: %w", dir, err)
	}
	return &Repo{dir: dir, repo: repo, opts: opts, nowFunc: time.Now}, nil
}

// Dir returns the working tree root.
func (r *Repo) Dir() string { return r.dir }

type result[T any] struct {
	val T
	err error
}

// timed runs fn under the repo lock, giving up after the configured
// timeout. A timed-out fn keeps the lock until it returns and its result
// is discarded.
func timed[T any](ctx context.Context, r *Repo, op string, fn func(*git.Worktree) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		wt, err := r.repo.Worktree()
		if err != nil {
			done <- result[T]{err: err}
			return
		}
		v, err := fn(wt)
		done <- result[T]{val: v, err: err}
	}()

	var zero T
	select {
	case res := <-done:
		if res.err != nil {
			return res.val, fmt.Errorf("%s: %w", op, res.err)
		}
		return res.val, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("%s: %w", op, ErrTimeout)
		}
		return zero, fmt.Errorf("%s: %w", op, ctx.Err())
	}
}

// Add stages paths (relative to the app root). Paths missing from the
// working tree are staged as deletions. Untracked paths matched by a
// .gitignore are skipped.
func (r *Repo) Add(ctx context.Context, paths ...string) error {
	_, err := timed(ctx, r, "git add", func(wt *git.Worktree) (struct{}, error) {
		ignored, err := r.ignoreMatcher(wt)
		if err != nil {
			return struct{}{}, err
		}
		for _, p := range paths {
			p = filepath.ToSlash(filepath.Clean(filepath.FromSlash(p)))
			if r.isIgnored(ignored, p) {
				continue
			}
			if _, err := wt.Add(p); err != nil {
				return struct{}{}, fmt.Errorf("%s: %w", p, err)
			}
		}
		return struct{}{}, nil
	})
	return err
}

func (r *Repo) ignoreMatcher(wt *git.Worktree) (gitignore.Matcher, error) {
	patterns, err := gitignore.ReadPatterns(wt.Filesystem, nil)
	if err != nil {
		return nil, fmt.Errorf("read ignore patterns: %w", err)
	}
	return gitignore.NewMatcher(append(patterns, wt.Excludes...)), nil
}

// isIgnored reports whether p matches an ignore pattern and is not already
// tracked.
func (r *Repo) isIgnored(m gitignore.Matcher, p string) bool {
	info, err := os.Stat(filepath.Join(r.dir, filepath.FromSlash(p)))
	isDir := err == nil && info.IsDir()
	if !m.Match(strings.Split(p, "/"), isDir) {
		return false
	}
	idx, err := r.repo.Storer.Index()
	if err != nil {
		return true
	}
	_, err = idx.Entry(p)
	return err != nil
}

// Remove stages the removal of path and everything tracked beneath it.
// Untracked paths are ignored.
func (r *Repo) Remove(ctx context.Context, path string) error {
	path = filepath.ToSlash(filepath.Clean(path))
	_, err := timed(ctx, r, "git rm", func(wt *git.Worktree) (struct{}, error) {
		idx, err := r.repo.Storer.Index()
		if err != nil {
			return struct{}{}, err
		}
		var tracked []string
		for _, e := range idx.Entries {
			if e.Name == path || strings.HasPrefix(e.Name, path+"/") {
				tracked = append(tracked, e.Name)
			}
		}
		for _, name := range tracked {
			if _, err := wt.Remove(name); err != nil {
				return struct{}{}, fmt.Errorf("%s: %w", name, err)
			}
		}
		return struct{}{}, nil
	})
	return err
}

// StageAll stages every change in the working tree, deletions included.
func (r *Repo) StageAll(ctx context.Context) error {
	_, err := timed(ctx, r, "git add -A", func(wt *git.Worktree) (struct{}, error) {
		status, err := wt.Status()
		if err != nil {
			return struct{}{}, err
		}
		for name, st := range status {
			if st.Worktree == git.Unmodified {
				continue
			}
			if st.Worktree == git.Deleted {
				if _, err := wt.Remove(name); err != nil {
					return struct{}{}, fmt.Errorf("%s: %w", name, err)
				}
				continue
			}
			if _, err := wt.Add(name); err != nil {
				return struct{}{}, fmt.Errorf("%s: %w", name, err)
			}
		}
		return struct{}{}, nil
	})
	return err
}

// Commit records the staged changes and returns the new commit hash. With
// nothing staged it returns the current HEAD without committing.
func (r *Repo) Commit(ctx context.Context, message string) (string, error) {
	return timed(ctx, r, "git commit", func(wt *git.Worktree) (string, error) {
		status, err := wt.Status()
		if err != nil {
			return "", err
		}
		if !hasStaged(status) {
			return r.head()
		}
		h, err := wt.Commit(message, &git.CommitOptions{
			Author: &object.Signature{
				Name:  r.opts.AuthorName,
				Email: r.opts.AuthorEmail,
				When:  r.nowFunc(),
			},
		})
		if err != nil {
			return "", err
		}
		return h.String(), nil
	})
}

// Head returns the hash HEAD points at, or "" for an empty repository.
func (r *Repo) Head(ctx context.Context) (string, error) {
	return timed(ctx, r, "git rev-parse HEAD", func(*git.Worktree) (string, error) {
		return r.head()
	})
}

func (r *Repo) head() (string, error) {
	ref, err := r.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return ref.Hash().String(), nil
}

// Uncommitted lists paths with staged or unstaged changes, untracked
// files included, in sorted order.
func (r *Repo) Uncommitted(ctx context.Context) ([]string, error) {
	return timed(ctx, r, "git status", func(wt *git.Worktree) ([]string, error) {
		status, err := wt.Status()
		if err != nil {
			return nil, err
		}
		var paths []string
		for name, st := range status {
			if st.Staging != git.Unmodified || st.Worktree != git.Unmodified {
				paths = append(paths, name)
			}
		}
		sort.Strings(paths)
		return paths, nil
	})
}

// Commit is one entry of the history.
type Commit struct {
	Hash    string
	Message string
	When    time.Time
}

// Log returns up to n commits reachable from HEAD, newest first.
func (r *Repo) Log(ctx context.Context, n int) ([]Commit, error) {
	return timed(ctx, r, "git log", func(*git.Worktree) ([]Commit, error) {
		if h, err := r.head(); err != nil || h == "" {
			return nil, err
		}
		iter, err := r.repo.Log(&git.LogOptions{})
		if err != nil {
			return nil, err
		}
		defer iter.Close()
		var out []Commit
		for len(out) < n {
			c, err := iter.Next()
			if err != nil {
				break
			}
			out = append(out, Commit{
				Hash:    c.Hash.String(),
				Message: strings.TrimSpace(c.Message),
				When:    c.Author.When,
			})
		}
		return out, nil
	})
}

func hasStaged(status git.Status) bool {
	for _, st := range status {
		if st.Staging != git.Unmodified && st.Staging != git.Untracked {
			return true
		}
	}
	return false
}
