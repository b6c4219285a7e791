// Package procman tracks the long-running processes started for apps and
// serializes lifecycle operations per app.
package procman

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

const frontendSuffix = "-frontend"

// MainKey is the registry key of an app's primary (or backend) process.
func MainKey(appID int64) string { return strconv.FormatInt(appID, 10) }

// FrontendKey is the registry key of an app's frontend process in a
// fullstack layout.
func FrontendKey(appID int64) string { return MainKey(appID) + frontendSuffix }

// AppKeys returns every key an app may occupy, main first.
func AppKeys(appID int64) []string { return []string{MainKey(appID), FrontendKey(appID)} }

// ErrNotRunning is returned by Stop when no live process holds the key.
var ErrNotRunning = errors.New("process not running")

// Record describes one registered process.
type Record struct {
	Key           string
	AppID         int64
	ProcessID     int64
	Cmd           *exec.Cmd
	Stdin         io.WriteCloser
	Containerized bool
	ContainerName string
	StartedAt     time.Time

	done    chan struct{}
	once    sync.Once
	exitErr error
}

// NewRecord wraps a started command.
func NewRecord(appID int64, key string, cmd *exec.Cmd, stdin io.WriteCloser) *Record {
	return &Record{
		Key:       key,
		AppID:     appID,
		Cmd:       cmd,
		Stdin:     stdin,
		StartedAt: time.Now(),
		done:      make(chan struct{}),
	}
}

// MarkExited records that the process has been reaped. Only the first call
// has an effect.
func (r *Record) MarkExited(err error) {
	r.once.Do(func() {
		r.exitErr = err
		close(r.done)
	})
}

// Done is closed once the process has exited.
func (r *Record) Done() <-chan struct{} { return r.done }

// ExitErr is the error the process exited with, valid after Done.
func (r *Record) ExitErr() error {
	select {
	case <-r.done:
		return r.exitErr
	default:
		return nil
	}
}

// Exited reports whether the process was reaped.
func (r *Record) Exited() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// PID returns the OS pid, or 0 when unknown.
func (r *Record) PID() int {
	if r.Cmd == nil || r.Cmd.Process == nil {
		return 0
	}
	return r.Cmd.Process.Pid
}

// Alive reports whether the process is still running.
func (r *Record) Alive() bool {
	if r.Exited() {
		return false
	}
	pid := r.PID()
	if pid == 0 {
		return false
	}
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

// ContainerStopper stops and removes docker containers.
type ContainerStopper interface {
	Run(ctx context.Context, command, dir string) (string, bool)
}

// Registry maps process keys to running records.
type Registry struct {
	mu      sync.Mutex
	records map[string]*Record
	nextID  atomic.Int64

	docker ContainerStopper
	grace  time.Duration
	logger *slog.Logger
}

// Options configures a Registry.
type Options struct {
	Docker ContainerStopper
	Grace  time.Duration
	Logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.Grace <= 0 {
		opts.Grace = 3 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		records: make(map[string]*Record),
		docker:  opts.Docker,
		grace:   opts.Grace,
		logger:  opts.Logger,
	}
}

// Register stores rec under its key, replacing any previous holder, and
// assigns it the next process id.
func (r *Registry) Register(rec *Record) *Record {
	rec.ProcessID = r.nextID.Add(1)
	r.mu.Lock()
	r.records[rec.Key] = rec
	r.mu.Unlock()
	r.logger.Info("registered process", "key", rec.Key, "process_id", rec.ProcessID, "pid", rec.PID())
	return rec
}

// Get returns the record under key.
func (r *Registry) Get(key string) (*Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	return rec, ok
}

// RemoveIfCurrent deletes key only when it still maps to rec, so a late
// exit notification cannot evict a newer process.
func (r *Registry) RemoveIfCurrent(key string, rec *Record) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.records[key]
	if !ok || cur.ProcessID != rec.ProcessID {
		return false
	}
	delete(r.records, key)
	return true
}

// Running reports whether any process of the app is live. Dead records
// found along the way are pruned.
func (r *Registry) Running(appID int64) bool {
	running := false
	for _, key := range AppKeys(appID) {
		rec, ok := r.Get(key)
		if !ok {
			continue
		}
		if rec.Containerized && !rec.Exited() {
			running = true
			continue
		}
		if rec.Alive() {
			running = true
			continue
		}
		r.RemoveIfCurrent(key, rec)
	}
	return running
}

// Keys returns all registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.records))
	for k := range r.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stop terminates the process under key together with its descendants and
// removes it from the registry. Containerized records are stopped through
// docker.
func (r *Registry) Stop(ctx context.Context, key string) error {
	rec, ok := r.Get(key)
	if !ok {
		return ErrNotRunning
	}
	defer r.RemoveIfCurrent(key, rec)

	if rec.Containerized {
		return r.stopContainer(ctx, rec)
	}
	if rec.Exited() || !rec.Alive() {
		r.logger.Info("process already exited", "key", key, "process_id", rec.ProcessID)
		return nil
	}
	return r.killTree(ctx, rec)
}

func (r *Registry) stopContainer(ctx context.Context, rec *Record) error {
	if rec.ContainerName == "" || r.docker == nil {
		return fmt.Errorf("stop container for %s: no container runtime", rec.Key)
	}
	r.logger.Info("stopping container", "key", rec.Key, "container", rec.ContainerName)
	r.docker.Run(ctx, "docker stop "+rec.ContainerName, "")
	r.docker.Run(ctx, "docker rm "+rec.ContainerName, "")
	if rec.PID() != 0 && !rec.Exited() {
		_ = rec.Cmd.Process.Kill()
	}
	return nil
}

// killTree sends SIGTERM to the process and every descendant, waits for
// the grace period, then kills whatever is left.
func (r *Registry) killTree(ctx context.Context, rec *Record) error {
	root, err := process.NewProcessWithContext(ctx, int32(rec.PID()))
	if err != nil {
		return fmt.Errorf("stop %s: %w", rec.Key, err)
	}
	tree := append(descendants(ctx, root), root)

	var errs []string
	for _, p := range tree {
		if err := p.TerminateWithContext(ctx); err != nil && !isGone(ctx, p) {
			errs = append(errs, err.Error())
		}
	}

	timer := time.NewTimer(r.grace)
	defer timer.Stop()
	select {
	case <-rec.Done():
	case <-timer.C:
	case <-ctx.Done():
	}

	for _, p := range tree {
		if !isGone(ctx, p) {
			_ = p.KillWithContext(ctx)
		}
	}
	r.logger.Info("stopped process", "key", rec.Key, "process_id", rec.ProcessID, "tree_size", len(tree))
	if len(errs) > 0 {
		r.logger.Warn("terminate reported errors", "key", rec.Key, "errors", strings.Join(errs, "; "))
	}
	return nil
}

// descendants lists every child of p, deepest first.
func descendants(ctx context.Context, p *process.Process) []*process.Process {
	children, err := p.ChildrenWithContext(ctx)
	if err != nil {
		return nil
	}
	var out []*process.Process
	for _, c := range children {
		out = append(out, descendants(ctx, c)...)
		out = append(out, c)
	}
	return out
}

func isGone(ctx context.Context, p *process.Process) bool {
	running, err := p.IsRunningWithContext(ctx)
	return err != nil || !running
}
