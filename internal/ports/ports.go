// Package ports frees the port an app is about to listen on.
package ports

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// AppPort is the port every app's dev server is started on.
const AppPort = 32100

// IsPortAvailable checks if a port is available for binding
func IsPortAvailable(port int) bool {
	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return false
	}
	listener.Close()
	return true
}

// ListenerPIDs returns the pids of processes listening on port.
func ListenerPIDs(ctx context.Context, port int) ([]int32, error) {
	conns, err := psnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, err
	}
	seen := make(map[int32]bool)
	var pids []int32
	for _, c := range conns {
		if c.Status != "LISTEN" || c.Laddr.Port != uint32(port) || c.Pid <= 0 || seen[c.Pid] {
			continue
		}
		seen[c.Pid] = true
		pids = append(pids, c.Pid)
	}
	return pids, nil
}

// CommandRunner runs docker commands.
type CommandRunner interface {
	Run(ctx context.Context, command, dir string) (string, bool)
}

// Options configures a Cleaner.
type Options struct {
	// Docker, when set, is used to stop containers publishing the port.
	Docker CommandRunner
	Grace  time.Duration
	Logger *slog.Logger
}

// Cleaner stops whatever holds a port.
type Cleaner struct {
	docker CommandRunner
	grace  time.Duration
	logger *slog.Logger
	self   int32
}

func NewCleaner(opts Options) *Cleaner {
	if opts.Grace <= 0 {
		opts.Grace = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Cleaner{
		docker: opts.Docker,
		grace:  opts.Grace,
		logger: opts.Logger.With("component", "ports"),
		self:   int32(os.Getpid()),
	}
}

// CleanUp stops containers publishing port and terminates host processes
// listening on it. The calling process is never touched.
func (c *Cleaner) CleanUp(ctx context.Context, port int) error {
	if c.docker != nil {
		c.stopContainers(ctx, port)
	}
	if IsPortAvailable(port) {
		return nil
	}

	pids, err := ListenerPIDs(ctx, port)
	if err != nil {
		return fmt.Errorf("list listeners on %d: %w", port, err)
	}
	for _, pid := range pids {
		if pid == c.self {
			continue
		}
		p, err := process.NewProcessWithContext(ctx, pid)
		if err != nil {
			continue
		}
		c.logger.Info("terminating process holding port", "port", port, "pid", pid)
		_ = p.TerminateWithContext(ctx)
	}

	deadline := time.Now().Add(c.grace)
	for time.Now().Before(deadline) && !IsPortAvailable(port) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	for _, pid := range pids {
		if pid == c.self {
			continue
		}
		if p, err := process.NewProcessWithContext(ctx, pid); err == nil {
			if running, _ := p.IsRunningWithContext(ctx); running {
				c.logger.Warn("killing process holding port", "port", port, "pid", pid)
				_ = p.KillWithContext(ctx)
			}
		}
	}
	return nil
}

func (c *Cleaner) stopContainers(ctx context.Context, port int) {
	out, ok := c.docker.Run(ctx, fmt.Sprintf("docker ps -q --filter publish=%d", port), "")
	if !ok {
		return
	}
	for _, id := range strings.Fields(out) {
		c.logger.Info("stopping container publishing port", "port", port, "container", id)
		c.docker.Run(ctx, "docker stop "+id, "")
	}
}
