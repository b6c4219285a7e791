// Package proxy fronts a running app's dev server with a local reverse
// proxy so the preview URL stays stable across restarts of the app.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"
	"time"
)

type entry struct {
	target string
	addr   string
	srv    *http.Server
}

// Server runs one reverse proxy per app.
type Server struct {
	listenHost string
	logger     *slog.Logger

	mu      sync.Mutex
	proxies map[int64]*entry
}

// New returns a Server binding on host (default 127.0.0.1).
func New(host string, logger *slog.Logger) *Server {
	if host == "" {
		host = "127.0.0.1"
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		listenHost: host,
		logger:     logger.With("component", "proxy"),
		proxies:    make(map[int64]*entry),
	}
}

// Start proxies target for appID and returns the proxy URL. A proxy
// already running for the same target is reused; one for another target is
// replaced.
func (s *Server) Start(ctx context.Context, appID int64, target string) (string, error) {
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid proxy target %q", target)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.proxies[appID]; ok {
		if cur.target == target {
			return "http://" + cur.addr, nil
		}
		s.shutdown(ctx, appID, cur)
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(s.listenHost, "0"))
	if err != nil {
		return "", fmt.Errorf("listen: %w", err)
	}
	rp := httputil.NewSingleHostReverseProxy(u)
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		s.logger.Warn("upstream unavailable", "app_id", appID, "target", target, "error", err)
		http.Error(w, "app is not reachable", http.StatusBadGateway)
	}
	srv := &http.Server{Handler: rp, ReadHeaderTimeout: 10 * time.Second}
	e := &entry{target: target, addr: ln.Addr().String(), srv: srv}
	s.proxies[appID] = e

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("proxy stopped", "app_id", appID, "error", err)
		}
	}()
	s.logger.Info("proxy started", "app_id", appID, "target", target, "addr", e.addr)
	return "http://" + e.addr, nil
}

// Stop shuts down the proxy of appID, if any.
func (s *Server) Stop(ctx context.Context, appID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.proxies[appID]; ok {
		s.shutdown(ctx, appID, cur)
	}
}

// Close stops every proxy.
func (s *Server) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, e := range s.proxies {
		s.shutdown(ctx, id, e)
	}
}

func (s *Server) shutdown(ctx context.Context, appID int64, e *entry) {
	delete(s.proxies, appID)
	if err := e.srv.Shutdown(ctx); err != nil {
		s.logger.Warn("proxy shutdown", "app_id", appID, "error", err)
	}
}
