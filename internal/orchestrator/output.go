package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/harshul/octo-studio/internal/terminal"
)

// ProxyMarkerPrefix starts the line announcing a ready app.
const ProxyMarkerPrefix = "[octo-proxy-server]"

var (
	// Dev-server banners carrying the URL the app listens on, most
	// specific first.
	readyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`Local:\s+(https?://localhost:\d+/?)`),
		regexp.MustCompile(`Server running at\s+(https?://\S+)`),
		regexp.MustCompile(`App is running on\s+(https?://\S+)`),
		regexp.MustCompile(`Development server started.*?(https?://\S+)`),
		regexp.MustCompile(`(https?://localhost:\d+/?)`),
	}
	inputPromptRe = regexp.MustCompile(`\s*›\s*\([yY]/[nN]\)\s*$`)
)

// DetectURL returns the first ready URL in line.
func DetectURL(line string) (string, bool) {
	for _, re := range readyPatterns {
		if m := re.FindStringSubmatch(line); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// IsInputPrompt reports whether line asks for a yes/no answer.
func IsInputPrompt(line string) bool {
	return inputPromptRe.MatchString(line)
}

// ProxyMarker formats the readiness announcement.
func ProxyMarker(proxyURL, original string) string {
	return fmt.Sprintf("%sstarted=[%s] original=[%s]", ProxyMarkerPrefix, proxyURL, original)
}

// bridge turns one process's output into terminal lines and events.
type bridge struct {
	e     *Engine
	appID int64
	key   string
	scope terminal.Scope
	sess  *session
}

func (b *bridge) stdoutWriter() *terminal.LineWriter {
	return &terminal.LineWriter{
		OnLine: func(line string) { b.line(line, true) },
		OnPartial: func(pending string) bool {
			clean := ansi.Strip(pending)
			if !IsInputPrompt(clean) {
				return false
			}
			b.inputRequested(clean)
			return true
		},
	}
}

func (b *bridge) stderrWriter() *terminal.LineWriter {
	return &terminal.LineWriter{
		OnLine: func(line string) { b.line(line, false) },
	}
}

func (b *bridge) line(raw string, stdout bool) {
	clean := strings.TrimRight(ansi.Strip(raw), " \t\r")
	if strings.TrimSpace(clean) == "" {
		return
	}
	if !stdout {
		b.e.deps.Terminal.Route(b.appID, b.scope, clean, terminal.SeverityError)
		return
	}
	if IsInputPrompt(clean) {
		b.inputRequested(clean)
		return
	}
	b.e.deps.Terminal.Route(b.appID, b.scope, clean, terminal.SeverityOutput)
	if url, ok := DetectURL(clean); ok {
		b.e.ready(b.appID, b.sess, url)
	}
}

func (b *bridge) inputRequested(prompt string) {
	b.e.mu.Lock()
	b.sess.promptKey, b.sess.promptScope = b.key, b.scope
	b.e.mu.Unlock()
	b.e.deps.Terminal.RouteInputRequest(b.appID, b.scope, strings.TrimSpace(prompt))
	b.e.publish(Event{Kind: EventInputRequested, AppID: b.appID, RunID: b.sess.runID, Key: b.key, Message: strings.TrimSpace(prompt)})
}

// ready handles the first URL of a run: it stops the watchdog, starts the
// proxy, announces the marker and publishes EventReady.
func (e *Engine) ready(appID int64, sess *session, url string) {
	e.mu.Lock()
	if sess.ready || e.sessions[appID] != sess {
		e.mu.Unlock()
		return
	}
	sess.ready = true
	if sess.timer != nil {
		sess.timer.Stop()
	}
	e.mu.Unlock()

	proxyURL := url
	if e.deps.Proxy != nil {
		pu, err := e.deps.Proxy.Start(context.Background(), appID, url)
		if err != nil {
			e.logger.Warn("proxy start failed", "app_id", appID, "target", url, "error", err)
		} else {
			proxyURL = pu
		}
	}
	e.deps.Terminal.Route(appID, terminal.ScopeMain, ProxyMarker(proxyURL, url), terminal.SeverityOutput)
	e.logger.Info("app ready", "app_id", appID, "run_id", sess.runID, "url", url, "proxy", proxyURL)
	e.publish(Event{Kind: EventReady, AppID: appID, RunID: sess.runID, URL: url, ProxyURL: proxyURL})
}
