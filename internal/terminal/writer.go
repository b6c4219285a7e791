package terminal

import (
	"bytes"
	"io"
	"sync"
)

// LineWriter is an io.Writer that splits its input into lines. OnLine
// receives every complete line without the newline; OnPartial, when set,
// sees the pending unterminated tail after each write (prompts usually
// arrive without a trailing newline).
type LineWriter struct {
	OnLine    func(line string)
	OnPartial func(pending string) bool

	mu     sync.Mutex
	buffer []byte
}

// Write implements io.Writer.
func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buffer = append(w.buffer, p...)
	for {
		idx := bytes.IndexByte(w.buffer, '\n')
		if idx < 0 {
			break
		}
		line := string(bytes.TrimSuffix(w.buffer[:idx], []byte("\r")))
		w.buffer = w.buffer[idx+1:]
		if line != "" && w.OnLine != nil {
			w.OnLine(line)
		}
	}

	// A consumed partial is dropped so it is not reported twice.
	if len(w.buffer) > 0 && w.OnPartial != nil && w.OnPartial(string(w.buffer)) {
		w.buffer = w.buffer[:0]
	}
	return len(p), nil
}

// Flush emits any unterminated remainder as a line.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.buffer) > 0 {
		line := string(w.buffer)
		w.buffer = w.buffer[:0]
		if w.OnLine != nil {
			w.OnLine(line)
		}
	}
}

// Writer returns a line writer that routes every line of output to the
// app's scope log with severity sev.
func (r *Router) Writer(appID int64, scope Scope, sev Severity) *LineWriter {
	return &LineWriter{
		OnLine: func(line string) { r.Route(appID, scope, line, sev) },
	}
}

var _ io.Writer = (*LineWriter)(nil)
