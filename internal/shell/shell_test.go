package shell

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestRun(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX shell syntax")
	}
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "marker.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	r := NewRunner(nil)
	tests := []struct {
		name    string
		command string
		wantOut string
		wantOK  bool
	}{
		{"trimmed stdout", "printf '  hello \\n\\n'", "hello", true},
		{"runs in dir", "ls", "marker.txt", true},
		{"stderr alone is not failure", "echo oops >&2; echo fine", "fine", true},
		{"nonzero exit", "echo partial; exit 3", "", false},
		{"missing binary", "definitely-not-a-real-binary-octo", "", false},
		{"stdin is closed", "cat", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, ok := r.Run(context.Background(), tt.command, dir)
			if out != tt.wantOut || ok != tt.wantOK {
				t.Errorf("Run(%q) = (%q, %v), want (%q, %v)", tt.command, out, ok, tt.wantOut, tt.wantOK)
			}
		})
	}
}

func TestRunHonorsContext(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX shell syntax")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, ok := NewRunner(nil).Run(ctx, "sleep 5", t.TempDir())
	if ok {
		t.Error("expected cancelled command to fail")
	}
	if time.Since(start) > 3*time.Second {
		t.Errorf("expected cancellation to stop the command early, took %v", time.Since(start))
	}
}

func TestRunMissingDir(t *testing.T) {
	_, ok := NewRunner(nil).Run(context.Background(), "echo hi", filepath.Join(t.TempDir(), "nope"))
	if ok {
		t.Error("expected failure for missing working directory")
	}
}
