package ports

import (
	"context"
	"net"
	"os"
	"strings"
	"testing"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to get a test port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestIsPortAvailable(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("Failed to get a test port: %v", err)
	}
	defer ln.Close()
	blockedPort := ln.Addr().(*net.TCPAddr).Port

	if IsPortAvailable(blockedPort) {
		t.Errorf("IsPortAvailable(%d) = true while it is listened on", blockedPort)
	}
}

func TestListenerPIDsFindsSelf(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	pids, err := ListenerPIDs(context.Background(), port)
	if err != nil {
		t.Skipf("connection listing unavailable: %v", err)
	}
	found := false
	for _, pid := range pids {
		if pid == int32(os.Getpid()) {
			found = true
		}
	}
	if !found {
		t.Errorf("expected own pid %d among listeners %v", os.Getpid(), pids)
	}
}

func TestCleanUpSparesSelf(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	c := NewCleaner(Options{Grace: 1})
	if err := c.CleanUp(context.Background(), port); err != nil {
		t.Fatalf("CleanUp failed: %v", err)
	}
	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("own listener should survive cleanup: %v", err)
	}
	conn.Close()
}

type fakeDocker struct {
	commands []string
	ps       string
}

func (f *fakeDocker) Run(_ context.Context, command, _ string) (string, bool) {
	f.commands = append(f.commands, command)
	if strings.HasPrefix(command, "docker ps") {
		return f.ps, true
	}
	return "", true
}

func TestCleanUpStopsPublishingContainers(t *testing.T) {
	docker := &fakeDocker{ps: "abc123\ndef456"}
	c := NewCleaner(Options{Docker: docker})
	port := freePort(t)

	if err := c.CleanUp(context.Background(), port); err != nil {
		t.Fatalf("CleanUp failed: %v", err)
	}
	got := strings.Join(docker.commands, "|")
	for _, want := range []string{"--filter publish=", "docker stop abc123", "docker stop def456"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in commands %q", want, got)
		}
	}
}
