package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "octo.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenCreatesTables(t *testing.T) {
	s := openTestStore(t)
	for _, table := range []string{"apps", "chats", "messages"} {
		var name string
		if err := s.db.Raw(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name).Error; err != nil || name != table {
			t.Errorf("missing table %s: %v", table, err)
		}
	}
}

func TestAppChatMessageLifecycle(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	s.now = func() time.Time { return time.UnixMilli(1_700_000_000_123) }

	app := &App{Name: "todo", Path: "/apps/todo", NeonProjectID: "p1", NeonDevBranchID: "b1"}
	if err := s.CreateApp(ctx, app); err != nil {
		t.Fatalf("CreateApp failed: %v", err)
	}
	if app.ID == 0 || app.ChatMode != "build" {
		t.Errorf("unexpected app after create: %#v", app)
	}

	chat, err := s.CreateChat(ctx, app.ID, "first")
	if err != nil {
		t.Fatalf("CreateChat failed: %v", err)
	}
	msg := &Message{ChatID: chat.ID, Role: RoleAssistant, Content: "hello"}
	if err := s.AddMessage(ctx, msg); err != nil {
		t.Fatalf("AddMessage failed: %v", err)
	}

	if err := s.FinalizeMessage(ctx, msg.ID, MessageResult{
		ApprovalState: ApprovalApproved,
		CommitHash:    "abc123",
		Content:       "hello\n<dyad-output type=\"warning\" message=\"x\"></dyad-output>",
	}); err != nil {
		t.Fatalf("FinalizeMessage failed: %v", err)
	}
	got, err := s.GetMessage(ctx, msg.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ApprovalState != ApprovalApproved || got.CommitHash != "abc123" {
		t.Errorf("unexpected message %#v", got)
	}

	// Empty hash keeps the previous one.
	if err := s.FinalizeMessage(ctx, msg.ID, MessageResult{ApprovalState: ApprovalApproved, Content: got.Content}); err != nil {
		t.Fatal(err)
	}
	if again, _ := s.GetMessage(ctx, msg.ID); again.CommitHash != "abc123" {
		t.Errorf("expected commit hash to be kept, got %q", again.CommitHash)
	}

	if err := s.RecordBranchSnapshot(ctx, app.ID); err != nil {
		t.Fatalf("RecordBranchSnapshot failed: %v", err)
	}
	loaded, _ := s.GetApp(ctx, app.ID)
	if loaded.NeonSnapshotAt != 1_700_000_000_123 || !loaded.HasNeonBranch() {
		t.Errorf("unexpected app after snapshot: %#v", loaded)
	}
}

func TestNotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if _, err := s.GetApp(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for app, got %v", err)
	}
	if _, err := s.GetChat(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for chat, got %v", err)
	}
	if err := s.FinalizeMessage(ctx, 99, MessageResult{ApprovalState: ApprovalApproved}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for message, got %v", err)
	}
	if err := s.RecordBranchSnapshot(ctx, 99); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for snapshot, got %v", err)
	}
}
