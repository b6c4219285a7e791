// Package store persists apps, chats and messages in SQLite.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// Store is the application database.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and syncs the
// schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	gdb, err := gorm.Open(sqlite.Dialector{
		DriverName: "sqlite",
		DSN:        path,
	}, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	for _, pragma := range []string{`PRAGMA journal_mode=WAL;`, `PRAGMA busy_timeout=5000;`} {
		if err := gdb.Exec(pragma).Error; err != nil {
			return nil, err
		}
	}
	if err := gdb.AutoMigrate(&App{}, &Chat{}, &Message{}); err != nil {
		return nil, fmt.Errorf("sync schema: %w", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	return &Store{db: gdb, now: time.Now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error, what string, id int64) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return err
}

// CreateApp inserts app and fills in its id.
func (s *Store) CreateApp(ctx context.Context, app *App) error {
	ts := s.now().Unix()
	app.CreatedAt, app.UpdatedAt = ts, ts
	if app.ChatMode == "" {
		app.ChatMode = "build"
	}
	return s.db.WithContext(ctx).Create(app).Error
}

// GetApp loads one app.
func (s *Store) GetApp(ctx context.Context, id int64) (App, error) {
	var app App
	err := s.db.WithContext(ctx).First(&app, "id = ?", id).Error
	return app, notFound(err, "app", id)
}

// ListApps returns all apps ordered by id.
func (s *Store) ListApps(ctx context.Context) ([]App, error) {
	var apps []App
	err := s.db.WithContext(ctx).Order("id ASC").Find(&apps).Error
	return apps, err
}

// UpdateApp saves every column of app.
func (s *Store) UpdateApp(ctx context.Context, app *App) error {
	app.UpdatedAt = s.now().Unix()
	return s.db.WithContext(ctx).Save(app).Error
}

// RecordBranchSnapshot stores the point in time the app's development
// database branch can be restored to.
func (s *Store) RecordBranchSnapshot(ctx context.Context, appID int64) error {
	res := s.db.WithContext(ctx).Model(&App{}).Where("id = ?", appID).
		Updates(map[string]any{"neon_snapshot_at": s.now().UnixMilli(), "updated_at": s.now().Unix()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("app %d: %w", appID, ErrNotFound)
	}
	return nil
}

// CreateChat opens a new chat for an app.
func (s *Store) CreateChat(ctx context.Context, appID int64, title string) (Chat, error) {
	chat := Chat{AppID: appID, Title: title, CreatedAt: s.now().Unix()}
	err := s.db.WithContext(ctx).Create(&chat).Error
	return chat, err
}

// GetChat loads one chat.
func (s *Store) GetChat(ctx context.Context, id int64) (Chat, error) {
	var chat Chat
	err := s.db.WithContext(ctx).First(&chat, "id = ?", id).Error
	return chat, notFound(err, "chat", id)
}

// AddMessage appends msg to its chat.
func (s *Store) AddMessage(ctx context.Context, msg *Message) error {
	msg.CreatedAt = s.now().Unix()
	if msg.ApprovalState == "" {
		msg.ApprovalState = ApprovalPending
	}
	return s.db.WithContext(ctx).Create(msg).Error
}

// GetMessage loads one message.
func (s *Store) GetMessage(ctx context.Context, id int64) (Message, error) {
	var msg Message
	err := s.db.WithContext(ctx).First(&msg, "id = ?", id).Error
	return msg, notFound(err, "message", id)
}

// ListMessages returns a chat's messages oldest first.
func (s *Store) ListMessages(ctx context.Context, chatID int64) ([]Message, error) {
	var msgs []Message
	err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).Order("id ASC").Find(&msgs).Error
	return msgs, err
}

// MessageResult is what applying a response writes back to its message.
type MessageResult struct {
	ApprovalState string
	CommitHash    string
	Content       string
}

// FinalizeMessage writes the outcome of applying a response in one update.
// An empty CommitHash leaves the stored hash untouched.
func (s *Store) FinalizeMessage(ctx context.Context, id int64, r MessageResult) error {
	updates := map[string]any{
		"approval_state": r.ApprovalState,
		"content":        r.Content,
	}
	if r.CommitHash != "" {
		updates["commit_hash"] = r.CommitHash
	}
	res := s.db.WithContext(ctx).Model(&Message{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("message %d: %w", id, ErrNotFound)
	}
	return nil
}
