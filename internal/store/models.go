package store

// App is a generated application living under the apps directory.
type App struct {
	ID                int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Name              string `gorm:"column:name;not null;default:''"`
	Path              string `gorm:"column:path;not null;uniqueIndex"`
	InstallCommand    string `gorm:"column:install_command;not null;default:''"`
	StartCommand      string `gorm:"column:start_command;not null;default:''"`
	ChatMode          string `gorm:"column:chat_mode;not null;default:'build'"`
	SupabaseProjectID string `gorm:"column:supabase_project_id;not null;default:''"`
	NeonProjectID     string `gorm:"column:neon_project_id;not null;default:''"`
	NeonDevBranchID   string `gorm:"column:neon_development_branch_id;not null;default:''"`
	NeonSnapshotAt    int64  `gorm:"column:neon_snapshot_at;not null;default:0"`
	CreatedAt         int64  `gorm:"column:created_at;not null;default:0"`
	UpdatedAt         int64  `gorm:"column:updated_at;not null;default:0"`
}

func (App) TableName() string { return "apps" }

// HasNeonBranch reports whether a development database branch is linked.
func (a App) HasNeonBranch() bool { return a.NeonProjectID != "" && a.NeonDevBranchID != "" }

type Chat struct {
	ID        int64  `gorm:"column:id;primaryKey;autoIncrement"`
	AppID     int64  `gorm:"column:app_id;not null;index"`
	Title     string `gorm:"column:title;not null;default:''"`
	CreatedAt int64  `gorm:"column:created_at;not null;default:0"`
}

func (Chat) TableName() string { return "chats" }

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"

	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

type Message struct {
	ID            int64  `gorm:"column:id;primaryKey;autoIncrement"`
	ChatID        int64  `gorm:"column:chat_id;not null;index"`
	Role          string `gorm:"column:role;not null"`
	Content       string `gorm:"column:content;not null;default:''"`
	ApprovalState string `gorm:"column:approval_state;not null;default:'pending'"`
	CommitHash    string `gorm:"column:commit_hash;not null;default:''"`
	CreatedAt     int64  `gorm:"column:created_at;not null;default:0"`
}

func (Message) TableName() string { return "messages" }
