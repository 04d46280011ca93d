package domain

import (
	"time"
)

// Customer is an external contact profile. Shared by reference between
// deals, never duplicated.
type Customer struct {
	ID         int64
	ExternalID string
	Name       string
	AvatarURL  string
	AvatarKey  string // set once the avatar has been copied into object storage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Avatar returns the stored avatar reference when available, falling back
// to the original platform URL until the async upload completes.
func (c *Customer) Avatar() string {
	if c.AvatarKey != "" {
		return c.AvatarKey
	}
	return c.AvatarURL
}

// Deal is a tracked conversation between a user and a customer. A deal is
// externally visible only once both sync flags are set.
type Deal struct {
	ID                 int64
	ExternalID         string
	CustomerExternalID string
	OwnerUserID        int64
	LastMessageID      int64
	LastMessageAt      time.Time
	TotalMessages      int
	CustomerSynced     bool
	LastMessageSynced  bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Visible reports whether the deal may be returned by read APIs.
func (d *Deal) Visible() bool {
	return d.CustomerSynced && d.LastMessageSynced
}

// Message is a single chat message stored in the document store, keyed by
// (deal external id, message id). Message ids are platform-assigned and
// monotonically increasing per deal.
type Message struct {
	DealExternalID string     `json:"deal_id"`
	MessageID      int64      `json:"message_id"`
	Sender         string     `json:"sender,omitempty"`
	Text           string     `json:"text"`
	SentAt         time.Time  `json:"sent_at"`
	EditedAt       *time.Time `json:"edited_at,omitempty"`
	Deleted        bool       `json:"deleted,omitempty"`
}

// Connection maps a platform business account to an internal user. Created
// and updated by business_connection webhook events.
type Connection struct {
	ConnectionID string
	UserID       int64
	Username     string
	FirstName    string
	LastName     string
	CanReply     bool
	Enabled      bool
	ConnectedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type SyncStatus string

const (
	SyncPending   SyncStatus = "pending"
	SyncRunning   SyncStatus = "running"
	SyncCompleted SyncStatus = "completed"
	SyncFailed    SyncStatus = "failed"
)

// Terminal reports whether the cursor can no longer be resumed.
func (s SyncStatus) Terminal() bool {
	return s == SyncCompleted || s == SyncFailed
}

// SyncCursor persists batch sync progress per scope so an interrupted run
// can resume from the last checkpointed page token.
type SyncCursor struct {
	Scope          string
	TaskID         string
	Status         SyncStatus
	PageToken      string
	LastExternalID string
	MaxDate        *time.Time
	Processed      int
	Pages          int
	ErrorMessage   string
	StartedAt      time.Time
	UpdatedAt      time.Time
}

// SyncResult summarises a completed batch sync run.
type SyncResult struct {
	TaskID    string        `json:"task_id"`
	Processed int           `json:"processed"`
	Pages     int           `json:"pages"`
	Resumed   bool          `json:"resumed"`
	Duration  time.Duration `json:"duration"`
}
