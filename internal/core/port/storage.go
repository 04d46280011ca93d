package port

import (
	"context"
	"time"

	"craftedge.io/chatsync/internal/core/domain"
)

// Ledger arbitrates concurrent writes to the same entity. Apply atomically
// checks the monotonic-apply rule against the recorded version and, when
// the incoming version wins, records it. Implementations must make the
// check-and-record a single atomic step so a crash can never leave the
// ledger ahead of the entity write it gates.
type Ledger interface {
	Apply(ctx context.Context, entityKey string, v domain.Version, source domain.Source) (bool, error)
}

// DealsStorage is the relational projection of deals, customers and
// business connections, including the two-phase visibility gate. Upserts
// are gated by the ledger inside the same transaction as the write.
type DealsStorage interface {
	UpsertConnection(ctx context.Context, conn *domain.Connection) error
	GetConnection(ctx context.Context, connectionID string) (*domain.Connection, error)

	// UpsertCustomer creates the customer on first sighting. An existing
	// profile is left untouched. Returns whether a row was created.
	UpsertCustomer(ctx context.Context, customer *domain.Customer, v domain.Version, source domain.Source) (bool, error)
	SetCustomerAvatarKey(ctx context.Context, externalID, avatarKey string) error
	GetCustomer(ctx context.Context, externalID string) (*domain.Customer, error)

	// UpsertDeal writes deal metadata if the ledger accepts the version.
	// Returns whether the write was applied or dropped as stale.
	UpsertDeal(ctx context.Context, deal *domain.Deal, v domain.Version, source domain.Source) (bool, error)
	GetDealByExternalID(ctx context.Context, externalID string) (*domain.Deal, error)
	ListVisibleDeals(ctx context.Context) ([]domain.Deal, error)

	// MarkCustomerSynced and MarkMessageSynced set one half of the
	// visibility gate each and report whether the deal just crossed into
	// the fully-synced state, so the caller can broadcast creation at
	// most once.
	MarkCustomerSynced(ctx context.Context, dealExternalID string) (*domain.Deal, bool, error)
	MarkMessageSynced(ctx context.Context, dealExternalID string, lastMessageID int64, lastMessageAt time.Time, delta int) (*domain.Deal, bool, error)
	AdjustMessageCount(ctx context.Context, dealExternalID string, delta int) error
}

// MessageStore holds message bodies in the document store, keyed by
// (deal external id, message id) and retrievable in ascending message-id
// order. Every mutation enforces the per-message monotonic-apply check
// inside the store's own transaction; the boolean results report whether
// the write was applied or dropped as stale/suppressed.
type MessageStore interface {
	Append(ctx context.Context, msg *domain.Message) (bool, error)
	ApplyEdit(ctx context.Context, dealExternalID string, messageID int64, newText string, editedAt time.Time) (bool, error)
	ApplyDelete(ctx context.Context, dealExternalID string, messageID int64, deletedAt time.Time) (bool, error)
	GetMessage(ctx context.Context, dealExternalID string, messageID int64) (*domain.Message, error)
	ListMessages(ctx context.Context, dealExternalID string) ([]domain.Message, error)
}

// LockStore is the sole arbiter of which process may run a batch sync for
// a scope. At most one holder per scope at any time; expired locks are
// free for the taking.
type LockStore interface {
	Acquire(ctx context.Context, scope, holder string, ttl time.Duration) (bool, error)
	Renew(ctx context.Context, scope, holder string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, scope, holder string) error
}

// CursorStore persists batch sync progress. One active (non-terminal)
// cursor per scope.
type CursorStore interface {
	GetActive(ctx context.Context, scope string) (*domain.SyncCursor, error)
	GetByTaskID(ctx context.Context, taskID string) (*domain.SyncCursor, error)
	Create(ctx context.Context, cursor *domain.SyncCursor) error
	Update(ctx context.Context, cursor *domain.SyncCursor) error
}

// AvatarStore is the object storage holding customer avatars. Uploads are
// queued off the write path and never block sync.
type AvatarStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}
