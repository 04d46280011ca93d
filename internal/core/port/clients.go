package port

import (
	"context"

	"craftedge.io/chatsync/internal/core/domain"
)

// ChatAPIClient pages through the external chat platform's conversation
// listing. An empty cursor requests the first page.
type ChatAPIClient interface {
	GetChats(ctx context.Context, cursor string) (*domain.ChatPage, error)
}

// NotifierClient publishes confirmed state transitions for realtime
// fan-out. Publishing is best effort from the caller's point of view:
// failures are logged, never allowed to fail the write that triggered
// them.
type NotifierClient interface {
	NotifyDealCreated(ctx context.Context, n *domain.Notification) error
	NotifyDealUpdated(ctx context.Context, n *domain.Notification) error
	NotifyMessageCreated(ctx context.Context, n *domain.Notification) error
	NotifyMessageEdited(ctx context.Context, n *domain.Notification) error
	NotifyMessagesDeleted(ctx context.Context, n *domain.Notification) error
	NotifyConnectionStatus(ctx context.Context, n *domain.Notification) error
}
