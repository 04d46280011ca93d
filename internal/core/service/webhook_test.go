package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"craftedge.io/chatsync/internal/core/domain"
	"craftedge.io/chatsync/internal/storage"
)

// recordingNotifier captures published notifications in order.
type recordingNotifier struct {
	mu     sync.Mutex
	events []*domain.Notification
}

func (r *recordingNotifier) record(n *domain.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *n
	r.events = append(r.events, &cp)
	return nil
}

func (r *recordingNotifier) NotifyDealCreated(_ context.Context, n *domain.Notification) error {
	n.Type = domain.NotifyDealCreated
	return r.record(n)
}

func (r *recordingNotifier) NotifyDealUpdated(_ context.Context, n *domain.Notification) error {
	n.Type = domain.NotifyDealUpdated
	return r.record(n)
}

func (r *recordingNotifier) NotifyMessageCreated(_ context.Context, n *domain.Notification) error {
	n.Type = domain.NotifyMessageCreated
	return r.record(n)
}

func (r *recordingNotifier) NotifyMessageEdited(_ context.Context, n *domain.Notification) error {
	n.Type = domain.NotifyMessageEdited
	return r.record(n)
}

func (r *recordingNotifier) NotifyMessagesDeleted(_ context.Context, n *domain.Notification) error {
	n.Type = domain.NotifyMessagesDeleted
	return r.record(n)
}

func (r *recordingNotifier) NotifyConnectionStatus(_ context.Context, n *domain.Notification) error {
	n.Type = domain.NotifyConnection
	return r.record(n)
}

func (r *recordingNotifier) count(t domain.NotificationType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var c int
	for _, e := range r.events {
		if e.Type == t {
			c++
		}
	}
	return c
}

type webhookFixture struct {
	deals    *storage.MemoryDealsStorage
	messages *storage.MemoryMessageStore
	notifier *recordingNotifier
	service  *WebhookService
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	deals := storage.NewMemoryDealsStorage()
	messages := storage.NewMemoryMessageStore()
	notifier := &recordingNotifier{}
	proj := NewProjector(deals, messages, nil, notifier)
	return &webhookFixture{
		deals:    deals,
		messages: messages,
		notifier: notifier,
		service:  NewWebhookService(proj, deals, messages, notifier),
	}
}

func (f *webhookFixture) connect(t *testing.T, connID string, userID int64) {
	t.Helper()
	err := f.service.Handle(context.Background(), &domain.Update{
		Kind: domain.KindBusinessConnection,
		Connection: &domain.ConnectionEvent{
			ConnectionID: connID,
			UserID:       userID,
			Enabled:      true,
			CanReply:     true,
			Date:         time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC),
		},
	})
	require.NoError(t, err)
}

func messageUpdate(connID string, chatID, messageID int64, text string, at time.Time) *domain.Update {
	return &domain.Update{
		Kind: domain.KindBusinessMessage,
		Message: &domain.MessageEvent{
			ConnectionID: connID,
			ChatID:       chatID,
			ChatName:     "Jane Doe",
			MessageID:    messageID,
			SenderID:     chatID,
			SenderName:   "Jane Doe",
			Text:         text,
			Date:         at,
		},
	}
}

func TestWebhook_MessageCreatesVisibleDeal(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t)
	f.connect(t, "conn_A", 42)
	at := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

	require.NoError(t, f.service.Handle(ctx, messageUpdate("conn_A", 777, 1, "Hello!", at)))

	dealID := domain.DealExternalID(777, "conn_A")
	deal, err := f.deals.GetDealByExternalID(ctx, dealID)
	require.NoError(t, err)
	assert.True(t, deal.Visible())
	assert.Equal(t, int64(42), deal.OwnerUserID)
	assert.Equal(t, 1, deal.TotalMessages)

	assert.Equal(t, 1, f.notifier.count(domain.NotifyDealCreated))

	// A second message on a visible deal announces the message, not a new
	// deal.
	require.NoError(t, f.service.Handle(ctx, messageUpdate("conn_A", 777, 2, "More", at.Add(time.Minute))))
	assert.Equal(t, 1, f.notifier.count(domain.NotifyDealCreated))
	assert.Equal(t, 1, f.notifier.count(domain.NotifyMessageCreated))
}

func TestWebhook_RedeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t)
	f.connect(t, "conn_A", 42)
	at := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)
	upd := messageUpdate("conn_A", 777, 1, "Hello!", at)

	require.NoError(t, f.service.Handle(ctx, upd))
	require.NoError(t, f.service.Handle(ctx, upd))

	deal, err := f.deals.GetDealByExternalID(ctx, domain.DealExternalID(777, "conn_A"))
	require.NoError(t, err)
	assert.Equal(t, 1, deal.TotalMessages)
	assert.Equal(t, 1, f.notifier.count(domain.NotifyDealCreated))

	msgs, err := f.messages.ListMessages(ctx, deal.ExternalID)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestWebhook_UnknownConnectionDropped(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t)
	at := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

	err := f.service.Handle(ctx, messageUpdate("conn_missing", 777, 1, "Hello!", at))
	require.NoError(t, err)

	_, err = f.deals.GetDealByExternalID(ctx, domain.DealExternalID(777, "conn_missing"))
	assert.ErrorIs(t, err, domain.ErrDealNotFound)
}

func TestWebhook_UnknownKindIgnored(t *testing.T) {
	f := newWebhookFixture(t)
	err := f.service.Handle(context.Background(), &domain.Update{UpdateID: 9, Kind: domain.KindUnknown})
	assert.NoError(t, err)
}

func TestWebhook_DeleteBeforeCreateSuppressed(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t)
	f.connect(t, "conn_A", 42)
	at := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

	// Deletion outruns the message it deletes.
	require.NoError(t, f.service.Handle(ctx, &domain.Update{
		Kind: domain.KindDeletedMessages,
		Deleted: &domain.DeletedEvent{
			ConnectionID: "conn_A",
			ChatID:       777,
			MessageIDs:   []int64{5},
			Date:         at.Add(time.Second),
		},
	}))

	require.NoError(t, f.service.Handle(ctx, messageUpdate("conn_A", 777, 5, "unsent", at)))

	msgs, err := f.messages.ListMessages(ctx, domain.DealExternalID(777, "conn_A"))
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestWebhook_EditBeforeCreateKeepsEditedBody(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t)
	f.connect(t, "conn_A", 42)
	sentAt := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)
	editedAt := sentAt.Add(time.Minute)
	dealID := domain.DealExternalID(777, "conn_A")

	edit := messageUpdate("conn_A", 777, 3, "edited body", editedAt)
	edit.Kind = domain.KindEditedMessage
	require.NoError(t, f.service.Handle(ctx, edit))

	require.NoError(t, f.service.Handle(ctx, messageUpdate("conn_A", 777, 3, "original body", sentAt)))

	msg, err := f.messages.GetMessage(ctx, dealID, 3)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "edited body", msg.Text)

	deal, err := f.deals.GetDealByExternalID(ctx, dealID)
	require.NoError(t, err)
	assert.Equal(t, 1, deal.TotalMessages)
}

func TestWebhook_StaleEditDoesNotNotify(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t)
	f.connect(t, "conn_A", 42)
	sentAt := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

	require.NoError(t, f.service.Handle(ctx, messageUpdate("conn_A", 777, 1, "v1", sentAt)))

	later := messageUpdate("conn_A", 777, 1, "v3", sentAt.Add(2*time.Minute))
	later.Kind = domain.KindEditedMessage
	require.NoError(t, f.service.Handle(ctx, later))

	earlier := messageUpdate("conn_A", 777, 1, "v2", sentAt.Add(time.Minute))
	earlier.Kind = domain.KindEditedMessage
	require.NoError(t, f.service.Handle(ctx, earlier))

	msg, err := f.messages.GetMessage(ctx, domain.DealExternalID(777, "conn_A"), 1)
	require.NoError(t, err)
	assert.Equal(t, "v3", msg.Text)
	assert.Equal(t, 1, f.notifier.count(domain.NotifyMessageEdited))
}

func TestWebhook_DeleteAdjustsCountAndNotifies(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t)
	f.connect(t, "conn_A", 42)
	at := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

	require.NoError(t, f.service.Handle(ctx, messageUpdate("conn_A", 777, 1, "one", at)))
	require.NoError(t, f.service.Handle(ctx, messageUpdate("conn_A", 777, 2, "two", at.Add(time.Minute))))

	require.NoError(t, f.service.Handle(ctx, &domain.Update{
		Kind: domain.KindDeletedMessages,
		Deleted: &domain.DeletedEvent{
			ConnectionID: "conn_A",
			ChatID:       777,
			MessageIDs:   []int64{1, 2},
			Date:         at.Add(2 * time.Minute),
		},
	}))

	deal, err := f.deals.GetDealByExternalID(ctx, domain.DealExternalID(777, "conn_A"))
	require.NoError(t, err)
	assert.Equal(t, 0, deal.TotalMessages)
	assert.Equal(t, 1, f.notifier.count(domain.NotifyMessagesDeleted))
}

func TestWebhook_ConnectionStatusNotified(t *testing.T) {
	f := newWebhookFixture(t)
	f.connect(t, "conn_A", 42)

	assert.Equal(t, 1, f.notifier.count(domain.NotifyConnection))

	conn, err := f.deals.GetConnection(context.Background(), "conn_A")
	require.NoError(t, err)
	assert.True(t, conn.Enabled)
	require.NotNil(t, conn.ConnectedAt)
}

func TestWebhook_OutgoingMessageKeepsCustomerIdentity(t *testing.T) {
	ctx := context.Background()
	f := newWebhookFixture(t)
	f.connect(t, "conn_A", 42)
	at := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

	// The business account replies: sender is the connection user, the
	// customer stays the chat party.
	upd := messageUpdate("conn_A", 777, 1, "Thanks for reaching out", at)
	upd.Message.SenderID = 42
	upd.Message.SenderName = "Mia Merchant"
	require.NoError(t, f.service.Handle(ctx, upd))

	deal, err := f.deals.GetDealByExternalID(ctx, domain.DealExternalID(777, "conn_A"))
	require.NoError(t, err)
	assert.Equal(t, domain.WebhookCustomerID(777), deal.CustomerExternalID)

	cust, err := f.deals.GetCustomer(ctx, domain.WebhookCustomerID(777))
	require.NoError(t, err)
	require.NotNil(t, cust)
	assert.Equal(t, "Jane Doe", cust.Name)
}
