package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"craftedge.io/chatsync/internal/core/domain"
)

func TestMessageStore_AppendAndListInOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryMessageStore()
	at := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

	// Appends arrive out of id order.
	for _, id := range []int64{3, 1, 2} {
		appended, err := store.Append(ctx, &domain.Message{
			DealExternalID: "deal_1",
			MessageID:      id,
			Text:           "msg",
			SentAt:         at,
		})
		require.NoError(t, err)
		assert.True(t, appended)
	}

	msgs, err := store.ListMessages(ctx, "deal_1")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, int64(1), msgs[0].MessageID)
	assert.Equal(t, int64(2), msgs[1].MessageID)
	assert.Equal(t, int64(3), msgs[2].MessageID)
}

func TestMessageStore_RedeliveryNotCountedTwice(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryMessageStore()
	msg := &domain.Message{DealExternalID: "deal_1", MessageID: 1, Text: "hi", SentAt: time.Now()}

	appended, err := store.Append(ctx, msg)
	require.NoError(t, err)
	assert.True(t, appended)

	appended, err = store.Append(ctx, msg)
	require.NoError(t, err)
	assert.False(t, appended)
}

func TestMessageStore_DeleteBeforeCreateSuppresses(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryMessageStore()
	at := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

	applied, err := store.ApplyDelete(ctx, "deal_1", 9, at)
	require.NoError(t, err)
	assert.True(t, applied)

	// The create that the delete outran must not resurrect the message.
	appended, err := store.Append(ctx, &domain.Message{
		DealExternalID: "deal_1",
		MessageID:      9,
		Text:           "late create",
		SentAt:         at.Add(-time.Minute),
	})
	require.NoError(t, err)
	assert.False(t, appended)

	msgs, err := store.ListMessages(ctx, "deal_1")
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMessageStore_EditBeforeCreateBackfills(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryMessageStore()
	sentAt := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)
	editedAt := sentAt.Add(time.Minute)

	applied, err := store.ApplyEdit(ctx, "deal_1", 4, "edited body", editedAt)
	require.NoError(t, err)
	assert.True(t, applied)

	// The late create counts as the append and fills in metadata without
	// overwriting the newer body.
	appended, err := store.Append(ctx, &domain.Message{
		DealExternalID: "deal_1",
		MessageID:      4,
		Sender:         "customer",
		Text:           "original body",
		SentAt:         sentAt,
	})
	require.NoError(t, err)
	assert.True(t, appended)

	msg, err := store.GetMessage(ctx, "deal_1", 4)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "edited body", msg.Text)
	assert.Equal(t, "customer", msg.Sender)
	assert.Equal(t, sentAt, msg.SentAt)
	require.NotNil(t, msg.EditedAt)
	assert.Equal(t, editedAt, *msg.EditedAt)
}

func TestMessageStore_StaleEditDropped(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryMessageStore()
	sentAt := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

	_, err := store.Append(ctx, &domain.Message{
		DealExternalID: "deal_1", MessageID: 5, Text: "v1", SentAt: sentAt,
	})
	require.NoError(t, err)

	applied, err := store.ApplyEdit(ctx, "deal_1", 5, "v3", sentAt.Add(2*time.Minute))
	require.NoError(t, err)
	assert.True(t, applied)

	// An older edit arriving later must not win.
	applied, err = store.ApplyEdit(ctx, "deal_1", 5, "v2", sentAt.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, applied)

	msg, err := store.GetMessage(ctx, "deal_1", 5)
	require.NoError(t, err)
	assert.Equal(t, "v3", msg.Text)
}

func TestMessageStore_DeleteHidesFromListing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryMessageStore()
	at := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

	for id := int64(1); id <= 3; id++ {
		_, err := store.Append(ctx, &domain.Message{
			DealExternalID: "deal_1", MessageID: id, Text: "m", SentAt: at,
		})
		require.NoError(t, err)
	}

	applied, err := store.ApplyDelete(ctx, "deal_1", 2, at.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, applied)

	// Deleting again is a no-op.
	applied, err = store.ApplyDelete(ctx, "deal_1", 2, at.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, applied)

	msgs, err := store.ListMessages(ctx, "deal_1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, int64(1), msgs[0].MessageID)
	assert.Equal(t, int64(3), msgs[1].MessageID)
}
