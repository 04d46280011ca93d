package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"craftedge.io/chatsync/internal/core/domain"
)

func notification(userID int64, messageID int64) *domain.Notification {
	return &domain.Notification{
		Type:       domain.NotifyMessageCreated,
		UserID:     userID,
		MessageID:  messageID,
		OccurredAt: time.Now().UTC(),
	}
}

func TestHub_FanOutPerUser(t *testing.T) {
	hub := NewHub()

	ch1, cancel1 := hub.Subscribe(42)
	defer cancel1()
	ch2, cancel2 := hub.Subscribe(42)
	defer cancel2()
	other, cancelOther := hub.Subscribe(99)
	defer cancelOther()

	hub.Publish(notification(42, 1))

	for _, ch := range []<-chan *domain.Notification{ch1, ch2} {
		select {
		case n := <-ch:
			assert.Equal(t, int64(1), n.MessageID)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive notification")
		}
	}

	select {
	case <-other:
		t.Fatal("notification leaked to another user's subscriber")
	default:
	}
}

func TestHub_UnsubscribeClosesChannel(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe(42)
	assert.Equal(t, 1, hub.Subscribers(42))

	cancel()
	assert.Equal(t, 0, hub.Subscribers(42))

	_, open := <-ch
	assert.False(t, open)

	// Publishing after the last unsubscribe is a no-op.
	hub.Publish(notification(42, 1))

	// Cancel is safe to call twice.
	cancel()
}

func TestHub_SlowSubscriberDropsOldest(t *testing.T) {
	hub := NewHub()

	ch, cancel := hub.Subscribe(42)
	defer cancel()

	// Overfill the buffer without draining.
	for i := 0; i < subscriberBuffer+5; i++ {
		hub.Publish(notification(42, int64(i)))
	}

	// The oldest notifications were dropped; the newest survive and the
	// channel holds exactly one buffer's worth.
	require.Len(t, ch, subscriberBuffer)
	first := <-ch
	assert.Equal(t, int64(5), first.MessageID)
}
