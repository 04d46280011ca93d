package realtime

import (
	"sync"

	log "github.com/sirupsen/logrus"

	"craftedge.io/chatsync/internal/core/domain"
)

// subscriberBuffer bounds each subscriber's queue. A client that cannot
// keep up loses its oldest notifications; it re-fetches current state over
// the read API, so dropped frames are recoverable.
const subscriberBuffer = 32

type subscriber struct {
	userID int64
	ch     chan *domain.Notification
}

// Hub fans notifications out to the websocket subscribers of the owning
// user. Publishing never blocks on a slow client.
type Hub struct {
	mu   sync.RWMutex
	subs map[int64]map[*subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[int64]map[*subscriber]struct{})}
}

// Subscribe registers a listener for one user's notification stream and
// returns the receive channel plus an unsubscribe func. The channel is
// closed on unsubscribe.
func (h *Hub) Subscribe(userID int64) (<-chan *domain.Notification, func()) {
	sub := &subscriber{
		userID: userID,
		ch:     make(chan *domain.Notification, subscriberBuffer),
	}

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*subscriber]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], sub)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers the notification to every subscriber of its user. When
// a subscriber's buffer is full the oldest queued notification is dropped
// to make room.
func (h *Hub) Publish(n *domain.Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[n.UserID] {
		select {
		case sub.ch <- n:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- n:
			default:
				log.WithField("user_id", n.UserID).Warn("Dropped notification for slow subscriber")
			}
		}
	}
}

// Subscribers reports the number of active listeners for a user.
func (h *Hub) Subscribers(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
