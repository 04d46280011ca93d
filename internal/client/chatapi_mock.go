package client

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"craftedge.io/chatsync/internal/core/domain"
)

// MockChatAPI generates a deterministic cursor-paginated chat listing for
// local development and tests. Cursors are base64-encoded page numbers.
// Records are ordered newest first, one hour apart, so incremental and
// max-date stop conditions behave predictably.
type MockChatAPI struct {
	TotalChats  int
	PageSize    int
	FailureRate float64
	BaseDate    time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

func NewMockChatAPI(totalChats, pageSize int) *MockChatAPI {
	return &MockChatAPI{
		TotalChats: totalChats,
		PageSize:   pageSize,
		BaseDate:   time.Date(2024, 5, 20, 12, 0, 0, 0, time.UTC),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (m *MockChatAPI) GetChats(_ context.Context, cursor string) (*domain.ChatPage, error) {
	if m.FailureRate > 0 {
		m.mu.Lock()
		fail := m.rng.Float64() < m.FailureRate
		m.mu.Unlock()
		if fail {
			return nil, fmt.Errorf("simulated chat API failure")
		}
	}

	pageNum := decodeCursor(cursor)
	start := pageNum * m.PageSize
	end := start + m.PageSize
	if end > m.TotalChats {
		end = m.TotalChats
	}
	if start > end {
		start = end
	}

	page := &domain.ChatPage{Chats: make([]domain.ChatRecord, 0, end-start)}
	for i := start; i < end; i++ {
		page.Chats = append(page.Chats, m.chatAt(i))
	}

	page.HasMore = end < m.TotalChats
	if page.HasMore {
		page.NextCursor = encodeCursor(pageNum + 1)
	}
	return page, nil
}

func (m *MockChatAPI) chatAt(index int) domain.ChatRecord {
	customerID := fmt.Sprintf("cust_%04d", index)
	return domain.ChatRecord{
		ExternalID:  fmt.Sprintf("chat_%04d", index),
		OwnerUserID: int64(100 + index%5),
		Customer: domain.ChatCustomer{
			ExternalID: customerID,
			Name:       fmt.Sprintf("Customer %d", index),
			AvatarURL:  fmt.Sprintf("https://example.com/avatars/%s.jpg", customerID),
		},
		LastMessage: domain.ChatMessage{
			ID:     int64(index + 1),
			Text:   fmt.Sprintf("Message from customer %d", index),
			SentAt: m.BaseDate.Add(-time.Duration(index) * time.Hour),
		},
		Sender: "customer",
	}
}

func decodeCursor(cursor string) int {
	if cursor == "" {
		return 0
	}
	raw, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0
	}
	n, err := strconv.Atoi(string(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func encodeCursor(pageNum int) string {
	return base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(pageNum)))
}
