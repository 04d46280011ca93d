package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"craftedge.io/chatsync/internal/core/domain"
)

// HTTPChatAPI talks to the external chat platform's REST listing:
//
//	GET {base}/api/v1/chats?cursor={cursor}
//
// The platform reports message ids as opaque strings ("msg_555"); they are
// reduced to their numeric component because ordering and idempotency
// decisions compare them as sequence numbers.
type HTTPChatAPI struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPChatAPI(baseURL, token string) *HTTPChatAPI {
	return &HTTPChatAPI{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type wireMessage struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type wireCustomer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

type wireChat struct {
	ID          string       `json:"id"`
	OwnerUserID int64        `json:"owner_user_id"`
	Customer    wireCustomer `json:"customer"`
	LastMessage wireMessage  `json:"last_message"`
	Sender      string       `json:"sender"`
}

type wirePage struct {
	Items      []wireChat `json:"items"`
	NextCursor string     `json:"next_cursor"`
	HasMore    bool       `json:"has_more"`
}

func (c *HTTPChatAPI) GetChats(ctx context.Context, cursor string) (*domain.ChatPage, error) {
	endpoint := c.baseURL + "/api/v1/chats"
	if cursor != "" {
		endpoint += "?cursor=" + url.QueryEscape(cursor)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build chats request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chats request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("chat API returned status %d: %s", resp.StatusCode, string(body))
	}

	var wire wirePage
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode chats page: %w", err)
	}

	page := &domain.ChatPage{
		Chats:      make([]domain.ChatRecord, 0, len(wire.Items)),
		NextCursor: wire.NextCursor,
		HasMore:    wire.HasMore,
	}
	for _, item := range wire.Items {
		msgID, err := ParseMessageID(item.LastMessage.ID)
		if err != nil {
			return nil, fmt.Errorf("chat %s: %w", item.ID, err)
		}
		page.Chats = append(page.Chats, domain.ChatRecord{
			ExternalID:  item.ID,
			OwnerUserID: item.OwnerUserID,
			Customer: domain.ChatCustomer{
				ExternalID: item.Customer.ID,
				Name:       item.Customer.Name,
				AvatarURL:  item.Customer.AvatarURL,
			},
			LastMessage: domain.ChatMessage{
				ID:     msgID,
				Text:   item.LastMessage.Text,
				SentAt: item.LastMessage.CreatedAt,
			},
			Sender: item.Sender,
		})
	}
	return page, nil
}

// ParseMessageID extracts the numeric component of a platform message id.
// Accepts both bare numbers ("555") and prefixed ids ("msg_555").
func ParseMessageID(id string) (int64, error) {
	s := id
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		s = s[i+1:]
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable message id %q: %w", id, err)
	}
	return n, nil
}
