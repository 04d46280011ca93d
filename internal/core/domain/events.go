package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// EventKind is the closed set of platform callback kinds this service
// understands. Unknown kinds are preserved as KindUnknown so the processor
// can log and drop them instead of failing.
type EventKind string

const (
	KindBusinessConnection EventKind = "business_connection"
	KindBusinessMessage    EventKind = "business_message"
	KindEditedMessage      EventKind = "edited_business_message"
	KindDeletedMessages    EventKind = "deleted_business_messages"
	KindUnknown            EventKind = "unknown"
)

// Update is a normalized platform callback. Exactly one of the payload
// fields matching Kind is non-nil.
type Update struct {
	UpdateID   int64
	Kind       EventKind
	Connection *ConnectionEvent
	Message    *MessageEvent
	Deleted    *DeletedEvent
}

// ConnectionEvent is a business_connection update: a bot being linked to
// or unlinked from a business account.
type ConnectionEvent struct {
	ConnectionID string
	UserID       int64
	Username     string
	FirstName    string
	LastName     string
	CanReply     bool
	Enabled      bool
	Date         time.Time
}

// MessageEvent covers business_message and edited_business_message.
type MessageEvent struct {
	ConnectionID string
	ChatID       int64
	ChatName     string
	MessageID    int64
	SenderID     int64
	SenderName   string
	Text         string
	Date         time.Time
}

// DeletedEvent is a deleted_business_messages update.
type DeletedEvent struct {
	ConnectionID string
	ChatID       int64
	MessageIDs   []int64
	Date         time.Time
}

// DealExternalID derives the deal key for a webhook chat. Both the message
// and deletion paths must agree on this derivation.
func DealExternalID(chatID int64, connectionID string) string {
	return fmt.Sprintf("tg_chat_%d_%s", chatID, connectionID)
}

// WebhookCustomerID derives the customer key for a platform user.
func WebhookCustomerID(userID int64) string {
	return fmt.Sprintf("tg_%d", userID)
}

type rawUser struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	IsBot     bool   `json:"is_bot"`
}

func (u rawUser) displayName() string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

type rawChat struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

type rawConnection struct {
	ID        string  `json:"id"`
	User      rawUser `json:"user"`
	UserChat  int64   `json:"user_chat_id"`
	Date      int64   `json:"date"`
	CanReply  bool    `json:"can_reply"`
	IsEnabled bool    `json:"is_enabled"`
}

type rawMessage struct {
	MessageID    int64    `json:"message_id"`
	Date         int64    `json:"date"`
	Chat         rawChat  `json:"chat"`
	From         *rawUser `json:"from"`
	Text         string   `json:"text"`
	Caption      string   `json:"caption"`
	ConnectionID string   `json:"business_connection_id"`
}

type rawDeleted struct {
	ConnectionID string  `json:"business_connection_id"`
	Chat         rawChat `json:"chat"`
	MessageIDs   []int64 `json:"message_ids"`
	Date         int64   `json:"date"`
}

type rawUpdate struct {
	UpdateID   int64          `json:"update_id"`
	Connection *rawConnection `json:"business_connection"`
	Message    *rawMessage    `json:"business_message"`
	Edited     *rawMessage    `json:"edited_business_message"`
	Deleted    *rawDeleted    `json:"deleted_business_messages"`
}

// ParseUpdate turns a raw platform callback body into a normalized Update.
// It has no side effects. Payloads that are not valid JSON objects return
// ErrMalformedEvent; valid envelopes carrying an unrecognized event kind
// return an Update with KindUnknown.
func ParseUpdate(body []byte) (*Update, error) {
	var raw rawUpdate
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	upd := &Update{UpdateID: raw.UpdateID, Kind: KindUnknown}

	switch {
	case raw.Connection != nil:
		upd.Kind = KindBusinessConnection
		upd.Connection = &ConnectionEvent{
			ConnectionID: raw.Connection.ID,
			UserID:       raw.Connection.User.ID,
			Username:     raw.Connection.User.Username,
			FirstName:    raw.Connection.User.FirstName,
			LastName:     raw.Connection.User.LastName,
			CanReply:     raw.Connection.CanReply,
			Enabled:      raw.Connection.IsEnabled,
			Date:         time.Unix(raw.Connection.Date, 0).UTC(),
		}
	case raw.Message != nil:
		upd.Kind = KindBusinessMessage
		upd.Message = normalizeMessage(raw.Message)
	case raw.Edited != nil:
		upd.Kind = KindEditedMessage
		upd.Message = normalizeMessage(raw.Edited)
	case raw.Deleted != nil:
		upd.Kind = KindDeletedMessages
		upd.Deleted = &DeletedEvent{
			ConnectionID: raw.Deleted.ConnectionID,
			ChatID:       raw.Deleted.Chat.ID,
			MessageIDs:   raw.Deleted.MessageIDs,
			Date:         time.Unix(raw.Deleted.Date, 0).UTC(),
		}
	}

	if upd.Kind == KindBusinessConnection && upd.Connection.ConnectionID == "" {
		return nil, fmt.Errorf("%w: business_connection without id", ErrMalformedEvent)
	}
	if upd.Message != nil && upd.Message.ConnectionID == "" {
		return nil, fmt.Errorf("%w: message without business_connection_id", ErrMalformedEvent)
	}
	if upd.Deleted != nil && upd.Deleted.ConnectionID == "" {
		return nil, fmt.Errorf("%w: deletion without business_connection_id", ErrMalformedEvent)
	}

	return upd, nil
}

func normalizeMessage(raw *rawMessage) *MessageEvent {
	ev := &MessageEvent{
		ConnectionID: raw.ConnectionID,
		ChatID:       raw.Chat.ID,
		ChatName:     rawUser{FirstName: raw.Chat.FirstName, LastName: raw.Chat.LastName}.displayName(),
		MessageID:    raw.MessageID,
		Text:         raw.Text,
		Date:         time.Unix(raw.Date, 0).UTC(),
	}
	if ev.Text == "" {
		ev.Text = raw.Caption
	}
	if raw.From != nil {
		ev.SenderID = raw.From.ID
		ev.SenderName = raw.From.displayName()
	} else {
		ev.SenderID = raw.Chat.ID
		ev.SenderName = rawUser{FirstName: raw.Chat.FirstName, LastName: raw.Chat.LastName}.displayName()
	}
	return ev
}

// ChatCustomer is the customer profile embedded in a batch API record.
type ChatCustomer struct {
	ExternalID string `json:"id"`
	Name       string `json:"name"`
	AvatarURL  string `json:"avatar_url"`
}

// ChatMessage is the last message embedded in a batch API record.
type ChatMessage struct {
	ID     int64     `json:"id"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"created_at"`
}

// ChatRecord is one conversation as reported by the external chat API.
type ChatRecord struct {
	ExternalID  string       `json:"id"`
	OwnerUserID int64        `json:"owner_user_id"`
	Customer    ChatCustomer `json:"customer"`
	LastMessage ChatMessage  `json:"last_message"`
	Sender      string       `json:"sender,omitempty"`
}

// ChatPage is one page of the external API's cursor-paginated listing.
type ChatPage struct {
	Chats      []ChatRecord `json:"items"`
	NextCursor string       `json:"next_cursor"`
	HasMore    bool         `json:"has_more"`
}
