package storage

import (
	"time"

	"craftedge.io/chatsync/internal/core/domain"
)

// messageRecord is the stored form of a message. It carries its own
// version signals (sent-at, edited-at, deleted-at) so the monotonic-apply
// check and the write happen inside one store transaction.
//
// Synthetic marks a record materialized from an edit that arrived before
// its create. The record already holds the edited body; the create, when
// it lands, fills in sender and sent-at without overwriting the newer
// text.
type messageRecord struct {
	domain.Message
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	Synthetic bool       `json:"synthetic,omitempty"`
}

// applyCreate arbitrates an append against whatever is already stored.
// appended reports whether this message now counts as newly present
// (drives the deal counter and the visibility gate).
func applyCreate(existing *messageRecord, msg *domain.Message) (rec *messageRecord, appended bool) {
	if existing == nil {
		return &messageRecord{Message: *msg}, true
	}
	if existing.Deleted {
		// Tombstoned before the create arrived: the create is suppressed.
		return existing, false
	}
	if existing.Synthetic {
		existing.Sender = msg.Sender
		existing.SentAt = msg.SentAt
		existing.Synthetic = false
		return existing, true
	}
	// Redelivery of an already stored create.
	return existing, false
}

func applyEdit(existing *messageRecord, dealExternalID string, messageID int64, newText string, editedAt time.Time) (rec *messageRecord, applied bool) {
	if existing == nil {
		// Edit before create: accept as a synthetic create+edit. The late
		// create backfills metadata without clobbering the newer body.
		return &messageRecord{
			Message: domain.Message{
				DealExternalID: dealExternalID,
				MessageID:      messageID,
				Text:           newText,
				SentAt:         editedAt,
				EditedAt:       &editedAt,
			},
			Synthetic: true,
		}, true
	}
	if existing.Deleted {
		return existing, false
	}
	if existing.EditedAt != nil && !editedAt.After(*existing.EditedAt) {
		return existing, false
	}
	existing.Text = newText
	existing.EditedAt = &editedAt
	return existing, true
}

func applyDelete(existing *messageRecord, dealExternalID string, messageID int64, deletedAt time.Time) (rec *messageRecord, applied bool) {
	if existing == nil {
		// Delete before create: tombstone so the late create is suppressed.
		return &messageRecord{
			Message: domain.Message{
				DealExternalID: dealExternalID,
				MessageID:      messageID,
				Deleted:        true,
			},
			DeletedAt: &deletedAt,
		}, true
	}
	if existing.Deleted {
		return existing, false
	}
	existing.Deleted = true
	existing.Text = ""
	existing.DeletedAt = &deletedAt
	return existing, true
}
