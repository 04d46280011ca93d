package domain

import (
	"fmt"
	"time"
)

// Source identifies which write path produced an update. Webhook updates
// win ties against the batch scan because they carry fresher data.
type Source string

const (
	SourceBatch   Source = "batch"
	SourceWebhook Source = "webhook"
)

// Version orders updates for a single entity. Seq is the platform-assigned
// sequence when one exists (message ids are monotonic per deal); entities
// without a sequence compare by event timestamp.
type Version struct {
	Seq int64
	At  time.Time
}

// Compare returns -1, 0 or 1 ordering v against other. Sequences take
// precedence when both sides carry one.
func (v Version) Compare(other Version) int {
	if v.Seq > 0 && other.Seq > 0 {
		switch {
		case v.Seq < other.Seq:
			return -1
		case v.Seq > other.Seq:
			return 1
		}
		return 0
	}
	switch {
	case v.At.Before(other.At):
		return -1
	case v.At.After(other.At):
		return 1
	}
	return 0
}

// ShouldApply implements the monotonic-apply rule: an incoming update is
// applied when it is newer than the recorded one, or equal with the tie
// broken in favour of the webhook path. Re-applying the same version from
// the same source is allowed; the write is idempotent.
func ShouldApply(incoming Version, incomingSource Source, recorded Version, recordedSource Source) bool {
	switch incoming.Compare(recorded) {
	case 1:
		return true
	case -1:
		return false
	}
	if incomingSource == recordedSource {
		return true
	}
	return incomingSource == SourceWebhook
}

// Ledger entity keys. Every writer of the same logical entity must derive
// the key the same way or the arbitration breaks.

func DealKey(externalID string) string {
	return "deal:" + externalID
}

func CustomerKey(externalID string) string {
	return "customer:" + externalID
}

func MessageKey(dealExternalID string, messageID int64) string {
	return fmt.Sprintf("msg:%s:%d", dealExternalID, messageID)
}
