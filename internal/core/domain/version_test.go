package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestShouldApply_SequenceOrdering(t *testing.T) {
	base := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

	newer := Version{Seq: 8, At: base}
	older := Version{Seq: 7, At: base.Add(time.Hour)}

	// Sequences take precedence over timestamps when both sides carry one.
	assert.True(t, ShouldApply(newer, SourceBatch, older, SourceWebhook))
	assert.False(t, ShouldApply(older, SourceWebhook, newer, SourceBatch))
}

func TestShouldApply_TimestampFallback(t *testing.T) {
	base := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)

	recorded := Version{At: base}
	incoming := Version{Seq: 5, At: base.Add(time.Minute)}

	// The recorded side has no sequence, so timestamps decide.
	assert.True(t, ShouldApply(incoming, SourceBatch, recorded, SourceBatch))
	assert.False(t, ShouldApply(Version{At: base.Add(-time.Minute)}, SourceBatch, recorded, SourceBatch))
}

func TestShouldApply_WebhookWinsTies(t *testing.T) {
	base := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)
	v := Version{Seq: 7, At: base}

	assert.True(t, ShouldApply(v, SourceWebhook, v, SourceBatch))
	assert.False(t, ShouldApply(v, SourceBatch, v, SourceWebhook))
}

func TestShouldApply_SameSourceReapply(t *testing.T) {
	v := Version{Seq: 7, At: time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)}

	assert.True(t, ShouldApply(v, SourceBatch, v, SourceBatch))
	assert.True(t, ShouldApply(v, SourceWebhook, v, SourceWebhook))
}

func TestEntityKeys(t *testing.T) {
	assert.Equal(t, "deal:tg_chat_5_conn", DealKey("tg_chat_5_conn"))
	assert.Equal(t, "customer:tg_9", CustomerKey("tg_9"))
	assert.Equal(t, "msg:tg_chat_5_conn:12", MessageKey("tg_chat_5_conn", 12))
}
