package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUpdate_BusinessMessage(t *testing.T) {
	body := []byte(`{
		"update_id": 101,
		"business_message": {
			"message_id": 55,
			"date": 1716199200,
			"business_connection_id": "conn_A",
			"chat": {"id": 777, "type": "private", "first_name": "Jane", "last_name": "Doe"},
			"from": {"id": 777, "first_name": "Jane", "last_name": "Doe"},
			"text": "Hello!"
		}
	}`)

	upd, err := ParseUpdate(body)
	require.NoError(t, err)

	assert.Equal(t, int64(101), upd.UpdateID)
	assert.Equal(t, KindBusinessMessage, upd.Kind)
	require.NotNil(t, upd.Message)
	assert.Equal(t, "conn_A", upd.Message.ConnectionID)
	assert.Equal(t, int64(777), upd.Message.ChatID)
	assert.Equal(t, int64(55), upd.Message.MessageID)
	assert.Equal(t, "Jane Doe", upd.Message.SenderName)
	assert.Equal(t, "Hello!", upd.Message.Text)
	assert.Equal(t, time.Unix(1716199200, 0).UTC(), upd.Message.Date)
}

func TestParseUpdate_CaptionFallback(t *testing.T) {
	body := []byte(`{
		"update_id": 102,
		"business_message": {
			"message_id": 56,
			"date": 1716199200,
			"business_connection_id": "conn_A",
			"chat": {"id": 777, "type": "private"},
			"caption": "photo caption"
		}
	}`)

	upd, err := ParseUpdate(body)
	require.NoError(t, err)
	assert.Equal(t, "photo caption", upd.Message.Text)
}

func TestParseUpdate_Connection(t *testing.T) {
	body := []byte(`{
		"update_id": 103,
		"business_connection": {
			"id": "conn_B",
			"user": {"id": 42, "first_name": "Mia", "username": "merchant"},
			"date": 1716199200,
			"can_reply": true,
			"is_enabled": true
		}
	}`)

	upd, err := ParseUpdate(body)
	require.NoError(t, err)

	assert.Equal(t, KindBusinessConnection, upd.Kind)
	require.NotNil(t, upd.Connection)
	assert.Equal(t, "conn_B", upd.Connection.ConnectionID)
	assert.Equal(t, int64(42), upd.Connection.UserID)
	assert.True(t, upd.Connection.Enabled)
	assert.True(t, upd.Connection.CanReply)
}

func TestParseUpdate_DeletedMessages(t *testing.T) {
	body := []byte(`{
		"update_id": 104,
		"deleted_business_messages": {
			"business_connection_id": "conn_A",
			"chat": {"id": 777, "type": "private"},
			"message_ids": [55, 56, 57]
		}
	}`)

	upd, err := ParseUpdate(body)
	require.NoError(t, err)

	assert.Equal(t, KindDeletedMessages, upd.Kind)
	require.NotNil(t, upd.Deleted)
	assert.Equal(t, []int64{55, 56, 57}, upd.Deleted.MessageIDs)
}

func TestParseUpdate_EditedMessage(t *testing.T) {
	body := []byte(`{
		"update_id": 105,
		"edited_business_message": {
			"message_id": 55,
			"date": 1716202800,
			"business_connection_id": "conn_A",
			"chat": {"id": 777, "type": "private"},
			"text": "Hello, edited!"
		}
	}`)

	upd, err := ParseUpdate(body)
	require.NoError(t, err)

	assert.Equal(t, KindEditedMessage, upd.Kind)
	require.NotNil(t, upd.Message)
	assert.Equal(t, "Hello, edited!", upd.Message.Text)
}

func TestParseUpdate_UnknownKind(t *testing.T) {
	upd, err := ParseUpdate([]byte(`{"update_id": 106, "poll": {"id": "p1"}}`))
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, upd.Kind)
}

func TestParseUpdate_Malformed(t *testing.T) {
	_, err := ParseUpdate([]byte(`{not json`))
	assert.ErrorIs(t, err, ErrMalformedEvent)

	// Structurally valid but missing the connection id the processor
	// cannot work without.
	_, err = ParseUpdate([]byte(`{
		"update_id": 107,
		"business_message": {"message_id": 1, "date": 1, "chat": {"id": 5}}
	}`))
	assert.ErrorIs(t, err, ErrMalformedEvent)
}

func TestDealExternalID(t *testing.T) {
	assert.Equal(t, "tg_chat_777_conn_A", DealExternalID(777, "conn_A"))
	assert.Equal(t, "tg_42", WebhookCustomerID(42))
}
