package whatsapp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventMessageUpsert(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantText string
		wantID   string
	}{
		{
			name: "object data with conversation",
			body: `{"event":"messages.upsert","instance":"acme-1","data":{"key":{"remoteJid":"628111@s.whatsapp.net","fromMe":false,"id":"A1"},"pushName":"Budi","message":{"conversation":"  Hello  "},"messageTimestamp":1700000000,"instanceId":"inst-1"}}`,
			wantText: "Hello",
			wantID:   "inst-1",
		},
		{
			name:     "array data with extended text",
			body:     `{"event":"MESSAGES_UPSERT","instance":"acme-1","instanceId":"top","data":[{"key":{"remoteJid":"628111@s.whatsapp.net","id":"A1"},"message":{"extendedTextMessage":{"text":"reply"}},"messageTimestamp":"1700000000"}]}`,
			wantText: "reply",
			wantID:   "top",
		},
		{
			name:     "image caption",
			body:     `{"event":"messages.upsert","instance":"acme-1","data":{"key":{"remoteJid":"628111@s.whatsapp.net","id":"A1"},"message":{"imageMessage":{"caption":"price?"}}}}`,
			wantText: "price?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, err := ParseEvent([]byte(tt.body))
			require.NoError(t, err)

			msg, ok := evt.(*MessageUpsert)
			require.True(t, ok)
			assert.Equal(t, EventMessagesUpsert, msg.EventName())
			assert.Equal(t, "acme-1", msg.Instance)
			assert.Equal(t, tt.wantID, msg.InstanceID)
			assert.Equal(t, "628111@s.whatsapp.net", msg.RemoteJID)
			assert.Equal(t, "A1", msg.ExternalID)
			assert.Equal(t, tt.wantText, msg.Text)
		})
	}
}

func TestParseEventTimestamp(t *testing.T) {
	evt, err := ParseEvent([]byte(`{"event":"messages.upsert","data":{"key":{"remoteJid":"1@s.whatsapp.net","id":"X","fromMe":true},"messageTimestamp":1700000000}}`))
	require.NoError(t, err)
	msg := evt.(*MessageUpsert)
	assert.True(t, msg.FromMe)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), msg.Timestamp)
}

func TestParseEventConnectionUpdate(t *testing.T) {
	evt, err := ParseEvent([]byte(`{"event":"connection.update","instance":"acme-1","data":{"state":"open","statusReason":200}}`))
	require.NoError(t, err)

	cu, ok := evt.(*ConnectionUpdate)
	require.True(t, ok)
	assert.Equal(t, "acme-1", cu.Instance)
	assert.Equal(t, "open", cu.State)
}

func TestParseEventUnhandled(t *testing.T) {
	evt, err := ParseEvent([]byte(`{"event":"presence.update","instance":"acme-1","data":{}}`))
	require.NoError(t, err)

	u, ok := evt.(*Unhandled)
	require.True(t, ok)
	assert.Equal(t, "presence.update", u.EventName())
}

func TestParseEventInvalid(t *testing.T) {
	bodies := map[string]string{
		"empty":                 ``,
		"not json":              `{{{`,
		"missing event":         `{"instance":"x","data":{}}`,
		"upsert without data":   `{"event":"messages.upsert"}`,
		"upsert missing key id": `{"event":"messages.upsert","data":{"key":{"remoteJid":"1@s.whatsapp.net"}}}`,
		"upsert missing jid":    `{"event":"messages.upsert","data":{"key":{"id":"A"}}}`,
		"upsert empty array":    `{"event":"messages.upsert","data":[]}`,
		"connection no state":   `{"event":"connection.update","data":{}}`,
		"bad timestamp":         `{"event":"messages.upsert","data":{"key":{"remoteJid":"1@s.whatsapp.net","id":"A"},"messageTimestamp":"soon"}}`,
	}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			evt, err := ParseEvent([]byte(body))
			assert.Nil(t, evt)
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func TestNormalizeNumber(t *testing.T) {
	tests := map[string]string{
		"628111@s.whatsapp.net":    "628111",
		"628111:12@s.whatsapp.net": "628111",
		"628111@c.us":              "628111",
		"+628111":                  "628111",
		"1203630@g.us":             "1203630@g.us",
		"":                         "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeNumber(in), in)
	}
}
