package whatsapp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidPayload is returned for bodies that are not a gateway event.
var ErrInvalidPayload = errors.New("invalid webhook payload")

const (
	EventMessagesUpsert   = "messages.upsert"
	EventConnectionUpdate = "connection.update"
)

var validate = validator.New()

// Event is one parsed webhook delivery: *MessageUpsert, *ConnectionUpdate
// or *Unhandled.
type Event interface {
	EventName() string
	isEvent()
}

// MessageUpsert is a new message received by an instance.
type MessageUpsert struct {
	Instance   string
	InstanceID string
	RemoteJID  string
	FromMe     bool
	ExternalID string
	Text       string
	PushName   string
	Timestamp  time.Time
}

// ConnectionUpdate reports a session connection state change.
type ConnectionUpdate struct {
	Instance   string
	InstanceID string
	State      string
}

// Unhandled is a well-formed event the pipeline does not act on.
type Unhandled struct {
	Event    string
	Instance string
}

func (*MessageUpsert) EventName() string    { return EventMessagesUpsert }
func (*ConnectionUpdate) EventName() string { return EventConnectionUpdate }
func (u *Unhandled) EventName() string      { return u.Event }

func (*MessageUpsert) isEvent()    {}
func (*ConnectionUpdate) isEvent() {}
func (*Unhandled) isEvent()        {}

type envelope struct {
	Event      string          `json:"event" validate:"required"`
	Instance   string          `json:"instance"`
	InstanceID string          `json:"instanceId"`
	Data       json.RawMessage `json:"data"`
}

type messageKey struct {
	RemoteJID string `json:"remoteJid" validate:"required"`
	FromMe    bool   `json:"fromMe"`
	ID        string `json:"id" validate:"required"`
}

type messageData struct {
	Key        messageKey `json:"key"`
	PushName   string     `json:"pushName"`
	InstanceID string     `json:"instanceId"`
	Timestamp  flexInt64  `json:"messageTimestamp"`
	Message    struct {
		Conversation        string `json:"conversation"`
		ExtendedTextMessage struct {
			Text string `json:"text"`
		} `json:"extendedTextMessage"`
		ImageMessage struct {
			Caption string `json:"caption"`
		} `json:"imageMessage"`
		VideoMessage struct {
			Caption string `json:"caption"`
		} `json:"videoMessage"`
	} `json:"message"`
}

type connectionData struct {
	Instance   string `json:"instance"`
	InstanceID string `json:"instanceId"`
	State      string `json:"state"`
}

// ParseEvent decodes an Evolution-style webhook body. Event names are
// matched case-insensitively with "_" treated as "." (MESSAGES_UPSERT).
func ParseEvent(body []byte) (Event, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := validate.Struct(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(env.Event)), "_", ".")

	switch name {
	case EventMessagesUpsert:
		return parseMessageUpsert(env)
	case EventConnectionUpdate:
		return parseConnectionUpdate(env)
	default:
		return &Unhandled{Event: name, Instance: env.Instance}, nil
	}
}

func parseMessageUpsert(env envelope) (*MessageUpsert, error) {
	var data messageData
	if err := decodeFirst(env.Data, &data); err != nil {
		return nil, err
	}
	if err := validate.Struct(&data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	text := data.Message.Conversation
	if text == "" {
		text = data.Message.ExtendedTextMessage.Text
	}
	if text == "" {
		text = data.Message.ImageMessage.Caption
	}
	if text == "" {
		text = data.Message.VideoMessage.Caption
	}

	instanceID := env.InstanceID
	if instanceID == "" {
		instanceID = data.InstanceID
	}

	evt := &MessageUpsert{
		Instance:   env.Instance,
		InstanceID: instanceID,
		RemoteJID:  data.Key.RemoteJID,
		FromMe:     data.Key.FromMe,
		ExternalID: data.Key.ID,
		Text:       strings.TrimSpace(text),
		PushName:   data.PushName,
	}
	if data.Timestamp > 0 {
		evt.Timestamp = time.Unix(int64(data.Timestamp), 0).UTC()
	}
	return evt, nil
}

func parseConnectionUpdate(env envelope) (*ConnectionUpdate, error) {
	var data connectionData
	if err := decodeFirst(env.Data, &data); err != nil {
		return nil, err
	}

	evt := &ConnectionUpdate{
		Instance:   env.Instance,
		InstanceID: env.InstanceID,
		State:      data.State,
	}
	if evt.Instance == "" {
		evt.Instance = data.Instance
	}
	if evt.InstanceID == "" {
		evt.InstanceID = data.InstanceID
	}
	if evt.State == "" {
		return nil, fmt.Errorf("%w: connection.update without state", ErrInvalidPayload)
	}
	return evt, nil
}

// decodeFirst accepts data as an object or as an array of objects (first
// element is used).
func decodeFirst(raw json.RawMessage, out interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fmt.Errorf("%w: missing data", ErrInvalidPayload)
	}

	if raw[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		if len(items) == 0 {
			return fmt.Errorf("%w: empty data array", ErrInvalidPayload)
		}
		raw = items[0]
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// flexInt64 decodes numbers sent either as JSON numbers or strings.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return err
	}
	*f = flexInt64(v)
	return nil
}
