package payment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// flexibleID decodes an identifier sent either as a JSON string or a number.
type flexibleID string

func (f *flexibleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexibleID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexibleID(n.String())
	return nil
}

// Notification is a decoded gateway notification. The gateway sends either
// {"data":{"id":...}} or a bare {"id":...} depending on the topic.
type Notification struct {
	DataID string
	TopID  string
	Type   string
	Action string
}

// PaymentID returns the id to reconcile; data.id wins over the top-level id.
func (n Notification) PaymentID() string {
	if n.DataID != "" {
		return n.DataID
	}
	return n.TopID
}

type notificationWire struct {
	ID     flexibleID `json:"id"`
	Type   string     `json:"type"`
	Topic  string     `json:"topic"`
	Action string     `json:"action"`
	Data   *struct {
		ID flexibleID `json:"id"`
	} `json:"data"`
}

// ParseNotification decodes a notification body. Query parameters (data.id,
// id, type, topic) fill whatever the body leaves empty. A notification that
// yields no payment id fails with ErrInvalidPayload.
func ParseNotification(body []byte, query url.Values) (Notification, error) {
	var n Notification
	if len(bytes.TrimSpace(body)) > 0 {
		var wire notificationWire
		if err := json.Unmarshal(body, &wire); err != nil {
			if query.Get("data.id") == "" && query.Get("id") == "" {
				return Notification{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
			}
		} else {
			n.TopID = string(wire.ID)
			if wire.Data != nil {
				n.DataID = string(wire.Data.ID)
			}
			n.Type = firstNonEmpty(wire.Type, wire.Topic)
			n.Action = wire.Action
		}
	}
	if n.DataID == "" {
		n.DataID = strings.TrimSpace(query.Get("data.id"))
	}
	if n.TopID == "" {
		n.TopID = strings.TrimSpace(query.Get("id"))
	}
	if n.Type == "" {
		n.Type = firstNonEmpty(query.Get("type"), query.Get("topic"))
	}
	if n.PaymentID() == "" {
		return Notification{}, ErrInvalidPayload
	}
	return n, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
