package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Layouts accepted for server timestamps. Values without a zone are UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
}

func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}

	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

type wireTime struct {
	time.Time
}

func (w *wireTime) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}

	t, err := ParseTime(s)
	if err != nil {
		return err
	}

	w.Time = t
	return nil
}

// wireId accepts an id sent as a JSON string or number.
type wireId string

func (w *wireId) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err == nil {
		*w = wireId(n.String())
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*w = wireId(s)
	return nil
}

// UnmarshalJSON reads the message id from "message_id" when present and
// from "id" otherwise.
func (m *Message) UnmarshalJSON(b []byte) error {
	type alias Message
	aux := struct {
		*alias
		Id        wireId    `json:"id"`
		MessageId wireId    `json:"message_id"`
		CreatedAt wireTime  `json:"created_at"`
		EditedAt  *wireTime `json:"edited_at"`
	}{alias: (*alias)(m)}

	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	m.Id = string(aux.Id)
	if aux.MessageId != "" {
		m.Id = string(aux.MessageId)
	}
	m.CreatedAt = aux.CreatedAt.Time
	if aux.EditedAt != nil && !aux.EditedAt.IsZero() {
		t := aux.EditedAt.Time
		m.EditedAt = &t
	}

	return nil
}

func (r *Room) UnmarshalJSON(b []byte) error {
	type alias Room
	aux := struct {
		*alias
		CreatedAt    wireTime `json:"created_at"`
		LastActivity wireTime `json:"last_activity"`
	}{alias: (*alias)(r)}

	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	r.CreatedAt = aux.CreatedAt.Time
	r.LastActivity = aux.LastActivity.Time
	return nil
}

func (d *RoomDetail) UnmarshalJSON(b []byte) error {
	if err := json.Unmarshal(b, &d.Room); err != nil {
		return err
	}

	var aux struct {
		Members []RoomMember `json:"members"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	d.Members = aux.Members
	return nil
}
