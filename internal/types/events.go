/* Copyright © 2026 Mike Brown. All Rights Reserved.
 *
 * See LICENSE file at the root of this package for license terms
 */
package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// EventType is the wire discriminator carried in every frame's "type" field.
type EventType string

const (
	EventSectionStart EventType = "section_start"
	EventSectionEnd   EventType = "section_end"
	EventLog          EventType = "log"
	EventResult       EventType = "result"
	EventToken        EventType = "token"
	EventDone         EventType = "done"
	EventError        EventType = "error"
	EventTitleUpdated EventType = "title_updated"
	EventMetadata     EventType = "metadata"
)

var ErrMissingType = errors.New("frame has no type field")

// Event is one decoded frame of an assistant turn's event stream. The set of
// implementations is closed; consumers type-switch on the concrete value.
type Event interface {
	Type() EventType
	isEvent()
}

type SectionStartEvent struct {
	Step        string `json:"step"`
	Title       string `json:"title"`
	Collapsible bool   `json:"collapsible"`
}

func (SectionStartEvent) Type() EventType { return EventSectionStart }
func (SectionStartEvent) isEvent()        {}

// SectionEndEvent closes whichever section is currently open; Step is
// informational only.
type SectionEndEvent struct {
	Step string `json:"step,omitempty"`
}

func (SectionEndEvent) Type() EventType { return EventSectionEnd }
func (SectionEndEvent) isEvent()        {}

// LogEvent appends to (or, when Newline is explicitly false, extends) the
// log of the resolved section. A nil Newline is not the same as false.
type LogEvent struct {
	Content string  `json:"content"`
	Source  *string `json:"source,omitempty"`
	Step    string  `json:"step,omitempty"`
	Newline *bool   `json:"newline,omitempty"`
}

func (LogEvent) Type() EventType { return EventLog }
func (LogEvent) isEvent()        {}

// ResultEvent carries optional content, data and summary. Content and
// Summary are pointers because an absent field and an empty string are
// handled differently.
type ResultEvent struct {
	Content       *string         `json:"content,omitempty"`
	Data          json.RawMessage `json:"data,omitempty"`
	Summary       *string         `json:"summary,omitempty"`
	Step          string          `json:"step,omitempty"`
	IsIncremental bool            `json:"is_incremental,omitempty"`
}

func (ResultEvent) Type() EventType { return EventResult }
func (ResultEvent) isEvent()        {}

type TokenEvent struct {
	Content string `json:"content"`
}

func (TokenEvent) Type() EventType { return EventToken }
func (TokenEvent) isEvent()        {}

type DoneEvent struct {
	MessageID *int64 `json:"message_id,omitempty"`
}

func (DoneEvent) Type() EventType { return EventDone }
func (DoneEvent) isEvent()        {}

// ErrorEvent is a protocol-level failure. Content is shown to the user
// verbatim.
type ErrorEvent struct {
	Content string `json:"content"`
	Step    string `json:"step,omitempty"`
}

func (ErrorEvent) Type() EventType { return EventError }
func (ErrorEvent) isEvent()        {}

type TitleUpdatedEvent struct {
	ConversationID int64  `json:"conversation_id"`
	Title          string `json:"title"`
}

func (TitleUpdatedEvent) Type() EventType { return EventTitleUpdated }
func (TitleUpdatedEvent) isEvent()        {}

type MetadataEvent struct {
	Data map[string]any `json:"data,omitempty"`
}

func (MetadataEvent) Type() EventType { return EventMetadata }
func (MetadataEvent) isEvent()        {}

// UnknownEvent is any well-formed frame whose type is not recognized. It is
// kept so diagnostics can report it.
type UnknownEvent struct {
	Kind string
	Raw  json.RawMessage
}

func (e UnknownEvent) Type() EventType { return EventType(e.Kind) }
func (UnknownEvent) isEvent()          {}

type envelope struct {
	Type *string `json:"type"`
}

// DecodeEvent decodes one frame payload. The payload must be a JSON object
// with a string "type" field.
func DecodeEvent(payload []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, err
	}
	if env.Type == nil {
		return nil, ErrMissingType
	}

	switch EventType(*env.Type) {
	case EventSectionStart:
		return decodeInto[SectionStartEvent](payload)
	case EventSectionEnd:
		return decodeInto[SectionEndEvent](payload)
	case EventLog:
		return decodeInto[LogEvent](payload)
	case EventResult:
		var ev ResultEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			return nil, fmt.Errorf("bad %v frame: %w", EventResult, err)
		}
		if bytes.Equal(bytes.TrimSpace(ev.Data), []byte("null")) {
			ev.Data = nil
		}
		return ev, nil
	case EventToken:
		return decodeInto[TokenEvent](payload)
	case EventDone:
		return decodeInto[DoneEvent](payload)
	case EventError:
		return decodeInto[ErrorEvent](payload)
	case EventTitleUpdated:
		return decodeInto[TitleUpdatedEvent](payload)
	case EventMetadata:
		return decodeInto[MetadataEvent](payload)
	default:
		raw := make(json.RawMessage, len(payload))
		copy(raw, payload)
		return UnknownEvent{Kind: *env.Type, Raw: raw}, nil
	}
}

func decodeInto[T Event](payload []byte) (Event, error) {
	var ev T
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("bad %v frame: %w", ev.Type(), err)
	}
	return ev, nil
}

// EncodeEvent produces the JSON payload for ev, with the "type" field first.
func EncodeEvent(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, errors.New("cannot encode nil event")
	}
	if u, ok := ev.(UnknownEvent); ok {
		return u.Raw, nil
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	typ, err := json.Marshal(string(ev.Type()))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"type":`)
	buf.Write(typ)
	if len(body) > 2 {
		buf.WriteByte(',')
		buf.Write(body[1:])
	} else {
		buf.WriteByte('}')
	}

	return buf.Bytes(), nil
}

// String and Bool return pointers for the optional event fields.
func String(s string) *string { return &s }
func Bool(b bool) *bool       { return &b }
