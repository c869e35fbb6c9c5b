// Package protocol defines the JSON frames exchanged with chat clients.
//
// Every frame is an envelope naming the event and carrying its payload:
//
//	{"event": "join_room", "data": {"user": "ana", "room": "geral"}}
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedPayload is returned for frames that cannot be decoded or that
// miss a required field.
var ErrMalformedPayload = errors.New("malformed payload")

// Inbound event names.
const (
	EventJoinRoom   = "join_room"
	EventUserLeft   = "user_left"
	EventMessage    = "message"
	EventTyping     = "typing"
	EventStopTyping = "stop_typing"
)

// Outbound event names. EventMessage and EventTyping are shared with the
// inbound direction.
const (
	EventSystem = "system"
)

// Message kinds carried in the "type" field.
const (
	TypeMessage = "message"
	TypeSystem  = "system"
)

// System notice texts.
const (
	TextJoined       = "entrou na sala."
	TextLeft         = "saiu da sala."
	TextDisconnected = "desconectou."
)

// TimestampLayout formats server-generated timestamps as a 24h wall clock.
const TimestampLayout = "15:04:05"

// Envelope is the frame wrapper used in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// RoomRef is the payload of join_room, user_left and stop_typing.
type RoomRef struct {
	User string `json:"user"`
	Room string `json:"room"`
}

// ChatMessage is the payload of message events and system notices.
type ChatMessage struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	User      string `json:"user"`
	Room      string `json:"room"`
	Timestamp string `json:"timestamp"`
}

// TypingSignal is the inbound typing payload.
type TypingSignal struct {
	User     string `json:"user"`
	IsTyping bool   `json:"isTyping"`
	Room     string `json:"room"`
}

// TypingNotice is the outbound typing payload.
type TypingNotice struct {
	User     string `json:"user"`
	IsTyping bool   `json:"isTyping"`
}

// Inbound is a decoded client frame. Exactly one payload field is set,
// matching Event.
type Inbound struct {
	Event   string
	Room    *RoomRef
	Message *ChatMessage
	Typing  *TypingSignal
}

// User returns the user named by the payload.
func (in Inbound) User() string {
	switch {
	case in.Room != nil:
		return in.Room.User
	case in.Message != nil:
		return in.Message.User
	case in.Typing != nil:
		return in.Typing.User
	}
	return ""
}

// Decode parses a client frame and checks its required fields.
func Decode(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(env.Data) == 0 {
		return Inbound{}, fmt.Errorf("%w: %s without data", ErrMalformedPayload, env.Event)
	}

	in := Inbound{Event: env.Event}
	var (
		user, room string
		err        error
	)

	switch env.Event {
	case EventJoinRoom, EventUserLeft, EventStopTyping:
		in.Room = &RoomRef{}
		err = json.Unmarshal(env.Data, in.Room)
		user, room = in.Room.User, in.Room.Room
	case EventMessage:
		in.Message = &ChatMessage{}
		err = json.Unmarshal(env.Data, in.Message)
		in.Message.Type = TypeMessage
		user, room = in.Message.User, in.Message.Room
	case EventTyping:
		in.Typing = &TypingSignal{}
		err = json.Unmarshal(env.Data, in.Typing)
		user, room = in.Typing.User, in.Typing.Room
	default:
		return Inbound{}, fmt.Errorf("%w: unknown event %q", ErrMalformedPayload, env.Event)
	}

	if err != nil {
		return Inbound{}, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, env.Event, err)
	}
	if user == "" || room == "" {
		return Inbound{}, fmt.Errorf("%w: %s requires user and room", ErrMalformedPayload, env.Event)
	}
	return in, nil
}

// Encode wraps payload in an envelope for event.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// SystemNotice builds a system message stamped with at.
func SystemNotice(text, user, room string, at time.Time) ChatMessage {
	return ChatMessage{
		Type:      TypeSystem,
		Text:      text,
		User:      user,
		Room:      room,
		Timestamp: at.Format(TimestampLayout),
	}
}
