package nordchat

import (
	"encoding/json"
	"fmt"
)

// RoomEventKind tags a RoomEvent.
type RoomEventKind string

const (
	EventJoin    RoomEventKind = "join"
	EventLeave   RoomEventKind = "leave"
	EventMessage RoomEventKind = "message"
)

// RoomEvent is one entry of a room's history. Message is only set for
// EventMessage. ID is assigned by the server and unique within the stream.
type RoomEvent struct {
	ID      int64
	Kind    RoomEventKind
	Room    string
	Sender  string
	TS      int64
	Message string
}

type roomEventWire struct {
	ID      int64         `json:"id"`
	Type    RoomEventKind `json:"type"`
	Room    string        `json:"room"`
	Sender  string        `json:"sender"`
	TS      int64         `json:"ts"`
	Message *string       `json:"message,omitempty"`
}

// MarshalJSON writes the event in its wire form.
func (e RoomEvent) MarshalJSON() ([]byte, error) {
	w := roomEventWire{ID: e.ID, Type: e.Kind, Room: e.Room, Sender: e.Sender, TS: e.TS}
	if e.Kind == EventMessage {
		msg := e.Message
		w.Message = &msg
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes and validates a wire event. Unknown types, a
// missing room and a message event without text are rejected.
func (e *RoomEvent) UnmarshalJSON(data []byte) error {
	var w roomEventWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Room == "" {
		return fmt.Errorf("room event %d: missing room", w.ID)
	}
	switch w.Type {
	case EventJoin, EventLeave:
		if w.Message != nil {
			return fmt.Errorf("room event %d: %s event carries a message", w.ID, w.Type)
		}
	case EventMessage:
		if w.Message == nil {
			return fmt.Errorf("room event %d: message event without text", w.ID)
		}
	default:
		return fmt.Errorf("room event %d: unknown type %q", w.ID, w.Type)
	}
	*e = RoomEvent{ID: w.ID, Kind: w.Type, Room: w.Room, Sender: w.Sender, TS: w.TS}
	if w.Message != nil {
		e.Message = *w.Message
	}
	return nil
}
