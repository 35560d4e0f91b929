package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Reserved receiver addresses.
const (
	// AddrGroundControl is the server's own control plane.
	AddrGroundControl = "ground control"
	// AddrRoom addresses every member of the sender's current room.
	AddrRoom = "room"
)

// Message types handled by the control plane. Anything else addressed to a
// client directly is forwarded opaquely (media signaling, text chat, ...).
const (
	TypePing        = "ping"
	TypePong        = "pong"
	TypeProfile     = "profile"
	TypeGetRoomInfo = "get-room-info"
	TypeGetIce      = "get-ice-servers"
	TypeGreeting    = "greeting"
	TypeBye         = "bye"
	TypeRoomInfo    = "room-info"
	TypeIceServers  = "ice-servers"
	TypeText        = "text"
	TypeError       = "error"
)

// Message is the wire-format envelope relayed between clients and the
// control plane. Data is kept raw so that signaling payloads pass through
// untouched.
type Message struct {
	Sender   string          `json:"sender"`
	Receiver string          `json:"receiver"`
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// ParseMessage decodes a raw payload into a Message.
func ParseMessage(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return m, nil
}

// Encode returns the JSON encoding of the message.
func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// newControlMessage builds a message originating from the control plane.
func newControlMessage(receiver, msgType string, data any) Message {
	return Message{
		Sender:   AddrGroundControl,
		Receiver: receiver,
		Type:     msgType,
		Data:     marshalData(data),
	}
}

// marshalData converts an arbitrary value into a raw JSON payload. Raw
// payloads pass through unchanged.
func marshalData(v any) json.RawMessage {
	switch d := v.(type) {
	case nil:
		return nil
	case json.RawMessage:
		return d
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			slog.Error("failed to marshal message data", "error", err)
			return nil
		}
		return raw
	}
}
