// Package protocol defines the message shape exchanged between peers.
// This is the serialization contract a transport implementation must honor.
package protocol

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"taskmesh/pkg/protocol/codec"
)

// MessageType classifies a message on the wire.
type MessageType uint8

const (
	MsgUnknown MessageType = iota
	MsgRequest
	MsgResponse
	MsgBroadcast
	MsgHeartbeat
)

func (t MessageType) String() string {
	switch t {
	case MsgRequest:
		return "request"
	case MsgResponse:
		return "response"
	case MsgBroadcast:
		return "broadcast"
	case MsgHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Message is the wire envelope: {id, type, from, to, payload, timestamp}.
// Timestamp is unix milliseconds. Payload is opaque to the messaging layer.
type Message struct {
	ID        string      `json:"id"`
	Type      MessageType `json:"type"`
	From      string      `json:"from"`
	To        []string    `json:"to"`
	Payload   []byte      `json:"payload,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// NewMessage constructs a message with a generated id and current timestamp.
func NewMessage(typ MessageType, from string, to []string, payload []byte) Message {
	return Message{
		ID:        uuid.NewString(),
		Type:      typ,
		From:      from,
		To:        append([]string(nil), to...),
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Encode serializes the message with the given codec.
func (m Message) Encode(c codec.Codec) ([]byte, error) {
	b, err := c.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode message %s: %w", m.ID, err)
	}
	return b, nil
}

// DecodeMessage deserializes a message with the given codec.
func DecodeMessage(c codec.Codec, data []byte) (Message, error) {
	var m Message
	if err := c.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return m, nil
}
