package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind names a realtime message type delivered to browser sessions.
type Kind string

const (
	KindNotificationCreated Kind = "notification.created"
	KindNotificationUpdated Kind = "notification.updated"
	KindNotificationDeleted Kind = "notification.deleted"
	KindNotificationReadAll Kind = "notification.read_all"
	KindPong                Kind = "pong"
)

// Message is the envelope carried over Redis and written to websocket clients.
type Message struct {
	Kind   Kind            `json:"kind"`
	UserID uuid.UUID       `json:"userId"`
	Data   json.RawMessage `json:"data,omitempty"`
	SentAt time.Time       `json:"sentAt"`
}

// NewMessage marshals data into a message addressed to userID.
func NewMessage(kind Kind, userID uuid.UUID, data any) (Message, error) {
	msg := Message{Kind: kind, UserID: userID, SentAt: time.Now().UTC()}
	if data == nil {
		return msg, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", kind, err)
	}
	msg.Data = raw
	return msg, nil
}

func decodeMessage(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, err
	}
	if msg.Kind == "" || msg.UserID == uuid.Nil {
		return Message{}, fmt.Errorf("realtime message missing kind or user id")
	}
	return msg, nil
}
