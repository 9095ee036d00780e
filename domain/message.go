package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is a single chat message. The core only needs it as an activity
// signal; content moderation, attachments and read receipts live elsewhere.
type Message struct {
	ID       string    `json:"id"`
	ChatID   string    `json:"chat_id"`
	SenderID string    `json:"sender_id"`
	Body     string    `json:"body"`
	SentAt   time.Time `json:"sent_at"`
}

// NewMessage validates and builds a message.
func NewMessage(chatID, senderID, body string) (*Message, error) {
	if chatID == "" || senderID == "" || body == "" {
		return nil, ErrInvalidPayload
	}
	return &Message{
		ID:       uuid.NewString(),
		ChatID:   chatID,
		SenderID: senderID,
		Body:     body,
		SentAt:   time.Now().UTC(),
	}, nil
}
