package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventKind enumerates the closed set of domain event types. Payloads are
// dispatched by switching on the kind; there is no reflective routing.
type EventKind string

const (
	EventChatCreated            EventKind = "chat.created"
	EventChatAssigned           EventKind = "chat.assigned"
	EventChatTransferred        EventKind = "chat.transferred"
	EventChatClosed             EventKind = "chat.closed"
	EventChatAbandoned          EventKind = "chat.abandoned"
	EventMessageSent            EventKind = "message.sent"
	EventOperatorCreated        EventKind = "operator.created"
	EventOperatorStatusChanged  EventKind = "operator.status_changed"
	EventOperatorChatAssigned   EventKind = "operator.chat_assigned"
	EventOperatorChatUnassigned EventKind = "operator.chat_unassigned"
)

// Aggregate type tags recorded on events and outbox entries.
const (
	AggregateChat     = "chat"
	AggregateOperator = "operator"
)

// Event is a domain event pending publication. Aggregates buffer events as
// they mutate; the transaction boundary drains them into the outbox right
// before commit.
type Event struct {
	ID            string    `json:"id"`
	Kind          EventKind `json:"kind"`
	AggregateID   string    `json:"aggregate_id"`
	AggregateType string    `json:"aggregate_type"`
	OccurredAt    time.Time `json:"occurred_at"`
	Payload       any       `json:"payload"`
}

func newEvent(kind EventKind, aggregateID, aggregateType string, payload any) Event {
	return Event{
		ID:            uuid.NewString(),
		Kind:          kind,
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		OccurredAt:    time.Now().UTC(),
		Payload:       payload,
	}
}

// NewMessageSentEvent tags message activity on the owning chat aggregate.
// Messages do not buffer events themselves; the sending usecase appends this
// directly within its transaction.
func NewMessageSentEvent(chatID, messageID, senderID string) Event {
	return newEvent(EventMessageSent, chatID, AggregateChat, MessageSentPayload{
		ChatID:    chatID,
		MessageID: messageID,
		SenderID:  senderID,
	})
}

// MarshalPayload serializes the event payload for outbox storage.
func (e Event) MarshalPayload() (json.RawMessage, error) {
	return json.Marshal(e.Payload)
}

// Event payloads, one struct per kind.

type ChatCreatedPayload struct {
	ChatID      string   `json:"chat_id"`
	Type        ChatType `json:"type"`
	InitiatorID string   `json:"initiator_id"`
	Priority    int      `json:"priority"`
}

type ChatAssignedPayload struct {
	ChatID             string  `json:"chat_id"`
	OperatorID         string  `json:"operator_id"`
	PreviousOperatorID *string `json:"previous_operator_id,omitempty"`
}

type ChatTransferredPayload struct {
	ChatID             string  `json:"chat_id"`
	NewOperatorID      string  `json:"new_operator_id"`
	PreviousOperatorID *string `json:"previous_operator_id,omitempty"`
	Reason             string  `json:"reason"`
}

type ChatClosedPayload struct {
	ChatID     string  `json:"chat_id"`
	OperatorID *string `json:"operator_id,omitempty"`
	Reason     string  `json:"reason,omitempty"`
}

type ChatAbandonedPayload struct {
	ChatID     string  `json:"chat_id"`
	OperatorID *string `json:"operator_id,omitempty"`
}

type MessageSentPayload struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
	SenderID  string `json:"sender_id"`
}

type OperatorCreatedPayload struct {
	OperatorID  string `json:"operator_id"`
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type OperatorStatusChangedPayload struct {
	OperatorID string         `json:"operator_id"`
	UserID     string         `json:"user_id"`
	Status     OperatorStatus `json:"status"`
}

type OperatorChatAssignedPayload struct {
	OperatorID string `json:"operator_id"`
	UserID     string `json:"user_id"`
	ChatCount  int    `json:"chat_count"`
}

type OperatorChatUnassignedPayload struct {
	OperatorID string `json:"operator_id"`
	UserID     string `json:"user_id"`
	ChatCount  int    `json:"chat_count"`
}
