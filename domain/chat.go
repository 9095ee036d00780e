package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatType distinguishes customer-facing chats from internal ones.
type ChatType string

const (
	ChatTypeSupport  ChatType = "support"
	ChatTypeInternal ChatType = "internal"
)

// ChatStatus is the chat lifecycle state.
type ChatStatus string

const (
	ChatStatusPending     ChatStatus = "pending"
	ChatStatusActive      ChatStatus = "active"
	ChatStatusTransferred ChatStatus = "transferred"
	ChatStatusClosed      ChatStatus = "closed"
	ChatStatusAbandoned   ChatStatus = "abandoned"
)

// DefaultReassignThreshold is the operational inactivity threshold after
// which an active chat becomes eligible for reassignment.
const DefaultReassignThreshold = 5 * time.Minute

// Chat is a customer support conversation. AssignedOperatorID is set only
// while the chat is active; a closed chat is terminal and rejects further
// assignment. Mutations go through the transition methods below, which also
// record the domain events the transition produces.
type Chat struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Type               ChatType   `json:"type"`
	Status             ChatStatus `json:"status"`
	InitiatorID        string     `json:"initiator_id"`
	AssignedOperatorID *string    `json:"assigned_operator_id,omitempty"`
	Priority           int        `json:"priority"`
	LastActivityAt     time.Time  `json:"last_activity_at"`
	ClosedAt           *time.Time `json:"closed_at,omitempty"`
	CloseReason        string     `json:"close_reason,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`

	events []Event
}

// NewChat creates a pending chat with no operator and records the created
// event.
func NewChat(title string, chatType ChatType, initiatorID string, priority int) (*Chat, error) {
	if title == "" || initiatorID == "" {
		return nil, ErrInvalidPayload
	}
	if priority < 1 || priority > 10 {
		return nil, NewError(ErrCodeInvalid, "priority must be between 1 and 10")
	}

	now := time.Now().UTC()
	chat := &Chat{
		ID:             uuid.NewString(),
		Title:          title,
		Type:           chatType,
		Status:         ChatStatusPending,
		InitiatorID:    initiatorID,
		Priority:       priority,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	chat.recordEvent(newEvent(EventChatCreated, chat.ID, AggregateChat, ChatCreatedPayload{
		ChatID:      chat.ID,
		Type:        chatType,
		InitiatorID: initiatorID,
		Priority:    priority,
	}))

	return chat, nil
}

// AssignOperator puts the chat in the active state owned by operatorID.
func (c *Chat) AssignOperator(operatorID string) error {
	if c.Status == ChatStatusClosed || c.Status == ChatStatusAbandoned {
		return ErrChatClosed
	}

	previous := c.AssignedOperatorID
	c.AssignedOperatorID = &operatorID
	c.Status = ChatStatusActive
	c.touch()

	c.recordEvent(newEvent(EventChatAssigned, c.ID, AggregateChat, ChatAssignedPayload{
		ChatID:             c.ID,
		OperatorID:         operatorID,
		PreviousOperatorID: previous,
	}))

	return nil
}

// TransferToOperator hands an active chat to a different operator. The
// transferred status is a transient marker used to tag the emitted event;
// the chat always rests in the active state.
func (c *Chat) TransferToOperator(newOperatorID, reason string) error {
	if c.Status != ChatStatusActive {
		return NewError(ErrCodeInvalidState, "can only transfer active chats")
	}
	if reason == "" {
		return NewError(ErrCodeInvalid, "transfer reason is required")
	}

	previous := c.AssignedOperatorID
	c.AssignedOperatorID = &newOperatorID
	c.Status = ChatStatusTransferred
	c.touch()

	c.recordEvent(newEvent(EventChatTransferred, c.ID, AggregateChat, ChatTransferredPayload{
		ChatID:             c.ID,
		NewOperatorID:      newOperatorID,
		PreviousOperatorID: previous,
		Reason:             reason,
	}))

	c.Status = ChatStatusActive
	return nil
}

// Unassign clears the operator while keeping the chat active. The activity
// stamp is left alone: releasing an operator is not customer activity, and
// bumping it would hide the chat from the next inactivity sweep.
func (c *Chat) Unassign() {
	if c.AssignedOperatorID == nil {
		return
	}
	c.AssignedOperatorID = nil
	c.UpdatedAt = time.Now().UTC()
}

// Close is idempotent: closing an already closed chat leaves the close
// timestamp and reason untouched.
func (c *Chat) Close(reason string) {
	if c.Status == ChatStatusClosed {
		return
	}

	operatorID := c.AssignedOperatorID
	now := time.Now().UTC()
	c.Status = ChatStatusClosed
	c.ClosedAt = &now
	c.CloseReason = reason
	c.AssignedOperatorID = nil
	c.UpdatedAt = now

	c.recordEvent(newEvent(EventChatClosed, c.ID, AggregateChat, ChatClosedPayload{
		ChatID:     c.ID,
		OperatorID: operatorID,
		Reason:     reason,
	}))
}

// MarkAbandoned is the customer-initiated terminal state, idempotent like
// Close.
func (c *Chat) MarkAbandoned() {
	if c.Status == ChatStatusClosed || c.Status == ChatStatusAbandoned {
		return
	}

	operatorID := c.AssignedOperatorID
	now := time.Now().UTC()
	c.Status = ChatStatusAbandoned
	c.ClosedAt = &now
	c.CloseReason = "customer abandoned chat"
	c.AssignedOperatorID = nil
	c.UpdatedAt = now

	c.recordEvent(newEvent(EventChatAbandoned, c.ID, AggregateChat, ChatAbandonedPayload{
		ChatID:     c.ID,
		OperatorID: operatorID,
	}))
}

// UpdateActivity bumps the activity timestamp, e.g. when a message arrives.
func (c *Chat) UpdateActivity() {
	c.touch()
}

// IsInactive reports whether no activity was seen for longer than threshold.
func (c *Chat) IsInactive(threshold time.Duration) bool {
	return time.Since(c.LastActivityAt) > threshold
}

// CanBeReassigned reports whether the chat qualifies for scheduler
// reassignment: active and inactive beyond the operational threshold.
func (c *Chat) CanBeReassigned() bool {
	return c.CanBeReassignedAfter(DefaultReassignThreshold)
}

// CanBeReassignedAfter is CanBeReassigned with a configurable threshold.
func (c *Chat) CanBeReassignedAfter(threshold time.Duration) bool {
	return c.Status == ChatStatusActive && c.IsInactive(threshold)
}

// IsClosed reports whether the chat reached a terminal state.
func (c *Chat) IsClosed() bool {
	return c.Status == ChatStatusClosed || c.Status == ChatStatusAbandoned
}

func (c *Chat) touch() {
	now := time.Now().UTC()
	c.LastActivityAt = now
	c.UpdatedAt = now
}

func (c *Chat) recordEvent(e Event) {
	c.events = append(c.events, e)
}

// PendingEvents returns the buffered domain events without draining them.
func (c *Chat) PendingEvents() []Event {
	return c.events
}

// DrainEvents returns and clears the buffered domain events. The transaction
// boundary calls this immediately before appending to the outbox.
func (c *Chat) DrainEvents() []Event {
	events := c.events
	c.events = nil
	return events
}
