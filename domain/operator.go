package domain

import (
	"time"

	"github.com/google/uuid"
)

// OperatorStatus is the operator availability state.
type OperatorStatus string

const (
	OperatorStatusOffline   OperatorStatus = "offline"
	OperatorStatusAvailable OperatorStatus = "available"
	OperatorStatusBusy      OperatorStatus = "busy"
	OperatorStatusAway      OperatorStatus = "away"
)

// DefaultMaxConcurrentChats bounds an operator's load unless onboarding
// specifies otherwise.
const DefaultMaxConcurrentChats = 5

// Operator is the persisted capacity ledger entry for a human agent.
// CurrentChatCount stays within [0, MaxConcurrentChats]; a non-offline
// status requires IsOnline. The persisted IsOnline flag mirrors the presence
// cache and is advisory only; routing decisions consult the cache.
type Operator struct {
	ID                 string         `json:"id"`
	UserID             string         `json:"user_id"`
	DisplayName        string         `json:"display_name"`
	Email              string         `json:"email"`
	Status             OperatorStatus `json:"status"`
	IsOnline           bool           `json:"is_online"`
	CurrentChatCount   int            `json:"current_chat_count"`
	MaxConcurrentChats int            `json:"max_concurrent_chats"`
	LastActiveAt       *time.Time     `json:"last_active_at,omitempty"`
	Skills             []string       `json:"skills,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`

	events []Event
}

// NewOperator onboards an operator in the offline state.
func NewOperator(userID, displayName, email string, maxConcurrentChats int) (*Operator, error) {
	if userID == "" || displayName == "" {
		return nil, ErrInvalidPayload
	}
	if maxConcurrentChats < 1 {
		maxConcurrentChats = DefaultMaxConcurrentChats
	}

	now := time.Now().UTC()
	op := &Operator{
		ID:                 uuid.NewString(),
		UserID:             userID,
		DisplayName:        displayName,
		Email:              email,
		Status:             OperatorStatusOffline,
		MaxConcurrentChats: maxConcurrentChats,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	op.recordEvent(newEvent(EventOperatorCreated, op.ID, AggregateOperator, OperatorCreatedPayload{
		OperatorID:  op.ID,
		UserID:      userID,
		DisplayName: displayName,
	}))

	return op, nil
}

// SetOnline marks the operator reachable and available.
func (o *Operator) SetOnline() {
	o.IsOnline = true
	o.Status = OperatorStatusAvailable
	o.markActive()

	o.recordEvent(newEvent(EventOperatorStatusChanged, o.ID, AggregateOperator, OperatorStatusChangedPayload{
		OperatorID: o.ID,
		UserID:     o.UserID,
		Status:     OperatorStatusAvailable,
	}))
}

// SetOffline marks the operator unreachable.
func (o *Operator) SetOffline() {
	o.IsOnline = false
	o.Status = OperatorStatusOffline
	o.UpdatedAt = time.Now().UTC()

	o.recordEvent(newEvent(EventOperatorStatusChanged, o.ID, AggregateOperator, OperatorStatusChangedPayload{
		OperatorID: o.ID,
		UserID:     o.UserID,
		Status:     OperatorStatusOffline,
	}))
}

// SetStatus changes availability; only offline is reachable while the
// operator is not online.
func (o *Operator) SetStatus(status OperatorStatus) error {
	if !o.IsOnline && status != OperatorStatusOffline {
		return NewError(ErrCodeInvalidState, "cannot set status while offline")
	}

	o.Status = status
	o.markActive()

	o.recordEvent(newEvent(EventOperatorStatusChanged, o.ID, AggregateOperator, OperatorStatusChangedPayload{
		OperatorID: o.ID,
		UserID:     o.UserID,
		Status:     status,
	}))

	return nil
}

// AssignChat increments the concurrent-chat count, flipping the status to
// busy when the operator hits its cap.
func (o *Operator) AssignChat() error {
	if !o.CanAcceptNewChat() {
		return ErrCapacityExceeded
	}

	o.CurrentChatCount++
	o.deriveStatus()
	o.markActive()

	o.recordEvent(newEvent(EventOperatorChatAssigned, o.ID, AggregateOperator, OperatorChatAssignedPayload{
		OperatorID: o.ID,
		UserID:     o.UserID,
		ChatCount:  o.CurrentChatCount,
	}))

	return nil
}

// UnassignChat decrements the count, floored at zero, and re-derives the
// status.
func (o *Operator) UnassignChat() {
	if o.CurrentChatCount == 0 {
		return
	}

	o.CurrentChatCount--
	o.deriveStatus()
	o.markActive()

	o.recordEvent(newEvent(EventOperatorChatUnassigned, o.ID, AggregateOperator, OperatorChatUnassignedPayload{
		OperatorID: o.ID,
		UserID:     o.UserID,
		ChatCount:  o.CurrentChatCount,
	}))
}

// CanAcceptNewChat reports whether a new assignment may target this
// operator.
func (o *Operator) CanAcceptNewChat() bool {
	return o.IsOnline &&
		o.Status == OperatorStatusAvailable &&
		o.CurrentChatCount < o.MaxConcurrentChats
}

// UpdateMaxConcurrentChats resizes the capacity limit. Shrinking below the
// current load would break the count invariant, so it is rejected.
func (o *Operator) UpdateMaxConcurrentChats(max int) error {
	if max < 1 {
		return NewError(ErrCodeInvalid, "max concurrent chats must be at least 1")
	}
	if max < o.CurrentChatCount {
		return NewError(ErrCodeInvalid, "max concurrent chats cannot be below current load")
	}
	o.MaxConcurrentChats = max
	o.deriveStatus()
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// AddSkill tags the operator with a routing skill, deduplicated.
func (o *Operator) AddSkill(skill string) {
	for _, s := range o.Skills {
		if s == skill {
			return
		}
	}
	o.Skills = append(o.Skills, skill)
}

// RemoveSkill drops a routing skill tag.
func (o *Operator) RemoveSkill(skill string) {
	for i, s := range o.Skills {
		if s == skill {
			o.Skills = append(o.Skills[:i], o.Skills[i+1:]...)
			return
		}
	}
}

// WorkloadPercentage is the load-balancing ranking key.
func (o *Operator) WorkloadPercentage() float64 {
	if o.MaxConcurrentChats <= 0 {
		return 0
	}
	return float64(o.CurrentChatCount) / float64(o.MaxConcurrentChats) * 100
}

// UpdateActivity bumps the last-active timestamp.
func (o *Operator) UpdateActivity() {
	o.markActive()
}

func (o *Operator) deriveStatus() {
	if !o.IsOnline {
		return
	}

	status := OperatorStatusAvailable
	if o.CurrentChatCount >= o.MaxConcurrentChats {
		status = OperatorStatusBusy
	}

	if status != o.Status {
		o.Status = status
		o.recordEvent(newEvent(EventOperatorStatusChanged, o.ID, AggregateOperator, OperatorStatusChangedPayload{
			OperatorID: o.ID,
			UserID:     o.UserID,
			Status:     status,
		}))
	}
}

func (o *Operator) markActive() {
	now := time.Now().UTC()
	o.LastActiveAt = &now
	o.UpdatedAt = now
}

func (o *Operator) recordEvent(e Event) {
	o.events = append(o.events, e)
}

// PendingEvents returns the buffered domain events without draining them.
func (o *Operator) PendingEvents() []Event {
	return o.events
}

// DrainEvents returns and clears the buffered domain events.
func (o *Operator) DrainEvents() []Event {
	events := o.events
	o.events = nil
	return events
}
