package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newOnlineOperator(t *testing.T, max int) *Operator {
	t.Helper()
	op, err := NewOperator("user-1", "Alex", "alex@example.com", max)
	require.NoError(t, err)
	op.SetOnline()
	op.DrainEvents()
	return op
}

func TestNewOperatorDefaults(t *testing.T) {
	op, err := NewOperator("user-1", "Alex", "alex@example.com", 0)
	require.NoError(t, err)
	require.Equal(t, OperatorStatusOffline, op.Status)
	require.False(t, op.IsOnline)
	require.Equal(t, DefaultMaxConcurrentChats, op.MaxConcurrentChats)

	events := op.DrainEvents()
	require.Len(t, events, 1)
	require.Equal(t, EventOperatorCreated, events[0].Kind)
}

func TestOperatorOnlineOffline(t *testing.T) {
	op, err := NewOperator("user-1", "Alex", "alex@example.com", 3)
	require.NoError(t, err)
	op.DrainEvents()

	op.SetOnline()
	require.True(t, op.IsOnline)
	require.Equal(t, OperatorStatusAvailable, op.Status)
	require.NotNil(t, op.LastActiveAt)

	op.SetOffline()
	require.False(t, op.IsOnline)
	require.Equal(t, OperatorStatusOffline, op.Status)

	events := op.DrainEvents()
	require.Len(t, events, 2)
	for _, e := range events {
		require.Equal(t, EventOperatorStatusChanged, e.Kind)
	}
}

func TestOperatorSetStatusWhileOffline(t *testing.T) {
	op, err := NewOperator("user-1", "Alex", "alex@example.com", 3)
	require.NoError(t, err)

	err = op.SetStatus(OperatorStatusAway)
	require.True(t, IsDomainError(err, ErrCodeInvalidState))

	require.NoError(t, op.SetStatus(OperatorStatusOffline))
}

func TestOperatorAssignChat(t *testing.T) {
	op := newOnlineOperator(t, 2)

	require.NoError(t, op.AssignChat())
	require.Equal(t, 1, op.CurrentChatCount)
	require.Equal(t, OperatorStatusAvailable, op.Status)

	// hits the cap and flips to busy
	require.NoError(t, op.AssignChat())
	require.Equal(t, 2, op.CurrentChatCount)
	require.Equal(t, OperatorStatusBusy, op.Status)

	err := op.AssignChat()
	require.True(t, IsDomainError(err, ErrCodeCapacityExceeded))
	require.Equal(t, 2, op.CurrentChatCount)
}

func TestOperatorUnassignChat(t *testing.T) {
	op := newOnlineOperator(t, 1)
	require.NoError(t, op.AssignChat())
	require.Equal(t, OperatorStatusBusy, op.Status)
	op.DrainEvents()

	op.UnassignChat()
	require.Equal(t, 0, op.CurrentChatCount)
	require.Equal(t, OperatorStatusAvailable, op.Status)

	// floored at zero, no event for a no-op
	op.UnassignChat()
	require.Equal(t, 0, op.CurrentChatCount)

	var unassigned int
	for _, e := range op.DrainEvents() {
		if e.Kind == EventOperatorChatUnassigned {
			unassigned++
		}
	}
	require.Equal(t, 1, unassigned)
}

func TestOperatorCanAcceptNewChat(t *testing.T) {
	op := newOnlineOperator(t, 2)
	require.True(t, op.CanAcceptNewChat())

	require.NoError(t, op.SetStatus(OperatorStatusAway))
	require.False(t, op.CanAcceptNewChat())

	require.NoError(t, op.SetStatus(OperatorStatusAvailable))
	op.SetOffline()
	require.False(t, op.CanAcceptNewChat())
}

func TestOperatorCountStaysWithinBounds(t *testing.T) {
	op := newOnlineOperator(t, 3)

	for i := 0; i < 10; i++ {
		_ = op.AssignChat()
	}
	require.Equal(t, 3, op.CurrentChatCount)

	for i := 0; i < 10; i++ {
		op.UnassignChat()
	}
	require.Equal(t, 0, op.CurrentChatCount)
}

func TestOperatorWorkloadPercentage(t *testing.T) {
	op := newOnlineOperator(t, 4)
	require.Equal(t, 0.0, op.WorkloadPercentage())

	require.NoError(t, op.AssignChat())
	require.Equal(t, 25.0, op.WorkloadPercentage())

	op.MaxConcurrentChats = 0
	require.Equal(t, 0.0, op.WorkloadPercentage())
}

func TestOperatorSkills(t *testing.T) {
	op := newOnlineOperator(t, 2)

	op.AddSkill("billing")
	op.AddSkill("billing")
	op.AddSkill("refunds")
	require.Equal(t, []string{"billing", "refunds"}, op.Skills)

	op.RemoveSkill("billing")
	require.Equal(t, []string{"refunds"}, op.Skills)
}

func TestOperatorUpdateMaxConcurrentChats(t *testing.T) {
	op := newOnlineOperator(t, 1)
	require.NoError(t, op.AssignChat())
	require.Equal(t, OperatorStatusBusy, op.Status)

	require.NoError(t, op.UpdateMaxConcurrentChats(3))
	require.Equal(t, OperatorStatusAvailable, op.Status)

	err := op.UpdateMaxConcurrentChats(0)
	require.True(t, IsDomainError(err, ErrCodeInvalid))

	require.NoError(t, op.AssignChat())
	require.NoError(t, op.AssignChat())
	err = op.UpdateMaxConcurrentChats(2)
	require.True(t, IsDomainError(err, ErrCodeInvalid))
	require.Equal(t, 3, op.MaxConcurrentChats)
}
