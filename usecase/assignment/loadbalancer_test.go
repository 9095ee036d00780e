package assignment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatline/backend/domain"
	"github.com/chatline/backend/repository/inmem"
)

func makeOperator(id string, current, max int, lastActive time.Time) domain.Operator {
	la := lastActive
	return domain.Operator{
		ID:                 id,
		UserID:             "user-" + id,
		DisplayName:        id,
		Status:             domain.OperatorStatusAvailable,
		IsOnline:           true,
		CurrentChatCount:   current,
		MaxConcurrentChats: max,
		LastActiveAt:       &la,
	}
}

func TestSelectBestPicksLowestWorkload(t *testing.T) {
	now := time.Now()
	operators := []domain.Operator{
		makeOperator("op-a", 3, 5, now), // 60%
		makeOperator("op-b", 1, 5, now), // 20%
		makeOperator("op-c", 2, 5, now), // 40%
	}

	best, err := SelectBest([]string{"op-a", "op-b", "op-c"}, operators)
	require.NoError(t, err)
	require.Equal(t, "op-b", best.ID)
}

func TestSelectBestTieBreakByChatCount(t *testing.T) {
	now := time.Now()
	operators := []domain.Operator{
		makeOperator("op-a", 2, 10, now), // 20%, 2 chats
		makeOperator("op-b", 1, 5, now),  // 20%, 1 chat
	}

	best, err := SelectBest([]string{"op-a", "op-b"}, operators)
	require.NoError(t, err)
	require.Equal(t, "op-b", best.ID)
}

func TestSelectBestTieBreakByRecency(t *testing.T) {
	now := time.Now()
	operators := []domain.Operator{
		makeOperator("op-a", 1, 5, now.Add(-time.Hour)),
		makeOperator("op-b", 1, 5, now), // fresher session wins
	}

	best, err := SelectBest([]string{"op-a", "op-b"}, operators)
	require.NoError(t, err)
	require.Equal(t, "op-b", best.ID)
}

func TestSelectBestRequiresIntersection(t *testing.T) {
	now := time.Now()
	operators := []domain.Operator{
		makeOperator("op-a", 0, 5, now),
	}

	// available in the ledger but absent from the presence set
	_, err := SelectBest([]string{"op-other"}, operators)
	require.True(t, domain.IsDomainError(err, domain.ErrCodeNoOperatorsAvailable))

	// present in the cache but not eligible in the ledger
	offline := makeOperator("op-b", 0, 5, now)
	offline.IsOnline = false
	_, err = SelectBest([]string{"op-b"}, []domain.Operator{offline})
	require.True(t, domain.IsDomainError(err, domain.ErrCodeNoOperatorsAvailable))
}

func TestSelectBestSkipsFullOperators(t *testing.T) {
	now := time.Now()
	full := makeOperator("op-a", 5, 5, now)
	full.Status = domain.OperatorStatusBusy

	_, err := SelectBest([]string{"op-a"}, []domain.Operator{full})
	require.True(t, domain.IsDomainError(err, domain.ErrCodeNoOperatorsAvailable))
}

func TestSelectBestDeterministic(t *testing.T) {
	now := time.Now()
	online := []string{"op-c", "op-a", "op-b"}
	operators := []domain.Operator{
		makeOperator("op-c", 1, 5, now),
		makeOperator("op-a", 1, 5, now),
		makeOperator("op-b", 1, 5, now),
	}

	first, err := SelectBest(online, operators)
	require.NoError(t, err)

	for i := 0; i < 20; i++ {
		got, err := SelectBest(online, operators)
		require.NoError(t, err)
		require.Equal(t, first.ID, got.ID)
	}
}

func TestFindBestAvailableOperatorEmptyPresence(t *testing.T) {
	store := inmem.NewStore()
	presence := inmem.NewPresence()
	lb := NewLoadBalancer(store.Operators(), presence, zap.NewNop())

	_, err := lb.FindBestAvailableOperator(context.Background())
	require.True(t, domain.IsDomainError(err, domain.ErrCodeNoOperatorsAvailable))
}

func TestAvailableOperators(t *testing.T) {
	ctx := context.Background()
	store := inmem.NewStore()
	presence := inmem.NewPresence()

	op1, err := domain.NewOperator("u1", "One", "one@example.com", 5)
	require.NoError(t, err)
	op1.SetOnline()
	store.PutOperator(op1)
	require.NoError(t, presence.SetOperatorOnline(ctx, op1.ID, "conn-1"))

	// online in the ledger only, presence entry expired
	op2, err := domain.NewOperator("u2", "Two", "two@example.com", 5)
	require.NoError(t, err)
	op2.SetOnline()
	store.PutOperator(op2)

	lb := NewLoadBalancer(store.Operators(), presence, zap.NewNop())
	ids, err := lb.AvailableOperators(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{op1.ID}, ids)
}
