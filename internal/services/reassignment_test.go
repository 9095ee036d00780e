package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatline/backend/domain"
)

type stubCoordinator struct {
	mu       sync.Mutex
	inactive []string
	results  map[string]error
	calls    map[string]int
}

func newStubCoordinator(inactive ...string) *stubCoordinator {
	return &stubCoordinator{
		inactive: inactive,
		results:  make(map[string]error),
		calls:    make(map[string]int),
	}
}

func (s *stubCoordinator) InactiveChats(_ context.Context, limit int) ([]string, error) {
	if limit > 0 && len(s.inactive) > limit {
		return s.inactive[:limit], nil
	}
	return s.inactive, nil
}

func (s *stubCoordinator) ReassignChat(_ context.Context, _ domain.Principal, chatID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[chatID]++
	if err := s.results[chatID]; err != nil {
		return "", err
	}
	return "op-1", nil
}

func (s *stubCoordinator) callCount(chatID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[chatID]
}

func newTestScheduler(coord Reassigner, cfg SchedulerConfig) *ReassignmentScheduler {
	return NewReassignmentScheduler(coord, zap.NewNop(), cfg)
}

func TestSweepProcessesEveryChat(t *testing.T) {
	coord := newStubCoordinator("chat-1", "chat-2", "chat-3")
	rs := newTestScheduler(coord, SchedulerConfig{})

	require.NoError(t, rs.Sweep(context.Background()))
	require.Equal(t, 1, coord.callCount("chat-1"))
	require.Equal(t, 1, coord.callCount("chat-2"))
	require.Equal(t, 1, coord.callCount("chat-3"))
}

func TestSweepContinuesPastFailures(t *testing.T) {
	coord := newStubCoordinator("chat-1", "chat-2", "chat-3")
	coord.results["chat-2"] = domain.WrapError(domain.ErrCodeInternal, "db down", nil)
	rs := newTestScheduler(coord, SchedulerConfig{})

	require.NoError(t, rs.Sweep(context.Background()))
	require.Equal(t, 1, coord.callCount("chat-1"))
	require.Equal(t, 1, coord.callCount("chat-3"))
}

func TestSweepRetriesTransientFailures(t *testing.T) {
	coord := newStubCoordinator("chat-1")
	coord.results["chat-1"] = domain.WrapError(domain.ErrCodeInternal, "db down", nil)
	rs := newTestScheduler(coord, SchedulerConfig{ItemRetries: 2})

	require.NoError(t, rs.Sweep(context.Background()))
	require.Equal(t, 3, coord.callCount("chat-1"))
}

func TestSweepDoesNotRetryBusinessOutcomes(t *testing.T) {
	coord := newStubCoordinator("chat-1")
	coord.results["chat-1"] = domain.ErrChatNotEligible
	rs := newTestScheduler(coord, SchedulerConfig{ItemRetries: 2})

	require.NoError(t, rs.Sweep(context.Background()))
	require.Equal(t, 1, coord.callCount("chat-1"))
}

func TestSweepStopsBetweenItemsOnCancellation(t *testing.T) {
	coord := newStubCoordinator("chat-1", "chat-2", "chat-3")
	rs := newTestScheduler(coord, SchedulerConfig{ItemDelay: 20 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, rs.Sweep(ctx))
	}()
	cancel()
	<-done

	total := coord.callCount("chat-1") + coord.callCount("chat-2") + coord.callCount("chat-3")
	require.LessOrEqual(t, total, 3)
}

func TestSweepHonorsBatchSize(t *testing.T) {
	coord := newStubCoordinator("chat-1", "chat-2", "chat-3")
	rs := newTestScheduler(coord, SchedulerConfig{BatchSize: 2})

	require.NoError(t, rs.Sweep(context.Background()))
	require.Equal(t, 0, coord.callCount("chat-3"))
}

func TestStopBeforeStartupDelayNeverSweeps(t *testing.T) {
	coord := newStubCoordinator("chat-1")
	rs := newTestScheduler(coord, SchedulerConfig{
		Interval:     time.Second,
		StartupDelay: time.Hour,
	})
	rs.Start()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	rs.Stop(ctx)

	require.Equal(t, 0, coord.callCount("chat-1"))
}
