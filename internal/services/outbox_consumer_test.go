package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatline/backend/domain"
	"github.com/chatline/backend/repository/inmem"
)

type stubGateway struct {
	mu        sync.Mutex
	published []string
	fail      map[string]error
}

func newStubGateway() *stubGateway {
	return &stubGateway{fail: make(map[string]error)}
}

func (g *stubGateway) Publish(_ context.Context, entry domain.OutboxEntry) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fail[entry.ID]; err != nil {
		return err
	}
	g.published = append(g.published, entry.ID)
	return nil
}

func (g *stubGateway) publishedIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.published...)
}

type mapJournal struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMapJournal() *mapJournal {
	return &mapJournal{seen: make(map[string]bool)}
}

func (j *mapJournal) Seen(eventID string) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.seen[eventID], nil
}

func (j *mapJournal) MarkDelivered(eventID string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.seen[eventID] = true
	return nil
}

func appendEntry(t *testing.T, store *inmem.Store, chatID string) domain.OutboxEntry {
	t.Helper()
	event := domain.NewMessageSentEvent(chatID, "msg-1", "user-1")
	entry, err := domain.NewOutboxEntry(event)
	require.NoError(t, err)
	require.NoError(t, store.Outbox().Append(context.Background(), entry))
	return *entry
}

func newTestConsumer(store *inmem.Store, gateway NotificationGateway, journal DeliveryJournal, cfg ConsumerConfig) *OutboxConsumer {
	return NewOutboxConsumer(store.Outbox(), gateway, journal, zap.NewNop(), cfg)
}

func TestProcessBatchDeliversAndAcks(t *testing.T) {
	store := inmem.NewStore()
	gateway := newStubGateway()
	entry := appendEntry(t, store, "chat-1")

	oc := newTestConsumer(store, gateway, newMapJournal(), ConsumerConfig{})
	require.NoError(t, oc.ProcessBatch(context.Background()))

	require.Equal(t, []string{entry.ID}, gateway.publishedIDs())
	stored := store.OutboxEntries()[0]
	require.True(t, stored.Processed)
	require.NotNil(t, stored.ProcessedAt)
}

func TestProcessBatchRetriesFailedDelivery(t *testing.T) {
	store := inmem.NewStore()
	gateway := newStubGateway()
	entry := appendEntry(t, store, "chat-1")
	gateway.fail[entry.ID] = errors.New("broker unreachable")

	oc := newTestConsumer(store, gateway, newMapJournal(), ConsumerConfig{MaxRetries: 3})
	require.NoError(t, oc.ProcessBatch(context.Background()))

	stored := store.OutboxEntries()[0]
	require.False(t, stored.Processed)
	require.Equal(t, 1, stored.RetryCount)
	require.Equal(t, "broker unreachable", stored.LastError)
	require.Empty(t, stored.InstanceID)

	// broker recovers; the cleared claim makes the entry reclaimable
	delete(gateway.fail, entry.ID)
	require.NoError(t, oc.ProcessBatch(context.Background()))
	require.True(t, store.OutboxEntries()[0].Processed)
}

func TestProcessBatchParksAfterRetryLimit(t *testing.T) {
	store := inmem.NewStore()
	gateway := newStubGateway()
	entry := appendEntry(t, store, "chat-1")
	gateway.fail[entry.ID] = errors.New("broker unreachable")

	oc := newTestConsumer(store, gateway, newMapJournal(), ConsumerConfig{MaxRetries: 2})
	require.NoError(t, oc.ProcessBatch(context.Background()))
	require.NoError(t, oc.ProcessBatch(context.Background()))

	stored := store.OutboxEntries()[0]
	require.False(t, stored.Processed)
	require.Equal(t, 2, stored.RetryCount)

	// parked: no further claims
	require.NoError(t, oc.ProcessBatch(context.Background()))
	require.Equal(t, 2, store.OutboxEntries()[0].RetryCount)
	require.Empty(t, gateway.publishedIDs())
}

func TestJournalSuppressesRedelivery(t *testing.T) {
	store := inmem.NewStore()
	gateway := newStubGateway()
	journal := newMapJournal()
	entry := appendEntry(t, store, "chat-1")
	require.NoError(t, journal.MarkDelivered(entry.ID))

	oc := newTestConsumer(store, gateway, journal, ConsumerConfig{})
	require.NoError(t, oc.ProcessBatch(context.Background()))

	require.Empty(t, gateway.publishedIDs())
	require.True(t, store.OutboxEntries()[0].Processed)
}

func TestExpiredClaimIsReclaimable(t *testing.T) {
	store := inmem.NewStore()
	gateway := newStubGateway()
	entry := appendEntry(t, store, "chat-1")

	// another instance claimed it and went away
	_, err := store.Outbox().ClaimBatch(context.Background(), "dead-instance", 10, 3, time.Minute)
	require.NoError(t, err)

	oc := newTestConsumer(store, gateway, newMapJournal(), ConsumerConfig{ClaimTimeout: time.Nanosecond})
	time.Sleep(time.Millisecond)
	require.NoError(t, oc.ProcessBatch(context.Background()))

	require.Equal(t, []string{entry.ID}, gateway.publishedIDs())
	require.True(t, store.OutboxEntries()[0].Processed)
}
