package operator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatline/backend/domain"
	"github.com/chatline/backend/repository/inmem"
)

var admin = domain.Principal{UserID: "admin-1", Roles: []string{domain.RoleAdmin}}

type fixture struct {
	store    *inmem.Store
	presence *inmem.Presence
	uc       *UseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := inmem.NewStore()
	presence := inmem.NewPresence()
	return &fixture{
		store:    store,
		presence: presence,
		uc:       New(store, store, presence, 0, zap.NewNop()),
	}
}

func seedOperator(t *testing.T, f *fixture, id, userID string) *domain.Operator {
	t.Helper()
	op, err := domain.NewOperator(userID, "Operator "+id, userID+"@example.com", 5)
	require.NoError(t, err)
	op.ID = id
	op.DrainEvents()
	f.store.PutOperator(op)
	return op
}

func self(op *domain.Operator) domain.Principal {
	return domain.Principal{UserID: op.UserID, Roles: []string{domain.RoleOperator}}
}

func TestOnboard(t *testing.T) {
	f := newFixture(t)

	op, err := f.uc.Onboard(context.Background(), admin, "user-1", "Alice", "alice@example.com", 3)
	require.NoError(t, err)
	require.Equal(t, domain.OperatorStatusOffline, op.Status)
	require.False(t, op.IsOnline)
	require.Equal(t, 3, op.MaxConcurrentChats)

	entries := f.store.OutboxEntries()
	require.Len(t, entries, 1)
	require.Equal(t, domain.EventOperatorCreated, entries[0].EventType)
}

func TestOnboardRequiresAdmin(t *testing.T) {
	f := newFixture(t)

	nonAdmin := domain.Principal{UserID: "user-1", Roles: []string{domain.RoleOperator}}
	_, err := f.uc.Onboard(context.Background(), nonAdmin, "user-1", "Alice", "alice@example.com", 3)
	require.True(t, domain.IsDomainError(err, domain.ErrCodeForbidden))
}

func TestOnboardRejectsDuplicateUser(t *testing.T) {
	f := newFixture(t)
	seedOperator(t, f, "op-1", "user-1")

	_, err := f.uc.Onboard(context.Background(), admin, "user-1", "Alice", "alice@example.com", 3)
	require.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
}

func TestConnectSyncsLedgerAndPresence(t *testing.T) {
	f := newFixture(t)
	op := seedOperator(t, f, "op-1", "user-1")

	connID, err := f.uc.Connect(context.Background(), self(op), "op-1", "conn-42")
	require.NoError(t, err)
	require.Equal(t, "conn-42", connID)

	stored := f.store.Operator("op-1")
	require.True(t, stored.IsOnline)
	require.Equal(t, domain.OperatorStatusAvailable, stored.Status)

	online, err := f.presence.IsOperatorOnline(context.Background(), "op-1")
	require.NoError(t, err)
	require.True(t, online)

	entries := f.store.OutboxEntries()
	require.Len(t, entries, 1)
	require.Equal(t, domain.EventOperatorStatusChanged, entries[0].EventType)
}

func TestConnectGeneratesConnectionID(t *testing.T) {
	f := newFixture(t)
	op := seedOperator(t, f, "op-1", "user-1")

	connID, err := f.uc.Connect(context.Background(), self(op), "op-1", "")
	require.NoError(t, err)
	require.NotEmpty(t, connID)

	got, err := f.presence.ConnectionID(context.Background(), "op-1")
	require.NoError(t, err)
	require.Equal(t, connID, got)
}

func TestReconnectAppendsOneEventPerConnect(t *testing.T) {
	f := newFixture(t)
	op := seedOperator(t, f, "op-1", "op-user-1")

	for i := 0; i < 3; i++ {
		_, err := f.uc.Connect(context.Background(), self(op), op.ID, "conn-1")
		require.NoError(t, err)
	}

	// already-published events must not ride along on later writes
	entries := f.store.OutboxEntries()
	require.Len(t, entries, 3)
	for _, entry := range entries {
		require.Equal(t, domain.EventOperatorStatusChanged, entry.EventType)
	}
}

func TestConnectForbiddenForOtherOperators(t *testing.T) {
	f := newFixture(t)
	seedOperator(t, f, "op-1", "user-1")

	other := domain.Principal{UserID: "user-2", Roles: []string{domain.RoleOperator}}
	_, err := f.uc.Connect(context.Background(), other, "op-1", "conn-1")
	require.True(t, domain.IsDomainError(err, domain.ErrCodeForbidden))
	require.False(t, f.store.Operator("op-1").IsOnline)
}

func TestDisconnect(t *testing.T) {
	f := newFixture(t)
	op := seedOperator(t, f, "op-1", "user-1")
	_, err := f.uc.Connect(context.Background(), self(op), "op-1", "conn-1")
	require.NoError(t, err)

	require.NoError(t, f.uc.Disconnect(context.Background(), self(op), "op-1"))

	stored := f.store.Operator("op-1")
	require.False(t, stored.IsOnline)
	require.Equal(t, domain.OperatorStatusOffline, stored.Status)

	online, err := f.presence.IsOperatorOnline(context.Background(), "op-1")
	require.NoError(t, err)
	require.False(t, online)
}

func TestSetStatusAway(t *testing.T) {
	f := newFixture(t)
	op := seedOperator(t, f, "op-1", "user-1")
	_, err := f.uc.Connect(context.Background(), self(op), "op-1", "conn-1")
	require.NoError(t, err)

	require.NoError(t, f.uc.SetStatus(context.Background(), self(op), "op-1", domain.OperatorStatusAway))
	require.Equal(t, domain.OperatorStatusAway, f.store.Operator("op-1").Status)
}

func TestSetStatusWhileOfflineFails(t *testing.T) {
	f := newFixture(t)
	op := seedOperator(t, f, "op-1", "user-1")

	err := f.uc.SetStatus(context.Background(), self(op), "op-1", domain.OperatorStatusAvailable)
	require.True(t, domain.IsDomainError(err, domain.ErrCodeInvalidState))
}

func TestSetStatusOfflineActsAsDisconnect(t *testing.T) {
	f := newFixture(t)
	op := seedOperator(t, f, "op-1", "user-1")
	_, err := f.uc.Connect(context.Background(), self(op), "op-1", "conn-1")
	require.NoError(t, err)

	require.NoError(t, f.uc.SetStatus(context.Background(), self(op), "op-1", domain.OperatorStatusOffline))

	online, err := f.presence.IsOperatorOnline(context.Background(), "op-1")
	require.NoError(t, err)
	require.False(t, online)
	require.False(t, f.store.Operator("op-1").IsOnline)
}

func TestUpdateCapacity(t *testing.T) {
	f := newFixture(t)
	seedOperator(t, f, "op-1", "user-1")

	require.NoError(t, f.uc.UpdateCapacity(context.Background(), admin, "op-1", 8))
	require.Equal(t, 8, f.store.Operator("op-1").MaxConcurrentChats)

	err := f.uc.UpdateCapacity(context.Background(), admin, "op-1", 0)
	require.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
}

func TestSkills(t *testing.T) {
	f := newFixture(t)
	op := seedOperator(t, f, "op-1", "user-1")

	require.NoError(t, f.uc.AddSkill(context.Background(), self(op), "op-1", "billing"))
	require.NoError(t, f.uc.AddSkill(context.Background(), self(op), "op-1", "billing"))
	require.Equal(t, []string{"billing"}, f.store.Operator("op-1").Skills)

	require.NoError(t, f.uc.RemoveSkill(context.Background(), self(op), "op-1", "billing"))
	require.Empty(t, f.store.Operator("op-1").Skills)

	err := f.uc.AddSkill(context.Background(), self(op), "op-1", "")
	require.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
}
