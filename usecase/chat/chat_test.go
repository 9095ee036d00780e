package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatline/backend/domain"
	"github.com/chatline/backend/repository"
	"github.com/chatline/backend/repository/inmem"
)

var (
	customer = domain.Principal{UserID: "user-1"}
	operator = domain.Principal{UserID: "op-user-1", Roles: []string{domain.RoleOperator}}
)

type stubAssigner struct {
	assign func(ctx context.Context, principal domain.Principal, chatID string) (string, error)
}

func (s *stubAssigner) AssignChatToOperator(ctx context.Context, principal domain.Principal, chatID string) (string, error) {
	if s.assign == nil {
		return "", domain.ErrNoOperatorsAvailable
	}
	return s.assign(ctx, principal, chatID)
}

type fixture struct {
	store    *inmem.Store
	assigner *stubAssigner
	uc       *UseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := inmem.NewStore()
	assigner := &stubAssigner{}
	return &fixture{
		store:    store,
		assigner: assigner,
		uc:       New(store, store, assigner, zap.NewNop()),
	}
}

func seedActiveChat(t *testing.T, f *fixture, operatorID string) *domain.Chat {
	t.Helper()
	chat, err := domain.NewChat("printer is on fire", domain.ChatTypeSupport, customer.UserID, 5)
	require.NoError(t, err)
	require.NoError(t, chat.AssignOperator(operatorID))
	chat.DrainEvents()
	f.store.PutChat(chat)
	return chat
}

func seedBusyOperator(t *testing.T, f *fixture, id string, count int) {
	t.Helper()
	op, err := domain.NewOperator("op-user-"+id, "Op "+id, id+"@example.com", 5)
	require.NoError(t, err)
	op.ID = id
	op.SetOnline()
	for i := 0; i < count; i++ {
		require.NoError(t, op.AssignChat())
	}
	op.DrainEvents()
	f.store.PutOperator(op)
}

func TestCreateChatAssignsImmediately(t *testing.T) {
	f := newFixture(t)
	assigned := false
	f.assigner.assign = func(ctx context.Context, _ domain.Principal, chatID string) (string, error) {
		assigned = true
		stored, err := f.store.Chats().GetByID(ctx, chatID)
		require.NoError(t, err)
		require.NoError(t, stored.AssignOperator("op-1"))
		require.NoError(t, f.store.Chats().Update(ctx, stored))
		return "op-1", nil
	}

	chat, err := f.uc.CreateChat(context.Background(), customer, "cannot log in", domain.ChatTypeSupport, 5)
	require.NoError(t, err)
	require.True(t, assigned)
	require.Equal(t, domain.ChatStatusActive, chat.Status)
	require.NotNil(t, chat.AssignedOperatorID)

	entries := f.store.OutboxEntries()
	require.Len(t, entries, 1)
	require.Equal(t, domain.EventChatCreated, entries[0].EventType)
}

func TestCreateChatStaysPendingWithoutOperators(t *testing.T) {
	f := newFixture(t)

	chat, err := f.uc.CreateChat(context.Background(), customer, "cannot log in", domain.ChatTypeSupport, 5)
	require.NoError(t, err)
	require.Equal(t, domain.ChatStatusPending, chat.Status)
	require.Nil(t, chat.AssignedOperatorID)
	require.Equal(t, domain.ChatStatusPending, f.store.Chat(chat.ID).Status)
}

func TestCreateChatSurvivesAssignmentFailure(t *testing.T) {
	f := newFixture(t)
	f.assigner.assign = func(context.Context, domain.Principal, string) (string, error) {
		return "", domain.WrapError(domain.ErrCodeInternal, "presence lookup failed", nil)
	}

	// the chat is durable before assignment runs; a broken assigner must not
	// make the create look failed
	chat, err := f.uc.CreateChat(context.Background(), customer, "cannot log in", domain.ChatTypeSupport, 5)
	require.NoError(t, err)
	require.Equal(t, domain.ChatStatusPending, chat.Status)
	require.Equal(t, domain.ChatStatusPending, f.store.Chat(chat.ID).Status)
}

func TestCreateChatRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.CreateChat(context.Background(), customer, "", domain.ChatTypeSupport, 5)
	require.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))

	_, err = f.uc.CreateChat(context.Background(), customer, "help", domain.ChatTypeSupport, 42)
	require.True(t, domain.IsDomainError(err, domain.ErrCodeInvalid))
}

func TestCloseChatReleasesOperatorSlot(t *testing.T) {
	f := newFixture(t)
	seedBusyOperator(t, f, "op-1", 1)
	chat := seedActiveChat(t, f, "op-1")

	require.NoError(t, f.uc.CloseChat(context.Background(), customer, chat.ID, "resolved"))

	stored := f.store.Chat(chat.ID)
	require.Equal(t, domain.ChatStatusClosed, stored.Status)
	require.Nil(t, stored.AssignedOperatorID)
	require.Equal(t, "resolved", stored.CloseReason)
	require.Equal(t, 0, f.store.Operator("op-1").CurrentChatCount)

	entries := f.store.OutboxEntries()
	require.Len(t, entries, 1)
	require.Equal(t, domain.EventChatClosed, entries[0].EventType)
}

func TestCloseChatIsIdempotent(t *testing.T) {
	f := newFixture(t)
	seedBusyOperator(t, f, "op-1", 1)
	chat := seedActiveChat(t, f, "op-1")

	require.NoError(t, f.uc.CloseChat(context.Background(), customer, chat.ID, "resolved"))
	require.NoError(t, f.uc.CloseChat(context.Background(), customer, chat.ID, "resolved again"))

	stored := f.store.Chat(chat.ID)
	require.Equal(t, "resolved", stored.CloseReason)
	require.Len(t, f.store.OutboxEntries(), 1)
	require.Equal(t, 0, f.store.Operator("op-1").CurrentChatCount)
}

func TestCloseChatForbiddenForStrangers(t *testing.T) {
	f := newFixture(t)
	seedBusyOperator(t, f, "op-1", 1)
	chat := seedActiveChat(t, f, "op-1")

	stranger := domain.Principal{UserID: "someone-else"}
	err := f.uc.CloseChat(context.Background(), stranger, chat.ID, "nope")
	require.True(t, domain.IsDomainError(err, domain.ErrCodeForbidden))
	require.Equal(t, domain.ChatStatusActive, f.store.Chat(chat.ID).Status)
}

func TestAbandonChat(t *testing.T) {
	f := newFixture(t)
	seedBusyOperator(t, f, "op-1", 1)
	chat := seedActiveChat(t, f, "op-1")

	require.NoError(t, f.uc.AbandonChat(context.Background(), customer, chat.ID))

	stored := f.store.Chat(chat.ID)
	require.Equal(t, domain.ChatStatusAbandoned, stored.Status)
	require.Nil(t, stored.AssignedOperatorID)
	require.Equal(t, 0, f.store.Operator("op-1").CurrentChatCount)

	entries := f.store.OutboxEntries()
	require.Len(t, entries, 1)
	require.Equal(t, domain.EventChatAbandoned, entries[0].EventType)
}

func TestSendMessageBumpsActivity(t *testing.T) {
	f := newFixture(t)
	chat := seedActiveChat(t, f, "op-1")

	stale := time.Now().UTC().Add(-10 * time.Minute)
	stored := f.store.Chat(chat.ID)
	stored.LastActivityAt = stale
	f.store.PutChat(&stored)

	message, err := f.uc.SendMessage(context.Background(), operator, chat.ID, "hello there")
	require.NoError(t, err)
	require.Equal(t, chat.ID, message.ChatID)
	require.Equal(t, operator.UserID, message.SenderID)

	require.True(t, f.store.Chat(chat.ID).LastActivityAt.After(stale))
	require.Len(t, f.store.StoredMessages(), 1)

	entries := f.store.OutboxEntries()
	require.Len(t, entries, 1)
	require.Equal(t, domain.EventMessageSent, entries[0].EventType)
}

func TestSendMessageRejectsClosedChat(t *testing.T) {
	f := newFixture(t)
	chat := seedActiveChat(t, f, "op-1")
	require.NoError(t, f.uc.CloseChat(context.Background(), customer, chat.ID, "resolved"))
	count := len(f.store.OutboxEntries())

	_, err := f.uc.SendMessage(context.Background(), customer, chat.ID, "anyone there?")
	require.True(t, domain.IsDomainError(err, domain.ErrCodeInvalidState))
	require.Empty(t, f.store.StoredMessages())
	require.Len(t, f.store.OutboxEntries(), count)
}

func TestSendMessageUnknownChat(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.SendMessage(context.Background(), customer, "missing", "hello")
	require.True(t, domain.IsDomainError(err, domain.ErrCodeNotFound))
}

func TestListMessagesFiltersByChat(t *testing.T) {
	f := newFixture(t)
	chat := seedActiveChat(t, f, "op-1")
	other := seedActiveChat(t, f, "op-1")

	_, err := f.uc.SendMessage(context.Background(), customer, chat.ID, "first")
	require.NoError(t, err)
	_, err = f.uc.SendMessage(context.Background(), customer, other.ID, "second")
	require.NoError(t, err)

	messages, err := f.uc.ListMessages(context.Background(), repository.MessageFilter{ChatID: chat.ID})
	require.NoError(t, err)
	require.Len(t, messages, 1)
	require.Equal(t, "first", messages[0].Body)
}
