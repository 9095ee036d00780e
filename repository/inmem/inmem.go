// Package inmem provides map-backed implementations of the repository
// interfaces for use in tests. The store mirrors the Postgres unit of work:
// a failed transaction restores the pre-transaction snapshot, and
// transactions are serialized, standing in for row-level locking.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/chatline/backend/domain"
	"github.com/chatline/backend/repository"
)

// Store is an in-memory repository.Store and repository.TxRunner.
type Store struct {
	mu        sync.Mutex
	chats     map[string]domain.Chat
	operators map[string]domain.Operator
	messages  []domain.Message
	outbox    []domain.OutboxEntry
}

func NewStore() *Store {
	return &Store{
		chats:     make(map[string]domain.Chat),
		operators: make(map[string]domain.Operator),
	}
}

// PutChat seeds a chat, bypassing the transaction machinery.
func (m *Store) PutChat(chat *domain.Chat) { m.chats[chat.ID] = chatRow(chat) }

// PutOperator seeds an operator, bypassing the transaction machinery.
func (m *Store) PutOperator(op *domain.Operator) { m.operators[op.ID] = operatorRow(op) }

// chatRow copies the aggregate with its pending-event buffer cleared. SQL
// rows never carry unpublished events, so a stored copy must not either:
// resurrecting the buffer on a later GetByID would double-append events
// that were already drained into the outbox.
func chatRow(c *domain.Chat) domain.Chat {
	row := *c
	row.DrainEvents()
	return row
}

func operatorRow(o *domain.Operator) domain.Operator {
	row := *o
	row.DrainEvents()
	return row
}

// Chat returns the stored chat state by ID.
func (m *Store) Chat(id string) domain.Chat { return m.chats[id] }

// Operator returns the stored operator state by ID.
func (m *Store) Operator(id string) domain.Operator { return m.operators[id] }

// OutboxEntries returns a copy of the appended outbox entries in order.
func (m *Store) OutboxEntries() []domain.OutboxEntry {
	return append([]domain.OutboxEntry(nil), m.outbox...)
}

// StoredMessages returns a copy of the created messages in order.
func (m *Store) StoredMessages() []domain.Message {
	return append([]domain.Message(nil), m.messages...)
}

func (m *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, s repository.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapChats := make(map[string]domain.Chat, len(m.chats))
	for k, v := range m.chats {
		snapChats[k] = v
	}
	snapOps := make(map[string]domain.Operator, len(m.operators))
	for k, v := range m.operators {
		snapOps[k] = v
	}
	snapMessages := append([]domain.Message(nil), m.messages...)
	snapOutbox := append([]domain.OutboxEntry(nil), m.outbox...)

	if err := fn(ctx, m); err != nil {
		m.chats = snapChats
		m.operators = snapOps
		m.messages = snapMessages
		m.outbox = snapOutbox
		return err
	}
	return nil
}

func (m *Store) Chats() repository.ChatRepository         { return (*chatRepo)(m) }
func (m *Store) Operators() repository.OperatorRepository { return (*operatorRepo)(m) }
func (m *Store) Messages() repository.MessageRepository   { return (*messageRepo)(m) }
func (m *Store) Outbox() repository.OutboxRepository      { return (*outboxRepo)(m) }

type chatRepo Store

func (r *chatRepo) GetByID(_ context.Context, id string) (*domain.Chat, error) {
	chat, ok := r.chats[id]
	if !ok {
		return nil, domain.ErrChatNotFound
	}
	copied := chat
	return &copied, nil
}

func (r *chatRepo) List(_ context.Context, filter repository.ChatFilter) ([]domain.Chat, error) {
	var chats []domain.Chat
	for _, chat := range r.chats {
		if filter.Status != "" && chat.Status != filter.Status {
			continue
		}
		chats = append(chats, chat)
	}
	return chats, nil
}

func (r *chatRepo) ListInactive(_ context.Context, threshold time.Duration, limit int) ([]domain.Chat, error) {
	var chats []domain.Chat
	for _, chat := range r.chats {
		if chat.Status == domain.ChatStatusActive && time.Since(chat.LastActivityAt) > threshold {
			chats = append(chats, chat)
		}
		if limit > 0 && len(chats) >= limit {
			break
		}
	}
	return chats, nil
}

func (r *chatRepo) Create(_ context.Context, chat *domain.Chat) error {
	r.chats[chat.ID] = chatRow(chat)
	return nil
}

func (r *chatRepo) Update(_ context.Context, chat *domain.Chat) error {
	if _, ok := r.chats[chat.ID]; !ok {
		return domain.ErrChatNotFound
	}
	r.chats[chat.ID] = chatRow(chat)
	return nil
}

type operatorRepo Store

func (r *operatorRepo) GetByID(_ context.Context, id string) (*domain.Operator, error) {
	op, ok := r.operators[id]
	if !ok {
		return nil, domain.ErrOperatorNotFound
	}
	copied := op
	return &copied, nil
}

func (r *operatorRepo) GetByUserID(_ context.Context, userID string) (*domain.Operator, error) {
	for _, op := range r.operators {
		if op.UserID == userID {
			copied := op
			return &copied, nil
		}
	}
	return nil, domain.ErrOperatorNotFound
}

func (r *operatorRepo) ListAvailable(_ context.Context) ([]domain.Operator, error) {
	var operators []domain.Operator
	for _, op := range r.operators {
		if op.IsOnline && op.Status == domain.OperatorStatusAvailable && op.CurrentChatCount < op.MaxConcurrentChats {
			operators = append(operators, op)
		}
	}
	return operators, nil
}

func (r *operatorRepo) Create(_ context.Context, op *domain.Operator) error {
	r.operators[op.ID] = operatorRow(op)
	return nil
}

func (r *operatorRepo) Update(_ context.Context, op *domain.Operator) error {
	if _, ok := r.operators[op.ID]; !ok {
		return domain.ErrOperatorNotFound
	}
	r.operators[op.ID] = operatorRow(op)
	return nil
}

func (r *operatorRepo) AcquireSlot(_ context.Context, id string) (bool, error) {
	op, ok := r.operators[id]
	if !ok {
		return false, nil
	}
	if !op.IsOnline || op.Status != domain.OperatorStatusAvailable || op.CurrentChatCount >= op.MaxConcurrentChats {
		return false, nil
	}
	op.CurrentChatCount++
	if op.CurrentChatCount >= op.MaxConcurrentChats {
		op.Status = domain.OperatorStatusBusy
	}
	now := time.Now().UTC()
	op.LastActiveAt = &now
	r.operators[id] = op
	return true, nil
}

func (r *operatorRepo) ReleaseSlot(_ context.Context, id string) error {
	op, ok := r.operators[id]
	if !ok {
		return domain.ErrOperatorNotFound
	}
	if op.CurrentChatCount > 0 {
		op.CurrentChatCount--
	}
	if op.IsOnline {
		if op.CurrentChatCount >= op.MaxConcurrentChats {
			op.Status = domain.OperatorStatusBusy
		} else {
			op.Status = domain.OperatorStatusAvailable
		}
	}
	r.operators[id] = op
	return nil
}

type messageRepo Store

func (r *messageRepo) Create(_ context.Context, message *domain.Message) error {
	r.messages = append(r.messages, *message)
	return nil
}

func (r *messageRepo) List(_ context.Context, filter repository.MessageFilter) ([]domain.Message, error) {
	var messages []domain.Message
	for _, m := range r.messages {
		if m.ChatID == filter.ChatID {
			messages = append(messages, m)
		}
	}
	return messages, nil
}

type outboxRepo Store

func (r *outboxRepo) Append(_ context.Context, entry *domain.OutboxEntry) error {
	r.outbox = append(r.outbox, *entry)
	return nil
}

func (r *outboxRepo) ClaimBatch(_ context.Context, instanceID string, limit, maxRetries int, claimTimeout time.Duration) ([]domain.OutboxEntry, error) {
	var claimed []domain.OutboxEntry
	for i := range r.outbox {
		entry := &r.outbox[i]
		if entry.Processed || entry.RetryCount >= maxRetries {
			continue
		}
		if entry.ClaimedAt != nil && !entry.ClaimExpired(claimTimeout) {
			continue
		}
		entry.Claim(instanceID)
		claimed = append(claimed, *entry)
		if limit > 0 && len(claimed) >= limit {
			break
		}
	}
	return claimed, nil
}

func (r *outboxRepo) MarkProcessed(_ context.Context, id string) error {
	for i := range r.outbox {
		if r.outbox[i].ID == id {
			r.outbox[i].MarkProcessed()
			return nil
		}
	}
	return domain.NewError(domain.ErrCodeNotFound, "outbox entry not found")
}

func (r *outboxRepo) MarkFailed(_ context.Context, id string, errMsg string) error {
	for i := range r.outbox {
		if r.outbox[i].ID == id {
			r.outbox[i].MarkFailed(errMsg)
			r.outbox[i].InstanceID = ""
			r.outbox[i].ClaimedAt = nil
			return nil
		}
	}
	return domain.NewError(domain.ErrCodeNotFound, "outbox entry not found")
}

// Presence is a map-backed repository.PresenceRepository.
type Presence struct {
	mu       sync.Mutex
	online   map[string]string
	counters map[string]int64
	values   map[string]string
}

func NewPresence() *Presence {
	return &Presence{
		online:   make(map[string]string),
		counters: make(map[string]int64),
		values:   make(map[string]string),
	}
}

func (f *Presence) SetOperatorOnline(_ context.Context, operatorID, connectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[operatorID] = connectionID
	return nil
}

func (f *Presence) SetOperatorOffline(_ context.Context, operatorID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.online, operatorID)
	return nil
}

func (f *Presence) OnlineOperators(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.online))
	for id := range f.online {
		ids = append(ids, id)
	}
	return ids, nil
}

func (f *Presence) IsOperatorOnline(_ context.Context, operatorID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.online[operatorID]
	return ok, nil
}

func (f *Presence) ConnectionID(_ context.Context, operatorID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conn, ok := f.online[operatorID]
	if !ok {
		return "", domain.NewError(domain.ErrCodeNotFound, "no connection")
	}
	return conn, nil
}

func (f *Presence) Set(_ context.Context, key, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}

func (f *Presence) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.values[key]
	if !ok {
		return "", domain.NewError(domain.ErrCodeNotFound, "key not found")
	}
	return value, nil
}

func (f *Presence) Increment(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[key]++
	return f.counters[key], nil
}

func (f *Presence) Decrement(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[key]--
	return f.counters[key], nil
}

var (
	_ repository.Store              = (*Store)(nil)
	_ repository.TxRunner           = (*Store)(nil)
	_ repository.PresenceRepository = (*Presence)(nil)
)
