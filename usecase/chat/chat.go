package chat

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/chatline/backend/domain"
	"github.com/chatline/backend/repository"
)

// Assigner is the slice of the assignment coordinator chat creation needs.
type Assigner interface {
	AssignChatToOperator(ctx context.Context, principal domain.Principal, chatID string) (string, error)
}

// UseCase covers the chat lifecycle commands outside of assignment:
// creation, closing, abandonment and message activity.
type UseCase struct {
	tx     repository.TxRunner
	store  repository.Store
	coord  Assigner
	logger *zap.Logger
}

func New(tx repository.TxRunner, store repository.Store, coord Assigner, logger *zap.Logger) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		tx:     tx,
		store:  store,
		coord:  coord,
		logger: logger,
	}
}

// CreateChat persists a pending chat and then tries to assign it right away.
// When nobody can take it the chat simply stays pending; the caller still
// gets the chat back.
func (uc *UseCase) CreateChat(ctx context.Context, principal domain.Principal, title string, chatType domain.ChatType, priority int) (*domain.Chat, error) {
	chat, err := domain.NewChat(title, chatType, principal.UserID, priority)
	if err != nil {
		return nil, err
	}

	events := chat.DrainEvents()
	err = uc.tx.WithinTx(ctx, func(ctx context.Context, s repository.Store) error {
		if err := s.Chats().Create(ctx, chat); err != nil {
			return err
		}
		return repository.AppendEvents(ctx, s, events)
	})
	if err != nil {
		return nil, uc.classify(err, "create chat", chat.ID)
	}

	uc.logger.Info("chat created",
		zap.String("chat_id", chat.ID),
		zap.String("initiator_id", principal.UserID),
		zap.String("type", string(chat.Type)))

	if _, err := uc.coord.AssignChatToOperator(ctx, principal, chat.ID); err != nil {
		// The chat is already durably created; a failed initial assignment
		// leaves it pending instead of failing the command.
		if domain.IsDomainError(err, domain.ErrCodeNoOperatorsAvailable) {
			uc.logger.Info("chat queued, no operators available", zap.String("chat_id", chat.ID))
		} else {
			uc.logger.Error("initial assignment failed, chat left pending",
				zap.String("chat_id", chat.ID),
				zap.Error(err))
		}
		return chat, nil
	}

	return uc.store.Chats().GetByID(ctx, chat.ID)
}

// CloseChat closes the chat and releases its operator slot. Closing twice is
// a no-op.
func (uc *UseCase) CloseChat(ctx context.Context, principal domain.Principal, chatID, reason string) error {
	return uc.terminate(ctx, principal, chatID, func(chat *domain.Chat) {
		chat.Close(reason)
	})
}

// AbandonChat is the customer-side terminal transition.
func (uc *UseCase) AbandonChat(ctx context.Context, principal domain.Principal, chatID string) error {
	return uc.terminate(ctx, principal, chatID, func(chat *domain.Chat) {
		chat.MarkAbandoned()
	})
}

func (uc *UseCase) terminate(ctx context.Context, principal domain.Principal, chatID string, transition func(*domain.Chat)) error {
	err := uc.tx.WithinTx(ctx, func(ctx context.Context, s repository.Store) error {
		chat, err := s.Chats().GetByID(ctx, chatID)
		if err != nil {
			return err
		}
		if !principal.IsStaff() && chat.InitiatorID != principal.UserID {
			return domain.ErrForbidden
		}

		previousOperator := chat.AssignedOperatorID
		transition(chat)

		if previousOperator != nil && chat.AssignedOperatorID == nil {
			if err := s.Operators().ReleaseSlot(ctx, *previousOperator); err != nil {
				if !domain.IsDomainError(err, domain.ErrCodeNotFound) {
					return err
				}
				uc.logger.Warn("operator missing while closing chat",
					zap.String("chat_id", chatID),
					zap.String("operator_id", *previousOperator))
			}
		}

		events := chat.DrainEvents()
		if err := s.Chats().Update(ctx, chat); err != nil {
			return err
		}
		return repository.AppendEvents(ctx, s, events)
	})
	if err != nil {
		return uc.classify(err, "terminate chat", chatID)
	}
	return nil
}

// SendMessage stores the message and bumps the chat's activity stamp, which
// is what keeps an attended chat away from the reassignment scheduler.
func (uc *UseCase) SendMessage(ctx context.Context, principal domain.Principal, chatID, body string) (*domain.Message, error) {
	message, err := domain.NewMessage(chatID, principal.UserID, body)
	if err != nil {
		return nil, err
	}

	err = uc.tx.WithinTx(ctx, func(ctx context.Context, s repository.Store) error {
		chat, err := s.Chats().GetByID(ctx, chatID)
		if err != nil {
			return err
		}
		if chat.IsClosed() {
			return domain.ErrChatClosed
		}

		if err := s.Messages().Create(ctx, message); err != nil {
			return err
		}

		chat.UpdateActivity()
		if err := s.Chats().Update(ctx, chat); err != nil {
			return err
		}

		event := domain.NewMessageSentEvent(chat.ID, message.ID, principal.UserID)
		return repository.AppendEvents(ctx, s, []domain.Event{event})
	})
	if err != nil {
		return nil, uc.classify(err, "send message", chatID)
	}

	return message, nil
}

// GetChat fetches a single chat.
func (uc *UseCase) GetChat(ctx context.Context, chatID string) (*domain.Chat, error) {
	return uc.store.Chats().GetByID(ctx, chatID)
}

// ListChats lists chats by filter.
func (uc *UseCase) ListChats(ctx context.Context, filter repository.ChatFilter) ([]domain.Chat, error) {
	return uc.store.Chats().List(ctx, filter)
}

// ListMessages lists a chat's messages, newest first.
func (uc *UseCase) ListMessages(ctx context.Context, filter repository.MessageFilter) ([]domain.Message, error) {
	return uc.store.Messages().List(ctx, filter)
}

// classify passes expected business errors through and converts anything
// unexpected into a logged internal error.
func (uc *UseCase) classify(err error, op, chatID string) error {
	var dErr *domain.Error
	if errors.As(err, &dErr) && dErr.Code != domain.ErrCodeInternal {
		return err
	}
	uc.logger.Error("chat operation failed",
		zap.String("operation", op),
		zap.String("chat_id", chatID),
		zap.Error(err))
	return domain.WrapError(domain.ErrCodeInternal, "failed to "+op, err)
}
