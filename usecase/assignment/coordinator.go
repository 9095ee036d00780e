package assignment

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/chatline/backend/domain"
	"github.com/chatline/backend/repository"
)

// Coordinator orchestrates assignment transitions as all-or-nothing
// transactions spanning the chat, the operator ledger and the outbox. It is
// called concurrently by request handlers and by the reassignment scheduler;
// correctness under that concurrency rests on the store's atomic
// compare-and-increment, not on in-process locks.
type Coordinator struct {
	tx                repository.TxRunner
	balancer          *LoadBalancer
	logger            *zap.Logger
	reassignThreshold time.Duration
}

func NewCoordinator(tx repository.TxRunner, balancer *LoadBalancer, reassignThreshold time.Duration, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reassignThreshold <= 0 {
		reassignThreshold = domain.DefaultReassignThreshold
	}
	return &Coordinator{
		tx:                tx,
		balancer:          balancer,
		logger:            logger,
		reassignThreshold: reassignThreshold,
	}
}

// AssignChatToOperator picks the best available operator and assigns the
// chat to it. The balancer's recommendation is re-validated at commit time
// with an atomic slot acquisition, so a race between selection and commit
// cannot push an operator past its cap.
func (c *Coordinator) AssignChatToOperator(ctx context.Context, principal domain.Principal, chatID string) (string, error) {
	var candidateID string

	err := c.tx.WithinTx(ctx, func(ctx context.Context, s repository.Store) error {
		chat, err := s.Chats().GetByID(ctx, chatID)
		if err != nil {
			return err
		}
		if chat.AssignedOperatorID != nil {
			return domain.ErrChatAlreadyAssigned
		}

		candidateID, err = c.balancer.FindBestAvailableOperator(ctx)
		if err != nil {
			return err
		}

		taken, err := s.Operators().AcquireSlot(ctx, candidateID)
		if err != nil {
			return err
		}
		if !taken {
			return domain.ErrCapacityExceeded
		}

		if err := chat.AssignOperator(candidateID); err != nil {
			return err
		}
		events := chat.DrainEvents()
		if err := s.Chats().Update(ctx, chat); err != nil {
			return err
		}
		return repository.AppendEvents(ctx, s, events)
	})
	if err != nil {
		return "", c.classify(err, "assign chat", chatID)
	}

	c.logger.Info("chat assigned",
		zap.String("chat_id", chatID),
		zap.String("operator_id", candidateID),
		zap.String("actor", principal.UserID))

	return candidateID, nil
}

// ReassignChat moves a stalled chat away from its silent operator. When no
// replacement is available the chat is committed unassigned but still
// active, so the next scheduler pass picks it up again; that outcome is
// surfaced as NoOperatorsAvailable.
func (c *Coordinator) ReassignChat(ctx context.Context, principal domain.Principal, chatID string) (string, error) {
	var (
		newOperatorID string
		noCandidates  bool
	)

	err := c.tx.WithinTx(ctx, func(ctx context.Context, s repository.Store) error {
		chat, err := s.Chats().GetByID(ctx, chatID)
		if err != nil {
			return err
		}
		if !chat.CanBeReassignedAfter(c.reassignThreshold) {
			return domain.ErrChatNotEligible
		}

		if prev := chat.AssignedOperatorID; prev != nil {
			if err := s.Operators().ReleaseSlot(ctx, *prev); err != nil {
				if !domain.IsDomainError(err, domain.ErrCodeNotFound) {
					return err
				}
				c.logger.Warn("previous operator missing during reassignment",
					zap.String("chat_id", chatID),
					zap.String("operator_id", *prev))
			}
		}

		candidateID, err := c.balancer.FindBestAvailableOperator(ctx)
		if err != nil {
			if !domain.IsDomainError(err, domain.ErrCodeNoOperatorsAvailable) {
				return err
			}
			// nobody to take it: commit the release and leave the chat
			// unassigned for the next pass
			noCandidates = true
			chat.Unassign()
			return s.Chats().Update(ctx, chat)
		}

		taken, err := s.Operators().AcquireSlot(ctx, candidateID)
		if err != nil {
			return err
		}
		if !taken {
			return domain.ErrCapacityExceeded
		}

		if err := chat.AssignOperator(candidateID); err != nil {
			return err
		}
		events := chat.DrainEvents()
		if err := s.Chats().Update(ctx, chat); err != nil {
			return err
		}
		if err := repository.AppendEvents(ctx, s, events); err != nil {
			return err
		}

		newOperatorID = candidateID
		return nil
	})
	if err != nil {
		return "", c.classify(err, "reassign chat", chatID)
	}
	if noCandidates {
		c.logger.Warn("no operators available, chat left unassigned", zap.String("chat_id", chatID))
		return "", domain.ErrNoOperatorsAvailable
	}

	c.logger.Info("chat reassigned",
		zap.String("chat_id", chatID),
		zap.String("operator_id", newOperatorID),
		zap.String("actor", principal.UserID))

	return newOperatorID, nil
}

// TransferChat hands a chat to an explicitly chosen operator.
func (c *Coordinator) TransferChat(ctx context.Context, principal domain.Principal, chatID, newOperatorID, reason string) error {
	if reason == "" {
		return domain.NewError(domain.ErrCodeInvalid, "transfer reason is required")
	}
	if !principal.IsStaff() {
		return domain.ErrForbidden
	}

	err := c.tx.WithinTx(ctx, func(ctx context.Context, s repository.Store) error {
		chat, err := s.Chats().GetByID(ctx, chatID)
		if err != nil {
			return err
		}

		target, err := s.Operators().GetByID(ctx, newOperatorID)
		if err != nil {
			return err
		}
		if !target.CanAcceptNewChat() {
			return domain.ErrCapacityExceeded
		}

		taken, err := s.Operators().AcquireSlot(ctx, target.ID)
		if err != nil {
			return err
		}
		if !taken {
			return domain.ErrCapacityExceeded
		}

		if prev := chat.AssignedOperatorID; prev != nil {
			if err := s.Operators().ReleaseSlot(ctx, *prev); err != nil {
				if !domain.IsDomainError(err, domain.ErrCodeNotFound) {
					return err
				}
				c.logger.Warn("previous operator missing during transfer",
					zap.String("chat_id", chatID),
					zap.String("operator_id", *prev))
			}
		}

		if err := chat.TransferToOperator(newOperatorID, reason); err != nil {
			return err
		}
		events := chat.DrainEvents()
		if err := s.Chats().Update(ctx, chat); err != nil {
			return err
		}
		return repository.AppendEvents(ctx, s, events)
	})
	if err != nil {
		return c.classify(err, "transfer chat", chatID)
	}

	c.logger.Info("chat transferred",
		zap.String("chat_id", chatID),
		zap.String("operator_id", newOperatorID),
		zap.String("reason", reason),
		zap.String("actor", principal.UserID))

	return nil
}

// ReleaseChatFromOperator unassigns the chat's current operator. Releasing
// an unassigned chat is a no-op.
func (c *Coordinator) ReleaseChatFromOperator(ctx context.Context, principal domain.Principal, chatID string) error {
	var released *string

	err := c.tx.WithinTx(ctx, func(ctx context.Context, s repository.Store) error {
		chat, err := s.Chats().GetByID(ctx, chatID)
		if err != nil {
			return err
		}
		if chat.AssignedOperatorID == nil {
			return nil
		}

		operatorID := *chat.AssignedOperatorID
		op, err := s.Operators().GetByID(ctx, operatorID)
		if err != nil && !domain.IsDomainError(err, domain.ErrCodeNotFound) {
			return err
		}

		if op != nil {
			if err := s.Operators().ReleaseSlot(ctx, operatorID); err != nil {
				return err
			}
		} else {
			c.logger.Warn("operator missing during release",
				zap.String("chat_id", chatID),
				zap.String("operator_id", operatorID))
		}

		chat.Unassign()
		if err := s.Chats().Update(ctx, chat); err != nil {
			return err
		}

		if op != nil {
			event := domain.Event{}
			op.UnassignChat()
			events := op.DrainEvents()
			for _, e := range events {
				if e.Kind == domain.EventOperatorChatUnassigned {
					event = e
					break
				}
			}
			if event.ID != "" {
				if err := repository.AppendEvents(ctx, s, []domain.Event{event}); err != nil {
					return err
				}
			}
		}

		released = &operatorID
		return nil
	})
	if err != nil {
		return c.classify(err, "release chat", chatID)
	}

	if released != nil {
		c.logger.Info("chat released",
			zap.String("chat_id", chatID),
			zap.String("operator_id", *released),
			zap.String("actor", principal.UserID))
	}

	return nil
}

// InactiveChats returns ids of active chats stalled beyond the configured
// threshold, oldest first. The scheduler feeds these back into ReassignChat.
func (c *Coordinator) InactiveChats(ctx context.Context, limit int) ([]string, error) {
	var ids []string
	err := c.tx.WithinTx(ctx, func(ctx context.Context, s repository.Store) error {
		chats, err := s.Chats().ListInactive(ctx, c.reassignThreshold, limit)
		if err != nil {
			return err
		}
		for _, chat := range chats {
			ids = append(ids, chat.ID)
		}
		return nil
	})
	if err != nil {
		return nil, c.classify(err, "list inactive chats", "")
	}
	return ids, nil
}

// classify passes expected business errors through and converts anything
// unexpected into a logged internal error.
func (c *Coordinator) classify(err error, op, chatID string) error {
	var dErr *domain.Error
	if errors.As(err, &dErr) && dErr.Code != domain.ErrCodeInternal {
		return err
	}
	return c.internal(err, op, chatID)
}

func (c *Coordinator) internal(err error, op, chatID string) error {
	c.logger.Error("coordinator operation failed",
		zap.String("operation", op),
		zap.String("chat_id", chatID),
		zap.Error(err))
	return domain.WrapError(domain.ErrCodeInternal, "failed to "+op, err)
}
