package operator

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatline/backend/domain"
	"github.com/chatline/backend/repository"
)

// UseCase manages the operator ledger and keeps the presence cache in sync
// with connect/disconnect transitions.
type UseCase struct {
	tx              repository.TxRunner
	store           repository.Store
	presence        repository.PresenceRepository
	defaultMaxChats int
	logger          *zap.Logger
}

func New(tx repository.TxRunner, store repository.Store, presence repository.PresenceRepository, defaultMaxChats int, logger *zap.Logger) *UseCase {
	if defaultMaxChats < 1 {
		defaultMaxChats = domain.DefaultMaxConcurrentChats
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UseCase{
		tx:              tx,
		store:           store,
		presence:        presence,
		defaultMaxChats: defaultMaxChats,
		logger:          logger,
	}
}

// Onboard registers a new operator in the offline state. Admin only.
func (uc *UseCase) Onboard(ctx context.Context, principal domain.Principal, userID, displayName, email string, maxConcurrentChats int) (*domain.Operator, error) {
	if !principal.HasRole(domain.RoleAdmin) {
		return nil, domain.ErrForbidden
	}

	if maxConcurrentChats < 1 {
		maxConcurrentChats = uc.defaultMaxChats
	}
	op, err := domain.NewOperator(userID, displayName, email, maxConcurrentChats)
	if err != nil {
		return nil, err
	}

	err = uc.tx.WithinTx(ctx, func(ctx context.Context, s repository.Store) error {
		if existing, err := s.Operators().GetByUserID(ctx, userID); err == nil {
			return domain.WrapError(domain.ErrCodeInvalid, "operator already exists for user "+existing.UserID, nil)
		} else if !domain.IsDomainError(err, domain.ErrCodeNotFound) {
			return err
		}
		events := op.DrainEvents()
		if err := s.Operators().Create(ctx, op); err != nil {
			return err
		}
		return repository.AppendEvents(ctx, s, events)
	})
	if err != nil {
		return nil, uc.classify(err, "onboard operator", op.ID)
	}

	uc.logger.Info("operator onboarded",
		zap.String("operator_id", op.ID),
		zap.String("user_id", userID))
	return op, nil
}

// Connect marks the operator online in the ledger and registers the
// connection in the presence cache. The ledger write commits first; the
// cache entry is what actually makes the operator routable.
func (uc *UseCase) Connect(ctx context.Context, principal domain.Principal, operatorID, connectionID string) (string, error) {
	if connectionID == "" {
		connectionID = uuid.NewString()
	}

	var op *domain.Operator
	err := uc.tx.WithinTx(ctx, func(ctx context.Context, s repository.Store) error {
		var err error
		op, err = s.Operators().GetByID(ctx, operatorID)
		if err != nil {
			return err
		}
		if err := uc.authorize(principal, op); err != nil {
			return err
		}

		op.SetOnline()
		events := op.DrainEvents()
		if err := s.Operators().Update(ctx, op); err != nil {
			return err
		}
		return repository.AppendEvents(ctx, s, events)
	})
	if err != nil {
		return "", uc.classify(err, "connect operator", operatorID)
	}

	if err := uc.presence.SetOperatorOnline(ctx, operatorID, connectionID); err != nil {
		uc.logger.Error("presence registration failed",
			zap.String("operator_id", operatorID),
			zap.Error(err))
		return "", domain.WrapError(domain.ErrCodeInternal, "failed to register presence", err)
	}

	uc.logger.Info("operator connected",
		zap.String("operator_id", operatorID),
		zap.String("connection_id", connectionID))
	return connectionID, nil
}

// Disconnect removes the operator from the presence cache and marks the
// ledger offline. The cache removal goes first so routing stops immediately
// even if the ledger write fails.
func (uc *UseCase) Disconnect(ctx context.Context, principal domain.Principal, operatorID string) error {
	if err := uc.presence.SetOperatorOffline(ctx, operatorID); err != nil {
		uc.logger.Error("presence removal failed",
			zap.String("operator_id", operatorID),
			zap.Error(err))
		return domain.WrapError(domain.ErrCodeInternal, "failed to remove presence", err)
	}

	err := uc.tx.WithinTx(ctx, func(ctx context.Context, s repository.Store) error {
		op, err := s.Operators().GetByID(ctx, operatorID)
		if err != nil {
			return err
		}
		if err := uc.authorize(principal, op); err != nil {
			return err
		}

		op.SetOffline()
		events := op.DrainEvents()
		if err := s.Operators().Update(ctx, op); err != nil {
			return err
		}
		return repository.AppendEvents(ctx, s, events)
	})
	if err != nil {
		return uc.classify(err, "disconnect operator", operatorID)
	}

	uc.logger.Info("operator disconnected", zap.String("operator_id", operatorID))
	return nil
}

// SetStatus changes the operator's availability. Going available or away
// requires being online; setting offline goes through Disconnect so the
// presence cache stays consistent.
func (uc *UseCase) SetStatus(ctx context.Context, principal domain.Principal, operatorID string, status domain.OperatorStatus) error {
	if status == domain.OperatorStatusOffline {
		return uc.Disconnect(ctx, principal, operatorID)
	}

	err := uc.tx.WithinTx(ctx, func(ctx context.Context, s repository.Store) error {
		op, err := s.Operators().GetByID(ctx, operatorID)
		if err != nil {
			return err
		}
		if err := uc.authorize(principal, op); err != nil {
			return err
		}

		if err := op.SetStatus(status); err != nil {
			return err
		}
		events := op.DrainEvents()
		if err := s.Operators().Update(ctx, op); err != nil {
			return err
		}
		return repository.AppendEvents(ctx, s, events)
	})
	if err != nil {
		return uc.classify(err, "set operator status", operatorID)
	}
	return nil
}

// UpdateCapacity resizes the operator's concurrent-chat cap.
func (uc *UseCase) UpdateCapacity(ctx context.Context, principal domain.Principal, operatorID string, maxConcurrentChats int) error {
	return uc.mutate(ctx, principal, operatorID, "update operator capacity", func(op *domain.Operator) error {
		return op.UpdateMaxConcurrentChats(maxConcurrentChats)
	})
}

// AddSkill tags the operator with a routing skill.
func (uc *UseCase) AddSkill(ctx context.Context, principal domain.Principal, operatorID, skill string) error {
	if skill == "" {
		return domain.ErrInvalidPayload
	}
	return uc.mutate(ctx, principal, operatorID, "add operator skill", func(op *domain.Operator) error {
		op.AddSkill(skill)
		return nil
	})
}

// RemoveSkill drops a routing skill from the operator.
func (uc *UseCase) RemoveSkill(ctx context.Context, principal domain.Principal, operatorID, skill string) error {
	return uc.mutate(ctx, principal, operatorID, "remove operator skill", func(op *domain.Operator) error {
		op.RemoveSkill(skill)
		return nil
	})
}

func (uc *UseCase) mutate(ctx context.Context, principal domain.Principal, operatorID, op string, fn func(*domain.Operator) error) error {
	err := uc.tx.WithinTx(ctx, func(ctx context.Context, s repository.Store) error {
		operator, err := s.Operators().GetByID(ctx, operatorID)
		if err != nil {
			return err
		}
		if err := uc.authorize(principal, operator); err != nil {
			return err
		}

		if err := fn(operator); err != nil {
			return err
		}
		events := operator.DrainEvents()
		if err := s.Operators().Update(ctx, operator); err != nil {
			return err
		}
		return repository.AppendEvents(ctx, s, events)
	})
	if err != nil {
		return uc.classify(err, op, operatorID)
	}
	return nil
}

// GetOperator fetches an operator by ledger ID.
func (uc *UseCase) GetOperator(ctx context.Context, operatorID string) (*domain.Operator, error) {
	return uc.store.Operators().GetByID(ctx, operatorID)
}

// GetOperatorByUserID fetches the operator record backing a user account.
func (uc *UseCase) GetOperatorByUserID(ctx context.Context, userID string) (*domain.Operator, error) {
	return uc.store.Operators().GetByUserID(ctx, userID)
}

// ListAvailable returns the operators the ledger considers assignable.
func (uc *UseCase) ListAvailable(ctx context.Context) ([]domain.Operator, error) {
	return uc.store.Operators().ListAvailable(ctx)
}

// OnlineOperatorIDs returns the presence cache's view of who is connected.
func (uc *UseCase) OnlineOperatorIDs(ctx context.Context) ([]string, error) {
	return uc.presence.OnlineOperators(ctx)
}

// authorize allows operators to manage their own record and admins to manage
// anyone's.
func (uc *UseCase) authorize(principal domain.Principal, op *domain.Operator) error {
	if principal.HasRole(domain.RoleAdmin) {
		return nil
	}
	if principal.UserID != "" && principal.UserID == op.UserID {
		return nil
	}
	return domain.ErrForbidden
}

func (uc *UseCase) classify(err error, op, operatorID string) error {
	var dErr *domain.Error
	if errors.As(err, &dErr) && dErr.Code != domain.ErrCodeInternal {
		return err
	}
	uc.logger.Error("operator operation failed",
		zap.String("operation", op),
		zap.String("operator_id", operatorID),
		zap.Error(err))
	return domain.WrapError(domain.ErrCodeInternal, "failed to "+op, err)
}
