package assignment

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/chatline/backend/domain"
	"github.com/chatline/backend/repository"
)

// LoadBalancer picks the least-loaded reachable operator for a new
// assignment. Eligibility requires an operator to be both present in the
// cache's online set and available according to the persisted ledger; the
// intersection covers the window where one store lags the other.
type LoadBalancer struct {
	operators repository.OperatorRepository
	presence  repository.PresenceRepository
	logger    *zap.Logger
}

func NewLoadBalancer(operators repository.OperatorRepository, presence repository.PresenceRepository, logger *zap.Logger) *LoadBalancer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoadBalancer{
		operators: operators,
		presence:  presence,
		logger:    logger,
	}
}

// FindBestAvailableOperator fetches the presence set and the available
// ledger entries, then delegates to SelectBest.
func (lb *LoadBalancer) FindBestAvailableOperator(ctx context.Context) (string, error) {
	onlineIDs, err := lb.presence.OnlineOperators(ctx)
	if err != nil {
		return "", domain.WrapError(domain.ErrCodeInternal, "fetch online operators", err)
	}
	if len(onlineIDs) == 0 {
		lb.logger.Warn("no online operators in presence cache")
		return "", domain.ErrNoOperatorsAvailable
	}

	available, err := lb.operators.ListAvailable(ctx)
	if err != nil {
		return "", domain.WrapError(domain.ErrCodeInternal, "fetch available operators", err)
	}

	best, err := SelectBest(onlineIDs, available)
	if err != nil {
		lb.logger.Warn("no eligible operators for assignment",
			zap.Int("online", len(onlineIDs)),
			zap.Int("available", len(available)))
		return "", err
	}

	lb.logger.Info("selected operator",
		zap.String("operator_id", best.ID),
		zap.Float64("workload_pct", best.WorkloadPercentage()),
		zap.Int("current_chats", best.CurrentChatCount),
		zap.Int("max_chats", best.MaxConcurrentChats))

	return best.ID, nil
}

// AvailableOperators returns the ids eligible for assignment right now.
func (lb *LoadBalancer) AvailableOperators(ctx context.Context) ([]string, error) {
	onlineIDs, err := lb.presence.OnlineOperators(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "fetch online operators", err)
	}

	available, err := lb.operators.ListAvailable(ctx)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "fetch available operators", err)
	}

	online := make(map[string]struct{}, len(onlineIDs))
	for _, id := range onlineIDs {
		online[id] = struct{}{}
	}

	var ids []string
	for _, op := range available {
		if _, ok := online[op.ID]; ok {
			ids = append(ids, op.ID)
		}
	}
	return ids, nil
}

// SelectBest is the pure selection core: a deterministic function of the
// presence set and the ledger snapshot. Ranking is ascending workload
// percentage, then ascending chat count, then most recently active, with the
// id as a stable final tie-break.
func SelectBest(onlineIDs []string, operators []domain.Operator) (*domain.Operator, error) {
	online := make(map[string]struct{}, len(onlineIDs))
	for _, id := range onlineIDs {
		online[id] = struct{}{}
	}

	eligible := make([]domain.Operator, 0, len(operators))
	for _, op := range operators {
		if _, ok := online[op.ID]; !ok {
			continue
		}
		if !op.CanAcceptNewChat() {
			continue
		}
		eligible = append(eligible, op)
	}

	if len(eligible) == 0 {
		return nil, domain.ErrNoOperatorsAvailable
	}

	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if wa, wb := a.WorkloadPercentage(), b.WorkloadPercentage(); wa != wb {
			return wa < wb
		}
		if a.CurrentChatCount != b.CurrentChatCount {
			return a.CurrentChatCount < b.CurrentChatCount
		}
		switch {
		case a.LastActiveAt == nil && b.LastActiveAt != nil:
			return false
		case a.LastActiveAt != nil && b.LastActiveAt == nil:
			return true
		case a.LastActiveAt != nil && b.LastActiveAt != nil && !a.LastActiveAt.Equal(*b.LastActiveAt):
			return a.LastActiveAt.After(*b.LastActiveAt)
		}
		return a.ID < b.ID
	})

	best := eligible[0]
	return &best, nil
}
