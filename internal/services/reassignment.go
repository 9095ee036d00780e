package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/chatline/backend/domain"
)

// Reassigner is the slice of the assignment coordinator the scheduler drives.
type Reassigner interface {
	InactiveChats(ctx context.Context, limit int) ([]string, error)
	ReassignChat(ctx context.Context, principal domain.Principal, chatID string) (string, error)
}

// SchedulerConfig controls sweep cadence and per-item pacing.
type SchedulerConfig struct {
	Interval     time.Duration
	StartupDelay time.Duration
	BatchSize    int
	ItemDelay    time.Duration
	ItemRetries  int
	RetryBackoff time.Duration
}

// ReassignmentScheduler periodically sweeps inactive chats back through the
// assignment coordinator. One chat's failure never aborts the batch, and
// cancellation stops the sweep between items, not mid-transaction.
type ReassignmentScheduler struct {
	coordinator Reassigner
	logger      *zap.Logger
	cron        *cron.Cron
	cfg         SchedulerConfig

	ctx    context.Context
	cancel context.CancelFunc
}

var schedulerPrincipal = domain.Principal{UserID: "scheduler", Roles: []string{domain.RoleAdmin}}

func NewReassignmentScheduler(coordinator Reassigner, logger *zap.Logger, cfg SchedulerConfig) *ReassignmentScheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Minute
	}
	if cfg.StartupDelay < 0 {
		cfg.StartupDelay = 0
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.ItemRetries < 0 {
		cfg.ItemRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	rs := &ReassignmentScheduler{
		coordinator: coordinator,
		logger:      logger,
		cfg:         cfg,
		cron:        cron.New(cron.WithSeconds()),
		ctx:         ctx,
		cancel:      cancel,
	}

	schedule := fmt.Sprintf("@every %ds", int(cfg.Interval.Seconds()))
	_, _ = rs.cron.AddFunc(schedule, func() {
		sweepCtx, cancel := context.WithTimeout(rs.ctx, cfg.Interval)
		defer cancel()
		if err := rs.Sweep(sweepCtx); err != nil {
			rs.logger.Error("reassignment sweep failed", zap.Error(err))
		}
	})

	return rs
}

// Start launches the scheduler after the configured warm-up delay.
func (rs *ReassignmentScheduler) Start() {
	if rs == nil || rs.cron == nil {
		return
	}
	go func() {
		if rs.cfg.StartupDelay > 0 {
			select {
			case <-time.After(rs.cfg.StartupDelay):
			case <-rs.ctx.Done():
				return
			}
		}
		rs.cron.Start()
		rs.logger.Info("reassignment scheduler started",
			zap.Duration("interval", rs.cfg.Interval),
			zap.Duration("startup_delay", rs.cfg.StartupDelay))
	}()
}

// Stop cancels the running sweep and waits for the cron scheduler to drain.
func (rs *ReassignmentScheduler) Stop(ctx context.Context) {
	if rs == nil || rs.cron == nil {
		return
	}
	rs.cancel()
	stopCtx := rs.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	rs.logger.Info("reassignment scheduler stopped")
}

// Sweep runs one pass over the inactive chats.
func (rs *ReassignmentScheduler) Sweep(ctx context.Context) error {
	chatIDs, err := rs.coordinator.InactiveChats(ctx, rs.cfg.BatchSize)
	if err != nil {
		return err
	}
	if len(chatIDs) == 0 {
		return nil
	}

	rs.logger.Info("reassignment sweep", zap.Int("inactive_chats", len(chatIDs)))

	for i, chatID := range chatIDs {
		if ctx.Err() != nil {
			rs.logger.Info("reassignment sweep cancelled",
				zap.Int("processed", i),
				zap.Int("remaining", len(chatIDs)-i))
			return nil
		}

		rs.reassignWithRetry(ctx, chatID)

		if rs.cfg.ItemDelay > 0 && i < len(chatIDs)-1 {
			select {
			case <-time.After(rs.cfg.ItemDelay):
			case <-ctx.Done():
			}
		}
	}
	return nil
}

// reassignWithRetry retries transient failures with a fixed backoff; expected
// business outcomes (no longer eligible, nobody online) end the attempt
// immediately.
func (rs *ReassignmentScheduler) reassignWithRetry(ctx context.Context, chatID string) {
	for attempt := 0; ; attempt++ {
		operatorID, err := rs.coordinator.ReassignChat(ctx, schedulerPrincipal, chatID)
		if err == nil {
			rs.logger.Info("inactive chat reassigned",
				zap.String("chat_id", chatID),
				zap.String("operator_id", operatorID))
			return
		}

		if !domain.IsDomainError(err, domain.ErrCodeInternal) {
			rs.logger.Debug("chat skipped",
				zap.String("chat_id", chatID),
				zap.String("code", string(domain.CodeOf(err))))
			return
		}

		if attempt >= rs.cfg.ItemRetries {
			rs.logger.Error("reassignment failed",
				zap.String("chat_id", chatID),
				zap.Int("attempts", attempt+1),
				zap.Error(err))
			return
		}

		rs.logger.Warn("reassignment attempt failed, retrying",
			zap.String("chat_id", chatID),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if rs.cfg.RetryBackoff > 0 {
			select {
			case <-time.After(rs.cfg.RetryBackoff):
			case <-ctx.Done():
				return
			}
		}
	}
}
