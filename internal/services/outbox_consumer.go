package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/chatline/backend/domain"
	"github.com/chatline/backend/repository"
)

// NotificationGateway delivers a published domain event to the outside world.
type NotificationGateway interface {
	Publish(ctx context.Context, entry domain.OutboxEntry) error
}

// DeliveryJournal remembers which event ids this instance already delivered,
// so a reclaimed entry is not pushed downstream twice.
type DeliveryJournal interface {
	Seen(eventID string) (bool, error)
	MarkDelivered(eventID string) error
}

// ConsumerConfig controls outbox polling and retry bounds.
type ConsumerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxRetries   int
	ClaimTimeout time.Duration
}

// OutboxConsumer claims unprocessed outbox entries and delivers them through
// the notification gateway. Entries that exhaust their retries stay in the
// table unprocessed, parked for manual inspection.
type OutboxConsumer struct {
	outbox     repository.OutboxRepository
	gateway    NotificationGateway
	journal    DeliveryJournal
	logger     *zap.Logger
	cron       *cron.Cron
	cfg        ConsumerConfig
	instanceID string

	ctx    context.Context
	cancel context.CancelFunc
}

func NewOutboxConsumer(outbox repository.OutboxRepository, gateway NotificationGateway, journal DeliveryJournal, logger *zap.Logger, cfg ConsumerConfig) *OutboxConsumer {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.ClaimTimeout <= 0 {
		cfg.ClaimTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	oc := &OutboxConsumer{
		outbox:     outbox,
		gateway:    gateway,
		journal:    journal,
		logger:     logger,
		cfg:        cfg,
		cron:       cron.New(cron.WithSeconds()),
		instanceID: uuid.NewString(),
		ctx:        ctx,
		cancel:     cancel,
	}

	schedule := fmt.Sprintf("@every %ds", int(cfg.PollInterval.Seconds()))
	_, _ = oc.cron.AddFunc(schedule, func() {
		pollCtx, cancel := context.WithTimeout(oc.ctx, cfg.PollInterval)
		defer cancel()
		if err := oc.ProcessBatch(pollCtx); err != nil {
			oc.logger.Error("outbox poll failed", zap.Error(err))
		}
	})

	return oc
}

// InstanceID identifies this consumer in outbox claims.
func (oc *OutboxConsumer) InstanceID() string {
	return oc.instanceID
}

// Start launches the polling loop.
func (oc *OutboxConsumer) Start() {
	if oc == nil || oc.cron == nil {
		return
	}
	oc.cron.Start()
	oc.logger.Info("outbox consumer started",
		zap.String("instance_id", oc.instanceID),
		zap.Duration("poll_interval", oc.cfg.PollInterval))
}

// Stop cancels in-flight work and waits for the scheduler to drain.
func (oc *OutboxConsumer) Stop(ctx context.Context) {
	if oc == nil || oc.cron == nil {
		return
	}
	oc.cancel()
	stopCtx := oc.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	oc.logger.Info("outbox consumer stopped")
}

// ProcessBatch claims one batch and attempts delivery for each entry.
func (oc *OutboxConsumer) ProcessBatch(ctx context.Context) error {
	entries, err := oc.outbox.ClaimBatch(ctx, oc.instanceID, oc.cfg.BatchSize, oc.cfg.MaxRetries, oc.cfg.ClaimTimeout)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil
		}
		oc.deliver(ctx, entry)
	}
	return nil
}

func (oc *OutboxConsumer) deliver(ctx context.Context, entry domain.OutboxEntry) {
	if oc.journal != nil {
		seen, err := oc.journal.Seen(entry.ID)
		if err != nil {
			oc.logger.Warn("delivery journal lookup failed",
				zap.String("entry_id", entry.ID),
				zap.Error(err))
		} else if seen {
			// delivered on a previous claim that never got acked
			if err := oc.outbox.MarkProcessed(ctx, entry.ID); err != nil {
				oc.logger.Error("failed to ack deduplicated entry",
					zap.String("entry_id", entry.ID),
					zap.Error(err))
			}
			return
		}
	}

	if err := oc.gateway.Publish(ctx, entry); err != nil {
		oc.fail(ctx, entry, err)
		return
	}

	if oc.journal != nil {
		if err := oc.journal.MarkDelivered(entry.ID); err != nil {
			oc.logger.Warn("delivery journal write failed",
				zap.String("entry_id", entry.ID),
				zap.Error(err))
		}
	}

	if err := oc.outbox.MarkProcessed(ctx, entry.ID); err != nil {
		oc.logger.Error("failed to mark entry processed",
			zap.String("entry_id", entry.ID),
			zap.Error(err))
		return
	}

	oc.logger.Debug("event delivered",
		zap.String("entry_id", entry.ID),
		zap.String("event_type", string(entry.EventType)))
}

func (oc *OutboxConsumer) fail(ctx context.Context, entry domain.OutboxEntry, cause error) {
	if err := oc.outbox.MarkFailed(ctx, entry.ID, cause.Error()); err != nil {
		oc.logger.Error("failed to record delivery failure",
			zap.String("entry_id", entry.ID),
			zap.Error(err))
		return
	}

	attempts := entry.RetryCount + 1
	if attempts >= oc.cfg.MaxRetries {
		oc.logger.Error("outbox entry parked after exhausting retries",
			zap.String("entry_id", entry.ID),
			zap.String("event_type", string(entry.EventType)),
			zap.Int("attempts", attempts),
			zap.Error(cause))
		return
	}

	oc.logger.Warn("event delivery failed, will retry",
		zap.String("entry_id", entry.ID),
		zap.Int("attempts", attempts),
		zap.Error(cause))
}
