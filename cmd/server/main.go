package main

import (
	"context"
	"log"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/chatline/backend/api/handler"
	"github.com/chatline/backend/internal/config"
	"github.com/chatline/backend/internal/infrastructure/journal"
	"github.com/chatline/backend/internal/infrastructure/monitor"
	pgInfra "github.com/chatline/backend/internal/infrastructure/postgres"
	"github.com/chatline/backend/internal/infrastructure/rabbitmq"
	redisInfra "github.com/chatline/backend/internal/infrastructure/redis"
	"github.com/chatline/backend/internal/middleware"
	"github.com/chatline/backend/internal/router"
	"github.com/chatline/backend/internal/services"
	"github.com/chatline/backend/internal/services/lifecycle"
	"github.com/chatline/backend/pkg/httpcontext"
	"github.com/chatline/backend/pkg/logger"
	"github.com/chatline/backend/repository/postgres"
	redisRepo "github.com/chatline/backend/repository/redis"
	assignmentUC "github.com/chatline/backend/usecase/assignment"
	chatUC "github.com/chatline/backend/usecase/chat"
	operatorUC "github.com/chatline/backend/usecase/operator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
		zapLogger.Fatal("migrations failed", zap.Error(err))
	}

	pool, err := pgInfra.NewPool(appCtx, cfg.Database, zapLogger)
	if err != nil {
		zapLogger.Fatal("postgres connection failed", zap.Error(err))
	}
	manager.Register("postgres", func(ctx context.Context) error {
		pool.Close()
		return nil
	})

	redisClient, err := redisInfra.NewClient(cfg.Redis)
	if err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	manager.Register("redis", func(ctx context.Context) error {
		return redisClient.Close()
	})

	deliveryJournal, err := journal.Open(cfg.Journal.Path, "delivered")
	if err != nil {
		zapLogger.Fatal("failed to open delivery journal", zap.Error(err))
	}
	manager.Register("journal", func(ctx context.Context) error {
		return deliveryJournal.Close()
	})

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := deliveryJournal.Cleanup(time.Now().Add(-cfg.Journal.Retention)); err != nil {
					zapLogger.Warn("journal cleanup failed", zap.Error(err))
				}
			case <-appCtx.Done():
				return
			}
		}
	}()

	publisher, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange, zapLogger)
	if err != nil {
		zapLogger.Fatal("rabbitmq connection failed", zap.Error(err))
	}
	manager.Register("rabbitmq", func(ctx context.Context) error {
		return publisher.Close()
	})

	mon := monitor.New(pool, redisClient, deliveryJournal, 10*time.Second, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	store := postgres.NewStore(pool)
	presenceRepo := redisRepo.NewPresenceRepository(redisClient, cfg.Assignment.PresenceTTL)

	balancer := assignmentUC.NewLoadBalancer(store.Operators(), presenceRepo, zapLogger)
	coordinator := assignmentUC.NewCoordinator(store, balancer, cfg.Assignment.InactivityThreshold, zapLogger)
	chatUseCase := chatUC.New(store, store, coordinator, zapLogger)
	operatorUseCase := operatorUC.New(store, store, presenceRepo, cfg.Assignment.DefaultMaxConcurrentChats, zapLogger)

	outboxConsumer := services.NewOutboxConsumer(
		store.Outbox(),
		publisher,
		deliveryJournal,
		zapLogger,
		services.ConsumerConfig{
			PollInterval: cfg.Outbox.PollInterval,
			BatchSize:    cfg.Outbox.BatchSize,
			MaxRetries:   cfg.Outbox.MaxRetries,
			ClaimTimeout: cfg.Outbox.ClaimTimeout,
		},
	)
	outboxConsumer.Start()
	manager.Register("outbox_consumer", func(ctx context.Context) error {
		outboxConsumer.Stop(ctx)
		return nil
	})

	scheduler := services.NewReassignmentScheduler(
		coordinator,
		zapLogger,
		services.SchedulerConfig{
			Interval:     cfg.Scheduler.Interval,
			StartupDelay: cfg.Scheduler.StartupDelay,
			BatchSize:    cfg.Scheduler.BatchSize,
			ItemDelay:    cfg.Scheduler.ItemDelay,
			ItemRetries:  cfg.Scheduler.ItemRetries,
			RetryBackoff: cfg.Scheduler.RetryBackoff,
		},
	)
	scheduler.Start()
	manager.Register("reassignment_scheduler", func(ctx context.Context) error {
		scheduler.Stop(ctx)
		return nil
	})

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)

	handlers := router.Handlers{
		Chat:       apiHandler.NewChatHandler(chatUseCase, ctxAdapter, zapLogger),
		Operator:   apiHandler.NewOperatorHandler(operatorUseCase, ctxAdapter, zapLogger),
		Assignment: apiHandler.NewAssignmentHandler(coordinator, chatUseCase, ctxAdapter, zapLogger),
		Health:     apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}

	authMiddleware := middleware.JWTAuth(cfg.JWT.Secret, zapLogger)
	r := router.New(handlers, authMiddleware)

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Name:         cfg.AppName,
	}

	go func() {
		zapLogger.Info("server started", zap.String("address", cfg.Address()))
		if err := server.ListenAndServe(cfg.Address()); err != nil {
			zapLogger.Fatal("server crashed", zap.Error(err))
		}
	}()

	manager.Register("http_server", func(ctx context.Context) error {
		return server.Shutdown()
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
