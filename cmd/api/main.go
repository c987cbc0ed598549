package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/pr-poehali-dev/client-support-chat-2/internal/api/http"
	"github.com/pr-poehali-dev/client-support-chat-2/internal/api/http/handlers"
	"github.com/pr-poehali-dev/client-support-chat-2/internal/config"
	"github.com/pr-poehali-dev/client-support-chat-2/internal/events"
	"github.com/pr-poehali-dev/client-support-chat-2/internal/observability"
	"github.com/pr-poehali-dev/client-support-chat-2/internal/persistence"
	"github.com/pr-poehali-dev/client-support-chat-2/internal/repository"
	"github.com/pr-poehali-dev/client-support-chat-2/internal/scheduler"
	"github.com/pr-poehali-dev/client-support-chat-2/internal/service"
	"github.com/pr-poehali-dev/client-support-chat-2/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	pool := pg.PoolHandle()
	if pool != nil && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pool, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	var (
		chatRepo     repository.ChatRepository
		operatorRepo repository.OperatorRepository
		clientRepo   repository.ClientRepository
		messageRepo  repository.MessageRepository
	)
	if pool != nil {
		chatRepo = repository.NewChatRepository(pool)
		operatorRepo = repository.NewOperatorRepository(pool)
		clientRepo = repository.NewClientRepository(pool)
		messageRepo = repository.NewMessageRepository(pool)
	} else {
		store := repository.NewMemoryStore()
		chatRepo = store.Chats()
		operatorRepo = store.Operators()
		clientRepo = store.Clients()
		messageRepo = store.Messages()
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	engine := scheduler.NewEngine(scheduler.EngineDependencies{
		ChatRepo:         chatRepo,
		OperatorRepo:     operatorRepo,
		Capacity:         cfg.Scheduler.OperatorCapacity,
		ResponseDeadline: cfg.Scheduler.ResponseDeadline(),
		Dispatcher:       dispatcher,
		Logger:           logger,
	})
	coordinator := scheduler.NewCoordinator(scheduler.CoordinatorDependencies{
		ChatRepo:   chatRepo,
		Engine:     engine,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	registry := scheduler.NewRegistry(scheduler.RegistryDependencies{
		OperatorRepo: operatorRepo,
		Engine:       engine,
		Coordinator:  coordinator,
		Logger:       logger,
	})
	monitor := scheduler.NewMonitor(scheduler.MonitorDependencies{
		ChatRepo:         chatRepo,
		Coordinator:      coordinator,
		ResponseDeadline: cfg.Scheduler.ResponseDeadline(),
		ExtensionGrace:   cfg.Scheduler.ExtensionGrace(),
		SweepInterval:    cfg.Scheduler.SweepInterval(),
		Dispatcher:       dispatcher,
		Metrics:          metrics,
		Logger:           logger,
	})

	chatService := service.NewChatService(service.ChatDependencies{
		ChatRepo:    chatRepo,
		ClientRepo:  clientRepo,
		MessageRepo: messageRepo,
		Engine:      engine,
		Coordinator: coordinator,
		Monitor:     monitor,
		Dispatcher:  dispatcher,
		Logger:      logger,
	})
	operatorService := service.NewOperatorService(registry, logger)

	notifications := service.NewNotificationService(dispatcher, logger)
	notifications.RegisterHandlers()

	redisPublisher := events.NewRedisPublisher(redis.Client, cfg.Notification.RedisChannel, logger)
	redisPublisher.RegisterHandlers(dispatcher)

	if cfg.Notification.AMQPURL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.Notification.AMQPURL, cfg.Notification.AMQPExchange, logger)
		if err != nil {
			logger.Warn("amqp publisher disabled", zap.Error(err))
		} else {
			defer amqpPublisher.Close()
			amqpPublisher.RegisterHandlers(dispatcher)
		}
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, monitor, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis)
	chatsHandler := handlers.NewChatsHandler(chatService)
	operatorsHandler := handlers.NewOperatorsHandler(operatorService)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:    healthHandler,
		Chats:     chatsHandler,
		Operators: operatorsHandler,
	})

	deadlineWorker := worker.StartDeadlineWorker(monitor, cfg.Scheduler.SweepInterval(), logger)

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	deadlineWorker.Stop()
	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
