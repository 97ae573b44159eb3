package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/floradispatch/internal/config"
	"github.com/example/floradispatch/internal/database"
	"github.com/example/floradispatch/internal/middleware"
	"github.com/example/floradispatch/internal/repositories"
	"github.com/example/floradispatch/internal/routes"
	"github.com/example/floradispatch/internal/services"
)

func main() {
	cfg := config.Load()

	zlog, err := services.NewLogger()
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer zlog.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(cfg)
	if err != nil {
		zlog.Fatal("database init failed", zap.Error(err))
	}

	deps := services.NewDeps(repo, cfg.Dispatch)
	deps.Logger = zlog

	source, publisher, closeStream := changeStream(cfg, zlog)
	defer closeStream()
	deps.Publisher = publisher

	uploader, closeUploader, err := photoUploader(ctx, cfg)
	if err != nil {
		zlog.Fatal("photo storage init failed", zap.Error(err))
	}
	defer closeUploader()

	var notifier services.Notifier = services.NewLogNotifier(zlog)
	if cfg.TelegramBotToken != "" {
		notifier = services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat, zlog)
	}

	view := services.NewOpenOrderView()
	breaker := services.NewBreaker("snapshot", cfg.Dispatch.DataStoreTimeout, 30*time.Second, deps.Metrics, zlog)
	assignments := services.NewAssignmentService(deps)
	settlements := services.NewSettlementService(deps)
	monitor := services.NewMonitorService(deps, view, notifier)

	app := fiber.New(fiber.Config{
		AppName:      "Flora Dispatch",
		ErrorHandler: middleware.ErrorHandler(zlog),
		BodyLimit:    32 << 20,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Static(cfg.PhotoBaseURL, cfg.PhotoDir)

	routes.Register(app, cfg, routes.Services{
		Eligibility: services.NewEligibilityResolver(deps),
		Assignments: assignments,
		Orders:      services.NewOrderService(deps, uploader),
		Monitor:     monitor,
		Settlements: settlements,
		Stores:      services.NewStoreService(deps),
		View:        view,
		Metrics:     deps.Metrics,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		zlog.Info("starting server", zap.String("port", cfg.AppPort))
		return app.Listen(":" + cfg.AppPort)
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(10 * time.Second)
	})
	g.Go(func() error { return services.NewIngestor(deps, source, view).Run(gctx) })
	g.Go(func() error { return services.NewReconciler(deps, view, breaker, assignments).Run(gctx) })
	g.Go(func() error { return monitor.Run(gctx) })
	g.Go(func() error { return services.NewScheduler(deps, cfg.Settlement, settlements).Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		zlog.Error("server stopped", zap.Error(err))
	}
}

func openRepository(cfg *config.Config) (repositories.Repository, error) {
	if cfg.DatabaseURL == "memory" {
		return repositories.NewMemoryRepository(), nil
	}
	db, err := database.Connect(cfg.DatabaseURL, gormlogger.Warn)
	if err != nil {
		return nil, err
	}
	return repositories.NewGormRepository(db), nil
}

// changeStream picks Kafka when brokers are configured, else the in-process bus.
// Dispatch events always reach the local consumer.
func changeStream(cfg *config.Config, zlog *zap.Logger) (services.ChangeSource, services.EventPublisher, func()) {
	if !cfg.Kafka.Enabled() {
		bus := services.NewLocalBus(1024)
		return bus, bus, func() {}
	}
	source := services.NewKafkaChangeSource(cfg.Kafka)
	changes := services.NewKafkaPublisher(cfg.Kafka, cfg.Kafka.ChangeTopic)
	events := services.NewKafkaPublisher(cfg.Kafka, cfg.Kafka.EventsTopic)
	closeAll := func() {
		for _, c := range []interface{ Close() error }{source, changes, events} {
			if err := c.Close(); err != nil {
				zlog.Warn("kafka close failed", zap.Error(err))
			}
		}
	}
	return source, services.NewFanOut(zlog, changes, events), closeAll
}

func photoUploader(ctx context.Context, cfg *config.Config) (services.PhotoUploader, func(), error) {
	if cfg.PhotoBucket == "" {
		return services.NewLocalPhotoUploader(cfg.PhotoDir, cfg.PhotoBaseURL), func() {}, nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, nil, err
	}
	return services.NewGCSPhotoUploader(client, cfg.PhotoBucket), func() { _ = client.Close() }, nil
}
