package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/fanportal/portal-service/internal/api/http"
	"github.com/fanportal/portal-service/internal/api/http/handlers"
	"github.com/fanportal/portal-service/internal/auth"
	"github.com/fanportal/portal-service/internal/cache"
	"github.com/fanportal/portal-service/internal/config"
	"github.com/fanportal/portal-service/internal/crypto"
	"github.com/fanportal/portal-service/internal/events"
	"github.com/fanportal/portal-service/internal/mail"
	"github.com/fanportal/portal-service/internal/observability"
	"github.com/fanportal/portal-service/internal/persistence"
	"github.com/fanportal/portal-service/internal/realtime"
	"github.com/fanportal/portal-service/internal/repository"
	"github.com/fanportal/portal-service/internal/service"
	"github.com/fanportal/portal-service/internal/storage"
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

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	cipher, err := crypto.NewCipher(cfg.Crypto.KeyHex, cfg.Crypto.IVHex)
	if err != nil {
		logger.Fatal("invalid crypto config", zap.Error(err))
	}
	signer := crypto.NewSigner(cfg.Sign.Secret)

	objects, err := storage.NewS3Store(ctx, cfg.S3)
	if err != nil {
		logger.Fatal("failed to init object storage", zap.Error(err))
	}

	userRepo := repository.NewUserRepository(pg.PoolHandle())
	guard := cache.NewRedisStore(redis.Client)
	dispatcher := events.NewInMemoryDispatcher()
	mailer := mail.NewLogMailer(logger, cfg.Mail.From)

	accountService := service.NewAccountService(cfg.Auth, userRepo)
	verificationService := service.NewVerificationService(service.VerificationDependencies{
		Users:      userRepo,
		Guard:      guard,
		Mailer:     mailer,
		Cipher:     cipher,
		Dispatcher: dispatcher,
		Logger:     logger,
	}, cfg.Verify.Window(), cfg.Verify.LinkBaseURL)

	metrics := observability.NewMetrics()
	hub := realtime.NewHub(logger, metrics)
	bridge := realtime.NewBridge(redis.Client, hub, logger)
	bridge.Register(dispatcher)
	go bridge.Run(ctx)

	authMiddleware := auth.NewAuthMiddleware(accountService.TokenManager(), userRepo)
	versionGuard, err := auth.NewVersionGuard(cfg.App.MinClientVersion)
	if err != nil {
		logger.Fatal("invalid client version constraint", zap.Error(err))
	}
	verifier := httptransport.NewSignatureVerifier(signer, cipher, guard, cfg.Sign.Skew())

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, pg, redis),
		Auth:           handlers.NewAuthHandler(accountService, objects, cipher),
		Users:          handlers.NewUsersHandler(accountService, verificationService, objects, cipher),
		AuthMiddleware: authMiddleware,
		Signature:      verifier,
		VersionGuard:   versionGuard,
		Hub:            hub,
		Logger:         logger,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
