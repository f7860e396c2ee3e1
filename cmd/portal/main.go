package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	grpc3 "github.com/mama165/sdk-go/grpc"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"

	"client-portal/auth"
	"client-portal/cache"
	"client-portal/contract"
	"client-portal/domain"
	"client-portal/errors"
	"client-portal/infrastructure/grpc/server"
	"client-portal/infrastructure/web"
	"client-portal/internal"
	"client-portal/moderation"
	"client-portal/observability"
	"client-portal/repositories"
	"client-portal/runtime"
	"client-portal/runtime/workers"
	"client-portal/services"
	"client-portal/storage"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Portal terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal arrives, so the
// deferred cleanups run before main exits.
func run() (int, error) {
	// 1. Configuration & Logger
	// A missing .env is fine, the environment alone may be complete.
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return exitConfig, err
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	// 2. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()
	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
		database.StartDebugServer(db, config.DebugPort, endpoint, PortalMapper)
	}

	// 4. Ephemeral layers
	metrics := observability.NewMetrics()
	registry := runtime.NewRegistry(logger)
	var sharedCache contract.Cache
	if config.CacheBackend == "badger" {
		sharedCache = cache.NewBadger(db, logger, cache.WithMetrics(metrics.Cache()))
	} else {
		sharedCache = cache.NewMemory(logger, cache.WithMetrics(metrics.Cache()))
	}

	// 5. Durable store & façades
	store := repositories.NewStore(db, logger, registry, config.LimitMessages)
	lockout := auth.Lockout{MaxAttempts: config.LockoutAttempts, Window: config.LockoutWindow}
	authService := services.NewAuthService(logger, store.Users, store.SecurityAlerts, lockout)

	system := domain.WithActor(ctx, domain.SystemActor)
	adminID, err := resolveAdmin(system, config, store.Users, authService)
	if err != nil {
		return exitRuntime, fmt.Errorf("admin account unavailable: %w", err)
	}

	moderator, err := moderation.NewModerator(internal.Words(config.CensoredWords), charReplacement, logger)
	if err != nil {
		return exitConfig, fmt.Errorf("censored words error: %w", err)
	}
	objects := storage.NewObjectStore(logger, config.ObjectStoreRoot, auth.NewURLSigner([]byte(config.SigningKey)),
		int64(config.MaxUploadBytes), "/files")
	sessions := services.NewSessionStore(logger, sharedCache, store.Users, config.SessionTTL).WithAudit(store.SecurityAlerts)
	notifications := services.NewNotificationService(logger, store.Notifications, store.Users, registry, sharedCache)
	messages := services.NewMessageService(logger, store.Messages, notifications, registry, sharedCache, moderator,
		storage.NewLocalStore(db), config.LocalListLimit,
		services.MessageConfig{AdminID: adminID, MaxContentLength: config.MaxContentLength})
	projects := services.NewProjectService(logger, store, notifications)
	deliverables := services.NewDeliverableService(logger, store, objects, notifications)
	alerts := services.NewAlertService(logger, store)

	// The deliverables projection follows the changes feed for the whole run
	feed := deliverables.Projection().Attach(registry)
	defer feed.Unsubscribe()

	// Security alerts also land in the process log for the operators
	realtime := services.NewRealtime(logger, registry)
	audit := realtime.OnSecurityAlert(func(evt domain.ChangeEvent) {
		logger.Warn("Security alert recorded", "id", evt.ID, "event", evt.EventType)
	})
	defer audit.Unsubscribe()

	if _, err = alerts.SetSetting(system, "portal.started_at", time.Now().UTC().Format(time.RFC3339)); err != nil {
		logger.Warn("Start time not recorded", "error", err)
	}

	// 6. gRPC Server Setup
	authenticator := server.NewAuthenticator(logger, sessions)
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			grpc3.UnaryLoggingInterceptor(logger),
			server.MetricsInterceptor(metrics),
			authenticator.Unary(),
		),
		grpc.StreamInterceptor(authenticator.Stream()),
	)
	server.RegisterPortalServiceServer(grpcServer, server.NewPortalServer(logger, server.Services{
		Auth:          authService,
		Sessions:      sessions,
		Messages:      messages,
		Notifications: notifications,
		Projects:      projects,
		Deliverables:  deliverables,
		Broker:        registry,
	}, config.BufferSize, config.DeliveryTimeout))

	// 7. HTTP surface
	webServer := web.NewServer(logger, sessions, registry, objects, metrics, config.BufferSize, config.DeliveryTimeout)

	// 8. Supervision
	// Blocks until the signal context is canceled and every worker returned.
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(
		workers.NewGRPCServerWorker(logger, grpcServer, fmt.Sprintf("%s:%d", config.Host, config.GRPCPort)),
		workers.NewHTTPServerWorker(logger, fmt.Sprintf("%s:%d", config.Host, config.HTTPPort),
			webServer.Handler(), webServer.Close),
		workers.NewHealthWorker(logger, metrics, registry, config.MetricInterval),
	).Run(ctx)

	logger.Info("Program stopped cleanly")
	return exitOK, nil
}

// resolveAdmin returns the id every client conversation goes to, seeding
// the admin account on first start when no id is configured.
func resolveAdmin(ctx context.Context, config internal.Config, users repositories.IUserRepository,
	authService *services.AuthService) (string, error) {
	if config.AdminUserID != "" {
		return config.AdminUserID, nil
	}
	admin, err := users.GetUserByEmail(ctx, config.AdminEmail)
	if err == nil {
		return admin.ID, nil
	}
	if !errors.Is(err, errors.ErrNotFound) {
		return "", err
	}
	admin, err = authService.Register(ctx, auth.RegisterRequest{
		Email:    config.AdminEmail,
		Password: config.AdminPassword,
		Name:     config.AdminName,
	}, domain.RoleAdmin, "")
	if err != nil {
		return "", err
	}
	return admin.ID, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}
