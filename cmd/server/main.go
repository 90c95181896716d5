package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/enesyuzak/locat-web-tracker/config"
	"github.com/enesyuzak/locat-web-tracker/db"
	adminHandlers "github.com/enesyuzak/locat-web-tracker/internal/handlers/admin"
	authHandlers "github.com/enesyuzak/locat-web-tracker/internal/handlers/auth"
	geoHandlers "github.com/enesyuzak/locat-web-tracker/internal/handlers/geo"
	applog "github.com/enesyuzak/locat-web-tracker/internal/logger"
	"github.com/enesyuzak/locat-web-tracker/internal/repositories"
	"github.com/enesyuzak/locat-web-tracker/internal/routes"
	authService "github.com/enesyuzak/locat-web-tracker/internal/services/auth"
	"github.com/enesyuzak/locat-web-tracker/internal/services/export"
	geoService "github.com/enesyuzak/locat-web-tracker/internal/services/geo"
	"github.com/enesyuzak/locat-web-tracker/internal/services/identity"
	"github.com/enesyuzak/locat-web-tracker/internal/services/realtime"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := applog.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.DatabaseDSN, "up"); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("migrations applied")
	}

	database, err := db.InitDB(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer database.Close()

	redisClient := config.NewRedisClient(cfg)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		// names and last locations fall back to Postgres; sessions need Redis
		logger.Warn("redis unreachable at startup", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}

	posRepo := repositories.NewPositionRepository(database)
	userRepo := repositories.NewUserRepository(database)

	names := identity.NewResolver(userRepo, redisClient, cfg.Identity.CacheTTL, cfg.Identity.LookupTimeout, logger.Named("identity"))
	reconciler := geoService.NewReconciler(names, logger.Named("reconciler"))
	hub := realtime.NewHub(logger.Named("ws"))
	dashboard := geoService.NewDashboard(posRepo, reconciler, hub, cfg.Dashboard, logger.Named("dashboard"))
	trigger := geoService.NewTriggerCoordinator(posRepo, cfg.Trigger, func(ctx context.Context) error {
		_, err := dashboard.Refresh(ctx)
		return err
	}, logger.Named("trigger"))
	tracker := geoService.NewGeoTrackService(posRepo, redisClient, logger.Named("geo"))

	jwtService := authService.NewJWTService(cfg.JwtSecret, redisClient, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	resets := authService.NewResetTokens(redisClient, cfg.ResetTokenTTL)
	auth := authService.NewAuthService(userRepo, jwtService, resets, names, logger.Named("auth"))

	// left as a nil interface when disabled so the handler answers 501
	var sheets geoHandlers.SheetsAppender
	if cfg.SheetsEnabled() {
		exporter, err := export.NewSheetsExporter(ctx, cfg.GoogleSheetsID, cfg.GoogleCredentialsFile)
		if err != nil {
			logger.Warn("google sheets export disabled", zap.Error(err))
		} else {
			sheets = exporter
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	router := routes.Setup(cfg, routes.Handlers{
		Admin:     adminHandlers.NewAdminHandler(userRepo, names, logger.Named("admin")),
		Auth:      authHandlers.NewAuthHandler(auth, cfg.ResetReturnToClient, logger.Named("auth")),
		Geo:       geoHandlers.NewGeoTrackHandler(tracker),
		Locations: geoHandlers.NewLocationsHandler(gctx, dashboard, trigger, sheets, hub, logger.Named("locations")),
	}, logger)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener := repositories.NewChangeListener(cfg.DatabaseDSN, logger.Named("listener"))
	g.Go(func() error {
		return routes.RunWorkers(gctx, hub, dashboard, listener, logger)
	})

	g.Go(func() error {
		logger.Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
