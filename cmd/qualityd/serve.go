package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"telemed/internal/core/domain"
	"telemed/internal/core/ports"
	"telemed/internal/core/services"
	httphandlers "telemed/internal/handlers/http"
	"telemed/internal/infrastructure/distributed"
	"telemed/internal/infrastructure/middleware"
	"telemed/internal/infrastructure/monitoring"
	"telemed/internal/infrastructure/repositories"
	"telemed/pkg/config"
	"telemed/pkg/logger"
	"telemed/pkg/retry"
	"telemed/pkg/tracing"
	"telemed/pkg/utils"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	healthCheckInterval = 30 * time.Second
	healthCheckTimeout  = 2 * time.Second
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the quality API and any configured simulated sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	startTime := time.Now()

	zapLogger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Tracing.Enabled {
		tp, err := tracing.Init(tracing.Config{
			Enabled:     true,
			ServiceName: "qualityd",
			JaegerURL:   cfg.Tracing.JaegerURL,
			Environment: cfg.Tracing.Environment,
			SampleRate:  cfg.Tracing.SampleRate,
		})
		if err != nil {
			log.Warnw("tracing disabled", "error", err)
		} else {
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					log.Warnw("failed to flush traces", "error", err)
				}
			}()
		}
	}

	engine, err := engineConfig(cfg)
	if err != nil {
		return err
	}

	// Initialize repository factory
	repoFactory, err := repositories.NewRepositoryFactory(ctx, cfg, retry.DefaultConfig(), log)
	if err != nil {
		return err
	}
	defer func() {
		if err := repoFactory.Close(); err != nil {
			log.Errorw("error closing repository factory", "error", err)
		}
	}()
	reports := repoFactory.QualityReportRepository()

	registry := services.NewSessionRegistry(reports, log)
	metricsService := services.NewMetricsService()
	observers := []ports.QualityObserver{metricsService}
	registry.OnSessionEnded(func(_ context.Context, id domain.SessionID) {
		metricsService.RemoveSession(id)
	})

	if cfg.Monitoring.PrometheusEnabled {
		collector := monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)
		observers = append(observers, collector)
		registry.OnSessionStarted(collector.RecordSessionStarted)
		registry.OnSessionEnded(func(_ context.Context, id domain.SessionID) {
			collector.RecordSessionEnded(id)
		})
	}

	redisClient := repoFactory.RedisClient()
	if redisClient != nil {
		bus := distributed.NewEventBus(redisClient, cfg.Redis.EventChannel, log, clock.New())
		observers = append(observers, bus)
		registry.OnSessionEnded(func(ctx context.Context, id domain.SessionID) {
			if err := bus.PublishSessionEnded(ctx, id); err != nil {
				log.Warnw("failed to announce session end", "session_id", id, "error", err)
			}
		})
		go bus.Run(ctx)
		go func() {
			err := bus.Subscribe(ctx, func(event *distributed.Event) error {
				log.Debugw("quality event from peer instance",
					"type", event.Type,
					"session_id", event.SessionID,
					"instance_id", event.InstanceID,
				)
				return nil
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Warnw("event subscription ended", "error", err)
			}
		}()
	}

	if cfg.Archive.Enabled {
		scheduler, err := newArchiveScheduler(cfg, reports, redisClient, log)
		if err != nil {
			return err
		}
		go scheduler.Start(ctx)
	}

	if err := startSimulatedSessions(ctx, cfg, engine, registry, observers, log); err != nil {
		return err
	}

	health := monitoring.NewHealthChecker()
	health.AddRepositoryCheck(reports, healthCheckInterval, healthCheckTimeout)
	if redisClient != nil {
		health.AddRedisCheck(redisClient, healthCheckInterval, healthCheckTimeout)
	}
	health.AddMonitorCheck(func() []ports.QualityMonitor {
		live := registry.List()
		monitors := make([]ports.QualityMonitor, 0, len(live))
		for _, m := range live {
			monitors = append(monitors, m)
		}
		return monitors
	}, healthCheckInterval, healthCheckTimeout)
	health.StartBackgroundChecks(ctx, log)

	router := newRouter(cfg, zapLogger, registry, reports, metricsService, health, repoFactory, startTime)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting quality server",
			"address", cfg.Server.Address,
			"storage", repoFactory.Backend(),
			"auth", cfg.Auth.Enabled,
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait for shutdown signals or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case err := <-serverErr:
		log.Errorw("server failed", "error", err)
		runErr = err
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	}

	// Final reports are saved before the repositories close.
	registry.StopAll(shutdownCtx)
	cancel()

	log.Info("quality server stopped")
	return runErr
}

func newRouter(
	cfg *config.Config,
	zapLogger *zap.Logger,
	registry *services.SessionRegistry,
	reports ports.QualityReportRepository,
	metricsService *services.MetricsService,
	health *monitoring.HealthChecker,
	repoFactory *repositories.RepositoryFactory,
	startTime time.Time,
) *gin.Engine {
	log := zapLogger.Sugar()

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.RequestID(logger.NewContextLogger(zapLogger)))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}
	router.Use(middleware.ErrorHandlerMiddleware(log))

	router.GET("/health", func(c *gin.Context) {
		status := health.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status.Status,
			"checks":    status.Checks,
			"timestamp": status.Timestamp,
			"uptime":    utils.FormatDuration(time.Since(startTime)),
			"sessions":  len(registry.List()),
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		if err := repoFactory.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not_ready",
				"error":  err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "storage": repoFactory.Backend()})
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET(cfg.Monitoring.MetricsPath, gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api/v1")
	api.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	ws := router.Group("/ws")
	ws.Use(middleware.NewWebSocketRateLimitMiddleware(cfg))

	if cfg.Auth.Enabled {
		authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL, nil)
		api.Use(middleware.BearerAuth(authService))
		ws.Use(middleware.BearerAuth(authService))
		httphandlers.NewAuthHandler(authService, cfg.Auth.TokenTTL).SetupRoutes(api)
	}

	qualityHandler := httphandlers.NewQualityHandler(
		registry,
		reports,
		metricsService,
		services.NewPresentationService(),
		httphandlers.StreamOptions{AllowedOrigins: cfg.Auth.AllowedOrigins},
		log,
	)
	qualityHandler.SetupRoutes(api, ws)

	return router
}
