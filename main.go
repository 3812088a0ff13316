package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/errgroup"

	"gamestore/api/config"
	"gamestore/api/database"
	"gamestore/api/handlers"
	"gamestore/api/ingest"
	"gamestore/api/middleware"
	"gamestore/api/store"
	"gamestore/api/telemetry"
	"gamestore/api/utils"
)

const serviceName = "gamestore-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := log.NewFilter(
		log.With(log.NewStdLogger(os.Stdout),
			"ts", log.DefaultTimestamp,
			"caller", log.DefaultCaller,
			"service", serviceName,
		),
		log.FilterLevel(log.ParseLevel(cfg.LogLevel)),
	)

	if err := run(cfg, logger); err != nil {
		log.NewHelper(logger).Errorw("msg", "server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger log.Logger) error {
	helper := log.NewHelper(log.With(logger, "module", "main"))
	if cfg.GinMode == gin.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tel, shutdownTelemetry, err := telemetry.New(logger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer shutdownTelemetry()

	pg, err := database.NewPostgresDB(ctx, database.PostgresOptions{
		URL:          cfg.DatabaseURL,
		MaxOpenConns: cfg.PGMaxOpenConns,
		MaxIdleConns: cfg.PGMaxIdleConns,
	}, logger)
	if err != nil {
		return err
	}
	defer pg.Close()

	rdb, err := database.NewRedisClient(ctx, database.RedisOptions{
		URL:      cfg.RedisURL,
		PoolSize: cfg.RedisPoolSize,
	}, logger)
	if err != nil {
		return err
	}
	defer rdb.Close()

	var ch *database.ClickHouseClient
	if cfg.ClickHouse.Enabled() {
		ch, err = database.NewClickHouseDB(ctx, cfg.ClickHouse, logger)
		if err != nil {
			return err
		}
		defer ch.Close()
	} else {
		helper.Warn("CLICKHOUSE_HOST not set, analytics recording and stats endpoints are disabled")
	}

	userStore := store.NewUserStore(pg.DB, logger)
	webEvents := store.NewWebEventStore(pg.DB, logger)
	sessions := store.NewSessionStore(rdb.Client, cfg.SessionTTL, logger)
	recent := store.NewRecentItemsStore(rdb.Client, cfg.RecentItemsWindow, logger)

	if err := userStore.EnsureSchema(ctx); err != nil {
		return err
	}
	if err := webEvents.EnsureSchema(ctx); err != nil {
		return err
	}
	recorders := []ingest.EventRecorder{webEvents}

	var analytics *store.AnalyticsStore
	if ch != nil {
		analytics = store.NewAnalyticsStore(ch, logger)
		if err := analytics.EnsureSchema(ctx); err != nil {
			return err
		}
		recorders = append(recorders, analytics)
	}

	dispatcher, err := ingest.NewDispatcher(ingest.Params{
		Sessions:    sessions,
		RecentItems: recent,
		Recorders:   recorders,
		Options: ingest.Options{
			Workers:     cfg.IngestWorkers,
			QueueSize:   cfg.IngestQueueSize,
			TaskTimeout: cfg.IngestTaskTimeout,
		},
		Meter:  tel.Meter,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	dispatcher.Start()

	cache, err := telemetry.NewCacheMetrics(tel.Meter)
	if err != nil {
		return fmt.Errorf("init cache metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(tel.Meter)
	if err != nil {
		return fmt.Errorf("init http metrics: %w", err)
	}

	if cfg.JWTSecret == "" {
		helper.Warn("JWT_SECRET_KEY not set, login and protected routes will reject every token")
	}
	jwtManager := utils.NewJWTManager(cfg.JWTSecret, handlers.AuthTokenTTL)

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger), httpMetrics.Handler(), middleware.CORSMiddleware(cfg.CORSOrigins))

	r.GET("/health", handlers.HealthCheck(rdb))

	ingestion := handlers.NewIngestionHandlers(dispatcher, logger)
	insightsH := handlers.NewInsightsHandlers(sessions, recent, recent.Window(), cache, logger)
	auth := handlers.NewAuthHandlers(userStore, jwtManager, logger)

	api := r.Group("/api/v1")
	{
		api.POST("/ingest", ingestion.Ingest)
		api.GET("/analytics/sessions/:session_id/insights", insightsH.GetSessionInsights)
		api.GET("/last_games_viewed", insightsH.GetLastGamesViewed)

		api.POST("/signup", auth.Signup)
		api.POST("/login", auth.Login)
		api.POST("/logout", auth.Logout)
		api.GET("/users/:user_id", auth.GetUser)

		protected := api.Group("/")
		protected.Use(middleware.AuthRequired(jwtManager, cfg.AuthDefault, logger))
		{
			protected.GET("/profile", auth.Profile)

			if analytics != nil {
				stats := handlers.NewStatsHandlers(analytics, logger)
				statsGroup := protected.Group("/stats")
				{
					statsGroup.GET("/event-counts", stats.GetEventCountsOverTime)
					statsGroup.GET("/average-time-spent", stats.GetAverageTimeSpent)
					statsGroup.GET("/unique-users", stats.GetUniqueUsersOverTime)
					statsGroup.GET("/top-referrers", stats.GetTopReferrers)
				}
				protected.GET("/customer/insights", stats.GetCustomerInsights)
			}
		}
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	var metricsSrv *http.Server
	if cfg.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", tel.Handler())
		metricsSrv = &http.Server{
			Addr:              ":" + strconv.Itoa(cfg.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		helper.Infow("msg", "HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if metricsSrv != nil {
		g.Go(func() error {
			helper.Infow("msg", "metrics server listening", "addr", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		helper.Info("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		if metricsSrv != nil {
			err = errors.Join(err, metricsSrv.Shutdown(shutdownCtx))
		}
		return err
	})

	serveErr := g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := dispatcher.Stop(drainCtx); err != nil {
		helper.Warnw("msg", "ingest queue not fully drained", "error", err)
	}

	helper.Info("server exiting")
	return serveErr
}
