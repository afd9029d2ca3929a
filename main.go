package main

import (
	"context"
	"errors"
	"log" // Use standard log only for initial fatal errors before logger is set up
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"chartdesk/config"
	"chartdesk/internal/adapters/binanceclient"
	"chartdesk/internal/adapters/logger"
	"chartdesk/internal/adapters/sqlite"
	"chartdesk/internal/api"
	"chartdesk/internal/app"
	"chartdesk/internal/broadcast"
	"chartdesk/internal/chart"
	"chartdesk/internal/domain"
	"chartdesk/internal/risk"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err) // Use standard log before logger is ready
	}

	// 2. Initialize Logger
	appLogger := logger.New(cfg.LogLevel, cfg.LogFormat).WithFields(map[string]interface{}{
		"symbol":   cfg.Symbol,
		"interval": cfg.Interval,
	})
	appLogger.Info(context.Background(), "Logger initialized", map[string]interface{}{"level": cfg.LogLevel.String()})

	// 3. Initialize Repository (Database Adapter)
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: cfg.DBPath,
		Logger: appLogger,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err) // Also log to stderr
	}
	appLogger.Info(context.Background(), "Database repository initialized")

	// 4. Initialize Exchange Client (Binance Adapter)
	binanceClient, err := binanceclient.New(binanceclient.Config{
		APIKey:               cfg.APIKey,
		SecretKey:            cfg.SecretKey,
		UseTestnet:           cfg.IsTestnet,
		Logger:               appLogger,
		ReconnectDelay:       cfg.ReconnectDelay,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	})
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize Binance client")
		log.Fatalf("FATAL: Failed to initialize Binance client: %v", err)
	}
	appLogger.Info(context.Background(), "Binance client initialized")

	// 5. Position book and broadcast hub
	scope := domain.Scope{ReferralCode: cfg.ReferralCode, Symbol: cfg.Symbol}
	book := app.NewPositionBook(cfg.Symbol, repo, risk.NewRiskManager(risk.RiskConfig{
		MaxExitDistance: cfg.MaxExitDistance,
	}), appLogger)
	hub := broadcast.NewHub(scope, appLogger)

	// 6. Initialize Chart Session
	limits := chart.DefaultViewportLimits()
	limits.BaseWindow = cfg.ChartBaseWindow
	limits.MinVisible = cfg.ChartMinVisible

	session, err := app.NewSession(app.Config{
		Scope:           scope,
		Interval:        cfg.Interval,
		IntervalSeconds: cfg.IntervalSeconds,
		HistoryLimit:    cfg.HistoryLimit,
		Layout: chart.Layout{
			Width:         cfg.ChartWidth,
			Height:        cfg.ChartHeight,
			Padding:       chart.Padding{Top: 20, Right: 70, Bottom: 30, Left: 10},
			PricePadRatio: cfg.ChartPricePadding,
		},
		Limits:        limits,
		HitThreshold:  cfg.ChartHitThreshold,
		FrameInterval: cfg.FrameInterval,
	}, appLogger, binanceClient, repo, book, hub)
	if err != nil {
		appLogger.Error(context.Background(), err, "FATAL: Failed to initialize chart session")
		log.Fatalf("FATAL: Failed to initialize chart session: %v", err)
	}
	hub.SetHandler(session)
	appLogger.Info(context.Background(), "Chart session initialized", map[string]interface{}{"referralCode": cfg.ReferralCode})

	// 7. HTTP surface
	if cfg.LogLevel != logger.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.NewAPIHandler(session, hub, appLogger).SetupRoutes(),
	}

	// 8. Run until a signal arrives or a component fails
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return session.Start(gctx)
	})
	g.Go(func() error {
		appLogger.Info(gctx, "HTTP server listening", map[string]interface{}{"addr": cfg.HTTPAddr})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		hub.Close()
		return server.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()
	if err := repo.Close(); err != nil {
		appLogger.Error(context.Background(), err, "Error closing database repository")
	}
	if runErr != nil {
		appLogger.Error(context.Background(), runErr, "Application exited with error")
		os.Exit(1)
	}

	appLogger.Info(context.Background(), "Application finished gracefully.")
}
