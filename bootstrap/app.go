package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"auditsync/api"
	"auditsync/cases"
	"auditsync/config"
	"auditsync/consume"
	"auditsync/extract"
	"auditsync/rules"
	"auditsync/storage"
	"auditsync/stream"

	"go.uber.org/zap"
)

// shutdownTimeout bounds how long Shutdown waits for the loop and the API
// server to finish.
const shutdownTimeout = 10 * time.Second

// App represents the audit consumer application with all its components.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	Sugar  *zap.SugaredLogger

	DB        *storage.SQLite
	Source    stream.Source
	Loop      *consume.Loop
	APIServer *api.API

	cancel   context.CancelFunc
	loopDone chan struct{}
}

// NewApp creates a new application instance and initializes all components.
func NewApp(ctx context.Context) (*App, error) {
	app := &App{loopDone: make(chan struct{})}

	logger, sugar, err := InitLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.Logger = logger
	app.Sugar = sugar

	sugar.Info("AuditSync consumer starting...")

	cfg, err := InitConfig(sugar)
	if err != nil {
		return nil, err
	}
	app.Config = cfg

	db, err := storage.NewSQLite(cfg.Storage.SQLitePath, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite: %w", err)
	}
	app.DB = db

	if err := db.RunMigrations(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	source, err := stream.NewRedisSource(ctx, cfg.Stream.Addr, cfg.Stream.Password,
		cfg.Stream.DB, cfg.Stream.Name, cfg.Stream.Group, cfg.Stream.Consumer,
		cfg.Stream.BlockTimeout, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to stream: %w", err)
	}
	app.Source = source

	targetStorage := storage.NewSQLiteTargetStorage(db, sugar)
	ruleStorage := storage.NewSQLiteRuleStorage(db, sugar)
	eventStorage := storage.NewSQLiteEventStorage(db, sugar)
	caseStorage := storage.NewSQLiteCaseStorage(db, sugar)
	extractionStorage := storage.NewSQLiteCaseExtractionStorage(db, sugar)

	policy, err := extract.ParsePolicy(cfg.Extraction.Policy)
	if err != nil {
		return nil, err
	}
	engine, err := extract.NewEngine(policy, cfg.Extraction.RegexTimeout,
		cfg.Extraction.PatternCacheSize, sugar)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize extraction engine: %w", err)
	}

	app.Loop = consume.NewLoop(source, eventStorage,
		consume.NewTargetGate(targetStorage, sugar),
		rules.NewCache(ruleStorage, sugar),
		engine,
		cases.NewService(caseStorage, extractionStorage, sugar),
		cfg.Consumer.RetryBackoff, sugar)

	app.APIServer = api.NewAPI(targetStorage, ruleStorage, caseStorage,
		extractionStorage, dbPinger{db}, source, sugar)

	return app, nil
}

// Start launches the ingestion loop and the API server.
func (a *App) Start(ctx context.Context) error {
	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	go func() {
		defer close(a.loopDone)
		if err := a.Loop.Run(loopCtx); err != nil {
			a.Sugar.Errorf("Ingestion loop exited with error: %v", err)
		}
	}()

	addr := net.JoinHostPort(a.Config.API.Host, strconv.Itoa(a.Config.API.Port))
	go func() {
		if err := a.APIServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Sugar.Errorf("API server exited with error: %v", err)
		}
	}()

	return nil
}

// WaitForShutdown blocks until a shutdown signal is received.
func (a *App) WaitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c
}

// Shutdown stops the loop, the API server and the connections, letting
// in-flight work finish.
func (a *App) Shutdown() {
	a.Sugar.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.cancel != nil {
		a.cancel()
		select {
		case <-a.loopDone:
		case <-ctx.Done():
			a.Sugar.Warn("Ingestion loop did not stop within the shutdown timeout")
		}
	}

	if a.APIServer != nil {
		if err := a.APIServer.Shutdown(ctx); err != nil {
			a.Sugar.Errorf("Failed to shut down API server: %v", err)
		}
	}

	if a.Source != nil {
		if err := a.Source.Close(); err != nil {
			a.Sugar.Errorf("Failed to close stream source: %v", err)
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Sugar.Errorf("Failed to close database: %v", err)
		}
	}

	a.Sugar.Info("Shutdown complete")
	_ = a.Logger.Sync()
}

// dbPinger adapts the SQLite handle to the readiness probe interface.
type dbPinger struct {
	db *storage.SQLite
}

func (p dbPinger) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
