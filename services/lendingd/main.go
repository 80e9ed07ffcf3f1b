package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gorm.io/gorm"

	"dlend/core/events"
	"dlend/native/common"
	"dlend/native/lending"
	"dlend/native/oracle"
	"dlend/observability"
	"dlend/observability/logging"
	telemetry "dlend/observability/otel"
	"dlend/services/indexer"
	"dlend/services/lendingd/config"
	"dlend/services/lendingd/server"
	"dlend/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/lendingd/config.yaml", "path to lendingd config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := logging.Setup(logging.Options{
		Service:     "lendingd",
		Environment: cfg.Environment,
		FilePath:    cfg.Log.FilePath,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
	})

	if cfg.Telemetry.Enabled {
		shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
			ServiceName: "lendingd",
			Environment: cfg.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Metrics:     true,
			Traces:      true,
		})
		if err != nil {
			log.Error("init telemetry", "error", err)
			os.Exit(1)
		}
		defer func() {
			_ = shutdownTelemetry(context.Background())
		}()
	}

	var db storage.Database
	if cfg.Storage.Path != "" {
		db, err = storage.NewLevelDB(cfg.Storage.Path)
		if err != nil {
			log.Error("open storage", "path", cfg.Storage.Path, "error", err)
			os.Exit(1)
		}
	} else {
		log.Warn("no storage path configured, state is in-memory only")
		db = storage.NewMemDB()
	}
	defer db.Close()

	prices := oracle.NewStaticSource()
	vault := lending.NewMemoryVault()

	emitter := events.MultiEmitter{observability.EventCounter{}}
	if dsn := cfg.Indexer.DSN; dsn != "" {
		idx, err := openIndexer(cfg.Indexer, log)
		if err != nil {
			log.Error("open indexer", "driver", cfg.Indexer.Driver, "error", err)
			os.Exit(1)
		}
		emitter = append(emitter, idx)
	}

	engine := lending.NewEngine(prices)
	engine.SetState(storage.NewStore(db))
	engine.SetVault(vault)
	engine.SetEmitter(emitter)
	if cfg.Paused {
		engine.SetPauses(common.StaticPauses{"lending": true})
	}

	if cfg.LendingConfig != "" {
		if err := bootstrapPools(engine, cfg.LendingConfig, log); err != nil {
			log.Error("bootstrap pools", "error", err)
			os.Exit(1)
		}
	}

	dev := strings.EqualFold(cfg.Environment, "dev")
	srv := server.New(server.Options{
		Engine:    engine,
		Vault:     vault,
		Prices:    prices,
		Logger:    log,
		Tokens:    cfg.Auth.APITokens,
		RateLimit: cfg.RateLimit.RequestsPerMinute,
		Burst:     cfg.RateLimit.Burst,
		Faucet:    dev,
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           srv,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		log.Info("lendingd listening", "addr", cfg.ListenAddress)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown", "error", err)
		}
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("serve http", "error", err)
			os.Exit(1)
		}
	}
}

func openIndexer(cfg config.IndexerConfig, log *slog.Logger) (*indexer.Indexer, error) {
	var (
		gdb *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "sqlite":
		gdb, err = indexer.OpenSQLite(cfg.DSN)
	default:
		gdb, err = indexer.OpenPostgres(cfg.DSN)
	}
	if err != nil {
		return nil, err
	}
	return indexer.New(gdb, log)
}

// bootstrapPools creates the pools listed in the lending TOML config,
// skipping ones that already exist in storage.
func bootstrapPools(engine *lending.Engine, path string, log *slog.Logger) error {
	moduleCfg, err := lending.LoadConfig(path)
	if err != nil {
		return err
	}
	if age := moduleCfg.MaxQuoteAgeSeconds; age > 0 {
		engine.SetMaxQuoteAge(time.Duration(age) * time.Second)
	}
	now := uint64(time.Now().Unix())
	for _, pool := range moduleCfg.Pools {
		_, err := engine.CreatePool(pool.ID, pool.Asset, pool.Decimals, pool.FeedID, pool.Params, now)
		if errors.Is(err, lending.ErrPoolExists) {
			continue
		}
		if err != nil {
			return err
		}
		log.Info("pool created", "pool", pool.ID, "asset", pool.Asset)
	}
	return nil
}
