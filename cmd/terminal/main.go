package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/tillpoint-terminal/api/routes"
	"github.com/angelmondragon/tillpoint-terminal/internal/authclient"
	"github.com/angelmondragon/tillpoint-terminal/internal/invoices"
	"github.com/angelmondragon/tillpoint-terminal/internal/session"
	"github.com/angelmondragon/tillpoint-terminal/internal/syncer"
	"github.com/angelmondragon/tillpoint-terminal/pkg/config"
	"github.com/angelmondragon/tillpoint-terminal/pkg/docstore"
	"github.com/angelmondragon/tillpoint-terminal/pkg/docstore/remote"
	"github.com/angelmondragon/tillpoint-terminal/pkg/docstore/sqlite"
	"github.com/angelmondragon/tillpoint-terminal/pkg/kv"
	"github.com/angelmondragon/tillpoint-terminal/pkg/logger"
	"github.com/angelmondragon/tillpoint-terminal/pkg/metrics"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "terminal"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "terminal",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx := logg.WithTerminalID(context.Background(),
		cfg.Terminal.StoreCode+"/"+cfg.Terminal.TerminalCode)

	local, err := sqlite.Open(ctx, cfg.Local, logg)
	if err != nil {
		logg.Error(ctx, "failed to open local document store", err)
		os.Exit(1)
	}
	defer func() {
		if err := local.Close(); err != nil {
			logg.Error(ctx, "error closing local store", err)
		}
	}()

	var remoteClient *remote.Client
	if cfg.Remote.Configured() {
		remoteClient, err = remote.NewClient(cfg.Remote)
		if err != nil {
			logg.Error(ctx, "failed to build remote store client", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(ctx, "no remote store configured: terminal runs offline only")
	}

	storage, err := openSessionStorage(ctx, cfg)
	if err != nil {
		logg.Error(ctx, "failed to open session storage", err)
		os.Exit(1)
	}

	var registry *prometheus.Registry
	var syncMetrics *metrics.SyncMetrics
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		syncMetrics = metrics.NewSyncMetrics(registry)
	}

	var remoteStore syncer.RemoteStore
	if remoteClient != nil {
		remoteStore = remoteClient
	}
	sync, err := syncer.New(syncer.Params{
		Local:       local,
		Remote:      remoteStore,
		Checkpoints: storage,
		Logger:      logg,
		Metrics:     syncMetrics,
		LegTimeout:  cfg.Sync.Timeout,
	})
	if err != nil {
		logg.Error(ctx, "failed to build synchronizer", err)
		os.Exit(1)
	}

	sess, err := session.New(session.Params{
		Local:    local,
		Storage:  storage,
		Logger:   logg,
		Terminal: cfg.Terminal,
	})
	if err != nil {
		logg.Error(ctx, "failed to build session", err)
		os.Exit(1)
	}

	manager, err := invoices.New(invoices.Params{
		Local:       local,
		Session:     sess,
		Storage:     storage,
		Logger:      logg,
		Pusher:      sync,
		TaxRate:     cfg.Sales.TaxRate,
		PushTimeout: cfg.Sync.Timeout,
	})
	if err != nil {
		logg.Error(ctx, "failed to build invoice manager", err)
		os.Exit(1)
	}

	var auth *authclient.Client
	if cfg.Auth.ServiceURL != "" {
		auth, err = authclient.New(cfg.Auth)
		if err != nil {
			logg.Error(ctx, "failed to build auth client", err)
			os.Exit(1)
		}
	}

	report := sync.InitializeDatabase(ctx, syncer.InitOptions{
		SyncOnStartup: cfg.Sync.SyncOnStartup,
		Profiles:      sess,
	})
	if report.Failed != nil {
		logg.Error(ctx, "terminal initialization failed", report.Failed)
		os.Exit(1)
	}
	if report.Offline {
		logg.Warn(ctx, "starting in offline mode")
	}

	var remotePinger docstore.Pinger
	if remoteClient != nil {
		remotePinger = remoteClient
	}
	handler := routes.NewRouter(routes.Params{
		Config:   cfg,
		Logger:   logg,
		Local:    local,
		Remote:   remotePinger,
		Auth:     auth,
		Session:  sess,
		Invoices: manager,
		Syncer:   sync,
		Registry: registry,
	})

	addr := "127.0.0.1:" + cfg.App.Port
	server := &http.Server{Addr: addr, Handler: handler}

	shutdownCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logg.Info(logg.WithField(ctx, "addr", addr), "terminal API listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Error(ctx, "terminal API stopped unexpectedly", err)
			stop()
		}
	}()

	<-shutdownCtx.Done()
	logg.Info(ctx, "shutting down")

	drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		logg.Error(ctx, "shutdown did not complete cleanly", err)
	}
}

func openSessionStorage(ctx context.Context, cfg *config.Config) (kv.Store, error) {
	if cfg.Session.Backend == "redis" {
		return kv.OpenRedisStore(ctx, cfg.Redis)
	}
	return kv.OpenFileStore(cfg.Session.Dir)
}
