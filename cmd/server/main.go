package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"

	"scenerepo/internal/config"
	"scenerepo/internal/handler"
	"scenerepo/internal/hub"
	"scenerepo/internal/ledger"
	"scenerepo/internal/service"
	"scenerepo/internal/storage"
	"scenerepo/internal/storage/mongo"
	"scenerepo/internal/storage/sqlite"
)

// stores holds the process-wide storage handler
var stores storage.Singleton

func main() {
	// Command line flags; glog registers its own
	configPath := flag.String("config", "", "config file (default: search "+config.EnvConfigPath+" and standard locations)")
	addr := flag.String("addr", "", "HTTP listen address, overrides the config file")
	initConfig := flag.Bool("init", false, "write a default config file and exit")
	flag.Parse()
	defer glog.Flush()

	if *initConfig {
		path := *configPath
		if path == "" {
			path = config.DefaultConfigPath()
		}
		if err := config.DefaultConfig().Save(path); err != nil {
			glog.Exitf("Failed to write config: %v", err)
		}
		glog.Infof("Wrote default config to %s", path)
		return
	}

	glog.Info("Starting scenerepo server...")

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		glog.Exitf("Failed to load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if path != "" {
		glog.Infof("Config loaded: %s", path)
	}
	glog.Infof("Configuration:\n%s", cfg.Summary())

	driver, err := newDriver(cfg.Storage)
	if err != nil {
		glog.Exitf("Failed to create %s driver: %v", cfg.Storage.Driver, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The handler owns the driver from here on; Reset closes both
	store, err := stores.Get(ctx, cfg.Storage.HandlerConfig(), driver)
	if err != nil {
		driver.Close()
		glog.Exitf("Failed to open storage: %v", err)
	}
	defer func() {
		if err := stores.Reset(); err != nil {
			glog.Warningf("Failed to close storage: %v", err)
		}
	}()
	glog.Infof("Storage opened: %s", store.Driver())

	// Initialize event bus
	eventBus := service.NewEventBus()

	// Initialize SSE hub
	sseHub := hub.New()

	// Connect event bus to SSE hub
	eventChan := make(chan service.Event, 100)
	eventBus.Subscribe(eventChan)

	// Initialize services
	l := ledger.New(store,
		ledger.WithSuffixes(cfg.Ledger.SceneSuffix, cfg.Ledger.HistorySuffix),
		ledger.WithSnapshotCache(cfg.Ledger.Snapshots()),
	)
	repoSvc := service.NewRepoService(store, l, eventBus)
	roleSvc := service.NewRoleService(store, eventBus)

	if cfg.Roles.File != "" {
		if _, err := roleSvc.ProvisionFile(ctx, cfg.Roles.File); err != nil {
			glog.Errorf("Roles provisioning failed: %v", err)
		}
	}

	// Initialize HTTP handlers
	repoHandler := handler.NewRepoHandler(repoSvc)
	repoHandler.SetRoleService(roleSvc)

	// Setup routes
	mux := http.NewServeMux()
	repoHandler.Register(mux)

	// SSE events endpoint
	mux.Handle("GET /events", sseHub)

	// Apply middleware
	finalHandler := handler.Chain(mux,
		handler.Recover,
		handler.CORS,
		handler.Logger,
	)

	// Create server; no write timeout so SSE streams stay open
	server := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     finalHandler,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sseHub.Run(gctx)
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case event := <-eventChan:
				sseHub.Broadcast(string(event.Type), event.Payload)
			case <-gctx.Done():
				return nil
			}
		}
	})

	if cfg.Roles.File != "" && cfg.Roles.Watch {
		g.Go(func() error {
			err := roleSvc.WatchFile(gctx, cfg.Roles.File)
			if err != nil && !errors.Is(err, context.Canceled) {
				glog.Errorf("Roles watcher stopped: %v", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		glog.Infof("Server listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		glog.Info("Shutting down server...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		glog.Errorf("Server error: %v", err)
		stores.Reset()
		glog.Flush()
		os.Exit(1)
	}

	glog.Info("Server stopped")
}

func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// newDriver builds the storage driver the config selects
func newDriver(cfg config.StorageConfig) (storage.Driver, error) {
	switch cfg.Driver {
	case config.DriverMongo:
		var opts []mongo.Option
		if cfg.Timeout != nil {
			opts = append(opts, mongo.WithConnectTimeout(cfg.Timeout.Duration()))
		}
		d, err := mongo.New(cfg.Address, opts...)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		d, err := sqlite.New(cfg.Address)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}
