// The desktop build of the PentryPal core. The UI shell talks to it over
// REST and a WebSocket event stream on localhost.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pentrypal/app/core/cmd/desktop/handlers"
	"github.com/pentrypal/app/core/internal/api"
	"github.com/pentrypal/app/core/internal/config"
	"github.com/pentrypal/app/core/internal/connectivity"
	"github.com/pentrypal/app/core/internal/db"
	"github.com/pentrypal/app/core/internal/logging"
	"github.com/pentrypal/app/core/internal/store"
	syncpkg "github.com/pentrypal/app/core/internal/sync"
	"github.com/pentrypal/app/core/internal/sync/queue"
)

func main() {
	cfg := config.NewConfig()
	logging.Init(os.Stderr, cfg.Logger.Level)

	logging.Info("PentryPal core starting", map[string]interface{}{
		"data_dir": cfg.Storage.DataDir,
		"port":     cfg.HTTP.Port,
	})

	database, err := db.Open(cfg.Storage.DataDir)
	if err != nil {
		logging.Error("Failed to open database", err, nil)
		os.Exit(1)
	}
	defer database.Close()

	migrator := db.NewMigrator(database.DB)
	if err := migrator.Initialize(); err != nil {
		logging.Error("Failed to initialize migrations", err, nil)
		os.Exit(1)
	}
	if err := migrator.Up(); err != nil {
		logging.Error("Failed to apply migrations", err, nil)
		os.Exit(1)
	}

	repo := db.NewRepository(database.DB)
	defer repo.Close()

	st := store.New(repo)
	if err := st.Hydrate(); err != nil {
		logging.Error("Failed to hydrate state", err, nil)
		os.Exit(1)
	}

	q := queue.New(cfg.Sync.QueueMaxSize)
	client := api.NewClient(cfg.API, st)
	replayer := api.NewActionReplayer(client, st)
	engine := syncpkg.NewEngine(st, q, replayer, &syncpkg.EngineConfig{
		DrainDelay: cfg.Sync.DrainDelay,
		MaxRetries: cfg.Sync.ActionMaxRetries,
	})
	st.Use(engine)
	engine.UsePuller(client)
	client.OnSessionRevoked(engine.Reset)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prober := connectivity.NewHTTPProber(cfg.API.BaseURL, cfg.Sync.ProbeTimeout)
	monitor := connectivity.NewMonitor(st, prober, cfg.Sync.ProbeInterval)
	monitor.Start(ctx)
	defer monitor.Stop()

	push := api.NewPushSubscriber(cfg.API.WebSocketURL, st)
	push.OnSessionRevoked(engine.Reset)
	push.Start(ctx)
	defer push.Stop()

	hub := NewWSHub()
	hub.BindStore(st)

	router := setupRouter(routerDeps{
		auth:   handlers.NewAuthHandler(client, engine),
		lists:  handlers.NewListsHandler(st),
		pantry: handlers.NewPantryHandler(st),
		sync:   handlers.NewSyncHandler(st, engine, q, monitor, repo),
		state:  handlers.NewStateHandler(st),
		hub:    hub,
		port:   cfg.HTTP.Port,
	})

	srv := &http.Server{
		Addr:    cfg.HTTP.BindInterface + ":" + cfg.HTTP.Port,
		Handler: router,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logging.Info("Control plane listening", map[string]interface{}{
		"addr": srv.Addr,
	})
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logging.Error("Control plane failed", err, nil)
		os.Exit(1)
	}

	logging.Info("PentryPal core stopped", nil)
}
