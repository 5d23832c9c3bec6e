// Command intelflow runs the event-to-intelligence pipeline: the webhook
// ingestor (C6), the Conflict/Feature/Health engines (C3-C5) chained by the
// dispatcher, and the event bus (C7) serving dashboard subscribers.
//
// HTTP routing framework choice, workspace onboarding, and authentication of
// dashboard access keys are out of scope (spec.md §1) and are not
// implemented here beyond the bare mount points this process needs to serve
// its own in-scope endpoints.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pulsegrid/intelflow/alignment"
	"github.com/pulsegrid/intelflow/bus"
	"github.com/pulsegrid/intelflow/engine"
	"github.com/pulsegrid/intelflow/internal/config"
	"github.com/pulsegrid/intelflow/storage"
	"github.com/pulsegrid/intelflow/webhook"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := run(log); err != nil {
		log.Fatal("intelflow exited with error", zap.Error(err))
	}
}

func run(log *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.Open(ctx, cfg.Database.DSN(), cfg.Database.PoolSize)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := db.Migrate(ctx); err != nil {
		return err
	}

	workspaces := storage.NewWorkspaceStore(db)
	members := storage.NewMemberStore(db)
	features := storage.NewFeatureStore(db)
	files := storage.NewFileActivityStore(db)
	prs := storage.NewPullRequestStore(db)
	blockers := storage.NewBlockerStore()
	deliveries := storage.NewDeliveryStore(db)

	hub := bus.NewHub(log)

	conflictEngine := engine.NewConflictEngine(db, workspaces, files, prs, blockers, hub, log)
	healthEngine := engine.NewHealthEngine(db, workspaces, features, members, blockers, hub, log)
	featureEngine := engine.NewFeatureEngine(db, features, blockers, hub, healthEngine, log)
	dispatcher := engine.NewDispatcher(ctx, conflictEngine, featureEngine, log)

	alignCfg := alignment.Config{
		APIKey:          cfg.Alignment.APIKey,
		BaseURL:         cfg.Alignment.BaseURL,
		Model:           cfg.Alignment.Model,
		Timeout:         cfg.Alignment.Timeout,
		MaxRetries:      cfg.Alignment.MaxRetries,
		RetryDelay:      cfg.Alignment.RetryDelay,
		RateLimitWindow: cfg.Alignment.RateLimitWindow,
		RateLimitMax:    cfg.Alignment.RateLimitMax,
	}
	alignClient := alignment.NewAnthropicClient(alignCfg, log)
	alignRunner := engine.NewAlignmentRunner(db, blockers, alignClient, log)

	ingestor := webhook.NewIngestor(db, deliveries, workspaces, files, dispatcher, cfg.Webhook.Secret, cfg.Webhook.RatePerSecond, cfg.Webhook.RateBurst, log)

	r := chi.NewRouter()
	r.Mount("/", webhook.NewRouter(ingestor, log))
	r.Get("/ws", hub.Handler(func(userUID string) (string, bool) {
		workspaceID, ok, err := members.ResolveWorkspace(ctx, userUID)
		if err != nil {
			log.Warn("resolve workspace for subscriber failed", zap.String("user_uid", userUID), zap.Error(err))
			return "", false
		}
		return workspaceID, ok
	}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/internal/alignment/check", alignmentCheckHandler(alignRunner, log))

	srv := &http.Server{
		Addr:              ":" + cfg.BindPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("intelflow listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
