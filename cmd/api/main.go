package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/cors"

	"github.com/creospace/credits/internal/config"
	"github.com/creospace/credits/internal/dispatch"
	"github.com/creospace/credits/internal/handlers"
	"github.com/creospace/credits/internal/middleware"
	"github.com/creospace/credits/internal/payout"
	"github.com/creospace/credits/internal/pgutils"
	"github.com/creospace/credits/internal/provider"
	"github.com/creospace/credits/internal/repository"
	"github.com/creospace/credits/internal/router"
	"github.com/creospace/credits/internal/wallet"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		slog.Error("Unable to create database pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("Cannot reach PostgreSQL. Ensure Postgres is running and migrations are applied (cmd/migrate)", "error", err)
		os.Exit(1)
	}
	slog.Info("Connected to PostgreSQL")

	// River migrations (job queue tables only; schema lives in cmd/migrate)
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		slog.Error("Failed to create River migrator", "error", err)
		os.Exit(1)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		slog.Error("River migrate up failed", "error", err)
		os.Exit(1)
	}
	slog.Info("River migrations applied")

	db := pgutils.NewDB(pool)
	accountRepo := repository.NewAccountRepo(pool)
	ledgerRepo := repository.NewLedgerRepo(pool)
	payoutRepo := repository.NewPayoutRepo(pool)
	methodRepo := repository.NewPayoutMethodRepo(pool)

	walletSvc := wallet.NewService(db, accountRepo, ledgerRepo)

	// Payouts: the submit-job insert func is set after the River client is
	// created (breaks the init cycle between service and worker).
	var insertMu sync.Mutex
	var insertFn payout.EnqueueSubmitFunc
	enqueueSubmit := func(ctx context.Context, tx pgx.Tx, args dispatch.SubmitPayoutArgs) error {
		insertMu.Lock()
		fn := insertFn
		insertMu.Unlock()
		if fn == nil {
			panic("river insert not wired")
		}
		return fn(ctx, tx, args)
	}
	payoutSvc := payout.NewService(db, accountRepo, ledgerRepo, payoutRepo, methodRepo, enqueueSubmit)

	providerClient := provider.NewClient(cfg.Provider.BaseURL, cfg.Provider.APIKey)

	workers := river.NewWorkers()
	river.AddWorker(workers, dispatch.NewSubmitPayoutWorker(payoutSvc, providerClient, logger))
	river.AddWorker(workers, dispatch.NewReconcileWorker(payoutSvc, cfg.ProcessingTimeout(), logger))

	riverClient, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(cfg.ReconcileInterval()),
				func() (river.JobArgs, *river.InsertOpts) {
					return dispatch.ReconcileArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		},
	})
	if err != nil {
		slog.Error("Failed to create River client", "error", err)
		os.Exit(1)
	}

	insertMu.Lock()
	insertFn = func(ctx context.Context, tx pgx.Tx, args dispatch.SubmitPayoutArgs) error {
		_, err := riverClient.InsertTx(ctx, tx, args, nil)
		return err
	}
	insertMu.Unlock()

	walletHandler := &handlers.WalletHandler{Wallet: walletSvc, Ledger: ledgerRepo, Logger: logger}
	payoutHandler := &handlers.PayoutHandler{Payouts: payoutSvc, Methods: methodRepo, Logger: logger}
	callbackHandler := &handlers.CallbackHandler{
		Payouts: payoutSvc,
		Secret:  []byte(cfg.Provider.WebhookSecret),
		Logger:  logger,
	}

	userAuth := middleware.BearerAuth([]byte(cfg.Auth.JWTSecret))
	adminAuth := middleware.AdminKeyAuth(cfg.Auth.AdminKeyHash)
	apiRouter := router.New(walletHandler, payoutHandler, callbackHandler, userAuth, adminAuth)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Admin-Key", "X-Provider-Signature"},
		AllowCredentials: true,
	}).Handler(apiRouter)

	// Start River client (submits payouts, runs the reconciliation sweep)
	riverCtx, stopRiver := context.WithCancel(ctx)
	defer stopRiver()
	go func() {
		if err := riverClient.Start(riverCtx); err != nil && riverCtx.Err() == nil {
			slog.Error("River client stopped", "error", err)
		}
	}()

	slog.Info("Starting HTTP server", "addr", cfg.Addr())
	if err := http.ListenAndServe(cfg.Addr(), corsHandler); err != nil {
		slog.Error("HTTP server failed", "error", err)
		os.Exit(1)
	}
}
