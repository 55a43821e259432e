package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stridefam/stridefam/internal/backup"
	"github.com/stridefam/stridefam/internal/batch"
	"github.com/stridefam/stridefam/internal/billing"
	"github.com/stridefam/stridefam/internal/database"
	"github.com/stridefam/stridefam/internal/logging"
	"github.com/stridefam/stridefam/internal/push"
	"github.com/stridefam/stridefam/internal/server"
	"github.com/stridefam/stridefam/internal/tokenomics"
)

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := logging.Setup(env("STRIDEFAM_LOG_LEVEL", "info"))

	port := env("STRIDEFAM_PORT", "8080")
	dbPath := env("STRIDEFAM_DB_PATH", "stridefam.db")

	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("open database", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	vapidPub := os.Getenv("STRIDEFAM_VAPID_PUBLIC_KEY")
	vapidPriv := os.Getenv("STRIDEFAM_VAPID_PRIVATE_KEY")
	if vapidPub == "" || vapidPriv == "" {
		// Ephemeral keys keep push working in dev; subscriptions won't
		// survive a restart.
		vapidPub, vapidPriv, err = push.GenerateVAPIDKeys()
		if err != nil {
			logger.Error("generate vapid keys", "error", err)
			os.Exit(1)
		}
		logger.Warn("using ephemeral VAPID keys; set STRIDEFAM_VAPID_PUBLIC_KEY and STRIDEFAM_VAPID_PRIVATE_KEY")
	}

	secret := os.Getenv("STRIDEFAM_DECISION_SECRET")
	if secret == "" {
		logger.Error("STRIDEFAM_DECISION_SECRET is required")
		os.Exit(1)
	}

	cfg := server.Config{
		BaseURL:         env("STRIDEFAM_BASE_URL", "http://localhost:"+port),
		DecisionSecret:  []byte(secret),
		VAPIDPublicKey:  vapidPub,
		VAPIDPrivateKey: vapidPriv,
		Billing: billing.Config{
			SecretKey:     os.Getenv("STRIDEFAM_STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIDEFAM_STRIPE_WEBHOOK_SECRET"),
			PlusPriceID:   os.Getenv("STRIDEFAM_STRIPE_PLUS_PRICE_ID"),
			ProPriceID:    os.Getenv("STRIDEFAM_STRIPE_PRO_PRICE_ID"),
			SuccessURL:    env("STRIDEFAM_STRIPE_SUCCESS_URL", env("STRIDEFAM_BASE_URL", "http://localhost:"+port)+"/billing/success"),
			CancelURL:     env("STRIDEFAM_STRIPE_CANCEL_URL", env("STRIDEFAM_BASE_URL", "http://localhost:"+port)+"/billing/cancel"),
		},
	}

	srv := server.New(db, cfg, logger)

	backupMgr := backup.NewManager(backup.Config{
		S3: backup.S3Config{
			Endpoint:  os.Getenv("STRIDEFAM_S3_ENDPOINT"),
			Bucket:    os.Getenv("STRIDEFAM_S3_BUCKET"),
			Region:    env("STRIDEFAM_S3_REGION", "us-east-1"),
			AccessKey: os.Getenv("STRIDEFAM_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("STRIDEFAM_S3_SECRET_KEY"),
		},
		DBPath:     dbPath,
		Passphrase: os.Getenv("STRIDEFAM_BACKUP_PASSPHRASE"),
	}, db, logger.With("component", "backup"))

	var backupFn batch.BackupFunc
	if backupMgr.Enabled() {
		backupFn = backupMgr.Run
	} else {
		logger.Warn("backups disabled; set STRIDEFAM_S3_* and STRIDEFAM_BACKUP_PASSPHRASE")
	}

	runner := batch.NewRunner(
		tokenomics.DefaultConfig(),
		srv.StepStore(),
		srv.LedgerStore(),
		srv.StakingStore(),
		srv.SessionStore(),
		srv.StakingService(),
		srv.Notifier(),
		srv.Hub(),
		backupFn,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.Start(ctx)
	defer runner.Stop()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
