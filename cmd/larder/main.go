package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/larder-app/larder/internal/backup"
	"github.com/larder-app/larder/internal/database"
	"github.com/larder-app/larder/internal/email"
	"github.com/larder-app/larder/internal/logging"
	"github.com/larder-app/larder/internal/push"
	"github.com/larder-app/larder/internal/server"
)

func main() {
	// Optional .env for local development.
	_ = godotenv.Load()

	logger := logging.Setup(os.Getenv("LARDER_LOG_LEVEL"), os.Getenv("LARDER_LOG_FORMAT"))

	port := getenv("LARDER_PORT", "8080")
	dbPath := getenv("LARDER_DB_PATH", "larder.db")

	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("failed to open database", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	emailClient := email.NewClient(
		os.Getenv("LARDER_POSTMARK_TOKEN"),
		getenv("LARDER_EMAIL_FROM", "noreply@larder.app"),
		getenv("LARDER_BASE_URL", "http://localhost:"+port),
	)

	backupCfg := backup.Config{
		S3: backup.S3Config{
			Endpoint:  os.Getenv("LARDER_S3_ENDPOINT"),
			Bucket:    os.Getenv("LARDER_S3_BUCKET"),
			Region:    getenv("LARDER_S3_REGION", "us-east-1"),
			AccessKey: os.Getenv("LARDER_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("LARDER_S3_SECRET_KEY"),
		},
		DBPath:        dbPath,
		Passphrase:    os.Getenv("LARDER_BACKUP_PASSPHRASE"),
		ScheduleHour:  getenvInt("LARDER_BACKUP_HOUR", 3),
		RetentionDays: getenvInt("LARDER_BACKUP_RETENTION_DAYS", 30),
	}

	pushCfg := push.Config{
		VAPIDPublicKey:  os.Getenv("LARDER_VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("LARDER_VAPID_PRIVATE_KEY"),
		Subscriber:      os.Getenv("LARDER_PUSH_CONTACT"),
	}

	secureCookies := os.Getenv("LARDER_SECURE_COOKIES") == "true"

	srv := server.New(db, emailClient, secureCookies, backupCfg, pushCfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sched := srv.PushScheduler(); sched != nil {
		sched.Start(ctx)
		defer sched.Stop()
	}
	if mgr := srv.BackupManager(); mgr.Enabled() {
		mgr.Start(ctx)
		defer mgr.Stop()
	}
	go cleanupLoop(ctx, srv, logger)

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("larder running", "addr", "http://localhost:"+port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

// cleanupLoop periodically expires sessions, auth tokens, invites, and rate
// limiter buckets.
func cleanupLoop(ctx context.Context, srv *server.Server, logger *slog.Logger) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := srv.SessionStore().DeleteExpired(); err != nil {
				logger.Error("session cleanup", "error", err)
			} else if n > 0 {
				logger.Debug("expired sessions removed", "count", n)
			}
			if _, err := srv.TokenStore().DeleteExpired(); err != nil {
				logger.Error("token cleanup", "error", err)
			}
			if _, err := srv.HouseholdStore().DeleteExpiredInvites(); err != nil {
				logger.Error("invite cleanup", "error", err)
			}
			srv.RateLimiter().Cleanup()
		}
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
