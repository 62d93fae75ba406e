package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mentorlink/internal/app/cache"
	"mentorlink/internal/app/identity"
	"mentorlink/internal/app/messaging"
	"mentorlink/internal/app/presence"
	"mentorlink/internal/app/realtime"
	"mentorlink/internal/app/signaling"
	"mentorlink/internal/app/storage"
	"mentorlink/internal/handler"
	"mentorlink/internal/pkg/logx"
	"mentorlink/internal/pkg/telemetry"
)

const (
	// onlineWindow is how long a heartbeat keeps a user online in Redis.
	onlineWindow = 2 * time.Minute

	reapInterval = time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer(cmd.Context())
	},
}

func runServer(parent context.Context) error {
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("store_driver", cfg.StoreDriver).
		Bool("redis", cfg.RedisURL != "").
		Bool("s3", cfg.S3Enabled()).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.InitTelemetry(ctx, logx.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logx.Error(err, "Failed to flush traces")
		}
	}()

	store, closeStore, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	registry := presence.NewRegistry()

	var tracker presence.OnlineTracker = presence.NopTracker{}
	var online messaging.OnlineLookup = registry
	if cfg.RedisURL != "" {
		rdb, err := cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()

		redisTracker := presence.NewRedisTracker(rdb, onlineWindow)
		tracker, online = redisTracker, redisTracker
		logx.Info("Online presence mirrored to Redis.")
	}

	opts := []messaging.Option{
		messaging.WithMaxContentBytes(cfg.MaxMessageBytes),
		messaging.WithOnlineLookup(online),
	}

	var images storage.ImageSigner
	if cfg.S3Enabled() {
		images, err = storage.NewImageSigner(ctx, storage.ServiceConfig{
			S3BucketName:      cfg.S3BucketName,
			S3Endpoint:        cfg.S3Endpoint,
			S3AccessKeyID:     cfg.S3AccessKeyID,
			S3SecretAccessKey: cfg.S3SecretAccessKey,
		})
		if err != nil {
			return err
		}
		opts = append(opts, messaging.WithAssetSigner(images))
	}

	notifier := realtime.NewNotifier(registry)
	relay := messaging.NewService(store, store, notifier, opts...)
	verifier := identity.NewVerifier(cfg.JWTSecret, store)

	hub := realtime.NewHub(realtime.Config{
		Auth:         verifier,
		Registry:     registry,
		Broker:       signaling.NewBroker(registry, cfg.CallRoomIdleTimeout),
		Relay:        relay,
		Notifier:     notifier,
		Tracker:      tracker,
		ReapInterval: reapInterval,
	})
	hub.Start()

	router := handler.Router(ctx, &handler.AppDeps{
		Config:   cfg,
		Hub:      hub,
		Relay:    relay,
		Verifier: verifier,
		Users:    store,
		Images:   images,
	})

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logx.Info(fmt.Sprintf("MentorLink Server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		hub.Shutdown()
		return fmt.Errorf("server failed to start: %w", err)
	case <-ctx.Done():
	}

	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	hub.Shutdown()

	logx.Info("Server gracefully stopped.")
	return nil
}
