package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"meridian/api/internal/app"
	"meridian/api/internal/authpw"
	"meridian/api/internal/config"
	"meridian/api/internal/email"
	"meridian/api/internal/engagement"
	"meridian/api/internal/likestate"
	"meridian/api/internal/live"
	"meridian/api/internal/media"
	"meridian/api/internal/search"
	"meridian/api/internal/session"
	"meridian/api/internal/store"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliAPIKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
	}

	mediaService, err := media.New(media.Config{
		Endpoint:        cfg.MediaEndpoint,
		AccessKey:       cfg.MediaAccessKey,
		SecretKey:       cfg.MediaSecretKey,
		Bucket:          cfg.MediaBucket,
		UseSSL:          cfg.MediaUseSSL,
		PlaceholderBase: cfg.PlaceholderBase,
	})
	if err != nil {
		log.Fatalf("media storage setup failed: %v", err)
	}
	if err := mediaService.EnsureBucket(ctx); err != nil {
		log.Printf("WARNING: media bucket check failed: %v", err)
	}

	emailService := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})

	deps := app.Dependencies{
		Hub:    live.NewHub(),
		Search: searchService,
		Media:  mediaService,
		Email:  emailService,
		Auth:   authpw.NewService(dataStore),
	}

	// Liked-slug state and refresh tokens live in Redis when configured;
	// otherwise likes fall back to process memory and refresh sessions to
	// Postgres.
	var likes likestate.Store
	if strings.TrimSpace(cfg.RedisURL) != "" {
		likeStore, err := likestate.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer likeStore.Close()
		likes = likeStore
		deps.RedisPing = likeStore.Ping

		sessionStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis session store failed: %v", err)
		}
		defer sessionStore.Close()
		deps.Sessions = sessionStore
		log.Printf("Using Redis for liked state and refresh tokens")
	} else {
		likes = likestate.NewMemoryStore()
		log.Printf("Using in-memory liked state and PostgreSQL refresh tokens")
	}
	deps.Engagement = engagement.New(dataStore, likes)

	service := app.New(cfg, dataStore, deps)
	if err := service.Bootstrap(ctx); err != nil {
		log.Printf("WARNING: bootstrap error (will retry on next restart): %v", err)
	}

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Meridian API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
