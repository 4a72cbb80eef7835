package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"mindseye/internal/util"
	"mindseye/pkg/dreamapi"
	"mindseye/services/gateway/internal/app"
	"mindseye/services/gateway/internal/config"
	"mindseye/services/gateway/internal/server"
	"mindseye/services/gateway/internal/store"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	sessionTTL, err := config.ParseSessionTTL(cfg.SessionTTL)
	if err != nil {
		log.Fatalf("failed to parse session TTL: %v", err)
	}
	sameSite, err := config.ParseSameSite(cfg.SessionCookieSameSite)
	if err != nil {
		log.Fatalf("failed to parse cookie SameSite: %v", err)
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer rdb.Close()

	galleries, err := store.NewRedisGalleryStore(rdb, cfg.GalleryLimit, sessionTTL)
	if err != nil {
		log.Fatalf("failed to init gallery store: %v", err)
	}

	apiOpts := []dreamapi.Option{
		dreamapi.WithOrigin(cfg.APIURL),
		dreamapi.WithUserAgent("mindseye-gateway"),
	}
	if len(cfg.StaticPrefixes) > 0 {
		apiOpts = append(apiOpts, dreamapi.WithStaticPrefixes(cfg.StaticPrefixes...))
	}
	appCore, err := app.New(app.Config{
		API:         dreamapi.New(apiOpts...),
		Redis:       rdb,
		Gallery:     galleries,
		SessionTTL:  sessionTTL,
		RecentLimit: cfg.RecentLimit,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	httpServer, err := server.New(server.Config{
		App:                        appCore,
		Redis:                      rdb,
		Registry:                   registry,
		SessionSecret:              []byte(cfg.SessionSecret),
		CookieName:                 cfg.SessionCookieName,
		CookieSecure:               cfg.SessionCookieSecure,
		CookieSameSite:             sameSite,
		SessionTTL:                 sessionTTL,
		AllowedOrigins:             cfg.AllowedOrigins,
		TrustedProxies:             trusted,
		LoginRateLimitPerMinute:    cfg.LoginRateLimitPerMinute,
		RegisterRateLimitPerMinute: cfg.RegisterRateLimitPerMinute,
		GenerateRateLimitPerMinute: cfg.GenerateRateLimitPerMinute,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           httpServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Video generation upstream can take minutes.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("server listening", "addr", addr, "api", cfg.APIURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "err", err)
	}
	slog.Info("server stopped")
}
