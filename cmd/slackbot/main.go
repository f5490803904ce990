// Package main is the entry point for the Slack to Dify bot.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/RobertDiep/dify-slackbot/internal/config"
	"github.com/RobertDiep/dify-slackbot/internal/dify"
	"github.com/RobertDiep/dify-slackbot/internal/handler"
	natsclient "github.com/RobertDiep/dify-slackbot/internal/nats"
	"github.com/RobertDiep/dify-slackbot/internal/service"
	"github.com/RobertDiep/dify-slackbot/internal/slackapi"
	"github.com/RobertDiep/dify-slackbot/internal/store"
	"github.com/RobertDiep/dify-slackbot/pkg/logger"
	"github.com/RobertDiep/dify-slackbot/pkg/tracing"
)

const serviceName = "dify-slackbot"

// configStore is a KV backend that can report its health.
type configStore interface {
	store.KV
	store.Pinger
}

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	log.Info("starting slackbot", zap.String("config_store", cfg.ConfigStore))

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, serviceName, cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	kv, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open config store", zap.Error(err))
	}
	defer closeStore()

	difyClient, err := dify.NewClient(dify.Options{
		BaseURL: cfg.DifyAPIURL,
		AppKeys: cfg.DifyAppKeys,
		Timeout: cfg.DifyTimeout,
	})
	if err != nil {
		log.Fatal("failed to create dify client", zap.Error(err))
	}

	slackClient := slackapi.New(slackapi.Options{
		Token:   cfg.SlackBotToken,
		APIURL:  cfg.SlackAPIURL,
		Timeout: cfg.SlackTimeout,
	})

	// Initialize services
	configSvc := service.NewConfigService(kv, cfg.ConfigKey, log)
	resolver := service.NewHistoryResolver(slackClient, log)
	router := service.NewRouter(resolver, difyClient, slackClient, log)
	adminSvc := service.NewAdminService(configSvc, slackClient, log)

	workers := pool.New().WithMaxGoroutines(cfg.WorkerPoolSize)

	// Initialize handlers
	rt := routes{
		events: handler.NewEventsHandler(handler.EventsOptions{
			SigningSecret: cfg.SlackSigningSecret,
			Admins:        cfg.SlackAdminIDs,
			EventTimeout:  cfg.EventTimeout,
		}, configSvc, router, adminSvc, workers, log),
		health:    handler.NewHealthHandler(kv),
		jwtSecret: cfg.AdminJWTSecret,
	}
	if cfg.AdminJWTSecret != "" {
		rt.config = handler.NewConfigHandler(configSvc, log)
	} else {
		log.Info("admin API disabled, ADMIN_JWT_SECRET not set")
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      newRouter(rt, log),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	// No new events can arrive; let queued ones finish.
	drained := make(chan struct{})
	go func() {
		rt.events.Wait()
		workers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-shutdownCtx.Done():
		log.Warn("event workers still running at shutdown")
	}

	log.Info("server stopped")
}

// openStore connects the configured KV backend and returns its closer.
func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (configStore, func(), error) {
	switch cfg.ConfigStore {
	case config.StoreNATS:
		nc, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
		}
		kv, err := natsclient.NewKVStore(ctx, nc, cfg.NATSKVBucket)
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		return kv, nc.Close, nil

	case config.StoreRedis:
		rs, err := store.NewRedisStore(ctx, cfg.RedisURL, serviceName)
		if err != nil {
			return nil, nil, err
		}
		return rs, func() {
			if err := rs.Close(); err != nil {
				log.Warn("failed to close redis", zap.Error(err))
			}
		}, nil

	default:
		log.Warn("using in-memory config store, configuration is lost on restart")
		return store.NewMemoryStore(), func() {}, nil
	}
}
