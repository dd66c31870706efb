package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/xaenox/moodmate/internal/api"
	"github.com/xaenox/moodmate/internal/app"
	"github.com/xaenox/moodmate/internal/llm"
	"github.com/xaenox/moodmate/internal/notifier"
	"github.com/xaenox/moodmate/internal/scheduler"
	"github.com/xaenox/moodmate/internal/storage"
	"github.com/xaenox/moodmate/pkg/config"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	// Initialize logger
	logger, _ := zap.NewProduction()
	if os.Getenv("LOG_DEV") == "1" {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", *configPath))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := newStorage(ctx, cfg, logger)
	n := notifier.New(logger, newSinks(cfg, store, logger)...)

	registry := llm.NewRegistry(func() (*llm.Client, error) {
		return llm.Dial(llm.Config{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.OpenAI.Model,
			MaxTokens:   cfg.OpenAI.MaxTokens,
			Temperature: cfg.OpenAI.Temperature,
			Timeout:     cfg.OpenAI.Timeout,
			RateLimit:   cfg.OpenAI.RateLimit,
			RateBurst:   cfg.OpenAI.RateBurst,
		}, logger)
	}, logger)

	sched := scheduler.New(n, logger, scheduler.WithJobTimeout(cfg.Scheduler.JobTimeout))
	for _, def := range cfg.Scheduler.Jobs {
		job, err := scheduler.ParseDaily(def.ID, def.At, def.Channel, def.Message)
		if err != nil {
			logger.Error("Skipping invalid scheduled job", zap.Error(err), zap.String("id", def.ID))
			continue
		}
		if err := sched.Register(job); err != nil {
			logger.Error("Failed to register scheduled job", zap.Error(err), zap.String("id", def.ID))
		}
	}

	lifecycle := &app.App{
		Registry:          registry,
		Scheduler:         sched,
		Notifier:          n,
		Store:             store,
		Timezone:          cfg.Scheduler.Timezone,
		SchedulerRequired: cfg.Scheduler.Required,
		Logger:            logger,
	}
	if err := lifecycle.OnStartup(ctx); err != nil {
		logger.Fatal("Startup failed", zap.Error(err))
	}

	server := api.NewServer(api.Config{
		Addr:        cfg.Server.Addr,
		StaticDir:   cfg.Server.StaticDir,
		ChatTimeout: cfg.Server.ChatTimeout,
	}, registry, store, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down")
	case err := <-errCh:
		if err != nil {
			logger.Error("HTTP server error", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown error", zap.Error(err))
	}
	lifecycle.OnShutdown(shutdownCtx)
}

func newStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) storage.Storage {
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory notification log")
		return storage.NewMemoryStorage(cfg.Database.MemoryLimit)
	}

	logger.Info("Using PostgreSQL notification log")
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	store, err := storage.NewPostgresStorage(pingCtx, storage.DatabaseConfig{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	}, logger)
	if err != nil {
		logger.Error("Failed to initialize storage, falling back to memory", zap.Error(err))
		return storage.NewMemoryStorage(cfg.Database.MemoryLimit)
	}
	return store
}

// newSinks always includes the console and the notification log; remote
// sinks are added when configured and reachable.
func newSinks(cfg *config.Config, store storage.Storage, logger *zap.Logger) []notifier.Sink {
	console, err := notifier.NewConsoleSink(os.Stdout, cfg.Notifier.ConsoleCharset)
	if err != nil {
		logger.Warn("Falling back to UTF-8 console output", zap.Error(err))
	}
	sinks := []notifier.Sink{console, notifier.NewStoreSink(store)}

	if tg := cfg.Notifier.Telegram; tg.Token != "" {
		sink, err := notifier.NewTelegramSink(tg.Token, tg.ChatIDs, logger)
		if err != nil {
			logger.Error("Telegram notifications disabled", zap.Error(err))
		} else {
			sinks = append(sinks, sink)
		}
	}

	if mq := cfg.Notifier.AMQP; mq.URL != "" {
		sink, err := notifier.NewAMQPSink(mq.URL, mq.Exchange, logger)
		if err != nil {
			logger.Error("AMQP notifications disabled", zap.Error(err))
		} else {
			sinks = append(sinks, sink)
		}
	}

	return sinks
}
