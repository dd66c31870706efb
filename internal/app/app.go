// Package app holds the process lifecycle hooks shared by the entrypoint.
package app

import (
	"context"
	"errors"

	"github.com/xaenox/moodmate/internal/llm"
	"github.com/xaenox/moodmate/internal/notifier"
	"github.com/xaenox/moodmate/internal/scheduler"
	"github.com/xaenox/moodmate/internal/storage"
	"go.uber.org/zap"
)

type App struct {
	Registry  *llm.Registry
	Scheduler *scheduler.Scheduler
	Notifier  *notifier.Notifier
	Store     storage.Storage

	Timezone string
	// SchedulerRequired makes a scheduler configuration error fatal at startup.
	SchedulerRequired bool

	Logger *zap.Logger
}

// OnStartup builds the LLM client and starts the scheduler. A client that
// cannot be configured only degrades chat; a scheduler error is returned only
// when SchedulerRequired is set.
func (a *App) OnStartup(ctx context.Context) error {
	client := a.Registry.Get()
	a.Logger.Info("Chat client ready",
		zap.Bool("configured", client.Configured()),
		zap.String("model", client.Model()))

	if err := a.Scheduler.Start(a.Timezone); err != nil {
		var cfgErr *scheduler.ConfigError
		if errors.As(err, &cfgErr) && !a.SchedulerRequired {
			a.Logger.Error("Scheduler disabled, chat remains available", zap.Error(err))
			return nil
		}
		return err
	}
	return nil
}

// OnShutdown stops the scheduler without waiting for running jobs and
// releases notifier and storage resources.
func (a *App) OnShutdown(ctx context.Context) {
	a.Scheduler.Shutdown()
	if a.Notifier != nil {
		a.Notifier.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn("Failed to close storage", zap.Error(err))
		}
	}
}
