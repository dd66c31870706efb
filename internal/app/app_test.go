package app

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaenox/moodmate/internal/llm"
	"github.com/xaenox/moodmate/internal/notifier"
	"github.com/xaenox/moodmate/internal/scheduler"
	"github.com/xaenox/moodmate/internal/storage"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func newTestApp(t *testing.T, tz string, required bool) *App {
	t.Helper()
	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	console, err := notifier.NewConsoleSink(&bytes.Buffer{}, "utf-8")
	require.NoError(t, err)
	store := storage.NewMemoryStorage(10)
	n := notifier.New(logger, console, notifier.NewStoreSink(store))

	return &App{
		Registry: llm.NewRegistry(func() (*llm.Client, error) {
			return llm.Dial(llm.Config{Model: "gpt-3.5-turbo"}, logger)
		}, logger),
		Scheduler:         scheduler.New(n, logger),
		Notifier:          n,
		Store:             store,
		Timezone:          tz,
		SchedulerRequired: required,
		Logger:            logger,
	}
}

func TestStartupAndShutdown(t *testing.T) {
	a := newTestApp(t, "Asia/Kolkata", false)

	require.NoError(t, a.OnStartup(context.Background()))
	assert.True(t, a.Scheduler.Running())
	assert.False(t, a.Registry.Get().Configured())

	a.OnShutdown(context.Background())
	assert.False(t, a.Scheduler.Running())
	assert.NotPanics(t, func() { a.OnShutdown(context.Background()) })
}

func TestStartupToleratesBadTimezone(t *testing.T) {
	a := newTestApp(t, "Not/AZone", false)

	require.NoError(t, a.OnStartup(context.Background()))
	assert.False(t, a.Scheduler.Running())
	assert.NotNil(t, a.Registry.Get())
}

func TestStartupRequiredScheduler(t *testing.T) {
	a := newTestApp(t, "Not/AZone", true)

	err := a.OnStartup(context.Background())
	var cfgErr *scheduler.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.False(t, a.Scheduler.Running())
}
