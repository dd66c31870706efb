package llm

import (
	"sync"

	"go.uber.org/zap"
)

// Factory builds the process-wide client. It may fail; the registry converts
// failures into a fallback client.
type Factory func() (*Client, error)

// Registry lazily constructs exactly one Client and hands the same instance
// to every caller.
type Registry struct {
	factory Factory
	logger  *zap.Logger

	once   sync.Once
	client *Client
}

func NewRegistry(factory Factory, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{factory: factory, logger: logger}
}

// Get returns the cached client, constructing it on first use. Concurrent
// first calls block until the single construction finishes.
func (r *Registry) Get() *Client {
	r.once.Do(r.construct)
	return r.client
}

func (r *Registry) construct() {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("LLM client construction panicked, using fallback replies", zap.Any("panic", p))
			r.client = NewFallback(r.logger)
		}
	}()

	if r.factory == nil {
		r.client = NewFallback(r.logger)
		return
	}

	c, err := r.factory()
	logConstruction(r.logger, c, err)
	if err != nil || c == nil {
		c = NewFallback(r.logger)
	}
	r.client = c
}
