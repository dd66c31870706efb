// Package llm wraps the chat completion provider behind a client that always
// produces a reply, degrading to canned responses when the provider is
// unconfigured or failing.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/xaenox/moodmate/internal/models"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var (
	ErrCredentialMissing = errors.New("provider credential missing")
	ErrProviderConfig    = errors.New("provider configuration failed")
	ErrProviderCall      = errors.New("provider call failed")
)

const (
	chatPreamble = "You are a supportive, empathetic AI assistant for a mood tracking app called MoodMate. Be warm, understanding, and helpful. Keep responses concise but caring."

	noUserMessageReply = "I'm here to listen. How can I help you today?"
	emptyReply         = "I'm here to listen and support you."
	degradedReply      = "I'm having trouble connecting right now. I'm here to support you though - how are you feeling today?"
)

// Completer is the subset of the OpenAI client used here. *openai.Client
// satisfies it.
type Completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	RateLimit   float64
	RateBurst   int
}

type Option func(*Client)

// WithCompleter replaces the OpenAI SDK client, mostly for tests.
func WithCompleter(c Completer) Option {
	return func(cl *Client) { cl.completer = c }
}

type Client struct {
	completer   Completer
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
	limiter     *rate.Limiter
	configured  bool
	logger      *zap.Logger
}

// Dial builds a configured client or fails with ErrCredentialMissing or
// ErrProviderConfig. Callers that must never fail use New or a Registry.
func Dial(cfg Config, logger *zap.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, ErrCredentialMissing
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model is required", ErrProviderConfig)
	}
	if cfg.MaxTokens < 0 {
		return nil, fmt.Errorf("%w: max tokens must not be negative", ErrProviderConfig)
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return nil, fmt.Errorf("%w: temperature %.2f out of range", ErrProviderConfig, cfg.Temperature)
	}

	c := &Client{
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
		timeout:     cfg.Timeout,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.completer == nil {
		oc := openai.DefaultConfig(apiKey)
		if cfg.BaseURL != "" {
			u, err := url.Parse(cfg.BaseURL)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return nil, fmt.Errorf("%w: invalid base url %q", ErrProviderConfig, cfg.BaseURL)
			}
			oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
		}
		c.completer = openai.NewClientWithConfig(oc)
	}

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	c.configured = true
	return c, nil
}

// New is the soft variant of Dial: configuration problems are logged once
// and yield a client that answers with fallback replies for its lifetime.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c, err := Dial(cfg, logger, opts...)
	logConstruction(logger, c, err)
	if err != nil {
		return NewFallback(logger)
	}
	return c
}

// NewFallback returns a client that never contacts a provider.
func NewFallback(logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{logger: logger}
}

func logConstruction(logger *zap.Logger, c *Client, err error) {
	switch {
	case err == nil && c != nil:
		logger.Info("LLM provider configured", zap.String("model", c.model))
	case errors.Is(err, ErrCredentialMissing):
		logger.Warn("No LLM API key found in environment, using fallback replies")
	case err != nil:
		logger.Error("LLM provider configuration error, using fallback replies", zap.Error(err))
	}
}

// Configured reports whether the client talks to a provider. It never changes
// after construction.
func (c *Client) Configured() bool {
	return c.configured
}

func (c *Client) Model() string {
	return c.model
}

// Chat answers the most recent user message of the conversation. It always
// returns a non-empty reply; provider failures are logged and absorbed.
func (c *Client) Chat(ctx context.Context, conversation []models.Message) (reply string) {
	msg, found := models.LastUserMessage(conversation)

	if !c.configured {
		bucket, text := fallbackReply(msg.Content)
		c.logger.Debug("Answering with fallback reply", zap.String("bucket", bucket))
		return text
	}
	if !found {
		return noUserMessageReply
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("LLM chat request panicked", zap.Any("panic", r))
			reply = degradedReply
		}
	}()

	text, err := c.complete(ctx, chatPreamble, msg.Content)
	if err != nil {
		c.logger.Error("Failed to get LLM response",
			zap.Error(err),
			zap.String("model", c.model))
		return degradedReply
	}
	if text == "" {
		return emptyReply
	}
	return text
}

// GenerateContent runs a single prompt with an optional context prefix.
func (c *Client) GenerateContent(ctx context.Context, prompt, preamble string) (result string) {
	if !c.configured {
		return "[Fallback] " + prompt
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("LLM generate request panicked", zap.Any("panic", r))
			result = fmt.Sprintf("Error generating content: %v", r)
		}
	}()

	full := prompt
	if preamble != "" {
		full = preamble + "\n\n" + prompt
	}
	text, err := c.complete(ctx, "", full)
	if err != nil {
		c.logger.Error("Failed to generate content", zap.Error(err), zap.String("model", c.model))
		return fmt.Sprintf("Error generating content: %v", err)
	}
	if text == "" {
		return emptyReply
	}
	return text
}

func (c *Client) complete(ctx context.Context, system, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: rate limiter: %w", ErrProviderCall, err)
		}
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	resp, err := c.completer.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProviderCall, err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
