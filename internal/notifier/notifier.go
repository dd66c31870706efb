// Package notifier renders broadcast and user-directed messages and hands them
// to a set of sinks. Delivery is best effort: sink failures are logged, never
// returned, so a scheduled job is never aborted by a notification problem.
package notifier

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/moodmate/internal/models"
	"go.uber.org/zap"
)

// Sink delivers a single notification somewhere.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n *models.Notification) error
}

// Closer is implemented by sinks holding connections.
type Closer interface {
	Close() error
}

type Notifier struct {
	sinks  []Sink
	logger *zap.Logger
	now    func() time.Time
}

func New(logger *zap.Logger, sinks ...Sink) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{sinks: sinks, logger: logger, now: time.Now}
}

// Broadcast emits message on channel to every sink.
func (n *Notifier) Broadcast(ctx context.Context, channel models.Channel, message string) {
	n.emit(ctx, &models.Notification{
		ID:        uuid.NewString(),
		Channel:   channel,
		Message:   message,
		CreatedAt: n.now(),
	})
}

// Direct emits message to a single recipient.
func (n *Notifier) Direct(ctx context.Context, recipient, message string) {
	n.emit(ctx, &models.Notification{
		ID:        uuid.NewString(),
		Recipient: recipient,
		Message:   message,
		CreatedAt: n.now(),
	})
}

func (n *Notifier) emit(ctx context.Context, notification *models.Notification) {
	for _, sink := range n.sinks {
		n.deliver(ctx, sink, notification)
	}
}

func (n *Notifier) deliver(ctx context.Context, sink Sink, notification *models.Notification) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("Notification sink panicked",
				zap.String("sink", sink.Name()),
				zap.String("notification_id", notification.ID),
				zap.Any("panic", r))
		}
	}()

	if err := sink.Deliver(ctx, notification); err != nil {
		n.logger.Error("Failed to deliver notification",
			zap.Error(err),
			zap.String("sink", sink.Name()),
			zap.String("notification_id", notification.ID),
			zap.String("channel", string(notification.Channel)))
	}
}

// Close closes every sink that holds resources.
func (n *Notifier) Close() {
	for _, sink := range n.sinks {
		c, ok := sink.(Closer)
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			n.logger.Warn("Failed to close notification sink", zap.Error(err), zap.String("sink", sink.Name()))
		}
	}
}
