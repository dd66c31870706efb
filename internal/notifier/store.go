package notifier

import (
	"context"

	"github.com/xaenox/moodmate/internal/models"
	"github.com/xaenox/moodmate/internal/storage"
)

// StoreSink records notifications in the notification log.
type StoreSink struct {
	store storage.Storage
}

func NewStoreSink(store storage.Storage) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Name() string {
	return "store"
}

func (s *StoreSink) Deliver(ctx context.Context, n *models.Notification) error {
	return s.store.SaveNotification(ctx, n)
}
