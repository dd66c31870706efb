package storage

import (
	"context"

	"github.com/xaenox/moodmate/internal/models"
)

// Storage is the notification log. Conversations are never stored.
type Storage interface {
	SaveNotification(ctx context.Context, n *models.Notification) error
	// RecentNotifications returns up to limit entries, newest first.
	RecentNotifications(ctx context.Context, limit int) ([]*models.Notification, error)
	Close() error
}
