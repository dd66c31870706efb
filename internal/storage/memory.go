package storage

import (
	"context"
	"sync"

	"github.com/xaenox/moodmate/internal/models"
)

const defaultMemoryLimit = 100

// MemoryStorage keeps the most recent notifications in a bounded ring.
type MemoryStorage struct {
	mu    sync.RWMutex
	limit int
	items []*models.Notification
	next  int
	full  bool
}

func NewMemoryStorage(limit int) *MemoryStorage {
	if limit <= 0 {
		limit = defaultMemoryLimit
	}
	return &MemoryStorage{
		limit: limit,
		items: make([]*models.Notification, limit),
	}
}

func (s *MemoryStorage) SaveNotification(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *n
	s.items[s.next] = &cp
	s.next = (s.next + 1) % s.limit
	if s.next == 0 {
		s.full = true
	}
	return nil
}

func (s *MemoryStorage) RecentNotifications(ctx context.Context, limit int) ([]*models.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	size := s.next
	if s.full {
		size = s.limit
	}
	if limit <= 0 || limit > size {
		limit = size
	}

	result := make([]*models.Notification, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (s.next - i + s.limit) % s.limit
		cp := *s.items[idx]
		result = append(result, &cp)
	}
	return result, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
