package notifications

import (
	"context"
	"sort"
	"sync"
	"time"

	"courier-platform/internal/models"
)

// MemoryRepository is the in-memory backend of RepositoryInterface.
type MemoryRepository struct {
	mu     sync.RWMutex
	byUser map[string][]*models.Notification
}

// NewMemoryRepository creates an empty in-memory notification store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byUser: make(map[string][]*models.Notification)}
}

func (r *MemoryRepository) Create(_ context.Context, n *models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n.CreatedAt = time.Now()
	n.IsRead = false
	cp := *n
	r.byUser[n.UserID] = append(r.byUser[n.UserID], &cp)
	return nil
}

func (r *MemoryRepository) ListByUser(_ context.Context, userID string, limit int) ([]*models.Notification, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.byUser[userID]
	out := make([]*models.Notification, 0, len(all))
	for _, n := range all {
		cp := *n
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) UnreadCount(_ context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, n := range r.byUser[userID] {
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepository) MarkRead(_ context.Context, notificationID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.byUser[userID] {
		if n.ID == notificationID {
			n.IsRead = true
			return nil
		}
	}
	return models.ErrNotFound
}

func (r *MemoryRepository) MarkAllRead(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.byUser[userID] {
		n.IsRead = true
	}
	return nil
}

func (r *MemoryRepository) DeleteOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for userID, all := range r.byUser {
		kept := all[:0]
		for _, n := range all {
			if n.CreatedAt.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, n)
		}
		r.byUser[userID] = kept
	}
	return removed, nil
}
