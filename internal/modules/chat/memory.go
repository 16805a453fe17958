package chat

import (
	"context"
	"sync"
	"time"

	"courier-platform/internal/models"
)

// MemoryRepository is the in-memory backend of RepositoryInterface.
type MemoryRepository struct {
	mu         sync.RWMutex
	rooms      map[string]*models.ChatRoom
	byDelivery map[string]string
	messages   map[string][]*models.ChatMessage
}

// NewMemoryRepository creates an empty in-memory chat store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		rooms:      make(map[string]*models.ChatRoom),
		byDelivery: make(map[string]string),
		messages:   make(map[string][]*models.ChatMessage),
	}
}

func (r *MemoryRepository) CreateRoom(_ context.Context, room *models.ChatRoom) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	room.CreatedAt = time.Now()
	cp := *room
	r.rooms[room.ID] = &cp
	r.byDelivery[room.DeliveryID] = room.ID
	return nil
}

func (r *MemoryRepository) FindRoomByID(_ context.Context, roomID string) (*models.ChatRoom, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *room
	return &cp, nil
}

func (r *MemoryRepository) FindRoomByDelivery(_ context.Context, deliveryID string) (*models.ChatRoom, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.byDelivery[deliveryID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *r.rooms[roomID]
	return &cp, nil
}

func (r *MemoryRepository) CreateMessage(_ context.Context, msg *models.ChatMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[msg.RoomID]; !ok {
		return models.ErrNotFound
	}
	msg.Timestamp = time.Now()
	cp := *msg
	r.messages[msg.RoomID] = append(r.messages[msg.RoomID], &cp)
	return nil
}

func (r *MemoryRepository) ListRecentMessages(_ context.Context, roomID string, limit int) ([]*models.ChatMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := r.messages[roomID]
	start := 0
	if len(all) > limit {
		start = len(all) - limit
	}
	out := make([]*models.ChatMessage, 0, len(all)-start)
	for _, m := range all[start:] {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (r *MemoryRepository) MarkMessagesRead(_ context.Context, roomID, readerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages[roomID] {
		if m.SenderID != readerID {
			m.IsRead = true
		}
	}
	return nil
}
