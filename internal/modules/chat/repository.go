package chat

import (
	"context"
	"errors"
	"fmt"

	"courier-platform/internal/models"
	"courier-platform/internal/storage"

	"github.com/jackc/pgx/v5"
)

// RepositoryInterface defines the store operations for chat rooms and
// messages. Rooms pair one-to-one with deliveries.
type RepositoryInterface interface {
	CreateRoom(ctx context.Context, room *models.ChatRoom) error
	FindRoomByID(ctx context.Context, roomID string) (*models.ChatRoom, error)
	FindRoomByDelivery(ctx context.Context, deliveryID string) (*models.ChatRoom, error)

	CreateMessage(ctx context.Context, msg *models.ChatMessage) error
	// ListRecentMessages returns the newest limit messages of the room in
	// ascending timestamp order.
	ListRecentMessages(ctx context.Context, roomID string, limit int) ([]*models.ChatMessage, error)
	// MarkMessagesRead marks every message in the room not sent by readerID
	// as read.
	MarkMessagesRead(ctx context.Context, roomID, readerID string) error
}

// Repository is the PostgreSQL implementation of RepositoryInterface.
type Repository struct {
	db *storage.DB
}

// NewRepository creates a new chat repository.
func NewRepository(db *storage.DB) RepositoryInterface {
	return &Repository{db: db}
}

func (r *Repository) CreateRoom(ctx context.Context, room *models.ChatRoom) error {
	query := `
		INSERT INTO chat_rooms (id, delivery_id)
		VALUES ($1, $2)
		RETURNING created_at`
	err := r.db.Q(ctx).QueryRow(ctx, query, room.ID, room.DeliveryID).Scan(&room.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create chat room: %w", err)
	}
	return nil
}

func scanRoom(row pgx.Row) (*models.ChatRoom, error) {
	var room models.ChatRoom
	err := row.Scan(&room.ID, &room.DeliveryID, &room.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan chat room: %w", err)
	}
	return &room, nil
}

func (r *Repository) FindRoomByID(ctx context.Context, roomID string) (*models.ChatRoom, error) {
	query := `SELECT id, delivery_id, created_at FROM chat_rooms WHERE id = $1`
	return scanRoom(r.db.Q(ctx).QueryRow(ctx, query, roomID))
}

func (r *Repository) FindRoomByDelivery(ctx context.Context, deliveryID string) (*models.ChatRoom, error) {
	query := `SELECT id, delivery_id, created_at FROM chat_rooms WHERE delivery_id = $1`
	return scanRoom(r.db.Q(ctx).QueryRow(ctx, query, deliveryID))
}

func (r *Repository) CreateMessage(ctx context.Context, msg *models.ChatMessage) error {
	query := `
		INSERT INTO chat_messages (id, room_id, sender_id, sender_name, message_type, content, is_read)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING timestamp`
	err := r.db.Q(ctx).QueryRow(ctx, query,
		msg.ID, msg.RoomID, msg.SenderID, msg.SenderName, msg.MessageType, msg.Content, msg.IsRead,
	).Scan(&msg.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to create chat message: %w", err)
	}
	return nil
}

func (r *Repository) ListRecentMessages(ctx context.Context, roomID string, limit int) ([]*models.ChatMessage, error) {
	query := `
		SELECT id, room_id, sender_id, sender_name, message_type, content, timestamp, is_read
		FROM chat_messages
		WHERE room_id = $1
		ORDER BY timestamp DESC, id DESC
		LIMIT $2`
	rows, err := r.db.Q(ctx).Query(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	var messages []*models.ChatMessage
	for rows.Next() {
		var m models.ChatMessage
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderName, &m.MessageType, &m.Content, &m.Timestamp, &m.IsRead); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		messages = append(messages, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returns newest first; callers want chronological order.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *Repository) MarkMessagesRead(ctx context.Context, roomID, readerID string) error {
	query := `
		UPDATE chat_messages
		SET is_read = TRUE
		WHERE room_id = $1 AND sender_id <> $2 AND is_read = FALSE`
	if _, err := r.db.Q(ctx).Exec(ctx, query, roomID, readerID); err != nil {
		return fmt.Errorf("failed to mark messages read: %w", err)
	}
	return nil
}
