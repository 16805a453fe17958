package models

import "time"

// Chat message types. System messages are synthesized by the delivery state
// machine on every lifecycle transition.
const (
	MessageTypeText   = "text"
	MessageTypeSystem = "system"
	MessageTypePrice  = "price"
	MessageTypeStatus = "status"
)

// ChatRoom pairs one-to-one with a delivery.
type ChatRoom struct {
	ID         string    `json:"id" db:"id"`
	DeliveryID string    `json:"delivery_id" db:"delivery_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// ChatMessage is one entry in a room, ordered by timestamp ascending.
type ChatMessage struct {
	ID          string    `json:"id" db:"id"`
	RoomID      string    `json:"room_id" db:"room_id"`
	SenderID    string    `json:"sender_id" db:"sender_id"`
	SenderName  string    `json:"sender" db:"sender_name"`
	MessageType string    `json:"message_type" db:"message_type"`
	Content     string    `json:"content" db:"content"`
	Timestamp   time.Time `json:"timestamp" db:"timestamp"`
	IsRead      bool      `json:"is_read" db:"is_read"`
}

// SendMessageRequest is the body for POST /chat/:roomId/messages.
type SendMessageRequest struct {
	Message string `json:"message" validate:"required"`
}
