package models

import "time"

// Notification types form a closed enumeration.
const (
	NotifyDeliveryRequest   = "delivery_request"
	NotifyDeliveryAccepted  = "delivery_accepted"
	NotifyDeliveryPickedUp  = "delivery_picked_up"
	NotifyDeliveryDelivered = "delivery_delivered"
	NotifyDeliveryCancelled = "delivery_cancelled"
	NotifyMessage           = "message"
	NotifySystem            = "system"
)

// Notification is a persisted per-user notice, append-only except for the
// read flag, ordered newest-first.
type Notification struct {
	ID               string    `json:"id" db:"id"`
	UserID           string    `json:"user_id" db:"user_id"`
	NotificationType string    `json:"notification_type" db:"notification_type"`
	Title            string    `json:"title" db:"title"`
	Message          string    `json:"message" db:"message"`
	IsRead           bool      `json:"is_read" db:"is_read"`
	RelatedURL       string    `json:"related_url,omitempty" db:"related_url"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// UnreadCountResponse is the body for GET /notifications/unread-count.
type UnreadCountResponse struct {
	Count int `json:"count"`
}
