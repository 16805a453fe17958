package models

import "time"

// TrackingPoint is an immutable driver coordinate sample tied to a delivery.
// Points are append-only; "latest" queries order by timestamp descending.
type TrackingPoint struct {
	ID         string    `json:"id" db:"id"`
	DeliveryID string    `json:"delivery_id" db:"delivery_id"`
	DriverLat  float64   `json:"driver_lat" db:"driver_lat"`
	DriverLng  float64   `json:"driver_lng" db:"driver_lng"`
	Timestamp  time.Time `json:"timestamp" db:"timestamp"`
}
