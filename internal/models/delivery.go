package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Delivery statuses. A delivery moves forward through
// pending -> accepted -> picked_up -> in_transit -> delivered, or diverts to
// cancelled from pending or accepted only. Terminal states are delivered and
// cancelled. A delivery is never deleted; it is the audit trail of one job.
const (
	StatusPending   = "pending"
	StatusAccepted  = "accepted"
	StatusPickedUp  = "picked_up"
	StatusInTransit = "in_transit"
	StatusDelivered = "delivered"
	StatusCancelled = "cancelled"
)

// Cancellation reasons form a closed set.
const (
	CancelCustomerNotAvailable = "customer_not_available"
	CancelWrongAddress         = "wrong_address"
	CancelItemNotFound         = "item_not_found"
	CancelDriverUnavailable    = "driver_unavailable"
	CancelOther                = "other"
)

// Delivery is one courier job from pickup to drop-off.
type Delivery struct {
	ID         string  `json:"id" db:"id"`
	CustomerID string  `json:"customer_id" db:"customer_id"`
	DriverID   *string `json:"driver_id,omitempty" db:"driver_id"`

	PickupAddress   string `json:"pickup_address" db:"pickup_address"`
	DeliveryAddress string `json:"delivery_address" db:"delivery_address"`
	ItemDescription string `json:"item_description" db:"item_description"`

	PickupLat   float64 `json:"pickup_lat" db:"pickup_lat"`
	PickupLng   float64 `json:"pickup_lng" db:"pickup_lng"`
	DeliveryLat float64 `json:"delivery_lat" db:"delivery_lat"`
	DeliveryLng float64 `json:"delivery_lng" db:"delivery_lng"`

	Status      string     `json:"status" db:"status"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty" db:"accepted_at"`
	PickedUpAt  *time.Time `json:"picked_up_at,omitempty" db:"picked_up_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty" db:"delivered_at"`

	BaseFare         decimal.Decimal `json:"base_fare" db:"base_fare"`
	DistanceKm       decimal.Decimal `json:"distance_km" db:"distance_km"`
	PerKmRate        decimal.Decimal `json:"per_km_rate" db:"per_km_rate"`
	TotalPrice       decimal.Decimal `json:"total_price" db:"total_price"`
	CommissionAmount decimal.Decimal `json:"commission_amount" db:"commission_amount"`

	CancelledBy        *string         `json:"cancelled_by,omitempty" db:"cancelled_by"`
	CancellationReason *string         `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	CancellationFee    decimal.Decimal `json:"cancellation_fee" db:"cancellation_fee"`
}

// Terminal reports whether the delivery can no longer change status.
func (d *Delivery) Terminal() bool {
	return d.Status == StatusDelivered || d.Status == StatusCancelled
}

// NextStatus returns the only forward status that may follow the current one,
// or "" when the delivery is terminal.
func NextStatus(current string) string {
	switch current {
	case StatusPending:
		return StatusAccepted
	case StatusAccepted:
		return StatusPickedUp
	case StatusPickedUp:
		return StatusInTransit
	case StatusInTransit:
		return StatusDelivered
	default:
		return ""
	}
}

// StatusDisplay maps a status to its human-readable form.
func StatusDisplay(status string) string {
	switch status {
	case StatusPending:
		return "Pending Acceptance"
	case StatusAccepted:
		return "Accepted by Driver"
	case StatusPickedUp:
		return "Picked Up"
	case StatusInTransit:
		return "In Transit"
	case StatusDelivered:
		return "Delivered"
	case StatusCancelled:
		return "Cancelled"
	default:
		return status
	}
}

// QuoteRequest is the body for POST /deliveries/quote. Distance is optional;
// when absent the configured default distance is priced.
type QuoteRequest struct {
	PickupAddress   string   `json:"pickup_address" validate:"required"`
	DeliveryAddress string   `json:"delivery_address" validate:"required"`
	DistanceKm      *float64 `json:"distance_km,omitempty" validate:"omitempty,gt=0"`
}

// Quote is the priced-but-unpersisted answer to a QuoteRequest.
type Quote struct {
	DistanceKm       decimal.Decimal `json:"distance_km"`
	BaseFare         decimal.Decimal `json:"base_fare"`
	PerKmRate        decimal.Decimal `json:"per_km_rate"`
	TotalPrice       decimal.Decimal `json:"total_price"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
}

// CreateDeliveryRequest is the body for POST /deliveries.
type CreateDeliveryRequest struct {
	PickupAddress   string   `json:"pickup_address" validate:"required"`
	DeliveryAddress string   `json:"delivery_address" validate:"required"`
	ItemDescription string   `json:"item_description" validate:"required"`
	DistanceKm      *float64 `json:"distance_km,omitempty" validate:"omitempty,gt=0"`
}

// UpdateStatusRequest is the body for PUT /deliveries/:id/status. The driver
// may attach its current position, which is recorded as a tracking point.
type UpdateStatusRequest struct {
	Status string   `json:"status" validate:"required,oneof=picked_up in_transit delivered"`
	Lat    *float64 `json:"lat,omitempty" validate:"omitempty,latitude"`
	Lng    *float64 `json:"lng,omitempty" validate:"omitempty,longitude"`
}

// CancelDeliveryRequest is the body for PUT /deliveries/:id/cancel.
type CancelDeliveryRequest struct {
	Reason string `json:"reason" validate:"required,oneof=customer_not_available wrong_address item_not_found driver_unavailable other"`
}
