package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User roles. Role is fixed at signup and never changes for an account.
const (
	RoleCustomer = "customer"
	RoleDriver   = "driver"
	RoleAdmin    = "admin"
)

// User account statuses. Only active users may log in.
const (
	UserStatusPending   = "pending"
	UserStatusActive    = "active"
	UserStatusSuspended = "suspended"
)

// User is an account identity shared by customers, drivers and admins.
type User struct {
	ID           string    `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Phone        string    `json:"phone" db:"phone"`
	Role         string    `json:"role" db:"role"`
	Status       string    `json:"status" db:"status"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Customer is the customer profile, one-to-one with a User.
type Customer struct {
	UserID      string   `json:"user_id" db:"user_id"`
	Address     string   `json:"address" db:"address"`
	LocationLat *float64 `json:"location_lat,omitempty" db:"location_lat"`
	LocationLng *float64 `json:"location_lng,omitempty" db:"location_lng"`
}

// Driver is the driver profile, one-to-one with a User. Earnings and
// commission owed accumulate when deliveries reach the delivered state.
type Driver struct {
	UserID           string          `json:"user_id" db:"user_id"`
	BikeRegistration string          `json:"bike_registration" db:"bike_registration"`
	IDNumber         string          `json:"id_number" db:"id_number"`
	IsOnline         bool            `json:"is_online" db:"is_online"`
	CurrentLat       *float64        `json:"current_lat,omitempty" db:"current_lat"`
	CurrentLng       *float64        `json:"current_lng,omitempty" db:"current_lng"`
	TotalEarnings    decimal.Decimal `json:"total_earnings" db:"total_earnings"`
	CommissionOwed   decimal.Decimal `json:"commission_owed" db:"commission_owed"`
}

// SignupRequest is the body for POST /auth/signup. Customers must supply an
// address; drivers must supply bike registration and ID number.
type SignupRequest struct {
	Username         string `json:"username" validate:"required,min=2,max=50"`
	Email            string `json:"email" validate:"required,email"`
	Password         string `json:"password" validate:"required,min=8"`
	Phone            string `json:"phone" validate:"required,min=7,max=15"`
	Role             string `json:"role" validate:"required,oneof=customer driver"`
	Address          string `json:"address,omitempty"`
	BikeRegistration string `json:"bike_registration,omitempty"`
	IDNumber         string `json:"id_number,omitempty"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse carries the signed token and the authenticated user.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	User        *User  `json:"user"`
}

// LocationUpdateRequest is the body for POST /drivers/location.
type LocationUpdateRequest struct {
	Lat float64 `json:"lat" validate:"required,latitude"`
	Lng float64 `json:"lng" validate:"required,longitude"`
}

// OnlineToggleResponse reports the driver's presence after a toggle.
type OnlineToggleResponse struct {
	IsOnline bool   `json:"is_online"`
	Message  string `json:"message"`
}

// EarningsSummary aggregates a driver's completed work.
type EarningsSummary struct {
	TotalEarnings  decimal.Decimal `json:"total_earnings"`
	CommissionOwed decimal.Decimal `json:"commission_owed"`
	DeliveredCount int             `json:"delivered_count"`
}
