package models

import "errors"

var (
	// ErrNotFound is returned when a requested resource is not found.
	ErrNotFound = errors.New("resource not found")

	// ErrValidation is returned when input fails validation, e.g. an empty
	// chat message or a missing pickup address. No state is changed.
	ErrValidation = errors.New("invalid input")

	// ErrNotAvailable is returned when an action races against the current
	// state of a delivery and loses, e.g. accepting a delivery another driver
	// already took, or cancelling one that is already in transit. The caller
	// should refresh and retry against current state.
	ErrNotAvailable = errors.New("delivery not available")

	// ErrAccessDenied is returned when the actor is not a party to the
	// delivery or chat room it is acting on.
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidTransition is returned when a status update does not follow
	// the delivery lifecycle (pending -> accepted -> picked_up -> in_transit
	// -> delivered, with cancellation only from pending or accepted).
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrDriverOffline is returned when a driver tries to accept a delivery
	// while marked offline.
	ErrDriverOffline = errors.New("driver must be online to accept deliveries")

	// ErrEmailTaken is returned on signup when the email is already registered.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials is returned on login with a wrong email/password
	// pair or an account whose status does not permit login.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
