package deliveries

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"courier-platform/internal/models"
	"courier-platform/internal/realtime"
	"courier-platform/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Pricing holds the process-wide pricing constants, read from configuration.
type Pricing struct {
	CommissionRate    decimal.Decimal
	BaseFare          decimal.Decimal
	PerKmRate         decimal.Decimal
	DefaultDistanceKm decimal.Decimal
	DefaultLat        float64
	DefaultLng        float64
}

// DriverDirectory is the slice of the user store this module needs: driver
// lookups, presence, live position and earnings crediting. The users
// repository implements it.
type DriverDirectory interface {
	FindUser(ctx context.Context, userID string) (*models.User, error)
	FindDriver(ctx context.Context, userID string) (*models.Driver, error)
	SetDriverLocation(ctx context.Context, userID string, lat, lng float64) error
	CreditDriverEarnings(ctx context.Context, userID string, earnings, commission decimal.Decimal) error
	ListOnlineDriverIDs(ctx context.Context) ([]string, error)
}

// ChatLog appends system messages to a delivery's chat room, creating the
// room if it does not exist yet. SystemMessage persists in the caller's
// transaction; Announce publishes a message once it has committed. The chat
// service implements it.
type ChatLog interface {
	SystemMessage(ctx context.Context, deliveryID, senderID, content string) (*models.ChatMessage, error)
	Announce(msg *models.ChatMessage)
}

// Notifier persists notifications for delivery lifecycle events in the
// caller's transaction and returns the pending notices; Dispatch pushes them
// after commit. The notifications service implements it.
type Notifier interface {
	NotifyDeliveryRequested(ctx context.Context, driverIDs []string, d *models.Delivery, customerName string) ([]*models.Notification, error)
	NotifyDeliveryAccepted(ctx context.Context, d *models.Delivery, driverName string) ([]*models.Notification, error)
	NotifyStatusUpdate(ctx context.Context, d *models.Delivery) ([]*models.Notification, error)
	NotifyDeliveryCancelled(ctx context.Context, d *models.Delivery, cancelledByRole, reason string) ([]*models.Notification, error)
	Dispatch(ns []*models.Notification)
}

// ServiceInterface defines the delivery lifecycle operations.
type ServiceInterface interface {
	Quote(ctx context.Context, req models.QuoteRequest) (*models.Quote, error)
	Create(ctx context.Context, customerID string, req models.CreateDeliveryRequest) (*models.Delivery, error)
	Accept(ctx context.Context, deliveryID, driverID string) (*models.Delivery, error)
	Advance(ctx context.Context, deliveryID, driverID string, req models.UpdateStatusRequest) (*models.Delivery, error)
	Cancel(ctx context.Context, deliveryID, actorID, actorRole, reason string) (*models.Delivery, error)

	Get(ctx context.Context, deliveryID, actorID, actorRole string) (*models.Delivery, error)
	ListForCustomer(ctx context.Context, customerID string) ([]*models.Delivery, error)
	ListForDriver(ctx context.Context, driverID string) ([]*models.Delivery, error)
	ListAvailable(ctx context.Context) ([]*models.Delivery, error)

	ReportLocation(ctx context.Context, driverID string, lat, lng float64) error
	LatestTracking(ctx context.Context, deliveryID, actorID, actorRole string) (*models.TrackingPoint, error)
	Earnings(ctx context.Context, driverID string) (*models.EarningsSummary, error)

	// IsParty reports whether the actor may see the delivery and its chat.
	IsParty(ctx context.Context, deliveryID, actorID, actorRole string) error
	// Parties returns the customer and (possibly empty) driver user IDs.
	Parties(ctx context.Context, deliveryID string) (customerID, driverID string, err error)
}

const dashboardLimit = 10

// Service implements the delivery state machine.
type Service struct {
	repo     RepositoryInterface
	drivers  DriverDirectory
	chatlog  ChatLog
	notifier Notifier
	bus      realtime.Bus
	tx       storage.TxRunner
	pricing  Pricing
}

// NewService creates a new delivery service.
func NewService(
	repo RepositoryInterface,
	drivers DriverDirectory,
	chatlog ChatLog,
	notifier Notifier,
	bus realtime.Bus,
	tx storage.TxRunner,
	pricing Pricing,
) *Service {
	return &Service{
		repo:     repo,
		drivers:  drivers,
		chatlog:  chatlog,
		notifier: notifier,
		bus:      bus,
		tx:       tx,
		pricing:  pricing,
	}
}

// price computes the pricing fields for a distance:
// total = base_fare + distance_km * per_km_rate, commission = total * rate,
// all rounded to 2 fraction digits.
func (s *Service) price(distanceKm decimal.Decimal) (total, commission decimal.Decimal) {
	total = s.pricing.BaseFare.Add(distanceKm.Mul(s.pricing.PerKmRate)).Round(2)
	commission = total.Mul(s.pricing.CommissionRate).Round(2)
	return total, commission
}

func (s *Service) distanceFor(supplied *float64) decimal.Decimal {
	if supplied != nil {
		return decimal.NewFromFloat(*supplied).Round(2)
	}
	return s.pricing.DefaultDistanceKm
}

// Quote prices a prospective delivery without persisting anything.
func (s *Service) Quote(_ context.Context, req models.QuoteRequest) (*models.Quote, error) {
	if strings.TrimSpace(req.PickupAddress) == "" || strings.TrimSpace(req.DeliveryAddress) == "" {
		return nil, fmt.Errorf("%w: pickup and delivery addresses are required", models.ErrValidation)
	}
	distance := s.distanceFor(req.DistanceKm)
	total, commission := s.price(distance)
	return &models.Quote{
		DistanceKm:       distance,
		BaseFare:         s.pricing.BaseFare,
		PerKmRate:        s.pricing.PerKmRate,
		TotalPrice:       total,
		CommissionAmount: commission,
	}, nil
}

// Create opens a new delivery in the pending status: persists the delivery
// with its paired chat room and initial system message, notifies every online
// driver and broadcasts the request on the drivers group.
func (s *Service) Create(ctx context.Context, customerID string, req models.CreateDeliveryRequest) (*models.Delivery, error) {
	if strings.TrimSpace(req.PickupAddress) == "" || strings.TrimSpace(req.DeliveryAddress) == "" {
		return nil, fmt.Errorf("%w: pickup and delivery addresses are required", models.ErrValidation)
	}
	if strings.TrimSpace(req.ItemDescription) == "" {
		return nil, fmt.Errorf("%w: item description is required", models.ErrValidation)
	}

	customer, err := s.drivers.FindUser(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if customer.Role != models.RoleCustomer {
		return nil, models.ErrAccessDenied
	}

	distance := s.distanceFor(req.DistanceKm)
	total, commission := s.price(distance)

	delivery := &models.Delivery{
		ID:               uuid.New().String(),
		CustomerID:       customerID,
		PickupAddress:    req.PickupAddress,
		DeliveryAddress:  req.DeliveryAddress,
		ItemDescription:  req.ItemDescription,
		PickupLat:        s.pricing.DefaultLat,
		PickupLng:        s.pricing.DefaultLng,
		DeliveryLat:      s.pricing.DefaultLat,
		DeliveryLng:      s.pricing.DefaultLng,
		BaseFare:         s.pricing.BaseFare,
		DistanceKm:       distance,
		PerKmRate:        s.pricing.PerKmRate,
		TotalPrice:       total,
		CommissionAmount: commission,
		CancellationFee:  decimal.Zero,
	}

	var sysMsg *models.ChatMessage
	var pending []*models.Notification
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.repo.Create(ctx, delivery); err != nil {
			return err
		}
		sysMsg, err = s.chatlog.SystemMessage(ctx, delivery.ID, customerID,
			"Delivery request created. Waiting for driver acceptance...")
		if err != nil {
			return err
		}
		driverIDs, err := s.drivers.ListOnlineDriverIDs(ctx)
		if err != nil {
			return err
		}
		pending, err = s.notifier.NotifyDeliveryRequested(ctx, driverIDs, delivery, customer.Username)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("service.Create: %w", err)
	}

	s.chatlog.Announce(sysMsg)
	s.notifier.Dispatch(pending)
	_ = s.bus.Publish(realtime.DriversGroup, realtime.NewEvent(realtime.EventDeliveryRequest, map[string]any{
		"delivery_id":      delivery.ID,
		"customer":         customer.Username,
		"pickup_address":   delivery.PickupAddress,
		"delivery_address": delivery.DeliveryAddress,
		"total_price":      delivery.TotalPrice,
	}))

	return delivery, nil
}

// Accept atomically assigns an online driver to a pending delivery. Exactly
// one of any concurrent accept calls wins; the rest observe ErrNotAvailable.
func (s *Service) Accept(ctx context.Context, deliveryID, driverID string) (*models.Delivery, error) {
	var accepted *models.Delivery
	var driverName string
	var sysMsg *models.ChatMessage
	var pending []*models.Notification

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		driver, err := s.drivers.FindDriver(ctx, driverID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return models.ErrAccessDenied
			}
			return err
		}
		if !driver.IsOnline {
			return models.ErrDriverOffline
		}

		d, err := s.repo.Accept(ctx, deliveryID, driverID, time.Now())
		if err != nil {
			return err
		}
		accepted = d

		user, err := s.drivers.FindUser(ctx, driverID)
		if err != nil {
			return err
		}
		driverName = user.Username

		sysMsg, err = s.chatlog.SystemMessage(ctx, d.ID, driverID, fmt.Sprintf(
			"Driver %s has accepted your delivery! They will contact you shortly.", driverName))
		if err != nil {
			return err
		}

		lat, lng := s.pricing.DefaultLat, s.pricing.DefaultLng
		if driver.CurrentLat != nil && driver.CurrentLng != nil {
			lat, lng = *driver.CurrentLat, *driver.CurrentLng
		}
		if err := s.repo.CreateTrackingPoint(ctx, &models.TrackingPoint{
			DeliveryID: d.ID,
			DriverLat:  lat,
			DriverLng:  lng,
			Timestamp:  time.Now(),
		}); err != nil {
			return err
		}

		pending, err = s.notifier.NotifyDeliveryAccepted(ctx, d, driverName)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.chatlog.Announce(sysMsg)
	s.notifier.Dispatch(pending)

	// Retract the offer from every other driver's view and tell the
	// delivery's watchers about the new status.
	_ = s.bus.Publish(realtime.DriversGroup, realtime.NewEvent(realtime.EventDeliveryTaken, map[string]any{
		"delivery_id": accepted.ID,
		"driver_id":   driverID,
	}))
	s.publishStatus(accepted)

	return accepted, nil
}

var statusMessages = map[string]string{
	models.StatusPickedUp:  "Driver has picked up your item and is on the way!",
	models.StatusInTransit: "Driver is in transit with your delivery",
}

// Advance moves an owned delivery one step forward through the lifecycle.
// Reaching delivered credits the driver's earnings exactly once.
func (s *Service) Advance(ctx context.Context, deliveryID, driverID string, req models.UpdateStatusRequest) (*models.Delivery, error) {
	var updated *models.Delivery
	var sysMsg *models.ChatMessage
	var pending []*models.Notification

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		d, err := s.repo.FindByID(ctx, deliveryID)
		if err != nil {
			return err
		}
		if d.DriverID == nil || *d.DriverID != driverID {
			return models.ErrAccessDenied
		}
		switch req.Status {
		case models.StatusPickedUp, models.StatusInTransit, models.StatusDelivered:
		default:
			return fmt.Errorf("%w: %q is not a driver status target", models.ErrValidation, req.Status)
		}
		if d.Terminal() || models.NextStatus(d.Status) != req.Status {
			return models.ErrInvalidTransition
		}

		updated, err = s.repo.AdvanceStatus(ctx, deliveryID, driverID, d.Status, req.Status, time.Now())
		if err != nil {
			return err
		}

		if req.Status == models.StatusDelivered {
			// The conditional update above succeeds at most once per
			// delivery, so the credit cannot double-apply.
			if err := s.drivers.CreditDriverEarnings(ctx, driverID, updated.TotalPrice, updated.CommissionAmount); err != nil {
				return err
			}
		}

		if req.Lat != nil && req.Lng != nil {
			if err := s.drivers.SetDriverLocation(ctx, driverID, *req.Lat, *req.Lng); err != nil {
				return err
			}
			if err := s.repo.CreateTrackingPoint(ctx, &models.TrackingPoint{
				DeliveryID: deliveryID,
				DriverLat:  *req.Lat,
				DriverLng:  *req.Lng,
				Timestamp:  time.Now(),
			}); err != nil {
				return err
			}
		}

		content, ok := statusMessages[req.Status]
		if !ok {
			content = fmt.Sprintf("Delivery completed! Payment of $%s received.", updated.TotalPrice.StringFixed(2))
		}
		sysMsg, err = s.chatlog.SystemMessage(ctx, deliveryID, driverID, content)
		if err != nil {
			return err
		}

		pending, err = s.notifier.NotifyStatusUpdate(ctx, updated)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.chatlog.Announce(sysMsg)
	s.notifier.Dispatch(pending)
	s.publishStatus(updated)
	if req.Lat != nil && req.Lng != nil {
		_ = s.bus.Publish(realtime.DeliveryGroup(deliveryID), realtime.NewEvent(realtime.EventLocationUpdate, map[string]any{
			"delivery_id": deliveryID,
			"lat":         *req.Lat,
			"lng":         *req.Lng,
			"timestamp":   time.Now().Format(time.RFC3339),
		}))
	}

	return updated, nil
}

// Cancel terminates a delivery that is still pending or accepted. Cancelling
// after acceptance charges half of the total price as a cancellation fee; the
// fee is computed from the status the delivery held before this call.
func (s *Service) Cancel(ctx context.Context, deliveryID, actorID, actorRole, reason string) (*models.Delivery, error) {
	var cancelled *models.Delivery
	var sysMsg *models.ChatMessage
	var pending []*models.Notification

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		d, err := s.repo.FindByID(ctx, deliveryID)
		if err != nil {
			return err
		}
		if err := partyCheck(d, actorID, actorRole); err != nil {
			return err
		}
		if d.Status != models.StatusPending && d.Status != models.StatusAccepted {
			return models.ErrNotAvailable
		}

		fee := decimal.Zero
		if d.Status == models.StatusAccepted {
			fee = d.TotalPrice.Mul(decimal.NewFromFloat(0.5)).Round(2)
		}

		cancelled, err = s.repo.Cancel(ctx, deliveryID, d.Status, actorID, reason, fee)
		if err != nil {
			return err
		}

		sysMsg, err = s.chatlog.SystemMessage(ctx, deliveryID, actorID,
			fmt.Sprintf("Delivery cancelled. Reason: %s", reason))
		if err != nil {
			return err
		}

		pending, err = s.notifier.NotifyDeliveryCancelled(ctx, cancelled, actorRole, reason)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.chatlog.Announce(sysMsg)
	s.notifier.Dispatch(pending)
	s.publishStatus(cancelled)
	return cancelled, nil
}

func (s *Service) publishStatus(d *models.Delivery) {
	_ = s.bus.Publish(realtime.DeliveryGroup(d.ID), realtime.NewEvent(realtime.EventStatusUpdate, map[string]any{
		"delivery_id":    d.ID,
		"status":         d.Status,
		"status_display": models.StatusDisplay(d.Status),
	}))
}

func partyCheck(d *models.Delivery, actorID, actorRole string) error {
	if actorRole == models.RoleAdmin || d.CustomerID == actorID {
		return nil
	}
	if d.DriverID != nil && *d.DriverID == actorID {
		return nil
	}
	return models.ErrAccessDenied
}

// Get returns a delivery to one of its parties.
func (s *Service) Get(ctx context.Context, deliveryID, actorID, actorRole string) (*models.Delivery, error) {
	d, err := s.repo.FindByID(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if err := partyCheck(d, actorID, actorRole); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) ListForCustomer(ctx context.Context, customerID string) ([]*models.Delivery, error) {
	return s.repo.ListByCustomer(ctx, customerID, dashboardLimit)
}

func (s *Service) ListForDriver(ctx context.Context, driverID string) ([]*models.Delivery, error) {
	return s.repo.ListByDriver(ctx, driverID, dashboardLimit)
}

func (s *Service) ListAvailable(ctx context.Context) ([]*models.Delivery, error) {
	return s.repo.ListPending(ctx, dashboardLimit)
}

// ReportLocation records a driver's position and, when the driver has an
// active delivery, appends a tracking point and broadcasts the movement to
// the delivery's group.
func (s *Service) ReportLocation(ctx context.Context, driverID string, lat, lng float64) error {
	var active *models.Delivery

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if err := s.drivers.SetDriverLocation(ctx, driverID, lat, lng); err != nil {
			return err
		}
		d, err := s.repo.FindActiveByDriver(ctx, driverID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil
			}
			return err
		}
		active = d
		return s.repo.CreateTrackingPoint(ctx, &models.TrackingPoint{
			DeliveryID: d.ID,
			DriverLat:  lat,
			DriverLng:  lng,
			Timestamp:  time.Now(),
		})
	})
	if err != nil {
		return err
	}

	if active != nil {
		_ = s.bus.Publish(realtime.DeliveryGroup(active.ID), realtime.NewEvent(realtime.EventLocationUpdate, map[string]any{
			"delivery_id": active.ID,
			"lat":         lat,
			"lng":         lng,
			"timestamp":   time.Now().Format(time.RFC3339),
		}))
	}
	return nil
}

// LatestTracking returns the most recent tracking point for a party.
func (s *Service) LatestTracking(ctx context.Context, deliveryID, actorID, actorRole string) (*models.TrackingPoint, error) {
	if err := s.IsParty(ctx, deliveryID, actorID, actorRole); err != nil {
		return nil, err
	}
	return s.repo.LatestTracking(ctx, deliveryID)
}

// Earnings aggregates a driver's completed work.
func (s *Service) Earnings(ctx context.Context, driverID string) (*models.EarningsSummary, error) {
	driver, err := s.drivers.FindDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	count, err := s.repo.CountDelivered(ctx, driverID)
	if err != nil {
		return nil, err
	}
	return &models.EarningsSummary{
		TotalEarnings:  driver.TotalEarnings,
		CommissionOwed: driver.CommissionOwed,
		DeliveredCount: count,
	}, nil
}

// IsParty reports whether the actor is the customer, the assigned driver or
// an admin for the delivery.
func (s *Service) IsParty(ctx context.Context, deliveryID, actorID, actorRole string) error {
	d, err := s.repo.FindByID(ctx, deliveryID)
	if err != nil {
		return err
	}
	return partyCheck(d, actorID, actorRole)
}

// Parties returns the customer user ID and the assigned driver user ID, the
// latter empty while the delivery is unassigned.
func (s *Service) Parties(ctx context.Context, deliveryID string) (string, string, error) {
	return parties(ctx, s.repo, deliveryID)
}

func parties(ctx context.Context, repo RepositoryInterface, deliveryID string) (string, string, error) {
	d, err := repo.FindByID(ctx, deliveryID)
	if err != nil {
		return "", "", err
	}
	driverID := ""
	if d.DriverID != nil {
		driverID = *d.DriverID
	}
	return d.CustomerID, driverID, nil
}

// PartyLookup resolves a delivery's parties straight from the repository.
// It lets the chat module authorize against deliveries without depending on
// the full delivery service.
type PartyLookup struct {
	repo RepositoryInterface
}

// NewPartyLookup creates a PartyLookup over the given repository.
func NewPartyLookup(repo RepositoryInterface) *PartyLookup {
	return &PartyLookup{repo: repo}
}

// Parties returns the customer and driver user IDs for a delivery.
func (p *PartyLookup) Parties(ctx context.Context, deliveryID string) (string, string, error) {
	return parties(ctx, p.repo, deliveryID)
}
