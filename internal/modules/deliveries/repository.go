package deliveries

import (
	"context"
	"errors"
	"fmt"
	"time"

	"courier-platform/internal/models"
	"courier-platform/internal/storage"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// RepositoryInterface defines the store operations for deliveries and their
// tracking points. All state transitions are conditional updates keyed on the
// expected prior status, so they stay correct under concurrent callers and
// multiple server processes.
type RepositoryInterface interface {
	Create(ctx context.Context, d *models.Delivery) error
	FindByID(ctx context.Context, deliveryID string) (*models.Delivery, error)
	ListByCustomer(ctx context.Context, customerID string, limit int) ([]*models.Delivery, error)
	ListByDriver(ctx context.Context, driverID string, limit int) ([]*models.Delivery, error)
	ListPending(ctx context.Context, limit int) ([]*models.Delivery, error)
	FindActiveByDriver(ctx context.Context, driverID string) (*models.Delivery, error)

	// Accept atomically assigns the driver to a still-pending delivery.
	// Exactly one concurrent caller wins; the rest get ErrNotAvailable.
	Accept(ctx context.Context, deliveryID, driverID string, at time.Time) (*models.Delivery, error)
	// AdvanceStatus moves the delivery from one status to the next, stamping
	// the target's timestamp only if it is not already set.
	AdvanceStatus(ctx context.Context, deliveryID, driverID, fromStatus, toStatus string, at time.Time) (*models.Delivery, error)
	// Cancel terminates a delivery that is still in fromStatus.
	Cancel(ctx context.Context, deliveryID, fromStatus, cancelledBy, reason string, fee decimal.Decimal) (*models.Delivery, error)

	CountDelivered(ctx context.Context, driverID string) (int, error)
	CreateTrackingPoint(ctx context.Context, p *models.TrackingPoint) error
	LatestTracking(ctx context.Context, deliveryID string) (*models.TrackingPoint, error)
}

// Repository is the PostgreSQL implementation of RepositoryInterface.
type Repository struct {
	db *storage.DB
}

// NewRepository creates a new delivery repository.
func NewRepository(db *storage.DB) RepositoryInterface {
	return &Repository{db: db}
}

const deliveryColumns = `id, customer_id, driver_id, pickup_address, delivery_address, item_description,
	pickup_lat, pickup_lng, delivery_lat, delivery_lng,
	status, created_at, accepted_at, picked_up_at, delivered_at,
	base_fare, distance_km, per_km_rate, total_price, commission_amount,
	cancelled_by, cancellation_reason, cancellation_fee`

func scanDelivery(row pgx.Row) (*models.Delivery, error) {
	var d models.Delivery
	err := row.Scan(
		&d.ID, &d.CustomerID, &d.DriverID, &d.PickupAddress, &d.DeliveryAddress, &d.ItemDescription,
		&d.PickupLat, &d.PickupLng, &d.DeliveryLat, &d.DeliveryLng,
		&d.Status, &d.CreatedAt, &d.AcceptedAt, &d.PickedUpAt, &d.DeliveredAt,
		&d.BaseFare, &d.DistanceKm, &d.PerKmRate, &d.TotalPrice, &d.CommissionAmount,
		&d.CancelledBy, &d.CancellationReason, &d.CancellationFee,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan delivery: %w", err)
	}
	return &d, nil
}

func (r *Repository) Create(ctx context.Context, d *models.Delivery) error {
	query := `
		INSERT INTO deliveries (
			id, customer_id, pickup_address, delivery_address, item_description,
			pickup_lat, pickup_lng, delivery_lat, delivery_lng,
			status, base_fare, distance_km, per_km_rate, total_price, commission_amount,
			cancellation_fee
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 'pending', $10, $11, $12, $13, $14, 0)
		RETURNING created_at`
	err := r.db.Q(ctx).QueryRow(ctx, query,
		d.ID, d.CustomerID, d.PickupAddress, d.DeliveryAddress, d.ItemDescription,
		d.PickupLat, d.PickupLng, d.DeliveryLat, d.DeliveryLng,
		d.BaseFare, d.DistanceKm, d.PerKmRate, d.TotalPrice, d.CommissionAmount,
	).Scan(&d.CreatedAt)
	if err != nil {
		return fmt.Errorf("repository.Create: %w", err)
	}
	d.Status = models.StatusPending
	return nil
}

func (r *Repository) FindByID(ctx context.Context, deliveryID string) (*models.Delivery, error) {
	row := r.db.Q(ctx).QueryRow(ctx,
		"SELECT "+deliveryColumns+" FROM deliveries WHERE id = $1", deliveryID)
	d, err := scanDelivery(row)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.FindByID: %w", err)
	}
	return d, nil
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]*models.Delivery, error) {
	rows, err := r.db.Q(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deliveries []*models.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

func (r *Repository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]*models.Delivery, error) {
	deliveries, err := r.list(ctx,
		"SELECT "+deliveryColumns+" FROM deliveries WHERE customer_id = $1 ORDER BY created_at DESC LIMIT $2",
		customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("repository.ListByCustomer: %w", err)
	}
	return deliveries, nil
}

func (r *Repository) ListByDriver(ctx context.Context, driverID string, limit int) ([]*models.Delivery, error) {
	deliveries, err := r.list(ctx,
		"SELECT "+deliveryColumns+" FROM deliveries WHERE driver_id = $1 ORDER BY created_at DESC LIMIT $2",
		driverID, limit)
	if err != nil {
		return nil, fmt.Errorf("repository.ListByDriver: %w", err)
	}
	return deliveries, nil
}

func (r *Repository) ListPending(ctx context.Context, limit int) ([]*models.Delivery, error) {
	deliveries, err := r.list(ctx,
		"SELECT "+deliveryColumns+" FROM deliveries WHERE status = 'pending' ORDER BY created_at DESC LIMIT $1",
		limit)
	if err != nil {
		return nil, fmt.Errorf("repository.ListPending: %w", err)
	}
	return deliveries, nil
}

func (r *Repository) FindActiveByDriver(ctx context.Context, driverID string) (*models.Delivery, error) {
	row := r.db.Q(ctx).QueryRow(ctx,
		"SELECT "+deliveryColumns+` FROM deliveries
		 WHERE driver_id = $1 AND status IN ('accepted', 'picked_up', 'in_transit')
		 ORDER BY created_at DESC LIMIT 1`, driverID)
	d, err := scanDelivery(row)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.FindActiveByDriver: %w", err)
	}
	return d, nil
}

func (r *Repository) Accept(ctx context.Context, deliveryID, driverID string, at time.Time) (*models.Delivery, error) {
	query := `
		UPDATE deliveries
		SET driver_id = $2, status = 'accepted', accepted_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING ` + deliveryColumns
	row := r.db.Q(ctx).QueryRow(ctx, query, deliveryID, driverID, at)
	d, err := scanDelivery(row)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Either the delivery does not exist or another driver won it.
			if _, findErr := r.FindByID(ctx, deliveryID); findErr != nil {
				return nil, findErr
			}
			return nil, models.ErrNotAvailable
		}
		return nil, fmt.Errorf("repository.Accept: %w", err)
	}
	return d, nil
}

func (r *Repository) AdvanceStatus(ctx context.Context, deliveryID, driverID, fromStatus, toStatus string, at time.Time) (*models.Delivery, error) {
	query := `
		UPDATE deliveries
		SET status = $4,
		    picked_up_at = CASE WHEN $4 = 'picked_up' AND picked_up_at IS NULL THEN $5 ELSE picked_up_at END,
		    delivered_at = CASE WHEN $4 = 'delivered' AND delivered_at IS NULL THEN $5 ELSE delivered_at END
		WHERE id = $1 AND driver_id = $2 AND status = $3
		RETURNING ` + deliveryColumns
	row := r.db.Q(ctx).QueryRow(ctx, query, deliveryID, driverID, fromStatus, toStatus, at)
	d, err := scanDelivery(row)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotAvailable
		}
		return nil, fmt.Errorf("repository.AdvanceStatus: %w", err)
	}
	return d, nil
}

func (r *Repository) Cancel(ctx context.Context, deliveryID, fromStatus, cancelledBy, reason string, fee decimal.Decimal) (*models.Delivery, error) {
	query := `
		UPDATE deliveries
		SET status = 'cancelled', cancelled_by = $3, cancellation_reason = $4, cancellation_fee = $5
		WHERE id = $1 AND status = $2
		RETURNING ` + deliveryColumns
	row := r.db.Q(ctx).QueryRow(ctx, query, deliveryID, fromStatus, cancelledBy, reason, fee)
	d, err := scanDelivery(row)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotAvailable
		}
		return nil, fmt.Errorf("repository.Cancel: %w", err)
	}
	return d, nil
}

func (r *Repository) CountDelivered(ctx context.Context, driverID string) (int, error) {
	var count int
	err := r.db.Q(ctx).QueryRow(ctx,
		"SELECT COUNT(*) FROM deliveries WHERE driver_id = $1 AND status = 'delivered'", driverID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("repository.CountDelivered: %w", err)
	}
	return count, nil
}

func (r *Repository) CreateTrackingPoint(ctx context.Context, p *models.TrackingPoint) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	query := `
		INSERT INTO delivery_tracking (id, delivery_id, driver_lat, driver_lng, timestamp)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.Q(ctx).Exec(ctx, query, p.ID, p.DeliveryID, p.DriverLat, p.DriverLng, p.Timestamp); err != nil {
		return fmt.Errorf("repository.CreateTrackingPoint: %w", err)
	}
	return nil
}

func (r *Repository) LatestTracking(ctx context.Context, deliveryID string) (*models.TrackingPoint, error) {
	query := `
		SELECT id, delivery_id, driver_lat, driver_lng, timestamp
		FROM delivery_tracking
		WHERE delivery_id = $1
		ORDER BY timestamp DESC
		LIMIT 1`
	var p models.TrackingPoint
	err := r.db.Q(ctx).QueryRow(ctx, query, deliveryID).Scan(&p.ID, &p.DeliveryID, &p.DriverLat, &p.DriverLng, &p.Timestamp)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.LatestTracking: %w", err)
	}
	return &p, nil
}
