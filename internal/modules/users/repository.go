package users

import (
	"context"
	"errors"
	"fmt"

	"courier-platform/internal/models"
	"courier-platform/internal/storage"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// RepositoryInterface defines the store operations for users and their
// role-specific profiles. The driver-side mutators are also consumed by the
// deliveries module for earnings crediting and location updates.
type RepositoryInterface interface {
	CreateUser(ctx context.Context, u *models.User) error
	CreateCustomer(ctx context.Context, c *models.Customer) error
	CreateDriver(ctx context.Context, d *models.Driver) error

	FindUser(ctx context.Context, userID string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	FindCustomer(ctx context.Context, userID string) (*models.Customer, error)
	FindDriver(ctx context.Context, userID string) (*models.Driver, error)

	SetDriverOnline(ctx context.Context, userID string, online bool) error
	SetDriverLocation(ctx context.Context, userID string, lat, lng float64) error
	CreditDriverEarnings(ctx context.Context, userID string, earnings, commission decimal.Decimal) error
	ListOnlineDriverIDs(ctx context.Context) ([]string, error)
}

// Repository is the PostgreSQL implementation of RepositoryInterface.
type Repository struct {
	db *storage.DB
}

// NewRepository creates a new user repository.
func NewRepository(db *storage.DB) RepositoryInterface {
	return &Repository{db: db}
}

func (r *Repository) CreateUser(ctx context.Context, u *models.User) error {
	query := `
		INSERT INTO users (id, username, email, password_hash, phone, role, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, updated_at`
	err := r.db.Q(ctx).QueryRow(ctx, query,
		u.ID, u.Username, u.Email, u.PasswordHash, u.Phone, u.Role, u.Status,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("repository.CreateUser: %w", err)
	}
	return nil
}

func (r *Repository) CreateCustomer(ctx context.Context, c *models.Customer) error {
	query := `
		INSERT INTO customers (user_id, address, location_lat, location_lng)
		VALUES ($1, $2, $3, $4)`
	if _, err := r.db.Q(ctx).Exec(ctx, query, c.UserID, c.Address, c.LocationLat, c.LocationLng); err != nil {
		return fmt.Errorf("repository.CreateCustomer: %w", err)
	}
	return nil
}

func (r *Repository) CreateDriver(ctx context.Context, d *models.Driver) error {
	query := `
		INSERT INTO drivers (user_id, bike_registration, id_number, is_online, total_earnings, commission_owed)
		VALUES ($1, $2, $3, false, 0, 0)`
	if _, err := r.db.Q(ctx).Exec(ctx, query, d.UserID, d.BikeRegistration, d.IDNumber); err != nil {
		return fmt.Errorf("repository.CreateDriver: %w", err)
	}
	return nil
}

func (r *Repository) scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Phone, &u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}

const userColumns = "id, username, email, password_hash, phone, role, status, created_at, updated_at"

func (r *Repository) FindUser(ctx context.Context, userID string) (*models.User, error) {
	row := r.db.Q(ctx).QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", userID)
	return r.scanUser(row)
}

func (r *Repository) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := r.db.Q(ctx).QueryRow(ctx, "SELECT "+userColumns+" FROM users WHERE email = $1", email)
	return r.scanUser(row)
}

func (r *Repository) FindCustomer(ctx context.Context, userID string) (*models.Customer, error) {
	query := `SELECT user_id, address, location_lat, location_lng FROM customers WHERE user_id = $1`
	var c models.Customer
	err := r.db.Q(ctx).QueryRow(ctx, query, userID).Scan(&c.UserID, &c.Address, &c.LocationLat, &c.LocationLng)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.FindCustomer: %w", err)
	}
	return &c, nil
}

func (r *Repository) FindDriver(ctx context.Context, userID string) (*models.Driver, error) {
	query := `
		SELECT user_id, bike_registration, id_number, is_online, current_lat, current_lng, total_earnings, commission_owed
		FROM drivers WHERE user_id = $1`
	var d models.Driver
	err := r.db.Q(ctx).QueryRow(ctx, query, userID).Scan(
		&d.UserID, &d.BikeRegistration, &d.IDNumber, &d.IsOnline,
		&d.CurrentLat, &d.CurrentLng, &d.TotalEarnings, &d.CommissionOwed,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("repository.FindDriver: %w", err)
	}
	return &d, nil
}

func (r *Repository) SetDriverOnline(ctx context.Context, userID string, online bool) error {
	cmd, err := r.db.Q(ctx).Exec(ctx, "UPDATE drivers SET is_online = $1 WHERE user_id = $2", online, userID)
	if err != nil {
		return fmt.Errorf("repository.SetDriverOnline: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *Repository) SetDriverLocation(ctx context.Context, userID string, lat, lng float64) error {
	cmd, err := r.db.Q(ctx).Exec(ctx,
		"UPDATE drivers SET current_lat = $1, current_lng = $2 WHERE user_id = $3", lat, lng, userID)
	if err != nil {
		return fmt.Errorf("repository.SetDriverLocation: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *Repository) CreditDriverEarnings(ctx context.Context, userID string, earnings, commission decimal.Decimal) error {
	query := `
		UPDATE drivers
		SET total_earnings = total_earnings + $1,
		    commission_owed = commission_owed + $2
		WHERE user_id = $3`
	cmd, err := r.db.Q(ctx).Exec(ctx, query, earnings, commission, userID)
	if err != nil {
		return fmt.Errorf("repository.CreditDriverEarnings: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *Repository) ListOnlineDriverIDs(ctx context.Context) ([]string, error) {
	query := `
		SELECT d.user_id
		FROM drivers d
		JOIN users u ON u.id = d.user_id
		WHERE d.is_online AND u.status = 'active'`
	rows, err := r.db.Q(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("repository.ListOnlineDriverIDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("repository.ListOnlineDriverIDs scan: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.ListOnlineDriverIDs rows: %w", err)
	}
	return ids, nil
}
