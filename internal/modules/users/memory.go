package users

import (
	"context"
	"sync"
	"time"

	"courier-platform/internal/models"

	"github.com/shopspring/decimal"
)

// MemoryRepository is the in-memory backend of RepositoryInterface, used by
// tests and single-binary setups.
type MemoryRepository struct {
	mu        sync.RWMutex
	users     map[string]*models.User
	byEmail   map[string]string
	customers map[string]*models.Customer
	drivers   map[string]*models.Driver
}

// NewMemoryRepository creates an empty in-memory user store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		users:     make(map[string]*models.User),
		byEmail:   make(map[string]string),
		customers: make(map[string]*models.Customer),
		drivers:   make(map[string]*models.Driver),
	}
}

func (r *MemoryRepository) CreateUser(_ context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[u.Email]; ok {
		return models.ErrEmailTaken
	}
	now := time.Now()
	u.CreatedAt, u.UpdatedAt = now, now
	cp := *u
	r.users[u.ID] = &cp
	r.byEmail[u.Email] = u.ID
	return nil
}

func (r *MemoryRepository) CreateCustomer(_ context.Context, c *models.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.customers[c.UserID] = &cp
	return nil
}

func (r *MemoryRepository) CreateDriver(_ context.Context, d *models.Driver) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	cp.TotalEarnings = decimal.Zero
	cp.CommissionOwed = decimal.Zero
	r.drivers[d.UserID] = &cp
	return nil
}

func (r *MemoryRepository) FindUser(_ context.Context, userID string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryRepository) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *r.users[id]
	return &cp, nil
}

func (r *MemoryRepository) FindCustomer(_ context.Context, userID string) (*models.Customer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.customers[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) FindDriver(_ context.Context, userID string) (*models.Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.drivers[userID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *MemoryRepository) SetDriverOnline(_ context.Context, userID string, online bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drivers[userID]
	if !ok {
		return models.ErrNotFound
	}
	d.IsOnline = online
	return nil
}

func (r *MemoryRepository) SetDriverLocation(_ context.Context, userID string, lat, lng float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drivers[userID]
	if !ok {
		return models.ErrNotFound
	}
	d.CurrentLat, d.CurrentLng = &lat, &lng
	return nil
}

func (r *MemoryRepository) CreditDriverEarnings(_ context.Context, userID string, earnings, commission decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drivers[userID]
	if !ok {
		return models.ErrNotFound
	}
	d.TotalEarnings = d.TotalEarnings.Add(earnings)
	d.CommissionOwed = d.CommissionOwed.Add(commission)
	return nil
}

func (r *MemoryRepository) ListOnlineDriverIDs(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for id, d := range r.drivers {
		if !d.IsOnline {
			continue
		}
		if u, ok := r.users[id]; ok && u.Status == models.UserStatusActive {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
