package deliveries

import (
	"context"
	"sort"
	"sync"
	"time"

	"courier-platform/internal/models"

	"github.com/shopspring/decimal"
)

// MemoryRepository is the in-memory backend of RepositoryInterface. Its
// transition methods apply the same compare-and-set rules as the SQL backend
// under one mutex, so the exactly-once acceptance guarantee holds here too.
type MemoryRepository struct {
	mu         sync.RWMutex
	deliveries map[string]*models.Delivery
	tracking   map[string][]*models.TrackingPoint
}

// NewMemoryRepository creates an empty in-memory delivery store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		deliveries: make(map[string]*models.Delivery),
		tracking:   make(map[string][]*models.TrackingPoint),
	}
}

func (r *MemoryRepository) Create(_ context.Context, d *models.Delivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d.Status = models.StatusPending
	d.CreatedAt = time.Now()
	cp := *d
	r.deliveries[d.ID] = &cp
	return nil
}

func (r *MemoryRepository) FindByID(_ context.Context, deliveryID string) (*models.Delivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.deliveries[deliveryID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *MemoryRepository) listWhere(match func(*models.Delivery) bool, limit int) []*models.Delivery {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Delivery
	for _, d := range r.deliveries {
		if match(d) {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *MemoryRepository) ListByCustomer(_ context.Context, customerID string, limit int) ([]*models.Delivery, error) {
	return r.listWhere(func(d *models.Delivery) bool { return d.CustomerID == customerID }, limit), nil
}

func (r *MemoryRepository) ListByDriver(_ context.Context, driverID string, limit int) ([]*models.Delivery, error) {
	return r.listWhere(func(d *models.Delivery) bool {
		return d.DriverID != nil && *d.DriverID == driverID
	}, limit), nil
}

func (r *MemoryRepository) ListPending(_ context.Context, limit int) ([]*models.Delivery, error) {
	return r.listWhere(func(d *models.Delivery) bool { return d.Status == models.StatusPending }, limit), nil
}

func activeStatus(status string) bool {
	switch status {
	case models.StatusAccepted, models.StatusPickedUp, models.StatusInTransit:
		return true
	}
	return false
}

func (r *MemoryRepository) FindActiveByDriver(_ context.Context, driverID string) (*models.Delivery, error) {
	matches := r.listWhere(func(d *models.Delivery) bool {
		return d.DriverID != nil && *d.DriverID == driverID && activeStatus(d.Status)
	}, 1)
	if len(matches) == 0 {
		return nil, models.ErrNotFound
	}
	return matches[0], nil
}

func (r *MemoryRepository) Accept(_ context.Context, deliveryID, driverID string, at time.Time) (*models.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[deliveryID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if d.Status != models.StatusPending {
		return nil, models.ErrNotAvailable
	}
	driver := driverID
	d.DriverID = &driver
	d.Status = models.StatusAccepted
	d.AcceptedAt = &at
	cp := *d
	return &cp, nil
}

func (r *MemoryRepository) AdvanceStatus(_ context.Context, deliveryID, driverID, fromStatus, toStatus string, at time.Time) (*models.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[deliveryID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if d.DriverID == nil || *d.DriverID != driverID || d.Status != fromStatus {
		return nil, models.ErrNotAvailable
	}
	d.Status = toStatus
	switch toStatus {
	case models.StatusPickedUp:
		if d.PickedUpAt == nil {
			d.PickedUpAt = &at
		}
	case models.StatusDelivered:
		if d.DeliveredAt == nil {
			d.DeliveredAt = &at
		}
	}
	cp := *d
	return &cp, nil
}

func (r *MemoryRepository) Cancel(_ context.Context, deliveryID, fromStatus, cancelledBy, reason string, fee decimal.Decimal) (*models.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[deliveryID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if d.Status != fromStatus {
		return nil, models.ErrNotAvailable
	}
	d.Status = models.StatusCancelled
	d.CancelledBy = &cancelledBy
	d.CancellationReason = &reason
	d.CancellationFee = fee
	cp := *d
	return &cp, nil
}

func (r *MemoryRepository) CountDelivered(_ context.Context, driverID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, d := range r.deliveries {
		if d.Status == models.StatusDelivered && d.DriverID != nil && *d.DriverID == driverID {
			count++
		}
	}
	return count, nil
}

func (r *MemoryRepository) CreateTrackingPoint(_ context.Context, p *models.TrackingPoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.tracking[p.DeliveryID] = append(r.tracking[p.DeliveryID], &cp)
	return nil
}

func (r *MemoryRepository) LatestTracking(_ context.Context, deliveryID string) (*models.TrackingPoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	points := r.tracking[deliveryID]
	if len(points) == 0 {
		return nil, models.ErrNotFound
	}
	latest := points[0]
	for _, p := range points[1:] {
		if p.Timestamp.After(latest.Timestamp) {
			latest = p
		}
	}
	cp := *latest
	return &cp, nil
}
