package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/carpool-matching/internal/models"
)

// RideStore defines persistence operations for ride offers.
type RideStore interface {
	Create(ctx context.Context, r models.RideOffer) (models.RideOffer, error)
	Get(ctx context.Context, id string) (models.RideOffer, error)
	Update(ctx context.Context, r models.RideOffer) (models.RideOffer, error)
	Delete(ctx context.Context, id string) error
	// ListAll returns every ride, most recent service date first.
	ListAll(ctx context.Context) ([]models.RideOffer, error)
	ListByDate(ctx context.Context, date string) ([]models.RideOffer, error)
	Ping(ctx context.Context) error
}

type MemoryStore struct {
	mu    sync.RWMutex
	rides map[string]models.RideOffer
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[string]models.RideOffer), now: time.Now}
}

func (m *MemoryStore) Create(ctx context.Context, r models.RideOffer) (models.RideOffer, error) {
	if err := r.Validate(); err != nil {
		return models.RideOffer{}, err
	}
	r = clone(r)
	r.ID = uuid.NewString()
	r.CreatedAt = m.now().UTC()
	r.UpdatedAt = r.CreatedAt
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rides[r.ID] = r
	return clone(r), nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (models.RideOffer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return models.RideOffer{}, models.ErrNotFound
	}
	return clone(r), nil
}

func (m *MemoryStore) Update(ctx context.Context, r models.RideOffer) (models.RideOffer, error) {
	if err := r.Validate(); err != nil {
		return models.RideOffer{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.rides[r.ID]
	if !ok {
		return models.RideOffer{}, models.ErrNotFound
	}
	r = clone(r)
	r.CreatedAt = old.CreatedAt
	r.UpdatedAt = m.now().UTC()
	m.rides[r.ID] = r
	return clone(r), nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rides[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.rides, id)
	return nil
}

func (m *MemoryStore) ListAll(ctx context.Context) ([]models.RideOffer, error) {
	m.mu.RLock()
	out := make([]models.RideOffer, 0, len(m.rides))
	for _, r := range m.rides {
		out = append(out, clone(r))
	}
	m.mu.RUnlock()
	sortByDateDesc(out)
	return out, nil
}

func (m *MemoryStore) ListByDate(ctx context.Context, date string) ([]models.RideOffer, error) {
	m.mu.RLock()
	var out []models.RideOffer
	for _, r := range m.rides {
		if r.Date == date {
			out = append(out, clone(r))
		}
	}
	m.mu.RUnlock()
	sortByDateDesc(out)
	return out, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

// sortByDateDesc orders by service date, newest first; rides of the same
// date are ordered newest created first, then by id.
func sortByDateDesc(rides []models.RideOffer) {
	sort.Slice(rides, func(i, j int) bool {
		a, b := rides[i], rides[j]
		if a.Date != b.Date {
			return a.Date > b.Date
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func clone(r models.RideOffer) models.RideOffer {
	if r.Price != nil {
		p := *r.Price
		r.Price = &p
	}
	return r
}
