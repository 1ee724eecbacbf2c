package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/carpool-matching/internal/models"
)

func offer(driverID, date string) models.RideOffer {
	return models.RideOffer{
		DriverID:   driverID,
		Name:       "Asha",
		Phone:      "+91 90000 00000",
		PickupInfo: models.GeoPoint{Latitude: 12.9, Longitude: 77.5},
		DestInfo:   models.GeoPoint{Latitude: 12.95, Longitude: 77.55},
		Vehicle:    models.VehicleCar,
		Seats:      3,
		Date:       date,
		Time:       "08:30",
	}
}

func fixedClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestMemoryStoreCreateGet(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	price := 120.0
	in := offer("D1", "2025-01-10")
	in.PricingModel = models.PricingFixed
	in.Price = &price

	created, err := s.Create(ctx, in)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, created.CreatedAt, created.UpdatedAt)

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, got)

	// stored copy is not aliased with the caller's price
	price = 1
	got, _ = s.Get(ctx, created.ID)
	assert.Equal(t, 120.0, *got.Price)
}

func TestMemoryStoreRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	bad := offer("D1", "2025-01-10")
	bad.Seats = 0
	_, err := s.Create(ctx, bad)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	bad = offer("D1", "2025-01-10")
	bad.PricingModel = models.PricingPerKm
	_, err = s.Create(ctx, bad)
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestMemoryStoreUpdateDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.now = fixedClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	created, err := s.Create(ctx, offer("D1", "2025-01-10"))
	require.NoError(t, err)

	upd := created
	upd.Seats = 5
	upd.CreatedAt = time.Time{}
	got, err := s.Update(ctx, upd)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Seats)
	assert.Equal(t, created.CreatedAt, got.CreatedAt, "createdAt is preserved")
	assert.True(t, got.UpdatedAt.After(created.UpdatedAt))

	unknown := offer("D1", "2025-01-10")
	unknown.ID = "missing"
	_, err = s.Update(ctx, unknown)
	assert.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, s.Delete(ctx, created.ID))
	assert.ErrorIs(t, s.Delete(ctx, created.ID), models.ErrNotFound)
	_, err = s.Get(ctx, created.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMemoryStoreListAllDateDesc(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.now = fixedClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	for _, d := range []string{"2025-01-10", "2025-03-01", "2024-12-31", "2025-03-01"} {
		_, err := s.Create(ctx, offer("D1", d))
		require.NoError(t, err)
	}
	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	var dates []string
	for _, r := range all {
		dates = append(dates, r.Date)
	}
	assert.Equal(t, []string{"2025-03-01", "2025-03-01", "2025-01-10", "2024-12-31"}, dates)
	assert.True(t, all[0].CreatedAt.After(all[1].CreatedAt), "same date: newest created first")

	byDate, err := s.ListByDate(ctx, "2025-03-01")
	require.NoError(t, err)
	assert.Len(t, byDate, 2)
	none, err := s.ListByDate(ctx, "2026-01-01")
	require.NoError(t, err)
	assert.Empty(t, none)
}
