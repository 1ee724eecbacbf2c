package storage

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/carpool-matching/internal/models"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return NewPostgresStoreFromDB(db), mock
}

var rideCols = []string{"id", "driver_id", "name", "phone", "pickup_lat", "pickup_lng", "dest_lat", "dest_lng",
	"encoded_polyline", "vehicle", "seats", "service_date", "depart_time", "pricing_model", "price", "created_at", "updated_at"}

func TestPostgresCreate(t *testing.T) {
	s, mock := newMockStore(t)
	price := 8.5
	in := offer("D1", "2025-01-10")
	in.PricingModel = models.PricingPerKm
	in.Price = &price

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO rides(")).
		WithArgs(sqlmock.AnyArg(), "D1", "Asha", "+91 90000 00000", 12.9, 77.5, 12.95, 77.55, "", "Car", 3,
			"2025-01-10", "08:30", "per_km", 8.5, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	got, err := s.Create(context.Background(), in)
	require.NoError(t, err)
	assert.NotEmpty(t, got.ID)
}

func TestPostgresCreateValidatesFirst(t *testing.T) {
	s, _ := newMockStore(t)
	bad := offer("D1", "2025-01-10")
	bad.Vehicle = models.VehicleBike
	bad.Seats = 2
	_, err := s.Create(context.Background(), bad)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestPostgresGet(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM rides WHERE id=$1")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows(rideCols).AddRow(
			"r1", "D1", "Asha", "", 12.9, 77.5, 12.95, 77.55, "", "Bus", 40, "2025-01-10", "", nil, nil, created, created))

	r, err := s.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, models.VehicleBus, r.Vehicle)
	assert.Equal(t, 40, r.Seats)
	assert.Nil(t, r.Price)
	assert.Empty(t, r.PricingModel)
	assert.Equal(t, created, r.CreatedAt)
}

func TestPostgresGetNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM rides WHERE id=$1")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows(rideCols))

	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPostgresUpdateNotFound(t *testing.T) {
	s, mock := newMockStore(t)
	in := offer("D1", "2025-01-10")
	in.ID = "nope"
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE rides SET")).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}))

	_, err := s.Update(context.Background(), in)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestPostgresUpdateKeepsCreatedAt(t *testing.T) {
	s, mock := newMockStore(t)
	created := time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)
	in := offer("D1", "2025-01-10")
	in.ID = "r1"
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE rides SET")).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	got, err := s.Update(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, created, got.CreatedAt)
}

func TestPostgresDelete(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM rides WHERE id=$1")).
		WithArgs("r1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM rides WHERE id=$1")).
		WithArgs("r1").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Delete(context.Background(), "r1"))
	assert.ErrorIs(t, s.Delete(context.Background(), "r1"), models.ErrNotFound)
}

func TestPostgresListAllOrdersByDate(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY service_date DESC")).
		WillReturnRows(sqlmock.NewRows(rideCols).
			AddRow("r2", "D2", "", "", 1.0, 1.0, 2.0, 2.0, "", "Car", 1, "2025-02-01", "", "fixed", 50.0, now, now).
			AddRow("r1", "D1", "", "", 1.0, 1.0, 2.0, 2.0, "", "Car", 1, "2025-01-01", "", nil, nil, now, now))

	rides, err := s.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, rides, 2)
	assert.Equal(t, "r2", rides[0].ID)
	require.NotNil(t, rides[0].Price)
	assert.Equal(t, 50.0, *rides[0].Price)
	assert.Equal(t, models.PricingFixed, rides[0].PricingModel)
}

func TestPostgresUnavailable(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE service_date=$1")).
		WithArgs("2025-01-10").
		WillReturnError(errors.New("connection refused"))

	_, err := s.ListByDate(context.Background(), "2025-01-10")
	assert.ErrorIs(t, err, models.ErrUnavailable)
}

func TestPostgresMigrate(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS rides")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, s.Migrate(context.Background()))
}
