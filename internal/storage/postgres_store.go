package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/example/carpool-matching/internal/models"
)

//go:embed migrations/*.sql
var migrations embed.FS

const rideColumns = `id, driver_id, name, phone, pickup_lat, pickup_lng, dest_lat, dest_lng,
	encoded_polyline, vehicle, seats, service_date, depart_time, pricing_model, price, created_at, updated_at`

type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, models.Unavailable("postgres ping", err)
	}
	return NewPostgresStoreFromDB(db), nil
}

func NewPostgresStoreFromDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Migrate applies the embedded schema files in name order. Every file is
// idempotent.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(migrations, "migrations")
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, e := range entries {
		body, err := migrations.ReadFile("migrations/" + e.Name())
		if err != nil {
			return err
		}
		if _, err := p.db.ExecContext(ctx, string(body)); err != nil {
			return models.Unavailable("migrate "+e.Name(), err)
		}
	}
	return nil
}

func (p *PostgresStore) Create(ctx context.Context, r models.RideOffer) (models.RideOffer, error) {
	if err := r.Validate(); err != nil {
		return models.RideOffer{}, err
	}
	r.ID = uuid.NewString()
	r.CreatedAt = p.now().UTC()
	r.UpdatedAt = r.CreatedAt
	_, err := p.db.ExecContext(ctx, `INSERT INTO rides(`+rideColumns+`)
		VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		r.ID, r.DriverID, r.Name, r.Phone, r.PickupInfo.Latitude, r.PickupInfo.Longitude,
		r.DestInfo.Latitude, r.DestInfo.Longitude, r.EncodedPolyline, string(r.Vehicle), r.Seats,
		r.Date, r.Time, nullPricing(r.PricingModel), nullPrice(r.Price), r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return models.RideOffer{}, models.Unavailable("insert ride", err)
	}
	return r, nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (models.RideOffer, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id=$1`, id)
	r, err := scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RideOffer{}, models.ErrNotFound
	}
	if err != nil {
		return models.RideOffer{}, models.Unavailable("get ride", err)
	}
	return r, nil
}

func (p *PostgresStore) Update(ctx context.Context, r models.RideOffer) (models.RideOffer, error) {
	if err := r.Validate(); err != nil {
		return models.RideOffer{}, err
	}
	r.UpdatedAt = p.now().UTC()
	err := p.db.QueryRowContext(ctx, `UPDATE rides SET driver_id=$1, name=$2, phone=$3, pickup_lat=$4, pickup_lng=$5,
		dest_lat=$6, dest_lng=$7, encoded_polyline=$8, vehicle=$9, seats=$10, service_date=$11, depart_time=$12,
		pricing_model=$13, price=$14, updated_at=$15 WHERE id=$16 RETURNING created_at`,
		r.DriverID, r.Name, r.Phone, r.PickupInfo.Latitude, r.PickupInfo.Longitude,
		r.DestInfo.Latitude, r.DestInfo.Longitude, r.EncodedPolyline, string(r.Vehicle), r.Seats,
		r.Date, r.Time, nullPricing(r.PricingModel), nullPrice(r.Price), r.UpdatedAt, r.ID).Scan(&r.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.RideOffer{}, models.ErrNotFound
	}
	if err != nil {
		return models.RideOffer{}, models.Unavailable("update ride", err)
	}
	return r, nil
}

func (p *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM rides WHERE id=$1`, id)
	if err != nil {
		return models.Unavailable("delete ride", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.Unavailable("delete ride", err)
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ListAll(ctx context.Context) ([]models.RideOffer, error) {
	return p.list(ctx, `SELECT `+rideColumns+` FROM rides ORDER BY service_date DESC, created_at DESC, id`)
}

func (p *PostgresStore) ListByDate(ctx context.Context, date string) ([]models.RideOffer, error) {
	return p.list(ctx, `SELECT `+rideColumns+` FROM rides WHERE service_date=$1 ORDER BY created_at DESC, id`, date)
}

func (p *PostgresStore) list(ctx context.Context, query string, args ...any) ([]models.RideOffer, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, models.Unavailable("list rides", err)
	}
	defer rows.Close()
	var out []models.RideOffer
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, models.Unavailable("scan ride", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, models.Unavailable("list rides", err)
	}
	return out, nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	if err := p.db.PingContext(ctx); err != nil {
		return models.Unavailable("postgres ping", err)
	}
	return nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

type scanner interface {
	Scan(dest ...any) error
}

func scanRide(s scanner) (models.RideOffer, error) {
	var (
		r       models.RideOffer
		vehicle string
		pricing sql.NullString
		price   sql.NullFloat64
	)
	err := s.Scan(&r.ID, &r.DriverID, &r.Name, &r.Phone, &r.PickupInfo.Latitude, &r.PickupInfo.Longitude,
		&r.DestInfo.Latitude, &r.DestInfo.Longitude, &r.EncodedPolyline, &vehicle, &r.Seats,
		&r.Date, &r.Time, &pricing, &price, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return models.RideOffer{}, err
	}
	r.Vehicle = models.Vehicle(vehicle)
	if pricing.Valid {
		r.PricingModel = models.PricingModel(pricing.String)
	}
	if price.Valid {
		v := price.Float64
		r.Price = &v
	}
	return r, nil
}

func nullPricing(m models.PricingModel) sql.NullString {
	return sql.NullString{String: string(m), Valid: m != ""}
}

func nullPrice(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}
