package routestore

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/example/carpool-matching/internal/geo"
	"github.com/example/carpool-matching/internal/models"
)

const (
	maxTxRetries = 5
	// maxGeoLatitude is the largest |latitude| GEOADD accepts.
	maxGeoLatitude = 85.05112878
)

// RedisGeo implements Store using Redis GEO commands. Every point of every
// route of a date is a member of one GEO set, named driverID#index; the
// ordered points of a route live as JSON under their own key. Points beyond
// maxGeoLatitude cannot be indexed, so routes holding any are listed in a
// per-date polar set and checked on every query.
type RedisGeo struct {
	client *redis.Client
	prefix string
}

func NewRedisGeo(addr, password, prefix string) *RedisGeo {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return NewRedisGeoFromClient(c, prefix)
}

func NewRedisGeoFromClient(c *redis.Client, prefix string) *RedisGeo {
	if prefix == "" {
		prefix = "routes"
	}
	return &RedisGeo{client: c, prefix: prefix}
}

func (r *RedisGeo) geoKey(date string) string { return r.prefix + ":geo:" + date }

func (r *RedisGeo) polarKey(date string) string { return r.prefix + ":polar:" + date }

func (r *RedisGeo) pointsKey(date, driverID string) string {
	return r.prefix + ":pts:" + date + ":" + driverID
}

func member(driverID string, i int) string { return driverID + "#" + strconv.Itoa(i) }

func driverOf(member string) string {
	if i := strings.LastIndexByte(member, '#'); i >= 0 {
		return member[:i]
	}
	return member
}

func (r *RedisGeo) StoreRoute(ctx context.Context, driverID, date string, points []models.GeoPoint) error {
	clean, err := models.ValidateRoute(driverID, date, points)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(clean)
	if err != nil {
		return err
	}
	locs := make([]*redis.GeoLocation, 0, len(clean))
	polar := false
	for i, p := range clean {
		if math.Abs(p.Latitude) > maxGeoLatitude {
			polar = true
			continue
		}
		locs = append(locs, &redis.GeoLocation{Name: member(driverID, i), Longitude: p.Longitude, Latitude: p.Latitude})
	}
	gk, pk := r.geoKey(date), r.pointsKey(date, driverID)
	_, err = r.replace(ctx, "store route", driverID, date, func(pipe redis.Pipeliner) {
		if len(locs) > 0 {
			pipe.GeoAdd(ctx, gk, locs...)
		}
		if polar {
			pipe.SAdd(ctx, r.polarKey(date), driverID)
		}
		pipe.Set(ctx, pk, payload, 0)
	})
	return err
}

func (r *RedisGeo) DeleteRoute(ctx context.Context, driverID, date string) error {
	found, err := r.replace(ctx, "delete route", driverID, date, nil)
	if err != nil {
		return err
	}
	if !found {
		return models.ErrNotFound
	}
	return nil
}

// replace removes the current members of (driverID, date) and applies write
// inside one MULTI, retrying when a concurrent writer touches the route key.
// A nil write deletes the route.
func (r *RedisGeo) replace(ctx context.Context, op, driverID, date string, write func(redis.Pipeliner)) (bool, error) {
	gk, pk := r.geoKey(date), r.pointsKey(date, driverID)
	var found bool
	txf := func(tx *redis.Tx) error {
		found = false
		var old []models.GeoPoint
		raw, err := tx.Get(ctx, pk).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(raw, &old); err != nil {
				return err
			}
			found = true
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if len(old) > 0 {
				members := make([]interface{}, len(old))
				for i := range old {
					members[i] = member(driverID, i)
				}
				pipe.ZRem(ctx, gk, members...)
			}
			pipe.SRem(ctx, r.polarKey(date), driverID)
			if write != nil {
				write(pipe)
			} else {
				pipe.Del(ctx, pk)
			}
			return nil
		})
		return err
	}
	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, pk)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return false, models.Unavailable(op, err)
		}
		return found, nil
	}
	return false, models.Unavailable(op, redis.TxFailedErr)
}

func (r *RedisGeo) FindRoutesNear(ctx context.Context, q models.GeoPoint, radiusMeters float64, date string) ([]models.DriverRoute, error) {
	if err := checkQuery(q, date); err != nil {
		return nil, err
	}
	if radiusMeters <= 0 {
		return nil, nil
	}
	// GEORADIUS refuses polar centers: search from the nearest accepted
	// latitude with the radius grown by the distance moved.
	center, radius := q, radiusMeters
	if math.Abs(q.Latitude) > maxGeoLatitude {
		center.Latitude = math.Copysign(maxGeoLatitude, q.Latitude)
		radius += geo.Haversine(q, center)
	}
	pipe := r.client.Pipeline()
	near := pipe.GeoRadius(ctx, r.geoKey(date), center.Longitude, center.Latitude, &redis.GeoRadiusQuery{
		Radius: indexSlack(radius),
		Unit:   "m",
	})
	polar := pipe.SMembers(ctx, r.polarKey(date))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, models.Unavailable("geo radius", err)
	}
	seen := make(map[string]struct{})
	var drivers, keys []string
	add := func(id string) {
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		drivers = append(drivers, id)
		keys = append(keys, r.pointsKey(date, id))
	}
	for _, g := range near.Val() {
		add(driverOf(g.Name))
	}
	for _, id := range polar.Val() {
		add(id)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, models.Unavailable("load routes", err)
	}
	out := make([]models.DriverRoute, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue // deleted between the two reads
		}
		var pts []models.GeoPoint
		if err := json.Unmarshal([]byte(s), &pts); err != nil {
			continue
		}
		out = append(out, models.DriverRoute{DriverID: drivers[i], Date: date, Points: pts})
	}
	return keepNear(out, q, radiusMeters), nil
}

func (r *RedisGeo) GetRoute(ctx context.Context, driverID, date string) (models.DriverRoute, error) {
	raw, err := r.client.Get(ctx, r.pointsKey(date, driverID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.DriverRoute{}, models.ErrNotFound
	}
	if err != nil {
		return models.DriverRoute{}, models.Unavailable("get route", err)
	}
	var pts []models.GeoPoint
	if err := json.Unmarshal(raw, &pts); err != nil {
		return models.DriverRoute{}, models.Unavailable("decode route", err)
	}
	return models.DriverRoute{DriverID: driverID, Date: date, Points: pts}, nil
}

func (r *RedisGeo) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return models.Unavailable("redis ping", err)
	}
	return nil
}

func (r *RedisGeo) Close() error { return r.client.Close() }
