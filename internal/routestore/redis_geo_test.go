package routestore

import (
	"context"
	"math/rand"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/carpool-matching/internal/models"
)

func newRedisGeo(t *testing.T) (*RedisGeo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisGeoFromClient(client, "test"), mr
}

func TestRedisGeoContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		s, _ := newRedisGeo(t)
		return s
	})
}

func TestRedisGeoMatchesScan(t *testing.T) {
	ctx := context.Background()
	r := rand.New(rand.NewSource(7))
	date := "2025-01-10"
	s, _ := newRedisGeo(t)
	oracle := NewMemory()
	for id, pts := range randomRoutes(r, 80, pt(40.71, -74.0)) {
		require.NoError(t, s.StoreRoute(ctx, id, date, pts))
		require.NoError(t, oracle.StoreRoute(ctx, id, date, pts))
	}
	for i := 0; i < 100; i++ {
		q := pt(40.71+r.Float64()*0.6-0.3, -74.0+r.Float64()*0.6-0.3)
		radius := []float64{200, 1500, 5000, 20000}[i%4]

		got, err := s.FindRoutesNear(ctx, q, radius, date)
		require.NoError(t, err)
		want, err := oracle.Scan(ctx, q, radius, date)
		require.NoError(t, err)
		assert.Equal(t, driverIDs(want), driverIDs(got), "query %+v radius %v", q, radius)
	}
}

func TestRedisGeoReplaceRemovesOldMembers(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisGeo(t)
	require.NoError(t, s.StoreRoute(ctx, "D1", "2025-01-10", []models.GeoPoint{pt(1, 1), pt(1, 1.01), pt(1, 1.02)}))
	require.NoError(t, s.StoreRoute(ctx, "D1", "2025-01-10", []models.GeoPoint{pt(2, 2)}))

	members, err := mr.ZMembers("test:geo:2025-01-10")
	require.NoError(t, err)
	assert.Equal(t, []string{"D1#0"}, members)

	require.NoError(t, s.DeleteRoute(ctx, "D1", "2025-01-10"))
	assert.False(t, mr.Exists("test:pts:2025-01-10:D1"))
}

func TestRedisGeoPolarPointsStayOutOfGeoSet(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisGeo(t)
	require.NoError(t, s.StoreRoute(ctx, "P1", "2025-01-10", []models.GeoPoint{pt(80, 1), pt(88, 1)}))

	members, err := mr.ZMembers("test:geo:2025-01-10")
	require.NoError(t, err)
	assert.Equal(t, []string{"P1#0"}, members)
	polar, err := mr.Members("test:polar:2025-01-10")
	require.NoError(t, err)
	assert.Equal(t, []string{"P1"}, polar)

	r, err := s.GetRoute(ctx, "P1", "2025-01-10")
	require.NoError(t, err)
	assert.Len(t, r.Points, 2)
}

func TestRedisGeoDriverIDWithHash(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisGeo(t)
	require.NoError(t, s.StoreRoute(ctx, "fleet#7", "2025-01-10", []models.GeoPoint{pt(3, 3)}))
	routes, err := s.FindRoutesNear(ctx, pt(3, 3), 100, "2025-01-10")
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, "fleet#7", routes[0].DriverID)
}

func TestRedisGeoUnavailable(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisGeo(t)
	mr.Close()

	err := s.StoreRoute(ctx, "D1", "2025-01-10", []models.GeoPoint{pt(1, 1)})
	assert.ErrorIs(t, err, models.ErrUnavailable)
	_, err = s.FindRoutesNear(ctx, pt(1, 1), 100, "2025-01-10")
	assert.ErrorIs(t, err, models.ErrUnavailable)
	assert.ErrorIs(t, s.Ping(ctx), models.ErrUnavailable)
}
