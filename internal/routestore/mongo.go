package routestore

import (
	"context"
	"errors"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/carpool-matching/internal/geo"
	"github.com/example/carpool-matching/internal/models"
)

const routesCollection = "driver_routes"

type geoJSONPoint struct {
	Type        string    `bson:"type"`
	Coordinates []float64 `bson:"coordinates"` // [lng, lat]
}

type routeDoc struct {
	DriverID    string         `bson:"driverId"`
	Date        string         `bson:"date"`
	RoutePoints []geoJSONPoint `bson:"routePoints"`
	UpdatedAt   time.Time      `bson:"updatedAt"`
}

func toDoc(driverID, date string, pts []models.GeoPoint, now time.Time) routeDoc {
	d := routeDoc{DriverID: driverID, Date: date, UpdatedAt: now, RoutePoints: make([]geoJSONPoint, len(pts))}
	for i, p := range pts {
		d.RoutePoints[i] = geoJSONPoint{Type: "Point", Coordinates: []float64{p.Longitude, p.Latitude}}
	}
	return d
}

func (d routeDoc) route() models.DriverRoute {
	pts := make([]models.GeoPoint, 0, len(d.RoutePoints))
	for _, g := range d.RoutePoints {
		if len(g.Coordinates) != 2 {
			continue
		}
		pts = append(pts, models.GeoPoint{Latitude: g.Coordinates[1], Longitude: g.Coordinates[0]})
	}
	return models.DriverRoute{DriverID: d.DriverID, Date: d.Date, Points: pts}
}

// Mongo stores one document per (driverId, date) with GeoJSON points under a
// 2dsphere index.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongo connects to uri and ensures the route indexes exist.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, models.Unavailable("mongo connect", err)
	}
	m := &Mongo{client: client, coll: client.Database(database).Collection(routesCollection)}
	if err := m.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return m, nil
}

func (m *Mongo) EnsureIndexes(ctx context.Context) error {
	_, err := m.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "routePoints", Value: "2dsphere"}}},
		{
			Keys:    bson.D{{Key: "driverId", Value: 1}, {Key: "date", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	})
	if err != nil {
		return models.Unavailable("mongo indexes", err)
	}
	return nil
}

func routeFilter(driverID, date string) bson.D {
	return bson.D{{Key: "driverId", Value: driverID}, {Key: "date", Value: date}}
}

func (m *Mongo) StoreRoute(ctx context.Context, driverID, date string, points []models.GeoPoint) error {
	clean, err := models.ValidateRoute(driverID, date, points)
	if err != nil {
		return err
	}
	doc := toDoc(driverID, date, clean, time.Now().UTC())
	_, err = m.coll.ReplaceOne(ctx, routeFilter(driverID, date), doc, options.Replace().SetUpsert(true))
	if err != nil {
		return models.Unavailable("store route", err)
	}
	return nil
}

func (m *Mongo) FindRoutesNear(ctx context.Context, q models.GeoPoint, radiusMeters float64, date string) ([]models.DriverRoute, error) {
	if err := checkQuery(q, date); err != nil {
		return nil, err
	}
	if radiusMeters <= 0 {
		return nil, nil
	}
	radians := math.Min(indexSlack(radiusMeters)/geo.EarthRadiusMeters, math.Pi)
	filter := bson.D{
		{Key: "date", Value: date},
		{Key: "routePoints", Value: bson.D{{Key: "$geoWithin", Value: bson.D{
			{Key: "$centerSphere", Value: bson.A{bson.A{q.Longitude, q.Latitude}, radians}},
		}}}},
	}
	cur, err := m.coll.Find(ctx, filter)
	if err != nil {
		return nil, models.Unavailable("find routes", err)
	}
	defer cur.Close(ctx)

	var out []models.DriverRoute
	for cur.Next(ctx) {
		var d routeDoc
		if err := cur.Decode(&d); err != nil {
			return nil, models.Unavailable("decode route", err)
		}
		out = append(out, d.route())
	}
	if err := cur.Err(); err != nil {
		return nil, models.Unavailable("find routes", err)
	}
	return keepNear(out, q, radiusMeters), nil
}

func (m *Mongo) GetRoute(ctx context.Context, driverID, date string) (models.DriverRoute, error) {
	var d routeDoc
	err := m.coll.FindOne(ctx, routeFilter(driverID, date)).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.DriverRoute{}, models.ErrNotFound
	}
	if err != nil {
		return models.DriverRoute{}, models.Unavailable("get route", err)
	}
	return d.route(), nil
}

func (m *Mongo) DeleteRoute(ctx context.Context, driverID, date string) error {
	res, err := m.coll.DeleteOne(ctx, routeFilter(driverID, date))
	if err != nil {
		return models.Unavailable("delete route", err)
	}
	if res.DeletedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (m *Mongo) Ping(ctx context.Context) error {
	if err := m.client.Ping(ctx, nil); err != nil {
		return models.Unavailable("mongo ping", err)
	}
	return nil
}

func (m *Mongo) Close(ctx context.Context) error { return m.client.Disconnect(ctx) }
