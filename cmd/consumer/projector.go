package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/carpool-matching/internal/ingest"
	"github.com/example/carpool-matching/internal/models"
	"github.com/example/carpool-matching/internal/observability"
)

const maxReadBackoff = 30 * time.Second

// RouteApplier is the subset of a route store the projector writes to.
type RouteApplier interface {
	StoreRoute(ctx context.Context, driverID, date string, points []models.GeoPoint) error
	DeleteRoute(ctx context.Context, driverID, date string) error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// projector replays route events from the topic into a route store. Offsets
// are committed after the event is applied or given up on, so a crash
// replays at most the uncommitted tail. Replays are harmless: stores replace
// and deletes of missing routes succeed.
type projector struct {
	reader   messageReader
	store    RouteApplier
	attempts int
	delay    time.Duration
	logger   *slog.Logger
}

func (p *projector) run(ctx context.Context) error {
	backoff := time.Second
	for {
		m, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Warn("kafka read error", "err", err, "backoff", backoff)
			if !sleep(ctx, backoff) {
				return nil
			}
			backoff = min(backoff*2, maxReadBackoff)
			continue
		}
		backoff = time.Second

		p.handle(ctx, m)
		if err := p.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Warn("kafka commit failed", "partition", m.Partition, "offset", m.Offset, "err", err)
		}
	}
}

func (p *projector) handle(ctx context.Context, m kafka.Message) {
	ev, err := ingest.DecodeRouteEvent(m.Value)
	if err != nil {
		observability.EventsApplyFailed.Inc()
		p.logger.Warn("invalid route event", "partition", m.Partition, "offset", m.Offset, "err", err)
		return
	}
	if err := applyWithRetry(ctx, p.store, ev, p.attempts, p.delay); err != nil {
		observability.EventsApplyFailed.Inc()
		p.logger.Error("route event not applied", "type", ev.Type, "driverId", ev.DriverID, "date", ev.Date, "err", err)
		return
	}
	observability.EventsApplied.WithLabelValues(string(ev.Type)).Inc()
	p.logger.Debug("route event applied", "type", ev.Type, "driverId", ev.DriverID, "date", ev.Date)
}

// applyWithRetry applies ev, retrying store failures with exponential
// backoff. Invalid events are not retried.
func applyWithRetry(ctx context.Context, store RouteApplier, ev models.RouteEvent, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = apply(ctx, store, ev); err == nil || errors.Is(err, models.ErrInvalidInput) {
			return err
		}
		if i == attempts-1 || !sleep(ctx, delay) {
			break
		}
		delay *= 2
	}
	return err
}

func apply(ctx context.Context, store RouteApplier, ev models.RouteEvent) error {
	switch ev.Type {
	case models.RouteStored:
		return store.StoreRoute(ctx, ev.DriverID, ev.Date, ev.Points)
	case models.RouteDeleted:
		err := store.DeleteRoute(ctx, ev.DriverID, ev.Date)
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	default:
		return models.Invalid("unknown route event type %q", ev.Type)
	}
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
