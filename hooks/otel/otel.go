// Package otelhooks records cache events as OpenTelemetry metrics.
package otelhooks

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/unkn0wn-root/fallcache"
)

const meterName = "github.com/unkn0wn-root/fallcache"

type Hooks struct {
	modeSelected metric.Int64Counter
	remoteErrors metric.Int64Counter
	unsupported  metric.Int64Counter
	lockAcquired metric.Int64Counter
	lockTimeouts metric.Int64Counter
	lockWait     metric.Int64Histogram
	localCleared metric.Int64Counter
}

var _ fallcache.Hooks = (*Hooks)(nil)

// New registers the instruments on mp, or on the global provider when mp is nil.
func New(mp metric.MeterProvider) (*Hooks, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)
	h := &Hooks{}
	var err, errs error

	h.modeSelected, err = meter.Int64Counter("fallcache.mode.selected",
		metric.WithDescription("Backend mode chosen at startup"))
	errs = errors.Join(errs, err)

	h.remoteErrors, err = meter.Int64Counter("fallcache.remote.errors",
		metric.WithDescription("Failed remote backend calls"))
	errs = errors.Join(errs, err)

	h.unsupported, err = meter.Int64Counter("fallcache.unsupported",
		metric.WithDescription("Calls refused because the mode cannot serve them"))
	errs = errors.Join(errs, err)

	h.lockAcquired, err = meter.Int64Counter("fallcache.lock.acquired",
		metric.WithDescription("Lock acquisitions"))
	errs = errors.Join(errs, err)

	h.lockTimeouts, err = meter.Int64Counter("fallcache.lock.timeouts",
		metric.WithDescription("Lock attempts that gave up"))
	errs = errors.Join(errs, err)

	h.lockWait, err = meter.Int64Histogram("fallcache.lock.wait_ms",
		metric.WithDescription("Time spent waiting for a lock"),
		metric.WithUnit("ms"))
	errs = errors.Join(errs, err)

	h.localCleared, err = meter.Int64Counter("fallcache.local.cleared",
		metric.WithDescription("Local store resets"))
	errs = errors.Join(errs, err)

	if errs != nil {
		return nil, errs
	}
	return h, nil
}

func (h *Hooks) ModeSelected(mode fallcache.Mode, probeErr error) {
	h.modeSelected.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("mode", mode.String()),
		attribute.Bool("probe_failed", probeErr != nil),
	))
}

// RemoteError labels by op only; keys are unbounded.
func (h *Hooks) RemoteError(op, _ string, _ error) {
	h.remoteErrors.Add(context.Background(), 1, metric.WithAttributes(attribute.String("op", op)))
}

func (h *Hooks) Unsupported(op string, mode fallcache.Mode) {
	h.unsupported.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("mode", mode.String()),
	))
}

func (h *Hooks) LockAcquired(_ string, _ int, waited time.Duration) {
	ctx := context.Background()
	h.lockAcquired.Add(ctx, 1)
	h.lockWait.Record(ctx, waited.Milliseconds(), metric.WithAttributes(attribute.String("outcome", "acquired")))
}

func (h *Hooks) LockTimedOut(_ string, _ int, waited time.Duration) {
	ctx := context.Background()
	h.lockTimeouts.Add(ctx, 1)
	h.lockWait.Record(ctx, waited.Milliseconds(), metric.WithAttributes(attribute.String("outcome", "timeout")))
}

func (h *Hooks) LocalCleared() {
	h.localCleared.Add(context.Background(), 1)
}
