package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "apphub"

// Metrics holds all AppHub metric instruments.
type Metrics struct {
	ReconcileRuns     metric.Int64Counter
	ReconcileCreated  metric.Int64Counter
	ReconcileDeleted  metric.Int64Counter
	ReconcileFailures metric.Int64Counter
	ReconcileDuration metric.Float64Histogram
	Installs          metric.Int64Counter
	Uninstalls        metric.Int64Counter
	EventsDropped     metric.Int64Counter
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return newMetrics(otel.Meter(meterName))
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.ReconcileRuns, err = meter.Int64Counter("apphub.reconcile.runs",
		metric.WithDescription("Number of reconciliation runs"))
	if err != nil {
		return nil, err
	}

	m.ReconcileCreated, err = meter.Int64Counter("apphub.reconcile.created",
		metric.WithDescription("Installed apps created by reconciliation"))
	if err != nil {
		return nil, err
	}

	m.ReconcileDeleted, err = meter.Int64Counter("apphub.reconcile.deleted",
		metric.WithDescription("Installed apps reclaimed by reconciliation"))
	if err != nil {
		return nil, err
	}

	m.ReconcileFailures, err = meter.Int64Counter("apphub.reconcile.failures",
		metric.WithDescription("Reconciliation runs rolled back"))
	if err != nil {
		return nil, err
	}

	m.ReconcileDuration, err = meter.Float64Histogram("apphub.reconcile.duration_seconds",
		metric.WithDescription("Reconciliation duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.Installs, err = meter.Int64Counter("apphub.installs",
		metric.WithDescription("Explicit installs that created a row"))
	if err != nil {
		return nil, err
	}

	m.Uninstalls, err = meter.Int64Counter("apphub.uninstalls",
		metric.WithDescription("Explicit uninstalls"))
	if err != nil {
		return nil, err
	}

	m.EventsDropped, err = meter.Int64Counter("apphub.events.dropped",
		metric.WithDescription("Domain events that could not be published"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordReconcile records one reconciliation run. A nil receiver is a no-op.
func (m *Metrics) RecordReconcile(ctx context.Context, created, deleted int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.Bool("error", err != nil))
	m.ReconcileRuns.Add(ctx, 1, attrs)
	m.ReconcileDuration.Record(ctx, elapsed.Seconds(), attrs)
	if err != nil {
		m.ReconcileFailures.Add(ctx, 1)
		return
	}
	m.ReconcileCreated.Add(ctx, int64(created))
	m.ReconcileDeleted.Add(ctx, int64(deleted))
}

// RecordInstall counts an install that created a row.
func (m *Metrics) RecordInstall(ctx context.Context) {
	if m != nil {
		m.Installs.Add(ctx, 1)
	}
}

// RecordUninstall counts a successful uninstall.
func (m *Metrics) RecordUninstall(ctx context.Context) {
	if m != nil {
		m.Uninstalls.Add(ctx, 1)
	}
}

// RecordEventDropped counts an event lost to a broker failure.
func (m *Metrics) RecordEventDropped(ctx context.Context, subject string) {
	if m != nil {
		m.EventsDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("subject", subject)))
	}
}
