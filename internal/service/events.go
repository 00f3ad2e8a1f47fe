// Package service implements AppHub business logic on top of ports.
package service

import (
	"context"
	"encoding/json"
	"log/slog"

	ahotel "github.com/Strob0t/AppHub/internal/adapter/otel"
	"github.com/Strob0t/AppHub/internal/adapter/ws"
	"github.com/Strob0t/AppHub/internal/domain/installedapp"
	"github.com/Strob0t/AppHub/internal/port/broadcast"
	"github.com/Strob0t/AppHub/internal/port/messagequeue"
	"github.com/Strob0t/AppHub/internal/resilience"
)

// EventPublisher emits committed changes to the message queue and to the
// websocket clients of the affected tenant. Delivery is best-effort: failures
// are logged and counted, never returned to the caller.
type EventPublisher struct {
	queue   messagequeue.Queue
	hub     broadcast.Broadcaster
	breaker *resilience.Breaker
	metrics *ahotel.Metrics
}

// NewEventPublisher creates an EventPublisher. Either sink may be nil.
func NewEventPublisher(queue messagequeue.Queue, hub broadcast.Broadcaster) *EventPublisher {
	return &EventPublisher{queue: queue, hub: hub}
}

// SetBreaker guards queue publishing with a circuit breaker.
func (p *EventPublisher) SetBreaker(b *resilience.Breaker) {
	p.breaker = b
}

// SetMetrics attaches counters for dropped events.
func (p *EventPublisher) SetMetrics(m *ahotel.Metrics) {
	p.metrics = m
}

// InstalledAppChanged publishes a row-level mutation on subject and tells the
// tenant's clients to refetch.
func (p *EventPublisher) InstalledAppChanged(ctx context.Context, subject, reason string, ia *installedapp.InstalledApp) {
	if p == nil || ia == nil {
		return
	}
	p.publish(ctx, subject, messagequeue.InstalledAppPayload{
		InstalledAppID:   ia.ID,
		TenantID:         ia.TenantID,
		AppID:            ia.AppID,
		AppOwnerTenantID: ia.AppOwnerTenantID,
		IsPinned:         ia.IsPinned,
		LastUsedAt:       ia.LastUsedAt,
	})
	p.push(ctx, ia.TenantID, ws.EventInstalledAppsChanged, ws.InstalledAppsChangedEvent{
		TenantID:       ia.TenantID,
		Reason:         reason,
		InstalledAppID: ia.ID,
	})
}

// Reconciled publishes the outcome of a reconciliation that changed rows.
func (p *EventPublisher) Reconciled(ctx context.Context, tenantID string, created, deleted []string) {
	if p == nil {
		return
	}
	p.publish(ctx, messagequeue.SubjectReconciled, messagequeue.ReconciledPayload{
		TenantID:      tenantID,
		CreatedAppIDs: created,
		DeletedAppIDs: deleted,
	})
	p.push(ctx, tenantID, ws.EventInstalledAppsChanged, ws.InstalledAppsChangedEvent{
		TenantID: tenantID,
		Reason:   "reconciled",
	})
}

// TenantRenamed pushes the new name to the tenant's clients.
func (p *EventPublisher) TenantRenamed(ctx context.Context, tenantID, name string) {
	if p == nil {
		return
	}
	p.push(ctx, tenantID, ws.EventTenantRenamed, ws.TenantRenamedEvent{TenantID: tenantID, Name: name})
}

func (p *EventPublisher) publish(ctx context.Context, subject string, payload any) {
	if p.queue == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "marshal event", "subject", subject, "error", err)
		return
	}

	send := func() error { return p.queue.Publish(ctx, subject, data) }
	if p.breaker != nil {
		err = p.breaker.Execute(send)
	} else {
		err = send()
	}
	if err != nil {
		slog.WarnContext(ctx, "event dropped", "subject", subject, "error", err)
		p.metrics.RecordEventDropped(ctx, subject)
	}
}

func (p *EventPublisher) push(ctx context.Context, tenantID, eventType string, payload any) {
	if p.hub == nil {
		return
	}
	p.hub.BroadcastTenantEvent(ctx, tenantID, eventType, payload)
}
