package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	ahotel "github.com/Strob0t/AppHub/internal/adapter/otel"
	"github.com/Strob0t/AppHub/internal/domain"
	"github.com/Strob0t/AppHub/internal/domain/app"
	"github.com/Strob0t/AppHub/internal/domain/installedapp"
	"github.com/Strob0t/AppHub/internal/port/database"
)

// ReconcileResult is the installed set of a tenant after reconciliation.
// Results may be shared between coalesced callers and must not be modified.
type ReconcileResult struct {
	Installed []installedapp.InstalledApp
	Created   []installedapp.InstalledApp
	Deleted   []installedapp.InstalledApp
}

// Changed reports whether the run wrote anything.
func (r *ReconcileResult) Changed() bool {
	return len(r.Created) > 0 || len(r.Deleted) > 0
}

// ReconcileService aligns a tenant's installed apps with the apps its
// subscriptions currently publish.
type ReconcileService struct {
	store   database.Store
	events  *EventPublisher
	metrics *ahotel.Metrics
	clock   clockwork.Clock
	group   singleflight.Group
}

// NewReconcileService creates a ReconcileService.
func NewReconcileService(store database.Store, events *EventPublisher) *ReconcileService {
	return &ReconcileService{store: store, events: events, clock: clockwork.NewRealClock()}
}

// SetMetrics attaches reconciliation counters.
func (s *ReconcileService) SetMetrics(m *ahotel.Metrics) {
	s.metrics = m
}

// SetClock replaces the clock used for run durations.
func (s *ReconcileService) SetClock(c clockwork.Clock) {
	s.clock = c
}

// Reconcile brings tenantID's installations in line with the published apps
// of subscribedTenantIDs in one transaction. Apps that left the desired set
// are removed only while reclaimable. Concurrent calls with the same tenant
// and subscription set share one run. Store failures roll back everything and
// report domain.ErrStoreUnavailable.
func (s *ReconcileService) Reconcile(ctx context.Context, tenantID string, subscribedTenantIDs []string) (*ReconcileResult, error) {
	subs := normalizeIDs(subscribedTenantIDs)
	key := tenantID + "|" + strings.Join(subs, ",")

	// The shared run must outlive any single caller; each caller still stops
	// waiting when its own context ends.
	runCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		return s.reconcile(runCtx, tenantID, subs)
	})
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("reconcile tenant %s: %w", tenantID, ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*ReconcileResult), nil
	}
}

func (s *ReconcileService) reconcile(ctx context.Context, tenantID string, subs []string) (res *ReconcileResult, err error) {
	ctx, span := ahotel.StartReconcileSpan(ctx, tenantID, len(subs))
	start := s.clock.Now()
	defer func() {
		created, deleted := 0, 0
		if res != nil {
			created, deleted = len(res.Created), len(res.Deleted)
		}
		s.metrics.RecordReconcile(ctx, created, deleted, s.clock.Since(start), err)
		ahotel.EndSpan(span, err)
	}()

	err = s.store.WithTx(ctx, func(q database.Queries) error {
		installed, err := q.ListInstalledApps(ctx, tenantID, "")
		if err != nil {
			return fmt.Errorf("load installed apps: %w", err)
		}

		var desired []app.App
		if len(subs) > 0 {
			desired, err = q.ListPublishedApps(ctx, subs)
			if err != nil {
				return fmt.Errorf("load published apps: %w", err)
			}
		}

		plan := installedapp.PlanReconcile(tenantID, installed, desired)
		res, err = applyPlan(ctx, q, plan)
		return err
	})
	if err != nil {
		return nil, unavailable(fmt.Sprintf("reconcile tenant %s", tenantID), err)
	}

	if res.Changed() {
		slog.InfoContext(ctx, "tenant reconciled",
			"tenant_id", tenantID,
			"created", len(res.Created),
			"deleted", len(res.Deleted),
		)
		s.events.Reconciled(ctx, tenantID, appIDs(res.Created), appIDs(res.Deleted))
	}
	return res, nil
}

// applyPlan writes plan through q. Deletes are conditional on the row still
// being reclaimable when the statement runs; a row used since it was loaded
// is re-read and kept. A create that finds the pair already present adopts
// the existing row.
func applyPlan(ctx context.Context, q database.Queries, plan installedapp.Plan) (*ReconcileResult, error) {
	res := &ReconcileResult{
		Installed: make([]installedapp.InstalledApp, 0, len(plan.Keep)+len(plan.Create)),
	}
	res.Installed = append(res.Installed, plan.Keep...)

	for i := range plan.Delete {
		row := plan.Delete[i]
		deleted, err := q.ReclaimInstalledApp(ctx, row.ID)
		if err != nil {
			return nil, fmt.Errorf("reclaim installed app %s: %w", row.ID, err)
		}
		if deleted {
			res.Deleted = append(res.Deleted, row)
			continue
		}
		current, err := q.GetInstalledApp(ctx, row.ID, row.TenantID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reload retained installed app %s: %w", row.ID, err)
		}
		res.Installed = append(res.Installed, *current)
	}

	for i := range plan.Create {
		row := plan.Create[i]
		id, created, err := q.CreateInstalledApp(ctx, &row)
		if err != nil {
			return nil, fmt.Errorf("create installed app for %s: %w", row.AppID, err)
		}
		if !created {
			existing, err := q.GetInstalledApp(ctx, id, row.TenantID)
			if err != nil {
				return nil, fmt.Errorf("identify installed app %s: %w", id, err)
			}
			res.Installed = append(res.Installed, *existing)
			continue
		}
		row.ID = id
		res.Installed = append(res.Installed, row)
		res.Created = append(res.Created, row)
	}
	return res, nil
}

// unavailable wraps err so callers see domain.ErrStoreUnavailable.
func unavailable(op string, err error) error {
	if errors.Is(err, domain.ErrStoreUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}

// normalizeIDs returns ids sorted, deduplicated and without empty entries.
func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func appIDs(rows []installedapp.InstalledApp) []string {
	ids := make([]string, 0, len(rows))
	for i := range rows {
		ids = append(ids, rows[i].AppID)
	}
	return ids
}
