package service

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	ahotel "github.com/Strob0t/AppHub/internal/adapter/otel"
	"github.com/Strob0t/AppHub/internal/domain"
	"github.com/Strob0t/AppHub/internal/domain/installedapp"
	"github.com/Strob0t/AppHub/internal/port/database"
	"github.com/Strob0t/AppHub/internal/port/messagequeue"
)

// InstalledAppService handles explicit installed-app mutations. Each runs in
// its own transaction and emits an event once committed.
type InstalledAppService struct {
	store   database.Store
	events  *EventPublisher
	metrics *ahotel.Metrics
	clock   clockwork.Clock
}

// NewInstalledAppService creates an InstalledAppService.
func NewInstalledAppService(store database.Store, events *EventPublisher) *InstalledAppService {
	return &InstalledAppService{store: store, events: events, clock: clockwork.NewRealClock()}
}

// SetMetrics attaches install/uninstall counters.
func (s *InstalledAppService) SetMetrics(m *ahotel.Metrics) {
	s.metrics = m
}

// SetClock replaces the clock used for usage timestamps.
func (s *InstalledAppService) SetClock(c clockwork.Clock) {
	s.clock = c
}

// Install installs appID into tenantID on a user's request. It fails with
// ErrNotFound for unknown or unpublished apps and ErrForbidden for private
// ones. Installing an app that is already installed succeeds without
// touching the install counter. The returned bool reports whether a row was
// created.
func (s *InstalledAppService) Install(ctx context.Context, appID, tenantID string) (_ *installedapp.InstalledApp, created bool, err error) {
	ctx, span := ahotel.StartMutationSpan(ctx, "install", tenantID)
	defer func() { ahotel.EndSpan(span, err) }()

	if appID == "" {
		return nil, false, fmt.Errorf("app_id is required: %w", domain.ErrValidation)
	}

	var row installedapp.InstalledApp
	err = s.store.WithTx(ctx, func(q database.Queries) error {
		a, err := q.GetApp(ctx, appID)
		if err != nil {
			return err
		}
		if err := a.CheckInstallable(); err != nil {
			return err
		}

		row = installedapp.NewUserInstalled(tenantID, a, s.clock.Now())
		id, ok, err := q.CreateInstalledApp(ctx, &row)
		if err != nil {
			return err
		}
		row.ID = id
		created = ok
		if !created {
			existing, err := q.GetInstalledApp(ctx, id, tenantID)
			if err != nil {
				return err
			}
			row = *existing
			return nil
		}
		return q.IncrementInstallCount(ctx, appID)
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		s.metrics.RecordInstall(ctx)
		s.events.InstalledAppChanged(ctx, messagequeue.SubjectInstalled, "installed", &row)
	}
	return &row, created, nil
}

// Uninstall removes an installation of tenantID. The owner tenant of an app
// cannot uninstall it.
func (s *InstalledAppService) Uninstall(ctx context.Context, installedAppID, tenantID string) (err error) {
	ctx, span := ahotel.StartMutationSpan(ctx, "uninstall", tenantID)
	defer func() { ahotel.EndSpan(span, err) }()

	var row *installedapp.InstalledApp
	err = s.store.WithTx(ctx, func(q database.Queries) error {
		var err error
		row, err = q.GetInstalledApp(ctx, installedAppID, tenantID)
		if err != nil {
			return err
		}
		if row.OwnedByInstaller() {
			return fmt.Errorf("tenant %s owns app %s: %w", tenantID, row.AppID, domain.ErrInvalidOperation)
		}
		return q.DeleteInstalledApp(ctx, row.ID)
	})
	if err != nil {
		return err
	}

	s.metrics.RecordUninstall(ctx)
	s.events.InstalledAppChanged(ctx, messagequeue.SubjectUninstalled, "uninstalled", row)
	return nil
}

// SetPinned pins or unpins an installation. Setting the current value is a
// no-op.
func (s *InstalledAppService) SetPinned(ctx context.Context, installedAppID, tenantID string, pinned bool) (_ *installedapp.InstalledApp, err error) {
	ctx, span := ahotel.StartMutationSpan(ctx, "pin", tenantID)
	defer func() { ahotel.EndSpan(span, err) }()

	var (
		row     *installedapp.InstalledApp
		changed bool
	)
	err = s.store.WithTx(ctx, func(q database.Queries) error {
		var err error
		row, err = q.GetInstalledApp(ctx, installedAppID, tenantID)
		if err != nil {
			return err
		}
		if row.IsPinned == pinned {
			return nil
		}
		if err := q.UpdateInstalledApp(ctx, row.ID, installedapp.Update{IsPinned: &pinned}); err != nil {
			return err
		}
		row.IsPinned = pinned
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.events.InstalledAppChanged(ctx, messagequeue.SubjectPinned, "pinned", row)
	}
	return row, nil
}

// MarkUsed records that a user opened the installation now. A used row is
// never removed by reconciliation.
func (s *InstalledAppService) MarkUsed(ctx context.Context, installedAppID, tenantID string) (_ *installedapp.InstalledApp, err error) {
	ctx, span := ahotel.StartMutationSpan(ctx, "use", tenantID)
	defer func() { ahotel.EndSpan(span, err) }()

	now := s.clock.Now().UTC()
	var row *installedapp.InstalledApp
	err = s.store.WithTx(ctx, func(q database.Queries) error {
		var err error
		row, err = q.GetInstalledApp(ctx, installedAppID, tenantID)
		if err != nil {
			return err
		}
		if err := q.UpdateInstalledApp(ctx, row.ID, installedapp.Update{LastUsedAt: &now}); err != nil {
			return err
		}
		row.LastUsedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.InstalledAppChanged(ctx, messagequeue.SubjectUsed, "used", row)
	return row, nil
}
