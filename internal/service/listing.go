package service

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/Strob0t/AppHub/internal/domain"
	"github.com/Strob0t/AppHub/internal/domain/account"
	"github.com/Strob0t/AppHub/internal/domain/app"
	"github.com/Strob0t/AppHub/internal/domain/installedapp"
	"github.com/Strob0t/AppHub/internal/domain/tenant"
	"github.com/Strob0t/AppHub/internal/port/database"
	"github.com/Strob0t/AppHub/internal/port/subscription"
)

// listStrategy produces the installed rows an account of one role sees.
type listStrategy interface {
	rows(ctx context.Context, acct *account.Account, appID string) ([]installedapp.InstalledApp, error)
}

// developerStrategy reads the tenant's rows as stored.
type developerStrategy struct {
	store database.Store
}

func (d developerStrategy) rows(ctx context.Context, acct *account.Account, appID string) ([]installedapp.InstalledApp, error) {
	return d.store.ListInstalledApps(ctx, acct.CurrentTenantID, appID)
}

// normalStrategy reconciles the tenant against the account's subscriptions
// before reading.
type normalStrategy struct {
	subs       subscription.Resolver
	reconciler *ReconcileService
}

func (n normalStrategy) rows(ctx context.Context, acct *account.Account, appID string) ([]installedapp.InstalledApp, error) {
	subs, err := n.subs.SubscribedTenantIDs(ctx, acct.ID)
	if err != nil {
		return nil, err
	}
	res, err := n.reconciler.Reconcile(ctx, acct.CurrentTenantID, subs)
	if err != nil {
		return nil, err
	}
	if appID == "" {
		return res.Installed, nil
	}
	var out []installedapp.InstalledApp
	for i := range res.Installed {
		if res.Installed[i].AppID == appID {
			out = append(out, res.Installed[i])
		}
	}
	return out, nil
}

// ListingService is the single entry point for reading an account's
// installed-app list.
type ListingService struct {
	store      database.Store
	tenants    *TenantService
	strategies map[account.Role]listStrategy
}

// NewListingService creates a ListingService.
func NewListingService(store database.Store, tenants *TenantService, subs subscription.Resolver, reconciler *ReconcileService) *ListingService {
	return &ListingService{
		store:   store,
		tenants: tenants,
		strategies: map[account.Role]listStrategy{
			account.RoleDeveloper: developerStrategy{store: store},
			account.RoleNormal:    normalStrategy{subs: subs, reconciler: reconciler},
		},
	}
}

// Account loads the calling account.
func (s *ListingService) Account(ctx context.Context, accountID string) (*account.Account, error) {
	return s.store.GetAccount(ctx, accountID)
}

// List returns the sorted installed-app views of the account's current
// tenant, optionally filtered to one app. Normal accounts trigger a
// reconciliation first.
func (s *ListingService) List(ctx context.Context, acct *account.Account, appID string) ([]installedapp.View, error) {
	if acct.CurrentTenantID == "" {
		return nil, fmt.Errorf("account %s has no current tenant: %w", acct.ID, domain.ErrInvalidOperation)
	}
	strategy, ok := s.strategies[acct.Role]
	if !ok {
		return nil, fmt.Errorf("account %s has unknown role %q", acct.ID, acct.Role)
	}

	rows, err := strategy.rows(ctx, acct, appID)
	if err != nil {
		return nil, err
	}

	viewerRole, err := s.effectiveRole(ctx, acct)
	if err != nil {
		return nil, err
	}

	apps, ownerNames, err := s.loadRefs(ctx, acct.Role, rows)
	if err != nil {
		return nil, err
	}

	return installedapp.Present(installedapp.PresentInput{
		Rows:       rows,
		Apps:       apps,
		Role:       acct.Role,
		ViewerRole: viewerRole,
		TenantID:   acct.CurrentTenantID,
		OwnerNames: ownerNames,
	}), nil
}

// ListGrouped returns List bucketed into pinned, recent and library sections.
func (s *ListingService) ListGrouped(ctx context.Context, acct *account.Account, appID string) ([]installedapp.Section, error) {
	views, err := s.List(ctx, acct, appID)
	if err != nil {
		return nil, err
	}
	return installedapp.Group(views), nil
}

func (s *ListingService) effectiveRole(ctx context.Context, acct *account.Account) (tenant.MemberRole, error) {
	m, err := s.store.GetMembership(ctx, acct.CurrentTenantID, acct.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return account.EffectiveRole(acct, acct.CurrentTenantID, m), nil
}

// loadRefs fetches the apps referenced by rows and, for the normal role, the
// names of their owner tenants.
func (s *ListingService) loadRefs(ctx context.Context, role account.Role, rows []installedapp.InstalledApp) (map[string]app.App, map[string]string, error) {
	if len(rows) == 0 {
		return nil, nil, nil
	}
	ids := make([]string, 0, len(rows))
	ownerIDs := make([]string, 0, len(rows))
	for i := range rows {
		ids = append(ids, rows[i].AppID)
		ownerIDs = append(ownerIDs, rows[i].AppOwnerTenantID)
	}

	var (
		apps  map[string]app.App
		names map[string]string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		list, err := s.store.ListAppsByIDs(gctx, normalizeIDs(ids))
		if err != nil {
			return err
		}
		apps = make(map[string]app.App, len(list))
		for _, a := range list {
			apps[a.ID] = a
		}
		return nil
	})
	if role == account.RoleNormal {
		g.Go(func() error {
			var err error
			names, err = s.tenants.Names(gctx, ownerIDs)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return apps, names, nil
}
