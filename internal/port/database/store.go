// Package database defines the database store port (interface).
package database

import (
	"context"

	"github.com/Strob0t/AppHub/internal/domain/account"
	"github.com/Strob0t/AppHub/internal/domain/app"
	"github.com/Strob0t/AppHub/internal/domain/installedapp"
	"github.com/Strob0t/AppHub/internal/domain/tenant"
)

// Queries is the read/write surface shared by the pool and by transactions.
// Inside WithTx all writes commit together. Transactions run at READ
// COMMITTED, so each statement sees rows committed before it started; reads
// that must stay valid until commit lock their rows.
type Queries interface {
	// Tenants
	GetTenant(ctx context.Context, id string) (*tenant.Tenant, error)
	ListTenants(ctx context.Context, ids []string) ([]tenant.Tenant, error)
	UpdateTenantName(ctx context.Context, id, name string) error
	GetMembership(ctx context.Context, tenantID, accountID string) (*tenant.Membership, error)

	// Accounts
	GetAccount(ctx context.Context, id string) (*account.Account, error)
	ListSubscribedTenantIDs(ctx context.Context, accountID string) ([]string, error)

	// Apps
	GetApp(ctx context.Context, id string) (*app.App, error)
	ListAppsByIDs(ctx context.Context, ids []string) ([]app.App, error)
	ListPublishedApps(ctx context.Context, ownerTenantIDs []string) ([]app.App, error)
	IncrementInstallCount(ctx context.Context, appID string) error

	// Installed apps. appID filters ListInstalledApps when non-empty.
	ListInstalledApps(ctx context.Context, tenantID, appID string) ([]installedapp.InstalledApp, error)
	// GetInstalledApp locks the row for the rest of the transaction.
	GetInstalledApp(ctx context.Context, id, tenantID string) (*installedapp.InstalledApp, error)
	// CreateInstalledApp inserts ia or, when (tenant_id, app_id) already
	// exists, returns the existing id with created=false.
	CreateInstalledApp(ctx context.Context, ia *installedapp.InstalledApp) (id string, created bool, err error)
	UpdateInstalledApp(ctx context.Context, id string, upd installedapp.Update) error
	DeleteInstalledApp(ctx context.Context, id string) error
	// ReclaimInstalledApp deletes id only if it is still auto-installed and
	// unused. deleted is false when the row was used meanwhile or is gone.
	ReclaimInstalledApp(ctx context.Context, id string) (deleted bool, err error)
}

// Store is the port interface for database operations.
type Store interface {
	Queries

	// WithTx runs fn in a single transaction. fn's error rolls everything back.
	WithTx(ctx context.Context, fn func(q Queries) error) error
}
