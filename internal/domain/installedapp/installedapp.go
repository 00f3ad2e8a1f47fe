// Package installedapp defines the materialized relation between an installing
// tenant and a marketplace app, the reconciliation planner that keeps it in
// line with a tenant's subscriptions, and the list presentation rules.
package installedapp

import (
	"time"

	"github.com/Strob0t/AppHub/internal/domain/app"
)

// Origin records how an installation came to exist.
type Origin string

const (
	// OriginUserInstalled rows were created by an explicit install request.
	OriginUserInstalled Origin = "user_installed"
	// OriginAutoInstalled rows were created by reconciliation.
	OriginAutoInstalled Origin = "auto_installed"
)

// Legacy timestamps used by older data to encode origin and usage inside
// last_used_at. Rows below LegacyRetentionThreshold were never used.
var (
	LegacyAutoInstallSentinel = time.Date(1995, time.January, 1, 0, 0, 0, 0, time.UTC)
	LegacyRetentionThreshold  = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// InstalledApp is one app installed into one tenant.
type InstalledApp struct {
	ID               string     `json:"id"`
	TenantID         string     `json:"tenant_id"`
	AppID            string     `json:"app_id"`
	AppOwnerTenantID string     `json:"app_owner_tenant_id"`
	IsPinned         bool       `json:"is_pinned"`
	Origin           Origin     `json:"origin"`
	LastUsedAt       *time.Time `json:"last_used_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Reclaimable reports whether reconciliation may delete the row once its
// app leaves the desired set: machine-created and never used.
func (ia *InstalledApp) Reclaimable() bool {
	return ia.Origin == OriginAutoInstalled && ia.LastUsedAt == nil
}

// OwnedByInstaller reports whether the installing tenant also owns the app.
func (ia *InstalledApp) OwnedByInstaller() bool {
	return ia.TenantID == ia.AppOwnerTenantID
}

// NewAutoInstalled builds the row reconciliation creates for a newly
// subscribed published app.
func NewAutoInstalled(tenantID string, a *app.App) InstalledApp {
	return InstalledApp{
		TenantID:         tenantID,
		AppID:            a.ID,
		AppOwnerTenantID: a.OwnerTenantID,
		Origin:           OriginAutoInstalled,
	}
}

// NewUserInstalled builds the row created by an explicit install at now.
func NewUserInstalled(tenantID string, a *app.App, now time.Time) InstalledApp {
	used := now.UTC()
	return InstalledApp{
		TenantID:         tenantID,
		AppID:            a.ID,
		AppOwnerTenantID: a.OwnerTenantID,
		Origin:           OriginUserInstalled,
		LastUsedAt:       &used,
	}
}

// FromLegacy maps a legacy last_used_at value onto origin and usage.
// Values before LegacyRetentionThreshold mean "auto-installed, never used".
// A missing value is treated as user-installed so it is never reclaimed.
func FromLegacy(lastUsedAt *time.Time) (Origin, *time.Time) {
	if lastUsedAt == nil {
		return OriginUserInstalled, nil
	}
	if lastUsedAt.Before(LegacyRetentionThreshold) {
		return OriginAutoInstalled, nil
	}
	t := *lastUsedAt
	return OriginUserInstalled, &t
}

// Update holds the mutable fields of an installed app. Nil fields are left
// untouched.
type Update struct {
	IsPinned   *bool
	LastUsedAt *time.Time
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return u.IsPinned == nil && u.LastUsedAt == nil
}

// InstallRequest is the body of an explicit install.
type InstallRequest struct {
	AppID string `json:"app_id"`
}

// PinRequest is the body of a pin/unpin update.
type PinRequest struct {
	IsPinned *bool `json:"is_pinned"`
}
