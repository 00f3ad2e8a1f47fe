// Package app defines marketplace applications published by owner tenants.
package app

import (
	"fmt"
	"time"

	"github.com/Strob0t/AppHub/internal/domain"
)

// PublishStatus is the publication state of an app.
type PublishStatus string

const (
	StatusDraft   PublishStatus = "draft"
	StatusEnabled PublishStatus = "enabled"
)

// RootPath is the placement used when an app has no publish path.
const RootPath = "/"

// App is an application owned and published by a tenant.
type App struct {
	ID            string        `json:"id"`
	OwnerTenantID string        `json:"owner_tenant_id"`
	Name          string        `json:"name"`
	Icon          string        `json:"icon,omitempty"`
	PublishStatus PublishStatus `json:"publish_status"`
	IsPublic      bool          `json:"is_public"`
	PublishPath   string        `json:"publish_path"`
	InstallCount  int64         `json:"install_count"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// Published reports whether subscribers can see the app.
func (a *App) Published() bool {
	return a.PublishStatus == StatusEnabled
}

// Path returns the publish path, defaulting to RootPath.
func (a *App) Path() string {
	if a.PublishPath == "" {
		return RootPath
	}
	return a.PublishPath
}

// CheckInstallable returns ErrNotFound for unpublished apps and ErrForbidden
// for published apps that are not public.
func (a *App) CheckInstallable() error {
	if !a.Published() {
		return fmt.Errorf("app %s is not published: %w", a.ID, domain.ErrNotFound)
	}
	if !a.IsPublic {
		return fmt.Errorf("app %s is not public: %w", a.ID, domain.ErrForbidden)
	}
	return nil
}

// Summary is the app reference embedded in installed-app views.
type Summary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
}

// Summarize returns the view reference for a.
func (a *App) Summarize() Summary {
	return Summary{ID: a.ID, Name: a.Name, Icon: a.Icon}
}
