package messagequeue

import "time"

// InstalledAppPayload is the schema for installed_apps.installed,
// installed_apps.uninstalled, installed_apps.pinned and installed_apps.used.
type InstalledAppPayload struct {
	InstalledAppID   string     `json:"installed_app_id"`
	TenantID         string     `json:"tenant_id"`
	AppID            string     `json:"app_id"`
	AppOwnerTenantID string     `json:"app_owner_tenant_id"`
	IsPinned         bool       `json:"is_pinned"`
	LastUsedAt       *time.Time `json:"last_used_at,omitempty"`
}

// ReconciledPayload is the schema for installed_apps.reconciled messages.
type ReconciledPayload struct {
	TenantID      string   `json:"tenant_id"`
	CreatedAppIDs []string `json:"created_app_ids"`
	DeletedAppIDs []string `json:"deleted_app_ids"`
}

// SubscriptionsChangedPayload is the schema for subscriptions.changed messages.
type SubscriptionsChangedPayload struct {
	AccountID string `json:"account_id"`
}
