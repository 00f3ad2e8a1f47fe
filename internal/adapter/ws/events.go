package ws

import (
	"context"
	"encoding/json"
	"log/slog"
)

// Event type constants for WebSocket messages.
const (
	// EventInstalledAppsChanged tells clients to refetch the installed-app list.
	EventInstalledAppsChanged = "installed_apps.changed"
	// EventTenantRenamed carries a tenant's new display name.
	EventTenantRenamed = "tenant.renamed"
)

// InstalledAppsChangedEvent is broadcast after a committed change to a
// tenant's installed apps.
type InstalledAppsChangedEvent struct {
	TenantID       string `json:"tenant_id"`
	Reason         string `json:"reason"` // installed, uninstalled, pinned, used, reconciled
	InstalledAppID string `json:"installed_app_id,omitempty"`
}

// TenantRenamedEvent is broadcast when a tenant's name changes.
type TenantRenamedEvent struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
}

// BroadcastTenantEvent marshals a typed event and sends it to the clients of
// tenantID.
func (h *Hub) BroadcastTenantEvent(ctx context.Context, tenantID, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "marshal ws event payload", "type", eventType, "error", err)
		return
	}

	h.BroadcastToTenant(ctx, tenantID, Message{
		Type:    eventType,
		Payload: json.RawMessage(data),
	})
}
