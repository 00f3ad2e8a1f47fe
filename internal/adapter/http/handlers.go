package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Strob0t/AppHub/internal/adapter/ws"
	"github.com/Strob0t/AppHub/internal/domain"
	"github.com/Strob0t/AppHub/internal/domain/account"
	"github.com/Strob0t/AppHub/internal/domain/installedapp"
	"github.com/Strob0t/AppHub/internal/domain/tenant"
	"github.com/Strob0t/AppHub/internal/logger"
	"github.com/Strob0t/AppHub/internal/middleware"
	"github.com/Strob0t/AppHub/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Listing       *service.ListingService
	InstalledApps *service.InstalledAppService
	Tenants       *service.TenantService
	Hub           *ws.Hub
	Health        HealthChecks
}

// caller loads the account named by X-Account-ID and tags the context with its
// current tenant. It writes the error response and returns false on failure.
func (h *Handlers) caller(w http.ResponseWriter, r *http.Request) (*account.Account, context.Context, bool) {
	id := middleware.AccountIDFromContext(r.Context())
	if id == "" {
		writeError(w, http.StatusBadRequest, middleware.HeaderAccountID+" header is required", "validation")
		return nil, nil, false
	}
	acct, err := h.Listing.Account(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return nil, nil, false
	}
	return acct, logger.WithTenantID(r.Context(), acct.CurrentTenantID), true
}

// callerTenant is caller for endpoints that act on the account's current
// tenant.
func (h *Handlers) callerTenant(w http.ResponseWriter, r *http.Request) (string, context.Context, bool) {
	acct, ctx, ok := h.caller(w, r)
	if !ok {
		return "", nil, false
	}
	if acct.CurrentTenantID == "" {
		writeDomainError(w, r, fmt.Errorf("account %s has no current tenant: %w", acct.ID, domain.ErrInvalidOperation))
		return "", nil, false
	}
	return acct.CurrentTenantID, ctx, true
}

// ListInstalledApps handles GET /api/v1/installed-apps
func (h *Handlers) ListInstalledApps(w http.ResponseWriter, r *http.Request) {
	acct, ctx, ok := h.caller(w, r)
	if !ok {
		return
	}
	appID := r.URL.Query().Get("app_id")

	grouped, _ := strconv.ParseBool(r.URL.Query().Get("grouped"))
	if grouped {
		sections, err := h.Listing.ListGrouped(ctx, acct, appID)
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		if sections == nil {
			sections = []installedapp.Section{}
		}
		writeJSON(w, http.StatusOK, sections)
		return
	}

	views, err := h.Listing.List(ctx, acct, appID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if views == nil {
		views = []installedapp.View{}
	}
	writeJSON(w, http.StatusOK, views)
}

// InstallApp handles POST /api/v1/installed-apps
func (h *Handlers) InstallApp(w http.ResponseWriter, r *http.Request) {
	tenantID, ctx, ok := h.callerTenant(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[installedapp.InstallRequest](w, r)
	if !ok {
		return
	}

	row, created, err := h.InstalledApps.Install(ctx, req.AppID, tenantID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, row)
}

// UninstallApp handles DELETE /api/v1/installed-apps/{id}
func (h *Handlers) UninstallApp(w http.ResponseWriter, r *http.Request) {
	tenantID, ctx, ok := h.callerTenant(w, r)
	if !ok {
		return
	}
	if err := h.InstalledApps.Uninstall(ctx, urlParam(r, "id"), tenantID); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UpdateInstalledApp handles PATCH /api/v1/installed-apps/{id}
func (h *Handlers) UpdateInstalledApp(w http.ResponseWriter, r *http.Request) {
	tenantID, ctx, ok := h.callerTenant(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[installedapp.PinRequest](w, r)
	if !ok {
		return
	}
	if req.IsPinned == nil {
		writeError(w, http.StatusBadRequest, "is_pinned is required", "validation")
		return
	}

	row, err := h.InstalledApps.SetPinned(ctx, urlParam(r, "id"), tenantID, *req.IsPinned)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// RecordUsage handles POST /api/v1/installed-apps/{id}/usage
func (h *Handlers) RecordUsage(w http.ResponseWriter, r *http.Request) {
	tenantID, ctx, ok := h.callerTenant(w, r)
	if !ok {
		return
	}
	row, err := h.InstalledApps.MarkUsed(ctx, urlParam(r, "id"), tenantID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// RenameTenant handles PATCH /api/v1/tenants/{id}
func (h *Handlers) RenameTenant(w http.ResponseWriter, r *http.Request) {
	acct, ctx, ok := h.caller(w, r)
	if !ok {
		return
	}
	req, ok := readJSON[tenant.RenameRequest](w, r)
	if !ok {
		return
	}

	t, err := h.Tenants.Rename(ctx, urlParam(r, "id"), acct.ID, req.Name)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// HandleWS handles GET /ws. The connection receives the events of the
// caller's current tenant.
func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	tenantID, _, ok := h.callerTenant(w, r)
	if !ok {
		return
	}
	h.Hub.Serve(w, r, tenantID)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectionChecker reports whether a broker connection is up.
type ConnectionChecker interface {
	IsConnected() bool
}

// HealthChecks are the dependencies probed by /health. Nil members are
// skipped.
type HealthChecks struct {
	Store Pinger
	Queue ConnectionChecker
}

type healthStatus struct {
	Status   string `json:"status"`
	Postgres string `json:"postgres"`
	NATS     string `json:"nats"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{Status: "ok", Postgres: "skipped", NATS: "skipped"}
	code := http.StatusOK

	if h.Health.Store != nil {
		status.Postgres = "ok"
		if err := h.Health.Store.Ping(r.Context()); err != nil {
			status.Postgres = "unreachable"
			status.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	if h.Health.Queue != nil {
		status.NATS = "ok"
		if !h.Health.Queue.IsConnected() {
			// Events are best-effort; a broker outage does not fail the probe.
			status.NATS = "disconnected"
			if status.Status == "ok" {
				status.Status = "degraded"
			}
		}
	}
	writeJSON(w, code, status)
}
