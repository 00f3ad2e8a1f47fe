package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	ahhttp "github.com/Strob0t/AppHub/internal/adapter/http"
	"github.com/Strob0t/AppHub/internal/domain"
	"github.com/Strob0t/AppHub/internal/domain/account"
	"github.com/Strob0t/AppHub/internal/domain/app"
	"github.com/Strob0t/AppHub/internal/domain/installedapp"
	"github.com/Strob0t/AppHub/internal/domain/tenant"
	"github.com/Strob0t/AppHub/internal/port/database"
	"github.com/Strob0t/AppHub/internal/service"
)

var _ database.Store = (*mockStore)(nil)

// mockStore implements database.Store for testing.
type mockStore struct {
	mu        sync.Mutex
	tenants   map[string]tenant.Tenant
	members   []tenant.Membership
	accounts  map[string]account.Account
	apps      map[string]app.App
	installed []installedapp.InstalledApp
	nextID    int
	txErr     error
}

func newMockStore() *mockStore {
	return &mockStore{
		tenants:  map[string]tenant.Tenant{},
		accounts: map[string]account.Account{},
		apps:     map[string]app.App{},
	}
}

func (m *mockStore) WithTx(_ context.Context, fn func(q database.Queries) error) error {
	if m.txErr != nil {
		return m.txErr
	}
	return fn(m)
}

func (m *mockStore) GetTenant(_ context.Context, id string) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, fmt.Errorf("tenant %s: %w", id, domain.ErrNotFound)
	}
	return &t, nil
}

func (m *mockStore) ListTenants(_ context.Context, ids []string) ([]tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []tenant.Tenant
	for _, id := range ids {
		if t, ok := m.tenants[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *mockStore) UpdateTenantName(_ context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tenants[id]
	t.Name = name
	m.tenants[id] = t
	return nil
}

func (m *mockStore) GetMembership(_ context.Context, tenantID, accountID string) (*tenant.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mb := range m.members {
		if mb.TenantID == tenantID && mb.AccountID == accountID {
			return &mb, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) GetAccount(_ context.Context, id string) (*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return &a, nil
}

func (m *mockStore) ListSubscribedTenantIDs(_ context.Context, accountID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[accountID].SubscribedTenantIDs, nil
}

func (m *mockStore) GetApp(_ context.Context, id string) (*app.App, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.apps[id]
	if !ok {
		return nil, fmt.Errorf("app %s: %w", id, domain.ErrNotFound)
	}
	return &a, nil
}

func (m *mockStore) ListAppsByIDs(_ context.Context, ids []string) ([]app.App, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []app.App
	for _, id := range ids {
		if a, ok := m.apps[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockStore) ListPublishedApps(_ context.Context, owners []string) ([]app.App, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []app.App
	for _, a := range m.apps {
		for _, o := range owners {
			if a.Published() && a.OwnerTenantID == o {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

func (m *mockStore) IncrementInstallCount(_ context.Context, appID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.apps[appID]
	a.InstallCount++
	m.apps[appID] = a
	return nil
}

func (m *mockStore) ListInstalledApps(_ context.Context, tenantID, appID string) ([]installedapp.InstalledApp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []installedapp.InstalledApp
	for _, r := range m.installed {
		if r.TenantID == tenantID && (appID == "" || r.AppID == appID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockStore) GetInstalledApp(_ context.Context, id, tenantID string) (*installedapp.InstalledApp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.installed {
		if r.ID == id && r.TenantID == tenantID {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("installed app %s: %w", id, domain.ErrNotFound)
}

func (m *mockStore) CreateInstalledApp(_ context.Context, ia *installedapp.InstalledApp) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.installed {
		if r.TenantID == ia.TenantID && r.AppID == ia.AppID {
			return r.ID, false, nil
		}
	}
	m.nextID++
	row := *ia
	row.ID = fmt.Sprintf("ia-%d", m.nextID)
	m.installed = append(m.installed, row)
	return row.ID, true, nil
}

func (m *mockStore) UpdateInstalledApp(_ context.Context, id string, upd installedapp.Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.installed {
		if m.installed[i].ID == id {
			if upd.IsPinned != nil {
				m.installed[i].IsPinned = *upd.IsPinned
			}
			if upd.LastUsedAt != nil {
				m.installed[i].LastUsedAt = upd.LastUsedAt
			}
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) DeleteInstalledApp(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.installed {
		if m.installed[i].ID == id {
			m.installed = append(m.installed[:i], m.installed[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) ReclaimInstalledApp(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.installed {
		if m.installed[i].ID == id && m.installed[i].Reclaimable() {
			m.installed = append(m.installed[:i], m.installed[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// memCache is an in-memory cache.Cache.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

// seededStore returns a store with tenant T (installer) and U (publisher),
// a developer account "dev" and a normal account "norm", both in T.
func seededStore() *mockStore {
	m := newMockStore()
	m.tenants["T"] = tenant.Tenant{ID: "T", Name: "Installer"}
	m.tenants["U"] = tenant.Tenant{ID: "U", Name: "Upstream"}
	m.accounts["dev"] = account.Account{ID: "dev", Role: account.RoleDeveloper, CurrentTenantID: "T"}
	m.accounts["norm"] = account.Account{ID: "norm", Role: account.RoleNormal, CurrentTenantID: "T", SubscribedTenantIDs: []string{"U"}}
	m.members = []tenant.Membership{
		{TenantID: "T", AccountID: "dev", Role: tenant.MemberOwner},
		{TenantID: "T", AccountID: "norm", Role: tenant.MemberNormal},
	}
	m.apps["pub"] = app.App{ID: "pub", OwnerTenantID: "U", Name: "Public", PublishStatus: app.StatusEnabled, IsPublic: true, PublishPath: "/tools"}
	m.apps["priv"] = app.App{ID: "priv", OwnerTenantID: "U", Name: "Private", PublishStatus: app.StatusEnabled}
	m.apps["own"] = app.App{ID: "own", OwnerTenantID: "T", Name: "Own", PublishStatus: app.StatusEnabled, IsPublic: true}
	return m
}

func newTestRouter(store *mockStore, health ahhttp.HealthChecks) http.Handler {
	events := service.NewEventPublisher(nil, nil)
	tenants := service.NewTenantService(store, nil, 0, events)
	subs := service.NewSubscriptionService(store, nil, 0)
	reconciler := service.NewReconcileService(store, events)
	h := &ahhttp.Handlers{
		Listing:       service.NewListingService(store, tenants, subs, reconciler),
		InstalledApps: service.NewInstalledAppService(store, events),
		Tenants:       tenants,
		Health:        health,
	}
	return ahhttp.NewRouter(h, ahhttp.RouterOptions{
		CORSOrigin:       "http://localhost:3000",
		RequestTimeout:   5 * time.Second,
		IdempotencyStore: &memCache{data: map[string][]byte{}},
		IdempotencyTTL:   time.Minute,
	})
}

func do(t *testing.T, h http.Handler, method, path, accountID string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if accountID != "" {
		req.Header.Set("X-Account-ID", accountID)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, kind string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, status, w.Body.String())
	}
	var body errorBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if body.Kind != kind {
		t.Fatalf("kind = %q, want %q", body.Kind, kind)
	}
}

func TestMissingAccountHeader(t *testing.T) {
	h := newTestRouter(seededStore(), ahhttp.HealthChecks{})
	expectError(t, do(t, h, http.MethodGet, "/api/v1/installed-apps", "", nil), http.StatusBadRequest, "validation")
}

func TestUnknownAccount(t *testing.T) {
	h := newTestRouter(seededStore(), ahhttp.HealthChecks{})
	expectError(t, do(t, h, http.MethodGet, "/api/v1/installed-apps", "ghost", nil), http.StatusNotFound, "not_found")
}

func TestInstallAndList(t *testing.T) {
	store := seededStore()
	h := newTestRouter(store, ahhttp.HealthChecks{})

	w := do(t, h, http.MethodPost, "/api/v1/installed-apps", "dev", map[string]string{"app_id": "pub"})
	if w.Code != http.StatusCreated {
		t.Fatalf("install status = %d, body %s", w.Code, w.Body.String())
	}
	var row installedapp.InstalledApp
	if err := json.NewDecoder(w.Body).Decode(&row); err != nil {
		t.Fatal(err)
	}
	if row.Origin != installedapp.OriginUserInstalled || row.LastUsedAt == nil {
		t.Fatalf("row = %+v", row)
	}

	w = do(t, h, http.MethodPost, "/api/v1/installed-apps", "dev", map[string]string{"app_id": "pub"})
	if w.Code != http.StatusOK {
		t.Fatalf("repeat install status = %d", w.Code)
	}
	if store.apps["pub"].InstallCount != 1 {
		t.Fatalf("install_count = %d", store.apps["pub"].InstallCount)
	}

	w = do(t, h, http.MethodGet, "/api/v1/installed-apps", "dev", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var views []installedapp.View
	if err := json.NewDecoder(w.Body).Decode(&views); err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 || views[0].App.ID != "pub" || !views[0].Editable || !views[0].Uninstallable {
		t.Fatalf("views = %+v", views)
	}
}

func TestInstallErrors(t *testing.T) {
	h := newTestRouter(seededStore(), ahhttp.HealthChecks{})

	expectError(t, do(t, h, http.MethodPost, "/api/v1/installed-apps", "dev", map[string]string{"app_id": "priv"}),
		http.StatusForbidden, "forbidden")
	expectError(t, do(t, h, http.MethodPost, "/api/v1/installed-apps", "dev", map[string]string{"app_id": "nope"}),
		http.StatusNotFound, "not_found")
	expectError(t, do(t, h, http.MethodPost, "/api/v1/installed-apps", "dev", map[string]string{}),
		http.StatusBadRequest, "validation")
}

func TestInstallIdempotencyKey(t *testing.T) {
	h := newTestRouter(seededStore(), ahhttp.HealthChecks{})
	body := map[string]string{"app_id": "pub"}

	first := do(t, h, http.MethodPost, "/api/v1/installed-apps", "dev", body, "Idempotency-Key", "k1")
	second := do(t, h, http.MethodPost, "/api/v1/installed-apps", "dev", body, "Idempotency-Key", "k1")

	if first.Code != http.StatusCreated || second.Code != http.StatusCreated {
		t.Fatalf("codes = %d, %d", first.Code, second.Code)
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Fatal("expected replayed response")
	}
}

func TestNormalListReconciles(t *testing.T) {
	store := seededStore()
	h := newTestRouter(store, ahhttp.HealthChecks{})

	w := do(t, h, http.MethodGet, "/api/v1/installed-apps", "norm", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var views []installedapp.View
	if err := json.NewDecoder(w.Body).Decode(&views); err != nil {
		t.Fatal(err)
	}
	// priv is published but not public; reconciliation follows publication only.
	if len(views) != 2 {
		t.Fatalf("views = %+v", views)
	}
	for _, v := range views {
		if v.AppOwnerTenantName == nil || *v.AppOwnerTenantName != "Upstream" {
			t.Fatalf("owner name = %v", v.AppOwnerTenantName)
		}
		if v.Editable {
			t.Fatal("normal member must not edit")
		}
	}

	w = do(t, h, http.MethodGet, "/api/v1/installed-apps?grouped=true", "norm", nil)
	var sections []installedapp.Section
	if err := json.NewDecoder(w.Body).Decode(&sections); err != nil {
		t.Fatal(err)
	}
	if len(sections) != 1 || sections[0].Name != installedapp.SectionLibrary {
		t.Fatalf("sections = %+v", sections)
	}
}

func TestUninstall(t *testing.T) {
	store := seededStore()
	store.installed = []installedapp.InstalledApp{
		{ID: "r-own", TenantID: "T", AppID: "own", AppOwnerTenantID: "T"},
		{ID: "r-pub", TenantID: "T", AppID: "pub", AppOwnerTenantID: "U"},
	}
	h := newTestRouter(store, ahhttp.HealthChecks{})

	expectError(t, do(t, h, http.MethodDelete, "/api/v1/installed-apps/r-own", "dev", nil),
		http.StatusBadRequest, "invalid_operation")
	expectError(t, do(t, h, http.MethodDelete, "/api/v1/installed-apps/missing", "dev", nil),
		http.StatusNotFound, "not_found")

	w := do(t, h, http.MethodDelete, "/api/v1/installed-apps/r-pub", "dev", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if len(store.installed) != 1 {
		t.Fatalf("installed = %+v", store.installed)
	}
}

func TestPinAndUsage(t *testing.T) {
	store := seededStore()
	store.installed = []installedapp.InstalledApp{{ID: "r1", TenantID: "T", AppID: "pub", AppOwnerTenantID: "U"}}
	h := newTestRouter(store, ahhttp.HealthChecks{})

	expectError(t, do(t, h, http.MethodPatch, "/api/v1/installed-apps/r1", "dev", map[string]any{}),
		http.StatusBadRequest, "validation")

	w := do(t, h, http.MethodPatch, "/api/v1/installed-apps/r1", "dev", map[string]any{"is_pinned": true})
	if w.Code != http.StatusOK || !store.installed[0].IsPinned {
		t.Fatalf("pin status = %d, row = %+v", w.Code, store.installed[0])
	}

	w = do(t, h, http.MethodPost, "/api/v1/installed-apps/r1/usage", "dev", nil)
	if w.Code != http.StatusOK || store.installed[0].LastUsedAt == nil {
		t.Fatalf("usage status = %d, row = %+v", w.Code, store.installed[0])
	}
}

func TestRenameTenant(t *testing.T) {
	store := seededStore()
	h := newTestRouter(store, ahhttp.HealthChecks{})

	expectError(t, do(t, h, http.MethodPatch, "/api/v1/tenants/T", "norm", map[string]string{"name": "X"}),
		http.StatusForbidden, "forbidden")
	expectError(t, do(t, h, http.MethodPatch, "/api/v1/tenants/T", "dev", map[string]string{"name": " "}),
		http.StatusBadRequest, "validation")

	w := do(t, h, http.MethodPatch, "/api/v1/tenants/T", "dev", map[string]string{"name": "Renamed"})
	if w.Code != http.StatusOK || store.tenants["T"].Name != "Renamed" {
		t.Fatalf("status = %d, tenant = %+v", w.Code, store.tenants["T"])
	}
}

func TestStoreUnavailable(t *testing.T) {
	store := seededStore()
	store.txErr = fmt.Errorf("begin: %w", domain.ErrStoreUnavailable)
	h := newTestRouter(store, ahhttp.HealthChecks{})

	expectError(t, do(t, h, http.MethodPost, "/api/v1/installed-apps", "dev", map[string]string{"app_id": "pub"}),
		http.StatusServiceUnavailable, "store_unavailable")
}

func TestInvalidBody(t *testing.T) {
	h := newTestRouter(seededStore(), ahhttp.HealthChecks{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/installed-apps", bytes.NewBufferString("{"))
	req.Header.Set("X-Account-ID", "dev")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	expectError(t, w, http.StatusBadRequest, "validation")
}

func TestHealth(t *testing.T) {
	h := newTestRouter(seededStore(), ahhttp.HealthChecks{Store: stubPinger{}})
	if w := do(t, h, http.MethodGet, "/health", "", nil); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	h = newTestRouter(seededStore(), ahhttp.HealthChecks{Store: stubPinger{err: errors.New("down")}})
	w := do(t, h, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestRouter(seededStore(), ahhttp.HealthChecks{})
	w := do(t, h, http.MethodOptions, "/api/v1/installed-apps", "", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatal("missing CORS origin")
	}
}
