package service

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Strob0t/AppHub/internal/domain"
	"github.com/Strob0t/AppHub/internal/domain/account"
	"github.com/Strob0t/AppHub/internal/domain/app"
	"github.com/Strob0t/AppHub/internal/domain/installedapp"
	"github.com/Strob0t/AppHub/internal/domain/tenant"
	"github.com/Strob0t/AppHub/internal/port/database"
	"github.com/Strob0t/AppHub/internal/port/messagequeue"
)

// Ensure mockStore implements database.Store at compile time.
var _ database.Store = (*mockStore)(nil)

// mockStore is a minimal in-memory implementation of database.Store for testing.
// WithTx snapshots the data and restores it when fn fails.
type mockStore struct {
	mu   sync.Mutex
	txMu sync.Mutex

	tenants   map[string]tenant.Tenant
	members   []tenant.Membership
	accounts  map[string]account.Account
	apps      map[string]app.App
	installed []installedapp.InstalledApp
	nextID    int

	// Error hooks; set these to inject failures.
	listInstalledErr error
	createErr        error
	txErr            error

	// raceOnCreate inserts a user-installed row for the same pair right
	// before CreateInstalledApp runs, as a concurrent writer would.
	raceOnCreate bool

	// usedBeforeReclaim records usage on a row right before
	// ReclaimInstalledApp checks it, as a MarkUsed committing in between
	// would.
	usedBeforeReclaim bool

	// When listStarted is set, ListInstalledApps closes it once and then
	// waits for listRelease or ctx cancellation.
	listStarted   chan struct{}
	listRelease   chan struct{}
	listStartOnce sync.Once

	listPublishedCalls int
	listSubsCalls      int
	listTenantsCalls   int
}

func newMockStore() *mockStore {
	return &mockStore{
		tenants:  map[string]tenant.Tenant{},
		accounts: map[string]account.Account{},
		apps:     map[string]app.App{},
	}
}

func (m *mockStore) addTenant(id, name string) {
	m.tenants[id] = tenant.Tenant{ID: id, Name: name}
}

func (m *mockStore) addMember(tenantID, accountID string, role tenant.MemberRole) {
	m.members = append(m.members, tenant.Membership{TenantID: tenantID, AccountID: accountID, Role: role})
}

func (m *mockStore) addApp(id, owner string, status app.PublishStatus, public bool) {
	m.apps[id] = app.App{ID: id, OwnerTenantID: owner, Name: "App " + id, PublishStatus: status, IsPublic: public}
}

func (m *mockStore) addInstalled(row installedapp.InstalledApp) {
	m.installed = append(m.installed, row)
}

func (m *mockStore) rows(tenantID string) []installedapp.InstalledApp {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []installedapp.InstalledApp
	for _, r := range m.installed {
		if r.TenantID == tenantID {
			out = append(out, r)
		}
	}
	return out
}

func (m *mockStore) findRow(tenantID, appID string) *installedapp.InstalledApp {
	for i := range m.installed {
		if m.installed[i].TenantID == tenantID && m.installed[i].AppID == appID {
			return &m.installed[i]
		}
	}
	return nil
}

func (m *mockStore) WithTx(_ context.Context, fn func(q database.Queries) error) error {
	if m.txErr != nil {
		return fmt.Errorf("begin transaction: %w", m.txErr)
	}
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapshot := slices.Clone(m.installed)
	apps := make(map[string]app.App, len(m.apps))
	for k, v := range m.apps {
		apps[k] = v
	}
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.installed = snapshot
		m.apps = apps
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *mockStore) GetTenant(_ context.Context, id string) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, fmt.Errorf("get tenant %s: %w", id, domain.ErrNotFound)
	}
	return &t, nil
}

func (m *mockStore) ListTenants(_ context.Context, ids []string) ([]tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listTenantsCalls++
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
	t, ok := m.tenants[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.Name = name
	m.tenants[id] = t
	return nil
}

func (m *mockStore) GetMembership(_ context.Context, tenantID, accountID string) (*tenant.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.members {
		if m.members[i].TenantID == tenantID && m.members[i].AccountID == accountID {
			mb := m.members[i]
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
		return nil, fmt.Errorf("get account %s: %w", id, domain.ErrNotFound)
	}
	return &a, nil
}

func (m *mockStore) ListSubscribedTenantIDs(_ context.Context, accountID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listSubsCalls++
	a, ok := m.accounts[accountID]
	if !ok {
		return nil, nil
	}
	return slices.Clone(a.SubscribedTenantIDs), nil
}

func (m *mockStore) GetApp(_ context.Context, id string) (*app.App, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.apps[id]
	if !ok {
		return nil, fmt.Errorf("get app %s: %w", id, domain.ErrNotFound)
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
	m.listPublishedCalls++
	var out []app.App
	for _, a := range m.apps {
		if a.Published() && slices.Contains(owners, a.OwnerTenantID) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b app.App) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out, nil
}

func (m *mockStore) IncrementInstallCount(_ context.Context, appID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.apps[appID]
	if !ok {
		return domain.ErrNotFound
	}
	a.InstallCount++
	m.apps[appID] = a
	return nil
}

func (m *mockStore) ListInstalledApps(ctx context.Context, tenantID, appID string) ([]installedapp.InstalledApp, error) {
	if m.listInstalledErr != nil {
		return nil, m.listInstalledErr
	}
	if m.listStarted != nil {
		m.listStartOnce.Do(func() { close(m.listStarted) })
		select {
		case <-m.listRelease:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
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
	for i := range m.installed {
		if m.installed[i].ID == id && m.installed[i].TenantID == tenantID {
			r := m.installed[i]
			return &r, nil
		}
	}
	return nil, fmt.Errorf("get installed app %s: %w", id, domain.ErrNotFound)
}

func (m *mockStore) CreateInstalledApp(_ context.Context, ia *installedapp.InstalledApp) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return "", false, m.createErr
	}
	if m.raceOnCreate && m.findRow(ia.TenantID, ia.AppID) == nil {
		m.nextID++
		now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		m.installed = append(m.installed, installedapp.InstalledApp{
			ID: fmt.Sprintf("ia-%d", m.nextID), TenantID: ia.TenantID, AppID: ia.AppID,
			AppOwnerTenantID: ia.AppOwnerTenantID, Origin: installedapp.OriginUserInstalled, LastUsedAt: &now,
		})
	}
	if existing := m.findRow(ia.TenantID, ia.AppID); existing != nil {
		return existing.ID, false, nil
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
		if m.installed[i].ID != id {
			continue
		}
		if upd.IsPinned != nil {
			m.installed[i].IsPinned = *upd.IsPinned
		}
		if upd.LastUsedAt != nil {
			t := *upd.LastUsedAt
			m.installed[i].LastUsedAt = &t
		}
		return nil
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
		if m.installed[i].ID != id {
			continue
		}
		if m.usedBeforeReclaim {
			m.installed[i].LastUsedAt = usedAt(15)
		}
		if !m.installed[i].Reclaimable() {
			return false, nil
		}
		m.installed = append(m.installed[:i], m.installed[i+1:]...)
		return true, nil
	}
	return false, nil
}

// --- Queue ---

var _ messagequeue.Queue = (*mockQueue)(nil)

type published struct {
	subject string
	data    []byte
}

type mockQueue struct {
	mu         sync.Mutex
	msgs       []published
	publishErr error
	calls      int
	handlers   map[string]messagequeue.Handler
}

func (q *mockQueue) Publish(_ context.Context, subject string, data []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls++
	if q.publishErr != nil {
		return q.publishErr
	}
	q.msgs = append(q.msgs, published{subject: subject, data: data})
	return nil
}

func (q *mockQueue) Subscribe(_ context.Context, subject string, handler messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.handlers == nil {
		q.handlers = map[string]messagequeue.Handler{}
	}
	q.handlers[subject] = handler
	return func() {}, nil
}

func (q *mockQueue) Drain() error      { return nil }
func (q *mockQueue) Close() error      { return nil }
func (q *mockQueue) IsConnected() bool { return true }

func (q *mockQueue) subjects() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.msgs))
	for _, m := range q.msgs {
		out = append(out, m.subject)
	}
	return out
}

func (q *mockQueue) decode(i int, v any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return json.Unmarshal(q.msgs[i].data, v)
}

// --- Broadcaster ---

type hubEvent struct {
	tenantID  string
	eventType string
	payload   any
}

type mockHub struct {
	mu     sync.Mutex
	events []hubEvent
}

func (h *mockHub) BroadcastTenantEvent(_ context.Context, tenantID, eventType string, payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, hubEvent{tenantID: tenantID, eventType: eventType, payload: payload})
}

func (h *mockHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

// --- Cache ---

type mockCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
}

func newMockCache() *mockCache {
	return &mockCache{data: map[string][]byte{}}
}

func (c *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *mockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *mockCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *mockCache) GetOrLoad(ctx context.Context, key string, ttl time.Duration, load func(ctx context.Context) ([]byte, error)) ([]byte, error) {
	if v, ok, err := c.Get(ctx, key); err == nil && ok {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return nil, err
	}
	_ = c.Set(ctx, key, v, ttl)
	return v, nil
}

func (c *mockCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

// --- Fixture ---

type fixture struct {
	store  *mockStore
	queue  *mockQueue
	hub    *mockHub
	events *EventPublisher
}

func newFixture() *fixture {
	f := &fixture{store: newMockStore(), queue: &mockQueue{}, hub: &mockHub{}}
	f.events = NewEventPublisher(f.queue, f.hub)
	return f
}

func usedAt(day int) *time.Time {
	t := time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)
	return &t
}
