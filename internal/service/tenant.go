package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/AppHub/internal/domain"
	"github.com/Strob0t/AppHub/internal/domain/tenant"
	"github.com/Strob0t/AppHub/internal/port/cache"
	"github.com/Strob0t/AppHub/internal/port/database"
)

// TenantService manages tenant names.
type TenantService struct {
	store  database.Store
	cache  cache.Cache
	ttl    time.Duration
	events *EventPublisher
}

// NewTenantService creates a new TenantService. A nil cache disables name
// caching.
func NewTenantService(store database.Store, c cache.Cache, ttl time.Duration, events *EventPublisher) *TenantService {
	return &TenantService{store: store, cache: c, ttl: ttl, events: events}
}

func tenantNameKey(id string) string {
	return cache.Key("tenant-name", id)
}

// Get returns a tenant by ID.
func (s *TenantService) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	return s.store.GetTenant(ctx, id)
}

// Rename sets the display name of tenantID. The caller must be an owner or
// admin of the tenant.
func (s *TenantService) Rename(ctx context.Context, tenantID, accountID, name string) (*tenant.Tenant, error) {
	name, err := tenant.NormalizeName(name)
	if err != nil {
		return nil, err
	}

	t, err := s.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	m, err := s.store.GetMembership(ctx, tenantID, accountID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("account %s is not a member of tenant %s: %w", accountID, tenantID, domain.ErrForbidden)
	}
	if err != nil {
		return nil, err
	}
	if !m.Role.CanManage() {
		return nil, fmt.Errorf("role %q cannot rename tenant %s: %w", m.Role, tenantID, domain.ErrForbidden)
	}

	if err := s.store.UpdateTenantName(ctx, tenantID, name); err != nil {
		return nil, err
	}
	t.Name = name

	if s.cache != nil {
		if err := s.cache.Delete(ctx, tenantNameKey(tenantID)); err != nil {
			slog.WarnContext(ctx, "tenant name cache invalidation failed", "tenant_id", tenantID, "error", err)
		}
	}
	s.events.TenantRenamed(ctx, tenantID, name)
	return t, nil
}

// Names maps tenant ids to their display names. Unknown ids are absent from
// the result.
func (s *TenantService) Names(ctx context.Context, ids []string) (map[string]string, error) {
	ids = normalizeIDs(ids)
	names := make(map[string]string, len(ids))

	var missing []string
	for _, id := range ids {
		if s.cache == nil {
			missing = append(missing, id)
			continue
		}
		data, ok, err := s.cache.Get(ctx, tenantNameKey(id))
		if err != nil || !ok {
			missing = append(missing, id)
			continue
		}
		names[id] = string(data)
	}
	if len(missing) == 0 {
		return names, nil
	}

	tenants, err := s.store.ListTenants(ctx, missing)
	if err != nil {
		return nil, err
	}
	for i := range tenants {
		t := &tenants[i]
		names[t.ID] = t.Name
		if s.cache == nil {
			continue
		}
		if err := s.cache.Set(ctx, tenantNameKey(t.ID), []byte(t.Name), s.ttl); err != nil {
			slog.WarnContext(ctx, "tenant name cache fill failed", "tenant_id", t.ID, "error", err)
		}
	}
	return names, nil
}
