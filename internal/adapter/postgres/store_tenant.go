package postgres

import (
	"context"

	"github.com/Strob0t/AppHub/internal/domain/tenant"
)

// --- Tenants ---

func scanTenant(row scannable) (tenant.Tenant, error) {
	var t tenant.Tenant
	if err := row.Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return t, err
	}
	return t, nil
}

func (q *queries) GetTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	t, err := scanTenant(q.db.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at FROM tenants WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get tenant %s", id)
	}
	return &t, nil
}

func (q *queries) ListTenants(ctx context.Context, ids []string) ([]tenant.Tenant, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := q.db.Query(ctx,
		`SELECT id, name, created_at, updated_at FROM tenants
		 WHERE id = ANY($1::uuid[]) ORDER BY id`, pgTextArray(ids))
	if err != nil {
		return nil, storeErr(err, "list tenants")
	}
	tenants, err := collect(rows, scanTenant)
	if err != nil {
		return nil, storeErr(err, "scan tenant")
	}
	return tenants, nil
}

func (q *queries) UpdateTenantName(ctx context.Context, id, name string) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE tenants SET name = $2, updated_at = now() WHERE id = $1`, id, name)
	return execExpectOne(tag, err, "update tenant %s", id)
}

// --- Memberships ---

func (q *queries) GetMembership(ctx context.Context, tenantID, accountID string) (*tenant.Membership, error) {
	var m tenant.Membership
	err := q.db.QueryRow(ctx,
		`SELECT tenant_id, account_id, role FROM tenant_members
		 WHERE tenant_id = $1 AND account_id = $2`, tenantID, accountID,
	).Scan(&m.TenantID, &m.AccountID, &m.Role)
	if err != nil {
		return nil, notFoundWrap(err, "get membership %s/%s", tenantID, accountID)
	}
	return &m, nil
}
