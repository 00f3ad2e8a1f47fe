package postgres

import (
	"context"

	"github.com/Strob0t/AppHub/internal/domain/app"
)

const appColumns = `id, owner_tenant_id, name, icon, publish_status, is_public, publish_path, install_count, created_at, updated_at`

// --- Apps ---

func scanApp(row scannable) (app.App, error) {
	var a app.App
	err := row.Scan(&a.ID, &a.OwnerTenantID, &a.Name, &a.Icon, &a.PublishStatus,
		&a.IsPublic, &a.PublishPath, &a.InstallCount, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (q *queries) GetApp(ctx context.Context, id string) (*app.App, error) {
	a, err := scanApp(q.db.QueryRow(ctx,
		`SELECT `+appColumns+` FROM apps WHERE id = $1`, id))
	if err != nil {
		return nil, notFoundWrap(err, "get app %s", id)
	}
	return &a, nil
}

func (q *queries) ListAppsByIDs(ctx context.Context, ids []string) ([]app.App, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return q.listApps(ctx, "list apps",
		`SELECT `+appColumns+` FROM apps WHERE id = ANY($1::uuid[]) ORDER BY id`, pgTextArray(ids))
}

// ListPublishedApps returns every enabled app owned by one of ownerTenantIDs,
// public or not, ordered by id so reconciliation plans are deterministic.
func (q *queries) ListPublishedApps(ctx context.Context, ownerTenantIDs []string) ([]app.App, error) {
	if len(ownerTenantIDs) == 0 {
		return nil, nil
	}
	return q.listApps(ctx, "list published apps",
		`SELECT `+appColumns+` FROM apps
		 WHERE owner_tenant_id = ANY($1::uuid[]) AND publish_status = 'enabled'
		 ORDER BY id`, pgTextArray(ownerTenantIDs))
}

func (q *queries) listApps(ctx context.Context, op, sql string, args ...any) ([]app.App, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, storeErr(err, "%s", op)
	}
	apps, err := collect(rows, scanApp)
	if err != nil {
		return nil, storeErr(err, "scan app")
	}
	return apps, nil
}

func (q *queries) IncrementInstallCount(ctx context.Context, appID string) error {
	tag, err := q.db.Exec(ctx,
		`UPDATE apps SET install_count = install_count + 1 WHERE id = $1`, appID)
	return execExpectOne(tag, err, "increment install count %s", appID)
}
