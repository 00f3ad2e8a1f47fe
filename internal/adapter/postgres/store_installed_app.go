package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/AppHub/internal/domain/installedapp"
)

const installedAppColumns = `id, tenant_id, app_id, app_owner_tenant_id, is_pinned, origin, last_used_at, created_at`

// --- Installed apps ---

func scanInstalledApp(row scannable) (installedapp.InstalledApp, error) {
	var ia installedapp.InstalledApp
	err := row.Scan(&ia.ID, &ia.TenantID, &ia.AppID, &ia.AppOwnerTenantID,
		&ia.IsPinned, &ia.Origin, &ia.LastUsedAt, &ia.CreatedAt)
	return ia, err
}

func (q *queries) ListInstalledApps(ctx context.Context, tenantID, appID string) ([]installedapp.InstalledApp, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+installedAppColumns+` FROM installed_apps
		 WHERE tenant_id = $1 AND ($2 = '' OR app_id::text = $2)
		 ORDER BY created_at, id`, tenantID, appID)
	if err != nil {
		if isInvalidText(err) {
			return nil, nil
		}
		return nil, storeErr(err, "list installed apps %s", tenantID)
	}
	items, err := collect(rows, scanInstalledApp)
	if err != nil {
		return nil, storeErr(err, "scan installed app")
	}
	return items, nil
}

// GetInstalledApp loads a row scoped to tenantID and locks it until the
// surrounding transaction ends. Rows of other tenants report ErrNotFound.
func (q *queries) GetInstalledApp(ctx context.Context, id, tenantID string) (*installedapp.InstalledApp, error) {
	ia, err := scanInstalledApp(q.db.QueryRow(ctx,
		`SELECT `+installedAppColumns+` FROM installed_apps
		 WHERE id = $1 AND tenant_id = $2 FOR UPDATE`, id, tenantID))
	if err != nil {
		return nil, notFoundWrap(err, "get installed app %s", id)
	}
	return &ia, nil
}

// CreateInstalledApp inserts ia unless (tenant_id, app_id) already exists, in
// which case the existing row's id is returned with created=false. A
// concurrent insert of the same pair therefore never surfaces as an error.
func (q *queries) CreateInstalledApp(ctx context.Context, ia *installedapp.InstalledApp) (string, bool, error) {
	var id string
	err := q.db.QueryRow(ctx,
		`INSERT INTO installed_apps (tenant_id, app_id, app_owner_tenant_id, is_pinned, origin, last_used_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (tenant_id, app_id) DO NOTHING
		 RETURNING id`,
		ia.TenantID, ia.AppID, ia.AppOwnerTenantID, ia.IsPinned, ia.Origin, ia.LastUsedAt,
	).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, storeErr(err, "create installed app %s/%s", ia.TenantID, ia.AppID)
	}

	err = q.db.QueryRow(ctx,
		`SELECT id FROM installed_apps WHERE tenant_id = $1 AND app_id = $2`,
		ia.TenantID, ia.AppID,
	).Scan(&id)
	if err != nil {
		return "", false, storeErr(err, "identify installed app %s/%s", ia.TenantID, ia.AppID)
	}
	return id, false, nil
}

func (q *queries) UpdateInstalledApp(ctx context.Context, id string, upd installedapp.Update) error {
	if upd.Empty() {
		return nil
	}
	tag, err := q.db.Exec(ctx,
		`UPDATE installed_apps
		 SET is_pinned = COALESCE($2, is_pinned),
		     last_used_at = COALESCE($3, last_used_at)
		 WHERE id = $1`, id, upd.IsPinned, upd.LastUsedAt)
	return execExpectOne(tag, err, "update installed app %s", id)
}

func (q *queries) DeleteInstalledApp(ctx context.Context, id string) error {
	tag, err := q.db.Exec(ctx, `DELETE FROM installed_apps WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete installed app %s", id)
}

// ReclaimInstalledApp deletes id only while it is still auto-installed and
// unused. The condition is re-checked against the latest committed row, so a
// concurrent MarkUsed wins and deleted is false.
func (q *queries) ReclaimInstalledApp(ctx context.Context, id string) (bool, error) {
	tag, err := q.db.Exec(ctx,
		`DELETE FROM installed_apps
		 WHERE id = $1 AND origin = 'auto_installed' AND last_used_at IS NULL`, id)
	if err != nil {
		return false, notFoundWrap(err, "reclaim installed app %s", id)
	}
	return tag.RowsAffected() == 1, nil
}
