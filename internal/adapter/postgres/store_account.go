package postgres

import (
	"context"

	"github.com/Strob0t/AppHub/internal/domain/account"
)

// --- Accounts ---

func (q *queries) GetAccount(ctx context.Context, id string) (*account.Account, error) {
	var a account.Account
	var current *string
	err := q.db.QueryRow(ctx,
		`SELECT a.id, a.name, a.role, a.current_tenant_id::text,
		        COALESCE(array_agg(s.tenant_id::text ORDER BY s.tenant_id) FILTER (WHERE s.tenant_id IS NOT NULL), '{}')
		 FROM accounts a
		 LEFT JOIN account_subscriptions s ON s.account_id = a.id
		 WHERE a.id = $1
		 GROUP BY a.id`, id,
	).Scan(&a.ID, &a.Name, &a.Role, &current, &a.SubscribedTenantIDs)
	if err != nil {
		return nil, notFoundWrap(err, "get account %s", id)
	}
	if current != nil {
		a.CurrentTenantID = *current
	}
	return &a, nil
}

func (q *queries) ListSubscribedTenantIDs(ctx context.Context, accountID string) ([]string, error) {
	rows, err := q.db.Query(ctx,
		`SELECT tenant_id::text FROM account_subscriptions
		 WHERE account_id = $1 ORDER BY tenant_id`, accountID)
	if err != nil {
		if isInvalidText(err) {
			return nil, nil
		}
		return nil, storeErr(err, "list subscriptions %s", accountID)
	}
	ids, err := collect(rows, func(row scannable) (string, error) {
		var id string
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, storeErr(err, "scan subscription")
	}
	return ids, nil
}
