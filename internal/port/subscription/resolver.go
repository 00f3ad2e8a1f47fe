// Package subscription defines the port that resolves which upstream tenants
// an account follows.
package subscription

import "context"

// Resolver returns the tenant ids an account currently subscribes to.
// The set is mutated outside this service and is read-only here.
type Resolver interface {
	SubscribedTenantIDs(ctx context.Context, accountID string) ([]string, error)
}

// Invalidator drops any cached subscription set for an account.
type Invalidator interface {
	Invalidate(ctx context.Context, accountID string) error
}
