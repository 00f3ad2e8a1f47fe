// Package account defines the end-user account model.
package account

import (
	"slices"

	"github.com/Strob0t/AppHub/internal/domain/tenant"
)

// Role selects how an account experiences the installed-app list.
type Role string

const (
	// RoleDeveloper sees its own tenant's raw installations; no reconciliation.
	RoleDeveloper Role = "developer"
	// RoleNormal sees a list reconciled against its subscriptions.
	RoleNormal Role = "normal"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleDeveloper || r == RoleNormal
}

// Account is a user of the marketplace.
type Account struct {
	ID                  string   `json:"id"`
	Name                string   `json:"name"`
	Role                Role     `json:"role"`
	CurrentTenantID     string   `json:"current_tenant_id"`
	SubscribedTenantIDs []string `json:"subscribed_tenant_ids"`
}

// SubscribesTo reports whether the account follows the given tenant.
func (a *Account) SubscribesTo(tenantID string) bool {
	return slices.Contains(a.SubscribedTenantIDs, tenantID)
}

// EffectiveRole returns the account's role inside tenantID given its
// membership row, or "" when m does not belong to this account and tenant.
// It never modifies the account.
func EffectiveRole(a *Account, tenantID string, m *tenant.Membership) tenant.MemberRole {
	if a == nil || m == nil {
		return ""
	}
	if m.AccountID != a.ID || m.TenantID != tenantID {
		return ""
	}
	return m.Role
}
