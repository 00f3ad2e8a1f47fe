// Package tenant defines the tenant domain model for multi-tenancy.
package tenant

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Strob0t/AppHub/internal/domain"
)

// MaxNameLength is the longest tenant name accepted by Rename, in runes.
const MaxNameLength = 50

// Tenant is an isolated workspace. It installs apps as a consumer and, when it
// publishes apps, owns them as a producer.
type Tenant struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MemberRole is an account's role inside a tenant.
type MemberRole string

const (
	MemberOwner  MemberRole = "owner"
	MemberAdmin  MemberRole = "admin"
	MemberNormal MemberRole = "normal"
)

// CanManage reports whether the role may edit tenant-level settings.
func (r MemberRole) CanManage() bool {
	return r == MemberOwner || r == MemberAdmin
}

// RenameRequest holds the new name for a tenant.
type RenameRequest struct {
	Name string `json:"name"`
}

// NormalizeName trims name and checks it is non-empty and at most
// MaxNameLength runes long.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("tenant name is required: %w", domain.ErrValidation)
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return "", fmt.Errorf("tenant name exceeds %d characters: %w", MaxNameLength, domain.ErrValidation)
	}
	return name, nil
}

// Membership links an account to a tenant with a role.
type Membership struct {
	TenantID  string     `json:"tenant_id"`
	AccountID string     `json:"account_id"`
	Role      MemberRole `json:"role"`
}
