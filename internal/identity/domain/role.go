package domain

import (
	"fmt"
	"time"
)

// Role is a user's permission level inside one store. The set is closed.
type Role string

const (
	RoleMember Role = "member"
	RoleStaff  Role = "staff"
	RoleAdmin  Role = "admin"
	RoleOwner  Role = "owner"
)

var roleRank = map[Role]int{
	RoleMember: 1,
	RoleStaff:  2,
	RoleAdmin:  3,
	RoleOwner:  4,
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := roleRank[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Rank orders roles owner > admin > staff > member. Unknown roles rank 0.
func (r Role) Rank() int { return roleRank[r] }

func (r Role) Valid() bool { return r.Rank() > 0 }

// AtLeast reports whether r is minRole or above. An unknown role satisfies nothing.
func (r Role) AtLeast(minRole Role) bool {
	return r.Valid() && minRole.Valid() && r.Rank() >= minRole.Rank()
}

// Membership grants a user a role within a single tenant.
type Membership struct {
	UserID    string
	TenantID  string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}
