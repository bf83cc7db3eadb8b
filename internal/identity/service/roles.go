package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	"github.com/aussiebroadwan/storefront/internal/identity/store"
)

// RoleAuthorizer decides whether a user may act within a tenant. Membership
// is only ever read from the memberships table; owning a tenant grants
// nothing by itself.
type RoleAuthorizer struct {
	Store store.Store
}

// Authorize reports whether userID holds at least minRole in tenantID. A missing
// membership is a deny, not an error.
func (a *RoleAuthorizer) Authorize(ctx context.Context, userID, tenantID string, minRole domain.Role) (bool, error) {
	return authorizeRole(ctx, a.Store, userID, tenantID, minRole)
}

// Require is Authorize as an error: ErrInsufficientRole on deny, additionally
// wrapping ErrNoMembership when the user has no role in the tenant at all.
func (a *RoleAuthorizer) Require(ctx context.Context, userID, tenantID string, minRole domain.Role) error {
	return requireRole(ctx, a.Store, userID, tenantID, minRole)
}

// RoleOf returns the caller's role in a tenant.
func (a *RoleAuthorizer) RoleOf(ctx context.Context, userID, tenantID string) (domain.Role, error) {
	m, err := a.Store.Memberships().GetMembership(ctx, userID, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrNoMembership
		}
		return "", err
	}
	return m.Role, nil
}

// authorizeRole and requireRole take a store.Store so they work inside a Tx too.
func authorizeRole(ctx context.Context, s store.Store, userID, tenantID string, minRole domain.Role) (bool, error) {
	if !minRole.Valid() {
		return false, fmt.Errorf("%w: %q", ErrInvalidRole, minRole)
	}
	if userID == "" || tenantID == "" {
		return false, nil
	}

	m, err := s.Memberships().GetMembership(ctx, userID, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return m.Role.AtLeast(minRole), nil
}

func requireRole(ctx context.Context, s store.Store, userID, tenantID string, minRole domain.Role) error {
	if !minRole.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, minRole)
	}

	m, err := s.Memberships().GetMembership(ctx, userID, tenantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %w", ErrInsufficientRole, ErrNoMembership)
		}
		return err
	}
	if !m.Role.AtLeast(minRole) {
		return fmt.Errorf("%w: %s required, have %s", ErrInsufficientRole, minRole, m.Role)
	}
	return nil
}
