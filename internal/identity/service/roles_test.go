package service_test

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	"github.com/aussiebroadwan/storefront/internal/identity/service"
	"github.com/stretchr/testify/require"
)

// newStore registers an owner and creates a store for them.
func (h *harness) newStore(t *testing.T, ownerEmail, storeDomain string) (domain.User, domain.Tenant) {
	t.Helper()

	owner, _ := h.register(t, ownerEmail)
	tenant, err := h.tenants.CreateTenant(context.Background(), service.CreateTenantParams{
		OwnerID: owner.ID,
		Name:    "Test Store",
		Domain:  storeDomain,
	})
	require.NoError(t, err)
	return owner, tenant
}

var allRoles = []domain.Role{domain.RoleMember, domain.RoleStaff, domain.RoleAdmin, domain.RoleOwner}

func TestAuthorizeIsMonotonic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	_, tenant := h.newStore(t, "owner@example.com", "shop.example.com")

	users := make(map[domain.Role]string)
	for _, r := range allRoles {
		u, _ := h.register(t, string(r)+"-user@example.com")
		require.NoError(t, h.store.Memberships().UpsertMembership(ctx, domain.Membership{
			UserID: u.ID, TenantID: tenant.ID, Role: r,
		}))
		users[r] = u.ID
	}

	for _, have := range allRoles {
		for _, need := range allRoles {
			ok, err := h.roles.Authorize(ctx, users[have], tenant.ID, need)
			require.NoError(t, err)
			require.Equal(t, have.Rank() >= need.Rank(), ok, "%s needs %s", have, need)
		}
	}
}

func TestAuthorizeWithoutMembership(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	owner, tenant := h.newStore(t, "owner@example.com", "shop.example.com")
	stranger, _ := h.register(t, "stranger@example.com")

	ok, err := h.roles.Authorize(ctx, stranger.ID, tenant.ID, domain.RoleMember)
	require.NoError(t, err)
	require.False(t, ok)

	err = h.roles.Require(ctx, stranger.ID, tenant.ID, domain.RoleMember)
	require.ErrorIs(t, err, service.ErrInsufficientRole)
	require.ErrorIs(t, err, service.ErrNoMembership)

	_, err = h.roles.RoleOf(ctx, stranger.ID, tenant.ID)
	require.ErrorIs(t, err, service.ErrNoMembership)

	_, err = h.roles.Authorize(ctx, owner.ID, tenant.ID, domain.Role("root"))
	require.ErrorIs(t, err, service.ErrInvalidRole)
}

func TestOwnerFieldGrantsNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	owner, _ := h.register(t, "owner@example.com")

	// A tenant row naming an owner, but no membership row
	tenant := domain.Tenant{
		ID:      "tenant-bare",
		Name:    "Bare",
		Domain:  "bare.example.com",
		OwnerID: owner.ID,
		Plan:    domain.PlanFree,
		Status:  domain.TenantActive,
	}
	require.NoError(t, h.store.Tenants().CreateTenant(ctx, tenant))

	ok, err := h.roles.Authorize(ctx, owner.ID, tenant.ID, domain.RoleMember)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCreateTenant(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	owner, tenant := h.newStore(t, "owner@example.com", "Shop.Example.com:443")

	require.Equal(t, "shop.example.com", tenant.Domain)
	require.Equal(t, domain.PlanFree, tenant.Plan)

	role, err := h.roles.RoleOf(ctx, owner.ID, tenant.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RoleOwner, role)

	t.Run("duplicate domain", func(t *testing.T) {
		_, err := h.tenants.CreateTenant(ctx, service.CreateTenantParams{OwnerID: owner.ID, Domain: "shop.example.com"})
		require.ErrorIs(t, err, service.ErrDomainTaken)
	})

	t.Run("unknown owner", func(t *testing.T) {
		_, err := h.tenants.CreateTenant(ctx, service.CreateTenantParams{OwnerID: "nobody", Domain: "other.example.com"})
		require.ErrorIs(t, err, service.ErrUserNotFound)

		_, err = h.store.Tenants().GetTenantByDomain(ctx, "other.example.com")
		require.Error(t, err, "failed create must not leave a tenant behind")
	})

	t.Run("bad input", func(t *testing.T) {
		_, err := h.tenants.CreateTenant(ctx, service.CreateTenantParams{OwnerID: owner.ID, Domain: " "})
		require.ErrorIs(t, err, service.ErrInvalidDomain)

		_, err = h.tenants.CreateTenant(ctx, service.CreateTenantParams{OwnerID: owner.ID, Domain: "x.example.com", Plan: "platinum"})
		require.ErrorIs(t, err, service.ErrInvalidPlan)
	})
}

func TestGrantRole(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	owner, tenant := h.newStore(t, "owner@example.com", "shop.example.com")
	admin, _ := h.register(t, "admin@example.com")
	staff, _ := h.register(t, "staff@example.com")

	require.NoError(t, h.tenants.GrantRole(ctx, owner.ID, tenant.ID, admin.ID, domain.RoleAdmin))
	require.NoError(t, h.tenants.GrantRole(ctx, admin.ID, tenant.ID, staff.ID, domain.RoleStaff))

	err := h.tenants.GrantRole(ctx, admin.ID, tenant.ID, staff.ID, domain.RoleOwner)
	require.ErrorIs(t, err, service.ErrInsufficientRole, "only owners hand out owner")

	err = h.tenants.GrantRole(ctx, staff.ID, tenant.ID, admin.ID, domain.RoleMember)
	require.ErrorIs(t, err, service.ErrInsufficientRole)

	err = h.tenants.GrantRole(ctx, owner.ID, tenant.ID, "nobody", domain.RoleMember)
	require.ErrorIs(t, err, service.ErrUserNotFound)

	err = h.tenants.GrantRole(ctx, owner.ID, tenant.ID, staff.ID, domain.Role("root"))
	require.ErrorIs(t, err, service.ErrInvalidRole)

	members, err := h.tenants.ListMembers(ctx, tenant.ID)
	require.NoError(t, err)
	require.Len(t, members, 3)

	got := make(map[string]domain.Role)
	for _, m := range members {
		got[m.UserID] = m.Role
	}
	require.Equal(t, map[string]domain.Role{
		owner.ID: domain.RoleOwner,
		admin.ID: domain.RoleAdmin,
		staff.ID: domain.RoleStaff,
	}, got)
}
