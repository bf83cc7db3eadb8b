package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	"github.com/aussiebroadwan/storefront/internal/identity/store"
	"github.com/aussiebroadwan/storefront/pkg/idx"
	"github.com/aussiebroadwan/storefront/pkg/slogx"
)

// TenantHint is everything a request says about which store it is for.
type TenantHint struct {
	// Domain is an explicit store domain, e.g. from X-Store-Domain. An
	// unmatched Domain is always an error.
	Domain string

	// Host is the request's Host header, used only when Domain is empty. An
	// unmatched Host is ignored if the token carries a tenant, because the
	// API host itself is usually not a store.
	Host string

	// TokenTenantID is the tid claim of the caller's access token, if any.
	TokenTenantID string
}

// TenantResolver maps a TenantHint to a store. It is a pure lookup.
type TenantResolver struct {
	Store store.Store
}

// Resolve returns ErrNoTenantHint when the request names no store at all,
// ErrTenantNotFound when it names one that doesn't exist, ErrTenantMismatch
// when the domain and the token disagree and ErrTenantInactive for stores
// that are switched off.
func (r *TenantResolver) Resolve(ctx context.Context, hint TenantHint) (domain.Tenant, error) {
	d := domain.NormalizeDomain(hint.Domain)
	strict := d != ""
	if !strict {
		d = domain.NormalizeDomain(hint.Host)
	}
	tid := strings.TrimSpace(hint.TokenTenantID)

	if d == "" && tid == "" {
		return domain.Tenant{}, ErrNoTenantHint
	}

	var (
		t     domain.Tenant
		found bool
	)
	if d != "" {
		byDomain, err := r.Store.Tenants().GetTenantByDomain(ctx, d)
		switch {
		case err == nil:
			t, found = byDomain, true
		case !errors.Is(err, store.ErrNotFound):
			return domain.Tenant{}, err
		case strict || tid == "":
			return domain.Tenant{}, fmt.Errorf("%w: %s", ErrTenantNotFound, d)
		}
	}

	if found && tid != "" && tid != t.ID {
		slogx.FromContext(ctx).Warn("tenant hint mismatch",
			"domain", d, "domain_tenant", t.ID, "token_tenant", tid)
		return domain.Tenant{}, ErrTenantMismatch
	}

	if !found {
		byID, err := r.Store.Tenants().GetTenantByID(ctx, tid)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Tenant{}, fmt.Errorf("%w: %s", ErrTenantNotFound, tid)
			}
			return domain.Tenant{}, err
		}
		t = byID
	}

	if t.Status != domain.TenantActive {
		return domain.Tenant{}, fmt.Errorf("%w: %s is %s", ErrTenantInactive, t.Domain, t.Status)
	}
	return t, nil
}

// TenantService covers store creation and membership management.
type TenantService struct {
	Store store.Store
}

type CreateTenantParams struct {
	OwnerID string
	Name    string
	Domain  string
	Plan    string
}

// CreateTenant creates the store and its owner membership in one
// transaction, so a store never exists without an owner who can manage it.
func (s *TenantService) CreateTenant(ctx context.Context, p CreateTenantParams) (domain.Tenant, error) {
	d := domain.NormalizeDomain(p.Domain)
	if d == "" || strings.ContainsAny(d, " /@") {
		return domain.Tenant{}, ErrInvalidDomain
	}
	plan, err := domain.ParsePlan(p.Plan)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = d
	}

	t := domain.Tenant{
		ID:      idx.New().String(),
		Name:    name,
		Domain:  d,
		OwnerID: p.OwnerID,
		Plan:    plan,
		Status:  domain.TenantActive,
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Users().GetUserByID(ctx, p.OwnerID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if err := tx.Tenants().CreateTenant(ctx, t); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return ErrDomainTaken
			}
			return err
		}
		return tx.Memberships().UpsertMembership(ctx, domain.Membership{
			UserID:   p.OwnerID,
			TenantID: t.ID,
			Role:     domain.RoleOwner,
		})
	})
	if err != nil {
		return domain.Tenant{}, err
	}

	slogx.FromContext(ctx).Info("store created", "tenant_id", t.ID, "domain", t.Domain, "owner_id", t.OwnerID)
	return t, nil
}

// GrantRole sets userID's role in tenantID. The actor needs admin, and only
// an owner may hand out owner.
func (s *TenantService) GrantRole(ctx context.Context, actorID, tenantID, userID string, role domain.Role) error {
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		minRole := domain.RoleAdmin
		if role == domain.RoleOwner {
			minRole = domain.RoleOwner
		}
		if err := requireRole(ctx, tx, actorID, tenantID, minRole); err != nil {
			return err
		}

		if _, err := tx.Users().GetUserByID(ctx, userID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		return tx.Memberships().UpsertMembership(ctx, domain.Membership{
			UserID:   userID,
			TenantID: tenantID,
			Role:     role,
		})
	})
}

// ListMembers returns every membership of a tenant.
func (s *TenantService) ListMembers(ctx context.Context, tenantID string) ([]domain.Membership, error) {
	return s.Store.Memberships().ListTenantMembers(ctx, tenantID)
}
