package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	"github.com/aussiebroadwan/storefront/internal/identity/store"
)

type tenantsRepo struct {
	db dbtx
}

const tenantColumns = `id, name, domain, owner_id, plan, status, created_at, updated_at`

func scanTenant(row *sql.Row) (domain.Tenant, error) {
	var (
		t                domain.Tenant
		created, updated int64
	)
	if err := row.Scan(&t.ID, &t.Name, &t.Domain, &t.OwnerID, &t.Plan, &t.Status, &created, &updated); err != nil {
		return domain.Tenant{}, mapNotFound(err)
	}
	t.CreatedAt = fromMillis(created)
	t.UpdatedAt = fromMillis(updated)
	return t, nil
}

func (r *tenantsRepo) GetTenantByID(ctx context.Context, id string) (domain.Tenant, error) {
	return scanTenant(r.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id))
}

func (r *tenantsRepo) GetTenantByDomain(ctx context.Context, d string) (domain.Tenant, error) {
	return scanTenant(r.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE domain = ?`, d))
}

func (r *tenantsRepo) CreateTenant(ctx context.Context, t domain.Tenant) error {
	now := t.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	if t.Plan == "" {
		t.Plan = domain.PlanFree
	}
	if t.Status == "" {
		t.Status = domain.TenantActive
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, domain, owner_id, plan, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Name, t.Domain, t.OwnerID, string(t.Plan), string(t.Status), toMillis(now), toMillis(now),
	)
	return mapConstraint(err)
}

func (r *tenantsRepo) UpdateTenantStatus(ctx context.Context, id string, status domain.TenantStatus) error {
	n, err := rowsAffected(r.db.ExecContext(ctx,
		`UPDATE tenants SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), toMillis(time.Now()), id,
	))
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

var _ store.Tenants = (*tenantsRepo)(nil)
