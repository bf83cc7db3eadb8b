package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	"github.com/aussiebroadwan/storefront/internal/identity/store"
)

type membershipsRepo struct {
	db dbtx
}

func (r *membershipsRepo) GetMembership(ctx context.Context, userID, tenantID string) (domain.Membership, error) {
	var (
		m                domain.Membership
		created, updated int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, tenant_id, role, created_at, updated_at
		 FROM memberships WHERE user_id = ? AND tenant_id = ?`,
		userID, tenantID,
	).Scan(&m.UserID, &m.TenantID, &m.Role, &created, &updated)
	if err != nil {
		return domain.Membership{}, mapNotFound(err)
	}
	m.CreatedAt = fromMillis(created)
	m.UpdatedAt = fromMillis(updated)
	return m, nil
}

func (r *membershipsRepo) UpsertMembership(ctx context.Context, m domain.Membership) error {
	now := toMillis(time.Now())
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO memberships (user_id, tenant_id, role, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, tenant_id) DO UPDATE SET role = excluded.role, updated_at = excluded.updated_at`,
		m.UserID, m.TenantID, string(m.Role), now, now,
	)
	return err
}

func (r *membershipsRepo) ListTenantMembers(ctx context.Context, tenantID string) ([]domain.Membership, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, tenant_id, role, created_at, updated_at
		 FROM memberships WHERE tenant_id = ? ORDER BY created_at, user_id`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Membership
	for rows.Next() {
		var (
			m                domain.Membership
			created, updated int64
		)
		if err := rows.Scan(&m.UserID, &m.TenantID, &m.Role, &created, &updated); err != nil {
			return nil, err
		}
		m.CreatedAt = fromMillis(created)
		m.UpdatedAt = fromMillis(updated)
		out = append(out, m)
	}
	return out, rows.Err()
}

var _ store.Memberships = (*membershipsRepo)(nil)
