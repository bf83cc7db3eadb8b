package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	"github.com/aussiebroadwan/storefront/internal/identity/store"
)

type sessionsRepo struct {
	db dbtx
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.RefreshSession) error {
	created := s.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_sessions (jti, user_id, tenant_id, chain_id, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		s.JTI, s.UserID, s.TenantID, s.ChainID, toMillis(s.ExpiresAt), toMillis(created),
	)
	return mapConstraint(err)
}

func (r *sessionsRepo) GetSessionByJTI(ctx context.Context, jti string) (domain.RefreshSession, error) {
	var (
		s                domain.RefreshSession
		expires, created int64
		revoked          sql.NullInt64
		replacedBy       sql.NullString
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT jti, user_id, tenant_id, chain_id, expires_at, created_at, revoked_at, replaced_by
		 FROM refresh_sessions WHERE jti = ?`,
		jti,
	).Scan(&s.JTI, &s.UserID, &s.TenantID, &s.ChainID, &expires, &created, &revoked, &replacedBy)
	if err != nil {
		return domain.RefreshSession{}, mapNotFound(err)
	}

	s.ExpiresAt = fromMillis(expires)
	s.CreatedAt = fromMillis(created)
	s.RevokedAt = mapNullMillisPtr(revoked)
	s.ReplacedBy = mapNullString(replacedBy)
	return s, nil
}

func (r *sessionsRepo) MarkReplaced(ctx context.Context, jti, replacedBy string) (bool, error) {
	n, err := rowsAffected(r.db.ExecContext(ctx,
		`UPDATE refresh_sessions SET replaced_by = ?
		 WHERE jti = ? AND replaced_by IS NULL AND revoked_at IS NULL`,
		replacedBy, jti,
	))
	return n == 1, err
}

func (r *sessionsRepo) RevokeChain(ctx context.Context, chainID string, at time.Time) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx,
		`UPDATE refresh_sessions SET revoked_at = ? WHERE chain_id = ? AND revoked_at IS NULL`,
		toMillis(at), chainID,
	))
}

func (r *sessionsRepo) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx,
		`UPDATE refresh_sessions SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`,
		toMillis(at), userID,
	))
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx,
		`DELETE FROM refresh_sessions WHERE expires_at < ?`, toMillis(before)))
}

var _ store.RefreshSessions = (*sessionsRepo)(nil)
