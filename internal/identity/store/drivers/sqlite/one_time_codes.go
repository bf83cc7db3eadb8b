package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	"github.com/aussiebroadwan/storefront/internal/identity/store"
)

type codesRepo struct {
	db dbtx
}

func (r *codesRepo) GetLatestCode(ctx context.Context, userID string, purpose domain.Purpose) (domain.OneTimeCode, error) {
	var (
		c                  domain.OneTimeCode
		issued, expires    int64
		consumed, replaced sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, purpose, code_hash, version, attempts, issued_at, expires_at, consumed_at, superseded_at
		 FROM one_time_codes
		 WHERE user_id = ? AND purpose = ?
		 ORDER BY version DESC
		 LIMIT 1`,
		userID, string(purpose),
	).Scan(&c.ID, &c.UserID, &c.Purpose, &c.CodeHash, &c.Version, &c.Attempts,
		&issued, &expires, &consumed, &replaced)
	if err != nil {
		return domain.OneTimeCode{}, mapNotFound(err)
	}

	c.IssuedAt = fromMillis(issued)
	c.ExpiresAt = fromMillis(expires)
	c.ConsumedAt = mapNullMillisPtr(consumed)
	c.SupersededAt = mapNullMillisPtr(replaced)
	return c, nil
}

func (r *codesRepo) SupersedeActiveCodes(ctx context.Context, userID string, purpose domain.Purpose, at time.Time) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx,
		`UPDATE one_time_codes SET superseded_at = ?
		 WHERE user_id = ? AND purpose = ? AND consumed_at IS NULL AND superseded_at IS NULL`,
		toMillis(at), userID, string(purpose),
	))
}

func (r *codesRepo) CreateCode(ctx context.Context, c domain.OneTimeCode) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO one_time_codes (id, user_id, purpose, code_hash, version, attempts, issued_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
		c.ID, c.UserID, string(c.Purpose), c.CodeHash, c.Version, toMillis(c.IssuedAt), toMillis(c.ExpiresAt),
	)
	return mapConstraint(err)
}

func (r *codesRepo) IncrementAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	err := r.db.QueryRowContext(ctx,
		`UPDATE one_time_codes SET attempts = attempts + 1
		 WHERE id = ? AND consumed_at IS NULL AND superseded_at IS NULL
		 RETURNING attempts`,
		id,
	).Scan(&attempts)
	if err != nil {
		return 0, mapNotFound(err)
	}
	return attempts, nil
}

func (r *codesRepo) ConsumeCode(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := rowsAffected(r.db.ExecContext(ctx,
		`UPDATE one_time_codes SET consumed_at = ?
		 WHERE id = ? AND consumed_at IS NULL AND superseded_at IS NULL`,
		toMillis(at), id,
	))
	return n == 1, err
}

func (r *codesRepo) DeleteExpiredCodes(ctx context.Context, before time.Time) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx,
		`DELETE FROM one_time_codes WHERE expires_at < ?`, toMillis(before)))
}

var _ store.OneTimeCodes = (*codesRepo)(nil)
