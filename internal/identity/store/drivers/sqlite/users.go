package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	"github.com/aussiebroadwan/storefront/internal/identity/store"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, email, name, password_hash, email_verified, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (domain.User, error) {
	var (
		u                domain.User
		created, updated int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.EmailVerified, &created, &updated); err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := u.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, email_verified, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.EmailVerified, toMillis(now), toMillis(now),
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	return r.touch(ctx, `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, toMillis(time.Now()), userID)
}

func (r *usersRepo) MarkEmailVerified(ctx context.Context, userID string) error {
	return r.touch(ctx, `UPDATE users SET email_verified = 1, updated_at = ? WHERE id = ?`,
		toMillis(time.Now()), userID)
}

func (r *usersRepo) UpdateName(ctx context.Context, userID, name string) error {
	return r.touch(ctx, `UPDATE users SET name = ?, updated_at = ? WHERE id = ?`,
		name, toMillis(time.Now()), userID)
}

// touch runs a single-row update and reports ErrNotFound when nothing matched.
func (r *usersRepo) touch(ctx context.Context, query string, args ...any) error {
	n, err := rowsAffected(r.db.ExecContext(ctx, query, args...))
	if err != nil {
		return err
	}
	if n == 0 {
		return mapNotFound(sql.ErrNoRows)
	}
	return nil
}

var _ store.Users = (*usersRepo)(nil)
