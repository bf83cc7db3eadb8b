package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	"github.com/aussiebroadwan/storefront/internal/identity/store"
)

type notificationsRepo struct {
	db dbtx
}

func (r *notificationsRepo) ClaimNotification(ctx context.Context, n domain.Notification) (bool, error) {
	created := n.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	affected, err := rowsAffected(r.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO notifications_sent (dedup_key, user_id, kind, created_at)
		 VALUES (?, ?, ?, ?)`,
		n.DedupKey, n.UserID, string(n.Kind), toMillis(created),
	))
	return affected == 1, err
}

func (r *notificationsRepo) ReleaseNotification(ctx context.Context, dedupKey string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM notifications_sent WHERE dedup_key = ?`, dedupKey)
	return err
}

func (r *notificationsRepo) DeleteNotificationsBefore(ctx context.Context, before time.Time) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx,
		`DELETE FROM notifications_sent WHERE created_at < ?`, toMillis(before)))
}

var _ store.Notifications = (*notificationsRepo)(nil)
