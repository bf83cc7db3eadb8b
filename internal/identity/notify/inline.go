package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	"github.com/aussiebroadwan/storefront/internal/identity/metrics"
	"github.com/aussiebroadwan/storefront/internal/identity/store"
	"github.com/aussiebroadwan/storefront/pkg/slogx"
)

// InlineDispatcher renders and mails a notification on the caller's
// goroutine. The ledger is claimed before sending and released on failure,
// so a given dedup key is mailed at most once but may be retried.
type InlineDispatcher struct {
	Templates *Templates
	Mailer    Mailer
	Ledger    store.Notifications
	Metrics   *metrics.Metrics
}

// Send delivers n and reports the outcome. It never returns an error; a
// failed receipt wraps domain.ErrNotificationDeliveryFailed.
func (d *InlineDispatcher) Send(ctx context.Context, n domain.Notification) domain.DeliveryReceipt {
	status, err := d.Deliver(ctx, n)
	d.Metrics.Notified(string(domain.PathInline), string(status))
	if err != nil {
		slogx.FromContext(ctx).Warn("notification delivery failed",
			"kind", n.Kind, "user_id", n.UserID, "dedup_key", n.DedupKey, "error", err)
		return domain.DeliveryReceipt{Path: domain.PathInline, Status: status, Err: err}
	}
	return domain.DeliveryReceipt{Path: domain.PathInline, Status: status}
}

// Deliver does the work of Send without recording metrics, for callers
// like the queue worker that keep their own accounting.
func (d *InlineDispatcher) Deliver(ctx context.Context, n domain.Notification) (domain.DeliveryStatus, error) {
	if d.Ledger != nil && n.DedupKey != "" {
		claimed, err := d.Ledger.ClaimNotification(ctx, n)
		if err != nil {
			return domain.StatusFailed, fmt.Errorf("%w: claim: %w", domain.ErrNotificationDeliveryFailed, err)
		}
		if !claimed {
			slogx.FromContext(ctx).Info("notification already sent", "kind", n.Kind, "dedup_key", n.DedupKey)
			return domain.StatusDuplicate, nil
		}
	}

	if err := d.send(ctx, n); err != nil {
		if d.Ledger != nil && n.DedupKey != "" {
			if rerr := d.Ledger.ReleaseNotification(context.WithoutCancel(ctx), n.DedupKey); rerr != nil {
				err = errors.Join(err, fmt.Errorf("release: %w", rerr))
			}
		}
		return domain.StatusFailed, fmt.Errorf("%w: %w", domain.ErrNotificationDeliveryFailed, err)
	}
	return domain.StatusDelivered, nil
}

func (d *InlineDispatcher) send(ctx context.Context, n domain.Notification) error {
	if d.Mailer == nil || d.Templates == nil {
		return errors.New("no mailer configured")
	}
	msg, err := d.Templates.Render(n)
	if err != nil {
		return err
	}
	return d.Mailer.Send(ctx, msg)
}
