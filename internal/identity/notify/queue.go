package notify

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	"github.com/aussiebroadwan/storefront/internal/identity/metrics"
	"github.com/aussiebroadwan/storefront/pkg/slogx"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultQueueKey is the Redis list notifications are pushed to.
	DefaultQueueKey = "storefront:notifications"

	// DefaultEnqueueTimeout bounds the Redis round trips of one Send.
	DefaultEnqueueTimeout = 500 * time.Millisecond

	dedupPrefix = "storefront:notifications:dedup:"
	dedupTTL    = 24 * time.Hour
)

// NewRedisClient parses url and returns a client whose commands honour
// context deadlines. Socket timeouts are capped at enqueueTimeout so a Redis
// that accepts connections but never answers can't hold a request longer
// than that.
func NewRedisClient(url string, enqueueTimeout time.Duration) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if enqueueTimeout <= 0 {
		enqueueTimeout = DefaultEnqueueTimeout
	}

	opts.ContextTimeoutEnabled = true
	if opts.ReadTimeout <= 0 || opts.ReadTimeout > enqueueTimeout {
		opts.ReadTimeout = enqueueTimeout
	}
	if opts.WriteTimeout <= 0 || opts.WriteTimeout > enqueueTimeout {
		opts.WriteTimeout = enqueueTimeout
	}
	return redis.NewClient(opts), nil
}

// QueueDispatcher pushes notifications onto a Redis list for the Worker.
// When the queue is disabled or Redis doesn't answer within the enqueue
// timeout, it falls back to delivering inline.
type QueueDispatcher struct {
	Redis          *redis.Client
	Key            string
	Enabled        bool
	EnqueueTimeout time.Duration
	Fallback       *InlineDispatcher
	Metrics        *metrics.Metrics
}

func (q *QueueDispatcher) key() string {
	if q.Key != "" {
		return q.Key
	}
	return DefaultQueueKey
}

func (q *QueueDispatcher) timeout() time.Duration {
	if q.EnqueueTimeout > 0 {
		return q.EnqueueTimeout
	}
	return DefaultEnqueueTimeout
}

func (q *QueueDispatcher) Send(ctx context.Context, n domain.Notification) domain.DeliveryReceipt {
	if !q.Enabled || q.Redis == nil {
		return q.fallback(ctx, n)
	}

	status, err := q.enqueue(ctx, n)
	if err != nil {
		slogx.FromContext(ctx).Warn("notification enqueue failed, delivering inline",
			"kind", n.Kind, "user_id", n.UserID, "error", err)
		return q.fallback(ctx, n)
	}

	q.Metrics.Notified(string(domain.PathQueued), string(status))
	return domain.DeliveryReceipt{Path: domain.PathQueued, Status: status}
}

// enqueue sets the dedup marker and pushes n. A marker that already exists
// means the same logical send was queued before.
func (q *QueueDispatcher) enqueue(ctx context.Context, n domain.Notification) (domain.DeliveryStatus, error) {
	payload, err := json.Marshal(n)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, q.timeout())
	defer cancel()

	marker := dedupMarker(n.DedupKey)
	if n.DedupKey != "" {
		fresh, err := q.Redis.SetNX(ctx, marker, n.ID, dedupTTL).Result()
		if err != nil {
			return "", err
		}
		if !fresh {
			return domain.StatusDuplicate, nil
		}
	}

	if err := q.Redis.LPush(ctx, q.key(), payload).Err(); err != nil {
		if n.DedupKey != "" {
			// Best effort. A stuck marker would only hide a later enqueue of
			// the same key until dedupTTL runs out
			cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.timeout())
			defer cancel()
			err = errors.Join(err, q.Redis.Del(cleanup, marker).Err())
		}
		return "", err
	}
	return domain.StatusQueued, nil
}

func dedupMarker(key string) string { return dedupPrefix + key }

func (q *QueueDispatcher) fallback(ctx context.Context, n domain.Notification) domain.DeliveryReceipt {
	if q.Fallback == nil {
		q.Metrics.Notified(string(domain.PathInline), string(domain.StatusFailed))
		return domain.DeliveryReceipt{
			Path:   domain.PathInline,
			Status: domain.StatusFailed,
			Err:    domain.ErrNotificationDeliveryFailed,
		}
	}
	return q.Fallback.Send(ctx, n)
}
