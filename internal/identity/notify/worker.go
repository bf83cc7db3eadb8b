package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	"github.com/aussiebroadwan/storefront/internal/identity/metrics"
	"github.com/redis/go-redis/v9"
)

const (
	// DefaultMaxRetries is how many times a failed delivery is retried
	// after the first attempt.
	DefaultMaxRetries = 3

	maxBackoff     = 60 * time.Second
	requeueTimeout = 2 * time.Second
)

// Backoff returns the wait before retry number attempt (0-based):
// 1s, 2s, 4s, ... capped at 60s.
func Backoff(attempt int) time.Duration {
	if attempt >= 6 {
		return maxBackoff
	}
	return min(time.Duration(1<<attempt)*time.Second, maxBackoff)
}

// Worker drains the notification queue and delivers each entry through an
// InlineDispatcher, retrying failures with exponential backoff.
type Worker struct {
	Redis      *redis.Client
	Key        string
	Deliverer  *InlineDispatcher
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	MaxRetries int

	// PollTimeout is the BRPOP block time. Defaults to 5s.
	PollTimeout time.Duration

	// Backoff overrides the retry schedule, mainly for tests.
	Backoff func(attempt int) time.Duration

	cancel context.CancelFunc
	doneCh chan struct{}
}

// NewWorker creates a worker for the given queue key.
func NewWorker(rdb *redis.Client, key string, d *InlineDispatcher, logger *slog.Logger, m *metrics.Metrics) *Worker {
	if key == "" {
		key = DefaultQueueKey
	}
	return &Worker{
		Redis:      rdb,
		Key:        key,
		Deliverer:  d,
		Logger:     logger,
		Metrics:    m,
		MaxRetries: DefaultMaxRetries,
	}
}

// Start begins draining in the background. Call Stop() to shut it down.
func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.doneCh = make(chan struct{})

	go w.run(ctx)
	w.Logger.Info("notification worker started", "queue", w.Key)
}

// Stop blocks until the entry being processed, if any, is delivered or
// returned to the queue.
func (w *Worker) Stop() {
	if w.cancel == nil {
		return
	}
	w.cancel()
	<-w.doneCh
	w.Logger.Info("notification worker stopped")
}

func (w *Worker) pollTimeout() time.Duration {
	if w.PollTimeout > 0 {
		return w.PollTimeout
	}
	return 5 * time.Second
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.doneCh)

	for ctx.Err() == nil {
		res, err := w.Redis.BRPop(ctx, w.pollTimeout(), w.Key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			w.Logger.Error("notification queue read failed", "error", err)
			if !sleep(ctx, time.Second) {
				return
			}
			continue
		}

		if depth, err := w.Redis.LLen(ctx, w.Key).Result(); err == nil {
			w.Metrics.SetQueueDepth(depth)
		}

		// BRPOP replies with [key, value]
		var n domain.Notification
		if err := json.Unmarshal([]byte(res[1]), &n); err != nil {
			w.Logger.Error("dropping malformed notification", "error", err)
			continue
		}
		w.Process(ctx, n)
	}
}

// Process delivers one notification with retries and returns the final
// status. When ctx ends before delivery succeeds the notification is pushed
// back onto the queue and StatusQueued is returned. Giving up after the last
// retry drops the dedup marker so the same notification can be sent again.
func (w *Worker) Process(ctx context.Context, n domain.Notification) domain.DeliveryStatus {
	backoff := w.Backoff
	if backoff == nil {
		backoff = Backoff
	}
	log := w.Logger.With("kind", n.Kind, "user_id", n.UserID, "dedup_key", n.DedupKey)

	for attempt := 0; ; attempt++ {
		n.Attempt = attempt + 1

		status, err := w.Deliverer.Deliver(ctx, n)
		if err == nil {
			w.Metrics.Notified(string(domain.PathQueued), string(status))
			log.Info("notification delivered", "status", status, "attempt", n.Attempt)
			return status
		}
		if ctx.Err() != nil {
			return w.requeue(n, log)
		}

		if attempt >= w.MaxRetries {
			w.Metrics.Notified(string(domain.PathQueued), string(domain.StatusFailed))
			log.Error("notification delivery gave up", "attempts", n.Attempt, "error", err)
			w.forget(n, log)
			return domain.StatusFailed
		}

		wait := backoff(attempt)
		log.Warn("notification delivery failed, retrying", "attempt", n.Attempt, "retry_in", wait, "error", err)
		if !sleep(ctx, wait) {
			return w.requeue(n, log)
		}
	}
}

// requeue puts an abandoned notification back at the consuming end of the
// list so the next worker picks it up first.
func (w *Worker) requeue(n domain.Notification, log *slog.Logger) domain.DeliveryStatus {
	n.Attempt = 0
	payload, err := json.Marshal(n)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), requeueTimeout)
		defer cancel()
		err = w.Redis.RPush(ctx, w.Key, payload).Err()
	}
	if err != nil {
		w.Metrics.Notified(string(domain.PathQueued), string(domain.StatusFailed))
		log.Error("notification lost on shutdown", "error", err)
		w.forget(n, log)
		return domain.StatusFailed
	}

	log.Info("notification returned to queue")
	return domain.StatusQueued
}

// forget removes the enqueue dedup marker of a notification that will not
// be delivered.
func (w *Worker) forget(n domain.Notification, log *slog.Logger) {
	if n.DedupKey == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), requeueTimeout)
	defer cancel()
	if err := w.Redis.Del(ctx, dedupMarker(n.DedupKey)).Err(); err != nil {
		log.Warn("notification dedup marker not released", "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
