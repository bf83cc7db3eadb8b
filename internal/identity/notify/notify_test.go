package notify_test

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	"github.com/aussiebroadwan/storefront/internal/identity/notify"
	"github.com/aussiebroadwan/storefront/internal/identity/store/drivers/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// fakeMailer fails the first `failures` sends, then records messages.
type fakeMailer struct {
	mu       sync.Mutex
	failures int
	attempts int
	sent     []notify.Message
}

func (m *fakeMailer) Send(_ context.Context, msg notify.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attempts++
	if m.failures > 0 {
		m.failures--
		return errors.New("smtp unavailable")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *fakeMailer) tries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

func (m *fakeMailer) setFailures(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = n
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func newInline(t *testing.T, mailer notify.Mailer) *notify.InlineDispatcher {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "identity.db"))
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	tmpl, err := notify.LoadTemplates()
	require.NoError(t, err)

	return &notify.InlineDispatcher{Templates: tmpl, Mailer: mailer, Ledger: st.Notifications()}
}

func codeNotice(key string) domain.Notification {
	return domain.Notification{
		ID:        "n-" + key,
		DedupKey:  key,
		UserID:    "user-1",
		Recipient: "alice@example.com",
		Kind:      domain.NotifyVerificationCode,
		Data:      map[string]string{"name": "Alice", "code": "482913", "expires_in": "10"},
		CreatedAt: time.Now(),
	}
}

// stalledListener accepts TCP connections and never writes a byte back.
func stalledListener(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		conns []net.Conn
	)
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()

	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			_ = c.Close()
		}
	})
	return ln.Addr().String()
}

func discard() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestTemplatesRenderEveryKind(t *testing.T) {
	tmpl, err := notify.LoadTemplates()
	require.NoError(t, err)

	for _, kind := range []domain.NotificationKind{
		domain.NotifyVerificationCode,
		domain.NotifyEmailVerified,
		domain.NotifyPasswordResetCode,
		domain.NotifyPasswordResetSuccess,
		domain.NotifyPasswordChanged,
	} {
		t.Run(string(kind), func(t *testing.T) {
			n := codeNotice("k")
			n.Kind = kind

			msg, err := tmpl.Render(n)
			require.NoError(t, err)
			require.Equal(t, "alice@example.com", msg.To)
			require.NotEmpty(t, msg.Subject)
			require.NotContains(t, msg.Subject, "\n")
			require.Contains(t, msg.Body, "Hi Alice,")
		})
	}

	msg, err := tmpl.Render(codeNotice("k"))
	require.NoError(t, err)
	require.Contains(t, msg.Body, "482913")
	require.Contains(t, msg.Body, "10 minutes")
}

func TestTemplatesRejectMissingData(t *testing.T) {
	tmpl, err := notify.LoadTemplates()
	require.NoError(t, err)

	n := codeNotice("k")
	delete(n.Data, "code")
	_, err = tmpl.Render(n)
	require.Error(t, err)

	n.Kind = "unknown"
	_, err = tmpl.Render(n)
	require.Error(t, err)
}

func TestInlineDispatcherDedup(t *testing.T) {
	ctx := context.Background()
	mailer := &fakeMailer{}
	d := newInline(t, mailer)

	r := d.Send(ctx, codeNotice("key-1"))
	require.Equal(t, domain.DeliveryReceipt{Path: domain.PathInline, Status: domain.StatusDelivered}, r)

	r = d.Send(ctx, codeNotice("key-1"))
	require.Equal(t, domain.StatusDuplicate, r.Status)
	require.False(t, r.Failed())
	require.Equal(t, 1, mailer.count())

	r = d.Send(ctx, codeNotice("key-2"))
	require.Equal(t, domain.StatusDelivered, r.Status)
	require.Equal(t, 2, mailer.count())
}

func TestInlineDispatcherFailureReleasesLedger(t *testing.T) {
	ctx := context.Background()
	mailer := &fakeMailer{failures: 1}
	d := newInline(t, mailer)

	r := d.Send(ctx, codeNotice("key-1"))
	require.True(t, r.Failed())
	require.ErrorIs(t, r.Err, domain.ErrNotificationDeliveryFailed)
	require.Zero(t, mailer.count())

	// The failed attempt must not block the retry
	r = d.Send(ctx, codeNotice("key-1"))
	require.Equal(t, domain.StatusDelivered, r.Status)
	require.Equal(t, 1, mailer.count())
}

func TestInlineDispatcherWithoutMailer(t *testing.T) {
	d := &notify.InlineDispatcher{}

	r := d.Send(context.Background(), codeNotice("key-1"))
	require.True(t, r.Failed())
	require.ErrorIs(t, r.Err, domain.ErrNotificationDeliveryFailed)
}

func TestQueueDispatcherEnqueues(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	mailer := &fakeMailer{}

	q := &notify.QueueDispatcher{Redis: rdb, Enabled: true, Fallback: newInline(t, mailer)}

	r := q.Send(ctx, codeNotice("key-1"))
	require.Equal(t, domain.DeliveryReceipt{Path: domain.PathQueued, Status: domain.StatusQueued}, r)

	r = q.Send(ctx, codeNotice("key-1"))
	require.Equal(t, domain.StatusDuplicate, r.Status)

	items, err := mr.List(notify.DefaultQueueKey)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Zero(t, mailer.count(), "queued sends are not mailed inline")
}

func TestQueueDispatcherFallsBackInline(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		_, rdb := newTestRedis(t)
		mailer := &fakeMailer{}
		q := &notify.QueueDispatcher{Redis: rdb, Enabled: false, Fallback: newInline(t, mailer)}

		r := q.Send(ctx, codeNotice("key-1"))
		require.Equal(t, domain.PathInline, r.Path)
		require.Equal(t, domain.StatusDelivered, r.Status)
		require.Equal(t, 1, mailer.count())
	})

	t.Run("redis down", func(t *testing.T) {
		mr, rdb := newTestRedis(t)
		mr.Close()

		mailer := &fakeMailer{}
		q := &notify.QueueDispatcher{
			Redis:          rdb,
			Enabled:        true,
			EnqueueTimeout: 100 * time.Millisecond,
			Fallback:       newInline(t, mailer),
		}

		start := time.Now()
		r := q.Send(ctx, codeNotice("key-1"))
		require.Equal(t, domain.PathInline, r.Path)
		require.Equal(t, domain.StatusDelivered, r.Status)
		require.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("redis stalls", func(t *testing.T) {
		addr := stalledListener(t)
		rdb, err := notify.NewRedisClient("redis://"+addr, 100*time.Millisecond)
		require.NoError(t, err)
		t.Cleanup(func() { _ = rdb.Close() })

		mailer := &fakeMailer{}
		q := &notify.QueueDispatcher{
			Redis:          rdb,
			Enabled:        true,
			EnqueueTimeout: 100 * time.Millisecond,
			Fallback:       newInline(t, mailer),
		}

		start := time.Now()
		r := q.Send(ctx, codeNotice("key-1"))
		require.Equal(t, domain.PathInline, r.Path)
		require.Equal(t, domain.StatusDelivered, r.Status)
		require.Less(t, time.Since(start), time.Second)
	})

	t.Run("no fallback", func(t *testing.T) {
		q := &notify.QueueDispatcher{}

		r := q.Send(ctx, codeNotice("key-1"))
		require.True(t, r.Failed())
		require.ErrorIs(t, r.Err, domain.ErrNotificationDeliveryFailed)
	})
}

func TestWorkerDrainsQueue(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	mailer := &fakeMailer{}
	inline := newInline(t, mailer)

	q := &notify.QueueDispatcher{Redis: rdb, Enabled: true, Fallback: inline}
	require.Equal(t, domain.StatusQueued, q.Send(ctx, codeNotice("key-1")).Status)
	require.Equal(t, domain.StatusQueued, q.Send(ctx, codeNotice("key-2")).Status)

	w := notify.NewWorker(rdb, "", inline, discard(), nil)
	w.PollTimeout = time.Second
	w.Start()
	t.Cleanup(w.Stop)

	require.Eventually(t, func() bool { return mailer.count() == 2 }, 5*time.Second, 10*time.Millisecond)

	items, err := mr.List(notify.DefaultQueueKey)
	if err == nil {
		require.Empty(t, items)
	}
}

func TestWorkerRetries(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)

	t.Run("recovers", func(t *testing.T) {
		mailer := &fakeMailer{failures: 2}
		w := notify.NewWorker(rdb, "", newInline(t, mailer), discard(), nil)
		w.Backoff = func(int) time.Duration { return 0 }

		require.Equal(t, domain.StatusDelivered, w.Process(ctx, codeNotice("key-1")))
		require.Equal(t, 3, mailer.attempts)
		require.Equal(t, 1, mailer.count())
	})

	t.Run("gives up", func(t *testing.T) {
		mailer := &fakeMailer{failures: 100}
		w := notify.NewWorker(rdb, "", newInline(t, mailer), discard(), nil)
		w.Backoff = func(int) time.Duration { return 0 }

		require.Equal(t, domain.StatusFailed, w.Process(ctx, codeNotice("key-1")))
		require.Equal(t, 1+notify.DefaultMaxRetries, mailer.attempts)

		// Nothing was claimed for good, so a later attempt still sends
		mailer.setFailures(0)
		require.Equal(t, domain.StatusDelivered, w.Process(ctx, codeNotice("key-1")))
	})

	t.Run("gives up releases dedup marker", func(t *testing.T) {
		mailer := &fakeMailer{failures: 100}
		inline := newInline(t, mailer)
		q := &notify.QueueDispatcher{Redis: rdb, Key: "gives-up", Enabled: true, Fallback: inline}
		w := notify.NewWorker(rdb, "gives-up", inline, discard(), nil)
		w.Backoff = func(int) time.Duration { return 0 }

		require.Equal(t, domain.StatusQueued, q.Send(ctx, codeNotice("key-2")).Status)
		require.Equal(t, domain.StatusFailed, w.Process(ctx, codeNotice("key-2")))
		require.Equal(t, domain.StatusQueued, q.Send(ctx, codeNotice("key-2")).Status)
	})

	t.Run("cancel returns it to the queue", func(t *testing.T) {
		mailer := &fakeMailer{failures: 100}
		w := notify.NewWorker(rdb, "cancelled", newInline(t, mailer), discard(), nil)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		require.Equal(t, domain.StatusQueued, w.Process(cctx, codeNotice("key-3")))

		items, err := mr.List("cancelled")
		require.NoError(t, err)
		require.Len(t, items, 1)
		require.Contains(t, items[0], "key-3")
	})
}

func TestWorkerStopKeepsInFlightNotification(t *testing.T) {
	ctx := context.Background()
	mr, rdb := newTestRedis(t)
	mailer := &fakeMailer{failures: 1}
	inline := newInline(t, mailer)

	q := &notify.QueueDispatcher{Redis: rdb, Enabled: true, Fallback: inline}
	require.Equal(t, domain.StatusQueued, q.Send(ctx, codeNotice("key-1")).Status)

	w := notify.NewWorker(rdb, "", inline, discard(), nil)
	w.PollTimeout = 100 * time.Millisecond
	w.Backoff = func(int) time.Duration { return time.Hour }
	w.Start()

	require.Eventually(t, func() bool { return mailer.tries() == 1 }, 5*time.Second, 10*time.Millisecond)
	w.Stop()

	items, err := mr.List(notify.DefaultQueueKey)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Zero(t, mailer.count())

	// The next worker picks it up and delivers
	next := notify.NewWorker(rdb, "", inline, discard(), nil)
	next.PollTimeout = 100 * time.Millisecond
	next.Start()
	t.Cleanup(next.Stop)

	require.Eventually(t, func() bool { return mailer.count() == 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestBackoff(t *testing.T) {
	tests := map[int]time.Duration{
		0:  time.Second,
		1:  2 * time.Second,
		2:  4 * time.Second,
		5:  32 * time.Second,
		6:  60 * time.Second,
		30: 60 * time.Second,
	}
	for attempt, want := range tests {
		require.Equal(t, want, notify.Backoff(attempt), "attempt %d", attempt)
	}
}

func TestMailers(t *testing.T) {
	msg := notify.Message{To: "alice@example.com", Subject: "hi", Body: "body"}

	require.NoError(t, (&notify.LogMailer{Logger: discard()}).Send(context.Background(), msg))

	err := (&notify.SMTPMailer{}).Send(context.Background(), msg)
	require.Error(t, err)

	// Nothing listens on port 1
	err = (&notify.SMTPMailer{Host: "127.0.0.1", Port: 1, Timeout: time.Second}).Send(context.Background(), msg)
	require.Error(t, err)
}
