package service

import (
	"context"
	"strconv"
	"time"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
	"github.com/aussiebroadwan/storefront/pkg/idx"
	"github.com/google/uuid"
)

// NotificationDispatcher delivers account notifications on a best-effort
// basis. Send never blocks for long and its receipt is informational only.
type NotificationDispatcher interface {
	Send(ctx context.Context, n domain.Notification) domain.DeliveryReceipt
}

// notificationNamespace scopes dedup keys so they can't collide with any
// other UUIDv5 use.
var notificationNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("storefront:identity:notifications"))

// NotificationKey derives the dedup key for one logical send. The same
// (user, kind, version) always yields the same key, so retries collapse.
func NotificationKey(userID string, kind domain.NotificationKind, version int64) string {
	name := userID + "|" + string(kind) + "|" + strconv.FormatInt(version, 10)
	return uuid.NewSHA1(notificationNamespace, []byte(name)).String()
}

func newNotification(u domain.User, kind domain.NotificationKind, version int64, data map[string]string) domain.Notification {
	if data == nil {
		data = map[string]string{}
	}
	if _, ok := data["name"]; !ok {
		data["name"] = u.Name
	}

	now := time.Now()
	return domain.Notification{
		ID:        idx.NewAt(now).String(),
		DedupKey:  NotificationKey(u.ID, kind, version),
		UserID:    u.ID,
		Recipient: u.Email,
		Kind:      kind,
		Data:      data,
		CreatedAt: now,
	}
}

func codeNotification(u domain.User, purpose domain.Purpose, issued domain.IssuedCode) domain.Notification {
	kind := domain.NotifyVerificationCode
	if purpose == domain.PurposePasswordReset {
		kind = domain.NotifyPasswordResetCode
	}
	return newNotification(u, kind, issued.Version, map[string]string{
		"code":       issued.Code,
		"expires_in": strconv.Itoa(int(time.Until(issued.ExpiresAt).Round(time.Minute) / time.Minute)),
	})
}
