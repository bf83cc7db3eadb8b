package domain

import (
	"errors"
	"time"
)

// ErrNotificationDeliveryFailed marks a receipt whose send did not go out.
// It is a warning only and never fails the workflow that triggered the send.
var ErrNotificationDeliveryFailed = errors.New("notification_delivery_failed")

type NotificationKind string

const (
	NotifyVerificationCode     NotificationKind = "verification_code"
	NotifyEmailVerified        NotificationKind = "email_verified"
	NotifyPasswordResetCode    NotificationKind = "password_reset_code"
	NotifyPasswordResetSuccess NotificationKind = "password_reset_success"
	NotifyPasswordChanged      NotificationKind = "password_changed"
)

// Notification is one account email. DedupKey is stable across retries of
// the same logical send.
type Notification struct {
	ID        string            `json:"id"`
	DedupKey  string            `json:"dedup_key"`
	UserID    string            `json:"user_id"`
	Recipient string            `json:"recipient"`
	Kind      NotificationKind  `json:"kind"`
	Data      map[string]string `json:"data,omitempty"`
	Attempt   int               `json:"attempt,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type DeliveryPath string

const (
	PathQueued DeliveryPath = "queued"
	PathInline DeliveryPath = "inline"
)

type DeliveryStatus string

const (
	StatusQueued    DeliveryStatus = "queued"
	StatusDelivered DeliveryStatus = "delivered"
	StatusDuplicate DeliveryStatus = "duplicate"
	StatusFailed    DeliveryStatus = "failed"
)

// DeliveryReceipt reports how a send went. A failed receipt is a warning for
// the caller, never a reason to fail its own operation.
type DeliveryReceipt struct {
	Path   DeliveryPath
	Status DeliveryStatus
	Err    error
}

func (r DeliveryReceipt) Failed() bool { return r.Status == StatusFailed }
