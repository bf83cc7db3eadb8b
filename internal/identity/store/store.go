package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/storefront/internal/identity/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers implement it and
// expose sub-repositories so a transaction-scoped Store hands out repos bound
// to the same transaction.
type Store interface {
	Users() Users
	Tenants() Tenants
	Memberships() Memberships
	OneTimeCodes() OneTimeCodes
	RefreshSessions() RefreshSessions
	Notifications() Notifications

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail expects an already normalised email.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser returns ErrAlreadyExists when the email is taken.
	CreateUser(ctx context.Context, u domain.User) error

	UpdatePasswordHash(ctx context.Context, userID, newHash string) error

	MarkEmailVerified(ctx context.Context, userID string) error

	UpdateName(ctx context.Context, userID, name string) error
}

type Tenants interface {
	GetTenantByID(ctx context.Context, id string) (domain.Tenant, error)

	// GetTenantByDomain expects an already normalised domain.
	GetTenantByDomain(ctx context.Context, domain string) (domain.Tenant, error)

	// CreateTenant returns ErrAlreadyExists when the domain is taken.
	CreateTenant(ctx context.Context, t domain.Tenant) error

	UpdateTenantStatus(ctx context.Context, id string, status domain.TenantStatus) error
}

type Memberships interface {
	GetMembership(ctx context.Context, userID, tenantID string) (domain.Membership, error)

	// UpsertMembership sets the role for (user, tenant), creating the row if
	// it does not exist.
	UpsertMembership(ctx context.Context, m domain.Membership) error

	ListTenantMembers(ctx context.Context, tenantID string) ([]domain.Membership, error)
}

type OneTimeCodes interface {
	// GetLatestCode returns the most recently issued code for (user, purpose)
	// regardless of state.
	GetLatestCode(ctx context.Context, userID string, purpose domain.Purpose) (domain.OneTimeCode, error)

	// SupersedeActiveCodes marks every active code for (user, purpose) as
	// superseded and returns how many rows changed.
	SupersedeActiveCodes(ctx context.Context, userID string, purpose domain.Purpose, at time.Time) (int64, error)

	// CreateCode returns ErrAlreadyExists if an active code for (user, purpose)
	// already exists.
	CreateCode(ctx context.Context, c domain.OneTimeCode) error

	// IncrementAttempts bumps the counter on an active code and returns the
	// new value.
	IncrementAttempts(ctx context.Context, id string) (int, error)

	// ConsumeCode marks an active code consumed. It reports false when the
	// code was no longer active, i.e. someone else consumed it first.
	ConsumeCode(ctx context.Context, id string, at time.Time) (bool, error)

	// DeleteExpiredCodes removes codes that expired before the given time.
	DeleteExpiredCodes(ctx context.Context, before time.Time) (int64, error)
}

type RefreshSessions interface {
	CreateSession(ctx context.Context, s domain.RefreshSession) error

	GetSessionByJTI(ctx context.Context, jti string) (domain.RefreshSession, error)

	// MarkReplaced links jti to its successor only if jti is still usable.
	// It reports false when another caller rotated or revoked it first.
	MarkReplaced(ctx context.Context, jti, replacedBy string) (bool, error)

	RevokeChain(ctx context.Context, chainID string, at time.Time) (int64, error)

	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)

	// DeleteExpiredSessions removes sessions that expired before the given time.
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

// Notifications is the send ledger used to suppress duplicate deliveries.
type Notifications interface {
	// ClaimNotification records the dedup key. It reports false when the key
	// was already claimed by an earlier send.
	ClaimNotification(ctx context.Context, n domain.Notification) (bool, error)

	// ReleaseNotification forgets a claim so a failed send can be retried.
	ReleaseNotification(ctx context.Context, dedupKey string) error

	DeleteNotificationsBefore(ctx context.Context, before time.Time) (int64, error)
}
