package store

import (
	"context"
	"errors"

	"github.com/crestvale/identity/internal/identity/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers implement it.
// Sub-repositories are exposed as methods so transactional and plain access
// share the same repo types.
type Store interface {
	Users() Users
	MFAFactors() MFAFactors

	ApplyMigrations() error

	// Tx starts a read/write transaction scoped Store. The caller MUST
	// call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, committing when fn returns
	// nil and rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases the underlying database handle.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetByID returns a user by id.
	GetByID(ctx context.Context, id string) (domain.User, error)

	// GetByEmail looks a user up by email, case-insensitively.
	GetByEmail(ctx context.Context, email string) (domain.User, error)

	// GetByFederatedSubject looks a user up by provider subject id.
	GetByFederatedSubject(ctx context.Context, subject string) (domain.User, error)

	// Create inserts a new user (id is provided by the app via ULID).
	// Returns ErrAlreadyExists when the email is already taken.
	Create(ctx context.Context, u domain.User) error

	// SetMFAFactorID sets or clears the active-factor back-reference.
	SetMFAFactorID(ctx context.Context, userID string, factorID *string) error

	// SetWalletAddress records a provisioned wallet address.
	SetWalletAddress(ctx context.Context, userID string, address string) error

	// SetBackingAccountID records the backing-service account id.
	SetBackingAccountID(ctx context.Context, userID string, accountID string) error

	// TouchLastLogin bumps last_login_at to now.
	TouchLastLogin(ctx context.Context, userID string) error
}

type MFAFactors interface {
	// GetByID returns a factor by its local id.
	GetByID(ctx context.Context, id string) (domain.MFAFactor, error)

	// GetByBackingID returns a factor by the backing-service factor id.
	GetByBackingID(ctx context.Context, backingID string) (domain.MFAFactor, error)

	// FindActiveByUser returns the user's single active factor.
	FindActiveByUser(ctx context.Context, userID string) (domain.MFAFactor, error)

	// ListByUser returns a user's factors, optionally active only,
	// ordered by enrollment date (newest first).
	ListByUser(ctx context.Context, userID string, activeOnly bool) ([]domain.MFAFactor, error)

	// Upsert inserts or refreshes a factor keyed by backing factor id.
	// The partial unique index on (user_id) WHERE active rejects a second
	// active factor with ErrAlreadyExists.
	Upsert(ctx context.Context, f domain.MFAFactor) error

	// Delete removes a factor record.
	Delete(ctx context.Context, id string) error

	// TouchLastUsed bumps last_used_at to now.
	TouchLastUsed(ctx context.Context, id string) error
}
