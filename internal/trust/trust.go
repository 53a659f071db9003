// Package trust maintains the per-user trust ledger for PayPilot.
//
// Trust is a bounded [0,100] behavioral signal. Every recorded override
// decays it by 5 points; thirty quiet days after the most recent override
// recover 10 points. The ledger is the only writer of trust state; risk
// evaluation reads it but never creates or mutates users.
package trust

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrUserNotFound    = errors.New("trust: user not found")
	ErrUserExists      = errors.New("trust: user already exists")
	ErrVersionConflict = errors.New("trust: concurrent update conflict")
)

// Score bounds and adjustment steps.
const (
	MinScore     = 0
	MaxScore     = 100
	DefaultScore = 100

	DecayStep    = 5
	RecoveryStep = 10

	// RecoveryQuietDays is the override-free period after which trust
	// recovers. The boundary is inclusive: exactly 30 days qualifies.
	RecoveryQuietDays = 30
)

// Override records a user's explicit choice to proceed against a WARN or
// BLOCK decision. Overrides are immutable once created and owned exclusively
// by their user.
type Override struct {
	ID        string    `json:"-"`
	Date      time.Time `json:"date"`
	RiskScore int       `json:"riskScore"`
	Decision  string    `json:"decision"`
}

// User is the durable trust record for one identity.
//
// LastOverrideAt is nil when no decay/recovery cycle is pending; it is set on
// every recorded override and cleared exactly when a recovery fires. Version
// backs the store's compare-and-swap update.
type User struct {
	UserID         string     `json:"userId"`
	TrustScore     int        `json:"trustScore"`
	LastOverrideAt *time.Time `json:"lastOverrideAt"`
	Overrides      []Override `json:"overrides"`
	Version        int64      `json:"-"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// NewUser creates a fresh user with full trust and no history.
func NewUser(userID string, now time.Time) *User {
	return &User{
		UserID:     userID,
		TrustScore: DefaultScore,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Store persists users and their override history.
//
// Save must apply the trust fields and the optional new override atomically:
// a failed save leaves neither applied. Implementations reject stale writes
// with ErrVersionConflict using the user's Version.
type Store interface {
	// Get loads a user with the full override history, oldest first.
	Get(ctx context.Context, userID string) (*User, error)

	// Create inserts a new user. Returns ErrUserExists on duplicate.
	Create(ctx context.Context, u *User) error

	// Save persists trust score and lastOverrideAt, appending newOverride
	// when non-nil. All-or-nothing.
	Save(ctx context.Context, u *User, newOverride *Override) error
}
