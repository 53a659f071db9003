package trust

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mbd888/paypilot/internal/idgen"
	"github.com/mbd888/paypilot/internal/metrics"
	"github.com/mbd888/paypilot/internal/syncutil"
)

// msPerDay is the divisor for the quiet-period calculation. The subtraction
// is exact milliseconds, so fractional days count: 29.9 days is not enough.
const msPerDay = 86_400_000

// Clock supplies the current instant; injected for tests.
type Clock func() time.Time

// Ledger serializes all trust-state transitions per user. Concurrent calls
// for the same user queue behind a keyed mutex for the full read-modify-write
// span; different users proceed in parallel.
type Ledger struct {
	store  Store
	locks  *syncutil.KeyedMutex
	clock  Clock
	logger *slog.Logger
}

// NewLedger creates a trust ledger backed by the given store.
func NewLedger(store Store, logger *slog.Logger) *Ledger {
	return &Ledger{
		store:  store,
		locks:  syncutil.NewKeyedMutex(),
		clock:  time.Now,
		logger: logger,
	}
}

// WithClock overrides the time source (for tests).
func (l *Ledger) WithClock(c Clock) *Ledger {
	l.clock = c
	return l
}

// Get returns the user with full history, or ErrUserNotFound.
func (l *Ledger) Get(ctx context.Context, userID string) (*User, error) {
	return l.store.Get(ctx, userID)
}

// ApplyRecovery refreshes a user's trust score before it is read for a
// decision. If the user's most recent override is at least 30 days old and
// their score sits below 100, the score recovers one step and the recovery
// clock is cleared; the next recovery needs a fresh override to restart it.
// The refreshed state is persisted before it is returned, so downstream
// consumers always see what the store sees.
//
// Returns (nil, nil) when the user does not exist: evaluation tolerates
// absent users and must not create them.
func (l *Ledger) ApplyRecovery(ctx context.Context, userID string) (*User, error) {
	unlock, err := l.locks.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	u, err := l.store.Get(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	if !recoveryDue(u, l.clock()) {
		return u, nil
	}

	u.TrustScore = min(u.TrustScore+RecoveryStep, MaxScore)
	u.LastOverrideAt = nil
	u.UpdatedAt = l.clock()

	if err := l.store.Save(ctx, u, nil); err != nil {
		return nil, fmt.Errorf("persist recovery: %w", err)
	}

	metrics.TrustRecoveriesTotal.Inc()
	l.logger.Info("trust recovered",
		"user_id", userID,
		"trust_score", u.TrustScore,
	)
	return u, nil
}

// recoveryDue reports whether the quiet period has elapsed. No pending cycle
// or an already-full score means no recovery.
func recoveryDue(u *User, now time.Time) bool {
	if u.LastOverrideAt == nil || u.TrustScore >= MaxScore {
		return false
	}
	days := float64(now.Sub(*u.LastOverrideAt).Milliseconds()) / msPerDay
	return days >= RecoveryQuietDays
}

// RecordOverride appends an override to the user's history, restarts the
// recovery clock, and decays trust by one step (floor 0). The user is created
// lazily on their first override. The append, the clock reset, and the decay
// persist together or not at all.
//
// Calling this twice with identical arguments records two overrides and
// decays twice. Callers that retry must deduplicate themselves.
func (l *Ledger) RecordOverride(ctx context.Context, userID string, riskScore int, decision string) (*User, error) {
	unlock, err := l.locks.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	now := l.clock()

	u, err := l.store.Get(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		u = NewUser(userID, now)
		if err := l.store.Create(ctx, u); err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	ov := Override{
		ID:        idgen.WithPrefix("ovr_"),
		Date:      now,
		RiskScore: riskScore,
		Decision:  decision,
	}

	u.Overrides = append(u.Overrides, ov)
	// Most recent override wins: even a mid-flight recovery window restarts.
	u.LastOverrideAt = &now
	u.TrustScore = max(u.TrustScore-DecayStep, MinScore)
	u.UpdatedAt = now

	if err := l.store.Save(ctx, u, &ov); err != nil {
		return nil, fmt.Errorf("persist override: %w", err)
	}

	metrics.OverridesTotal.WithLabelValues(decision).Inc()
	l.logger.Info("override recorded",
		"user_id", userID,
		"risk_score", riskScore,
		"decision", decision,
		"trust_score", u.TrustScore,
		"override_count", len(u.Overrides),
	)
	return u, nil
}
