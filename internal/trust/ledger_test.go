package trust

import (
	"context"
	"sync"
	"testing"
	"time"

	"log/slog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fixedClock returns a clock pinned to t that tests can advance.
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock(t time.Time) *fixedClock {
	return &fixedClock{now: t}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLedger(clock *fixedClock) (*Ledger, *MemoryStore) {
	store := NewMemoryStore()
	l := NewLedger(store, testLogger()).WithClock(clock.Now)
	return l, store
}

func TestRecordOverride_LazyCreation(t *testing.T) {
	clock := newFixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	l, _ := newTestLedger(clock)
	ctx := context.Background()

	u, err := l.RecordOverride(ctx, "alice", 72, "BLOCK")
	if err != nil {
		t.Fatalf("RecordOverride: %v", err)
	}
	if u.TrustScore != 95 {
		t.Errorf("expected trust 95 after first override, got %d", u.TrustScore)
	}
	if len(u.Overrides) != 1 {
		t.Fatalf("expected 1 override, got %d", len(u.Overrides))
	}
	if u.Overrides[0].RiskScore != 72 || u.Overrides[0].Decision != "BLOCK" {
		t.Errorf("override not recorded faithfully: %+v", u.Overrides[0])
	}
	if u.LastOverrideAt == nil || !u.LastOverrideAt.Equal(clock.Now()) {
		t.Errorf("lastOverrideAt should be the override instant, got %v", u.LastOverrideAt)
	}
}

func TestRecordOverride_DecaySequence(t *testing.T) {
	clock := newFixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	l, _ := newTestLedger(clock)
	ctx := context.Background()

	want := []int{95, 90, 85}
	for i, expected := range want {
		clock.Advance(time.Hour)
		u, err := l.RecordOverride(ctx, "bob", 55, "WARN")
		if err != nil {
			t.Fatalf("override %d: %v", i+1, err)
		}
		if u.TrustScore != expected {
			t.Errorf("after override %d expected trust %d, got %d", i+1, expected, u.TrustScore)
		}
		if len(u.Overrides) != i+1 {
			t.Errorf("after override %d expected %d history entries, got %d", i+1, i+1, len(u.Overrides))
		}
	}
}

func TestRecordOverride_FloorAtZero(t *testing.T) {
	clock := newFixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	l, _ := newTestLedger(clock)
	ctx := context.Background()

	var u *User
	var err error
	for i := 0; i < 25; i++ {
		u, err = l.RecordOverride(ctx, "carol", 80, "BLOCK")
		if err != nil {
			t.Fatalf("override %d: %v", i+1, err)
		}
	}
	if u.TrustScore != 0 {
		t.Errorf("trust should floor at 0, got %d", u.TrustScore)
	}
	if len(u.Overrides) != 25 {
		t.Errorf("history should keep growing past the floor, got %d entries", len(u.Overrides))
	}
}

func TestApplyRecovery_AfterQuietPeriod(t *testing.T) {
	clock := newFixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	l, _ := newTestLedger(clock)
	ctx := context.Background()

	if _, err := l.RecordOverride(ctx, "dave", 60, "WARN"); err != nil {
		t.Fatalf("RecordOverride: %v", err)
	}

	clock.Advance(30 * 24 * time.Hour)

	u, err := l.ApplyRecovery(ctx, "dave")
	if err != nil {
		t.Fatalf("ApplyRecovery: %v", err)
	}
	if u.TrustScore != 100 {
		t.Errorf("expected trust 95+10 capped at 100, got %d", u.TrustScore)
	}
	if u.LastOverrideAt != nil {
		t.Errorf("recovery should clear lastOverrideAt, got %v", u.LastOverrideAt)
	}
}

func TestApplyRecovery_ExactBoundaryInclusive(t *testing.T) {
	clock := newFixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	l, _ := newTestLedger(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := l.RecordOverride(ctx, "erin", 60, "WARN"); err != nil {
			t.Fatalf("RecordOverride: %v", err)
		}
	}

	// Exactly 30 days, to the millisecond.
	clock.Advance(30 * 24 * time.Hour)

	u, err := l.ApplyRecovery(ctx, "erin")
	if err != nil {
		t.Fatalf("ApplyRecovery: %v", err)
	}
	if u.TrustScore != 95 {
		t.Errorf("expected 85+10 at the inclusive boundary, got %d", u.TrustScore)
	}
}

func TestApplyRecovery_JustUnderBoundary(t *testing.T) {
	clock := newFixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	l, _ := newTestLedger(clock)
	ctx := context.Background()

	if _, err := l.RecordOverride(ctx, "frank", 60, "WARN"); err != nil {
		t.Fatalf("RecordOverride: %v", err)
	}

	clock.Advance(30*24*time.Hour - time.Second)

	u, err := l.ApplyRecovery(ctx, "frank")
	if err != nil {
		t.Fatalf("ApplyRecovery: %v", err)
	}
	if u.TrustScore != 95 {
		t.Errorf("29.99 days should not recover, got %d", u.TrustScore)
	}
	if u.LastOverrideAt == nil {
		t.Error("lastOverrideAt must survive a non-recovery")
	}
}

func TestApplyRecovery_SingleStepPerQuietPeriod(t *testing.T) {
	clock := newFixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	l, _ := newTestLedger(clock)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := l.RecordOverride(ctx, "grace", 60, "WARN"); err != nil {
			t.Fatalf("RecordOverride: %v", err)
		}
	}

	clock.Advance(90 * 24 * time.Hour)

	u, err := l.ApplyRecovery(ctx, "grace")
	if err != nil {
		t.Fatalf("ApplyRecovery: %v", err)
	}
	if u.TrustScore != 90 {
		t.Errorf("a long quiet period is still one step: expected 80+10, got %d", u.TrustScore)
	}

	// The clock is cleared, so a second call recovers nothing more.
	u, err = l.ApplyRecovery(ctx, "grace")
	if err != nil {
		t.Fatalf("second ApplyRecovery: %v", err)
	}
	if u.TrustScore != 90 {
		t.Errorf("recovery must not repeat without a new override, got %d", u.TrustScore)
	}
}

func TestApplyRecovery_FullTrustDoesNotRecover(t *testing.T) {
	clock := newFixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	l, store := newTestLedger(clock)
	ctx := context.Background()

	// Seed a user at full trust with a stale override timestamp. This state
	// is unreachable through the ledger but guards the cap independently.
	past := clock.Now().Add(-60 * 24 * time.Hour)
	u := NewUser("heidi", past)
	u.LastOverrideAt = &past
	if err := store.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := l.ApplyRecovery(ctx, "heidi")
	if err != nil {
		t.Fatalf("ApplyRecovery: %v", err)
	}
	if got.TrustScore != 100 {
		t.Errorf("trust must stay at 100, got %d", got.TrustScore)
	}
}

func TestApplyRecovery_UnknownUser(t *testing.T) {
	clock := newFixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	l, store := newTestLedger(clock)
	ctx := context.Background()

	u, err := l.ApplyRecovery(ctx, "nobody")
	if err != nil {
		t.Fatalf("ApplyRecovery on unknown user must not error: %v", err)
	}
	if u != nil {
		t.Errorf("expected nil user, got %+v", u)
	}

	// Evaluation paths must never create users.
	if _, err := store.Get(ctx, "nobody"); err != ErrUserNotFound {
		t.Errorf("unknown user must not be created by recovery, got err %v", err)
	}
}

func TestRecordOverride_RestartsRecoveryClock(t *testing.T) {
	clock := newFixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	l, _ := newTestLedger(clock)
	ctx := context.Background()

	if _, err := l.RecordOverride(ctx, "ivan", 60, "WARN"); err != nil {
		t.Fatalf("RecordOverride: %v", err)
	}

	// 29 days in, a fresh override restarts the quiet period.
	clock.Advance(29 * 24 * time.Hour)
	if _, err := l.RecordOverride(ctx, "ivan", 60, "WARN"); err != nil {
		t.Fatalf("second RecordOverride: %v", err)
	}

	// 29 more days: 58 since the first override but only 29 since the last.
	clock.Advance(29 * 24 * time.Hour)
	u, err := l.ApplyRecovery(ctx, "ivan")
	if err != nil {
		t.Fatalf("ApplyRecovery: %v", err)
	}
	if u.TrustScore != 90 {
		t.Errorf("recovery clock should restart on override, got trust %d", u.TrustScore)
	}

	clock.Advance(24 * time.Hour)
	u, err = l.ApplyRecovery(ctx, "ivan")
	if err != nil {
		t.Fatalf("ApplyRecovery: %v", err)
	}
	if u.TrustScore != 100 {
		t.Errorf("30 days after the last override trust should recover, got %d", u.TrustScore)
	}
}

func TestRecordOverride_ConcurrentSameUser(t *testing.T) {
	clock := newFixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	l, store := newTestLedger(clock)
	ctx := context.Background()

	const n = 10
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.RecordOverride(ctx, "judy", 60, "WARN"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent override failed: %v", err)
	}

	u, err := store.Get(ctx, "judy")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if u.TrustScore != 100-n*DecayStep {
		t.Errorf("expected trust %d after %d serialized overrides, got %d", 100-n*DecayStep, n, u.TrustScore)
	}
	if len(u.Overrides) != n {
		t.Errorf("expected %d overrides, got %d", n, len(u.Overrides))
	}
}

func TestMemoryStore_VersionConflict(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	u := NewUser("kate", now)
	if err := store.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}

	stale := copyUser(u)

	u.TrustScore = 95
	if err := store.Save(ctx, u, nil); err != nil {
		t.Fatalf("Save: %v", err)
	}

	stale.TrustScore = 90
	if err := store.Save(ctx, stale, nil); err != ErrVersionConflict {
		t.Errorf("expected ErrVersionConflict, got %v", err)
	}
}

func TestMemoryStore_SaveRejectsDetachedOverride(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	u := NewUser("nora", now)
	if err := store.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Passing an override that was never appended to the history must fail
	// instead of persisting a record without it.
	ov := &Override{ID: "ovr_detached", Date: now, RiskScore: 60, Decision: "WARN"}
	if err := store.Save(ctx, u, ov); err == nil {
		t.Fatal("expected Save to reject an override missing from history")
	}

	u.Overrides = append(u.Overrides, *ov)
	if err := store.Save(ctx, u, ov); err != nil {
		t.Fatalf("Save with appended override: %v", err)
	}

	got, err := store.Get(ctx, "nora")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.Overrides) != 1 || got.Overrides[0].ID != "ovr_detached" {
		t.Errorf("expected persisted override history, got %+v", got.Overrides)
	}
}

func TestMemoryStore_CopiesAreIsolated(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	u := NewUser("leo", now)
	u.Overrides = []Override{{ID: "ovr_1", Date: now, RiskScore: 50, Decision: "WARN"}}
	if err := store.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get(ctx, "leo")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	got.Overrides[0].RiskScore = 999
	got.TrustScore = 0

	again, err := store.Get(ctx, "leo")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if again.Overrides[0].RiskScore != 50 || again.TrustScore != 100 {
		t.Error("mutating a returned user must not affect the stored record")
	}
}
