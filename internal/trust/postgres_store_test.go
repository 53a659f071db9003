//go:build integration

package trust

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"

	"github.com/mbd888/paypilot/internal/idgen"
)

func setupTestDB(t *testing.T) (*PostgresStore, func()) {
	t.Helper()

	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		t.Skip("POSTGRES_URL not set, skipping integration test")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}

	store := NewPostgresStore(db)
	ctx := context.Background()

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	cleanup := func() {
		db.ExecContext(ctx, "DELETE FROM overrides")
		db.ExecContext(ctx, "DELETE FROM users")
		db.Close()
	}

	return store, cleanup
}

func TestPostgres_CreateAndGet(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	u := NewUser("pg-alice", now)
	if err := store.Create(ctx, u); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if u.Version != 1 {
		t.Errorf("Expected version 1 after create, got %d", u.Version)
	}

	got, err := store.Get(ctx, "pg-alice")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.TrustScore != 100 {
		t.Errorf("Expected trust 100, got %d", got.TrustScore)
	}
	if got.LastOverrideAt != nil {
		t.Errorf("Expected nil lastOverrideAt, got %v", got.LastOverrideAt)
	}
	if len(got.Overrides) != 0 {
		t.Errorf("Expected no overrides, got %d", len(got.Overrides))
	}
}

func TestPostgres_CreateDuplicate(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now()

	if err := store.Create(ctx, NewUser("pg-bob", now)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Create(ctx, NewUser("pg-bob", now)); err != ErrUserExists {
		t.Errorf("Expected ErrUserExists, got %v", err)
	}
}

func TestPostgres_GetUnknown(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	if _, err := store.Get(context.Background(), "pg-nobody"); err != ErrUserNotFound {
		t.Errorf("Expected ErrUserNotFound, got %v", err)
	}
}

func TestPostgres_SaveWithOverride(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	u := NewUser("pg-carol", now)
	if err := store.Create(ctx, u); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	ov := Override{ID: idgen.WithPrefix("ovr_"), Date: now, RiskScore: 72, Decision: "BLOCK"}
	u.TrustScore = 95
	u.LastOverrideAt = &now
	u.UpdatedAt = now
	u.Overrides = append(u.Overrides, ov)

	if err := store.Save(ctx, u, &ov); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if u.Version != 2 {
		t.Errorf("Expected version 2 after save, got %d", u.Version)
	}

	got, err := store.Get(ctx, "pg-carol")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.TrustScore != 95 {
		t.Errorf("Expected trust 95, got %d", got.TrustScore)
	}
	if got.LastOverrideAt == nil || !got.LastOverrideAt.Equal(now) {
		t.Errorf("Expected lastOverrideAt %v, got %v", now, got.LastOverrideAt)
	}
	if len(got.Overrides) != 1 {
		t.Fatalf("Expected 1 override, got %d", len(got.Overrides))
	}
	if got.Overrides[0].RiskScore != 72 || got.Overrides[0].Decision != "BLOCK" {
		t.Errorf("Override round-trip mismatch: %+v", got.Overrides[0])
	}
}

func TestPostgres_SaveVersionConflict(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now()

	u := NewUser("pg-dave", now)
	if err := store.Create(ctx, u); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	stale := *u

	u.TrustScore = 95
	if err := store.Save(ctx, u, nil); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	stale.TrustScore = 90
	if err := store.Save(ctx, &stale, nil); err != ErrVersionConflict {
		t.Errorf("Expected ErrVersionConflict, got %v", err)
	}

	// The stale write must not have touched the row.
	got, err := store.Get(ctx, "pg-dave")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.TrustScore != 95 {
		t.Errorf("Expected trust 95 after rejected stale write, got %d", got.TrustScore)
	}
}

func TestPostgres_OverridesOrderedOldestFirst(t *testing.T) {
	store, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	u := NewUser("pg-erin", base)
	if err := store.Create(ctx, u); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		ov := Override{ID: idgen.WithPrefix("ovr_"), Date: at, RiskScore: 40 + i, Decision: "WARN"}
		u.TrustScore -= DecayStep
		u.LastOverrideAt = &at
		u.UpdatedAt = at
		u.Overrides = append(u.Overrides, ov)
		if err := store.Save(ctx, u, &ov); err != nil {
			t.Fatalf("Save %d failed: %v", i, err)
		}
	}

	got, err := store.Get(ctx, "pg-erin")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(got.Overrides) != 3 {
		t.Fatalf("Expected 3 overrides, got %d", len(got.Overrides))
	}
	for i := 0; i < 3; i++ {
		if got.Overrides[i].RiskScore != 40+i {
			t.Errorf("Override %d out of order: %+v", i, got.Overrides[i])
		}
	}
}
