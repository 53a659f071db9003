package trust

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore implements Store with PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed trust store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the trust tables. Production deployments run the goose
// migrations instead; this keeps dev databases usable without the CLI.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			user_id          VARCHAR(64) PRIMARY KEY,
			trust_score      INT NOT NULL DEFAULT 100,
			last_override_at TIMESTAMPTZ,
			version          BIGINT NOT NULL DEFAULT 1,
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT chk_trust_range CHECK (trust_score >= 0 AND trust_score <= 100)
		);

		CREATE TABLE IF NOT EXISTS overrides (
			id          VARCHAR(36) PRIMARY KEY,
			user_id     VARCHAR(64) NOT NULL REFERENCES users(user_id),
			risk_score  INT NOT NULL,
			decision    VARCHAR(10) NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_overrides_user ON overrides(user_id, created_at);
	`)
	return err
}

func (p *PostgresStore) Get(ctx context.Context, userID string) (*User, error) {
	u := &User{UserID: userID}

	err := p.db.QueryRowContext(ctx, `
		SELECT trust_score, last_override_at, version, created_at, updated_at
		FROM users WHERE user_id = $1
	`, userID).Scan(&u.TrustScore, &u.LastOverrideAt, &u.Version, &u.CreatedAt, &u.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, risk_score, decision, created_at
		FROM overrides WHERE user_id = $1
		ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("load overrides: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ov Override
		if err := rows.Scan(&ov.ID, &ov.RiskScore, &ov.Decision, &ov.Date); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		u.Overrides = append(u.Overrides, ov)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return u, nil
}

func (p *PostgresStore) Create(ctx context.Context, u *User) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO users (user_id, trust_score, last_override_at, version, created_at, updated_at)
		VALUES ($1, $2, $3, 1, $4, $5)
	`, u.UserID, u.TrustScore, u.LastOverrideAt, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrUserExists
		}
		return err
	}
	u.Version = 1
	return nil
}

// Save updates the trust fields under a version check and inserts the new
// override in the same transaction. A stale version rolls everything back.
func (p *PostgresStore) Save(ctx context.Context, u *User, newOverride *Override) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE users SET
			trust_score      = $2,
			last_override_at = $3,
			version          = version + 1,
			updated_at       = $4
		WHERE user_id = $1 AND version = $5
	`, u.UserID, u.TrustScore, u.LastOverrideAt, u.UpdatedAt, u.Version)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Either the user vanished or someone else won the race.
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM users WHERE user_id = $1)`, u.UserID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrUserNotFound
		}
		return ErrVersionConflict
	}

	if newOverride != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO overrides (id, user_id, risk_score, decision, created_at)
			VALUES ($1, $2, $3, $4, $5)
		`, newOverride.ID, u.UserID, newOverride.RiskScore, newOverride.Decision, newOverride.Date)
		if err != nil {
			return fmt.Errorf("insert override: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	u.Version++
	return nil
}
