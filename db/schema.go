package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const profilesSchema = `CREATE TABLE IF NOT EXISTS user_profiles (
	username      VARCHAR(50)  PRIMARY KEY,
	email         VARCHAR(254) NOT NULL,
	first_name    VARCHAR(150) NOT NULL,
	last_name     VARCHAR(150) NOT NULL,
	password_hash VARCHAR(255),
	created_at    TIMESTAMPTZ  NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
)`

// Migrate creates the profile table when it does not exist yet.
func Migrate(ctx context.Context, conn *sqlx.DB) error {
	if _, err := conn.ExecContext(ctx, profilesSchema); err != nil {
		return fmt.Errorf("create user_profiles: %w", err)
	}
	return nil
}
