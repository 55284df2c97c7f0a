package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"accounts-service/models"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	profilesTable   = "user_profiles"
	uniqueViolation = pq.ErrorCode("23505")
)

var (
	psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	profileColumns   = []string{"username", "email", "first_name", "last_name"}
	insertColumns    = []string{"username", "email", "first_name", "last_name", "password_hash"}
	returningProfile = "RETURNING username, email, first_name, last_name"
)

// ProfileRepository is the durable, authoritative profile store.
type ProfileRepository struct {
	db *sqlx.DB
}

func NewProfileRepository(conn *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: conn}
}

// FindByUsername returns models.ErrNotFound when no row matches.
func (r *ProfileRepository) FindByUsername(ctx context.Context, username string) (models.Profile, error) {
	query, args, err := psql.
		Select(profileColumns...).
		From(profilesTable).
		Where(sq.Eq{"username": username}).
		ToSql()
	if err != nil {
		return models.Profile{}, fmt.Errorf("build query: %w", err)
	}

	var profile models.Profile
	err = r.db.GetContext(ctx, &profile, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, models.ErrNotFound
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("select profile: %w", err)
	}
	return profile, nil
}

// Upsert creates the profile or replaces its mutable fields. The username of
// an existing row is never changed.
func (r *ProfileRepository) Upsert(ctx context.Context, profile models.Profile) (models.Profile, error) {
	query, args, err := psql.
		Insert(profilesTable).
		Columns(profileColumns...).
		Values(profile.Username, profile.Email, profile.FirstName, profile.LastName).
		Suffix(`ON CONFLICT (username) DO UPDATE SET
			email = EXCLUDED.email,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			updated_at = now()
		` + returningProfile).
		ToSql()
	if err != nil {
		return models.Profile{}, fmt.Errorf("build query: %w", err)
	}

	var stored models.Profile
	if err := r.db.GetContext(ctx, &stored, query, args...); err != nil {
		return models.Profile{}, fmt.Errorf("upsert profile: %w", err)
	}
	return stored, nil
}

// Insert adds a new profile. Uniqueness of username is enforced by the
// primary key, so concurrent inserts of one username yield exactly one row
// and models.ErrAlreadyExists for the rest.
func (r *ProfileRepository) Insert(ctx context.Context, profile models.Profile, passwordHash string) (models.Profile, error) {
	query, args, err := psql.
		Insert(profilesTable).
		Columns(insertColumns...).
		Values(profile.Username, profile.Email, profile.FirstName, profile.LastName, passwordHash).
		Suffix(returningProfile).
		ToSql()
	if err != nil {
		return models.Profile{}, fmt.Errorf("build query: %w", err)
	}

	var stored models.Profile
	err = r.db.GetContext(ctx, &stored, query, args...)
	if isUniqueViolation(err) {
		return models.Profile{}, models.ErrAlreadyExists
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("insert profile: %w", err)
	}
	return stored, nil
}

func (r *ProfileRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
