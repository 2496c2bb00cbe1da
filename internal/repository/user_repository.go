package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-approvals/internal/database"
	"github.com/pesio-ai/be-approvals/internal/errors"
)

// UserRepository reads the internal user directory.
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// ResolveUsername maps a directory login to an internal user. Logins are
// compared case-insensitively and trimmed, since ERP user codes are padded.
// Returns a NotFound error when no active user matches.
func (r *UserRepository) ResolveUsername(ctx context.Context, username string) (*User, error) {
	login := strings.TrimSpace(username)
	if login == "" {
		return nil, errors.NotFound("user", username)
	}

	query := `
		SELECT id, username, name
		FROM users
		WHERE LOWER(username) = LOWER($1)
		  AND is_active = TRUE
	`

	u := &User{}
	err := r.db.QueryRow(ctx, query, login).Scan(&u.ID, &u.Username, &u.Name)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("user", login)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to resolve user")
	}
	return u, nil
}
