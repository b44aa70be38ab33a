package admin

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Store is the credential store for admin accounts.
type Store interface {
	FindByUsername(ctx context.Context, username string) (*Account, error)
	// CompleteRotation swaps the stored credential for hash and clears the
	// first-login flag, only if the stored credential is still previous.
	CompleteRotation(ctx context.Context, id int64, previous, hash string, at time.Time) (bool, error)
}

// Repository persists admin accounts in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FindByUsername looks an account up case-insensitively. Missing accounts return nil, nil.
func (r *Repository) FindByUsername(ctx context.Context, username string) (*Account, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, username, password, branch, is_first_login, password_changed_at
		FROM admin_users
		WHERE UPPER(username) = UPPER($1)
	`, username)
	var a Account
	if err := row.Scan(&a.ID, &a.Username, &a.Credential, &a.Branch, &a.FirstLogin, &a.PasswordChangedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// CompleteRotation is the only statement that writes is_first_login.
func (r *Repository) CompleteRotation(ctx context.Context, id int64, previous, hash string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE admin_users
		SET password = $3, is_first_login = FALSE, password_changed_at = $4
		WHERE id = $1 AND password = $2
	`, id, previous, hash, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
