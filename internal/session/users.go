package session

import (
	"context"
	"database/sql"
	"errors"
)

// CreateUser inserts a user account. Duplicate emails surface as the
// driver's unique-violation error so the handler can map them to a conflict.
func (p *Postgres) CreateUser(ctx context.Context, email, passwordHash string) error {
	_, err := p.DB.ExecContext(ctx,
		`INSERT INTO users (email, password_hash) VALUES ($1, $2)`,
		email, passwordHash)
	return err
}

// UserByEmail returns the id and password hash for the given email.
func (p *Postgres) UserByEmail(ctx context.Context, email string) (string, string, error) {
	var id, hash string
	err := p.DB.QueryRowContext(ctx,
		`SELECT id, password_hash FROM users WHERE email = $1`,
		email).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", err
	}
	return id, hash, nil
}
