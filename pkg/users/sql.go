package users

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/platinummonkey/membership/pkg/models"
)

// SQLDirectory stores users in the directory_users table created by the
// sqlstore migrations
type SQLDirectory struct {
	db *sql.DB
}

var _ Registry = (*SQLDirectory)(nil)

// NewSQLDirectory wraps an open database
func NewSQLDirectory(db *sql.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

// UpsertUser inserts or replaces a user record
func (d *SQLDirectory) UpsertUser(ctx context.Context, user *models.User) error {
	u := user.Clone()
	u.Email = models.NormalizeEmail(u.Email)
	doc, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO directory_users (id, email, doc) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET email = excluded.email, doc = excluded.doc`,
		u.ID, u.Email, string(doc),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func (d *SQLDirectory) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return d.get(ctx, d.db, "SELECT doc FROM directory_users WHERE id = $1", id)
}

func (d *SQLDirectory) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return d.get(ctx, d.db, "SELECT doc FROM directory_users WHERE email = $1", models.NormalizeEmail(email))
}

func (d *SQLDirectory) UpdateOrganizationPointer(ctx context.Context, userID string, update models.PointerUpdate) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	u, err := d.get(ctx, tx, "SELECT doc FROM directory_users WHERE id = $1", userID)
	if err != nil {
		return err
	}
	update.Apply(u)
	doc, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("failed to encode user: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE directory_users SET doc = $1 WHERE id = $2", string(doc), userID); err != nil {
		return fmt.Errorf("failed to update user pointers: %w", err)
	}
	return tx.Commit()
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (d *SQLDirectory) get(ctx context.Context, q rowQuerier, query, key string) (*models.User, error) {
	var raw string
	err := q.QueryRowContext(ctx, query, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w %s", ErrUserNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	var u models.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	return &u, nil
}
