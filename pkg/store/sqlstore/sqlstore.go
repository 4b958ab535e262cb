// Package sqlstore implements store.Store on database/sql.
//
// Each collection is a table holding the indexed columns the queries need
// plus the JSON-encoded document. Queries use $N placeholders, which both
// lib/pq and mattn/go-sqlite3 accept, so the same store runs against
// postgres in production and sqlite locally and in tests.
//
//	st, err := sqlstore.Open(ctx, "postgres", dsn)
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/platinummonkey/membership/pkg/store"
)

// Options configures the connection pool
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store is a database/sql backed store
type Store struct {
	db *sql.DB
}

var _ store.Store = (*Store)(nil)

// querier is satisfied by *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New wraps an open database. The schema must already exist; see RunMigrations.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to driver/dsn, applies migrations and returns the store.
// An in-memory sqlite database is pinned to a single connection so every
// caller sees the same schema.
func Open(ctx context.Context, driver, dsn string, opts Options) (*Store, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if driver == "sqlite3" {
		db.SetMaxOpenConns(1)
	} else if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return New(db), nil
}

// DB returns the underlying database handle
func (s *Store) DB() *sql.DB {
	return s.db
}

// Organizations returns the organization repository
func (s *Store) Organizations() store.OrganizationRepository { return &repos{db: s.db, q: s.db} }

// Memberships returns the membership repository
func (s *Store) Memberships() store.MembershipRepository { return &repos{db: s.db, q: s.db} }

// Roles returns the role repository
func (s *Store) Roles() store.RoleRepository { return &repos{db: s.db, q: s.db} }

// Invitations returns the invitation repository
func (s *Store) Invitations() store.InvitationRepository { return &repos{db: s.db, q: s.db} }

// Batch runs fn inside a database transaction
func (s *Store) Batch(ctx context.Context, fn store.BatchFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}

	if err := fn(ctx, &repos{tx: tx, q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, fmt.Errorf("rollback failed: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapError(err))
	}
	return nil
}

// Ping checks database connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// repos implements every repository over a querier. Exactly one of db and
// tx is set: writes spanning several statements open their own transaction
// on db, or join tx when running inside a batch.
type repos struct {
	db *sql.DB
	tx *sql.Tx
	q  querier
}

func (r *repos) Organizations() store.OrganizationRepository { return r }
func (r *repos) Memberships() store.MembershipRepository     { return r }
func (r *repos) Roles() store.RoleRepository                 { return r }
func (r *repos) Invitations() store.InvitationRepository     { return r }

func (r *repos) atomic(ctx context.Context, fn func(q querier) error) error {
	if r.tx != nil {
		return fn(r.tx)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapError(err))
	}
	return nil
}

// checkUpdated turns a zero-row conditional update into ErrNotFound or ErrConflict
func checkUpdated(ctx context.Context, q querier, res sql.Result, table, id string, version int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}
	var current int64
	err = q.QueryRowContext(ctx, "SELECT version FROM "+table+" WHERE id = $1", id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s %s", store.ErrNotFound, table, id)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s version: %w", table, err)
	}
	return fmt.Errorf("%w: %s %s at version %d, update carries %d", store.ErrConflict, table, id, current, version)
}

func encodeDoc(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to encode document: %w", err)
	}
	return string(data), nil
}

func decodeDoc[T any](raw string) (*T, error) {
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return &v, nil
}

func scanDocs[T any](rows *sql.Rows) ([]*T, error) {
	defer rows.Close()
	var out []*T
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		doc, err := decodeDoc[T](raw)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func getDoc[T any](ctx context.Context, q querier, kind, query string, args ...any) (*T, error) {
	var raw string
	err := q.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", kind, err)
	}
	return decodeDoc[T](raw)
}

func checkDeleted(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", store.ErrNotFound, kind, id)
	}
	return nil
}

// where accumulates AND-ed conditions with numbered placeholders
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, fmt.Sprintf(clause, len(w.args)))
}

func (w *where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}
