package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all schema migrations. The SQL is kept to the
// subset shared by postgres and sqlite.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create organizations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id TEXT PRIMARY KEY,
					parent_id TEXT NOT NULL DEFAULT '',
					owner_id TEXT NOT NULL,
					version BIGINT NOT NULL,
					created_at BIGINT NOT NULL,
					doc TEXT NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_organizations_parent_id ON organizations(parent_id);
				CREATE INDEX IF NOT EXISTS idx_organizations_owner_id ON organizations(owner_id);
			`,
		},
		{
			Version:     2,
			Description: "Create memberships tables",
			SQL: `
				CREATE TABLE IF NOT EXISTS memberships (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					organization_id TEXT NOT NULL,
					status TEXT NOT NULL,
					version BIGINT NOT NULL,
					joined_at BIGINT NOT NULL,
					updated_at BIGINT NOT NULL,
					doc TEXT NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_memberships_user_id ON memberships(user_id);
				CREATE INDEX IF NOT EXISTS idx_memberships_organization_id ON memberships(organization_id);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_memberships_active_pair
					ON memberships(user_id, organization_id) WHERE status = 'active';

				CREATE TABLE IF NOT EXISTS membership_roles (
					membership_id TEXT NOT NULL,
					role_id TEXT NOT NULL,
					PRIMARY KEY (membership_id, role_id)
				);

				CREATE INDEX IF NOT EXISTS idx_membership_roles_role_id ON membership_roles(role_id);
			`,
		},
		{
			Version:     3,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL,
					organization_id TEXT NOT NULL DEFAULT '',
					version BIGINT NOT NULL,
					doc TEXT NOT NULL,
					UNIQUE (organization_id, name)
				);
			`,
		},
		{
			Version:     4,
			Description: "Create invitations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS invitations (
					id TEXT PRIMARY KEY,
					token TEXT NOT NULL UNIQUE,
					email TEXT NOT NULL,
					organization_id TEXT NOT NULL DEFAULT '',
					parent_organization_id TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL,
					version BIGINT NOT NULL,
					created_at BIGINT NOT NULL,
					doc TEXT NOT NULL
				);

				CREATE INDEX IF NOT EXISTS idx_invitations_email ON invitations(email);
				CREATE INDEX IF NOT EXISTS idx_invitations_organization_id ON invitations(organization_id);
				CREATE INDEX IF NOT EXISTS idx_invitations_parent_organization_id ON invitations(parent_organization_id);
				CREATE INDEX IF NOT EXISTS idx_invitations_status ON invitations(status);
			`,
		},
		{
			Version:     5,
			Description: "Create users directory table",
			SQL: `
				CREATE TABLE IF NOT EXISTS directory_users (
					id TEXT PRIMARY KEY,
					email TEXT NOT NULL UNIQUE,
					doc TEXT NOT NULL
				);
			`,
		},
	}
}

// RunMigrations applies every migration not yet recorded in schema_migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
