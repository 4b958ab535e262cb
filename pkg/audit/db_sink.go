package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// DBSink appends entries to the postgres audit_log_entries table
type DBSink struct {
	db *sql.DB
}

// NewDBSink ensures the table exists and returns the sink
func NewDBSink(ctx context.Context, db *sql.DB) (*DBSink, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	s := &DBSink{db: db}
	if err := s.ensureTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_log_entries table: %w", err)
	}
	return s, nil
}

func (s *DBSink) ensureTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS audit_log_entries (
		id UUID PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		actor_id VARCHAR(255) NOT NULL,
		actor_email VARCHAR(320) NOT NULL,
		organization_id VARCHAR(255) NOT NULL DEFAULT '',
		category VARCHAR(32) NOT NULL,
		action VARCHAR(100) NOT NULL,
		resource_type VARCHAR(50) NOT NULL,
		resource_id VARCHAR(255) NOT NULL DEFAULT '',
		description TEXT NOT NULL,
		severity VARCHAR(16) NOT NULL,
		metadata JSONB,
		changes JSONB
	);

	CREATE INDEX IF NOT EXISTS idx_audit_log_entries_timestamp ON audit_log_entries(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_log_entries_org ON audit_log_entries(organization_id, timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_log_entries_actor ON audit_log_entries(actor_id);
	CREATE INDEX IF NOT EXISTS idx_audit_log_entries_resource ON audit_log_entries(resource_type, resource_id);
	`)
	return err
}

func (s *DBSink) Append(ctx context.Context, entry *Entry) error {
	metadata, changes, err := encodeJSONColumns(entry)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_log_entries (
			id, timestamp, actor_id, actor_email, organization_id,
			category, action, resource_type, resource_id,
			description, severity, metadata, changes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		entry.ID, entry.Timestamp, entry.ActorID, entry.ActorEmail, entry.OrganizationID,
		string(entry.Category), entry.Action, entry.ResourceType, entry.ResourceID,
		entry.Description, string(entry.Severity), metadata, changes,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

func encodeJSONColumns(entry *Entry) (metadata, changes []byte, err error) {
	if entry.Metadata != nil {
		if metadata, err = json.Marshal(entry.Metadata); err != nil {
			return nil, nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}
	if entry.Changes != nil {
		if changes, err = json.Marshal(entry.Changes); err != nil {
			return nil, nil, fmt.Errorf("failed to marshal changes: %w", err)
		}
	}
	return metadata, changes, nil
}

// Search returns matching entries, newest first
func (s *DBSink) Search(ctx context.Context, filter SearchFilter) ([]*Entry, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(clause, len(args)))
	}

	if filter.OrganizationID != "" {
		add("organization_id = $%d", filter.OrganizationID)
	}
	if filter.ActorID != "" {
		add("actor_id = $%d", filter.ActorID)
	}
	if filter.ResourceType != "" {
		add("resource_type = $%d", filter.ResourceType)
	}
	if filter.ResourceID != "" {
		add("resource_id = $%d", filter.ResourceID)
	}
	if filter.StartTime != nil {
		add("timestamp >= $%d", *filter.StartTime)
	}
	if filter.EndTime != nil {
		add("timestamp <= $%d", *filter.EndTime)
	}
	if len(filter.Categories) > 0 {
		cats := make([]string, len(filter.Categories))
		for i, c := range filter.Categories {
			cats[i] = string(c)
		}
		add("category = ANY($%d)", pq.Array(cats))
	}
	if len(filter.Severities) > 0 {
		sevs := make([]string, len(filter.Severities))
		for i, sv := range filter.Severities {
			sevs[i] = string(sv)
		}
		add("severity = ANY($%d)", pq.Array(sevs))
	}

	query := `SELECT id, timestamp, actor_id, actor_email, organization_id,
		category, action, resource_type, resource_id,
		description, severity, metadata, changes
		FROM audit_log_entries`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY timestamp DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit entries: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		var (
			e                 Entry
			category, sev     string
			metadata, changes []byte
		)
		if err := rows.Scan(
			&e.ID, &e.Timestamp, &e.ActorID, &e.ActorEmail, &e.OrganizationID,
			&category, &e.Action, &e.ResourceType, &e.ResourceID,
			&e.Description, &sev, &metadata, &changes,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Category = Category(category)
		e.Severity = Severity(sev)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		if len(changes) > 0 {
			e.Changes = &ChangeDetails{}
			if err := json.Unmarshal(changes, e.Changes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit entries: %w", err)
	}
	return entries, nil
}

// Close is a no-op; the caller owns the *sql.DB
func (s *DBSink) Close() error { return nil }
