package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// DBLogger writes audit records to the audit_records table. The table is
// owned by the migration runner, not the logger.
type DBLogger struct {
	db *sql.DB
}

// NewDBLogger creates a database-backed audit logger.
func NewDBLogger(db *sql.DB) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db}, nil
}

// Log inserts one record.
func (l *DBLogger) Log(ctx context.Context, record *Record) error {
	var metadataJSON []byte
	if record.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO audit_records (
			id, occurred_at, action, entity_type, entity_id,
			actor_user_id, scope_type, scope_id, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, record.ID, record.OccurredAt, record.Action, record.EntityType, record.EntityID,
		record.ActorUserID, record.ScopeType, record.ScopeID, nullBytes(metadataJSON))
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}

	return nil
}

// List returns records matching the filter, newest first.
func (l *DBLogger) List(ctx context.Context, filter Filter) ([]*Record, error) {
	query := `
		SELECT id, occurred_at, action, entity_type, entity_id,
		       actor_user_id, scope_type, scope_id, metadata
		FROM audit_records
		WHERE 1=1
	`

	args := []interface{}{}
	argCount := 1

	if filter.Start != nil {
		query += fmt.Sprintf(" AND occurred_at >= $%d", argCount)
		args = append(args, *filter.Start)
		argCount++
	}
	if filter.End != nil {
		query += fmt.Sprintf(" AND occurred_at <= $%d", argCount)
		args = append(args, *filter.End)
		argCount++
	}
	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", argCount)
		args = append(args, string(filter.Action))
		argCount++
	}
	if filter.EntityType != "" {
		query += fmt.Sprintf(" AND entity_type = $%d", argCount)
		args = append(args, string(filter.EntityType))
		argCount++
	}
	if filter.EntityID != "" {
		query += fmt.Sprintf(" AND entity_id = $%d", argCount)
		args = append(args, filter.EntityID)
		argCount++
	}
	if filter.ActorUserID != "" {
		query += fmt.Sprintf(" AND actor_user_id = $%d", argCount)
		args = append(args, filter.ActorUserID)
		argCount++
	}
	if filter.ScopeType != "" {
		query += fmt.Sprintf(" AND scope_type = $%d", argCount)
		args = append(args, filter.ScopeType)
		argCount++
	}
	if filter.ScopeID != "" {
		query += fmt.Sprintf(" AND scope_id = $%d", argCount)
		args = append(args, filter.ScopeID)
		argCount++
	}

	query += " ORDER BY occurred_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filter.Limit)
		argCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	records := make([]*Record, 0)
	for rows.Next() {
		record := &Record{}
		var actor, scopeType, scopeID sql.NullString
		var metadataJSON []byte

		if err := rows.Scan(
			&record.ID, &record.OccurredAt, &record.Action, &record.EntityType, &record.EntityID,
			&actor, &scopeType, &scopeID, &metadataJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}

		record.ActorUserID = actor.String
		record.ScopeType = scopeType.String
		record.ScopeID = scopeID.String

		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &record.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}

		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit records: %w", err)
	}

	return records, nil
}

// Purge deletes records older than the retention window and returns how many
// rows were removed.
func (l *DBLogger) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)

	result, err := l.db.ExecContext(ctx, "DELETE FROM audit_records WHERE occurred_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit records: %w", err)
	}

	return result.RowsAffected()
}

// Close is a no-op; the connection pool is shared and owned by the caller.
func (l *DBLogger) Close() error {
	return nil
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
