package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// DBSink inserts events into the audit_logs table.
type DBSink struct {
	db *sql.DB
}

// NewDBSink creates a database-backed sink.
func NewDBSink(db *sql.DB) (*DBSink, error) {
	if db == nil {
		return nil, errors.New("audit: database connection is required")
	}
	return &DBSink{db: db}, nil
}

// Write implements Sink.
func (s *DBSink) Write(ctx context.Context, event Event) error {
	details, err := json.Marshal(event.Details)
	if err != nil {
		return fmt.Errorf("audit: marshal details: %w", err)
	}
	var userID sql.NullInt64
	if event.UserID != nil {
		userID = sql.NullInt64{Int64: *event.UserID, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO audit_logs (user_id, action, resource, details, ip_address, user_agent, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		userID, string(event.Action), event.Resource, details, nullString(event.IPAddress), nullString(event.UserAgent), event.Timestamp)
	if err != nil {
		return fmt.Errorf("audit: insert event: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
