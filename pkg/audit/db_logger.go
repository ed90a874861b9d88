package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/medora/medora/pkg/observability"
)

// DBLogger writes audit events to the audit_events table
type DBLogger struct {
	db      *sql.DB
	metrics *observability.Metrics
}

// NewDBLogger creates a database-backed audit logger. metrics may be nil.
func NewDBLogger(db *sql.DB, metrics *observability.Metrics) (*DBLogger, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBLogger{db: db, metrics: metrics}, nil
}

// Log implements Logger
func (l *DBLogger) Log(ctx context.Context, event Event) error {
	metadata := []byte("{}")
	if len(event.Metadata) > 0 {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_events (
			occurred_at, actor_id, provider_id, action, resource_type,
			resource_id, outcome, status_code, request_id, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := l.db.ExecContext(ctx, query,
		event.OccurredAt,
		nullUUID(event.ActorID),
		nullUUID(event.ProviderID),
		string(event.Action),
		event.ResourceType,
		nullString(event.ResourceID),
		string(event.Outcome),
		nullInt(event.StatusCode),
		nullString(event.RequestID),
		string(metadata),
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// List returns a page of a provider's events, newest first, with the total
// number of events the provider has
func (l *DBLogger) List(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]Event, int, error) {
	var total int
	if err := l.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM audit_events WHERE provider_id = $1", providerID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit events: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, occurred_at, actor_id, provider_id, action, resource_type,
			resource_id, outcome, status_code, request_id, metadata
		FROM audit_events
		WHERE provider_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, providerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			ev                    Event
			actor, provider       uuid.NullUUID
			action, outcome       string
			resourceID, requestID sql.NullString
			statusCode            sql.NullInt64
			metadata              []byte
		)
		if err := rows.Scan(
			&ev.ID, &ev.OccurredAt, &actor, &provider, &action, &ev.ResourceType,
			&resourceID, &outcome, &statusCode, &requestID, &metadata,
		); err != nil {
			return nil, 0, fmt.Errorf("failed to scan audit event: %w", err)
		}

		if actor.Valid {
			ev.ActorID = &actor.UUID
		}
		if provider.Valid {
			ev.ProviderID = &provider.UUID
		}
		ev.Action = Action(action)
		ev.Outcome = Outcome(outcome)
		ev.ResourceID = resourceID.String
		ev.RequestID = requestID.String
		ev.StatusCode = int(statusCode.Int64)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &ev.Metadata); err != nil {
				return nil, 0, fmt.Errorf("failed to unmarshal metadata: %w", err)
			}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read audit events: %w", err)
	}

	return events, total, nil
}

// Purge deletes events older than the retention window and returns how many
// were removed
func (l *DBLogger) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	res, err := l.db.ExecContext(ctx, "DELETE FROM audit_events WHERE occurred_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read purged rows: %w", err)
	}
	if l.metrics != nil {
		l.metrics.AuditEventsPurgedTotal.Add(float64(n))
	}
	return n, nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}
