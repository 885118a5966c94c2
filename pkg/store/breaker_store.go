package store

import (
	"context"
	"database/sql"

	"github.com/vorion-labs/cognigate/pkg/breaker"
	"github.com/vorion-labs/cognigate/pkg/contracts"
)

// SQLiteBreakerStore persists breaker event log entries.
type SQLiteBreakerStore struct {
	db *sql.DB
}

func NewSQLiteBreakerStore(db *sql.DB) (*SQLiteBreakerStore, error) {
	s := &SQLiteBreakerStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteBreakerStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS breaker_events (
        id TEXT PRIMARY KEY,
        kind TEXT NOT NULL,
        agent_id TEXT NOT NULL,
        reason TEXT,
        actor TEXT,
        origin TEXT,
        detail TEXT,
        timestamp DATETIME
    );
    CREATE INDEX IF NOT EXISTS idx_breaker_events_agent ON breaker_events (agent_id, timestamp);`
	return exec(s.db, query)
}

// AppendBreakerEvent implements breaker.Persister.
func (s *SQLiteBreakerStore) AppendBreakerEvent(e breaker.LogEntry) error {
	query := `INSERT INTO breaker_events (
		id, kind, agent_id, reason, actor, origin, detail, timestamp
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	return exec(s.db, query,
		e.ID, string(e.Kind), e.AgentID, string(e.Reason), e.Actor, e.Origin,
		e.Detail, formatTime(e.Timestamp),
	)
}

// History returns an agent's breaker events in chronological order.
func (s *SQLiteBreakerStore) History(ctx context.Context, agentID string, limit int) ([]breaker.LogEntry, error) {
	query := `
        SELECT id, kind, agent_id, reason, actor, origin, detail, timestamp
        FROM breaker_events
        WHERE agent_id = ?
        ORDER BY timestamp ASC
        LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []breaker.LogEntry
	for rows.Next() {
		var (
			e                             breaker.LogEntry
			kind, ts                      string
			reason, actor, origin, detail sql.NullString
		)
		if err := rows.Scan(&e.ID, &kind, &e.AgentID, &reason, &actor, &origin, &detail, &ts); err != nil {
			return nil, err
		}
		e.Kind = breaker.EventKind(kind)
		e.Reason = contracts.PauseReason(reason.String)
		e.Actor = actor.String
		e.Origin = origin.String
		e.Detail = detail.String
		e.Timestamp = parseTime(ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
