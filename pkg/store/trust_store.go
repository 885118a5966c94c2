package store

import (
	"context"
	"database/sql"

	"github.com/vorion-labs/cognigate/pkg/contracts"
	"github.com/vorion-labs/cognigate/pkg/trust"
)

// SQLiteTrustStore persists trust ledger entries.
type SQLiteTrustStore struct {
	db *sql.DB
}

func NewSQLiteTrustStore(db *sql.DB) (*SQLiteTrustStore, error) {
	s := &SQLiteTrustStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteTrustStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS trust_entries (
        id TEXT PRIMARY KEY,
        agent_id TEXT NOT NULL,
        event_type TEXT,
        previous_score INTEGER NOT NULL,
        proposed_score INTEGER NOT NULL,
        final_score INTEGER NOT NULL,
        ceiling INTEGER NOT NULL,
        ceiling_source TEXT,
        ceiling_applied INTEGER NOT NULL DEFAULT 0,
        framework TEXT,
        compliance TEXT NOT NULL,
        velocity_exceeded INTEGER NOT NULL DEFAULT 0,
        timestamp DATETIME
    );
    CREATE INDEX IF NOT EXISTS idx_trust_entries_agent ON trust_entries (agent_id, timestamp);`
	return exec(s.db, query)
}

// AppendTrustEntry implements trust.Persister.
func (s *SQLiteTrustStore) AppendTrustEntry(e trust.Entry) error {
	query := `INSERT INTO trust_entries (
		id, agent_id, event_type, previous_score, proposed_score, final_score,
		ceiling, ceiling_source, ceiling_applied, framework, compliance,
		velocity_exceeded, timestamp
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	return exec(s.db, query,
		e.ID, e.AgentID, e.EventType, e.PreviousScore, e.ProposedScore, e.FinalScore,
		e.Ceiling, string(e.CeilingSource), boolToInt(e.CeilingApplied), string(e.Framework),
		string(e.Compliance), boolToInt(e.VelocityExceeded), formatTime(e.Timestamp),
	)
}

// History returns an agent's entries in chronological order.
func (s *SQLiteTrustStore) History(ctx context.Context, agentID string, limit int) ([]trust.Entry, error) {
	query := `
        SELECT id, agent_id, event_type, previous_score, proposed_score, final_score,
               ceiling, ceiling_source, ceiling_applied, framework, compliance,
               velocity_exceeded, timestamp
        FROM trust_entries
        WHERE agent_id = ?
        ORDER BY timestamp ASC
        LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []trust.Entry
	for rows.Next() {
		var (
			e               trust.Entry
			source          sql.NullString
			framework       sql.NullString
			compliance      string
			applied, capped int
			ts              string
		)
		if err := rows.Scan(&e.ID, &e.AgentID, &e.EventType, &e.PreviousScore, &e.ProposedScore,
			&e.FinalScore, &e.Ceiling, &source, &applied, &framework, &compliance, &capped, &ts); err != nil {
			return nil, err
		}
		e.CeilingSource = contracts.CeilingSource(source.String)
		e.CeilingApplied = applied != 0
		e.Framework = contracts.Framework(framework.String)
		e.Compliance = contracts.ComplianceStatus(compliance)
		e.VelocityExceeded = capped != 0
		e.Timestamp = parseTime(ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
