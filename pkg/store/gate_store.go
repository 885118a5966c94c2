package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/vorion-labs/cognigate/pkg/contracts"
	"github.com/vorion-labs/cognigate/pkg/rolegate"
)

// SQLiteGateStore persists role gate evaluations.
type SQLiteGateStore struct {
	db *sql.DB
}

func NewSQLiteGateStore(db *sql.DB) (*SQLiteGateStore, error) {
	s := &SQLiteGateStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteGateStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS gate_evaluations (
        id TEXT PRIMARY KEY,
        agent_id TEXT NOT NULL,
        requested_role TEXT NOT NULL,
        tier TEXT,
        score INTEGER,
        operation_id TEXT,
        kernel_allowed INTEGER NOT NULL,
        policy_decision TEXT,
        policies_applied JSON,
        policy_version TEXT,
        override_used INTEGER NOT NULL DEFAULT 0,
        override_id TEXT,
        override_by JSON,
        decision TEXT NOT NULL,
        reason TEXT,
        timestamp DATETIME
    );
    CREATE INDEX IF NOT EXISTS idx_gate_evaluations_agent ON gate_evaluations (agent_id, timestamp);`
	return exec(s.db, query)
}

// AppendEvaluation implements rolegate.Persister.
func (s *SQLiteGateStore) AppendEvaluation(e rolegate.Evaluation) error {
	appliedJSON, _ := json.Marshal(e.PoliciesApplied)
	byJSON, _ := json.Marshal(e.OverrideBy)

	query := `INSERT INTO gate_evaluations (
		id, agent_id, requested_role, tier, score, operation_id, kernel_allowed,
		policy_decision, policies_applied, policy_version, override_used,
		override_id, override_by, decision, reason, timestamp
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	return exec(s.db, query,
		e.ID, e.AgentID, string(e.RequestedRole), string(e.Tier), e.Score, e.OperationID,
		boolToInt(e.KernelAllowed), string(e.PolicyDecision), string(appliedJSON),
		e.PolicyVersion, boolToInt(e.OverrideUsed), e.OverrideID, string(byJSON),
		string(e.Decision), e.Reason, formatTime(e.Timestamp),
	)
}

// History returns an agent's evaluations in chronological order.
func (s *SQLiteGateStore) History(ctx context.Context, agentID string, limit int) ([]rolegate.Evaluation, error) {
	query := `
        SELECT id, agent_id, requested_role, tier, score, operation_id, kernel_allowed,
               policy_decision, policies_applied, policy_version, override_used,
               override_id, override_by, decision, reason, timestamp
        FROM gate_evaluations
        WHERE agent_id = ?
        ORDER BY timestamp ASC
        LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var evals []rolegate.Evaluation
	for rows.Next() {
		var (
			e                     rolegate.Evaluation
			role, tier            string
			opID, polDec          sql.NullString
			appliedJSON, byJSON   sql.NullString
			kernel, used          int
			overrideID, reason    sql.NullString
			decision, ts, version string
		)
		if err := rows.Scan(&e.ID, &e.AgentID, &role, &tier, &e.Score, &opID, &kernel,
			&polDec, &appliedJSON, &version, &used, &overrideID, &byJSON,
			&decision, &reason, &ts); err != nil {
			return nil, err
		}
		e.RequestedRole = contracts.AgentRole(role)
		e.Tier = contracts.TrustTier(tier)
		e.OperationID = opID.String
		e.KernelAllowed = kernel != 0
		e.PolicyDecision = contracts.GateDecision(polDec.String)
		e.PolicyVersion = version
		e.OverrideUsed = used != 0
		e.OverrideID = overrideID.String
		e.Decision = contracts.GateDecision(decision)
		e.Reason = reason.String
		e.Timestamp = parseTime(ts)
		if appliedJSON.Valid && appliedJSON.String != "" {
			_ = json.Unmarshal([]byte(appliedJSON.String), &e.PoliciesApplied)
		}
		if byJSON.Valid && byJSON.String != "" {
			_ = json.Unmarshal([]byte(byJSON.String), &e.OverrideBy)
		}
		evals = append(evals, e)
	}
	return evals, rows.Err()
}
