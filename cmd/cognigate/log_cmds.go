package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"

	"github.com/vorion-labs/cognigate/pkg/config"
	"github.com/vorion-labs/cognigate/pkg/store"
)

// runGateLogCmd implements `cognigate gate-log`: an agent's role gate
// evaluations, oldest first.
func runGateLogCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("gate-log", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		dbPath   string
		agentID  string
		limit    int
		jsonMode bool
	)
	cmd.StringVar(&dbPath, "db", config.Load().DatabasePath, "Path to the sqlite database")
	cmd.StringVar(&agentID, "agent", "", "Agent ID (REQUIRED)")
	cmd.IntVar(&limit, "limit", 100, "Maximum entries to print")
	cmd.BoolVar(&jsonMode, "json", false, "Output as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if agentID == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --agent is required")
		return 2
	}

	db, err := store.Open(dbPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer func() { _ = db.Close() }()

	gs, err := store.NewSQLiteGateStore(db)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	evals, err := gs.History(context.Background(), agentID, limit)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if len(evals) == 0 {
		_, _ = fmt.Fprintf(stderr, "No gate evaluations for agent %s\n", agentID)
		return 2
	}

	if jsonMode {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(evals)
		return 0
	}

	for _, e := range evals {
		override := ""
		if e.OverrideUsed {
			override = fmt.Sprintf(" override=%s", e.OverrideID)
		}
		fmt.Fprintf(stdout, "%s  role=%s tier=%s score=%d  %s%s  %s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.RequestedRole, e.Tier,
			e.Score, e.Decision, override, e.Reason)
	}
	return 0
}

// runBreakerLogCmd implements `cognigate breaker-log`: an agent's pause,
// resume, and cascade events, oldest first.
func runBreakerLogCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("breaker-log", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		dbPath   string
		agentID  string
		limit    int
		jsonMode bool
	)
	cmd.StringVar(&dbPath, "db", config.Load().DatabasePath, "Path to the sqlite database")
	cmd.StringVar(&agentID, "agent", "", "Agent ID (REQUIRED)")
	cmd.IntVar(&limit, "limit", 100, "Maximum entries to print")
	cmd.BoolVar(&jsonMode, "json", false, "Output as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if agentID == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --agent is required")
		return 2
	}

	db, err := store.Open(dbPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer func() { _ = db.Close() }()

	bs, err := store.NewSQLiteBreakerStore(db)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	entries, err := bs.History(context.Background(), agentID, limit)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if len(entries) == 0 {
		_, _ = fmt.Fprintf(stderr, "No breaker events for agent %s\n", agentID)
		return 2
	}

	if jsonMode {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(entries)
		return 0
	}

	for _, e := range entries {
		origin := ""
		if e.Origin != "" {
			origin = fmt.Sprintf(" origin=%s", e.Origin)
		}
		fmt.Fprintf(stdout, "%s  %s  reason=%s actor=%s%s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.Kind, e.Reason, e.Actor, origin)
	}
	return 0
}
