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

// runHistoryCmd implements `cognigate history`: an agent's trust ledger
// entries, oldest first.
func runHistoryCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("history", flag.ContinueOnError)
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

	ts, err := store.NewSQLiteTrustStore(db)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	entries, err := ts.History(context.Background(), agentID, limit)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	if len(entries) == 0 {
		_, _ = fmt.Fprintf(stderr, "No trust entries for agent %s\n", agentID)
		return 2
	}

	if jsonMode {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(entries)
		return 0
	}

	for _, e := range entries {
		clip := ""
		if e.CeilingApplied {
			clip = fmt.Sprintf(" (clipped from %d, %s)", e.ProposedScore, e.CeilingSource)
		}
		fmt.Fprintf(stdout, "%s  %s  %4d -> %4d  ceiling=%4d  %s%s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.EventType,
			e.PreviousScore, e.FinalScore, e.Ceiling, e.Compliance, clip)
	}
	return 0
}
