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

// runStatusCmd implements `cognigate status`.
//
// Reads row counts and breakdowns straight from the durable stores, so
// it works against the database of a stopped engine.
//
// Exit codes:
//
//	0 = success
//	2 = runtime error
func runStatusCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("status", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		dbPath   string
		jsonMode bool
	)
	cmd.StringVar(&dbPath, "db", config.Load().DatabasePath, "Path to the sqlite database")
	cmd.BoolVar(&jsonMode, "json", false, "Output as JSON")

	if err := cmd.Parse(args); err != nil {
		return 2
	}

	db, err := store.Open(dbPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	defer func() { _ = db.Close() }()

	counts := map[string]int{}
	for _, table := range []string{"trust_entries", "gate_evaluations", "breaker_events"} {
		var n int
		row := db.QueryRowContext(context.Background(), "SELECT COUNT(*) FROM "+table)
		if err := row.Scan(&n); err != nil {
			// Missing table means the engine never wrote this record type.
			continue
		}
		counts[table] = n
	}

	if jsonMode {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(counts)
		return 0
	}

	fmt.Fprintf(stdout, "database:          %s\n", dbPath)
	fmt.Fprintf(stdout, "trust entries:     %d\n", counts["trust_entries"])
	fmt.Fprintf(stdout, "gate evaluations:  %d\n", counts["gate_evaluations"])
	fmt.Fprintf(stdout, "breaker events:    %d\n", counts["breaker_events"])
	return 0
}
