// Command cognigate is the operator CLI for the agent governance
// engine: inspect durable ledgers, validate policy and tier
// configuration, and run a self-contained governance scenario.
package main

import (
	"fmt"
	"io"
	"os"
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "serve":
		return runServeCmd(args[2:], stdout, stderr)
	case "status":
		return runStatusCmd(args[2:], stdout, stderr)
	case "history":
		return runHistoryCmd(args[2:], stdout, stderr)
	case "gate-log":
		return runGateLogCmd(args[2:], stdout, stderr)
	case "breaker-log":
		return runBreakerLogCmd(args[2:], stdout, stderr)
	case "validate":
		if len(args) < 3 {
			_, _ = fmt.Fprintln(stderr, "Usage: cognigate validate <policy|tiers|profile>")
			return 2
		}
		return runValidateCmd(args[2:], stdout, stderr)
	case "simulate":
		return runSimulateCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "cognigate - agent trust and governance engine")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  cognigate serve        [--db path] [--redis a]  run the governance daemon")
	fmt.Fprintln(w, "  cognigate status       [--db path]             operational counters from the durable stores")
	fmt.Fprintln(w, "  cognigate history      --agent id [--db path]  trust ledger entries for an agent")
	fmt.Fprintln(w, "  cognigate gate-log     --agent id [--db path]  role gate evaluations for an agent")
	fmt.Fprintln(w, "  cognigate breaker-log  --agent id [--db path]  breaker events for an agent")
	fmt.Fprintln(w, "  cognigate validate policy  --bundle file.yaml  check a policy bundle")
	fmt.Fprintln(w, "  cognigate validate tiers   --file file.yaml    check a tier boundary table")
	fmt.Fprintln(w, "  cognigate validate profile --dir d --code c    check a governance profile")
	fmt.Fprintln(w, "  cognigate simulate                             run a governance scenario in memory")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Exit codes: 0 success, 1 error, 2 not found or usage error,")
	fmt.Fprintln(w, "            3 conflict, 4 forbidden, 5 locked/frozen, 6 invalid override, 7 expired")
}
