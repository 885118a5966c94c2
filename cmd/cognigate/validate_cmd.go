package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/vorion-labs/cognigate/pkg/config"
	"github.com/vorion-labs/cognigate/pkg/rolegate"
	"github.com/vorion-labs/cognigate/pkg/tiers"
)

// runValidateCmd implements `cognigate validate <policy|tiers|profile>`.
//
// Exit codes:
//
//	0 = configuration is valid
//	1 = validation failed
//	2 = usage or runtime error
func runValidateCmd(args []string, stdout, stderr io.Writer) int {
	switch args[0] {
	case "policy":
		return validatePolicy(args[1:], stdout, stderr)
	case "tiers":
		return validateTiers(args[1:], stdout, stderr)
	case "profile":
		return validateProfile(args[1:], stdout, stderr)
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown validate target: %s\n", args[0])
		return 2
	}
}

func validatePolicy(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("validate policy", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var bundlePath string
	cmd.StringVar(&bundlePath, "bundle", "", "Path to policy bundle YAML (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if bundlePath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --bundle is required")
		return 2
	}

	bundle, err := rolegate.LoadBundleFile(bundlePath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "policy bundle %s: %d policies, OK\n", bundle.Version, len(bundle.Policies))
	return 0
}

func validateTiers(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("validate tiers", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var filePath string
	cmd.StringVar(&filePath, "file", "", "Path to tier boundary YAML (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if filePath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --file is required")
		return 2
	}

	table, err := tiers.LoadFile(filePath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "tier table: %d bands, OK\n", len(table.Bands))
	return 0
}

func validateProfile(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("validate profile", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		dir  string
		code string
	)
	cmd.StringVar(&dir, "dir", "", "Profiles directory (REQUIRED)")
	cmd.StringVar(&code, "code", "", "Profile code (REQUIRED)")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if dir == "" || code == "" {
		_, _ = fmt.Fprintln(stderr, "Error: --dir and --code are required")
		return 2
	}

	profile, err := config.LoadProfile(dir, code)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Fprintf(stdout, "profile %s (%s): velocity_cap=%d, OK\n", profile.Code, profile.Name, profile.VelocityCap)
	return 0
}
