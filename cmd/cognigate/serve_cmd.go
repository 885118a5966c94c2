package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vorion-labs/cognigate/pkg/config"
	"github.com/vorion-labs/cognigate/pkg/contracts"
	"github.com/vorion-labs/cognigate/pkg/engine"
	"github.com/vorion-labs/cognigate/pkg/events"
	"github.com/vorion-labs/cognigate/pkg/gaming"
	"github.com/vorion-labs/cognigate/pkg/observability"
	"github.com/vorion-labs/cognigate/pkg/rolegate"
	"github.com/vorion-labs/cognigate/pkg/store"
	"github.com/vorion-labs/cognigate/pkg/tiers"
	"github.com/vorion-labs/cognigate/pkg/trust"
)

// runServeCmd implements `cognigate serve`: the long-running governance
// daemon. It assembles the engine with durable sqlite stores, the Redis
// event stream and OTLP telemetry when configured, and runs the
// maintenance sweeper until interrupted.
func runServeCmd(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()

	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		dbPath        string
		redisAddr     string
		stream        string
		otlpEndpoint  string
		profilesDir   string
		profileCode   string
		tierFile      string
		bundlePath    string
		sweepInterval time.Duration
	)
	cmd.StringVar(&dbPath, "db", cfg.DatabasePath, "Path to the sqlite database")
	cmd.StringVar(&redisAddr, "redis", cfg.RedisAddr, "Redis address for the event stream (empty disables)")
	cmd.StringVar(&stream, "stream", cfg.EventStream, "Redis stream name")
	cmd.StringVar(&otlpEndpoint, "otlp", cfg.OTLPEndpoint, "OTLP gRPC endpoint for telemetry (empty disables)")
	cmd.StringVar(&profilesDir, "profiles", cfg.ProfilesDir, "Governance profiles directory")
	cmd.StringVar(&profileCode, "profile", "", "Governance profile code to load")
	cmd.StringVar(&tierFile, "tiers", cfg.TierTable, "Tier boundary table YAML (empty uses the default)")
	cmd.StringVar(&bundlePath, "bundle", "", "Policy bundle YAML (empty runs without policies)")
	cmd.DurationVar(&sweepInterval, "sweep-interval", time.Minute, "Maintenance sweep interval")

	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if cfg.BasisSecret == "" {
		_, _ = fmt.Fprintln(stderr, "Error: COGNIGATE_BASIS_SECRET must be set")
		return 2
	}

	logger := newLogger(cfg.LogLevel, stderr)

	profile := config.DefaultProfile()
	if profileCode != "" {
		loaded, err := config.LoadProfile(profilesDir, profileCode)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		profile = loaded
	}

	tierTable := tiers.Default()
	if tierFile != "" {
		loaded, err := tiers.LoadFile(tierFile)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		tierTable = loaded
	}

	var bundle *rolegate.Bundle
	if bundlePath != "" {
		loaded, err := rolegate.LoadBundleFile(bundlePath)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		bundle = loaded
	}

	db, err := store.Open(dbPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	trustStore, err := store.NewSQLiteTrustStore(db)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	gateStore, err := store.NewSQLiteGateStore(db)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	breakerStore, err := store.NewSQLiteBreakerStore(db)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sinks events.Fanout

	if redisAddr != "" {
		publisher := events.NewRedisPublisher(redisAddr, "", 0, logger).WithStream(stream)
		defer func() { _ = publisher.Close() }()
		sinks = append(sinks, publisher)
	}

	if otlpEndpoint != "" {
		obsCfg := observability.DefaultConfig()
		obsCfg.OTLPEndpoint = otlpEndpoint
		provider, err := observability.New(ctx, obsCfg)
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = provider.Shutdown(shutdownCtx)
		}()
		sinks = append(sinks, &telemetryEmitter{provider: provider})
	}

	var emitter events.Emitter = events.Discard{}
	if len(sinks) > 0 {
		emitter = sinks
	}

	eng, err := engine.New(engine.Options{
		TierTable:    tierTable,
		PolicyBundle: bundle,
		BasisSecret:  []byte(cfg.BasisSecret),
		Thresholds:   profile.Detector,
		VelocityCap:  profile.VelocityCap,
		Emitter:      emitter,
		Logger:       logger,
		TrustStore:   trustStore,
		GateStore:    gateStore,
		BreakerStore: breakerStore,

		FrameworkCeilings:  profile.CeilingOverrides(),
		OrgGracePeriod:     profile.Lifecycle.OrgGracePeriod,
		OperationTTL:       profile.Lifecycle.OperationTTL,
		OverrideValidity:   profile.Lifecycle.OverrideValidity,
		ConsensusAgreement: profile.Consensus.RequiredAgreement,
		ConsensusWindow:    profile.Consensus.VotingWindow,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	logger.Info("governance engine ready",
		"db", dbPath,
		"profile", profile.Code,
		"redis", redisAddr != "",
		"otlp", otlpEndpoint != "",
		"sweep_interval", sweepInterval,
	)
	fmt.Fprintf(stdout, "cognigate serving (profile %s), Ctrl-C to stop\n", profile.Code)

	eng.Run(ctx, sweepInterval)

	logger.Info("shutting down")
	return 0
}

func newLogger(level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// telemetryEmitter bridges governance events onto the OTLP counters.
type telemetryEmitter struct {
	provider *observability.Provider
}

func (t *telemetryEmitter) Emit(event contracts.Event) {
	ctx := context.Background()
	switch event.Type {
	case contracts.EventRoleGateDecision:
		if eval, ok := event.Record.(rolegate.Evaluation); ok {
			t.provider.RecordDecision(ctx, string(eval.Decision))
		}
	case contracts.EventTrustScoreChanged:
		if entry, ok := event.Record.(trust.Entry); ok {
			t.provider.RecordScoreChange(ctx, string(entry.Compliance))
		}
	case contracts.EventAgentPaused:
		t.provider.RecordBreakerTransition(ctx, "paused")
	case contracts.EventAgentResumed:
		t.provider.RecordBreakerTransition(ctx, "resumed")
	case contracts.EventGamingAlertRaised:
		if alert, ok := event.Record.(gaming.Alert); ok {
			t.provider.RecordAlert(ctx, string(alert.Type), string(alert.Severity))
		}
	}
}
