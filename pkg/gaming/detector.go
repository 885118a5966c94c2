// Package gaming watches each agent's trust trajectory for patterns that
// suggest the score is being gamed: bursts of over-cap changes, tier
// boundary oscillation, ceiling probing, and outright breach attempts.
//
// Rules are independent; several can fire for one agent in one window.
// Alerts resolve only through explicit human action, never automatically.
package gaming

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/vorion-labs/cognigate/pkg/contracts"
	"github.com/vorion-labs/cognigate/pkg/events"
	"github.com/vorion-labs/cognigate/pkg/fault"
	"github.com/vorion-labs/cognigate/pkg/trust"
)

// Thresholds configures the detection rules.
type Thresholds struct {
	// Window is the sliding measurement window over ledger entries.
	Window time.Duration `yaml:"window"`
	// RapidChangeCount: more than this many velocity-cap breaches inside
	// the window raises a rapid_change alert.
	RapidChangeCount int `yaml:"rapid_change_count"`
	// OscillationCount: more than this many tier-boundary crossings,
	// with at least one in each direction, raises an oscillation alert.
	OscillationCount int `yaml:"oscillation_count"`
	// BoundaryEpsilon and BoundaryCount: this many unclipped proposals
	// landing within epsilon of the ceiling raises a boundary_testing
	// alert.
	BoundaryEpsilon int `yaml:"boundary_epsilon"`
	BoundaryCount   int `yaml:"boundary_count"`
	// CeilingBreachMargin: a raw proposal exceeding the ceiling by more
	// than this raises a critical ceiling_breach alert.
	CeilingBreachMargin int `yaml:"ceiling_breach_margin"`
	// AlertsPerMinute throttles alert emission per agent so a noisy
	// trajectory cannot flood the sink.
	AlertsPerMinute float64 `yaml:"alerts_per_minute"`
}

// DefaultThresholds returns production defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Window:              time.Hour,
		RapidChangeCount:    3,
		OscillationCount:    4,
		BoundaryEpsilon:     10,
		BoundaryCount:       3,
		CeilingBreachMargin: 50,
		AlertsPerMinute:     10,
	}
}

// Alert is one detection. Detection fields are immutable; only the
// resolution lifecycle mutates.
type Alert struct {
	ID        string                  `json:"id"`
	AgentID   string                  `json:"agent_id"`
	Type      contracts.AlertType     `json:"type"`
	Severity  contracts.AlertSeverity `json:"severity"`
	Status    contracts.AlertStatus   `json:"status"`
	Window    time.Duration           `json:"window"`
	Threshold float64                 `json:"threshold"`
	Observed  float64                 `json:"observed"`
	Detail    string                  `json:"detail"`
	CreatedAt time.Time               `json:"created_at"`

	ResolvedBy string     `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

// Detector runs the rules against the trust ledger.
type Detector struct {
	mu         sync.RWMutex
	ledger     *trust.Ledger
	cfg        Thresholds
	alerts     map[string]*Alert
	limiters   map[string]*rate.Limiter
	suppressed int
	emitter    events.Emitter
	clock      func() time.Time
}

// NewDetector creates a detector over the given trust ledger.
func NewDetector(ledger *trust.Ledger, cfg Thresholds) *Detector {
	if cfg.Window <= 0 {
		cfg = DefaultThresholds()
	}
	return &Detector{
		ledger:   ledger,
		cfg:      cfg,
		alerts:   make(map[string]*Alert),
		limiters: make(map[string]*rate.Limiter),
		emitter:  events.Discard{},
		clock:    time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (d *Detector) WithClock(clock func() time.Time) *Detector {
	d.clock = clock
	return d
}

// WithEmitter attaches the outbound event sink.
func (d *Detector) WithEmitter(e events.Emitter) *Detector {
	d.emitter = e
	return d
}

// Scan evaluates every rule for an agent over the current window and
// records (and emits) any alerts raised.
func (d *Detector) Scan(agentID string) []Alert {
	now := d.clock()
	entries := d.ledger.History(agentID, now.Add(-d.cfg.Window))
	if len(entries) == 0 {
		return nil
	}

	var raised []Alert
	if a, ok := d.checkRapidChange(agentID, entries); ok {
		raised = append(raised, a)
	}
	if a, ok := d.checkOscillation(agentID, entries); ok {
		raised = append(raised, a)
	}
	if a, ok := d.checkBoundaryTesting(agentID, entries); ok {
		raised = append(raised, a)
	}
	raised = append(raised, d.checkCeilingBreach(agentID, entries)...)

	var recorded []Alert
	for _, a := range raised {
		if stored, ok := d.store(a); ok {
			recorded = append(recorded, stored)
		}
	}
	return recorded
}

func (d *Detector) checkRapidChange(agentID string, entries []trust.Entry) (Alert, bool) {
	breaches := 0
	maxDelta := 0
	for _, e := range entries {
		if !e.VelocityExceeded {
			continue
		}
		breaches++
		delta := e.FinalScore - e.PreviousScore
		if delta < 0 {
			delta = -delta
		}
		if delta > maxDelta {
			maxDelta = delta
		}
	}
	if breaches <= d.cfg.RapidChangeCount {
		return Alert{}, false
	}
	// Severity scales with how far the worst delta ran past the
	// ledger's effective cap.
	cap := d.ledger.VelocityCap()
	severity := contracts.SeverityMedium
	switch {
	case maxDelta > 3*cap:
		severity = contracts.SeverityCritical
	case maxDelta > 2*cap:
		severity = contracts.SeverityHigh
	}
	return d.newAlert(agentID, contracts.AlertRapidChange, severity,
		float64(d.cfg.RapidChangeCount), float64(breaches),
		fmt.Sprintf("%d velocity-cap breaches in window, worst delta %d", breaches, maxDelta)), true
}

func (d *Detector) checkOscillation(agentID string, entries []trust.Entry) (Alert, bool) {
	boundaries := d.ledger.Boundaries().Boundaries()
	up, down := 0, 0
	for i := 1; i < len(entries); i++ {
		prev, cur := entries[i-1].FinalScore, entries[i].FinalScore
		for _, b := range boundaries {
			if prev < b && cur >= b {
				up++
			}
			if prev >= b && cur < b {
				down++
			}
		}
	}
	crossings := up + down
	if up == 0 || down == 0 || crossings <= d.cfg.OscillationCount {
		return Alert{}, false
	}
	return d.newAlert(agentID, contracts.AlertOscillation, contracts.SeverityHigh,
		float64(d.cfg.OscillationCount), float64(crossings),
		fmt.Sprintf("%d tier boundary crossings (%d up, %d down)", crossings, up, down)), true
}

func (d *Detector) checkBoundaryTesting(agentID string, entries []trust.Entry) (Alert, bool) {
	near := 0
	for _, e := range entries {
		if e.CeilingApplied {
			continue
		}
		if e.Ceiling-e.FinalScore <= d.cfg.BoundaryEpsilon {
			near++
		}
	}
	if near < d.cfg.BoundaryCount {
		return Alert{}, false
	}
	return d.newAlert(agentID, contracts.AlertBoundaryTesting, contracts.SeverityMedium,
		float64(d.cfg.BoundaryCount), float64(near),
		fmt.Sprintf("%d proposals within %d points of the ceiling", near, d.cfg.BoundaryEpsilon)), true
}

func (d *Detector) checkCeilingBreach(agentID string, entries []trust.Entry) []Alert {
	var out []Alert
	for _, e := range entries {
		over := e.ProposedScore - e.Ceiling
		if over <= d.cfg.CeilingBreachMargin {
			continue
		}
		out = append(out, d.newAlert(agentID, contracts.AlertCeilingBreach, contracts.SeverityCritical,
			float64(e.Ceiling+d.cfg.CeilingBreachMargin), float64(e.ProposedScore),
			fmt.Sprintf("proposal %d exceeded ceiling %d by %d", e.ProposedScore, e.Ceiling, over)))
	}
	return out
}

func (d *Detector) newAlert(agentID string, t contracts.AlertType, sev contracts.AlertSeverity, threshold, observed float64, detail string) Alert {
	return Alert{
		ID:        uuid.New().String(),
		AgentID:   agentID,
		Type:      t,
		Severity:  sev,
		Status:    contracts.AlertActive,
		Window:    d.cfg.Window,
		Threshold: threshold,
		Observed:  observed,
		Detail:    detail,
		CreatedAt: d.clock(),
	}
}

// store records the alert unless the per-agent limiter suppresses it or
// an identical unresolved alert already exists.
func (d *Detector) store(a Alert) (Alert, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, existing := range d.alerts {
		if existing.AgentID == a.AgentID && existing.Type == a.Type &&
			(existing.Status == contracts.AlertActive || existing.Status == contracts.AlertInvestigating) {
			return Alert{}, false
		}
	}

	lim, ok := d.limiters[a.AgentID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(d.cfg.AlertsPerMinute/60.0), int(d.cfg.AlertsPerMinute))
		d.limiters[a.AgentID] = lim
	}
	if !lim.Allow() {
		d.suppressed++
		return Alert{}, false
	}

	d.alerts[a.ID] = &a
	d.emitter.Emit(events.New(contracts.EventGamingAlertRaised, a.AgentID, a))
	return a, true
}

// Resolve moves an alert through its lifecycle. Valid transitions:
// active→investigating, active→resolved, active→false_positive,
// investigating→resolved, investigating→false_positive. Terminal states
// never transition again.
func (d *Detector) Resolve(alertID string, status contracts.AlertStatus, actor, notes string) (Alert, error) {
	if actor == "" {
		return Alert{}, fmt.Errorf("alert resolution requires an actor")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	a, ok := d.alerts[alertID]
	if !ok {
		return Alert{}, fault.New(fault.NotFound, "alert %s not found", alertID)
	}
	switch a.Status {
	case contracts.AlertResolved, contracts.AlertFalsePositive:
		return Alert{}, fault.New(fault.Conflict, "alert %s already terminal (%s)", alertID, a.Status)
	}
	switch status {
	case contracts.AlertInvestigating:
		if a.Status != contracts.AlertActive {
			return Alert{}, fault.New(fault.Conflict, "alert %s is %s, not active", alertID, a.Status)
		}
	case contracts.AlertResolved, contracts.AlertFalsePositive:
	default:
		return Alert{}, fmt.Errorf("invalid target status %q", status)
	}

	a.Status = status
	a.Notes = notes
	if status == contracts.AlertResolved || status == contracts.AlertFalsePositive {
		now := d.clock()
		a.ResolvedBy = actor
		a.ResolvedAt = &now
	}
	cp := *a
	return cp, nil
}

// Alerts returns a snapshot filtered by status ("" for all).
func (d *Detector) Alerts(status contracts.AlertStatus) []Alert {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Alert
	for _, a := range d.alerts {
		if status == "" || a.Status == status {
			out = append(out, *a)
		}
	}
	return out
}

// AgentsWithAlerts counts distinct agents holding non-terminal alerts.
func (d *Detector) AgentsWithAlerts() int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	agents := make(map[string]struct{})
	for _, a := range d.alerts {
		if a.Status == contracts.AlertActive || a.Status == contracts.AlertInvestigating {
			agents[a.AgentID] = struct{}{}
		}
	}
	return len(agents)
}
