package gaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vorion-labs/cognigate/pkg/contracts"
	"github.com/vorion-labs/cognigate/pkg/fault"
	"github.com/vorion-labs/cognigate/pkg/trust"
)

type ceilingSource struct {
	ceiling int
}

func (s *ceilingSource) AgentCeiling(string) (int, bool) {
	if s.ceiling == 0 {
		return 0, false
	}
	return s.ceiling, true
}

func (s *ceilingSource) OrgCeiling(string) (int, bool)             { return 0, false }
func (s *ceilingSource) OrgFrameworks(string) []contracts.Framework { return nil }

func newFixture(ceiling int) (*trust.Ledger, *Detector) {
	ledger := trust.NewLedger(&ceilingSource{ceiling: ceiling}, nil)
	return ledger, NewDetector(ledger, DefaultThresholds())
}

func findAlert(alerts []Alert, t contracts.AlertType) (Alert, bool) {
	for _, a := range alerts {
		if a.Type == t {
			return a, true
		}
	}
	return Alert{}, false
}

func TestScanEmptyHistory(t *testing.T) {
	_, d := newFixture(0)
	assert.Nil(t, d.Scan("ghost"))
}

func TestRapidChangeDetection(t *testing.T) {
	ledger, d := newFixture(0)

	// Four over-cap jumps; the threshold is "more than three".
	for _, score := range []int{200, 400, 600, 800} {
		_, err := ledger.ProposeScore("a1", score, "batch", "")
		require.NoError(t, err)
	}

	alerts := d.Scan("a1")
	a, ok := findAlert(alerts, contracts.AlertRapidChange)
	require.True(t, ok)
	assert.Equal(t, contracts.SeverityMedium, a.Severity)
	assert.Equal(t, float64(4), a.Observed)
	assert.Equal(t, contracts.AlertActive, a.Status)
}

func TestRapidChangeThresholdIsStrict(t *testing.T) {
	ledger, d := newFixture(0)

	// Exactly three breaches stay below the bar.
	for _, score := range []int{200, 400, 600} {
		_, err := ledger.ProposeScore("a1", score, "batch", "")
		require.NoError(t, err)
	}

	_, ok := findAlert(d.Scan("a1"), contracts.AlertRapidChange)
	assert.False(t, ok)
}

func TestRapidChangeSeverityTracksVelocityCap(t *testing.T) {
	ledger := trust.NewLedger(&ceilingSource{}, nil).WithVelocityCap(50)
	d := NewDetector(ledger, DefaultThresholds())

	// Every 120-point jump breaches the lowered cap; 120 > 2*50 rates
	// high even though it would be medium under the default cap.
	for _, score := range []int{120, 240, 360, 480} {
		_, err := ledger.ProposeScore("a1", score, "batch", "")
		require.NoError(t, err)
	}

	a, ok := findAlert(d.Scan("a1"), contracts.AlertRapidChange)
	require.True(t, ok)
	assert.Equal(t, contracts.SeverityHigh, a.Severity)
}

func TestRapidChangeSeverityScales(t *testing.T) {
	ledger, d := newFixture(0)

	// Worst delta 500 runs past three times the velocity cap.
	for _, score := range []int{500, 0, 500, 0} {
		_, err := ledger.ProposeScore("a1", score, "swing", "")
		require.NoError(t, err)
	}

	a, ok := findAlert(d.Scan("a1"), contracts.AlertRapidChange)
	require.True(t, ok)
	assert.Equal(t, contracts.SeverityCritical, a.Severity)
}

func TestOscillationDetection(t *testing.T) {
	ledger, d := newFixture(0)

	// Five crossings of the 300 boundary, both directions, all under the
	// velocity cap.
	for _, score := range []int{250, 350, 250, 350, 250, 350} {
		_, err := ledger.ProposeScore("a1", score, "drift", "")
		require.NoError(t, err)
	}

	a, ok := findAlert(d.Scan("a1"), contracts.AlertOscillation)
	require.True(t, ok)
	assert.Equal(t, contracts.SeverityHigh, a.Severity)
	assert.Equal(t, float64(5), a.Observed)
}

func TestOscillationNeedsBothDirections(t *testing.T) {
	ledger, d := newFixture(0)

	// Monotone growth crosses plenty of boundaries but never descends.
	for _, score := range []int{120, 240, 340, 440, 540, 640, 740, 840, 940} {
		_, err := ledger.ProposeScore("a1", score, "growth", "")
		require.NoError(t, err)
	}

	_, ok := findAlert(d.Scan("a1"), contracts.AlertOscillation)
	assert.False(t, ok)
}

func TestBoundaryTestingDetection(t *testing.T) {
	ledger, d := newFixture(700)

	_, err := ledger.ProposeScore("a1", 692, "probe", "")
	require.NoError(t, err)
	for _, score := range []int{695, 698} {
		_, err := ledger.ProposeScore("a1", score, "probe", "")
		require.NoError(t, err)
	}

	a, ok := findAlert(d.Scan("a1"), contracts.AlertBoundaryTesting)
	require.True(t, ok)
	assert.Equal(t, contracts.SeverityMedium, a.Severity)
	assert.Equal(t, float64(3), a.Observed)
}

func TestCeilingBreachDetection(t *testing.T) {
	ledger, d := newFixture(700)

	// 100 over the ceiling: clipped by the ledger, flagged here.
	entry, err := ledger.ProposeScore("a1", 800, "bypass_attempt", "")
	require.NoError(t, err)
	require.Equal(t, 700, entry.FinalScore)

	a, ok := findAlert(d.Scan("a1"), contracts.AlertCeilingBreach)
	require.True(t, ok)
	assert.Equal(t, contracts.SeverityCritical, a.Severity)
	assert.Equal(t, float64(800), a.Observed)
}

func TestCeilingBreachMarginTolerated(t *testing.T) {
	ledger, d := newFixture(700)

	// 40 over the ceiling sits inside the 50-point margin.
	_, err := ledger.ProposeScore("a1", 740, "optimistic", "")
	require.NoError(t, err)

	_, ok := findAlert(d.Scan("a1"), contracts.AlertCeilingBreach)
	assert.False(t, ok)
}

func TestUnresolvedAlertsDeduplicate(t *testing.T) {
	ledger, d := newFixture(700)

	_, err := ledger.ProposeScore("a1", 800, "bypass", "")
	require.NoError(t, err)

	first := d.Scan("a1")
	require.NotEmpty(t, first)
	assert.Empty(t, d.Scan("a1"), "same unresolved finding is not raised twice")

	// Resolving reopens the slot for a fresh detection.
	a, _ := findAlert(first, contracts.AlertCeilingBreach)
	_, err = d.Resolve(a.ID, contracts.AlertResolved, "analyst", "confirmed and handled")
	require.NoError(t, err)

	again := d.Scan("a1")
	_, ok := findAlert(again, contracts.AlertCeilingBreach)
	assert.True(t, ok)
}

func TestResolveLifecycle(t *testing.T) {
	ledger, d := newFixture(700)
	_, err := ledger.ProposeScore("a1", 800, "bypass", "")
	require.NoError(t, err)
	alerts := d.Scan("a1")
	a, ok := findAlert(alerts, contracts.AlertCeilingBreach)
	require.True(t, ok)

	got, err := d.Resolve(a.ID, contracts.AlertInvestigating, "analyst", "")
	require.NoError(t, err)
	assert.Equal(t, contracts.AlertInvestigating, got.Status)
	assert.Empty(t, got.ResolvedBy)

	got, err = d.Resolve(a.ID, contracts.AlertFalsePositive, "analyst", "scheduled migration")
	require.NoError(t, err)
	assert.Equal(t, "analyst", got.ResolvedBy)
	require.NotNil(t, got.ResolvedAt)

	// Terminal states stay terminal.
	_, err = d.Resolve(a.ID, contracts.AlertResolved, "analyst", "")
	assert.Equal(t, fault.Conflict, fault.KindOf(err))
}

func TestResolveRequiresActor(t *testing.T) {
	_, d := newFixture(0)
	_, err := d.Resolve("whatever", contracts.AlertResolved, "", "")
	assert.Error(t, err)
}

func TestResolveUnknownAlert(t *testing.T) {
	_, d := newFixture(0)
	_, err := d.Resolve("missing", contracts.AlertResolved, "analyst", "")
	assert.Equal(t, fault.NotFound, fault.KindOf(err))
}

func TestAlertFilteringAndCounts(t *testing.T) {
	ledger, d := newFixture(700)
	_, err := ledger.ProposeScore("a1", 800, "bypass", "")
	require.NoError(t, err)
	_, err = ledger.ProposeScore("a2", 800, "bypass", "")
	require.NoError(t, err)

	d.Scan("a1")
	d.Scan("a2")

	active := d.Alerts(contracts.AlertActive)
	assert.Len(t, active, 2)
	assert.Equal(t, 2, d.AgentsWithAlerts())

	_, err = d.Resolve(active[0].ID, contracts.AlertResolved, "analyst", "")
	require.NoError(t, err)
	assert.Equal(t, 1, d.AgentsWithAlerts())
	assert.Len(t, d.Alerts(""), 2, "terminal alerts remain queryable")
}
