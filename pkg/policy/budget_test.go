package policy_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigos/governor/pkg/policy"
)

// TestBudgetLedger_DailyDenyDoesNotConsumeSession covers the rollback
// property: a call that passes the session cap but fails the daily cap
// must leave the session ledger untouched, so a later call within the same
// session budget still succeeds.
func TestBudgetLedger_DailyDenyDoesNotConsumeSession(t *testing.T) {
	ledger := policy.NewBudgetLedger(nil)
	manifest := policy.CapabilityManifest{
		MaxCostPerSession: 1000,
		MaxCostPerDay:     50,
	}

	denied := ledger.CheckAndConsume("inst-1", "org-1", "asset-1", manifest, 90)
	require.False(t, denied.Allowed)
	assert.Equal(t, "daily", denied.WindowKind)

	// If the session ledger had been consumed before the daily check
	// failed, a second call well within both caps would now fail too.
	allowed := ledger.CheckAndConsume("inst-1", "org-1", "asset-1", manifest, 40)
	require.True(t, allowed.Allowed)
}

func TestBudgetLedger_SessionCapEnforced(t *testing.T) {
	ledger := policy.NewBudgetLedger(nil)
	manifest := policy.CapabilityManifest{MaxCostPerSession: 100}

	first := ledger.CheckAndConsume("inst-1", "org-1", "asset-1", manifest, 90)
	require.True(t, first.Allowed)

	second := ledger.CheckAndConsume("inst-1", "org-1", "asset-1", manifest, 20)
	require.False(t, second.Allowed)
	assert.Equal(t, "session", second.WindowKind)
}

func TestBudgetLedger_RateCapEnforced(t *testing.T) {
	ledger := policy.NewBudgetLedger(nil)
	manifest := policy.CapabilityManifest{MaxCallsPerMinute: 1}

	first := ledger.CheckAndConsume("inst-1", "org-1", "asset-1", manifest, 1)
	require.True(t, first.Allowed)

	second := ledger.CheckAndConsume("inst-1", "org-1", "asset-1", manifest, 1)
	require.False(t, second.Allowed)
	assert.Equal(t, "rate", second.WindowKind)
}

func TestBudgetLedger_WarnThresholdFires(t *testing.T) {
	ledger := policy.NewBudgetLedger(nil)
	manifest := policy.CapabilityManifest{MaxCostPerSession: 100}

	result := ledger.CheckAndConsume("inst-1", "org-1", "asset-1", manifest, 85)
	require.True(t, result.Allowed)
	assert.Equal(t, "session", result.WarnWindowKind)
	assert.InDelta(t, 0.85, result.WarnFraction, 0.001)
}
