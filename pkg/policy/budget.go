package policy

import (
	"sync"
	"time"
)

// warnThreshold is the fraction of a cap at which a budget warning fires
// (spec §4.3: "budget warnings fire at 80% thresholds").
const warnThreshold = 0.8

// sessionLedger tracks spend bound to a single instance_id for the lifetime
// of that instance (spec §4.3: "session window is bound to instance_id").
type sessionLedger struct {
	mu    sync.Mutex
	spent int64
}

// rollingLedger tracks spend for a window that resets at a wall-clock
// boundary (UTC day or UTC month), bound to (orgId, asset_id).
type rollingLedger struct {
	mu           sync.Mutex
	spent        int64
	windowStart  time.Time
	boundary     func(time.Time) time.Time // returns the start of the window containing t
}

func newRollingLedger(boundary func(time.Time) time.Time, now time.Time) *rollingLedger {
	return &rollingLedger{windowStart: boundary(now), boundary: boundary}
}

func dayBoundary(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func monthBoundary(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// BudgetLedger tracks session, daily, monthly and per-minute-call spend for
// every (instance_id) and (orgId, asset_id) pair seen, with race-free
// overflow detection: the check-and-increment happens inside one critical
// section per ledger so no two concurrent calls can both succeed past a cap
// (spec §5).
type BudgetLedger struct {
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionLedger // instance_id -> ledger
	daily    map[string]*rollingLedger // orgId/assetId -> ledger
	monthly  map[string]*rollingLedger
	minute   map[string]*minuteWindow // instance_id -> call-rate window
}

type minuteWindow struct {
	mu          sync.Mutex
	windowStart time.Time
	count       int64
}

// NewBudgetLedger constructs a ledger using the real wall clock. Tests may
// substitute now for a deterministic clock.
func NewBudgetLedger(now func() time.Time) *BudgetLedger {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &BudgetLedger{
		now:      now,
		sessions: make(map[string]*sessionLedger),
		daily:    make(map[string]*rollingLedger),
		monthly:  make(map[string]*rollingLedger),
		minute:   make(map[string]*minuteWindow),
	}
}

func (b *BudgetLedger) sessionFor(instanceID string) *sessionLedger {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.sessions[instanceID]
	if !ok {
		l = &sessionLedger{}
		b.sessions[instanceID] = l
	}
	return l
}

func (b *BudgetLedger) dailyFor(key string) *rollingLedger {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.daily[key]
	if !ok {
		l = newRollingLedger(dayBoundary, b.now())
		b.daily[key] = l
	}
	return l
}

func (b *BudgetLedger) monthlyFor(key string) *rollingLedger {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.monthly[key]
	if !ok {
		l = newRollingLedger(monthBoundary, b.now())
		b.monthly[key] = l
	}
	return l
}

func (b *BudgetLedger) minuteFor(instanceID string) *minuteWindow {
	b.mu.Lock()
	defer b.mu.Unlock()
	w, ok := b.minute[instanceID]
	if !ok {
		w = &minuteWindow{windowStart: b.now()}
		b.minute[instanceID] = w
	}
	return w
}

// BudgetResult reports whether consumption was allowed and, if not, which
// window overflowed.
type BudgetResult struct {
	Allowed    bool
	WindowKind string // "session" | "daily" | "monthly" | "rate"

	// WarnFraction is set (>0) when this call crossed the 80% warn
	// threshold for the window it touched, even if allowed.
	WarnWindowKind string
	WarnFraction   float64
}

// CheckAndConsume atomically checks whether cost fits under every
// configured cap, and if so, consumes it against all of them. All locks
// touched by this call are acquired up front, in a fixed order
// (session, daily, monthly, rate), and held for the whole check-then-commit
// pass: the four caps are checked against each other's current state before
// any of them is incremented, so a cap that denies never leaves an earlier
// cap's consumption committed, and no concurrent call can observe or
// interleave with a partial commit.
func (b *BudgetLedger) CheckAndConsume(instanceID, orgID, assetID string, manifest CapabilityManifest, cost int64) BudgetResult {
	rollKey := orgID + "/" + assetID
	now := b.now()

	var sess *sessionLedger
	var daily, monthly *rollingLedger
	var minute *minuteWindow

	if manifest.MaxCostPerSession > 0 {
		sess = b.sessionFor(instanceID)
		sess.mu.Lock()
		defer sess.mu.Unlock()
	}
	if manifest.MaxCostPerDay > 0 {
		daily = b.dailyFor(rollKey)
		daily.mu.Lock()
		defer daily.mu.Unlock()
	}
	if manifest.MaxCostPerMonth > 0 {
		monthly = b.monthlyFor(rollKey)
		monthly.mu.Lock()
		defer monthly.mu.Unlock()
	}
	if manifest.MaxCallsPerMinute > 0 {
		minute = b.minuteFor(instanceID)
		minute.mu.Lock()
		defer minute.mu.Unlock()
	}

	if daily != nil {
		if start := daily.boundary(now); start.After(daily.windowStart) {
			daily.windowStart = start
			daily.spent = 0
		}
	}
	if monthly != nil {
		if start := monthly.boundary(now); start.After(monthly.windowStart) {
			monthly.windowStart = start
			monthly.spent = 0
		}
	}
	if minute != nil && now.Sub(minute.windowStart) >= time.Minute {
		minute.windowStart = now
		minute.count = 0
	}

	// Check phase: nothing is committed yet, so a deny here leaves every
	// ledger untouched.
	switch {
	case sess != nil && sess.spent+cost > manifest.MaxCostPerSession:
		return BudgetResult{Allowed: false, WindowKind: "session"}
	case daily != nil && daily.spent+cost > manifest.MaxCostPerDay:
		return BudgetResult{Allowed: false, WindowKind: "daily"}
	case monthly != nil && monthly.spent+cost > manifest.MaxCostPerMonth:
		return BudgetResult{Allowed: false, WindowKind: "monthly"}
	case minute != nil && minute.count+1 > manifest.MaxCallsPerMinute:
		return BudgetResult{Allowed: false, WindowKind: "rate"}
	}

	// Commit phase: every cap passed, so every touched ledger is
	// incremented together.
	var warnKind string
	var warnFrac float64
	if sess != nil {
		sess.spent += cost
		if frac := float64(sess.spent) / float64(manifest.MaxCostPerSession); frac >= warnThreshold {
			warnKind, warnFrac = "session", frac
		}
	}
	if daily != nil {
		daily.spent += cost
		if frac := float64(daily.spent) / float64(manifest.MaxCostPerDay); frac >= warnThreshold && warnKind == "" {
			warnKind, warnFrac = "daily", frac
		}
	}
	if monthly != nil {
		monthly.spent += cost
		if frac := float64(monthly.spent) / float64(manifest.MaxCostPerMonth); frac >= warnThreshold && warnKind == "" {
			warnKind, warnFrac = "monthly", frac
		}
	}
	if minute != nil {
		minute.count++
	}

	return BudgetResult{Allowed: true, WarnWindowKind: warnKind, WarnFraction: warnFrac}
}
