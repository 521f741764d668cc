package policy

import (
	"time"

	"github.com/aigos/governor/pkg/capability"
)

// Config controls engine-wide behavior not carried per-request.
type Config struct {
	// DryRun turns every would-be deny into an allow with would_deny=true.
	DryRun bool

	// DefaultAllow flips the CUSTOM stage's default from deny to allow
	// when no rule matches (spec §4.3: "unmatched rules default deny ...
	// unless defaultAllow=true").
	DefaultAllow bool

	MaxCacheSize int
}

// Engine is the Bouncer: an ordered, short-circuiting policy decision
// procedure (spec §4.3).
type Engine struct {
	cfg Config

	killSwitch KillSwitchState
	ledger     *BudgetLedger
	cache      *PatternCache
	emitter    EventEmitter
	customHooks []CustomHook

	manifestFor func(instanceID string) (CapabilityManifest, bool)

	now func() time.Time
}

// NewEngine constructs a Bouncer. manifestFor resolves an instance's current
// capability manifest (the engine holds no identity store of its own).
func NewEngine(cfg Config, killSwitch KillSwitchState, manifestFor func(string) (CapabilityManifest, bool), emitter EventEmitter) *Engine {
	if emitter == nil {
		emitter = NopEmitter{}
	}
	return &Engine{
		cfg:         cfg,
		killSwitch:  killSwitch,
		ledger:      NewBudgetLedger(nil),
		cache:       NewPatternCache(cfg.MaxCacheSize),
		emitter:     emitter,
		manifestFor: manifestFor,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// AddCustomHook registers an additional deny-only check run at the CUSTOM
// stage, in registration order.
func (e *Engine) AddCustomHook(h CustomHook) {
	e.customHooks = append(e.customHooks, h)
}

// CacheStats exposes the pattern cache's hit/miss/size counters.
func (e *Engine) CacheStats() CacheStats {
	return e.cache.Stats()
}

// Check runs req through the ordered stage pipeline and returns a Decision.
// Default is deny unless an earlier allow fires; the first stage to deny
// short-circuits the rest.
func (e *Engine) Check(req Request) Decision {
	start := e.now()

	d := e.evaluate(req, start)

	if e.cfg.DryRun && !d.Allowed {
		d.WouldDeny = true
		d.Allowed = true
		d.DryRun = true
	}

	d.DurationMs = float64(e.now().Sub(start).Microseconds()) / 1000.0

	e.emitter.EmitDecision(req, d)
	if !d.Allowed || d.WouldDeny {
		e.emitter.EmitViolation(req, d)
	}
	return d
}

func (e *Engine) evaluate(req Request, checkedAt time.Time) Decision {
	deny := func(stage Stage, code, reason string) Decision {
		return Decision{
			Allowed:   false,
			Reason:    reason,
			Code:      code,
			CheckedAt: checkedAt,
			DeniedBy:  stage,
		}
	}
	allow := func() Decision {
		return Decision{Allowed: true, Code: CodeAllowed, Reason: "allowed", CheckedAt: checkedAt}
	}

	// Stage 1: KILL_SWITCH (O(1)).
	if e.killSwitch != nil {
		if e.killSwitch.GlobalKill() {
			return deny(StageKillSwitch, CodeTerminated, "global kill switch is active")
		}
		if paused, terminated := e.killSwitch.InstanceState(req.InstanceID); terminated {
			return deny(StageKillSwitch, CodeTerminated, "instance is terminated")
		} else if paused {
			return deny(StageKillSwitch, CodePaused, "instance is paused")
		}
		if paused, terminated := e.killSwitch.AssetState(req.AssetID); terminated {
			return deny(StageKillSwitch, CodeTerminated, "asset is terminated")
		} else if paused {
			return deny(StageKillSwitch, CodePaused, "asset is paused")
		}
	}

	manifest, ok := e.manifestFor(req.InstanceID)
	if !ok {
		return deny(StageCapability, CodeCapabilityDenied, "unknown instance")
	}

	// Stage 2: CAPABILITY — deny pattern wins over allow pattern.
	if req.Action != "" {
		deniedKey := "tool-deny:" + req.InstanceID + ":" + req.Action
		if e.cache.GetOrCompute(deniedKey, func() bool { return capability.MatchAny(manifest.DeniedTools, req.Action) }) {
			return deny(StageCapability, CodeCapabilityDenied, "action matches a denied tool pattern")
		}
		if len(manifest.AllowedTools) > 0 {
			allowedKey := "tool-allow:" + req.InstanceID + ":" + req.Action
			if !e.cache.GetOrCompute(allowedKey, func() bool { return capability.MatchAny(manifest.AllowedTools, req.Action) }) {
				return deny(StageCapability, CodeCapabilityDenied, "action does not match any allowed tool pattern")
			}
		}
	}

	// Stage 3: RESOURCE_DENY.
	if req.Resource != "" {
		deniedKey := "res-deny:" + req.InstanceID + ":" + req.Resource
		if e.cache.GetOrCompute(deniedKey, func() bool { return capability.MatchAnyDomain(manifest.DeniedDomains, req.Resource) }) {
			return deny(StageResourceDeny, CodeResourceDenied, "resource matches a denied pattern")
		}

		// Stage 4: RESOURCE_ALLOW.
		if len(manifest.AllowedDomains) > 0 {
			allowedKey := "res-allow:" + req.InstanceID + ":" + req.Resource
			if !e.cache.GetOrCompute(allowedKey, func() bool { return capability.MatchAnyDomain(manifest.AllowedDomains, req.Resource) }) {
				return deny(StageResourceAllow, CodeResourceNotAllowed, "resource does not match any allowed pattern")
			}
		}
	}

	// Stage 5: BUDGET.
	result := e.ledger.CheckAndConsume(req.InstanceID, req.OrgID, req.AssetID, manifest, req.Cost)
	if !result.Allowed {
		code := CodeBudgetExceeded
		if result.WindowKind == "rate" {
			code = CodeRateExceeded
		}
		return deny(StageBudget, code, "budget or rate cap exceeded: "+result.WindowKind)
	}
	if result.WarnWindowKind != "" {
		e.emitter.EmitBudgetWarning(req, result.WarnWindowKind, result.WarnFraction)
	}

	// Stage 6: SCHEDULE and CUSTOM.
	for _, hook := range e.customHooks {
		if denied, reason := hook(req); denied {
			return Decision{
				Allowed:   false,
				Reason:    reason,
				Code:      CodeCustomDenied,
				CheckedAt: checkedAt,
				DeniedBy:  StageCustom,
			}
		}
	}

	// No custom rule matched. Spec §4.3: default deny at this point unless
	// the org's profile opts into defaultAllow.
	if !e.cfg.DefaultAllow {
		return deny(StageCustom, CodeCustomDenied, "no rule matched")
	}

	return allow()
}
