// Package policy implements the Bouncer: the ordered, low-latency decision
// procedure answering "may this agent perform this action on this resource
// now?" (spec §4.3).
package policy

import "time"

// Stage names the ordered pipeline stages. Evaluation short-circuits on the
// first stage that denies.
type Stage string

const (
	StageKillSwitch    Stage = "KILL_SWITCH"
	StageCapability    Stage = "CAPABILITY"
	StageResourceDeny  Stage = "RESOURCE_DENY"
	StageResourceAllow Stage = "RESOURCE_ALLOW"
	StageBudget        Stage = "BUDGET"
	StageSchedule      Stage = "SCHEDULE"
	StageCustom        Stage = "CUSTOM"
)

// Decision codes, named per spec §4.3 / §4.5 / §7.
const (
	CodeAllowed         = "ALLOWED"
	CodeTerminated      = "TERMINATED"
	CodePaused          = "PAUSED"
	CodeCapabilityDenied = "CAPABILITY_DENIED"
	CodeResourceDenied  = "RESOURCE_DENIED"
	CodeResourceNotAllowed = "RESOURCE_NOT_ALLOWED"
	CodeBudgetExceeded  = "BUDGET_EXCEEDED"
	CodeRateExceeded    = "RATE_EXCEEDED"
	CodeScheduleDenied  = "SCHEDULE_DENIED"
	CodeCustomDenied    = "CUSTOM_DENIED"
)

// Request is one policy check's input.
type Request struct {
	InstanceID string
	AssetID    string
	OrgID      string

	Action   string
	Resource string

	// Cost is the amount this action would consume against session/daily
	// budgets, in the same integer units as CapabilitiesManifest caps.
	Cost int64

	Context map[string]interface{}
}

// Decision is the outcome of a policy check.
type Decision struct {
	Allowed    bool      `json:"allowed"`
	Reason     string    `json:"reason"`
	Code       string    `json:"code"`
	CheckedAt  time.Time `json:"checked_at"`
	DurationMs float64   `json:"duration_ms"`
	DeniedBy   Stage     `json:"denied_by,omitempty"`
	DryRun     bool      `json:"dry_run,omitempty"`
	WouldDeny  bool      `json:"would_deny,omitempty"`
}

// KillSwitchState is the read interface C3 uses to consult C4's state. It is
// the first stage of every check and must be O(1).
type KillSwitchState interface {
	GlobalKill() bool
	InstanceState(instanceID string) (paused, terminated bool)
	AssetState(assetID string) (paused, terminated bool)
}

// CustomHook is an additional deny-only check run at the CUSTOM stage.
// Returning deny=true denies the request, with reason as the Decision's
// reason.
type CustomHook func(req Request) (deny bool, reason string)

// CapabilityManifest is the minimal view of identity.CapabilitiesManifest
// the engine needs; kept as its own type so this package has no import-time
// dependency on pkg/identity beyond this shape.
type CapabilityManifest struct {
	AllowedTools   []string
	DeniedTools    []string
	AllowedDomains []string
	DeniedDomains  []string

	MaxCostPerSession int64
	MaxCostPerDay     int64
	MaxCostPerMonth   int64
	MaxCallsPerMinute int64
}

// EventEmitter forwards decision and violation events to C6. Implementations
// must not block the calling goroutine for long; Check's latency budget
// assumes emission is cheap or asynchronous.
type EventEmitter interface {
	EmitDecision(req Request, d Decision)
	EmitViolation(req Request, d Decision)
	EmitBudgetWarning(req Request, windowKind string, usedFraction float64)
}

// NopEmitter discards all events.
type NopEmitter struct{}

func (NopEmitter) EmitDecision(Request, Decision)                        {}
func (NopEmitter) EmitViolation(Request, Decision)                       {}
func (NopEmitter) EmitBudgetWarning(Request, string, float64)             {}
