// Package identity mints and verifies RuntimeIdentity records: the durable
// binding between a running agent instance and the Golden Thread approval
// record that authorized it (spec §3, §4.1).
package identity

import "time"

// RiskLevel classifies the regulatory risk tier of an agent, per spec §3.
type RiskLevel string

const (
	RiskMinimal     RiskLevel = "minimal"
	RiskLimited     RiskLevel = "limited"
	RiskHigh        RiskLevel = "high"
	RiskUnacceptable RiskLevel = "unacceptable"
)

// riskRank orders risk levels for AtMost's "at most" comparison
// (risk_level ≤ max). pkg/a2a's inbound/outbound policy keeps its own
// string-keyed ranking and does not call AtMost.
var riskRank = map[RiskLevel]int{
	RiskMinimal:      0,
	RiskLimited:      1,
	RiskHigh:         2,
	RiskUnacceptable: 3,
}

// AtMost reports whether r is no riskier than max.
func (r RiskLevel) AtMost(max RiskLevel) bool {
	rr, ok1 := riskRank[r]
	mr, ok2 := riskRank[max]
	if !ok1 || !ok2 {
		return false
	}
	return rr <= mr
}

// Mode is the operating mode of an agent instance.
type Mode string

const (
	ModeNormal     Mode = "NORMAL"
	ModeSandbox    Mode = "SANDBOX"
	ModeRestricted Mode = "RESTRICTED"
)

// GoldenThread is the approval record binding an agent instance to the
// business authorization that created it.
type GoldenThread struct {
	TicketID   string `json:"ticket_id"`
	ApprovedBy string `json:"approved_by"` // email
	ApprovedAt string `json:"approved_at"` // ISO-8601

	Hash      string `json:"hash,omitempty"`      // sha256:<64 hex>, set by Create
	Signature string `json:"signature,omitempty"` // optional detached signature over Hash
}

// CapabilityMode selects how a child's manifest is derived from its parent's
// on spawn (spec §4.2).
type CapabilityMode string

const (
	CapabilityDecay    CapabilityMode = "decay"
	CapabilityInherit  CapabilityMode = "inherit"
	CapabilityExplicit CapabilityMode = "explicit"
)

// CapabilitiesManifest is the vector of permissions attached to an agent
// instance.
type CapabilitiesManifest struct {
	AllowedTools   []string `json:"allowed_tools"`
	DeniedTools    []string `json:"denied_tools"`
	AllowedDomains []string `json:"allowed_domains"`
	DeniedDomains  []string `json:"denied_domains"`

	MaySpawnChildren bool           `json:"may_spawn_children"`
	MaxChildDepth    int            `json:"max_child_depth"`
	CapabilityMode   CapabilityMode `json:"capability_mode"`

	MaxCostPerSession int64 `json:"max_cost_per_session"`
	MaxCostPerDay     int64 `json:"max_cost_per_day"`
	MaxTokensPerCall  int64 `json:"max_tokens_per_call"`
}

// Lineage records an instance's place in a spawn tree.
type Lineage struct {
	ParentInstanceID *string   `json:"parent_instance_id,omitempty"`
	RootInstanceID   string    `json:"root_instance_id"`
	AncestorChain    []string  `json:"ancestor_chain"`
	GenerationDepth  int       `json:"generation_depth"`
	SpawnedAt        time.Time `json:"spawned_at"`
}

// RuntimeIdentity is the durable identity of one live agent instance.
type RuntimeIdentity struct {
	InstanceID   string `json:"instance_id"`
	AssetID      string `json:"asset_id"`
	AssetName    string `json:"asset_name"`
	AssetVersion string `json:"asset_version"`

	RiskLevel RiskLevel `json:"risk_level"`
	Mode      Mode      `json:"mode"`

	GoldenThread     GoldenThread `json:"golden_thread"`
	GoldenThreadHash string       `json:"golden_thread_hash"`
	Verified         bool         `json:"verified"`

	CapabilitiesManifest CapabilitiesManifest `json:"capabilities_manifest"`
	Lineage              Lineage              `json:"lineage"`

	// Labels are free-form operator tags. Policy never reads them (SPEC_FULL.md §3.1).
	Labels map[string]string `json:"labels,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// AssetRecord is the input business record an identity is minted from.
type AssetRecord struct {
	AssetID      string
	AssetName    string
	AssetVersion string
	RiskLevel    RiskLevel

	GoldenThread *GoldenThread // nil ⇒ INVALID_ASSET
}

// Overrides lets a caller request non-default capabilities at creation time.
// Every field is optional; unset fields fall back to risk-level defaults.
type Overrides struct {
	Mode                 Mode
	CapabilitiesManifest *CapabilitiesManifest
	Labels               map[string]string
}
