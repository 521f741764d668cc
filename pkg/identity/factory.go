package identity

import (
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/aigos/governor/pkg/canonicalize"
)

// defaultManifestFor returns the risk-tier default capability manifest used
// when the caller supplies no override (spec §3: every risk level has a
// conservative default vector; "unacceptable" assets never mint).
func defaultManifestFor(risk RiskLevel) CapabilitiesManifest {
	switch risk {
	case RiskMinimal:
		return CapabilitiesManifest{
			MaySpawnChildren: true,
			MaxChildDepth:    3,
			CapabilityMode:   CapabilityInherit,
			MaxCostPerSession: 10_00,
			MaxCostPerDay:     100_00,
			MaxTokensPerCall:  1_000_000,
		}
	case RiskLimited:
		return CapabilitiesManifest{
			MaySpawnChildren: true,
			MaxChildDepth:    2,
			CapabilityMode:   CapabilityDecay,
			MaxCostPerSession: 5_00,
			MaxCostPerDay:     25_00,
			MaxTokensPerCall:  500_000,
		}
	case RiskHigh:
		return CapabilitiesManifest{
			MaySpawnChildren: false,
			MaxChildDepth:    0,
			CapabilityMode:   CapabilityDecay,
			MaxCostPerSession: 1_00,
			MaxCostPerDay:     5_00,
			MaxTokensPerCall:  100_000,
		}
	default: // RiskUnacceptable falls through to caller-enforced rejection.
		return CapabilitiesManifest{}
	}
}

// Create mints a RuntimeIdentity for a fresh, root agent instance from an
// approved asset record, per spec §4.1.
//
// Invariant: parent_instance_id == nil ⇒ generation_depth == 0 and
// root_instance_id == instance_id.
func Create(asset AssetRecord, overrides Overrides) (*RuntimeIdentity, error) {
	if asset.AssetID == "" {
		return nil, invalidAsset("asset_id", "required")
	}
	if asset.AssetName == "" {
		return nil, invalidAsset("asset_name", "required")
	}
	if asset.AssetVersion == "" {
		return nil, invalidAsset("asset_version", "required")
	}
	if _, err := semver.NewVersion(asset.AssetVersion); err != nil {
		return nil, invalidAsset("asset_version", "not a valid semantic version: "+err.Error())
	}
	if asset.RiskLevel == "" {
		return nil, invalidAsset("risk_level", "required")
	}
	if _, known := riskRank[asset.RiskLevel]; !known {
		return nil, invalidAsset("risk_level", "unrecognized risk level")
	}
	if asset.RiskLevel == RiskUnacceptable {
		return nil, invalidAsset("risk_level", "unacceptable-risk assets may not be minted")
	}
	if asset.GoldenThread == nil {
		return nil, invalidAsset("golden_thread", "required")
	}
	gt := *asset.GoldenThread
	if gt.TicketID == "" {
		return nil, invalidAsset("golden_thread.ticket_id", "required")
	}
	if gt.ApprovedBy == "" {
		return nil, invalidAsset("golden_thread.approved_by", "required")
	}
	if gt.ApprovedAt == "" {
		return nil, invalidAsset("golden_thread.approved_at", "required")
	}
	if _, err := time.Parse(time.RFC3339, gt.ApprovedAt); err != nil {
		return nil, invalidAsset("golden_thread.approved_at", "must be ISO-8601/RFC3339")
	}

	manifest := defaultManifestFor(asset.RiskLevel)
	if overrides.CapabilitiesManifest != nil {
		manifest = *overrides.CapabilitiesManifest
	}
	if err := validateManifest(manifest); err != nil {
		return nil, err
	}

	mode := overrides.Mode
	if mode == "" {
		mode = ModeNormal
	}

	hash, err := canonicalize.GoldenThreadHash(gt.TicketID, gt.ApprovedBy, gt.ApprovedAt)
	if err != nil {
		return nil, err
	}
	gt.Hash = hash

	instanceID := uuid.NewString()
	now := time.Now().UTC()

	return &RuntimeIdentity{
		InstanceID:           instanceID,
		AssetID:              asset.AssetID,
		AssetName:            asset.AssetName,
		AssetVersion:         asset.AssetVersion,
		RiskLevel:            asset.RiskLevel,
		Mode:                 mode,
		GoldenThread:         gt,
		GoldenThreadHash:     hash,
		Verified:             true,
		CapabilitiesManifest: manifest,
		Lineage: Lineage{
			ParentInstanceID: nil,
			RootInstanceID:   instanceID,
			AncestorChain:    nil,
			GenerationDepth:  0,
			SpawnedAt:        now,
		},
		Labels:    overrides.Labels,
		CreatedAt: now,
	}, nil
}

// validateManifest enforces §3's structural constraints on a capabilities
// manifest: depth bounds are non-negative, and a manifest that forbids
// spawning must not claim a nonzero depth budget.
func validateManifest(m CapabilitiesManifest) error {
	if m.MaxChildDepth < 0 {
		return invalidCapability("max_child_depth", "must be >= 0")
	}
	if !m.MaySpawnChildren && m.MaxChildDepth != 0 {
		return invalidCapability("max_child_depth", "must be 0 when may_spawn_children is false")
	}
	if m.MaxCostPerSession < 0 || m.MaxCostPerDay < 0 || m.MaxTokensPerCall < 0 {
		return invalidCapability("budget", "budget fields must be >= 0")
	}
	if m.MaxCostPerSession > 0 && m.MaxCostPerDay > 0 && m.MaxCostPerSession > m.MaxCostPerDay {
		return invalidCapability("max_cost_per_session", "must not exceed max_cost_per_day")
	}
	switch m.CapabilityMode {
	case CapabilityDecay, CapabilityInherit, CapabilityExplicit, "":
	default:
		return invalidCapability("capability_mode", "unrecognized mode")
	}
	return nil
}
