package capability

import (
	"time"

	"github.com/google/uuid"

	"github.com/aigos/governor/pkg/identity"
)

// decayFactor is applied to every numeric cap on a decay-mode spawn.
const decayFactor = 0.8

// SpawnRequest bundles a spawn request's inputs. ExplicitManifest is
// required (and only consulted) when the parent's capability_mode is
// "explicit".
type SpawnRequest struct {
	Parent           *identity.RuntimeIdentity
	ExplicitManifest *identity.CapabilitiesManifest
}

// Spawn computes a child RuntimeIdentity from a parent under the parent's
// configured capability_mode, per spec §4.2.
//
// Invariant: generation_depth + 1 ≤ parent.max_child_depth, else
// DEPTH_EXCEEDED.
func Spawn(req SpawnRequest) (*identity.RuntimeIdentity, error) {
	parent := req.Parent
	parentManifest := parent.CapabilitiesManifest
	childDepth := parent.Lineage.GenerationDepth + 1

	if childDepth > parentManifest.MaxChildDepth {
		return nil, ErrDepthExceeded
	}
	if !parentManifest.MaySpawnChildren {
		return nil, ErrDepthExceeded
	}

	var childManifest identity.CapabilitiesManifest
	switch parentManifest.CapabilityMode {
	case identity.CapabilityInherit, "":
		childManifest = inherit(parentManifest)
	case identity.CapabilityDecay:
		childManifest = decay(parentManifest, childDepth)
	case identity.CapabilityExplicit:
		if req.ExplicitManifest == nil {
			return nil, &SubsumptionError{Field: "capabilities_manifest", Msg: "required in explicit mode"}
		}
		m, err := explicit(parentManifest, *req.ExplicitManifest)
		if err != nil {
			return nil, err
		}
		childManifest = m
	default:
		return nil, &SubsumptionError{Field: "capability_mode", Msg: "unrecognized mode"}
	}

	now := time.Now().UTC()
	instanceID := uuid.NewString()

	ancestorChain := make([]string, 0, len(parent.Lineage.AncestorChain)+1)
	ancestorChain = append(ancestorChain, parent.Lineage.AncestorChain...)
	ancestorChain = append(ancestorChain, parent.InstanceID)

	parentID := parent.InstanceID

	child := *parent
	child.InstanceID = instanceID
	child.CapabilitiesManifest = childManifest
	child.Lineage = identity.Lineage{
		ParentInstanceID: &parentID,
		RootInstanceID:   parent.Lineage.RootInstanceID,
		AncestorChain:    ancestorChain,
		GenerationDepth:  childDepth,
		SpawnedAt:        now,
	}
	child.CreatedAt = now
	return &child, nil
}

// inherit implements capability_mode=inherit: the child manifest is
// identical to the parent's except lineage fields, which Spawn sets.
func inherit(parent identity.CapabilitiesManifest) identity.CapabilitiesManifest {
	return parent
}

// decay implements capability_mode=decay: tool/domain sets are preserved,
// numeric caps shrink by decayFactor (rounded down), and may_spawn_children
// is recomputed from the remaining depth budget.
func decay(parent identity.CapabilitiesManifest, childDepth int) identity.CapabilitiesManifest {
	child := parent
	child.MaxCostPerSession = decayInt(parent.MaxCostPerSession)
	child.MaxCostPerDay = decayInt(parent.MaxCostPerDay)
	child.MaxTokensPerCall = decayInt(parent.MaxTokensPerCall)
	child.MaySpawnChildren = parent.MaxChildDepth > childDepth+1
	return child
}

func decayInt(n int64) int64 {
	return int64(float64(n) * decayFactor)
}

// explicit implements capability_mode=explicit: the caller's manifest is
// used verbatim, rejected if any field exceeds the parent equivalent.
func explicit(parent, requested identity.CapabilitiesManifest) (identity.CapabilitiesManifest, error) {
	if !isSubsetOf(requested.AllowedTools, parent.AllowedTools) {
		return identity.CapabilitiesManifest{}, &SubsumptionError{Field: "allowed_tools", Msg: "must not exceed parent's allowed tool set"}
	}
	if !isSubsetOf(requested.AllowedDomains, parent.AllowedDomains) {
		return identity.CapabilitiesManifest{}, &SubsumptionError{Field: "allowed_domains", Msg: "must not exceed parent's allowed domain set"}
	}
	if requested.MaxCostPerSession > parent.MaxCostPerSession {
		return identity.CapabilitiesManifest{}, &SubsumptionError{Field: "max_cost_per_session", Msg: "must not exceed parent's cap"}
	}
	if requested.MaxCostPerDay > parent.MaxCostPerDay {
		return identity.CapabilitiesManifest{}, &SubsumptionError{Field: "max_cost_per_day", Msg: "must not exceed parent's cap"}
	}
	if requested.MaxTokensPerCall > parent.MaxTokensPerCall {
		return identity.CapabilitiesManifest{}, &SubsumptionError{Field: "max_tokens_per_call", Msg: "must not exceed parent's cap"}
	}
	if requested.MaxChildDepth > parent.MaxChildDepth {
		return identity.CapabilitiesManifest{}, &SubsumptionError{Field: "max_child_depth", Msg: "must not exceed parent's depth"}
	}
	if requested.MaySpawnChildren && !parent.MaySpawnChildren {
		return identity.CapabilitiesManifest{}, &SubsumptionError{Field: "may_spawn_children", Msg: "parent forbids spawning"}
	}
	return requested, nil
}

// isSubsetOf reports whether every pattern in child is covered by some
// pattern in parent, using tool-pattern equivalence. A "*" parent pattern
// covers anything. An empty child set is always a subset.
func isSubsetOf(child, parent []string) bool {
	if len(child) == 0 {
		return true
	}
	for _, p := range parent {
		if p == "*" {
			return true
		}
	}
	for _, c := range child {
		covered := false
		for _, p := range parent {
			if p == c || MatchTool(p, c) {
				covered = true
				break
			}
		}
		if !covered {
			return false
		}
	}
	return true
}
