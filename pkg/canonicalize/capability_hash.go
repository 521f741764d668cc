package canonicalize

import (
	"encoding/json"
	"sort"
)

// capabilityHashForm mirrors spec §4.5's pinned field order for the A2A
// capability-hash claim. String slices are sorted by the caller's input but
// re-sorted here defensively so CapabilityHash is order-independent in its
// inputs.
type capabilityHashForm struct {
	AllowedTools    []string `json:"allowed_tools"`
	DeniedTools     []string `json:"denied_tools"`
	AllowedDomains  []string `json:"allowed_domains"`
	DeniedDomains   []string `json:"denied_domains"`
	MaxCostSession  int64    `json:"max_cost_per_session"`
	MaxCostDay      int64    `json:"max_cost_per_day"`
	MaySpawnChild   bool     `json:"may_spawn_children"`
	MaxChildDepth   int      `json:"max_child_depth"`
}

// CapabilityHashInput is the set of manifest fields the A2A capability-hash
// claim is computed over.
type CapabilityHashInput struct {
	AllowedTools    []string
	DeniedTools     []string
	AllowedDomains  []string
	DeniedDomains   []string
	MaxCostSession  int64
	MaxCostDay      int64
	MaySpawnChild   bool
	MaxChildDepth   int
}

func sortedCopy(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	sort.Strings(out)
	return out
}

// CapabilityHash returns `sha256:<hex>` over the fixed-order canonical form
// specified in spec §4.5.
func CapabilityHash(in CapabilityHashInput) (string, error) {
	form := capabilityHashForm{
		AllowedTools:   sortedCopy(in.AllowedTools),
		DeniedTools:    sortedCopy(in.DeniedTools),
		AllowedDomains: sortedCopy(in.AllowedDomains),
		DeniedDomains:  sortedCopy(in.DeniedDomains),
		MaxCostSession: in.MaxCostSession,
		MaxCostDay:     in.MaxCostDay,
		MaySpawnChild:  in.MaySpawnChild,
		MaxChildDepth:  in.MaxChildDepth,
	}
	b, err := json.Marshal(form)
	if err != nil {
		return "", err
	}
	return "sha256:" + HashBytes(b), nil
}
