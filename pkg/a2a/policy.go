package a2a

import "strings"

// InboundPolicy gates a token presented by a caller (spec §4.5).
type InboundPolicy struct {
	RequireToken        bool
	MaxRiskLevel        string // compared via riskRank
	RequireKillSwitchOn bool
	RequireGoldenThread bool
	MinGenerationDepth  int
	MaxGenerationDepth  int
	// BlockedOrganizations and TrustedOrganizations are matched against the
	// caller's asset_id claim: the token carries no separate organization
	// claim, so these lists filter by asset id, not by organization.
	BlockedOrganizations []string
	TrustedOrganizations []string // if non-empty, only these are allowed
	BlockedAssets        []string
	AllowedModes         []string
	CustomHooks          []func(claims *GovernanceClaims) (deny bool, reason string)
}

// OutboundPolicy gates a call this agent is about to make to a peer.
type OutboundPolicy struct {
	IncludeToken          bool
	MaxTargetRiskLevel    string
	RequireTargetKillSwitchOn bool
	RequireTargetGoldenThread bool
	BlockedDomains        []string
	AllowedDomains        []string
	BlockedTargetAssets   []string
	ValidateResponseTokens bool
	CustomHooks           []func(claims *GovernanceClaims) (deny bool, reason string)
}

var riskRank = map[string]int{
	"minimal":      0,
	"limited":      1,
	"high":         2,
	"unacceptable": 3,
}

func riskAtMost(level, max string) bool {
	if max == "" {
		return true
	}
	lr, ok1 := riskRank[level]
	mr, ok2 := riskRank[max]
	if !ok1 || !ok2 {
		return false
	}
	return lr <= mr
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// EvaluateInbound applies an InboundPolicy to a validated token's claims,
// returning the first failing check's reason (empty string ⇒ allow).
func EvaluateInbound(p InboundPolicy, claims *GovernanceClaims) (deny bool, reason string) {
	if claims == nil {
		if p.RequireToken {
			return true, "token required but absent"
		}
		return false, ""
	}

	if !riskAtMost(claims.Aigos.Identity.RiskLevel, p.MaxRiskLevel) {
		return true, "caller risk level exceeds policy maximum"
	}
	if p.RequireGoldenThread && !claims.Aigos.Governance.Verified {
		return true, "caller golden thread is not verified"
	}
	if p.RequireKillSwitchOn && claims.Aigos.Control.State != "ACTIVE" {
		return true, "caller is not in an active kill-switch state"
	}
	depth := claims.Aigos.Lineage.GenerationDepth
	if p.MinGenerationDepth > 0 && depth < p.MinGenerationDepth {
		return true, "caller generation depth below policy minimum"
	}
	if p.MaxGenerationDepth > 0 && depth > p.MaxGenerationDepth {
		return true, "caller generation depth above policy maximum"
	}
	org := claims.Aigos.Identity.AssetID
	if len(p.TrustedOrganizations) > 0 && !contains(p.TrustedOrganizations, org) {
		return true, "caller organization is not in the trusted list"
	}
	if contains(p.BlockedOrganizations, org) {
		return true, "caller organization is blocked"
	}
	if contains(p.BlockedAssets, claims.Aigos.Identity.AssetID) {
		return true, "caller asset is blocked"
	}
	if len(p.AllowedModes) > 0 && !contains(p.AllowedModes, claims.Aigos.Identity.Mode) {
		return true, "caller mode is not allowed"
	}
	for _, hook := range p.CustomHooks {
		if d, r := hook(claims); d {
			return true, r
		}
	}
	return false, ""
}

// EvaluateOutbound applies an OutboundPolicy to a prospective call, using
// targetDomain and, once available, the peer's response token claims
// (nil before the call is made).
func EvaluateOutbound(p OutboundPolicy, targetDomain string, peer *GovernanceClaims) (deny bool, reason string) {
	if contains(p.BlockedDomains, targetDomain) {
		return true, "target domain is blocked"
	}
	if len(p.AllowedDomains) > 0 {
		matched := false
		for _, d := range p.AllowedDomains {
			if d == targetDomain || (strings.HasPrefix(d, "*.") && strings.HasSuffix(targetDomain, d[1:])) {
				matched = true
				break
			}
		}
		if !matched {
			return true, "target domain is not in the allowed list"
		}
	}
	if peer == nil {
		return false, ""
	}
	if !riskAtMost(peer.Aigos.Identity.RiskLevel, p.MaxTargetRiskLevel) {
		return true, "target risk level exceeds policy maximum"
	}
	if p.RequireTargetGoldenThread && !peer.Aigos.Governance.Verified {
		return true, "target golden thread is not verified"
	}
	if p.RequireTargetKillSwitchOn && peer.Aigos.Control.State != "ACTIVE" {
		return true, "target is not in an active kill-switch state"
	}
	if contains(p.BlockedTargetAssets, peer.Aigos.Identity.AssetID) {
		return true, "target asset is blocked"
	}
	for _, hook := range p.CustomHooks {
		if d, r := hook(peer); d {
			return true, r
		}
	}
	return false, ""
}
