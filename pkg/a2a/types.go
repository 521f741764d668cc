// Package a2a implements the agent-to-agent governance token subsystem:
// minting, validation, and mutual-handshake orchestration for JWT-shaped
// tokens carrying identity, governance, control, capability and lineage
// claims (spec §4.5).
package a2a

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenType is the JWT `typ` header value every governance token carries.
const TokenType = "AIGOS-GOV+jwt"

// ProtocolVersion is the value of the X-AIGOS-Protocol-Version header.
const ProtocolVersion = "1.0"

// IdentityClaim mirrors the subset of RuntimeIdentity a token attests to.
type IdentityClaim struct {
	InstanceID   string `json:"instance_id"`
	AssetID      string `json:"asset_id"`
	AssetName    string `json:"asset_name"`
	AssetVersion string `json:"asset_version"`
	RiskLevel    string `json:"risk_level"`
	Mode         string `json:"mode"`
}

// GovernanceClaim carries the identity's Golden Thread binding.
type GovernanceClaim struct {
	GoldenThreadHash string `json:"golden_thread_hash"`
	Verified         bool   `json:"verified"`
}

// ControlClaim is a live snapshot of the kill-switch state at mint time.
type ControlClaim struct {
	State string `json:"state"` // ACTIVE | PAUSED | TERMINATED
}

// CapabilitiesClaim carries the capability-hash and the fields a receiving
// party needs to gate a handshake without re-resolving the full manifest.
type CapabilitiesClaim struct {
	Hash             string `json:"hash"`
	MaySpawnChildren bool   `json:"may_spawn_children"`
	MaxChildDepth    int    `json:"max_child_depth"`
}

// LineageClaim carries the minimal spawn-tree position needed by inbound
// policy's generation-depth bounds.
type LineageClaim struct {
	ParentInstanceID string `json:"parent_instance_id,omitempty"`
	RootInstanceID   string `json:"root_instance_id"`
	GenerationDepth  int    `json:"generation_depth"`
}

// AigosClaims is the `aigos` custom claim namespace (spec §3).
type AigosClaims struct {
	Identity     IdentityClaim     `json:"identity"`
	Governance   GovernanceClaim   `json:"governance"`
	Control      ControlClaim      `json:"control"`
	Capabilities CapabilitiesClaim `json:"capabilities"`
	Lineage      LineageClaim      `json:"lineage"`
}

// GovernanceClaims is the full JWT claim set for a governance token.
type GovernanceClaims struct {
	jwt.RegisteredClaims
	Aigos AigosClaims `json:"aigos"`
}

// Direction names which side of a handshake a token or event concerns.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)
