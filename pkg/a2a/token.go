package a2a

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/aigos/governor/pkg/canonicalize"
)

// defaultTTL is the token lifetime used when the caller specifies none
// (spec §3: "TTL default 300 s").
const defaultTTL = 300 * time.Second

// ControlSnapshot is the live kill-switch view folded into a minted token's
// control claim.
type ControlSnapshot struct {
	State string // ACTIVE | PAUSED | TERMINATED
}

// SourceIdentity is the minimal view of a RuntimeIdentity Generate needs.
// Kept as its own shape so this package has no import-time dependency on
// pkg/identity.
type SourceIdentity struct {
	InstanceID       string
	AssetID          string
	AssetName        string
	AssetVersion     string
	RiskLevel        string
	Mode             string
	GoldenThreadHash string
	Verified         bool
	ControlState     string // ACTIVE | PAUSED | TERMINATED, read from live kill-switch state
	ParentInstanceID string
	RootInstanceID   string
	GenerationDepth  int

	CapabilityHashInput canonicalize.CapabilityHashInput
	MaySpawnChildren    bool
	MaxChildDepth       int
}

// GeneratedToken is the result of Generate.
type GeneratedToken struct {
	Token   string
	Payload GovernanceClaims
	JTI     string
	IAT     time.Time
	EXP     time.Time
}

// Manager mints and validates governance tokens.
type Manager struct {
	keys            KeySet
	issuer          string
	clockTolerance  time.Duration
}

// NewManager constructs a token Manager.
func NewManager(keys KeySet, issuer string, clockTolerance time.Duration) *Manager {
	if clockTolerance <= 0 {
		clockTolerance = 60 * time.Second
	}
	return &Manager{keys: keys, issuer: issuer, clockTolerance: clockTolerance}
}

// Generate mints a governance token for identity, targeted at audience, per
// spec §4.5. A zero ttl uses the 300s default.
func (m *Manager) Generate(ctx context.Context, identity SourceIdentity, audience string, ttl time.Duration, control ControlSnapshot) (*GeneratedToken, error) {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	now := time.Now().UTC()
	jti := uuid.NewString()

	capHash, err := canonicalize.CapabilityHash(identity.CapabilityHashInput)
	if err != nil {
		return nil, err
	}

	claims := GovernanceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   identity.InstanceID,
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        jti,
		},
		Aigos: AigosClaims{
			Identity: IdentityClaim{
				InstanceID:   identity.InstanceID,
				AssetID:      identity.AssetID,
				AssetName:    identity.AssetName,
				AssetVersion: identity.AssetVersion,
				RiskLevel:    identity.RiskLevel,
				Mode:         identity.Mode,
			},
			Governance: GovernanceClaim{
				GoldenThreadHash: identity.GoldenThreadHash,
				Verified:         identity.Verified,
			},
			Control: ControlClaim{State: control.State},
			Capabilities: CapabilitiesClaim{
				Hash:             capHash,
				MaySpawnChildren: identity.MaySpawnChildren,
				MaxChildDepth:    identity.MaxChildDepth,
			},
			Lineage: LineageClaim{
				ParentInstanceID: identity.ParentInstanceID,
				RootInstanceID:   identity.RootInstanceID,
				GenerationDepth:  identity.GenerationDepth,
			},
		},
	}

	signed, err := m.keys.Sign(ctx, claims)
	if err != nil {
		return nil, err
	}

	return &GeneratedToken{
		Token:   signed,
		Payload: claims,
		JTI:     jti,
		IAT:     now,
		EXP:     now.Add(ttl),
	}, nil
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Valid        bool
	Payload      *GovernanceClaims
	ErrorCode    string
	ErrorMessage string
}

// Validate verifies a token's signature, standard claims, and AIGOS claims,
// per spec §4.5. expectedAudience and expectedIssuer, if non-empty, are
// checked against the token's aud/iss.
func (m *Manager) Validate(tokenString, expectedIssuer, expectedAudience string) ValidationResult {
	parser := jwt.NewParser(jwt.WithLeeway(m.clockTolerance))
	token, err := parser.ParseWithClaims(tokenString, &GovernanceClaims{}, m.keys.KeyFunc())

	if err != nil {
		return classifyParseError(err)
	}

	claims, ok := token.Claims.(*GovernanceClaims)
	if !ok || !token.Valid {
		return ValidationResult{ErrorCode: ErrInvalidClaims.Error(), ErrorMessage: "claims could not be parsed"}
	}

	if token.Header["typ"] != TokenType {
		return ValidationResult{ErrorCode: ErrInvalidFormat.Error(), ErrorMessage: "unexpected typ header"}
	}

	if expectedIssuer != "" && claims.Issuer != expectedIssuer {
		return ValidationResult{ErrorCode: ErrInvalidIssuer.Error(), ErrorMessage: "issuer does not match"}
	}
	if expectedAudience != "" {
		matched := false
		for _, a := range claims.Audience {
			if a == expectedAudience {
				matched = true
				break
			}
		}
		if !matched {
			return ValidationResult{ErrorCode: ErrInvalidAudience.Error(), ErrorMessage: "audience does not match"}
		}
	}

	if claims.Aigos.Identity.InstanceID == "" || claims.Aigos.Governance.GoldenThreadHash == "" {
		return ValidationResult{ErrorCode: ErrMissingClaims.Error(), ErrorMessage: "aigos claims incomplete"}
	}

	switch claims.Aigos.Control.State {
	case "TERMINATED":
		return ValidationResult{ErrorCode: ErrTerminationPending.Error(), ErrorMessage: "subject has been terminated"}
	case "PAUSED":
		return ValidationResult{ErrorCode: ErrPausedAgent.Error(), ErrorMessage: "subject is paused"}
	}

	return ValidationResult{Valid: true, Payload: claims}
}

func classifyParseError(err error) ValidationResult {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ValidationResult{ErrorCode: ErrExpired.Error(), ErrorMessage: err.Error()}
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ValidationResult{ErrorCode: ErrNotYetValid.Error(), ErrorMessage: err.Error()}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ValidationResult{ErrorCode: ErrInvalidSignature.Error(), ErrorMessage: err.Error()}
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ValidationResult{ErrorCode: ErrInvalidFormat.Error(), ErrorMessage: err.Error()}
	default:
		if strings.Contains(err.Error(), "key not found") {
			return ValidationResult{ErrorCode: ErrKeyNotFound.Error(), ErrorMessage: err.Error()}
		}
		return ValidationResult{ErrorCode: ErrInvalidClaims.Error(), ErrorMessage: err.Error()}
	}
}
