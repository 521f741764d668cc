package a2a

import (
	"context"
	"net/http"
	"net/url"
)

// HTTP headers named in spec §6.
const (
	HeaderToken           = "X-AIGOS-Token"
	HeaderProtocolVersion = "X-AIGOS-Protocol-Version"
	HeaderRequestID       = "X-AIGOS-Request-ID"
)

// Handshaker orchestrates inbound and outbound A2A handshakes.
type Handshaker struct {
	manager *Manager
	emitter EventEmitter
}

// NewHandshaker constructs a Handshaker.
func NewHandshaker(manager *Manager, emitter EventEmitter) *Handshaker {
	if emitter == nil {
		emitter = NopEventEmitter{}
	}
	return &Handshaker{manager: manager, emitter: emitter}
}

// InboundResult is the outcome of HandleInbound.
type InboundResult struct {
	Allowed      bool
	ErrorCode    string
	ErrorMessage string
	PeerClaims   *GovernanceClaims
	ResponseToken *GeneratedToken
}

// HandleInbound extracts a token from r, validates it, and applies policy,
// per spec §4.5. self is used to mint the response token when the
// handshake succeeds.
func (h *Handshaker) HandleInbound(ctx context.Context, r *http.Request, policy InboundPolicy, self SourceIdentity, expectedIssuer, expectedAudience string) InboundResult {
	h.emitter.HandshakeStarted(self.InstanceID, DirectionInbound, "")

	tokenString := r.Header.Get(HeaderToken)
	if tokenString == "" {
		if policy.RequireToken {
			h.emitter.HandshakeFailed(self.InstanceID, DirectionInbound, "", "missing token")
			return InboundResult{ErrorCode: ErrMissingClaims.Error(), ErrorMessage: "X-AIGOS-Token header required"}
		}
		if deny, reason := EvaluateInbound(policy, nil); deny {
			h.emitter.PolicyViolated(self.InstanceID, DirectionInbound, "", reason)
			return InboundResult{ErrorCode: ErrPolicyViolation.Error(), ErrorMessage: reason}
		}
		h.emitter.HandshakeCompleted(self.InstanceID, DirectionInbound, "")
		return InboundResult{Allowed: true}
	}

	result := h.manager.Validate(tokenString, expectedIssuer, expectedAudience)
	peer := ""
	if result.Payload != nil {
		peer = result.Payload.Aigos.Identity.InstanceID
	}
	if !result.Valid {
		h.emitter.TokenValidationFailed(self.InstanceID, DirectionInbound, peer, result.ErrorCode)
		h.emitter.HandshakeFailed(self.InstanceID, DirectionInbound, peer, result.ErrorMessage)
		return InboundResult{ErrorCode: result.ErrorCode, ErrorMessage: result.ErrorMessage}
	}
	h.emitter.TokenValidated(self.InstanceID, DirectionInbound, peer)

	h.emitter.PolicyChecked(self.InstanceID, DirectionInbound, peer)
	if deny, reason := EvaluateInbound(policy, result.Payload); deny {
		h.emitter.PolicyViolated(self.InstanceID, DirectionInbound, peer, reason)
		h.emitter.HandshakeFailed(self.InstanceID, DirectionInbound, peer, reason)
		return InboundResult{ErrorCode: ErrPolicyViolation.Error(), ErrorMessage: reason, PeerClaims: result.Payload}
	}

	response, err := h.manager.Generate(ctx, self, peer, 0, ControlSnapshot{State: self.ControlState})
	if err != nil {
		h.emitter.HandshakeFailed(self.InstanceID, DirectionInbound, peer, err.Error())
		return InboundResult{ErrorCode: ErrInvalidClaims.Error(), ErrorMessage: err.Error(), PeerClaims: result.Payload}
	}
	h.emitter.TokenGenerated(self.InstanceID, DirectionInbound, peer)
	h.emitter.HandshakeCompleted(self.InstanceID, DirectionInbound, peer)

	return InboundResult{Allowed: true, PeerClaims: result.Payload, ResponseToken: response}
}

// OutboundResult is the outcome of PrepareOutbound.
type OutboundResult struct {
	Allowed      bool
	ErrorCode    string
	ErrorMessage string
	Headers      map[string]string
	Token        *GeneratedToken
}

// PrepareOutbound pre-flight checks outbound policy against targetURL and,
// if allowed, mints a token audienced to the target domain and the header
// set to attach to the request, per spec §4.5.
func (h *Handshaker) PrepareOutbound(ctx context.Context, targetURL string, policy OutboundPolicy, self SourceIdentity) OutboundResult {
	h.emitter.HandshakeStarted(self.InstanceID, DirectionOutbound, targetURL)

	u, err := url.Parse(targetURL)
	if err != nil {
		h.emitter.HandshakeFailed(self.InstanceID, DirectionOutbound, targetURL, err.Error())
		return OutboundResult{ErrorCode: ErrInvalidFormat.Error(), ErrorMessage: err.Error()}
	}
	domain := u.Hostname()

	h.emitter.PolicyChecked(self.InstanceID, DirectionOutbound, domain)
	if deny, reason := EvaluateOutbound(policy, domain, nil); deny {
		h.emitter.PolicyViolated(self.InstanceID, DirectionOutbound, domain, reason)
		h.emitter.HandshakeFailed(self.InstanceID, DirectionOutbound, domain, reason)
		return OutboundResult{ErrorCode: ErrPolicyViolation.Error(), ErrorMessage: reason}
	}

	if !policy.IncludeToken {
		h.emitter.HandshakeCompleted(self.InstanceID, DirectionOutbound, domain)
		return OutboundResult{Allowed: true, Headers: map[string]string{}}
	}

	token, err := h.manager.Generate(ctx, self, domain, 0, ControlSnapshot{State: self.ControlState})
	if err != nil {
		h.emitter.HandshakeFailed(self.InstanceID, DirectionOutbound, domain, err.Error())
		return OutboundResult{ErrorCode: ErrInvalidClaims.Error(), ErrorMessage: err.Error()}
	}
	h.emitter.TokenGenerated(self.InstanceID, DirectionOutbound, domain)

	headers := map[string]string{
		HeaderToken:           token.Token,
		HeaderProtocolVersion: ProtocolVersion,
		HeaderRequestID:       token.JTI,
	}
	h.emitter.HandshakeCompleted(self.InstanceID, DirectionOutbound, domain)
	return OutboundResult{Allowed: true, Headers: headers, Token: token}
}

// ValidateOutboundResponse validates a peer's response token and runs
// outbound policy against it, per spec §4.5's "on response, if policy says
// so, validate the response token and run outbound policy against it".
func (h *Handshaker) ValidateOutboundResponse(responseToken string, policy OutboundPolicy, targetDomain string, self SourceIdentity) (bool, string) {
	if !policy.ValidateResponseTokens {
		return true, ""
	}
	result := h.manager.Validate(responseToken, "", self.InstanceID)
	peer := ""
	if result.Payload != nil {
		peer = result.Payload.Aigos.Identity.InstanceID
	}
	if !result.Valid {
		h.emitter.TokenValidationFailed(self.InstanceID, DirectionOutbound, peer, result.ErrorCode)
		return false, result.ErrorMessage
	}
	h.emitter.TokenValidated(self.InstanceID, DirectionOutbound, peer)

	if deny, reason := EvaluateOutbound(policy, targetDomain, result.Payload); deny {
		h.emitter.PolicyViolated(self.InstanceID, DirectionOutbound, peer, reason)
		return false, reason
	}
	return true, ""
}
