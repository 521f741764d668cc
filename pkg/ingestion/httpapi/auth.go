package httpapi

import (
	"net/http"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// StaticTokenAuthenticator resolves a bearer credential to an orgId from a
// fixed token→org map, grounded on the teacher's pkg/auth Principal lookup
// shape, simplified to what C6 needs: a credential resolving to an orgId
// (spec §4.6), not a full principal/role model.
type StaticTokenAuthenticator struct {
	mu     sync.RWMutex
	tokens map[string]string // bearer token -> orgId
}

// NewStaticTokenAuthenticator constructs an authenticator over tokens.
func NewStaticTokenAuthenticator(tokens map[string]string) *StaticTokenAuthenticator {
	copied := make(map[string]string, len(tokens))
	for k, v := range tokens {
		copied[k] = v
	}
	return &StaticTokenAuthenticator{tokens: copied}
}

// Authenticate implements Authenticator.
func (a *StaticTokenAuthenticator) Authenticate(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	orgID, ok := a.tokens[token]
	return orgID, ok
}

// SetToken registers or updates a token->orgId binding (supports
// operator-driven hot-reload of credentials).
func (a *StaticTokenAuthenticator) SetToken(token, orgID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tokens[token] = orgID
}

// hashedCredential pairs a bcrypt hash with the orgId it resolves to.
type hashedCredential struct {
	hash  []byte
	orgID string
}

// HashedTokenAuthenticator resolves a bearer credential to an orgId by
// comparing it against bcrypt hashes rather than holding raw tokens in
// memory, grounded on the teacher's internal/auth/login.go
// bcrypt.CompareHashAndPassword check against a stored password hash,
// generalized from "compare a login password" to "compare a bearer
// credential" against an operator-configured hash.
type HashedTokenAuthenticator struct {
	mu    sync.RWMutex
	creds []hashedCredential
}

// NewHashedTokenAuthenticator constructs an authenticator over bcrypt
// hashes, each produced by HashToken and bound to the orgId it authorizes.
func NewHashedTokenAuthenticator() *HashedTokenAuthenticator {
	return &HashedTokenAuthenticator{}
}

// HashToken bcrypt-hashes a raw token for storage/configuration, at the
// package default cost.
func HashToken(token string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// AddHash registers a bcrypt hash (as produced by HashToken) bound to orgID.
func (a *HashedTokenAuthenticator) AddHash(hash, orgID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.creds = append(a.creds, hashedCredential{hash: []byte(hash), orgID: orgID})
}

// Authenticate implements Authenticator, checking the bearer token against
// every registered hash. Bcrypt comparison is constant-time per hash, so
// this scales linearly with the number of distinct credentials configured,
// not usefully improvable without changing the credential model (spec §6
// names static bearer tokens, not a keyed lookup scheme).
func (a *HashedTokenAuthenticator) Authenticate(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, c := range a.creds {
		if bcrypt.CompareHashAndPassword(c.hash, []byte(token)) == nil {
			return c.orgID, true
		}
	}
	return "", false
}
