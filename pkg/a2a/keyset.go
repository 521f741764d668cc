package a2a

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Alg names a supported signing algorithm.
type Alg string

const (
	AlgEd25519 Alg = "EdDSA"
	AlgRSA256  Alg = "RS256"
	AlgHS256   Alg = "HS256"
)

// signingKey is one key's material, tagged with its algorithm.
type signingKey struct {
	alg        Alg
	ed25519Key ed25519.PrivateKey
	rsaKey     *rsa.PrivateKey
	hmacSecret []byte
}

func (k signingKey) method() jwt.SigningMethod {
	switch k.alg {
	case AlgEd25519:
		return jwt.SigningMethodEdDSA
	case AlgRSA256:
		return jwt.SigningMethodRS256
	case AlgHS256:
		return jwt.SigningMethodHS256
	default:
		return nil
	}
}

func (k signingKey) privateMaterial() interface{} {
	switch k.alg {
	case AlgEd25519:
		return k.ed25519Key
	case AlgRSA256:
		return k.rsaKey
	case AlgHS256:
		return k.hmacSecret
	default:
		return nil
	}
}

func (k signingKey) publicMaterial() interface{} {
	switch k.alg {
	case AlgEd25519:
		return k.ed25519Key.Public()
	case AlgRSA256:
		return &k.rsaKey.PublicKey
	case AlgHS256:
		return k.hmacSecret
	default:
		return nil
	}
}

// KeySet manages active signing keys and verification of past keys, with
// rotation that never invalidates tokens signed by a still-retained key
// (spec §5: "key rotation is a single-writer replace").
type KeySet interface {
	Sign(ctx context.Context, claims jwt.Claims) (string, error)
	KeyFunc() jwt.Keyfunc
}

// InMemoryKeySet holds keys in memory, evicting the oldest once more than
// maxKeys accumulate.
type InMemoryKeySet struct {
	mu         sync.RWMutex
	currentKID string
	keys       map[string]signingKey
	order      []string
	maxKeys    int
}

// NewInMemoryKeySet constructs a key set and generates one initial key of
// the given algorithm.
func NewInMemoryKeySet(alg Alg) (*InMemoryKeySet, error) {
	ks := &InMemoryKeySet{keys: make(map[string]signingKey), maxKeys: 10}
	if err := ks.Rotate(alg); err != nil {
		return nil, err
	}
	return ks, nil
}

// Rotate generates a new active signing key of the given algorithm.
func (ks *InMemoryKeySet) Rotate(alg Alg) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	key, err := generateKey(alg)
	if err != nil {
		return err
	}
	kid := fmt.Sprintf("key-%d", time.Now().UnixNano())
	ks.keys[kid] = key
	ks.order = append(ks.order, kid)
	ks.currentKID = kid

	for len(ks.order) > ks.maxKeys {
		evict := ks.order[0]
		ks.order = ks.order[1:]
		delete(ks.keys, evict)
	}
	return nil
}

func generateKey(alg Alg) (signingKey, error) {
	switch alg {
	case AlgEd25519:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return signingKey{}, fmt.Errorf("generate ed25519 key: %w", err)
		}
		return signingKey{alg: alg, ed25519Key: priv}, nil
	case AlgRSA256:
		priv, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return signingKey{}, fmt.Errorf("generate rsa key: %w", err)
		}
		return signingKey{alg: alg, rsaKey: priv}, nil
	case AlgHS256:
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return signingKey{}, fmt.Errorf("generate hmac secret: %w", err)
		}
		return signingKey{alg: alg, hmacSecret: secret}, nil
	default:
		return signingKey{}, fmt.Errorf("unsupported algorithm: %s", alg)
	}
}

// Sign signs claims with the current active key and stamps the token header
// with its kid and typ.
func (ks *InMemoryKeySet) Sign(ctx context.Context, claims jwt.Claims) (string, error) {
	ks.mu.RLock()
	key, ok := ks.keys[ks.currentKID]
	kid := ks.currentKID
	ks.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("no active key")
	}

	token := jwt.NewWithClaims(key.method(), claims)
	token.Header["kid"] = kid
	token.Header["typ"] = TokenType
	return token.SignedString(key.privateMaterial())
}

// KeyFunc returns the jwt.Keyfunc used to resolve a token's verification key
// by its kid header, rejecting any signing method that doesn't match the
// key's own algorithm.
func (ks *InMemoryKeySet) KeyFunc() jwt.Keyfunc {
	return func(token *jwt.Token) (interface{}, error) {
		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("missing kid in header")
		}

		ks.mu.RLock()
		key, exists := ks.keys[kid]
		ks.mu.RUnlock()
		if !exists {
			return nil, fmt.Errorf("key not found: %s", kid)
		}
		if token.Method.Alg() != string(key.alg) {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key.publicMaterial(), nil
	}
}
