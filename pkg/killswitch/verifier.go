package killswitch

import (
	"crypto"
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// TrustedKey is one key this receiver will accept signatures from.
type TrustedKey struct {
	Kid string
	Alg string // "Ed25519" | "RSA-SHA256" | "HS256"

	Ed25519Public ed25519.PublicKey
	RSAPublic     *rsa.PublicKey
	HMACSecret    []byte
}

// KeyStore resolves a kid to a trusted key.
type KeyStore interface {
	Lookup(kid string) (TrustedKey, bool)
}

// StaticKeyStore is an in-memory KeyStore loaded once at startup. Its key
// set is fixed at construction: the type has no method to replace or reload
// keys.
type StaticKeyStore struct {
	keys map[string]TrustedKey
}

// NewStaticKeyStore builds a KeyStore from a slice of trusted keys.
func NewStaticKeyStore(keys []TrustedKey) *StaticKeyStore {
	s := &StaticKeyStore{keys: make(map[string]TrustedKey, len(keys))}
	for _, k := range keys {
		s.keys[k.Kid] = k
	}
	return s
}

func (s *StaticKeyStore) Lookup(kid string) (TrustedKey, bool) {
	k, ok := s.keys[kid]
	return k, ok
}

// SigningBytes returns the canonical byte string a command's signature
// covers: the command's JSON form with the signature field blanked.
func SigningBytes(cmd Command) ([]byte, error) {
	unsigned := cmd
	unsigned.Signature = ""
	return json.Marshal(unsigned)
}

// VerifySignature checks cmd.Signature against the key identified by
// cmd.Kid, per spec §4.4 step 3. Accepted algorithms: Ed25519, RSA-SHA256,
// HS256.
func VerifySignature(store KeyStore, cmd Command) error {
	key, ok := store.Lookup(cmd.Kid)
	if !ok {
		return &ValidationError{Code: ErrKeyNotFound, Msg: fmt.Sprintf("no trusted key for kid %q", cmd.Kid)}
	}
	if key.Alg != cmd.Alg {
		return &ValidationError{Code: ErrBadSignature, Msg: "alg does not match trusted key's algorithm"}
	}

	msg, err := SigningBytes(cmd)
	if err != nil {
		return &ValidationError{Code: ErrBadSchema, Msg: err.Error()}
	}

	sig, err := base64.RawURLEncoding.DecodeString(cmd.Signature)
	if err != nil {
		// Accept standard base64 too, for interop with non-URL-safe signers.
		sig, err = base64.StdEncoding.DecodeString(cmd.Signature)
		if err != nil {
			return &ValidationError{Code: ErrBadSignature, Msg: "signature is not valid base64"}
		}
	}

	switch cmd.Alg {
	case "Ed25519":
		if key.Ed25519Public == nil {
			return &ValidationError{Code: ErrKeyNotFound, Msg: "no Ed25519 public key for kid"}
		}
		if !ed25519.Verify(key.Ed25519Public, msg, sig) {
			return &ValidationError{Code: ErrBadSignature, Msg: "Ed25519 verification failed"}
		}
	case "RSA-SHA256":
		if key.RSAPublic == nil {
			return &ValidationError{Code: ErrKeyNotFound, Msg: "no RSA public key for kid"}
		}
		digest := sha256.Sum256(msg)
		if err := rsa.VerifyPKCS1v15(key.RSAPublic, crypto.SHA256, digest[:], sig); err != nil {
			return &ValidationError{Code: ErrBadSignature, Msg: "RSA-SHA256 verification failed"}
		}
	case "HS256":
		if len(key.HMACSecret) == 0 {
			return &ValidationError{Code: ErrKeyNotFound, Msg: "no HMAC secret for kid"}
		}
		mac := hmac.New(sha256.New, key.HMACSecret)
		mac.Write(msg)
		expected := mac.Sum(nil)
		if !hmac.Equal(expected, sig) {
			return &ValidationError{Code: ErrBadSignature, Msg: "HS256 verification failed"}
		}
	default:
		return &ValidationError{Code: ErrBadSignature, Msg: "unsupported algorithm: " + cmd.Alg}
	}
	return nil
}

// SignHS256 is a convenience signer for tests and single-node deployments
// using a shared secret.
func SignHS256(secret []byte, cmd Command) (string, error) {
	cmd.Signature = ""
	msg, err := json.Marshal(cmd)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(msg)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}
