package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashedTokenAuthenticator_AcceptsMatchingToken(t *testing.T) {
	hash, err := HashToken("super-secret")
	require.NoError(t, err)

	auth := NewHashedTokenAuthenticator()
	auth.AddHash(hash, "org-1")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer super-secret")

	orgID, ok := auth.Authenticate(req)
	require.True(t, ok)
	require.Equal(t, "org-1", orgID)
}

func TestHashedTokenAuthenticator_RejectsWrongToken(t *testing.T) {
	hash, err := HashToken("super-secret")
	require.NoError(t, err)

	auth := NewHashedTokenAuthenticator()
	auth.AddHash(hash, "org-1")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")

	_, ok := auth.Authenticate(req)
	require.False(t, ok)
}

func TestHashedTokenAuthenticator_RejectsMissingHeader(t *testing.T) {
	auth := NewHashedTokenAuthenticator()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	_, ok := auth.Authenticate(req)
	require.False(t, ok)
}
