package shared

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientFromRequestPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/dashboard", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.2")
	req.Header.Set("User-Agent", "probe/1.0")

	info := ClientFromRequest(req)
	assert.Equal(t, "203.0.113.9", info.IPAddress)
	assert.Equal(t, "probe/1.0", info.UserAgent)
}

func TestClientFromRequestFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.4:8080"
	assert.Equal(t, "192.0.2.4", ClientFromRequest(req).IPAddress)
}

func TestCSRFTokenBoundToSession(t *testing.T) {
	m := NewCSRFManager("secret")
	token := m.Token("jti-1")

	assert.NoError(t, m.VerifyToken("jti-1", token))
	assert.ErrorIs(t, m.VerifyToken("jti-2", token), ErrCSRFTokenMismatch)
	assert.ErrorIs(t, m.VerifyToken("jti-1", ""), ErrCSRFTokenMissing)
}

func TestCoreScopesUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, p := range CoreScopes() {
		assert.False(t, seen[p], p)
		seen[p] = true
	}
	assert.Len(t, seen, 24)
}
