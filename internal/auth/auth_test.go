package auth_test

import (
	"net/http"
	"testing"
	"time"

	"anonchat/internal/auth"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte(testSecret))
	assert.NoError(t, err)
	return s
}

func TestVerify_ValidToken_ResolvesUserID(t *testing.T) {
	tok := signToken(t, jwt.MapClaims{"anon_id": "user-1", "exp": time.Now().Add(time.Hour).Unix()})
	v := auth.NewJWTVerifier(testSecret)

	userID, reconnecting, err := v.Verify(tok)

	assert.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.False(t, reconnecting)
}

func TestVerify_ReconnectClaim(t *testing.T) {
	tok := signToken(t, jwt.MapClaims{"anon_id": "user-1", "reconnect": true, "exp": time.Now().Add(time.Hour).Unix()})
	v := auth.NewJWTVerifier(testSecret)

	_, reconnecting, err := v.Verify(tok)

	assert.NoError(t, err)
	assert.True(t, reconnecting)
}

func TestVerify_ExpiredToken_Fails(t *testing.T) {
	tok := signToken(t, jwt.MapClaims{"anon_id": "user-1", "exp": time.Now().Add(-time.Hour).Unix()})
	v := auth.NewJWTVerifier(testSecret)

	_, _, err := v.Verify(tok)
	assert.Error(t, err)
}

func TestVerify_WrongSecret_Fails(t *testing.T) {
	tok := signToken(t, jwt.MapClaims{"anon_id": "user-1", "exp": time.Now().Add(time.Hour).Unix()})
	v := auth.NewJWTVerifier("different-secret")

	_, _, err := v.Verify(tok)
	assert.Error(t, err)
}

func TestVerify_EmptyToken_Fails(t *testing.T) {
	v := auth.NewJWTVerifier(testSecret)
	_, _, err := v.Verify("")
	assert.Error(t, err)
}

func TestExtractToken_HandshakeFieldTakesPriority(t *testing.T) {
	req, _ := http.NewRequest("GET", "/ws", nil)
	req.Header.Set("token", "header-token")
	req.Header.Set("Authorization", "Bearer bearer-token")

	got := auth.ExtractToken("handshake-token", req)
	assert.Equal(t, "handshake-token", got)
}

func TestExtractToken_HeaderTokenSecondPriority(t *testing.T) {
	req, _ := http.NewRequest("GET", "/ws", nil)
	req.Header.Set("token", "header-token")
	req.Header.Set("Authorization", "Bearer bearer-token")

	got := auth.ExtractToken("", req)
	assert.Equal(t, "header-token", got)
}

func TestExtractToken_AuthorizationBearerFallback(t *testing.T) {
	req, _ := http.NewRequest("GET", "/ws", nil)
	req.Header.Set("Authorization", "Bearer bearer-token")

	got := auth.ExtractToken("", req)
	assert.Equal(t, "bearer-token", got)
}

func TestExtractToken_NoneProvided_Empty(t *testing.T) {
	req, _ := http.NewRequest("GET", "/ws", nil)
	got := auth.ExtractToken("", req)
	assert.Empty(t, got)
}
