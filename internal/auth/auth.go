// Package auth verifies the bearer token every persistent connection
// presents. Token issuance is out of scope for the core (spec.md §1's
// Non-goals) — this package only implements the verification side of what
// the teacher's generateJWT/validateAndGetAnonID pair does, using the same
// golang-jwt/jwt/v5 stack.
package auth

import (
	"errors"
	"net/http"

	"anonchat/internal/apperr"

	jwt "github.com/golang-jwt/jwt/v5"
)

// TokenVerifier validates a bearer token and resolves it to a user id.
type TokenVerifier interface {
	Verify(token string) (userID string, reconnecting bool, err error)
}

type jwtVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) TokenVerifier {
	return &jwtVerifier{secret: []byte(secret)}
}

// Verify parses and validates an HS256 JWT, extracting the subject claim
// (the teacher's "anon_id") as the resolved user id. A "reconnect" claim,
// when present and true, signals a reconnection handshake per spec.md §4.2.
func (v *jwtVerifier) Verify(tokenString string) (string, bool, error) {
	if tokenString == "" {
		return "", false, apperr.Auth("missing token")
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", false, apperr.Auth("invalid or expired token")
	}

	userID, _ := claims["anon_id"].(string)
	if userID == "" {
		userID, _ = claims["sub"].(string)
	}
	if userID == "" {
		return "", false, apperr.Auth("token missing subject claim")
	}

	reconnecting, _ := claims["reconnect"].(bool)
	return userID, reconnecting, nil
}

// ExtractToken implements spec.md §6's three-source priority order: (a) a
// handshake-auth field, (b) the "token" header, (c) "Authorization: Bearer".
func ExtractToken(handshakeToken string, r *http.Request) string {
	if handshakeToken != "" {
		return handshakeToken
	}
	if h := r.Header.Get("token"); h != "" {
		return h
	}
	const prefix = "Bearer "
	if auth := r.Header.Get("Authorization"); len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}
