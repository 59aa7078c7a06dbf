package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

const BearerPrefix = "Bearer "

var (
	ErrNoToken      = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Identity is the owner information carried inside a registry-issued token.
type Identity struct {
	Username string
	UserID   string
}

// Owner returns the identifier used to scope storage keys. The registry
// assigns some accounts a numeric id and others only a username.
func (i Identity) Owner() string {
	if i.UserID != "" {
		return i.UserID
	}
	return i.Username
}

// BearerToken extracts the bearer token from the Authorization header.
func BearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, BearerPrefix) {
		return "", ErrNoToken
	}
	token := strings.TrimSpace(h[len(BearerPrefix):])
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// IdentityFromToken extracts the identity claims from a registry-issued JWT.
// The registry is the token issuer and the only party that can verify the
// signature; the gateway only needs the identity claims, so the payload is
// decoded without verification. An unparseable token is rejected as invalid.
func IdentityFromToken(token string) (Identity, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return Identity{}, fmt.Errorf("%w: expected 3 segments, got %d", ErrInvalidToken, len(parts))
	}

	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: decode payload: %v", ErrInvalidToken, err)
	}

	var claims struct {
		Username string          `json:"username"`
		ID       json.RawMessage `json:"id"`
		UserID   json.RawMessage `json:"user_id"`
		AltID    json.RawMessage `json:"userId"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Identity{}, fmt.Errorf("%w: parse claims: %v", ErrInvalidToken, err)
	}

	ident := Identity{
		Username: claims.Username,
		UserID:   claimString(claims.ID, claims.UserID, claims.AltID),
	}
	if ident.Username == "" && ident.UserID == "" {
		return Identity{}, fmt.Errorf("%w: no identity claims present", ErrInvalidToken)
	}
	return ident, nil
}

// claimString returns the first non-empty claim, normalized to a string.
// The registry emits ids as either JSON strings or numbers.
func claimString(raws ...json.RawMessage) string {
	for _, raw := range raws {
		if len(raw) == 0 {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s != "" {
				return s
			}
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil {
			return n.String()
		}
	}
	return ""
}
