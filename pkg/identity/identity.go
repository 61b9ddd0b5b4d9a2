// Package identity turns request credentials into owner IDs.
package identity

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
)

// ErrUnauthorized is returned for missing or unknown credentials.
var ErrUnauthorized = errors.New("unauthorized")

// Resolver resolves a credential to the owner it authenticates.
type Resolver interface {
	Resolve(ctx context.Context, credential string) (string, error)
}

// StaticResolver resolves bearer tokens from a fixed token to owner map.
type StaticResolver struct {
	tokens map[string]string
}

// NewStaticResolver copies tokens. Entries with an empty token or owner are
// skipped.
func NewStaticResolver(tokens map[string]string) *StaticResolver {
	r := &StaticResolver{tokens: make(map[string]string, len(tokens))}
	for token, owner := range tokens {
		if token == "" || strings.TrimSpace(owner) == "" {
			continue
		}
		r.tokens[token] = owner
	}
	return r
}

// Len returns the number of usable tokens.
func (r *StaticResolver) Len() int {
	return len(r.tokens)
}

// Resolve compares credential against every configured token in constant
// time per token.
func (r *StaticResolver) Resolve(_ context.Context, credential string) (string, error) {
	if credential == "" {
		return "", ErrUnauthorized
	}

	owner := ""
	for token, o := range r.tokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(credential)) == 1 {
			owner = o
		}
	}
	if owner == "" {
		return "", ErrUnauthorized
	}
	return owner, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
