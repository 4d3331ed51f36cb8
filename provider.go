package sessionkit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSet is the token triple minted by the identity provider. ExpiresAt
// may be zero when the provider omits it; the engine then recovers the
// expiry from the access token's exp claim, falling back to the configured
// default TTL.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// IdentityProvider is the remote identity authority. Implementations wrap
// the actual network client; both methods block with no implicit timeout
// and are bounded through ctx.
//
// Refresh exchanges a refresh token for a new triple. Validate checks an
// access token remotely and returns the provider's identity payload, which
// the engine persists verbatim.
type IdentityProvider interface {
	Refresh(ctx context.Context, refreshToken string) (TokenSet, error)
	Validate(ctx context.Context, accessToken string) (json.RawMessage, error)
}

// resolveExpiry fills a missing TokenSet.ExpiresAt. The access token's exp
// claim is parsed without signature verification: the provider stays the
// authority on validity, this only recovers a timestamp it already signed.
func resolveExpiry(ts TokenSet, now time.Time, fallbackTTL time.Duration) time.Time {
	if !ts.ExpiresAt.IsZero() {
		return ts.ExpiresAt
	}

	if ts.AccessToken != "" {
		parser := jwt.NewParser()
		claims := jwt.MapClaims{}
		if _, _, err := parser.ParseUnverified(ts.AccessToken, claims); err == nil {
			if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && exp.After(now) {
				return exp.Time
			}
		}
	}

	return now.Add(fallbackTTL)
}
