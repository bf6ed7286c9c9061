package botauth

import (
	"context"
	"net/http"
	"time"
)

// Token is an outbound access token plus its absolute expiry.
type Token struct {
	AccessToken string
	ExpiresOn   time.Time
}

// Expired reports whether the token is unusable at instant now, applying
// the given safety margin.
func (t Token) Expired(now time.Time, margin time.Duration) bool {
	return t.AccessToken == "" || !now.Add(margin).Before(t.ExpiresOn)
}

// ServiceCredentials produces bearer tokens for one (appId, audience)
// pair and attaches them to outbound requests. Implementations cache and
// refresh tokens internally; GetToken never returns an expired token.
type ServiceCredentials interface {
	// GetToken returns a valid access token, acquiring one if the cache
	// is empty, expired, or forceRefresh is set.
	GetToken(ctx context.Context, forceRefresh bool) (Token, error)

	// ProcessRequest injects `Authorization: Bearer <token>` into req.
	ProcessRequest(ctx context.Context, req *http.Request) error
}

// CredentialFactory is the pluggable strategy producing ServiceCredentials
// for a given identity. Concrete strategies (shared-secret, certificate,
// managed-identity, federated) live in the credentials package.
type CredentialFactory interface {
	// CreateCredentials returns credentials for appID scoped to audience,
	// exchanging against loginEndpoint. Asking a factory for an app id it
	// was not configured with is a configuration error, not an
	// authentication failure.
	CreateCredentials(ctx context.Context, appID, audience, loginEndpoint string, validateAuthority bool) (ServiceCredentials, error)

	// IsValidAppID reports whether appID is the identity this factory
	// serves.
	IsValidAppID(ctx context.Context, appID string) (bool, error)

	// IsAuthenticationDisabled reports whether the factory carries no
	// identity at all, which administratively disables authentication.
	IsAuthenticationDisabled(ctx context.Context) (bool, error)
}

// ClaimsValidator is a caller-supplied hook that accepts or rejects a
// validated identity. Hosts accepting skill callers must configure one;
// skill tokens are rejected outright without it.
type ClaimsValidator func(ctx context.Context, identity *ClaimsIdentity) error
