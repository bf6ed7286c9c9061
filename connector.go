package botauth

import (
	"context"
	"fmt"
	"net/http"
)

// ConnectorFactory builds HTTP clients pre-configured with outbound
// credentials for one calling identity. Collaborators hand the returned
// client their requests and trust it to attach valid auth.
type ConnectorFactory struct {
	appID             string
	defaultAudience   string
	loginEndpoint     string
	validateAuthority bool
	creds             CredentialFactory
	base              http.RoundTripper
}

// Create returns a client for calling serviceURL with tokens scoped to
// audience. An empty audience falls back to the factory's default channel
// scope.
func (f *ConnectorFactory) Create(ctx context.Context, serviceURL, audience string) (*http.Client, error) {
	if serviceURL == "" {
		return nil, fmt.Errorf("%w: service url required", ErrConfiguration)
	}
	if audience == "" {
		audience = f.defaultAudience
	}
	sc, err := f.creds.CreateCredentials(ctx, f.appID, audience, f.loginEndpoint, f.validateAuthority)
	if err != nil {
		return nil, fmt.Errorf("create credentials for audience %q: %w", audience, err)
	}
	return &http.Client{
		Transport: &credentialTransport{base: f.base, creds: sc},
	}, nil
}

// credentialTransport injects a bearer token into each outbound request.
type credentialTransport struct {
	base  http.RoundTripper
	creds ServiceCredentials
}

func (t *credentialTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not mutate the caller's request.
	clone := req.Clone(req.Context())
	if err := t.creds.ProcessRequest(req.Context(), clone); err != nil {
		return nil, fmt.Errorf("attach credentials: %w", err)
	}
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(clone)
}
