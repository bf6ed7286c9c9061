package botauth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/botfx/botauth/internal/jwtauth"
	"github.com/botfx/botauth/internal/keycache"
)

type options struct {
	httpClient           *http.Client
	claimsValidator      ClaimsValidator
	requiredEndorsements []string
	allowUnendorsed      bool
	keyCacheTTL          time.Duration
}

// Option configures BotFrameworkAuthentication construction.
type Option func(*options)

// WithHTTPClient overrides the HTTP client used for key fetches, outbound
// connector calls and the token service.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithClaimsValidator installs the host's claims validator. Required for
// accepting skill callers.
func WithClaimsValidator(v ClaimsValidator) Option {
	return func(o *options) { o.claimsValidator = v }
}

// WithRequiredEndorsements demands that inbound channel tokens are signed
// by keys carrying every listed endorsement.
func WithRequiredEndorsements(endorsements ...string) Option {
	return func(o *options) { o.requiredEndorsements = endorsements }
}

// WithAllowUnendorsedChannels disables the channel-id endorsement
// assertion, for channels still under development.
func WithAllowUnendorsedChannels(allow bool) Option {
	return func(o *options) { o.allowUnendorsed = allow }
}

// WithKeyCacheTTL overrides how long fetched signing keys are served
// before refresh.
func WithKeyCacheTTL(ttl time.Duration) Option {
	return func(o *options) { o.keyCacheTTL = ttl }
}

// BotFrameworkAuthentication is the top-level facade wiring request
// authentication and outbound credential creation together for one cloud
// environment.
type BotFrameworkAuthentication struct {
	env           CloudEnvironment
	creds         CredentialFactory
	authenticator *RequestAuthenticator
	httpClient    *http.Client
}

// New builds the facade for an explicit cloud environment. creds supplies
// the bot's outbound identity; see the credentials package for concrete
// factories.
func New(env CloudEnvironment, creds CredentialFactory, opts ...Option) (*BotFrameworkAuthentication, error) {
	if creds == nil {
		return nil, fmt.Errorf("%w: credential factory required", ErrConfiguration)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	keys := keycache.New(keycache.Config{
		HTTPClient: o.httpClient,
		TTL:        o.keyCacheTTL,
	})
	validator := jwtauth.New(keys)

	return &BotFrameworkAuthentication{
		env:           env,
		creds:         creds,
		authenticator: newRequestAuthenticator(env, creds, validator, &o),
		httpClient:    o.httpClient,
	}, nil
}

// NewFromSettings resolves the cloud from deployable settings and builds
// the facade.
func NewFromSettings(s Settings, creds CredentialFactory, opts ...Option) (*BotFrameworkAuthentication, error) {
	env, err := s.CloudEnvironment()
	if err != nil {
		return nil, err
	}
	return New(env, creds, opts...)
}

// AuthenticateRequest authenticates an inbound activity's Authorization
// header and returns the identity, outbound audience, caller id, and a
// connector factory bound to the authenticated caller.
func (b *BotFrameworkAuthentication) AuthenticateRequest(ctx context.Context, activity *Activity, authHeader string) (*AuthenticateRequestResult, error) {
	res, err := b.authenticator.Authenticate(ctx, activity, authHeader)
	if err != nil {
		return nil, err
	}
	cf, err := b.CreateConnectorFactory(res.ClaimsIdentity)
	if err != nil {
		return nil, err
	}
	res.ConnectorFactory = cf
	return res, nil
}

// AuthenticateStreamingRequest authenticates a streaming connection's
// Authorization header against the channel id carried alongside it.
func (b *BotFrameworkAuthentication) AuthenticateStreamingRequest(ctx context.Context, authHeader, channelIDHeader string) (*AuthenticateRequestResult, error) {
	return b.authenticator.AuthenticateStreaming(ctx, authHeader, channelIDHeader)
}

// CreateConnectorFactory returns a factory producing authenticated HTTP
// clients acting as the given identity.
func (b *BotFrameworkAuthentication) CreateConnectorFactory(identity *ClaimsIdentity) (*ConnectorFactory, error) {
	appID, err := AppIDFromClaims(identity)
	if err != nil {
		return nil, err
	}
	var base http.RoundTripper
	if b.httpClient != nil {
		base = b.httpClient.Transport
	}
	return &ConnectorFactory{
		appID:             appID,
		defaultAudience:   b.env.OAuthScope,
		loginEndpoint:     b.env.LoginEndpoint,
		validateAuthority: b.env.ValidateAuthority,
		creds:             b.creds,
		base:              base,
	}, nil
}

// CreateUserTokenClient returns a token-service client acting as the
// given identity.
func (b *BotFrameworkAuthentication) CreateUserTokenClient(ctx context.Context, identity *ClaimsIdentity) (*UserTokenClient, error) {
	appID, err := AppIDFromClaims(identity)
	if err != nil {
		return nil, err
	}
	sc, err := b.creds.CreateCredentials(ctx, appID, b.env.OAuthScope, b.env.LoginEndpoint, b.env.ValidateAuthority)
	if err != nil {
		return nil, err
	}
	return &UserTokenClient{
		endpoint: b.env.TokenServiceEndpoint,
		creds:    sc,
		client:   b.httpClient,
	}, nil
}
