package credentials

import (
	"context"
	"crypto"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/botfx/botauth"
	"github.com/botfx/botauth/tokenstore"
	"github.com/botfx/botauth/tokenstore/memory"
)

type factoryOptions struct {
	httpClient   *http.Client
	store        tokenstore.Store
	tenantID     string
	sendX5C      bool
	watchReload  bool
	imdsEndpoint string
}

// FactoryOption configures factory construction.
type FactoryOption func(*factoryOptions)

// WithHTTPClient overrides the HTTP client used for token exchanges.
func WithHTTPClient(c *http.Client) FactoryOption {
	return func(o *factoryOptions) { o.httpClient = c }
}

// WithTokenStore replaces the default in-process token cache, for example
// with the Redis store shared across bot replicas.
func WithTokenStore(s tokenstore.Store) FactoryOption {
	return func(o *factoryOptions) { o.store = s }
}

// WithTenantID pins outbound exchanges to a tenant instead of the
// authority embedded in the login endpoint.
func WithTenantID(tenant string) FactoryOption {
	return func(o *factoryOptions) { o.tenantID = tenant }
}

// WithX5C sends the public certificate with each assertion, enabling
// subject-name/issuer trusted-certificate rollover.
func WithX5C() FactoryOption {
	return func(o *factoryOptions) { o.sendX5C = true }
}

// WithCertificateReload watches file-backed certificate credentials and
// reloads them on rotation.
func WithCertificateReload() FactoryOption {
	return func(o *factoryOptions) { o.watchReload = true }
}

// WithIMDSEndpoint overrides the managed-identity endpoint, mainly for
// tests.
func WithIMDSEndpoint(endpoint string) FactoryOption {
	return func(o *factoryOptions) { o.imdsEndpoint = endpoint }
}

// Factory produces ServiceCredentials for one configured bot identity
// using one trust-establishment strategy. It implements
// botauth.CredentialFactory and caches credentials per (appId, audience,
// loginEndpoint) so every consumer of a pair shares one token cache and
// one acquisition pipeline.
type Factory struct {
	appID    string
	tenantID string

	httpClient *http.Client
	store      tokenstore.Store
	build      func(audience, tokenURL string) (exchanger, error)
	source     *certSource

	mu        sync.Mutex
	instances map[string]*tokenCredentials
	closed    bool
}

func newFactory(appID string, opts []FactoryOption) (*Factory, *factoryOptions) {
	var o factoryOptions
	for _, opt := range opts {
		opt(&o)
	}
	store := o.store
	if store == nil {
		store = memory.New()
	}
	return &Factory{
		appID:      appID,
		tenantID:   o.tenantID,
		httpClient: o.httpClient,
		store:      store,
		instances:  make(map[string]*tokenCredentials),
	}, &o
}

// NewSharedSecret builds a factory exchanging an appId + password for
// tokens. Both empty disables authentication entirely; supplying one
// without the other is a configuration error.
func NewSharedSecret(appID, password string, opts ...FactoryOption) (*Factory, error) {
	if (appID == "") != (password == "") {
		return nil, fmt.Errorf("%w: app id and password must be supplied together", botauth.ErrConfiguration)
	}
	f, o := newFactory(appID, opts)
	secret := password
	f.build = func(audience, tokenURL string) (exchanger, error) {
		return &sharedSecretExchanger{
			appID:      f.appID,
			secret:     secret,
			tokenURL:   tokenURL,
			scopes:     []string{scopeFor(audience)},
			httpClient: o.httpClient,
		}, nil
	}
	return f, nil
}

// NewAnonymous builds a factory with no identity at all; authentication
// is administratively disabled.
func NewAnonymous() *Factory {
	f, _ := newFactory("", nil)
	return f
}

// NewCertificate builds a factory signing client assertions with an
// in-memory certificate and key.
func NewCertificate(appID string, cert *x509.Certificate, key crypto.Signer, opts ...FactoryOption) (*Factory, error) {
	if appID == "" || cert == nil || key == nil {
		return nil, fmt.Errorf("%w: certificate credentials require app id, certificate and key", botauth.ErrConfiguration)
	}
	f, o := newFactory(appID, opts)
	f.source = newCertSource(cert, key)
	f.build = certificateBuild(f, o)
	return f, nil
}

// NewCertificateFromFiles builds a certificate factory from PEM files.
// With WithCertificateReload the pair is reloaded when rotated on disk.
func NewCertificateFromFiles(appID, certPath, keyPath string, opts ...FactoryOption) (*Factory, error) {
	if appID == "" {
		return nil, fmt.Errorf("%w: certificate credentials require an app id", botauth.ErrConfiguration)
	}
	source, err := newCertSourceFromFiles(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	f, o := newFactory(appID, opts)
	f.source = source
	if o.watchReload {
		if err := source.watch(); err != nil {
			return nil, err
		}
	}
	f.build = certificateBuild(f, o)
	return f, nil
}

func certificateBuild(f *Factory, o *factoryOptions) func(audience, tokenURL string) (exchanger, error) {
	return func(audience, tokenURL string) (exchanger, error) {
		return &certificateExchanger{
			appID:      f.appID,
			tokenURL:   tokenURL,
			scopes:     []string{scopeFor(audience)},
			source:     f.source,
			sendX5C:    o.sendX5C,
			httpClient: o.httpClient,
		}, nil
	}
}

// NewManagedIdentity builds a factory delegating to the platform's
// identity endpoint. clientID names the user-assigned identity, which is
// also the bot's app id.
func NewManagedIdentity(clientID string, opts ...FactoryOption) (*Factory, error) {
	if clientID == "" {
		return nil, fmt.Errorf("%w: managed identity credentials require a client id", botauth.ErrConfiguration)
	}
	f, o := newFactory(clientID, opts)
	f.build = func(audience, _ string) (exchanger, error) {
		return &managedIdentityExchanger{
			clientID:   f.appID,
			resource:   strings.TrimSuffix(scopeFor(audience), "/.default"),
			endpoint:   o.imdsEndpoint,
			httpClient: o.httpClient,
		}, nil
	}
	return f, nil
}

// NewFederated builds a factory exchanging a platform-issued identity
// token for service tokens via a client-assertion exchange.
func NewFederated(appID string, provider AssertionProvider, opts ...FactoryOption) (*Factory, error) {
	if appID == "" || provider == nil {
		return nil, fmt.Errorf("%w: federated credentials require app id and assertion provider", botauth.ErrConfiguration)
	}
	f, o := newFactory(appID, opts)
	f.build = func(audience, tokenURL string) (exchanger, error) {
		return &federatedExchanger{
			appID:      f.appID,
			tokenURL:   tokenURL,
			scopes:     []string{scopeFor(audience)},
			provider:   provider,
			httpClient: o.httpClient,
		}, nil
	}
	return f, nil
}

// CreateCredentials returns credentials for appID scoped to audience. The
// appID must be the identity this factory was configured with; anything
// else is a programming error, not an authentication failure.
//
// validateAuthority is accepted to satisfy the CredentialFactory contract
// but does not alter the exchange: tokens are always requested from the
// v2 endpoint derived from loginEndpoint (or the tenant override), and
// those well-known AAD authorities need no instance discovery.
func (f *Factory) CreateCredentials(_ context.Context, appID, audience, loginEndpoint string, _ bool) (botauth.ServiceCredentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrClosed
	}
	if f.appID == "" {
		return anonymousCredentials{}, nil
	}
	if appID != f.appID {
		return nil, fmt.Errorf("%w: factory configured for app id %q, asked to create credentials for %q", botauth.ErrConfiguration, f.appID, appID)
	}
	if audience == "" {
		return nil, fmt.Errorf("%w: audience required", botauth.ErrConfiguration)
	}
	if loginEndpoint == "" {
		loginEndpoint = botauth.PublicLoginEndpoint
	}

	key := appID + "|" + audience + "|" + loginEndpoint
	if creds, ok := f.instances[key]; ok {
		return creds, nil
	}

	tokenURL, err := f.endpointFor(loginEndpoint)
	if err != nil {
		return nil, err
	}
	ex, err := f.build(audience, tokenURL)
	if err != nil {
		return nil, err
	}
	creds := &tokenCredentials{
		appID:    appID,
		audience: audience,
		acquirer: newAcquirer(ex, f.store, key),
	}
	f.instances[key] = creds
	return creds, nil
}

// IsValidAppID reports whether appID is the identity this factory serves.
func (f *Factory) IsValidAppID(_ context.Context, appID string) (bool, error) {
	return appID != "" && appID == f.appID, nil
}

// IsAuthenticationDisabled reports whether the factory carries no
// identity.
func (f *Factory) IsAuthenticationDisabled(context.Context) (bool, error) {
	return f.appID == "", nil
}

// Close tears down every credential instance and any certificate watcher.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	var err error
	for _, creds := range f.instances {
		if cerr := creds.Close(); err == nil {
			err = cerr
		}
	}
	if f.source != nil {
		if cerr := f.source.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// endpointFor derives the token endpoint, honoring a tenant override.
func (f *Factory) endpointFor(loginEndpoint string) (string, error) {
	if f.tenantID == "" {
		return tokenEndpoint(loginEndpoint)
	}
	u, err := url.Parse(loginEndpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: invalid login endpoint %q", botauth.ErrConfiguration, loginEndpoint)
	}
	return tokenEndpoint(u.Scheme + "://" + u.Host + "/" + f.tenantID)
}

var _ botauth.CredentialFactory = (*Factory)(nil)
