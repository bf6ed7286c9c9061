// Package credentials implements the outbound credential strategies for
// calling back into Bot Framework channels and skills: shared-secret,
// certificate, managed-identity and federated-identity. Each strategy is
// a different trust-establishment mechanism behind the same
// botauth.ServiceCredentials contract, selected through a Factory rather
// than inheritance.
package credentials

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/botfx/botauth"
)

const clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// tokenCredentials binds a TokenAcquirer to the ServiceCredentials
// contract for one (appId, audience) pair.
type tokenCredentials struct {
	appID    string
	audience string
	acquirer *TokenAcquirer
	closer   func() error
}

func (c *tokenCredentials) GetToken(ctx context.Context, forceRefresh bool) (botauth.Token, error) {
	return c.acquirer.GetToken(ctx, forceRefresh)
}

func (c *tokenCredentials) ProcessRequest(ctx context.Context, req *http.Request) error {
	tok, err := c.GetToken(ctx, false)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	return nil
}

// Close releases the acquirer and any strategy resources (for example a
// certificate file watcher).
func (c *tokenCredentials) Close() error {
	err := c.acquirer.Close()
	if c.closer != nil {
		if cerr := c.closer(); err == nil {
			err = cerr
		}
	}
	return err
}

var _ botauth.ServiceCredentials = (*tokenCredentials)(nil)

// anonymousCredentials attach nothing; used when authentication is
// administratively disabled.
type anonymousCredentials struct{}

func (anonymousCredentials) GetToken(context.Context, bool) (botauth.Token, error) {
	return botauth.Token{}, nil
}

func (anonymousCredentials) ProcessRequest(context.Context, *http.Request) error { return nil }

var _ botauth.ServiceCredentials = anonymousCredentials{}

// scopeFor turns an audience into an MSAL-style scope. Channel scopes
// already carry the /.default suffix; skill audiences are bare app ids.
func scopeFor(audience string) string {
	if strings.HasSuffix(audience, "/.default") {
		return audience
	}
	return audience + "/.default"
}

// tokenEndpoint derives the v2 token endpoint from a login authority like
// https://login.microsoftonline.com/botframework.com.
func tokenEndpoint(loginEndpoint string) (string, error) {
	u, err := url.Parse(loginEndpoint)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: invalid login endpoint %q", botauth.ErrConfiguration, loginEndpoint)
	}
	return strings.TrimSuffix(loginEndpoint, "/") + "/oauth2/v2.0/token", nil
}
