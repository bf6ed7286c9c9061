package credentials

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/botfx/botauth"
)

// AssertionProvider supplies a platform-issued identity token (for
// example a workload identity federation token read from the pod
// filesystem) used as the client assertion in a federated exchange. It
// must be safe for concurrent use; it is called fresh on every network
// acquisition.
type AssertionProvider func(ctx context.Context) (string, error)

// federatedExchanger completes a client-credential exchange using an
// externally supplied assertion instead of locally held secret material.
type federatedExchanger struct {
	appID      string
	tokenURL   string
	scopes     []string
	provider   AssertionProvider
	httpClient *http.Client
}

func (e *federatedExchanger) exchange(ctx context.Context) (botauth.Token, error) {
	assertion, err := e.provider(ctx)
	if err != nil {
		return botauth.Token{}, fmt.Errorf("obtain federated assertion: %w", err)
	}
	if assertion == "" {
		return botauth.Token{}, fmt.Errorf("%w: federated assertion provider returned an empty token", botauth.ErrConfiguration)
	}
	cfg := &clientcredentials.Config{
		ClientID: e.appID,
		TokenURL: e.tokenURL,
		Scopes:   e.scopes,
		EndpointParams: url.Values{
			"client_assertion_type": {clientAssertionType},
			"client_assertion":      {assertion},
		},
		AuthStyle: oauth2.AuthStyleInParams,
	}
	return exchangeClientCredentials(ctx, cfg, e.httpClient)
}
