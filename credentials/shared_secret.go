package credentials

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/botfx/botauth"
)

// sharedSecretExchanger exchanges an appId + password for a token via the
// OAuth2 client-credentials grant.
type sharedSecretExchanger struct {
	appID      string
	secret     string
	tokenURL   string
	scopes     []string
	httpClient *http.Client
}

func (e *sharedSecretExchanger) exchange(ctx context.Context) (botauth.Token, error) {
	cfg := &clientcredentials.Config{
		ClientID:     e.appID,
		ClientSecret: e.secret,
		TokenURL:     e.tokenURL,
		Scopes:       e.scopes,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	return exchangeClientCredentials(ctx, cfg, e.httpClient)
}

func exchangeClientCredentials(ctx context.Context, cfg *clientcredentials.Config, hc *http.Client) (botauth.Token, error) {
	if hc != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
	}
	t, err := cfg.Token(ctx)
	if err != nil {
		return botauth.Token{}, fmt.Errorf("client credentials exchange: %w", err)
	}
	expiry := t.Expiry
	if expiry.IsZero() {
		// Some providers omit expires_in; assume the standard hour.
		expiry = time.Now().Add(time.Hour)
	}
	return botauth.Token{AccessToken: t.AccessToken, ExpiresOn: expiry}, nil
}
