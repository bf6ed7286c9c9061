package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/botfx/botauth"
)

// defaultIMDSEndpoint is the Azure instance-metadata identity endpoint.
// No secret material is held by the process; the platform attests the
// workload's identity.
const defaultIMDSEndpoint = "http://169.254.169.254/metadata/identity/oauth2/token"

const imdsAPIVersion = "2018-02-01"

// managedIdentityExchanger requests tokens from the platform's identity
// endpoint.
type managedIdentityExchanger struct {
	clientID   string
	resource   string
	endpoint   string
	httpClient *http.Client
}

func (e *managedIdentityExchanger) exchange(ctx context.Context) (botauth.Token, error) {
	endpoint := e.endpoint
	if endpoint == "" {
		endpoint = defaultIMDSEndpoint
	}
	q := url.Values{
		"api-version": {imdsAPIVersion},
		"resource":    {e.resource},
	}
	if e.clientID != "" {
		q.Set("client_id", e.clientID)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return botauth.Token{}, err
	}
	req.Header.Set("Metadata", "true")

	client := e.httpClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return botauth.Token{}, fmt.Errorf("managed identity request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return botauth.Token{}, err
	}
	if resp.StatusCode != http.StatusOK {
		// Surface the same error shape as the OAuth2 flows so the
		// acquirer's classification applies uniformly.
		return botauth.Token{}, &oauth2.RetrieveError{Response: resp, Body: body}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
		ExpiresOn   string `json:"expires_on"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return botauth.Token{}, fmt.Errorf("decode managed identity response: %w", err)
	}
	if payload.AccessToken == "" {
		return botauth.Token{}, fmt.Errorf("managed identity response carried no token")
	}
	return botauth.Token{
		AccessToken: payload.AccessToken,
		ExpiresOn:   imdsExpiry(payload.ExpiresOn, payload.ExpiresIn),
	}, nil
}

// imdsExpiry prefers the absolute expires_on unix timestamp, then the
// relative expires_in, then the standard hour.
func imdsExpiry(expiresOn, expiresIn string) time.Time {
	if secs, err := strconv.ParseInt(strings.TrimSpace(expiresOn), 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0)
	}
	if secs, err := strconv.ParseInt(strings.TrimSpace(expiresIn), 10, 64); err == nil && secs > 0 {
		return time.Now().Add(time.Duration(secs) * time.Second)
	}
	return time.Now().Add(time.Hour)
}
