package botauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// TokenResponse is a user token returned by the token service.
type TokenResponse struct {
	ChannelID      string `json:"channelId,omitempty"`
	ConnectionName string `json:"connectionName,omitempty"`
	Token          string `json:"token,omitempty"`
	Expiration     string `json:"expiration,omitempty"`
}

// TokenStatus describes one connection's token state for a user.
type TokenStatus struct {
	ChannelID                  string `json:"channelId,omitempty"`
	ConnectionName             string `json:"connectionName,omitempty"`
	HasToken                   bool   `json:"hasToken"`
	ServiceProviderDisplayName string `json:"serviceProviderDisplayName,omitempty"`
}

// TokenExchangeResource identifies a token-exchange target for SSO.
type TokenExchangeResource struct {
	ID  string `json:"id,omitempty"`
	URI string `json:"uri,omitempty"`
}

// SignInResource is the sign-in link and optional exchange resource for a
// connection.
type SignInResource struct {
	SignInLink            string                 `json:"signInLink,omitempty"`
	TokenExchangeResource *TokenExchangeResource `json:"tokenExchangeResource,omitempty"`
}

// UserTokenClient calls the cloud's user-token service on behalf of the
// bot, authenticated with the bot's own service credentials.
type UserTokenClient struct {
	endpoint string
	creds    ServiceCredentials
	client   *http.Client
}

// GetUserToken fetches the user's token for a connection, optionally
// completing a login with a magic code. A missing token is (nil, nil).
func (c *UserTokenClient) GetUserToken(ctx context.Context, userID, connectionName, channelID, code string) (*TokenResponse, error) {
	if userID == "" || connectionName == "" {
		return nil, fmt.Errorf("%w: user id and connection name required", ErrConfiguration)
	}
	q := url.Values{
		"userId":         {userID},
		"connectionName": {connectionName},
		"channelId":      {channelID},
	}
	if code != "" {
		q.Set("code", code)
	}
	var out TokenResponse
	found, err := c.do(ctx, http.MethodGet, "/api/usertoken/GetToken", q, &out)
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

// SignOutUser revokes the user's token for a connection, or for every
// connection when connectionName is empty.
func (c *UserTokenClient) SignOutUser(ctx context.Context, userID, connectionName, channelID string) error {
	if userID == "" {
		return fmt.Errorf("%w: user id required", ErrConfiguration)
	}
	q := url.Values{"userId": {userID}}
	if connectionName != "" {
		q.Set("connectionName", connectionName)
	}
	if channelID != "" {
		q.Set("channelId", channelID)
	}
	_, err := c.do(ctx, http.MethodDelete, "/api/usertoken/SignOut", q, nil)
	return err
}

// GetTokenStatus lists the user's token state across connections.
func (c *UserTokenClient) GetTokenStatus(ctx context.Context, userID, channelID, includeFilter string) ([]TokenStatus, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id required", ErrConfiguration)
	}
	q := url.Values{"userId": {userID}}
	if channelID != "" {
		q.Set("channelId", channelID)
	}
	if includeFilter != "" {
		q.Set("include", includeFilter)
	}
	var out []TokenStatus
	if _, err := c.do(ctx, http.MethodGet, "/api/usertoken/GetTokenStatus", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetSignInResource fetches the sign-in link for a connection. state is
// the serialized conversation reference the service round-trips through
// the login flow.
func (c *UserTokenClient) GetSignInResource(ctx context.Context, connectionName, state, finalRedirect string) (*SignInResource, error) {
	if connectionName == "" || state == "" {
		return nil, fmt.Errorf("%w: connection name and state required", ErrConfiguration)
	}
	q := url.Values{
		"ConnectionName": {connectionName},
		"state":          {state},
	}
	if finalRedirect != "" {
		q.Set("finalRedirect", finalRedirect)
	}
	var out SignInResource
	found, err := c.do(ctx, http.MethodGet, "/api/botsignin/GetSignInResource", q, &out)
	if err != nil || !found {
		return nil, err
	}
	return &out, nil
}

// do issues an authenticated request and decodes a JSON body into ref.
// Returns false without error on 404, mapping "no token" to absence.
func (c *UserTokenClient) do(ctx context.Context, method, path string, q url.Values, ref any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path+"?"+q.Encode(), nil)
	if err != nil {
		return false, err
	}
	if err := c.creds.ProcessRequest(ctx, req); err != nil {
		return false, fmt.Errorf("attach credentials: %w", err)
	}

	client := c.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode >= 300:
		return false, fmt.Errorf("token service %s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if ref == nil {
		return true, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(ref); err != nil {
		return false, fmt.Errorf("decode token service response: %w", err)
	}
	return true, nil
}
