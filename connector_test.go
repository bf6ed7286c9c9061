package botauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestConnectorFactoryCreate(t *testing.T) {
	var gotAuth string
	service := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer service.Close()

	factory := &stubFactory{appID: testBotAppID}
	cf := &ConnectorFactory{
		appID:           testBotAppID,
		defaultAudience: PublicOAuthScope,
		loginEndpoint:   PublicLoginEndpoint,
		creds:           factory,
	}

	t.Run("explicit audience", func(t *testing.T) {
		client, err := cf.Create(context.Background(), service.URL, "skill-app")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		resp, err := client.Get(service.URL)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
		if gotAuth != "Bearer token-for-skill-app" {
			t.Fatalf("Authorization = %q", gotAuth)
		}
	})

	t.Run("empty audience falls back to channel scope", func(t *testing.T) {
		client, err := cf.Create(context.Background(), service.URL, "")
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		resp, err := client.Get(service.URL)
		if err != nil {
			t.Fatalf("GET: %v", err)
		}
		resp.Body.Close()
		if gotAuth != "Bearer token-for-"+PublicOAuthScope {
			t.Fatalf("Authorization = %q", gotAuth)
		}
	})

	t.Run("missing service url", func(t *testing.T) {
		if _, err := cf.Create(context.Background(), "", "skill-app"); !errors.Is(err, ErrConfiguration) {
			t.Fatalf("err = %v, want ErrConfiguration", err)
		}
	})
}

func TestCredentialTransportDoesNotMutateRequest(t *testing.T) {
	service := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer service.Close()

	client := &http.Client{Transport: &credentialTransport{
		creds: staticCredentials{token: "abc"},
	}}

	req, err := http.NewRequest(http.MethodGet, service.URL, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if got := req.Header.Get("Authorization"); got != "" {
		t.Fatalf("caller's request mutated: Authorization = %q", got)
	}
}
