package botauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTokenService(t *testing.T, handler http.HandlerFunc) *UserTokenClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &UserTokenClient{
		endpoint: srv.URL,
		creds:    staticCredentials{token: "service-token"},
	}
}

func TestGetUserToken(t *testing.T) {
	t.Run("token present", func(t *testing.T) {
		client := newTokenService(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/api/usertoken/GetToken" {
				t.Errorf("path = %q", r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer service-token" {
				t.Errorf("Authorization = %q", got)
			}
			q := r.URL.Query()
			if q.Get("userId") != "user-1" || q.Get("connectionName") != "oauth-conn" || q.Get("code") != "123456" {
				t.Errorf("query = %v", q)
			}
			_ = json.NewEncoder(w).Encode(TokenResponse{
				ConnectionName: "oauth-conn",
				Token:          "user-access-token",
			})
		})

		tok, err := client.GetUserToken(context.Background(), "user-1", "oauth-conn", "msteams", "123456")
		if err != nil {
			t.Fatalf("GetUserToken: %v", err)
		}
		if tok == nil || tok.Token != "user-access-token" {
			t.Fatalf("token = %+v", tok)
		}
	})

	t.Run("not signed in", func(t *testing.T) {
		client := newTokenService(t, func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "not found", http.StatusNotFound)
		})
		tok, err := client.GetUserToken(context.Background(), "user-1", "oauth-conn", "msteams", "")
		if err != nil {
			t.Fatalf("GetUserToken: %v", err)
		}
		if tok != nil {
			t.Fatalf("token = %+v, want nil for a user who has not signed in", tok)
		}
	})

	t.Run("missing arguments", func(t *testing.T) {
		client := newTokenService(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		if _, err := client.GetUserToken(context.Background(), "", "oauth-conn", "msteams", ""); err == nil {
			t.Fatal("expected error for empty user id")
		}
		if _, err := client.GetUserToken(context.Background(), "user-1", "", "msteams", ""); err == nil {
			t.Fatal("expected error for empty connection name")
		}
	})

	t.Run("service error", func(t *testing.T) {
		client := newTokenService(t, func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		})
		if _, err := client.GetUserToken(context.Background(), "user-1", "oauth-conn", "msteams", ""); err == nil {
			t.Fatal("expected error for 500 response")
		}
	})
}

func TestSignOutUser(t *testing.T) {
	var gotMethod, gotQuery string
	client := newTokenService(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
	})

	if err := client.SignOutUser(context.Background(), "user-1", "oauth-conn", "msteams"); err != nil {
		t.Fatalf("SignOutUser: %v", err)
	}
	if gotMethod != http.MethodDelete {
		t.Fatalf("method = %q", gotMethod)
	}
	if gotQuery == "" {
		t.Fatal("no query sent")
	}

	if err := client.SignOutUser(context.Background(), "", "", ""); err == nil {
		t.Fatal("expected error for empty user id")
	}
}

func TestGetTokenStatus(t *testing.T) {
	client := newTokenService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/usertoken/GetTokenStatus" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode([]TokenStatus{
			{ConnectionName: "oauth-conn", HasToken: true},
			{ConnectionName: "graph-conn", HasToken: false},
		})
	})

	statuses, err := client.GetTokenStatus(context.Background(), "user-1", "msteams", "")
	if err != nil {
		t.Fatalf("GetTokenStatus: %v", err)
	}
	if len(statuses) != 2 || !statuses[0].HasToken || statuses[1].HasToken {
		t.Fatalf("statuses = %+v", statuses)
	}
}

func TestGetSignInResource(t *testing.T) {
	client := newTokenService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/botsignin/GetSignInResource" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("ConnectionName") != "oauth-conn" || q.Get("state") == "" {
			t.Errorf("query = %v", q)
		}
		_ = json.NewEncoder(w).Encode(SignInResource{
			SignInLink: "https://token.example.com/signin?signature=abc",
			TokenExchangeResource: &TokenExchangeResource{
				ID:  "exchange-1",
				URI: "api://bot/scope",
			},
		})
	})

	res, err := client.GetSignInResource(context.Background(), "oauth-conn", "serialized-state", "")
	if err != nil {
		t.Fatalf("GetSignInResource: %v", err)
	}
	if res.SignInLink == "" || res.TokenExchangeResource == nil {
		t.Fatalf("resource = %+v", res)
	}

	if _, err := client.GetSignInResource(context.Background(), "", "state", ""); err == nil {
		t.Fatal("expected error for empty connection name")
	}
}
