package botauth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestClaimsIdentity(t *testing.T) {
	id := NewClaimsIdentity([]Claim{
		{Type: ClaimTypeAppID, Value: "app-1"},
		{Type: "scope", Value: "first"},
		{Type: "scope", Value: "second"},
	})

	if !id.IsAuthenticated() {
		t.Fatal("identity not authenticated")
	}
	if got := id.AuthenticationType(); got != BearerAuthType {
		t.Fatalf("auth type = %q, want %q", got, BearerAuthType)
	}
	if got := id.ClaimValue(ClaimTypeAppID); got != "app-1" {
		t.Fatalf("appid = %q", got)
	}
	if got := id.ClaimValue("scope"); got != "first" {
		t.Fatalf("ClaimValue returns %q, want first occurrence", got)
	}
	if got := id.ClaimValue("missing"); got != "" {
		t.Fatalf("missing claim = %q, want empty", got)
	}

	// The claim slice is a copy; mutating it must not affect the identity.
	claims := id.Claims()
	claims[0].Value = "tampered"
	if got := id.ClaimValue(ClaimTypeAppID); got != "app-1" {
		t.Fatalf("identity mutated through Claims() copy: %q", got)
	}
}

func TestNewAnonymousIdentity(t *testing.T) {
	id := NewAnonymousIdentity(Claim{Type: ClaimTypeAppID, Value: AnonymousSkillAppID})
	if !id.IsAuthenticated() {
		t.Fatal("anonymous identity should report authenticated")
	}
	if got := id.AuthenticationType(); got != AnonymousAuthType {
		t.Fatalf("auth type = %q, want %q", got, AnonymousAuthType)
	}
	if got := id.ClaimValue(ClaimTypeAppID); got != AnonymousSkillAppID {
		t.Fatalf("appid = %q", got)
	}
}

func TestIdentityFromJWTClaims(t *testing.T) {
	m := jwt.MapClaims{
		"iss":        "https://api.botframework.com",
		"aud":        []any{"app-1", "app-2"},
		"ver":        "1.0",
		"exp":        float64(1757000000),
		"emailcheck": true,
	}
	id := IdentityFromJWTClaims(m)

	if got := id.ClaimValue(ClaimTypeIssuer); got != "https://api.botframework.com" {
		t.Fatalf("iss = %q", got)
	}
	if got := id.ClaimValue(ClaimTypeAudience); got != "app-1" {
		t.Fatalf("first audience = %q", got)
	}
	if got := id.ClaimValue("exp"); got != "1757000000" {
		t.Fatalf("exp = %q", got)
	}
	if got := id.ClaimValue("emailcheck"); got != "true" {
		t.Fatalf("bool claim = %q", got)
	}

	// Multi-valued audience keeps array order.
	var auds []string
	for _, c := range id.Claims() {
		if c.Type == ClaimTypeAudience {
			auds = append(auds, c.Value)
		}
	}
	if len(auds) != 2 || auds[0] != "app-1" || auds[1] != "app-2" {
		t.Fatalf("audiences = %v", auds)
	}

	// Every claim carries the token issuer.
	for _, c := range id.Claims() {
		if c.Issuer != "https://api.botframework.com" {
			t.Fatalf("claim %q issuer = %q", c.Type, c.Issuer)
		}
	}
}
