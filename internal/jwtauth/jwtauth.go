// Package jwtauth validates Bot Framework bearer tokens.
//
// One parameterized validator serves every caller kind (channel, emulator,
// skill, government and enterprise channels); the policy decides which
// issuers, audience, metadata URL and endorsement rules apply.
package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/botfx/botauth/internal/keycache"
)

// ErrUnauthorized indicates the token failed validation (signature, issuer,
// audience, lifetime, algorithm or endorsement) and the request must be
// treated as unauthenticated.
var ErrUnauthorized = errors.New("botauth: unauthorized")

// DefaultLeeway is the clock-skew tolerance applied to lifetime checks.
const DefaultLeeway = 5 * time.Minute

// DefaultAllowedAlgs are the signing algorithms accepted from any Bot
// Framework token issuer.
var DefaultAllowedAlgs = []string{"RS256", "RS384", "RS512"}

// Policy is the immutable validation configuration for one caller kind.
// Construct once, reuse for every request of that kind.
type Policy struct {
	// Issuers is the set of acceptable `iss` values. A token whose
	// unverified issuer is outside this set is rejected before any key
	// material is fetched.
	Issuers []string

	// Audience, when non-empty, is enforced by the parser. Channel paths
	// leave it empty and check the audience against the bot's registered
	// app id out of band.
	Audience string

	// MetadataURL locates the OpenID configuration document whose JWKS
	// signs tokens under this policy.
	MetadataURL string

	// AllowedAlgs defaults to DefaultAllowedAlgs.
	AllowedAlgs []string

	// Leeway defaults to DefaultLeeway.
	Leeway time.Duration

	// RequireEndorsements turns on endorsement-to-channel binding.
	RequireEndorsements bool

	// AllowUnendorsed skips the channel-id endorsement assertion while
	// still checking any explicitly required endorsements. Escape hatch
	// for channels under development.
	AllowUnendorsed bool
}

func (p *Policy) allowedAlgs() []string {
	if len(p.AllowedAlgs) > 0 {
		return p.AllowedAlgs
	}
	return DefaultAllowedAlgs
}

func (p *Policy) leeway() time.Duration {
	if p.Leeway > 0 {
		return p.Leeway
	}
	return DefaultLeeway
}

func (p *Policy) acceptsIssuer(iss string) bool {
	for _, want := range p.Issuers {
		if iss == want {
			return true
		}
	}
	return false
}

// Validator verifies tokens against key material served by a shared
// keycache.Cache. Safe for concurrent use.
type Validator struct {
	keys *keycache.Cache
}

// New builds a Validator over the given key cache.
func New(keys *keycache.Cache) *Validator {
	return &Validator{keys: keys}
}

// Validate verifies rawToken under policy and returns its claims.
//
// channelID is the channel the inbound activity claims to originate from;
// when endorsement checking applies, the signing key must be endorsed for
// it. requiredEndorsements are additional endorsements the host demands
// regardless of channel. An empty channelID asserts nothing and is
// vacuously endorsed.
func (v *Validator) Validate(ctx context.Context, rawToken string, policy *Policy, channelID string, requiredEndorsements []string) (jwt.MapClaims, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}

	// Cheap pre-filter on the unverified issuer before any network or
	// crypto cost.
	unverified := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(rawToken, unverified); err != nil {
		return nil, fmt.Errorf("%w: malformed token: %v", ErrUnauthorized, err)
	}
	iss, _ := unverified["iss"].(string)
	if !policy.acceptsIssuer(iss) {
		return nil, fmt.Errorf("%w: issuer %q is not trusted", ErrUnauthorized, iss)
	}

	keySet, err := v.keys.Get(ctx, policy.MetadataURL)
	if err != nil {
		return nil, fmt.Errorf("fetch signing keys: %w", err)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(policy.allowedAlgs()),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(policy.leeway()),
	}
	if policy.Audience != "" {
		opts = append(opts, jwt.WithAudience(policy.Audience))
	}
	parsed, err := jwt.NewParser(opts...).Parse(rawToken, keySet.Keyfunc)
	if err != nil {
		return nil, fmt.Errorf("%w: token verification failed: %v", ErrUnauthorized, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims shape", ErrUnauthorized)
	}
	// The verified issuer is the same string the pre-filter saw, but check
	// the parsed value so policy enforcement never leans on unverified
	// state.
	if viss, _ := claims["iss"].(string); !policy.acceptsIssuer(viss) {
		return nil, fmt.Errorf("%w: issuer %q is not trusted", ErrUnauthorized, viss)
	}

	if policy.RequireEndorsements {
		if err := checkEndorsements(parsed, keySet, policy, channelID, requiredEndorsements); err != nil {
			return nil, err
		}
	}

	return claims, nil
}

func checkEndorsements(parsed *jwt.Token, keySet *keycache.KeySet, policy *Policy, channelID string, required []string) error {
	kid, _ := parsed.Header["kid"].(string)

	for _, endorsement := range required {
		if !keySet.EndorsedFor(kid, endorsement) {
			return fmt.Errorf("%w: signing key %q lacks required endorsement %q", ErrUnauthorized, kid, endorsement)
		}
	}

	if channelID == "" || policy.AllowUnendorsed {
		return nil
	}
	if !keySet.EndorsedFor(kid, channelID) {
		return fmt.Errorf("%w: signing key %q is not endorsed for channel %q", ErrUnauthorized, kid, channelID)
	}
	return nil
}
