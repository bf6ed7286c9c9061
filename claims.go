package botauth

import (
	"sort"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// Claim is a single (type, value, issuer) triple from a validated token.
type Claim struct {
	Type   string
	Value  string
	Issuer string
}

// ClaimsIdentity is the outcome of successful token validation: an ordered
// claim set plus the authentication type that produced it. Immutable after
// construction; safe for concurrent reads.
//
// Collaborators outside this package consume it purely as an opaque "who
// is calling" token and never re-validate it.
type ClaimsIdentity struct {
	claims        []Claim
	authType      string
	authenticated bool
}

// NewClaimsIdentity builds an authenticated identity from claims.
func NewClaimsIdentity(claims []Claim) *ClaimsIdentity {
	return &ClaimsIdentity{
		claims:        append([]Claim(nil), claims...),
		authType:      BearerAuthType,
		authenticated: true,
	}
}

// NewAnonymousIdentity builds the identity used when authentication is
// administratively disabled. It is authenticated in the formal sense but
// tagged with the anonymous authentication type so callers can tell the
// difference.
func NewAnonymousIdentity(claims ...Claim) *ClaimsIdentity {
	return &ClaimsIdentity{
		claims:        append([]Claim(nil), claims...),
		authType:      AnonymousAuthType,
		authenticated: true,
	}
}

// IsAuthenticated reports whether validation succeeded for this identity.
func (ci *ClaimsIdentity) IsAuthenticated() bool { return ci.authenticated }

// AuthenticationType returns the mechanism that produced this identity,
// BearerAuthType or AnonymousAuthType.
func (ci *ClaimsIdentity) AuthenticationType() string { return ci.authType }

// Claims returns a copy of the ordered claim set.
func (ci *ClaimsIdentity) Claims() []Claim {
	return append([]Claim(nil), ci.claims...)
}

// ClaimValue returns the first claim of the given type, or "".
func (ci *ClaimsIdentity) ClaimValue(claimType string) string {
	for _, c := range ci.claims {
		if c.Type == claimType {
			return c.Value
		}
	}
	return ""
}

// IdentityFromJWTClaims converts a verified claim map into a
// ClaimsIdentity. Map iteration order is not stable, so claims are ordered
// by type; multi-valued claims (audience lists) keep their array order.
func IdentityFromJWTClaims(m jwt.MapClaims) *ClaimsIdentity {
	issuer, _ := m["iss"].(string)

	types := make([]string, 0, len(m))
	for t := range m {
		types = append(types, t)
	}
	sort.Strings(types)

	claims := make([]Claim, 0, len(m))
	for _, t := range types {
		for _, v := range claimStrings(m[t]) {
			claims = append(claims, Claim{Type: t, Value: v, Issuer: issuer})
		}
	}
	return NewClaimsIdentity(claims)
}

func claimStrings(v any) []string {
	switch val := v.(type) {
	case string:
		return []string{val}
	case bool:
		return []string{strconv.FormatBool(val)}
	case float64:
		return []string{strconv.FormatFloat(val, 'f', -1, 64)}
	case []any:
		out := make([]string, 0, len(val))
		for _, e := range val {
			out = append(out, claimStrings(e)...)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return nil
	}
}
