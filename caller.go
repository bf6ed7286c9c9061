package botauth

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Caller classification: pure, side-effect-free inspection of decoded (not
// yet cryptographically verified) token contents, used only to select
// which validation policy and metadata URL to apply before real
// verification occurs.

// bearerToken splits an Authorization header into its raw token, requiring
// exactly "Bearer <token>".
func bearerToken(authHeader string) (string, bool) {
	parts := strings.Split(strings.TrimSpace(authHeader), " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func decodeUnverified(authHeader string) (jwt.MapClaims, bool) {
	raw, ok := bearerToken(authHeader)
	if !ok {
		return nil, false
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, false
	}
	return claims, true
}

// IsSkillToken reports whether authHeader carries a bot-to-bot token: a
// well-formed bearer JWT whose claims identify a calling application
// distinct from the audience it targets.
func IsSkillToken(authHeader string) bool {
	claims, ok := decodeUnverified(authHeader)
	if !ok {
		return false
	}
	return isSkillShaped(claims)
}

// IsEmulatorToken reports whether authHeader carries a token minted by one
// of the known Azure AD STS tenants backing the Bot Framework Emulator.
func IsEmulatorToken(authHeader string) bool {
	claims, ok := decodeUnverified(authHeader)
	if !ok {
		return false
	}
	iss, _ := claims["iss"].(string)
	for _, known := range EmulatorTokenIssuers {
		if iss == known {
			return true
		}
	}
	return false
}

func isSkillShaped(claims jwt.MapClaims) bool {
	if _, hasVersion := claims[ClaimTypeVersion]; !hasVersion {
		return false
	}
	aud := firstAudience(claims)
	if aud == "" || aud == PublicChannelIssuer || aud == GovernmentChannelIssuer {
		// Channel tokens target the framework issuer, not another bot.
		return false
	}
	appID, err := appIDFromMapClaims(claims)
	if err != nil || appID == "" {
		return false
	}
	return appID != aud
}

// AppIDFromClaims extracts the caller's application id from a validated
// identity. The JWT version claim decides where it lives: absent or "1.0"
// reads the appid claim, "2.0" reads azp, anything else is rejected. For
// audience-only tokens minted by the Bot Framework issuer itself, the
// audience claim is the app id.
func AppIDFromClaims(identity *ClaimsIdentity) (string, error) {
	ver := identity.ClaimValue(ClaimTypeVersion)
	var appID string
	switch ver {
	case "", "1.0":
		appID = identity.ClaimValue(ClaimTypeAppID)
	case "2.0":
		appID = identity.ClaimValue(ClaimTypeAuthorizedParty)
	default:
		return "", fmt.Errorf("%w: unknown token version %q", ErrUnauthorized, ver)
	}
	if appID == "" && isFrameworkIssuer(identity.ClaimValue(ClaimTypeIssuer)) {
		appID = identity.ClaimValue(ClaimTypeAudience)
	}
	return appID, nil
}

// IsSkillClaims reports whether a validated identity belongs to a skill
// caller: a versioned token whose calling app id differs from the audience
// it targets.
func IsSkillClaims(identity *ClaimsIdentity) bool {
	if identity.ClaimValue(ClaimTypeVersion) == "" {
		return false
	}
	aud := identity.ClaimValue(ClaimTypeAudience)
	if aud == "" || aud == PublicChannelIssuer || aud == GovernmentChannelIssuer {
		return false
	}
	appID, err := AppIDFromClaims(identity)
	if err != nil || appID == "" {
		return false
	}
	return appID != aud
}

func appIDFromMapClaims(claims jwt.MapClaims) (string, error) {
	ver, _ := claims[ClaimTypeVersion].(string)
	var appID string
	switch ver {
	case "", "1.0":
		appID, _ = claims[ClaimTypeAppID].(string)
	case "2.0":
		appID, _ = claims[ClaimTypeAuthorizedParty].(string)
	default:
		return "", fmt.Errorf("%w: unknown token version %q", ErrUnauthorized, ver)
	}
	if appID == "" {
		if iss, _ := claims["iss"].(string); isFrameworkIssuer(iss) {
			appID = firstAudience(claims)
		}
	}
	return appID, nil
}

func isFrameworkIssuer(iss string) bool {
	return iss == PublicChannelIssuer || iss == GovernmentChannelIssuer
}

func firstAudience(claims jwt.MapClaims) string {
	switch aud := claims["aud"].(type) {
	case string:
		return aud
	case []any:
		for _, e := range aud {
			if s, ok := e.(string); ok {
				return s
			}
		}
	case []string:
		if len(aud) > 0 {
			return aud[0]
		}
	}
	return ""
}
