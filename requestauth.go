package botauth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/botfx/botauth/internal/jwtauth"
	"github.com/botfx/botauth/internal/logctx"
)

// AuthenticateRequestResult is the terminal state of a successfully
// authenticated request: who called, which audience outbound replies must
// use, the caller-id label, and a connector factory bound to the caller.
type AuthenticateRequestResult struct {
	ClaimsIdentity   *ClaimsIdentity
	Audience         string
	CallerID         string
	ConnectorFactory *ConnectorFactory
}

// RequestAuthenticator authenticates inbound requests for one cloud
// environment. It classifies the caller, runs the parameterized token
// validator with the matching policy, applies the host's claims validator,
// and computes the outbound audience and caller id. Safe for concurrent
// use.
type RequestAuthenticator struct {
	env   CloudEnvironment
	creds CredentialFactory

	validator            *jwtauth.Validator
	channelPolicy        *jwtauth.Policy
	emulatorPolicy       *jwtauth.Policy
	claimsValidator      ClaimsValidator
	requiredEndorsements []string
}

func newRequestAuthenticator(env CloudEnvironment, creds CredentialFactory, validator *jwtauth.Validator, o *options) *RequestAuthenticator {
	return &RequestAuthenticator{
		env:   env,
		creds: creds,

		validator: validator,
		channelPolicy: &jwtauth.Policy{
			Issuers:             []string{env.ChannelIssuer},
			MetadataURL:         env.ChannelOpenIDMetadataURL,
			RequireEndorsements: true,
			AllowUnendorsed:     o.allowUnendorsed,
		},
		emulatorPolicy: &jwtauth.Policy{
			Issuers:     EmulatorTokenIssuers,
			MetadataURL: env.EmulatorOpenIDMetadataURL,
		},
		claimsValidator:      o.claimsValidator,
		requiredEndorsements: o.requiredEndorsements,
	}
}

// Authenticate validates the Authorization header of an inbound activity.
// A missing header is accepted only when authentication is
// administratively disabled; a token whose serviceurl claim disagrees with
// the activity's service URL is rejected regardless of signature validity.
func (a *RequestAuthenticator) Authenticate(ctx context.Context, activity *Activity, authHeader string) (*AuthenticateRequestResult, error) {
	var channelID, serviceURL string
	if activity != nil {
		channelID = activity.ChannelID
		serviceURL = activity.ServiceURL
	}
	ctx = logctx.WithAuthData(ctx, &logctx.AuthData{ChannelID: channelID})

	if strings.TrimSpace(authHeader) == "" {
		return a.authenticateAnonymous(ctx, activity)
	}

	res, err := a.authenticateToken(ctx, authHeader, channelID)
	if err != nil {
		return nil, err
	}

	if serviceURL != "" {
		if claimed := res.ClaimsIdentity.ClaimValue(ClaimTypeServiceURL); claimed != "" && claimed != serviceURL {
			slog.DebugContext(ctx, "service url claim mismatch",
				slog.String("claimed", claimed),
				slog.String("activity", serviceURL))
			return nil, fmt.Errorf("%w: token service url %q does not match activity service url %q", ErrUnauthorized, claimed, serviceURL)
		}
	}
	return res, nil
}

// AuthenticateStreaming validates the Authorization header of a streaming
// connection, where the channel id arrives in its own header and there is
// no activity to cross-check a service URL against.
func (a *RequestAuthenticator) AuthenticateStreaming(ctx context.Context, authHeader, channelIDHeader string) (*AuthenticateRequestResult, error) {
	ctx = logctx.WithAuthData(ctx, &logctx.AuthData{ChannelID: channelIDHeader})
	if strings.TrimSpace(authHeader) == "" {
		return a.authenticateAnonymous(ctx, nil)
	}
	return a.authenticateToken(ctx, authHeader, channelIDHeader)
}

func (a *RequestAuthenticator) authenticateAnonymous(ctx context.Context, activity *Activity) (*AuthenticateRequestResult, error) {
	disabled, err := a.creds.IsAuthenticationDisabled(ctx)
	if err != nil {
		return nil, fmt.Errorf("check authentication disabled: %w", err)
	}
	if !disabled {
		return nil, fmt.Errorf("%w: authorization header required", ErrUnauthorized)
	}

	// Skill-host calls still get a synthetic skill claim so downstream
	// audience selection works without real credentials.
	audience := a.env.OAuthScope
	var claims []Claim
	if activity != nil && activity.RecipientRole == RoleSkill {
		claims = append(claims, Claim{Type: ClaimTypeAppID, Value: AnonymousSkillAppID})
		audience = AnonymousSkillAppID
	}

	slog.DebugContext(ctx, "authentication disabled; accepting anonymous caller")
	return &AuthenticateRequestResult{
		ClaimsIdentity: NewAnonymousIdentity(claims...),
		Audience:       audience,
	}, nil
}

func (a *RequestAuthenticator) authenticateToken(ctx context.Context, authHeader, channelID string) (*AuthenticateRequestResult, error) {
	raw, ok := bearerToken(authHeader)
	if !ok {
		return nil, fmt.Errorf("%w: malformed authorization header", ErrUnauthorized)
	}

	policy := a.channelPolicy
	callerKind := "channel"
	if IsSkillToken(authHeader) {
		policy = a.emulatorPolicy
		callerKind = "skill"
	} else if IsEmulatorToken(authHeader) {
		policy = a.emulatorPolicy
		callerKind = "emulator"
	}
	ctx = logctx.WithAuthData(ctx, &logctx.AuthData{ChannelID: channelID, CallerKind: callerKind})

	claims, err := a.validator.Validate(ctx, raw, policy, channelID, a.requiredEndorsements)
	if err != nil {
		slog.DebugContext(ctx, "token validation failed", slog.String("err", err.Error()))
		return nil, err
	}
	identity := IdentityFromJWTClaims(claims)

	// The version rule applies to every caller kind, not only skills: a
	// token carrying an unrecognized version claim is rejected outright
	// even when its signature and issuer check out.
	callerAppID, err := AppIDFromClaims(identity)
	if err != nil {
		return nil, err
	}

	// Channel and emulator paths carry no audience in the policy; the
	// audience must be this bot's registered app id.
	aud := identity.ClaimValue(ClaimTypeAudience)
	valid, err := a.creds.IsValidAppID(ctx, aud)
	if err != nil {
		return nil, fmt.Errorf("check app id: %w", err)
	}
	if !valid {
		return nil, fmt.Errorf("%w: token audience %q is not the configured app id", ErrUnauthorized, aud)
	}

	isSkill := IsSkillClaims(identity)
	if isSkill && a.claimsValidator == nil {
		return nil, fmt.Errorf("%w: skill callers require a configured claims validator", ErrUnauthorized)
	}
	if a.claimsValidator != nil {
		if err := a.claimsValidator(ctx, identity); err != nil {
			return nil, fmt.Errorf("%w: claims validator rejected caller: %v", ErrUnauthorized, err)
		}
	}

	audience := a.env.OAuthScope
	callerID := a.env.CallerID
	if isSkill {
		// Replies to a skill are scoped to the calling skill itself.
		audience = callerAppID
		callerID = CallerIDBotPrefix + callerAppID
		ctx = logctx.WithAuthData(ctx, &logctx.AuthData{ChannelID: channelID, CallerKind: callerKind, AppID: callerAppID})
	}

	slog.DebugContext(ctx, "request authenticated", slog.String("caller_id", callerID))
	return &AuthenticateRequestResult{
		ClaimsIdentity: identity,
		Audience:       audience,
		CallerID:       callerID,
	}, nil
}
