package botauth

import (
	"fmt"
)

// CloudEnvironment is the full parameter set describing one Bot Framework
// cloud: which issuer signs inbound channel tokens, where key material
// lives, and how outbound tokens are scoped and acquired. PublicCloud and
// GovernmentCloud return the two well-known environments; private clouds
// supply every field explicitly.
type CloudEnvironment struct {
	// ChannelService is the indicator string selecting this cloud.
	ChannelService string

	// ChannelIssuer is the `iss` on inbound channel tokens.
	ChannelIssuer string

	// OAuthScope is the default outbound token scope for calling channels.
	OAuthScope string

	// LoginEndpoint is the authority for outbound client-credential
	// exchanges.
	LoginEndpoint string

	// ChannelOpenIDMetadataURL locates signing keys for channel tokens.
	ChannelOpenIDMetadataURL string

	// EmulatorOpenIDMetadataURL locates signing keys for emulator and
	// skill tokens.
	EmulatorOpenIDMetadataURL string

	// TokenServiceEndpoint is the base URL of the user-token service.
	TokenServiceEndpoint string

	// CallerID labels authenticated channel requests from this cloud.
	CallerID string

	// ValidateAuthority controls authority validation during outbound
	// exchanges.
	ValidateAuthority bool
}

// PublicCloud returns the environment for public Azure.
func PublicCloud() CloudEnvironment {
	return CloudEnvironment{
		ChannelService:            "",
		ChannelIssuer:             PublicChannelIssuer,
		OAuthScope:                PublicOAuthScope,
		LoginEndpoint:             PublicLoginEndpoint,
		ChannelOpenIDMetadataURL:  PublicOpenIDMetadataURL,
		EmulatorOpenIDMetadataURL: PublicEmulatorOpenIDMetadataURL,
		TokenServiceEndpoint:      PublicTokenServiceEndpoint,
		CallerID:                  CallerIDPublicAzure,
		ValidateAuthority:         true,
	}
}

// GovernmentCloud returns the environment for Azure US Government.
func GovernmentCloud() CloudEnvironment {
	return CloudEnvironment{
		ChannelService:            ChannelServiceGovernment,
		ChannelIssuer:             GovernmentChannelIssuer,
		OAuthScope:                GovernmentOAuthScope,
		LoginEndpoint:             GovernmentLoginEndpoint,
		ChannelOpenIDMetadataURL:  GovernmentOpenIDMetadataURL,
		EmulatorOpenIDMetadataURL: GovernmentEmulatorOpenIDMetadataURL,
		TokenServiceEndpoint:      GovernmentTokenServiceEndpoint,
		CallerID:                  CallerIDUSGov,
		ValidateAuthority:         true,
	}
}

// EnterpriseCloud returns the environment for a named enterprise channel
// deployment: public-cloud trust with key material served from the
// deployment's own endpoint.
func EnterpriseCloud(channelService string) CloudEnvironment {
	env := PublicCloud()
	env.ChannelService = channelService
	env.ChannelOpenIDMetadataURL = fmt.Sprintf(enterpriseChannelMetadataFormat, channelService)
	return env
}

// CloudForChannelService maps a channel-service indicator to its
// environment. Empty selects public Azure and the government indicator
// selects US Government; any other value needs a fully parameterized
// CloudEnvironment and is a configuration error here.
func CloudForChannelService(channelService string) (CloudEnvironment, error) {
	switch channelService {
	case "":
		return PublicCloud(), nil
	case ChannelServiceGovernment:
		return GovernmentCloud(), nil
	default:
		return CloudEnvironment{}, fmt.Errorf("%w: unknown channel service %q; supply a full CloudEnvironment", ErrConfiguration, channelService)
	}
}

// Validate checks that every field a custom environment requires is set.
func (e CloudEnvironment) Validate() error {
	missing := ""
	switch {
	case e.ChannelIssuer == "":
		missing = "ChannelIssuer"
	case e.OAuthScope == "":
		missing = "OAuthScope"
	case e.LoginEndpoint == "":
		missing = "LoginEndpoint"
	case e.ChannelOpenIDMetadataURL == "":
		missing = "ChannelOpenIDMetadataURL"
	case e.EmulatorOpenIDMetadataURL == "":
		missing = "EmulatorOpenIDMetadataURL"
	}
	if missing != "" {
		return fmt.Errorf("%w: cloud environment missing %s", ErrConfiguration, missing)
	}
	return nil
}
