package botauth

import (
	"github.com/joeshaw/envdecode"
)

// Settings is the deployable configuration for a bot's authentication.
// Defaults can be loaded from the environment via SettingsFromEnv.
type Settings struct {
	// AppID is the bot's registered application id. ENV: BOT_APP_ID
	AppID string `env:"BOT_APP_ID"`

	// AppPassword is the shared secret for the shared-secret credential
	// strategy. ENV: BOT_APP_PASSWORD
	AppPassword string `env:"BOT_APP_PASSWORD"`

	// TenantID optionally pins outbound exchanges to a tenant.
	// ENV: BOT_APP_TENANT_ID
	TenantID string `env:"BOT_APP_TENANT_ID"`

	// ChannelService selects the cloud. ENV: BOT_CHANNEL_SERVICE
	ChannelService string `env:"BOT_CHANNEL_SERVICE"`

	// OpenIDMetadataURL overrides the emulator/skill metadata document,
	// mainly for private-cloud testing. ENV: BOT_OPEN_ID_METADATA
	OpenIDMetadataURL string `env:"BOT_OPEN_ID_METADATA"`

	// ValidateAuthority controls authority validation on outbound
	// exchanges. ENV: BOT_VALIDATE_AUTHORITY
	ValidateAuthority bool `env:"BOT_VALIDATE_AUTHORITY,default=true"`
}

// SettingsFromEnv loads Settings using envdecode; unset variables leave
// zero values in place.
func SettingsFromEnv() Settings {
	var s Settings
	_ = envdecode.Decode(&s)
	return s
}

// CloudEnvironment resolves the settings to a cloud environment, applying
// any metadata override.
func (s Settings) CloudEnvironment() (CloudEnvironment, error) {
	env, err := CloudForChannelService(s.ChannelService)
	if err != nil {
		return CloudEnvironment{}, err
	}
	if s.OpenIDMetadataURL != "" {
		env.EmulatorOpenIDMetadataURL = s.OpenIDMetadataURL
	}
	env.ValidateAuthority = s.ValidateAuthority
	return env, nil
}
