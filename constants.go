package botauth

// Channel-service selector values. An empty channel service selects the
// public Azure cloud; the government value selects Azure US Government;
// anything else requires a fully parameterized custom environment.
const (
	// ChannelServiceGovernment is the channel-service indicator for the
	// Azure US Government cloud.
	ChannelServiceGovernment = "https://botframework.azure.us"
)

// Token issuers and OAuth scopes per cloud. The scope strings are the
// issuer with a "/.default" suffix, as required by MSAL-style scope
// requests.
const (
	// PublicChannelIssuer is the `iss` value on tokens minted for public
	// Azure channels calling into a bot.
	PublicChannelIssuer = "https://api.botframework.com"

	// GovernmentChannelIssuer is the `iss` value on tokens minted for US
	// Government channels calling into a bot.
	GovernmentChannelIssuer = "https://api.botframework.us"

	// PublicOAuthScope is the outbound token scope for calling public
	// Azure channels.
	PublicOAuthScope = "https://api.botframework.com/.default"

	// GovernmentOAuthScope is the outbound token scope for calling US
	// Government channels.
	GovernmentOAuthScope = "https://api.botframework.us/.default"
)

// Login endpoints used for outbound client-credential exchanges.
const (
	PublicLoginEndpoint     = "https://login.microsoftonline.com/botframework.com"
	GovernmentLoginEndpoint = "https://login.microsoftonline.us/MicrosoftServices.onmicrosoft.us"
)

// OpenID metadata documents describing each cloud's signing keys.
const (
	// PublicOpenIDMetadataURL signs public channel tokens.
	PublicOpenIDMetadataURL = "https://login.botframework.com/v1/.well-known/openidconfiguration"

	// GovernmentOpenIDMetadataURL signs US Government channel tokens.
	GovernmentOpenIDMetadataURL = "https://login.botframework.azure.us/v1/.well-known/openidconfiguration"

	// PublicEmulatorOpenIDMetadataURL signs emulator and skill tokens
	// issued by Azure AD for the public cloud.
	PublicEmulatorOpenIDMetadataURL = "https://login.microsoftonline.com/common/v2.0/.well-known/openid-configuration"

	// GovernmentEmulatorOpenIDMetadataURL signs emulator and skill tokens
	// issued by Azure AD for the US Government cloud.
	GovernmentEmulatorOpenIDMetadataURL = "https://login.microsoftonline.us/cab8a31a-1906-4287-a0d8-4eef66b95f6e/v2.0/.well-known/openid-configuration"
)

// enterpriseChannelMetadataFormat locates the metadata document for a named
// enterprise channel deployment.
const enterpriseChannelMetadataFormat = "https://%s.enterprisechannel.botframework.com/v1/.well-known/openidconfiguration"

// Token service endpoints backing the user-token API per cloud.
const (
	PublicTokenServiceEndpoint     = "https://api.botframework.com"
	GovernmentTokenServiceEndpoint = "https://api.botframework.azure.us"
)

// Caller-id labels attached to authenticated requests.
const (
	// CallerIDPublicAzure labels requests from public Azure channels.
	CallerIDPublicAzure = "urn:botframework:azure"

	// CallerIDUSGov labels requests from US Government channels.
	CallerIDUSGov = "urn:botframework:azureusgov"

	// CallerIDBotPrefix prefixes the calling bot's app id on bot-to-bot
	// (skill) requests.
	CallerIDBotPrefix = "urn:botframework:aadappid:"
)

// Claim type names used by the authentication flow.
const (
	ClaimTypeAudience        = "aud"
	ClaimTypeIssuer          = "iss"
	ClaimTypeAppID           = "appid"
	ClaimTypeAuthorizedParty = "azp"
	ClaimTypeVersion         = "ver"
	ClaimTypeServiceURL      = "serviceurl"
	ClaimTypeTenantID        = "tid"
)

// AnonymousAuthType tags a ClaimsIdentity produced when authentication is
// administratively disabled. AnonymousSkillAppID stands in for the calling
// app id on anonymous skill-host requests so downstream audience logic
// still works.
const (
	AnonymousAuthType   = "anonymous"
	BearerAuthType      = "Bearer"
	AnonymousSkillAppID = "AnonymousSkill"
)

// DefaultChannelAuthTenant is the tenant used for outbound channel token
// requests when none is configured.
const DefaultChannelAuthTenant = "botframework.com"

// Cache-duration clamp bounds, in seconds, applied to any cache-info style
// response sourced from this subsystem.
const (
	MinimumCacheSeconds = 60
	MaximumCacheSeconds = 2592000
)

// AllowedSigningAlgorithms are the JWT signing algorithms accepted from
// every trusted issuer.
var AllowedSigningAlgorithms = []string{"RS256", "RS384", "RS512"}

// EmulatorTokenIssuers are the Azure AD STS issuers that mint emulator and
// skill tokens: public-cloud v1/v2 pairs plus the US Government tenant
// variants.
var EmulatorTokenIssuers = []string{
	"https://sts.windows.net/d6d49420-f39b-4df7-a1dc-d59a935871db/",
	"https://login.microsoftonline.com/d6d49420-f39b-4df7-a1dc-d59a935871db/v2.0",
	"https://sts.windows.net/f8cdef31-a31e-4b4a-93e4-5f571e91255a/",
	"https://login.microsoftonline.com/f8cdef31-a31e-4b4a-93e4-5f571e91255a/v2.0",
	"https://sts.windows.net/cab8a31a-1906-4287-a0d8-4eef66b95f6e/",
	"https://login.microsoftonline.us/cab8a31a-1906-4287-a0d8-4eef66b95f6e/v2.0",
	"https://login.microsoftonline.us/f8cdef31-a31e-4b4a-93e4-5f571e91255a/v2.0",
}
