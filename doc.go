// Package botauth implements the Bot Framework authentication subsystem:
// validation of inbound bearer tokens from channels, the emulator and
// skill callers, and acquisition of outbound client-credential tokens used
// to call back into channels and skills.
//
// The entry point is [BotFrameworkAuthentication], built for a cloud
// environment (public, US Government, or fully parameterized private) and
// a [CredentialFactory] supplying the bot's outbound credentials. Inbound
// requests flow through [BotFrameworkAuthentication.AuthenticateRequest],
// which yields a [ClaimsIdentity], the audience for outbound replies, and
// a caller-id label. Outbound calls obtain credentials through the
// credentials package, which caches and refreshes tokens with bounded
// concurrency and throttle-aware retries.
package botauth
