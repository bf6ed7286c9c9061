package botauth

import (
	"errors"

	"github.com/botfx/botauth/internal/jwtauth"
)

// ErrUnauthorized indicates the caller's credentials failed validation:
// bad or missing signature, untrusted issuer, disallowed algorithm, failed
// endorsement check, service-url mismatch, or an unrecognized token
// version. Authentication failures are terminal for the request; they are
// never retried.
var ErrUnauthorized = jwtauth.ErrUnauthorized

// ErrConfiguration indicates a programming or deployment error, such as a
// credential factory asked for an app id it was not configured with, or a
// channel-service value matching no known cloud. It is fatal at
// construction or first use and never retried.
var ErrConfiguration = errors.New("botauth: invalid configuration")
