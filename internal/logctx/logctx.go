// Package logctx carries request-scoped authentication data through
// context and surfaces it on every slog record emitted underneath, so a
// single handler wrap makes all auth logs attributable to a channel and
// caller without threading loggers through call sites.
package logctx

import (
	"context"
	"log/slog"
)

// Handler decorates records with any auth data present on the context.
// Wrap the application's base handler once at setup.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if ad, ok := ctx.Value(authDataKey{}).(*AuthData); ok {
		attrs := []any{slog.String("channel_id", ad.ChannelID)}
		if ad.CallerKind != "" {
			attrs = append(attrs, slog.String("caller_kind", ad.CallerKind))
		}
		if ad.AppID != "" {
			attrs = append(attrs, slog.String("app_id", ad.AppID))
		}
		r.AddAttrs(slog.Group("auth", attrs...))
	}
	return h.Handler.Handle(ctx, r)
}

type authDataKey struct{}

// AuthData describes the caller being authenticated.
type AuthData struct {
	ChannelID  string
	CallerKind string
	AppID      string
}

// WithAuthData attaches data to ctx, replacing any previous value.
func WithAuthData(ctx context.Context, data *AuthData) context.Context {
	return context.WithValue(ctx, authDataKey{}, data)
}
