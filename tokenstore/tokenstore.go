// Package tokenstore defines where acquired access tokens are cached
// between refreshes. The default in-process store suits a single bot
// instance; the redis store shares the cache across replicas so a scaled
// deployment does not multiply identity-provider traffic.
package tokenstore

import (
	"context"
	"time"
)

// Entry is one cached access token with its absolute expiry.
type Entry struct {
	AccessToken string    `json:"access_token"`
	ExpiresOn   time.Time `json:"expires_on"`
}

// Store persists token entries keyed by credential identity. A missing
// key is (nil, nil), not an error. Implementations must be safe for
// concurrent use and must never return an entry past its expiry.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Put(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
}
