// Package keycache caches signing-key material per OpenID metadata URL.
//
// Bot Framework metadata documents do not live at an issuer-derived
// well-known path (for example the public channel document is served from
// login.botframework.com while tokens are issued by api.botframework.com),
// so the cache fetches the document directly rather than going through an
// issuer-based discovery client. The JWKS it points at carries a
// non-standard per-key "endorsements" array naming the channels authorized
// to sign with that key; the cache surfaces those alongside the keys.
package keycache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	keyfunc "github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is how long a fetched key set is served before a refresh is
// attempted. Key rotations overlap by design, so this is deliberately long.
const DefaultTTL = 24 * time.Hour

// KeySet is an immutable snapshot of the key material behind one metadata
// URL. It is shared by concurrent readers and replaced wholesale on refresh.
type KeySet struct {
	// Keyfunc resolves a parsed token's kid to its public key.
	Keyfunc jwt.Keyfunc

	// Endorsements maps key id to the channel ids authorized to sign with
	// that key.
	Endorsements map[string][]string

	fetchedAt time.Time
}

// EndorsedFor reports whether the key identified by kid is endorsed for
// channelID.
func (ks *KeySet) EndorsedFor(kid, channelID string) bool {
	for _, ch := range ks.Endorsements[kid] {
		if ch == channelID {
			return true
		}
	}
	return false
}

// Config controls cache construction.
type Config struct {
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// TTL defaults to DefaultTTL.
	TTL time.Duration
}

// Cache holds one KeySet per metadata URL. Refreshes are single-flight per
// URL: a burst of validations during a rotation triggers one fetch, and
// every other reader is served the previous snapshot until the new one is
// published.
type Cache struct {
	client *http.Client
	ttl    time.Duration

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	fetchMu sync.Mutex
	snap    atomic.Pointer[KeySet]
}

// New builds a Cache.
func New(cfg Config) *Cache {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		client:  client,
		ttl:     ttl,
		entries: make(map[string]*entry),
	}
}

// Get returns the current key set for metadataURL, fetching or refreshing
// it as needed. A failed refresh serves the stale snapshot; a failed first
// fetch is a hard error so callers fail closed.
func (c *Cache) Get(ctx context.Context, metadataURL string) (*KeySet, error) {
	e := c.entry(metadataURL)

	if ks := e.snap.Load(); ks != nil && time.Since(ks.fetchedAt) < c.ttl {
		return ks, nil
	}

	e.fetchMu.Lock()
	defer e.fetchMu.Unlock()

	// Another caller may have refreshed while we waited on the lock.
	if ks := e.snap.Load(); ks != nil && time.Since(ks.fetchedAt) < c.ttl {
		return ks, nil
	}

	ks, err := c.fetch(ctx, metadataURL)
	if err != nil {
		if stale := e.snap.Load(); stale != nil {
			slog.WarnContext(ctx, "signing key refresh failed; serving stale key set",
				slog.String("metadata_url", metadataURL),
				slog.String("err", err.Error()))
			return stale, nil
		}
		return nil, err
	}

	e.snap.Store(ks)
	return ks, nil
}

func (c *Cache) entry(metadataURL string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[metadataURL]
	if !ok {
		e = &entry{}
		c.entries[metadataURL] = e
	}
	return e
}

func (c *Cache) fetch(ctx context.Context, metadataURL string) (*KeySet, error) {
	var meta struct {
		Issuer  string `json:"issuer"`
		JwksURI string `json:"jwks_uri"`
	}
	if err := c.getJSON(ctx, metadataURL, &meta); err != nil {
		return nil, fmt.Errorf("fetch openid metadata: %w", err)
	}
	if meta.JwksURI == "" {
		return nil, fmt.Errorf("openid metadata at %s has no jwks_uri", metadataURL)
	}

	raw, err := c.getRaw(ctx, meta.JwksURI)
	if err != nil {
		return nil, fmt.Errorf("fetch jwks: %w", err)
	}

	kf, err := keyfunc.NewJWKSetJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("parse jwks: %w", err)
	}

	// Endorsements are a Bot Framework extension the JWK parser drops, so
	// they come from a second pass over the same document.
	var doc struct {
		Keys []struct {
			Kid          string   `json:"kid"`
			Endorsements []string `json:"endorsements"`
		} `json:"keys"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse jwks endorsements: %w", err)
	}
	endorsements := make(map[string][]string, len(doc.Keys))
	for _, k := range doc.Keys {
		if k.Kid != "" && len(k.Endorsements) > 0 {
			endorsements[k.Kid] = k.Endorsements
		}
	}

	return &KeySet{
		Keyfunc:      kf.Keyfunc,
		Endorsements: endorsements,
		fetchedAt:    time.Now(),
	}, nil
}

func (c *Cache) getJSON(ctx context.Context, url string, ref any) error {
	raw, err := c.getRaw(ctx, url)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, ref)
}

func (c *Cache) getRaw(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
