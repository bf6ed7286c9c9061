package credentials

import (
	"context"
	"crypto"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	jose "github.com/go-jose/go-jose/v4"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/botfx/botauth"
)

const assertionLifetime = 5 * time.Minute

// certSource holds the current certificate and key for assertion signing.
// With a file-backed source and watching enabled, rotation on disk is
// picked up without restarting the process.
type certSource struct {
	mu   sync.RWMutex
	cert *x509.Certificate
	key  crypto.Signer

	certPath string
	keyPath  string
	watcher  *fsnotify.Watcher
	done     chan struct{}
}

func newCertSource(cert *x509.Certificate, key crypto.Signer) *certSource {
	return &certSource{cert: cert, key: key}
}

// newCertSourceFromFiles loads a PEM certificate/key pair from disk.
func newCertSourceFromFiles(certPath, keyPath string) (*certSource, error) {
	cert, key, err := loadKeyPair(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	return &certSource{cert: cert, key: key, certPath: certPath, keyPath: keyPath}, nil
}

func loadKeyPair(certPath, keyPath string) (*x509.Certificate, crypto.Signer, error) {
	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: load key pair: %v", botauth.ErrConfiguration, err)
	}
	cert, err := x509.ParseCertificate(pair.Certificate[0])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: parse certificate: %v", botauth.ErrConfiguration, err)
	}
	signer, ok := pair.PrivateKey.(crypto.Signer)
	if !ok {
		return nil, nil, fmt.Errorf("%w: private key does not implement crypto.Signer", botauth.ErrConfiguration)
	}
	return cert, signer, nil
}

func (s *certSource) current() (*x509.Certificate, crypto.Signer) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cert, s.key
}

// watch reloads the pair when either file changes. Certificate rotation
// typically replaces files via rename, so the parent directories are
// watched rather than the files themselves.
func (s *certSource) watch() error {
	if s.certPath == "" {
		return fmt.Errorf("%w: certificate reload requires file-backed credentials", botauth.ErrConfiguration)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start certificate watcher: %w", err)
	}
	dirs := map[string]struct{}{
		filepath.Dir(s.certPath): {},
		filepath.Dir(s.keyPath):  {},
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	s.watcher = w
	s.done = make(chan struct{})

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != s.certPath && ev.Name != s.keyPath {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				cert, key, err := loadKeyPair(s.certPath, s.keyPath)
				if err != nil {
					// Rotation writes the two files one after the other;
					// a torn read resolves on the next event.
					slog.Debug("certificate reload skipped", slog.String("err", err.Error()))
					continue
				}
				s.mu.Lock()
				s.cert, s.key = cert, key
				s.mu.Unlock()
				slog.Info("certificate credentials reloaded", slog.String("path", s.certPath))
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			case <-s.done:
				return
			}
		}
	}()
	return nil
}

func (s *certSource) Close() error {
	if s.watcher == nil {
		return nil
	}
	close(s.done)
	return s.watcher.Close()
}

// certificateExchanger signs a client assertion with the bot's
// certificate and exchanges it for a token.
type certificateExchanger struct {
	appID      string
	tokenURL   string
	scopes     []string
	source     *certSource
	sendX5C    bool
	httpClient *http.Client
}

func (e *certificateExchanger) exchange(ctx context.Context) (botauth.Token, error) {
	assertion, err := e.signAssertion()
	if err != nil {
		return botauth.Token{}, err
	}
	cfg := &clientcredentials.Config{
		ClientID: e.appID,
		TokenURL: e.tokenURL,
		Scopes:   e.scopes,
		EndpointParams: url.Values{
			"client_assertion_type": {clientAssertionType},
			"client_assertion":      {assertion},
		},
		AuthStyle: oauth2.AuthStyleInParams,
	}
	return exchangeClientCredentials(ctx, cfg, e.httpClient)
}

func (e *certificateExchanger) signAssertion() (string, error) {
	cert, key := e.source.current()

	thumb := sha1.Sum(cert.Raw)
	headers := map[jose.HeaderKey]any{
		jose.HeaderType: "JWT",
		"x5t":           base64.RawURLEncoding.EncodeToString(thumb[:]),
	}
	if e.sendX5C {
		// Sending the full chain enables subject-name/issuer-based
		// trusted-certificate rollover on the provider side.
		headers["x5c"] = []string{base64.StdEncoding.EncodeToString(cert.Raw)}
	}

	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.RS256, Key: key},
		(&jose.SignerOptions{ExtraHeaders: headers}),
	)
	if err != nil {
		return "", fmt.Errorf("build assertion signer: %w", err)
	}

	now := time.Now()
	payload, err := json.Marshal(map[string]any{
		"aud": e.tokenURL,
		"iss": e.appID,
		"sub": e.appID,
		"jti": uuid.NewString(),
		"nbf": now.Unix(),
		"iat": now.Unix(),
		"exp": now.Add(assertionLifetime).Unix(),
	})
	if err != nil {
		return "", err
	}
	jws, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("sign client assertion: %w", err)
	}
	return jws.CompactSerialize()
}
