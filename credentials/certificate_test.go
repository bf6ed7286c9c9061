package credentials

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/botfx/botauth"
)

func writeKeyPair(t *testing.T, dir string, cert *x509.Certificate, key *rsa.PrivateKey) (string, string) {
	t.Helper()
	certPath := filepath.Join(dir, "bot.crt")
	keyPath := filepath.Join(dir, "bot.key")

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})

	if err := os.WriteFile(certPath, certPEM, 0o600); err != nil {
		t.Fatalf("write cert: %v", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	return certPath, keyPath
}

func TestNewCertSourceFromFiles(t *testing.T) {
	cert, key := selfSignedCert(t)
	certPath, keyPath := writeKeyPair(t, t.TempDir(), cert, key)

	source, err := newCertSourceFromFiles(certPath, keyPath)
	if err != nil {
		t.Fatalf("newCertSourceFromFiles: %v", err)
	}
	defer source.Close()

	got, _ := source.current()
	if !got.Equal(cert) {
		t.Fatal("loaded certificate differs from the one on disk")
	}
}

func TestNewCertSourceFromFilesMissing(t *testing.T) {
	dir := t.TempDir()
	_, err := newCertSourceFromFiles(filepath.Join(dir, "nope.crt"), filepath.Join(dir, "nope.key"))
	if !errors.Is(err, botauth.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}

func TestCertSourceReloadOnRotation(t *testing.T) {
	dir := t.TempDir()
	cert, key := selfSignedCert(t)
	certPath, keyPath := writeKeyPair(t, dir, cert, key)

	source, err := newCertSourceFromFiles(certPath, keyPath)
	if err != nil {
		t.Fatalf("newCertSourceFromFiles: %v", err)
	}
	defer source.Close()
	if err := source.watch(); err != nil {
		t.Fatalf("watch: %v", err)
	}

	rotated, rotatedKey := selfSignedCert(t)
	writeKeyPair(t, dir, rotated, rotatedKey)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, _ := source.current()
		if got.Equal(rotated) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("rotated certificate was not picked up")
}

func TestWatchRequiresFileBackedSource(t *testing.T) {
	cert, key := selfSignedCert(t)
	source := newCertSource(cert, key)
	if err := source.watch(); !errors.Is(err, botauth.ErrConfiguration) {
		t.Fatalf("err = %v, want ErrConfiguration", err)
	}
}
