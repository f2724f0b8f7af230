package signature

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// OpenSSLSigner shells out to `openssl cms`. Every call works in its own scratch
// directory, removed on all exit paths.
type OpenSSLSigner struct {
	opensslPath string
	certPath    string
	keyPath     string
	tempDir     string
	timeout     time.Duration
}

// OpenSSLOption configures an OpenSSLSigner
type OpenSSLOption func(*OpenSSLSigner)

// WithOpenSSLPath overrides binary detection
func WithOpenSSLPath(path string) OpenSSLOption {
	return func(s *OpenSSLSigner) {
		if path != "" {
			s.opensslPath = path
		}
	}
}

// WithTempDir sets the parent directory for scratch directories
func WithTempDir(dir string) OpenSSLOption {
	return func(s *OpenSSLSigner) {
		s.tempDir = dir
	}
}

// WithSignTimeout bounds a single openssl invocation
func WithSignTimeout(d time.Duration) OpenSSLOption {
	return func(s *OpenSSLSigner) {
		s.timeout = d
	}
}

// NewOpenSSLSigner creates a signer using the openssl binary
func NewOpenSSLSigner(certPath, keyPath string, opts ...OpenSSLOption) (*OpenSSLSigner, error) {
	s := &OpenSSLSigner{
		certPath: certPath,
		keyPath:  keyPath,
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.opensslPath == "" {
		path, ok := detectOpenSSL()
		if !ok {
			return nil, ErrToolUnavailable("openssl")
		}
		s.opensslPath = path
	}
	return s, nil
}

// Sign writes payload to a scratch file, runs openssl cms and returns base64 DER
func (s *OpenSSLSigner) Sign(ctx context.Context, payload []byte) (string, error) {
	if _, err := os.Stat(s.certPath); err != nil {
		return "", ErrCertUnreadable(s.certPath, err)
	}
	if _, err := os.Stat(s.keyPath); err != nil {
		return "", ErrKeyUnreadable(s.keyPath, err)
	}

	dir, err := os.MkdirTemp(s.tempDir, "loginticket-*")
	if err != nil {
		return "", ErrSignFailed(fmt.Errorf("create scratch dir: %w", err))
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "request.xml")
	out := filepath.Join(dir, "request.cms")
	if err := os.WriteFile(in, payload, 0o600); err != nil {
		return "", ErrSignFailed(fmt.Errorf("write scratch file: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, s.opensslPath, "cms", "-sign",
		"-in", in,
		"-signer", s.certPath,
		"-inkey", s.keyPath,
		"-out", out,
		"-outform", "DER", "-nodetach",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", ErrSignFailed(fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String())))
	}

	der, err := os.ReadFile(out)
	if err != nil {
		return "", ErrSignFailed(fmt.Errorf("read signature: %w", err))
	}
	if len(der) == 0 {
		return "", ErrSignFailed(fmt.Errorf("openssl produced an empty signature"))
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// Name returns the signer kind
func (s *OpenSSLSigner) Name() string {
	return KindOpenSSL
}

// detectOpenSSL looks for openssl in common locations
func detectOpenSSL() (string, bool) {
	paths := []string{
		"openssl",
		"/usr/bin/openssl",
		"/opt/homebrew/bin/openssl",
		"/usr/local/bin/openssl",
	}

	for _, p := range paths {
		if path, err := exec.LookPath(p); err == nil {
			return path, true
		}
	}
	return "", false
}
