package signature

import (
	"context"
	"fmt"
)

// Signer kinds
const (
	KindCMS     = "cms"
	KindOpenSSL = "openssl"
)

// Signer produces the base64 CMS SignedData (content attached) that loginCms expects
type Signer interface {
	// Sign signs payload and returns the base64 DER encoding
	Sign(ctx context.Context, payload []byte) (string, error)

	// Name returns the signer kind
	Name() string
}

// Options selects and configures a signer
type Options struct {
	Kind           string
	CertPath       string
	KeyPath        string
	PKCS12Path     string
	PKCS12Password string
	OpenSSLPath    string
}

// NewSigner builds the signer described by opts
func NewSigner(opts Options) (Signer, error) {
	switch opts.Kind {
	case "", KindCMS:
		var (
			creds *Credentials
			err   error
		)
		if opts.PKCS12Path != "" {
			creds, err = LoadPKCS12(opts.PKCS12Path, opts.PKCS12Password)
		} else {
			creds, err = LoadPEM(opts.CertPath, opts.KeyPath)
		}
		if err != nil {
			return nil, err
		}
		return NewCMSSigner(creds), nil
	case KindOpenSSL:
		return NewOpenSSLSigner(opts.CertPath, opts.KeyPath, WithOpenSSLPath(opts.OpenSSLPath))
	default:
		return nil, fmt.Errorf("unknown signer kind %q", opts.Kind)
	}
}

// Describe returns the certificate subject for signers holding loaded
// credentials, nil for signers that only know file paths
func Describe(s Signer) *CertificateInfo {
	src, ok := s.(interface{ Credentials() *Credentials })
	if !ok || src.Credentials() == nil {
		return nil
	}
	return src.Credentials().Info()
}
