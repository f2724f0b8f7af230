package signature

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/smallstep/pkcs7"
)

// CMSSigner signs in-process, equivalent to `openssl cms -sign -nodetach -outform DER`
type CMSSigner struct {
	creds *Credentials
	now   func() time.Time
}

// NewCMSSigner creates a signer over already loaded credentials
func NewCMSSigner(creds *Credentials) *CMSSigner {
	return &CMSSigner{creds: creds, now: time.Now}
}

// Sign builds a SignedData with the payload attached and returns it base64 encoded
func (s *CMSSigner) Sign(ctx context.Context, payload []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", ErrSignFailed(err)
	}
	if err := s.creds.Check(s.now()); err != nil {
		return "", err
	}

	sd, err := pkcs7.NewSignedData(payload)
	if err != nil {
		return "", ErrSignFailed(err)
	}
	sd.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA256)

	if err := sd.AddSigner(s.creds.Certificate, s.creds.Key, pkcs7.SignerInfoConfig{}); err != nil {
		return "", ErrSignFailed(err)
	}
	for _, c := range s.creds.Chain {
		sd.AddCertificate(c)
	}

	der, err := sd.Finish()
	if err != nil {
		return "", ErrSignFailed(err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// Name returns the signer kind
func (s *CMSSigner) Name() string {
	return KindCMS
}

// Credentials returns the loaded credentials
func (s *CMSSigner) Credentials() *Credentials {
	return s.creds
}
