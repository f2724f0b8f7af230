package signature

import (
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"software.sslmate.com/src/go-pkcs12"
)

// Credentials holds the taxpayer certificate registered with the authority and its key
type Credentials struct {
	Certificate *x509.Certificate
	Chain       []*x509.Certificate
	Key         crypto.Signer
}

// CertificateInfo contains certificate subject information
type CertificateInfo struct {
	// Common name (CN)
	Name string `json:"name"`

	// Organization (O)
	Organization string `json:"organization,omitempty"`

	// Subject serialNumber attribute, "CUIT nnnnnnnnnnn" on authority-issued certificates
	SubjectSerial string `json:"subject_serial,omitempty"`

	// Certificate serial number
	SerialNumber string `json:"serial_number"`

	// Issuer common name
	Issuer string `json:"issuer"`

	// Certificate validity period
	ValidFrom time.Time `json:"valid_from"`
	ValidTo   time.Time `json:"valid_to"`
}

// LoadPEM loads a PEM certificate (optionally followed by its chain) and a PEM private key
func LoadPEM(certPath, keyPath string) (*Credentials, error) {
	certData, err := os.ReadFile(certPath)
	if err != nil {
		return nil, ErrCertUnreadable(certPath, err)
	}

	var certs []*x509.Certificate
	for rest := certData; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, ErrCertUnreadable(certPath, err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, ErrCertUnreadable(certPath, errors.New("no CERTIFICATE block found"))
	}

	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, ErrKeyUnreadable(keyPath, err)
	}
	key, err := parsePrivateKey(keyData)
	if err != nil {
		return nil, ErrKeyUnreadable(keyPath, err)
	}

	creds := &Credentials{Certificate: certs[0], Chain: certs[1:], Key: key}
	if err := creds.checkKeyPair(); err != nil {
		return nil, err
	}
	return creds, nil
}

// LoadPKCS12 loads credentials from a .p12/.pfx bundle
func LoadPKCS12(path, password string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ErrCertUnreadable(path, err)
	}

	key, cert, chain, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return nil, ErrCertUnreadable(path, err)
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, ErrKeyUnreadable(path, fmt.Errorf("unsupported key type %T", key))
	}

	creds := &Credentials{Certificate: cert, Chain: chain, Key: signer}
	if err := creds.checkKeyPair(); err != nil {
		return nil, err
	}
	return creds, nil
}

func parsePrivateKey(data []byte) (crypto.Signer, error) {
	for rest := data; ; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, errors.New("no private key block found")
		}

		var (
			key interface{}
			err error
		)
		switch block.Type {
		case "PRIVATE KEY":
			key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
		case "RSA PRIVATE KEY":
			key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
		case "EC PRIVATE KEY":
			key, err = x509.ParseECPrivateKey(block.Bytes)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}

		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("unsupported key type %T", key)
		}
		return signer, nil
	}
}

func (c *Credentials) checkKeyPair() error {
	pub, ok := c.Key.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !ok || !pub.Equal(c.Certificate.PublicKey) {
		return ErrKeyMismatch(c.Certificate.Subject.String())
	}
	return nil
}

// Check verifies the certificate validity window at now
func (c *Credentials) Check(now time.Time) error {
	subject := c.Certificate.Subject.String()
	if now.Before(c.Certificate.NotBefore) {
		return ErrCertNotYetValid(subject)
	}
	if now.After(c.Certificate.NotAfter) {
		return ErrCertExpired(subject)
	}
	return nil
}

// Info extracts subject information from the certificate
func (c *Credentials) Info() *CertificateInfo {
	cert := c.Certificate
	info := &CertificateInfo{
		Name:          cert.Subject.CommonName,
		SubjectSerial: cert.Subject.SerialNumber,
		SerialNumber:  cert.SerialNumber.String(),
		ValidFrom:     cert.NotBefore,
		ValidTo:       cert.NotAfter,
	}

	if len(cert.Subject.Organization) > 0 {
		info.Organization = cert.Subject.Organization[0]
	}

	if len(cert.Issuer.CommonName) > 0 {
		info.Issuer = cert.Issuer.CommonName
	} else if len(cert.Issuer.Organization) > 0 {
		info.Issuer = cert.Issuer.Organization[0]
	}

	return info
}
