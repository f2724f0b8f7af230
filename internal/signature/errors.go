package signature

import (
	"fmt"

	"github.com/rezonia/arca-fiscal/internal/model"
)

// Common error constructors

// ErrCertUnreadable returns error when the certificate file cannot be read or parsed
func ErrCertUnreadable(path string, cause error) *model.SigningError {
	return model.NewSigningError(model.ErrCodeCertUnreadable, fmt.Sprintf("cannot load certificate %s", path), cause)
}

// ErrKeyUnreadable returns error when the private key cannot be read or parsed
func ErrKeyUnreadable(path string, cause error) *model.SigningError {
	return model.NewSigningError(model.ErrCodeKeyUnreadable, fmt.Sprintf("cannot load private key %s", path), cause)
}

// ErrCertExpired returns error when certificate has expired
func ErrCertExpired(subject string) *model.SigningError {
	return model.NewSigningError(model.ErrCodeCertExpired, fmt.Sprintf("certificate expired: %s", subject), nil)
}

// ErrCertNotYetValid returns error when certificate is not yet valid
func ErrCertNotYetValid(subject string) *model.SigningError {
	return model.NewSigningError(model.ErrCodeCertNotYetValid, fmt.Sprintf("certificate not yet valid: %s", subject), nil)
}

// ErrKeyMismatch returns error when the private key does not belong to the certificate
func ErrKeyMismatch(subject string) *model.SigningError {
	return model.NewSigningError(model.ErrCodeKeyMismatch, fmt.Sprintf("private key does not match certificate: %s", subject), nil)
}

// ErrSignFailed returns error when the signing primitive fails
func ErrSignFailed(cause error) *model.SigningError {
	return model.NewSigningError(model.ErrCodeSignFailed, "CMS signature failed", cause)
}

// ErrToolUnavailable returns error when external tool is not available
func ErrToolUnavailable(tool string) *model.SigningError {
	return model.NewSigningError(model.ErrCodeToolUnavailable, fmt.Sprintf("external tool not available: %s", tool), nil)
}
