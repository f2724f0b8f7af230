package model

import (
	"errors"
	"fmt"
	"strings"
)

// Signing error codes
const (
	ErrCodeCertUnreadable  = "CERT_UNREADABLE"
	ErrCodeKeyUnreadable   = "KEY_UNREADABLE"
	ErrCodeCertExpired     = "CERT_EXPIRED"
	ErrCodeCertNotYetValid = "CERT_NOT_YET_VALID"
	ErrCodeKeyMismatch     = "KEY_MISMATCH"
	ErrCodeSignFailed      = "SIGN_FAILED"
	ErrCodeToolUnavailable = "TOOL_UNAVAILABLE"
)

// Flavor distinguishes network failures so callers can pick their own backoff
type Flavor string

const (
	FlavorTimeout           Flavor = "timeout"
	FlavorConnectionReset   Flavor = "connection_reset"
	FlavorConnectionRefused Flavor = "connection_refused"
	FlavorHTTPStatus        Flavor = "http_status"
	FlavorOther             Flavor = "other"
)

// Message is a code/message pair as returned by the authority (Obs, Err, Evt)
type Message struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (m Message) String() string {
	return fmt.Sprintf("%d: %s", m.Code, m.Message)
}

func joinMessages(msgs []Message) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		parts = append(parts, m.String())
	}
	return strings.Join(parts, " | ")
}

// ValidationError represents a caller-data problem found before any network call
type ValidationError struct {
	Field   string
	Value   interface{}
	Rule    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed on %s: %s (value=%v, rule=%s)", e.Field, e.Message, e.Value, e.Rule)
	}
	return fmt.Sprintf("validation failed on %s: %s (rule=%s)", e.Field, e.Message, e.Rule)
}

// NewValidationError creates a new validation error
func NewValidationError(field string, value interface{}, rule, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Rule:    rule,
		Message: message,
	}
}

// SigningError represents a failure to produce the CMS signature
type SigningError struct {
	Code    string
	Message string
	Cause   error
}

func (e *SigningError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("signing failed [%s]: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("signing failed [%s]: %s", e.Code, e.Message)
}

func (e *SigningError) Unwrap() error {
	return e.Cause
}

// NewSigningError creates a new signing error
func NewSigningError(code, message string, cause error) *SigningError {
	return &SigningError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// TicketError represents a failure to obtain a usable access ticket
type TicketError struct {
	Service Service
	Message string
	Cause   error
}

func (e *TicketError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("ticket [%s]: %s (%v)", e.Service, e.Message, e.Cause)
	}
	return fmt.Sprintf("ticket [%s]: %s", e.Service, e.Message)
}

func (e *TicketError) Unwrap() error {
	return e.Cause
}

// NewTicketError creates a new ticket error
func NewTicketError(service Service, message string, cause error) *TicketError {
	return &TicketError{
		Service: service,
		Message: message,
		Cause:   cause,
	}
}

// TransportError represents a network-layer failure talking to the authority
type TransportError struct {
	Flavor     Flavor
	Endpoint   string
	StatusCode int
	Cause      error
}

func (e *TransportError) Error() string {
	switch {
	case e.Flavor == FlavorHTTPStatus:
		return fmt.Sprintf("transport %s: %s returned status %d", e.Flavor, e.Endpoint, e.StatusCode)
	case e.Cause != nil:
		return fmt.Sprintf("transport %s: %s (%v)", e.Flavor, e.Endpoint, e.Cause)
	default:
		return fmt.Sprintf("transport %s: %s", e.Flavor, e.Endpoint)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// NewTransportError creates a new transport error
func NewTransportError(flavor Flavor, endpoint string, statusCode int, cause error) *TransportError {
	return &TransportError{
		Flavor:     flavor,
		Endpoint:   endpoint,
		StatusCode: statusCode,
		Cause:      cause,
	}
}

// SequenceQueryError represents a failed last-authorized lookup
type SequenceQueryError struct {
	PointOfSale  int
	DocumentType int
	Message      string
	Errors       []Message
	Cause        error
}

func (e *SequenceQueryError) Error() string {
	msg := fmt.Sprintf("last authorized query (pos=%d, type=%d): %s", e.PointOfSale, e.DocumentType, e.Message)
	if len(e.Errors) > 0 {
		msg += ": " + joinMessages(e.Errors)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" (%v)", e.Cause)
	}
	return msg
}

func (e *SequenceQueryError) Unwrap() error {
	return e.Cause
}

// Flavor reports the network flavor of the underlying failure, if any
func (e *SequenceQueryError) Flavor() Flavor {
	var te *TransportError
	if errors.As(e.Cause, &te) {
		return te.Flavor
	}
	return FlavorOther
}

// NewSequenceQueryError creates a new sequence query error
func NewSequenceQueryError(pos, docType int, message string, errs []Message, cause error) *SequenceQueryError {
	return &SequenceQueryError{
		PointOfSale:  pos,
		DocumentType: docType,
		Message:      message,
		Errors:       errs,
		Cause:        cause,
	}
}

// ProtocolError means the authority answered but broke the expected contract
type ProtocolError struct {
	Operation string
	Message   string
	Errors    []Message
	Cause     error
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("protocol [%s]: %s", e.Operation, e.Message)
	if len(e.Errors) > 0 {
		msg += ": " + joinMessages(e.Errors)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" (%v)", e.Cause)
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Cause
}

// NewProtocolError creates a new protocol error
func NewProtocolError(operation, message string, errs []Message, cause error) *ProtocolError {
	return &ProtocolError{
		Operation: operation,
		Message:   message,
		Errors:    errs,
		Cause:     cause,
	}
}

// IsTimeout reports whether err was caused by a network timeout
func IsTimeout(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Flavor == FlavorTimeout
}

// IsConnectionReset reports whether err was caused by the peer resetting the connection
func IsConnectionReset(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Flavor == FlavorConnectionReset
}
