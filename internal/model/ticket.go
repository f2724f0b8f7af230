package model

import (
	"fmt"
	"time"
)

// Service identifies an authority sub-service; each one needs its own ticket
type Service string

const (
	ServiceInvoiceAuth       Service = "wsfe"
	ServiceTaxpayerRegistry  Service = "ws_sr_padron_a5"
	ServiceRegistryTaxStatus Service = "ws_sr_constancia_inscripcion"
)

// KnownServices lists the services a ticket can be requested for
var KnownServices = []Service{
	ServiceInvoiceAuth,
	ServiceTaxpayerRegistry,
	ServiceRegistryTaxStatus,
}

// ParseService validates a service name. "invoice" is accepted as an alias of wsfe.
func ParseService(s string) (Service, error) {
	if s == "" || s == "invoice" {
		return ServiceInvoiceAuth, nil
	}
	for _, known := range KnownServices {
		if string(known) == s {
			return known, nil
		}
	}
	return "", NewValidationError("service", s, "enum", fmt.Sprintf("unknown service, expected one of %v", KnownServices))
}

// AccessTicket is the signed credential returned by loginCms. Never mutated, only replaced.
type AccessTicket struct {
	Service     Service   `json:"service"`
	Token       string    `json:"token"`
	Signature   string    `json:"sign"`
	GeneratedAt time.Time `json:"generation_time"`
	ExpiresAt   time.Time `json:"expiration_time"`
}

// ValidAt reports whether the ticket is still usable at now with the given margin
func (t *AccessTicket) ValidAt(now time.Time, margin time.Duration) bool {
	if t == nil || t.Token == "" || t.Signature == "" {
		return false
	}
	return now.UTC().Add(margin).Before(t.ExpiresAt)
}

// MaskedToken returns the token prefix safe for logs and status responses
func (t *AccessTicket) MaskedToken() string {
	return MaskSecret(t.Token)
}

// MaskedSignature returns the signature prefix safe for logs and status responses
func (t *AccessTicket) MaskedSignature() string {
	return MaskSecret(t.Signature)
}

// MaskSecret keeps the first 10 characters of s
func MaskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 10 {
		return s[:1] + "..."
	}
	return s[:10] + "..."
}

// TicketStatus describes the cached ticket for a service without exposing it
type TicketStatus struct {
	Service         Service    `json:"service"`
	Exists          bool       `json:"exists"`
	Valid           bool       `json:"valid"`
	GeneratedAt     *time.Time `json:"generation_time,omitempty"`
	ExpiresAt       *time.Time `json:"expiration_time,omitempty"`
	MaskedToken     string     `json:"token,omitempty"`
	MaskedSignature string     `json:"sign,omitempty"`
}
