// Package arcafiscal provides a public API for authorizing Argentine electronic
// invoices with ARCA (formerly AFIP).
//
// A Client holds the access tickets for the configured taxpayer, numbers each
// document from the authority's own counter and submits it for an
// authorization code (CAE).
//
// Example usage:
//
//	cfg, _ := config.Load("arca.yaml")
//	client, err := arcafiscal.New(ctx, cfg, logrus.New())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	outcome, err := client.Fiscalize(ctx, arcafiscal.InvoiceDraft{
//	    "documentType":      "B",
//	    "pointOfSale":       1,
//	    "buyerDocType":      "CF",
//	    "buyerDocNumber":    "0",
//	    "buyerVatCondition": 5,
//	    "netAmount":         "1000.00",
//	    "vatBreakdown": []interface{}{
//	        map[string]interface{}{"rateId": 5, "baseAmount": "1000.00", "amount": "210.00"},
//	    },
//	})
package arcafiscal

import (
	"github.com/rezonia/arca-fiscal/internal/fiscal"
	"github.com/rezonia/arca-fiscal/internal/model"
)

// Re-export core types for public API
type (
	InvoiceDraft         = model.InvoiceDraft
	InvoiceRequest       = model.InvoiceRequest
	AuthorizationOutcome = model.AuthorizationOutcome
	LastAuthorized       = model.LastAuthorized
	AccessTicket         = model.AccessTicket
	TicketStatus         = model.TicketStatus
	Service              = model.Service
	Result               = model.Result
	Message              = model.Message
)

// Re-export error types
type (
	ValidationError    = model.ValidationError
	SigningError       = model.SigningError
	TicketError        = model.TicketError
	TransportError     = model.TransportError
	SequenceQueryError = model.SequenceQueryError
	ProtocolError      = model.ProtocolError
	AttemptError       = fiscal.AttemptError
)

// Re-export services
const (
	ServiceInvoiceAuth      = model.ServiceInvoiceAuth
	ServiceTaxpayerRegistry = model.ServiceTaxpayerRegistry
)

// Re-export results
const (
	ResultApproved = model.ResultApproved
	ResultRejected = model.ResultRejected
)
