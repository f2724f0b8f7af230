package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"

	money "github.com/rezonia/arca-fiscal/internal/decimal"
)

// InvoiceDraft is the untyped caller payload, typically decoded from JSON
type InvoiceDraft map[string]interface{}

// DocumentKind is the fiscal category that decides which VAT fields apply
type DocumentKind string

const (
	KindA DocumentKind = "A"
	KindB DocumentKind = "B"
	// KindC documents are VAT-exempt: no VAT amount, no breakdown
	KindC DocumentKind = "C"
)

// Document type codes (CbteTipo)
const (
	DocInvoiceA    = 1
	DocDebitNoteA  = 2
	DocCreditNoteA = 3
	DocInvoiceB    = 6
	DocDebitNoteB  = 7
	DocCreditNoteB = 8
	DocInvoiceC    = 11
	DocDebitNoteC  = 12
	DocCreditNoteC = 13
)

var documentKinds = map[int]DocumentKind{
	DocInvoiceA: KindA, DocDebitNoteA: KindA, DocCreditNoteA: KindA,
	DocInvoiceB: KindB, DocDebitNoteB: KindB, DocCreditNoteB: KindB,
	DocInvoiceC: KindC, DocDebitNoteC: KindC, DocCreditNoteC: KindC,
}

// KindOf returns the kind of a document type code
func KindOf(docType int) (DocumentKind, bool) {
	k, ok := documentKinds[docType]
	return k, ok
}

// IsNote reports whether the document type is a credit or debit note
func IsNote(docType int) bool {
	switch docType {
	case DocDebitNoteA, DocCreditNoteA, DocDebitNoteB, DocCreditNoteB, DocDebitNoteC, DocCreditNoteC:
		return true
	}
	return false
}

// Buyer identification types (DocTipo)
const (
	BuyerDocCUIT          = 80
	BuyerDocDNI           = 96
	BuyerDocFinalConsumer = 99
)

// Buyer VAT conditions (CondicionIVAReceptorId)
const (
	VatConditionRegistered    = 1
	VatConditionExempt        = 4
	VatConditionFinalConsumer = 5
	VatConditionMonotributo   = 6
)

// Concepts (Concepto)
const (
	ConceptProducts            = 1
	ConceptServices            = 2
	ConceptProductsAndServices = 3
)

// VatRates maps the allowed VAT rate ids to their percentage
var VatRates = map[int]decimal.Decimal{
	3: decimal.Zero,
	4: decimal.RequireFromString("10.5"),
	5: decimal.NewFromInt(21),
	6: decimal.NewFromInt(27),
	8: decimal.NewFromInt(5),
	9: decimal.RequireFromString("2.5"),
}

// VatEntry is one AlicIva line
type VatEntry struct {
	RateID     int             `json:"rate_id"`
	BaseAmount decimal.Decimal `json:"base_amount"`
	Amount     decimal.Decimal `json:"amount"`
}

// MarshalJSON renders amounts in the fixed 2-decimal wire form
func (e VatEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		RateID     int    `json:"rate_id"`
		BaseAmount string `json:"base_amount"`
		Amount     string `json:"amount"`
	}{e.RateID, money.Format2(e.BaseAmount), money.Format2(e.Amount)})
}

// OtherTax is one Tributo line
type OtherTax struct {
	TaxID       int             `json:"tax_id"`
	Description string          `json:"description"`
	BaseAmount  decimal.Decimal `json:"base_amount"`
	Rate        decimal.Decimal `json:"rate"`
	Amount      decimal.Decimal `json:"amount"`
}

// MarshalJSON renders amounts in the fixed 2-decimal wire form
func (t OtherTax) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		TaxID       int    `json:"tax_id"`
		Description string `json:"description"`
		BaseAmount  string `json:"base_amount"`
		Rate        string `json:"rate"`
		Amount      string `json:"amount"`
	}{t.TaxID, t.Description, money.Format2(t.BaseAmount), money.Format2(t.Rate), money.Format2(t.Amount)})
}

// AssociatedDocument references the invoice a credit or debit note adjusts
type AssociatedDocument struct {
	DocumentType int    `json:"document_type"`
	PointOfSale  int    `json:"point_of_sale"`
	Number       int64  `json:"number"`
	IssuerCUIT   string `json:"issuer_cuit,omitempty"`
	Date         string `json:"date,omitempty"`
}

// InvoiceRequest is the validated, wire-ready document. Amounts are rounded to 2 decimals.
type InvoiceRequest struct {
	PointOfSale        int    `json:"point_of_sale"`
	DocumentType       int    `json:"document_type"`
	Concept            int    `json:"concept"`
	DocumentNumberFrom int64  `json:"document_number_from"`
	DocumentNumberTo   int64  `json:"document_number_to"`
	IssueDate          string `json:"issue_date"`

	BuyerDocType      int    `json:"buyer_doc_type"`
	BuyerDocNumber    string `json:"buyer_doc_number"`
	BuyerVatCondition int    `json:"buyer_vat_condition,omitempty"`

	NetAmount        decimal.Decimal `json:"net_amount"`
	ExemptAmount     decimal.Decimal `json:"exempt_amount"`
	NonTaxedAmount   decimal.Decimal `json:"non_taxed_amount"`
	OtherTaxesAmount decimal.Decimal `json:"other_taxes_amount"`
	VatAmount        decimal.Decimal `json:"vat_amount"`
	TotalAmount      decimal.Decimal `json:"total_amount"`

	Currency     string          `json:"currency"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`

	ServiceFrom string `json:"service_from,omitempty"`
	ServiceTo   string `json:"service_to,omitempty"`
	PaymentDue  string `json:"payment_due,omitempty"`

	VatBreakdown        []VatEntry           `json:"vat_breakdown,omitempty"`
	OtherTaxes          []OtherTax           `json:"other_taxes,omitempty"`
	AssociatedDocuments []AssociatedDocument `json:"associated_documents,omitempty"`
}

// MarshalJSON renders the totals in the fixed 2-decimal wire form, e.g. "121.00"
func (r InvoiceRequest) MarshalJSON() ([]byte, error) {
	type plain InvoiceRequest
	return json.Marshal(struct {
		plain
		NetAmount        string `json:"net_amount"`
		ExemptAmount     string `json:"exempt_amount"`
		NonTaxedAmount   string `json:"non_taxed_amount"`
		OtherTaxesAmount string `json:"other_taxes_amount"`
		VatAmount        string `json:"vat_amount"`
		TotalAmount      string `json:"total_amount"`
	}{
		plain:            plain(r),
		NetAmount:        money.Format2(r.NetAmount),
		ExemptAmount:     money.Format2(r.ExemptAmount),
		NonTaxedAmount:   money.Format2(r.NonTaxedAmount),
		OtherTaxesAmount: money.Format2(r.OtherTaxesAmount),
		VatAmount:        money.Format2(r.VatAmount),
		TotalAmount:      money.Format2(r.TotalAmount),
	})
}

// Kind returns the document kind of the request
func (r *InvoiceRequest) Kind() DocumentKind {
	k, _ := KindOf(r.DocumentType)
	return k
}

// AssignNumber sets both ends of the number range; one document per request
func (r *InvoiceRequest) AssignNumber(n int64) {
	r.DocumentNumberFrom = n
	r.DocumentNumberTo = n
}
