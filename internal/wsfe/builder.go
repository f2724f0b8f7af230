package wsfe

import (
	"fmt"
	"strings"
	"time"

	dec "github.com/shopspring/decimal"

	"github.com/rezonia/arca-fiscal/internal/decimal"
	"github.com/rezonia/arca-fiscal/internal/model"
)

const dateLayout = "20060102"

// argentina is the authority's civil time, used for default issue dates
var argentina = time.FixedZone("ART", -3*60*60)

// Builder turns caller drafts into validated invoice requests. It performs no I/O.
type Builder struct {
	now             func() time.Time
	defaultCurrency string
	defaultConcept  int
}

// BuilderOption configures a Builder
type BuilderOption func(*Builder)

// WithBuilderClock overrides time.Now for default issue dates
func WithBuilderClock(now func() time.Time) BuilderOption {
	return func(b *Builder) {
		b.now = now
	}
}

// WithDefaultCurrency sets the currency used when the draft has none
func WithDefaultCurrency(currency string) BuilderOption {
	return func(b *Builder) {
		if currency != "" {
			b.defaultCurrency = currency
		}
	}
}

// WithDefaultConcept sets the concept used when the draft has none
func WithDefaultConcept(concept int) BuilderOption {
	return func(b *Builder) {
		if concept > 0 {
			b.defaultConcept = concept
		}
	}
}

// NewBuilder creates a builder
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		now:             time.Now,
		defaultCurrency: "PES",
		defaultConcept:  model.ConceptProducts,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build validates draft and returns the wire-ready request with its number unassigned.
// Checks run in a fixed order and the first violation is returned as a *model.ValidationError:
// required fields, buyer document format, kind overrides, VAT rate codes, VAT base sum,
// per-line VAT amounts, then totals. The total is always recomputed.
func (b *Builder) Build(draft model.InvoiceDraft) (*model.InvoiceRequest, error) {
	req := &model.InvoiceRequest{}

	if err := b.required(draft, req); err != nil {
		return nil, err
	}
	if err := checkBuyerDocument(req); err != nil {
		return nil, err
	}

	vatLines, err := b.applyKind(draft, req)
	if err != nil {
		return nil, err
	}
	if err := b.vat(draft, req, vatLines); err != nil {
		return nil, err
	}
	if err := b.totals(draft, req); err != nil {
		return nil, err
	}
	if err := b.optional(draft, req); err != nil {
		return nil, err
	}
	return req, nil
}

func (b *Builder) required(d model.InvoiceDraft, req *model.InvoiceRequest) error {
	for _, key := range []string{KeyDocumentType, KeyPointOfSale, KeyBuyerDocType, KeyBuyerDocNumber, KeyNetAmount} {
		if !present(d, key) {
			return model.NewValidationError(key, nil, "required", "field is required")
		}
	}

	docType, ok := code(d[KeyDocumentType], kindAliases)
	if !ok {
		return model.NewValidationError(KeyDocumentType, d[KeyDocumentType], "enum", "unknown document type")
	}
	if _, known := model.KindOf(docType); !known {
		return model.NewValidationError(KeyDocumentType, d[KeyDocumentType], "enum", "document type must be one of 1, 2, 3, 6, 7, 8, 11, 12, 13 or A, B, C")
	}
	req.DocumentType = docType

	pos, ok := decimal.ParseInt(d[KeyPointOfSale])
	if !ok || pos < 1 || pos > 99998 {
		return model.NewValidationError(KeyPointOfSale, d[KeyPointOfSale], "range", "point of sale must be an integer between 1 and 99998")
	}
	req.PointOfSale = pos

	buyerType, ok := code(d[KeyBuyerDocType], buyerDocAliases)
	if !ok {
		return model.NewValidationError(KeyBuyerDocType, d[KeyBuyerDocType], "enum", "unknown buyer document type")
	}
	req.BuyerDocType = buyerType
	req.BuyerDocNumber = text(d[KeyBuyerDocNumber])

	net, ok := decimal.ParseStrict(d[KeyNetAmount])
	if !ok {
		return model.NewValidationError(KeyNetAmount, d[KeyNetAmount], "numeric", "net amount must be a number")
	}
	if !decimal.IsNonNegative(net) {
		return model.NewValidationError(KeyNetAmount, d[KeyNetAmount], "min", "net amount cannot be negative")
	}
	req.NetAmount = decimal.Round2(net)
	return nil
}

func checkBuyerDocument(req *model.InvoiceRequest) error {
	n := req.BuyerDocNumber
	switch req.BuyerDocType {
	case model.BuyerDocCUIT:
		if len(n) != 11 || !isDigits(n) {
			return model.NewValidationError(KeyBuyerDocNumber, n, "cuit", "CUIT must have 11 digits")
		}
	case model.BuyerDocDNI:
		if len(n) != 8 || !isDigits(n) {
			return model.NewValidationError(KeyBuyerDocNumber, n, "dni", "DNI must have 8 digits")
		}
	case model.BuyerDocFinalConsumer:
		if n != "0" {
			return model.NewValidationError(KeyBuyerDocNumber, n, "final_consumer", "final consumer document number must be 0")
		}
	default:
		return model.NewValidationError(KeyBuyerDocType, req.BuyerDocType, "enum", "buyer document type must be CUIT (80), DNI (96) or final consumer (99)")
	}
	return nil
}

// applyKind fixes the fields the document kind dictates and returns the VAT lines
// still to be validated. Kind C discards any caller-supplied VAT data.
func (b *Builder) applyKind(d model.InvoiceDraft, req *model.InvoiceRequest) ([]map[string]interface{}, error) {
	if req.Kind() == model.KindC {
		req.VatAmount = decimal.Zero
		req.ExemptAmount = decimal.Zero
		req.NonTaxedAmount = decimal.Zero
		req.VatBreakdown = nil
		req.BuyerVatCondition = model.VatConditionFinalConsumer
		return nil, nil
	}

	req.ExemptAmount = decimal.Parse(d[KeyExemptAmount])
	req.NonTaxedAmount = decimal.Parse(d[KeyNonTaxedAmount])

	if present(d, KeyBuyerVatCondition) {
		cond, ok := decimal.ParseInt(d[KeyBuyerVatCondition])
		if !ok || cond < 1 {
			return nil, model.NewValidationError(KeyBuyerVatCondition, d[KeyBuyerVatCondition], "enum", "buyer VAT condition must be a positive integer code")
		}
		req.BuyerVatCondition = cond
	} else {
		switch {
		case req.Kind() == model.KindA:
			req.BuyerVatCondition = model.VatConditionRegistered
		case decimal.IsPositive(req.NetAmount):
			return nil, model.NewValidationError(KeyBuyerVatCondition, nil, "required", "buyer VAT condition is required when net amount is positive")
		}
	}

	lines, ok := entries(d[KeyVatBreakdown])
	if !ok {
		return nil, model.NewValidationError(KeyVatBreakdown, d[KeyVatBreakdown], "type", "VAT breakdown must be a list of objects")
	}
	return lines, nil
}

func (b *Builder) vat(d model.InvoiceDraft, req *model.InvoiceRequest, lines []map[string]interface{}) error {
	if req.Kind() == model.KindC {
		return nil
	}

	breakdown := make([]model.VatEntry, 0, len(lines))
	for i, line := range lines {
		rateID, ok := decimal.ParseInt(line["rateId"])
		if _, allowed := model.VatRates[rateID]; !ok || !allowed {
			return model.NewValidationError(fmt.Sprintf("%s[%d].rateId", KeyVatBreakdown, i), line["rateId"], "enum", "VAT rate id must be one of 3, 4, 5, 6, 8, 9")
		}
		breakdown = append(breakdown, model.VatEntry{
			RateID:     rateID,
			BaseAmount: decimal.Parse(line["baseAmount"]),
			Amount:     decimal.Parse(line["amount"]),
		})
	}

	bases := make([]dec.Decimal, 0, len(breakdown))
	for _, e := range breakdown {
		bases = append(bases, e.BaseAmount)
	}
	if baseSum := decimal.Sum(bases); !decimal.WithinTolerance(baseSum, req.NetAmount, decimal.Tolerance) {
		return model.NewValidationError(KeyVatBreakdown, decimal.Format2(baseSum), "base_sum",
			fmt.Sprintf("sum of VAT bases %s does not match net amount %s", decimal.Format2(baseSum), decimal.Format2(req.NetAmount)))
	}

	amounts := make([]dec.Decimal, 0, len(breakdown))
	for i, e := range breakdown {
		expected := decimal.ApplyRate(e.BaseAmount, model.VatRates[e.RateID])
		if !decimal.WithinTolerance(e.Amount, expected, decimal.Tolerance) {
			return model.NewValidationError(fmt.Sprintf("%s[%d].amount", KeyVatBreakdown, i), decimal.Format2(e.Amount), "rate",
				fmt.Sprintf("VAT amount should be %s for base %s at rate id %d", decimal.Format2(decimal.Round2(expected)), decimal.Format2(e.BaseAmount), e.RateID))
		}
		amounts = append(amounts, e.Amount)
	}

	// a supplied vatAmount is ignored, the breakdown is authoritative
	vat := decimal.Round2(decimal.Sum(amounts))

	if len(breakdown) > 0 {
		req.VatBreakdown = breakdown
	}
	req.VatAmount = vat
	return nil
}

func (b *Builder) totals(d model.InvoiceDraft, req *model.InvoiceRequest) error {
	lines, ok := entries(d[KeyOtherTaxes])
	if !ok {
		return model.NewValidationError(KeyOtherTaxes, d[KeyOtherTaxes], "type", "other taxes must be a list of objects")
	}

	taxAmounts := make([]dec.Decimal, 0, len(lines))
	for i, line := range lines {
		taxID, ok := decimal.ParseInt(line["taxId"])
		if !ok || taxID < 1 {
			return model.NewValidationError(fmt.Sprintf("%s[%d].taxId", KeyOtherTaxes, i), line["taxId"], "required", "tax id is required")
		}
		tax := model.OtherTax{
			TaxID:       taxID,
			Description: text(line["description"]),
			BaseAmount:  decimal.Parse(line["baseAmount"]),
			Rate:        decimal.Parse(line["rate"]),
			Amount:      decimal.Parse(line["amount"]),
		}
		req.OtherTaxes = append(req.OtherTaxes, tax)
		taxAmounts = append(taxAmounts, tax.Amount)
	}

	if present(d, KeyOtherTaxesAmount) {
		req.OtherTaxesAmount = decimal.Parse(d[KeyOtherTaxesAmount])
	} else {
		req.OtherTaxesAmount = decimal.Round2(decimal.Sum(taxAmounts))
	}

	req.TotalAmount = decimal.Round2(req.NetAmount.Add(req.OtherTaxesAmount).Add(req.VatAmount))
	return nil
}

func (b *Builder) optional(d model.InvoiceDraft, req *model.InvoiceRequest) error {
	var err error

	req.IssueDate = b.now().In(argentina).Format(dateLayout)
	if present(d, KeyIssueDate) {
		if req.IssueDate, err = parseDate(KeyIssueDate, d[KeyIssueDate]); err != nil {
			return err
		}
	}

	req.Concept = b.defaultConcept
	if present(d, KeyConcept) {
		c, ok := decimal.ParseInt(d[KeyConcept])
		if !ok || c < model.ConceptProducts || c > model.ConceptProductsAndServices {
			return model.NewValidationError(KeyConcept, d[KeyConcept], "enum", "concept must be 1 (products), 2 (services) or 3 (both)")
		}
		req.Concept = c
	}

	if req.Concept != model.ConceptProducts {
		for _, key := range []string{KeyServiceFrom, KeyServiceTo, KeyPaymentDue} {
			if !present(d, key) {
				return model.NewValidationError(key, nil, "required", "service dates and payment due date are required for services")
			}
		}
		if req.ServiceFrom, err = parseDate(KeyServiceFrom, d[KeyServiceFrom]); err != nil {
			return err
		}
		if req.ServiceTo, err = parseDate(KeyServiceTo, d[KeyServiceTo]); err != nil {
			return err
		}
		if req.PaymentDue, err = parseDate(KeyPaymentDue, d[KeyPaymentDue]); err != nil {
			return err
		}
		if req.ServiceTo < req.ServiceFrom {
			return model.NewValidationError(KeyServiceTo, req.ServiceTo, "order", "service end date is before its start date")
		}
	}

	req.Currency = b.defaultCurrency
	if present(d, KeyCurrency) {
		req.Currency = strings.ToUpper(text(d[KeyCurrency]))
		if len(req.Currency) != 3 {
			return model.NewValidationError(KeyCurrency, d[KeyCurrency], "format", "currency must be a 3-letter authority code")
		}
	}

	req.ExchangeRate = decimal.FromInt(1)
	if present(d, KeyExchangeRate) {
		rate, ok := decimal.ParseStrict(d[KeyExchangeRate])
		if !ok || !decimal.IsPositive(rate) {
			return model.NewValidationError(KeyExchangeRate, d[KeyExchangeRate], "min", "exchange rate must be a positive number")
		}
		req.ExchangeRate = rate
	}
	if req.Currency == "PES" && !req.ExchangeRate.Equal(decimal.FromInt(1)) {
		return model.NewValidationError(KeyExchangeRate, d[KeyExchangeRate], "currency", "exchange rate must be 1 for PES")
	}

	docs, ok := entries(d[KeyAssociatedDocuments])
	if !ok {
		return model.NewValidationError(KeyAssociatedDocuments, d[KeyAssociatedDocuments], "type", "associated documents must be a list of objects")
	}
	for i, doc := range docs {
		field := fmt.Sprintf("%s[%d]", KeyAssociatedDocuments, i)
		docType, ok := code(doc["documentType"], kindAliases)
		if _, known := model.KindOf(docType); !ok || !known {
			return model.NewValidationError(field+".documentType", doc["documentType"], "enum", "unknown associated document type")
		}
		pos, ok := decimal.ParseInt(doc["pointOfSale"])
		if !ok || pos < 1 {
			return model.NewValidationError(field+".pointOfSale", doc["pointOfSale"], "required", "associated document point of sale is required")
		}
		number, ok := decimal.ParseInt(doc["number"])
		if !ok || number < 1 {
			return model.NewValidationError(field+".number", doc["number"], "required", "associated document number is required")
		}
		assoc := model.AssociatedDocument{
			DocumentType: docType,
			PointOfSale:  pos,
			Number:       int64(number),
			IssuerCUIT:   text(doc["issuerCuit"]),
		}
		if present(doc, "date") {
			if assoc.Date, err = parseDate(field+".date", doc["date"]); err != nil {
				return err
			}
		}
		req.AssociatedDocuments = append(req.AssociatedDocuments, assoc)
	}
	return nil
}

// parseDate accepts yyyymmdd or yyyy-mm-dd and returns yyyymmdd
func parseDate(field string, v interface{}) (string, error) {
	s := strings.ReplaceAll(text(v), "-", "")
	if _, err := time.Parse(dateLayout, s); err != nil {
		return "", model.NewValidationError(field, v, "date", "date must be yyyymmdd or yyyy-mm-dd")
	}
	return s, nil
}
