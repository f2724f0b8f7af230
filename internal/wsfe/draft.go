package wsfe

import (
	"strconv"
	"strings"

	"github.com/rezonia/arca-fiscal/internal/decimal"
	"github.com/rezonia/arca-fiscal/internal/model"
)

// Draft keys
const (
	KeyDocumentType        = "documentType"
	KeyPointOfSale         = "pointOfSale"
	KeyBuyerDocType        = "buyerDocType"
	KeyBuyerDocNumber      = "buyerDocNumber"
	KeyBuyerVatCondition   = "buyerVatCondition"
	KeyNetAmount           = "netAmount"
	KeyExemptAmount        = "exemptAmount"
	KeyNonTaxedAmount      = "nonTaxedAmount"
	KeyOtherTaxesAmount    = "otherTaxesAmount"
	KeyVatBreakdown        = "vatBreakdown"
	KeyOtherTaxes          = "otherTaxes"
	KeyAssociatedDocuments = "associatedDocuments"
	KeyIssueDate           = "issueDate"
	KeyConcept             = "concept"
	KeyCurrency            = "currency"
	KeyExchangeRate        = "exchangeRate"
	KeyServiceFrom         = "serviceFrom"
	KeyServiceTo           = "serviceTo"
	KeyPaymentDue          = "paymentDue"
)

var kindAliases = map[string]int{
	"A": model.DocInvoiceA,
	"B": model.DocInvoiceB,
	"C": model.DocInvoiceC,
}

var buyerDocAliases = map[string]int{
	"CUIT":           model.BuyerDocCUIT,
	"DNI":            model.BuyerDocDNI,
	"CF":             model.BuyerDocFinalConsumer,
	"FINAL_CONSUMER": model.BuyerDocFinalConsumer,
}

// present reports whether key holds a non-empty value
func present(d model.InvoiceDraft, key string) bool {
	v, ok := d[key]
	if !ok || v == nil {
		return false
	}
	if s, isString := v.(string); isString {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// code resolves a numeric authority code or one of its aliases
func code(v interface{}, aliases map[string]int) (int, bool) {
	if s, ok := v.(string); ok {
		if c, found := aliases[strings.ToUpper(strings.TrimSpace(s))]; found {
			return c, true
		}
	}
	return decimal.ParseInt(v)
}

// text renders strings and JSON numbers without exponent or trailing decimals
func text(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	default:
		if str, ok := v.(interface{ String() string }); ok {
			return strings.TrimSpace(str.String())
		}
		return ""
	}
}

// entries returns a list field as maps, accepting both decoded JSON and literal Go shapes
func entries(v interface{}) ([]map[string]interface{}, bool) {
	switch list := v.(type) {
	case nil:
		return nil, true
	case []map[string]interface{}:
		return list, true
	case []model.InvoiceDraft:
		out := make([]map[string]interface{}, 0, len(list))
		for _, e := range list {
			out = append(out, e)
		}
		return out, true
	case []interface{}:
		out := make([]map[string]interface{}, 0, len(list))
		for _, e := range list {
			switch m := e.(type) {
			case map[string]interface{}:
				out = append(out, m)
			case model.InvoiceDraft:
				out = append(out, m)
			default:
				return nil, false
			}
		}
		return out, true
	default:
		return nil, false
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
