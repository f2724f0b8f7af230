package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rezonia/arca-fiscal/internal/wsfe"
	"github.com/rezonia/arca-fiscal/pkg/arcafiscal"
)

var validateCmd = &cobra.Command{
	Use:   "validate <draft.json>",
	Short: "Validate a draft invoice without contacting ARCA",
	Long: `Run every local check a draft must pass before it is submitted:
required fields, buyer document, VAT breakdown against the net amount and
rates, totals, service dates and currency.

No ticket is requested and no authority call is made. The normalized
request is printed.

Examples:
  arca-fiscal validate draft.json
  arca-fiscal validate draft.json --format table`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	draft, err := readDraft(args[0])
	if err != nil {
		return err
	}

	builder := wsfe.NewBuilder(
		wsfe.WithDefaultCurrency(cfg.Invoice.DefaultCurrency),
		wsfe.WithDefaultConcept(cfg.Invoice.DefaultConcept),
	)
	req, err := builder.Build(draft)
	if err != nil {
		if outputFormat != "json" {
			fmt.Printf("✗ %s: INVALID\n  - %v\n", args[0], err)
		}
		return err
	}

	if outputFormat == "json" {
		return printJSON(os.Stdout, req)
	}
	printRequest(args[0], req)
	return nil
}

func printRequest(file string, r *arcafiscal.InvoiceRequest) {
	fmt.Printf("✓ %s: VALID\n", file)
	fmt.Printf("  Type %d, point of sale %d, concept %d, date %s\n", r.DocumentType, r.PointOfSale, r.Concept, r.IssueDate)
	fmt.Printf("  Buyer %d %s (VAT condition %d)\n", r.BuyerDocType, r.BuyerDocNumber, r.BuyerVatCondition)
	fmt.Printf("  Net %s  VAT %s  Other %s  Total %s %s\n",
		r.NetAmount.StringFixed(2), r.VatAmount.StringFixed(2), r.OtherTaxesAmount.StringFixed(2), r.TotalAmount.StringFixed(2), r.Currency)
	for _, v := range r.VatBreakdown {
		fmt.Printf("  VAT rate %d: base %s amount %s\n", v.RateID, v.BaseAmount.StringFixed(2), v.Amount.StringFixed(2))
	}
}
