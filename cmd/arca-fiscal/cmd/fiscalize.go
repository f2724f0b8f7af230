package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/arca-fiscal/pkg/arcafiscal"
)

var fiscalizeTimeout time.Duration

var fiscalizeCmd = &cobra.Command{
	Use:   "fiscalize <draft.json>",
	Short: "Authorize a draft invoice",
	Long: `Validate a draft, number it from ARCA's last authorized counter and
submit it to WSFEv1. Prints the outcome; a rejection exits with an error.

Use "-" to read the draft from standard input.

Examples:
  arca-fiscal fiscalize draft.json
  cat draft.json | arca-fiscal fiscalize - --format table`,
	Args: cobra.ExactArgs(1),
	RunE: runFiscalize,
}

func init() {
	rootCmd.AddCommand(fiscalizeCmd)

	fiscalizeCmd.Flags().DurationVar(&fiscalizeTimeout, "timeout", 2*time.Minute, "Upper bound for the whole authorization")
}

func runFiscalize(cmd *cobra.Command, args []string) error {
	draft, err := readDraft(args[0])
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), fiscalizeTimeout)
	defer cancel()

	client, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	printVerbose("Submitting %s\n", args[0])
	outcome, err := client.Fiscalize(ctx, draft)
	if err != nil {
		return err
	}

	if outputFormat == "json" {
		if err := printJSON(os.Stdout, outcome); err != nil {
			return err
		}
	} else {
		printOutcome(outcome)
	}

	if !outcome.Approved() {
		return fmt.Errorf("document rejected by ARCA")
	}
	return nil
}

func printOutcome(o *arcafiscal.AuthorizationOutcome) {
	fmt.Printf("Attempt:  %s\n", o.AttemptID)
	fmt.Printf("Result:   %s\n", o.Result)
	fmt.Printf("Document: %d-%05d-%08d\n", o.DocumentType, o.PointOfSale, o.DocumentNumber)
	if o.AuthCode != "" {
		fmt.Printf("CAE:      %s\n", o.AuthCode)
	}
	if o.AuthCodeExpiry != nil {
		fmt.Printf("Expires:  %s\n", o.AuthCodeExpiry.Format("2006-01-02"))
	}
	for _, m := range o.Observations {
		fmt.Printf("  obs %s\n", m)
	}
	for _, m := range o.Errors {
		fmt.Printf("  err %s\n", m)
	}
	for _, m := range o.Events {
		fmt.Printf("  evt %s\n", m)
	}
}
