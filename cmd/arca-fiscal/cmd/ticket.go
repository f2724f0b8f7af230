package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/arca-fiscal/pkg/arcafiscal"
)

var ticketCmd = &cobra.Command{
	Use:   "ticket",
	Short: "Inspect or renew WSAA access tickets",
	Long: `Access tickets are cached per service and renewed automatically when
they come within the safety margin of their expiration. These commands show
the cached ticket (token and signature masked) or force a new one.

Services: wsfe (default, alias "invoice"), ws_sr_padron_a5, ws_sr_constancia_inscripcion.

Examples:
  arca-fiscal ticket status
  arca-fiscal ticket renew ws_sr_padron_a5`,
}

var ticketStatusCmd = &cobra.Command{
	Use:   "status [service]",
	Short: "Show the cached ticket for a service",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTicketStatus,
}

var ticketRenewCmd = &cobra.Command{
	Use:   "renew [service]",
	Short: "Discard the cached ticket and request a new one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTicketRenew,
}

func init() {
	rootCmd.AddCommand(ticketCmd)
	ticketCmd.AddCommand(ticketStatusCmd)
	ticketCmd.AddCommand(ticketRenewCmd)
}

func serviceArg(args []string) (arcafiscal.Service, error) {
	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	return arcafiscal.ParseService(name)
}

func runTicketStatus(cmd *cobra.Command, args []string) error {
	service, err := serviceArg(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	status := client.TicketStatus(ctx, service)
	return printStatus(&status)
}

func runTicketRenew(cmd *cobra.Command, args []string) error {
	service, err := serviceArg(args)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	client, err := newClient(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	status, err := client.RenewTicket(ctx, service)
	if err != nil {
		return err
	}
	return printStatus(status)
}

func printStatus(s *arcafiscal.TicketStatus) error {
	if outputFormat == "json" {
		return printJSON(os.Stdout, s)
	}

	fmt.Printf("Service:  %s\n", s.Service)
	if !s.Exists {
		fmt.Println("No ticket cached")
		return nil
	}
	fmt.Printf("Valid:    %t\n", s.Valid)
	if s.GeneratedAt != nil {
		fmt.Printf("Issued:   %s\n", s.GeneratedAt.Format(time.RFC3339))
	}
	if s.ExpiresAt != nil {
		fmt.Printf("Expires:  %s\n", s.ExpiresAt.Format(time.RFC3339))
	}
	if s.MaskedToken != "" {
		fmt.Printf("Token:    %s\n", s.MaskedToken)
		fmt.Printf("Sign:     %s\n", s.MaskedSignature)
	}
	return nil
}
