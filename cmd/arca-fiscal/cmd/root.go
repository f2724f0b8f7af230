package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rezonia/arca-fiscal/internal/config"
	"github.com/rezonia/arca-fiscal/pkg/arcafiscal"
)

var (
	version = "1.0.0"

	// Global flags
	configPath   string
	verbose      bool
	outputFormat string

	cfg    *config.Config
	logger *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "arca-fiscal",
	Short: "Authorize Argentine electronic invoices with ARCA (AFIP)",
	Long: `arca-fiscal obtains access tickets from WSAA and authorizes invoices,
credit notes and debit notes through WSFEv1.

Configuration is read from an optional YAML file (--config), a .env file in
the working directory and environment variables, in that order of precedence
from lowest to highest.

Examples:
  # Authorize a draft
  arca-fiscal fiscalize draft.json

  # Check a draft without contacting ARCA
  arca-fiscal validate draft.json

  # Last authorized invoice B for point of sale 3
  arca-fiscal last --pos 3 --type 6

  # Inspect or renew the access ticket
  arca-fiscal ticket status
  arca-fiscal ticket renew wsfe`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file (env: ARCA_CONFIG)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "json", "Output format (json, table)")
}

func initConfig() error {
	if configPath == "" {
		configPath = os.Getenv("ARCA_CONFIG")
	}

	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = loaded
	if verbose {
		cfg.Logging.Level = "debug"
	}
	logger = setupLogger(cfg.Logging, os.Stderr)
	return nil
}

func setupLogger(c config.LoggingConfig, out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)

	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if c.Format == "text" {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return l
}

// newClient wires the ARCA client from the loaded configuration
func newClient(ctx context.Context) (*arcafiscal.Client, error) {
	return arcafiscal.New(ctx, cfg, logger)
}

// readDraft loads a JSON draft; "-" reads standard input
func readDraft(path string) (arcafiscal.InvoiceDraft, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open draft: %w", err)
		}
		defer f.Close()
		r = f
	}

	dec := json.NewDecoder(r)
	dec.UseNumber()
	var draft arcafiscal.InvoiceDraft
	if err := dec.Decode(&draft); err != nil {
		return nil, fmt.Errorf("failed to parse draft: %w", err)
	}
	if draft == nil {
		return nil, fmt.Errorf("draft must be a JSON object")
	}
	return draft, nil
}

func printJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func printVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}
