// Command esign runs the document certification and signing pipeline:
// a root authority, an RFC 3161 timestamp responder and the HTTP ceremony
// API, plus client commands for driving a running server.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Build-time variables (injected at release).
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Global flags.
var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "esign",
	Short: "Document certification and multi-party signing pipeline",
	Long: `esign certifies documents with a root authority, collects field
signatures from multiple parties, timestamps every step against an
RFC 3161 authority and seals a verifiable proof journal.

Examples:
  # Initialize the authority material
  esign authority init --dir ./authority --cn "Hestia Document Authority"

  # Run the HTTP API
  esign serve --config esign.yaml

  # Certify a registered document
  esign certify --server http://localhost:8443 --id <document-id>

  # Sign a field with a one-time code
  esign sign --server http://localhost:8443 --token <link-token> --code 482913

  # Fetch the sealed proof journal
  esign journal --server http://localhost:8443 --id <document-id> --out proof.cose`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML configuration")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(authorityCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(certifyCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "esign %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

// newLogger builds the technical logger from the global flag.
func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}
