package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hestia-platform/esign/internal/authority"
	"github.com/hestia-platform/esign/internal/config"
	esigncrypto "github.com/hestia-platform/esign/internal/crypto"
)

var authorityCmd = &cobra.Command{
	Use:   "authority",
	Short: "Root authority management",
	Long: `Manage the root authority and timestamp authority key material.

Commands:
  init    Create the root and TSA certificates and keys
  info    Display the authority certificates

The directory layout:
  {dir}/
    ├── root.crt    # Root certificate (PEM)
    ├── root.key    # Root private key (PEM, optionally encrypted)
    ├── tsa.crt     # Timestamp authority certificate (PEM)
    ├── tsa.key     # Timestamp authority private key
    └── serial      # Serial number counter

Passphrases come from ESIGN_ROOT_KEY_PASSPHRASE and
ESIGN_TSA_KEY_PASSPHRASE, never from flags.`,
}

var (
	authorityDir       string
	authorityCN        string
	authorityOrg       string
	authorityCountry   string
	authorityAlgorithm string
	authorityValidity  int
)

var authorityInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the root and timestamp authorities",
	RunE: func(cmd *cobra.Command, _ []string) error {
		alg, err := esigncrypto.ParseAlgorithm(authorityAlgorithm)
		if err != nil {
			return err
		}

		store := authority.NewStore(authorityDir)
		if store.Exists() {
			return fmt.Errorf("authority already initialized in %s", authorityDir)
		}

		manager, err := authority.Initialize(store, authority.Config{
			CommonName:     authorityCN,
			Organization:   authorityOrg,
			Country:        authorityCountry,
			Algorithm:      alg,
			ValidityYears:  authorityValidity,
			RootPassphrase: []byte(os.Getenv(config.EnvRootPassphrase)),
			TSAPassphrase:  []byte(os.Getenv(config.EnvTSAPassphrase)),
		}, authority.WithLogger(newLogger()))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Authority initialized in %s\n", authorityDir)
		fmt.Fprintf(out, "  Root: %s (serial %s)\n",
			manager.Root().Cert.Subject, manager.Root().Cert.SerialNumber)
		fmt.Fprintf(out, "  TSA:  %s (serial %s)\n",
			manager.TSA().Cert.Subject, manager.TSA().Cert.SerialNumber)
		return nil
	},
}

var authorityInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Display the authority certificates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		store := authority.NewStore(authorityDir)
		if !store.Exists() {
			return fmt.Errorf("no authority found in %s", authorityDir)
		}

		out := cmd.OutOrStdout()
		for _, entry := range []struct {
			name string
			path string
		}{
			{"Root", store.RootCertPath()},
			{"TSA", store.TSACertPath()},
		} {
			cert, err := store.LoadCert(entry.path)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s certificate\n", entry.name)
			fmt.Fprintf(out, "  Subject:    %s\n", cert.Subject)
			fmt.Fprintf(out, "  Serial:     %s\n", cert.SerialNumber)
			fmt.Fprintf(out, "  Not before: %s\n", cert.NotBefore.Format("2006-01-02"))
			fmt.Fprintf(out, "  Not after:  %s\n", cert.NotAfter.Format("2006-01-02"))
			fmt.Fprintf(out, "  Algorithm:  %s\n", cert.PublicKeyAlgorithm)
		}
		return nil
	},
}

func init() {
	authorityCmd.PersistentFlags().StringVar(&authorityDir, "dir", "authority", "authority directory")

	authorityInitCmd.Flags().StringVar(&authorityCN, "cn", "Hestia Document Authority", "root common name")
	authorityInitCmd.Flags().StringVar(&authorityOrg, "org", "Hestia", "organization")
	authorityInitCmd.Flags().StringVar(&authorityCountry, "country", "FR", "country code")
	authorityInitCmd.Flags().StringVar(&authorityAlgorithm, "algorithm", "ed25519",
		"root key algorithm (ed25519, ecdsa-p256, rsa-2048)")
	authorityInitCmd.Flags().IntVar(&authorityValidity, "validity-years", 10, "root certificate validity")

	authorityCmd.AddCommand(authorityInitCmd)
	authorityCmd.AddCommand(authorityInfoCmd)
}
