package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// Client flags.
var (
	serverURL  string
	documentID string
	linkToken  string
	otpCode    string
	outputPath string
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

var certifyCmd = &cobra.Command{
	Use:   "certify",
	Short: "Certify a registered document",
	RunE: func(cmd *cobra.Command, _ []string) error {
		body, err := postServer("/api/v1/documents/"+documentID+"/certify", struct{}{})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(body))
		return nil
	},
}

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a field using a signature request link token",
	RunE: func(cmd *cobra.Command, _ []string) error {
		body, err := postServer("/api/v1/sign/"+linkToken, map[string]string{"code": otpCode})
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(body))
		return nil
	},
}

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Download the sealed proof journal",
	RunE: func(cmd *cobra.Command, _ []string) error {
		resp, err := httpClient.Get(serverURL + "/api/v1/documents/" + documentID + "/journal")
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, body)
		}

		if outputPath == "" || outputPath == "-" {
			_, err = cmd.OutOrStdout().Write(body)
			return err
		}
		if err := os.WriteFile(outputPath, body, 0644); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Journal written to %s (%d bytes)\n", outputPath, len(body))
		return nil
	},
}

// postServer sends a JSON POST and returns the response body, treating
// non-2xx statuses as errors.
func postServer(path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Post(serverURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, body)
	}
	return body, nil
}

func init() {
	for _, cmd := range []*cobra.Command{certifyCmd, signCmd, journalCmd} {
		cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8443", "pipeline server URL")
	}

	certifyCmd.Flags().StringVar(&documentID, "id", "", "document ID")
	_ = certifyCmd.MarkFlagRequired("id")

	signCmd.Flags().StringVar(&linkToken, "token", "", "signature request link token")
	signCmd.Flags().StringVar(&otpCode, "code", "", "one-time confirmation code")
	_ = signCmd.MarkFlagRequired("token")
	_ = signCmd.MarkFlagRequired("code")

	journalCmd.Flags().StringVar(&documentID, "id", "", "document ID")
	journalCmd.Flags().StringVar(&outputPath, "out", "", "output file (default stdout)")
	_ = journalCmd.MarkFlagRequired("id")
}
