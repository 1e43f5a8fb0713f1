package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/spf13/cobra"
)

// LegalPerson is a registered issuer or verifier as returned by the admin API
type LegalPerson struct {
	ID           int64  `json:"id"`
	DID          string `json:"did"`
	URL          string `json:"url"`
	FriendlyName string `json:"friendlyName"`
	ClientID     string `json:"clientId,omitempty"`
	IsIssuer     bool   `json:"isIssuer"`
}

var legalPersonCmd = &cobra.Command{
	Use:     "legal-person",
	Aliases: []string{"lp"},
	Short:   "Manage issuers and verifiers",
	Long:    `Commands for registering and inspecting the credential issuers and verifiers known to the wallet.`,
}

var legalPersonListIssuers bool

var legalPersonListCmd = &cobra.Command{
	Use:   "list",
	Short: "List legal persons",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/admin/legal_person"
		if legalPersonListIssuers {
			path += "?issuers=true"
		}

		data, err := NewClient(adminURL, adminToken).Request(http.MethodGet, path, nil)
		if err != nil {
			return err
		}

		if output == "json" {
			return printJSON(cmd.OutOrStdout(), data)
		}

		var lps []LegalPerson
		if err := json.Unmarshal(data, &lps); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		if len(lps) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No legal persons found.")
			return nil
		}

		headers := []string{"DID", "NAME", "URL", "ROLE"}
		rows := make([][]string, len(lps))
		for i, lp := range lps {
			role := "verifier"
			if lp.IsIssuer {
				role = "issuer"
			}
			rows[i] = []string{lp.DID, lp.FriendlyName, lp.URL, role}
		}
		printTable(cmd.OutOrStdout(), headers, rows)
		return nil
	},
}

var legalPersonGetCmd = &cobra.Command{
	Use:   "get [did]",
	Short: "Get a legal person by DID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := NewClient(adminURL, adminToken).Request(http.MethodGet, "/admin/legal_person/"+url.PathEscape(args[0]), nil)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), data)
	},
}

var (
	legalPersonRegisterDID      string
	legalPersonRegisterURL      string
	legalPersonRegisterName     string
	legalPersonRegisterClientID string
	legalPersonRegisterIssuer   bool
)

var legalPersonRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register an issuer or verifier",
	Long: `Register a legal person with the wallet.

Issuers are resolved by DID when a user starts issuance, and by URL when a
credential offer names them. The URL must equal the credential_issuer
identifier of the issuer metadata.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if legalPersonRegisterDID == "" {
			return fmt.Errorf("--did is required")
		}
		if legalPersonRegisterURL == "" {
			return fmt.Errorf("--service-url is required")
		}
		if legalPersonRegisterName == "" {
			return fmt.Errorf("--name is required")
		}

		reqBody := map[string]interface{}{
			"did":          legalPersonRegisterDID,
			"url":          legalPersonRegisterURL,
			"friendlyName": legalPersonRegisterName,
			"isIssuer":     legalPersonRegisterIssuer,
		}
		if legalPersonRegisterClientID != "" {
			reqBody["clientId"] = legalPersonRegisterClientID
		}

		data, err := NewClient(adminURL, adminToken).Request(http.MethodPost, "/admin/legal_person", reqBody)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Legal person '%s' registered.\n", legalPersonRegisterDID)
		if output == "json" {
			return printJSON(cmd.OutOrStdout(), data)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(legalPersonCmd)
	legalPersonCmd.AddCommand(legalPersonListCmd, legalPersonGetCmd, legalPersonRegisterCmd)

	legalPersonListCmd.Flags().BoolVar(&legalPersonListIssuers, "issuers", false, "Only list credential issuers")

	legalPersonRegisterCmd.Flags().StringVar(&legalPersonRegisterDID, "did", "", "DID of the legal person (required)")
	legalPersonRegisterCmd.Flags().StringVar(&legalPersonRegisterURL, "service-url", "", "Base URL; for issuers the credential_issuer identifier (required)")
	legalPersonRegisterCmd.Flags().StringVar(&legalPersonRegisterName, "name", "", "Display name (required)")
	legalPersonRegisterCmd.Flags().StringVar(&legalPersonRegisterClientID, "client-id", "", "OAuth client_id registered with the issuer")
	legalPersonRegisterCmd.Flags().BoolVar(&legalPersonRegisterIssuer, "issuer", false, "Register as a credential issuer")
}
