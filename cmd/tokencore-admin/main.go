// Command tokencore-admin is the operator CLI for the token trust core. It
// drives the administrative HTTP API of a running server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var serverAddr string

var rootCmd = &cobra.Command{
	Use:   "tokencore-admin",
	Short: "Operator CLI for the tokencore service",
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "http://localhost:8080", "Base URL of the tokencore server")

	keysCmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage signing keys",
	}
	keysCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List held signing keys",
			RunE: func(cmd *cobra.Command, args []string) error {
				return request(http.MethodGet, "/v1/keys", nil)
			},
		},
		&cobra.Command{
			Use:   "rotate",
			Short: "Rotate the current signing key",
			RunE: func(cmd *cobra.Command, args []string) error {
				return request(http.MethodPost, "/v1/keys/rotate", nil)
			},
		},
	)

	tokensCmd := &cobra.Command{
		Use:   "tokens",
		Short: "Manage issued tokens",
	}
	revokeCmd := &cobra.Command{
		Use:   "revoke <jti>",
		Short: "Revoke a tracked token by its identifier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reason, _ := cmd.Flags().GetString("reason")
			path := fmt.Sprintf("/v1/tokens/%s?reason=%s", url.PathEscape(args[0]), url.QueryEscape(reason))
			return request(http.MethodDelete, path, nil)
		},
	}
	revokeCmd.Flags().String("reason", "admin_revoked", "Reason recorded with the revocation")
	tokensCmd.AddCommand(revokeCmd)

	subjectsCmd := &cobra.Command{
		Use:   "subjects",
		Short: "Manage per-subject token state",
	}
	revokeAllCmd := &cobra.Command{
		Use:   "revoke-all <subject>",
		Short: "Revoke every live tracked token of a subject",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reason, _ := cmd.Flags().GetString("reason")
			path := fmt.Sprintf("/v1/subjects/%s/tokens?reason=%s", url.PathEscape(args[0]), url.QueryEscape(reason))
			return request(http.MethodDelete, path, nil)
		},
	}
	revokeAllCmd.Flags().String("reason", "admin_revoked", "Reason recorded with the revocations")
	subjectsCmd.AddCommand(revokeAllCmd)

	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Manage the revocation ledger",
	}
	ledgerCmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Purge expired revocation entries and token records now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return request(http.MethodPost, "/v1/maintenance/cleanup", nil)
		},
	})

	rootCmd.AddCommand(keysCmd, tokensCmd, subjectsCmd, ledgerCmd)
}

// request performs one API call and prints the (pretty) JSON response.
func request(method, path string, body interface{}) error {
	var payload io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, serverAddr+path, payload)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(raw) > 0 {
		var pretty bytes.Buffer
		if json.Indent(&pretty, raw, "", "  ") == nil {
			fmt.Println(pretty.String())
		} else {
			fmt.Println(string(raw))
		}
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
