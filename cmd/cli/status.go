package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL  string
	outputJSON bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Shows the status of a running CodeReviewBot service",
	RunE: func(_ *cobra.Command, _ []string) error {
		client := &http.Client{Timeout: 10 * time.Second}
		resp, err := client.Get(serverURL + "/api/v1/status")
		if err != nil {
			return fmt.Errorf("failed to reach service at %s: %w", serverURL, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("service returned %s", resp.Status)
		}

		var status map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			return fmt.Errorf("failed to decode status response: %w", err)
		}

		if outputJSON {
			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(status)
		}

		successColor.Printf("Service: %s\n", status["status"])
		dimColor.Printf("Uptime:  %s\n", status["uptime"])
		return nil
	},
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	statusCmd.Flags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "base URL of the running service")
	statusCmd.Flags().BoolVar(&outputJSON, "json", false, "print the raw JSON response")
	rootCmd.AddCommand(statusCmd)
}
