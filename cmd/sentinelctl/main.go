package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL string
	authToken string
	cfgFile   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "sentinelctl",
	Short: "Operator CLI for the sentinel response agent",
	Long: `sentinelctl talks to a running sentinel agent over its operator API.

It shows the agent's runtime state and active blocks, lifts blocks ahead
of their expiry, and inspects the audit trail.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".sentinel"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8088"
		}
		if authToken == "" {
			authToken = viper.GetString("token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.sentinel/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "sentinel operator API URL (default http://localhost:8088)")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", "", "operator bearer token (obtained via 'sentinelctl login')")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(blocksCmd)
	rootCmd.AddCommand(releaseCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(versionCmd)
}

// ── http client ──────────────────────────────────────────────────────────────

func apiRequest(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(serverURL, "/")+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, path)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// ── status ───────────────────────────────────────────────────────────────────

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the agent's runtime state and decision counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			State        string `json:"state"`
			ActiveBlocks int    `json:"active_blocks"`
			Stats        struct {
				Blocks           int64   `json:"total_blocks"`
				Unblocks         int64   `json:"total_unblocks"`
				Alerts           int64   `json:"total_alerts"`
				RateLimits       int64   `json:"total_rate_limits"`
				Suppressed       int64   `json:"total_suppressed"`
				Ticks            int64   `json:"total_ticks"`
				DetectorFailures int64   `json:"detector_failures"`
				UnblockFailures  int64   `json:"unblock_failures"`
				UptimeSeconds    float64 `json:"uptime_seconds"`
			} `json:"stats"`
		}
		if err := apiRequest(cmd.Context(), http.MethodGet, "/api/v1/status", nil, &resp); err != nil {
			return err
		}

		fmt.Printf("State:         %s\n", resp.State)
		fmt.Printf("Active blocks: %d\n", resp.ActiveBlocks)
		fmt.Printf("Uptime:        %s\n\n", (time.Duration(resp.Stats.UptimeSeconds) * time.Second).String())

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "COUNTER\tVALUE")
		fmt.Fprintf(w, "ticks\t%d\n", resp.Stats.Ticks)
		fmt.Fprintf(w, "blocks\t%d\n", resp.Stats.Blocks)
		fmt.Fprintf(w, "unblocks\t%d\n", resp.Stats.Unblocks)
		fmt.Fprintf(w, "alerts\t%d\n", resp.Stats.Alerts)
		fmt.Fprintf(w, "rate_limits\t%d\n", resp.Stats.RateLimits)
		fmt.Fprintf(w, "suppressed\t%d\n", resp.Stats.Suppressed)
		fmt.Fprintf(w, "detector_failures\t%d\n", resp.Stats.DetectorFailures)
		fmt.Fprintf(w, "unblock_failures\t%d\n", resp.Stats.UnblockFailures)
		return w.Flush()
	},
}

// ── blocks ───────────────────────────────────────────────────────────────────

type blockRow struct {
	Subject     string    `json:"subject"`
	BlockedAt   time.Time `json:"blocked_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	RiskAtBlock float64   `json:"risk_at_block"`
	RuleHandle  string    `json:"rule_handle,omitempty"`
}

var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "List the currently active blocks",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Count  int        `json:"count"`
			Blocks []blockRow `json:"blocks"`
		}
		if err := apiRequest(cmd.Context(), http.MethodGet, "/api/v1/blocks", nil, &resp); err != nil {
			return err
		}

		if resp.Count == 0 {
			fmt.Println("No active blocks.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SUBJECT\tRISK\tBLOCKED\tEXPIRES")
		for _, b := range resp.Blocks {
			fmt.Fprintf(w, "%s\t%.2f\t%s\t%s\n",
				b.Subject, b.RiskAtBlock,
				b.BlockedAt.Format(time.RFC3339),
				b.ExpiresAt.Format(time.RFC3339),
			)
		}
		return w.Flush()
	},
}

// ── release ──────────────────────────────────────────────────────────────────

var releaseCmd = &cobra.Command{
	Use:   "release <subject>",
	Short: "Lift an active block before its expiry",
	Long: `Release removes the block for a subject and rolls back the enforcement
rule. Requires an operator token; run 'sentinelctl login' first.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if authToken == "" {
			return fmt.Errorf("release requires an operator token; run 'sentinelctl login' first")
		}
		subject := args[0]

		var resp struct {
			Released blockRow `json:"released"`
		}
		if err := apiRequest(cmd.Context(), http.MethodDelete, "/api/v1/blocks/"+subject, nil, &resp); err != nil {
			return err
		}
		fmt.Printf("✓ Block released: %s (was due to expire %s)\n",
			resp.Released.Subject, resp.Released.ExpiresAt.Format(time.RFC3339))
		return nil
	},
}

// ── audit ────────────────────────────────────────────────────────────────────

var auditLimit int

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the most recent audit records",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Count   int `json:"count"`
			Records []struct {
				Index      int64     `json:"index"`
				Timestamp  time.Time `json:"timestamp"`
				Subject    string    `json:"subject"`
				FinalScore float64   `json:"final_score"`
				Level      string    `json:"level"`
				Action     string    `json:"action"`
				Error      string    `json:"error,omitempty"`
			} `json:"records"`
		}
		path := fmt.Sprintf("/api/v1/audit?limit=%d", auditLimit)
		if err := apiRequest(cmd.Context(), http.MethodGet, path, nil, &resp); err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "IDX\tTIME\tSUBJECT\tSCORE\tLEVEL\tACTION\tERROR")
		for _, r := range resp.Records {
			fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\t%s\t%s\t%s\n",
				r.Index, r.Timestamp.Format(time.RFC3339),
				r.Subject, r.FinalScore, r.Level, r.Action, r.Error,
			)
		}
		return w.Flush()
	},
}

func init() {
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "Number of records to fetch (1-1000)")
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the audit log's hash chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Valid   bool   `json:"valid"`
			Root    string `json:"root"`
			Records int    `json:"records"`
			Error   string `json:"error"`
		}
		err := apiRequest(cmd.Context(), http.MethodGet, "/api/v1/audit/verify", nil, &resp)
		if err != nil && resp.Error == "" {
			return err
		}

		if !resp.Valid {
			return fmt.Errorf("audit chain is BROKEN: %s", resp.Error)
		}
		fmt.Printf("✓ Audit chain valid (%d records)\n", resp.Records)
		fmt.Printf("  Root: %s\n", resp.Root)
		return nil
	},
}

// ── login ────────────────────────────────────────────────────────────────────

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate and save an operator token",
	Long: `Login prompts for the operator password and exchanges it for a bearer
token, which is saved to the config file for later commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Print("Operator password: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("read password: %w", err)
		}

		var resp struct {
			Token string `json:"token"`
		}
		body := map[string]string{"password": string(raw)}
		if err := apiRequest(cmd.Context(), http.MethodPost, "/api/v1/auth/login", body, &resp); err != nil {
			return err
		}

		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("get home dir: %w", err)
		}
		dir := filepath.Join(home, ".sentinel")
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}

		viper.Set("server_url", serverURL)
		viper.Set("token", resp.Token)
		cfgPath := filepath.Join(dir, "config.yaml")
		if err := viper.WriteConfigAs(cfgPath); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Printf("✓ Logged in; token saved to %s\n", cfgPath)
		return nil
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the sentinelctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("sentinelctl %s\n", version)
	},
}
