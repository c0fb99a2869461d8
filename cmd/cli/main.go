package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by API commands.
type globalOptions struct {
	baseURL string
	timeout time.Duration
	actor   string
	token   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Clinical record ledger CLI",
		Long:          `A command line interface for the clinical record ledger API and its database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.baseURL, "url", envOr("LEDGER_URL", "http://localhost:8080"), "Base URL of the ledger API")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")
	rootCmd.PersistentFlags().StringVar(&opts.actor, "actor", os.Getenv("LEDGER_ACTOR"), "Practitioner id sent as X-Actor-ID")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", os.Getenv("LEDGER_TOKEN"), "Bearer token (takes precedence over --actor)")

	rootCmd.AddCommand(
		entriesCmd(opts),
		exportCmd(opts),
		catalogCmd(opts),
		migrateCmd(),
		tokenCmd(),
	)

	return rootCmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
