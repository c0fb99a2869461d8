package main

import (
	"fmt"
	"net/http"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/iho/clinicalledger/internal/adapter/http/dto"
	"github.com/iho/clinicalledger/internal/infrastructure/config"
)

func catalogCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the therapy methods the server accepts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp dto.TherapyMethodsResponse
			if err := newAPIClient(opts).do(cmd.Context(), http.MethodGet, "/api/v1/therapy-methods", nil, &resp); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "CODE\tLABEL")
			for _, m := range resp.Methods {
				fmt.Fprintf(tw, "%s\t%s\n", m.Code, m.Label)
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check <file>",
		Short: "Validate a therapy catalog YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := config.LoadCatalogFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d therapy methods OK\n", args[0], len(catalog.Methods()))
			return nil
		},
	})

	return cmd
}
