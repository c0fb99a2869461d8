package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/iho/clinicalledger/internal/adapter/http/handler"
)

func exportCmd(opts *globalOptions) *cobra.Command {
	var (
		format       string
		includeAudit bool
		archive      bool
		output       string
	)

	cmd := &cobra.Command{
		Use:   "export <patient-id>",
		Short: "Export a patient's ledger",
		Long:  `Export a patient's ledger as print, table, structured or cbor.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("format", format)
			q.Set("include_audit", strconv.FormatBool(includeAudit))
			q.Set("archive", strconv.FormatBool(archive))
			path := "/api/v1/patients/" + url.PathEscape(args[0]) + "/export?" + q.Encode()

			payload, header, err := newAPIClient(opts).raw(cmd.Context(), http.MethodGet, path, nil)
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				if _, err := cmd.OutOrStdout().Write(payload); err != nil {
					return err
				}
			} else {
				if err := os.WriteFile(output, payload, 0o600); err != nil {
					return fmt.Errorf("write %s: %w", output, err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d bytes to %s\n", len(payload), output)
			}

			if loc := header.Get(handler.ExportLocationHeader); loc != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "archived at %s\n", loc)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "print", "Export format: print, table, structured, cbor")
	cmd.Flags().BoolVar(&includeAudit, "include-audit", false, "Embed the audit trail (structured and cbor)")
	cmd.Flags().BoolVar(&archive, "archive", false, "Also store the export in object storage")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to file instead of stdout")
	return cmd
}
