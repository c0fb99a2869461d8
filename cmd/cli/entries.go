package main

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/iho/clinicalledger/internal/adapter/http/dto"
)

func entriesPath(patientID string, parts ...string) string {
	p := "/api/v1/patients/" + url.PathEscape(patientID) + "/entries"
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

func entriesCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entries",
		Short: "Treatment entry operations",
	}

	cmd.AddCommand(
		listEntriesCmd(opts),
		getEntryCmd(opts),
		createEntryCmd(opts),
		amendEntryCmd(opts),
		historyCmd(opts),
		versionCmd(opts),
	)
	return cmd
}

func listEntriesCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list <patient-id>",
		Short: "Show a patient's annotated timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var timeline dto.TimelineResponse
			if err := newAPIClient(opts).do(cmd.Context(), http.MethodGet, entriesPath(args[0]), nil, &timeline); err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), timeline)
			}
			printTimeline(cmd.OutOrStdout(), &timeline)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw JSON response")
	return cmd
}

func getEntryCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <patient-id> <entry-id>",
		Short: "Show one entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var entry dto.AnnotatedEntryResponse
			if err := newAPIClient(opts).do(cmd.Context(), http.MethodGet, entriesPath(args[0], args[1]), nil, &entry); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entry)
		},
	}
}

func createEntryCmd(opts *globalOptions) *cobra.Command {
	var (
		req      dto.CreateEntryRequest
		measures []string
	)

	cmd := &cobra.Command{
		Use:   "create <patient-id>",
		Short: "Record a visit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := parseMeasurements(measures)
			if err != nil {
				return err
			}
			req.Measurements = m

			var entry dto.EntryResponse
			if err := newAPIClient(opts).do(cmd.Context(), http.MethodPost, entriesPath(args[0]), req, &entry); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entry)
		},
	}

	cmd.Flags().StringVar(&req.Date, "date", "", "Visit date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&req.Content, "content", "", "Clinical note")
	cmd.Flags().StringSliceVar(&req.TherapyMethods, "method", nil, "Therapy method code (repeatable)")
	cmd.Flags().StringArrayVar(&measures, "measure", nil, "Measurement as name=value (repeatable)")
	_ = cmd.MarkFlagRequired("date")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func amendEntryCmd(opts *globalOptions) *cobra.Command {
	var (
		req               dto.AmendEntryRequest
		content           string
		methods           []string
		measures          []string
		clearMethods      bool
		clearMeasurements bool
	)

	cmd := &cobra.Command{
		Use:   "amend <patient-id> <entry-id>",
		Short: "Amend an entry with a reason",
		Long: `Amend an entry. Only the flags given are changed; --method and --measure
replace the whole set.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if flags.Changed("content") {
				req.Content = &content
			}
			switch {
			case clearMethods:
				req.TherapyMethods = &[]string{}
			case flags.Changed("method"):
				req.TherapyMethods = &methods
			}
			switch {
			case clearMeasurements:
				empty := map[string]decimal.Decimal{}
				req.Measurements = &empty
			case flags.Changed("measure"):
				m, err := parseMeasurements(measures)
				if err != nil {
					return err
				}
				req.Measurements = &m
			}

			var entry dto.EntryResponse
			if err := newAPIClient(opts).do(cmd.Context(), http.MethodPost, entriesPath(args[0], args[1], "amendments"), req, &entry); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entry)
		},
	}

	cmd.Flags().Int64Var(&req.ExpectedVersion, "expected-version", 0, "Version the amendment is based on")
	cmd.Flags().StringVar(&req.Reason, "reason", "", "Why the record is being amended")
	cmd.Flags().StringVar(&content, "content", "", "New clinical note")
	cmd.Flags().StringSliceVar(&methods, "method", nil, "New therapy method set (repeatable)")
	cmd.Flags().StringArrayVar(&measures, "measure", nil, "New measurement set as name=value (repeatable)")
	cmd.Flags().BoolVar(&clearMethods, "clear-methods", false, "Remove all therapy methods")
	cmd.Flags().BoolVar(&clearMeasurements, "clear-measurements", false, "Remove all measurements")
	_ = cmd.MarkFlagRequired("expected-version")
	_ = cmd.MarkFlagRequired("reason")
	cmd.MarkFlagsMutuallyExclusive("method", "clear-methods")
	cmd.MarkFlagsMutuallyExclusive("measure", "clear-measurements")
	return cmd
}

func historyCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <patient-id> <entry-id>",
		Short: "Show an entry's audit trail",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var history dto.HistoryResponse
			if err := newAPIClient(opts).do(cmd.Context(), http.MethodGet, entriesPath(args[0], args[1], "history"), nil, &history); err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), &history)
			return nil
		},
	}
}

func versionCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "version <patient-id> <entry-id> <version>",
		Short: "Show an entry as it stood at a past version",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var v dto.VersionResponse
			if err := newAPIClient(opts).do(cmd.Context(), http.MethodGet, entriesPath(args[0], args[1], "versions", args[2]), nil, &v); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), v)
		},
	}
}

// parseMeasurements parses name=value pairs.
func parseMeasurements(pairs []string) (map[string]decimal.Decimal, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]decimal.Decimal, len(pairs))
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("measurement %q must be name=value", pair)
		}
		d, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("measurement %q: %w", name, err)
		}
		out[strings.TrimSpace(name)] = d
	}
	return out, nil
}

func printTimeline(w io.Writer, t *dto.TimelineResponse) {
	if len(t.Entries) == 0 {
		fmt.Fprintf(w, "No entries for patient %s\n", t.PatientID)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tELAPSED\tVERSION\tID\tCONTENT")
	for _, e := range t.Entries {
		fmt.Fprintf(tw, "%s\t%s\tv%d\t%s\t%s\n", e.Date, e.Elapsed.Marker, e.Version, e.ID, truncate(firstLine(e.Content), 40))
	}
	tw.Flush()
}

func printHistory(w io.Writer, h *dto.HistoryResponse) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "VERSION\tACTION\tACTOR\tTIMESTAMP\tCHANGED\tREASON")
	for _, ev := range h.Events {
		fmt.Fprintf(tw, "v%d\t%s\t%s\t%s\t%s\t%s\n",
			ev.NewVersion, ev.Action, ev.ActorID, ev.Timestamp.Format("2006-01-02 15:04:05"),
			strings.Join(ev.ChangedFields, ","), truncate(ev.Reason, 40))
	}
	tw.Flush()

	if h.ChainValid {
		fmt.Fprintln(w, "Audit chain: OK")
	} else {
		fmt.Fprintf(w, "Audit chain: BROKEN (%s)\n", h.ChainError)
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// truncate shortens s to n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
