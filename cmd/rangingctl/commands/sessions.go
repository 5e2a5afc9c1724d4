package commands

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/go-ranging/goranging/internal/aggregator"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect ranging sessions",
	}

	cmd.AddCommand(sessionsListCmd())

	return cmd
}

func sessionsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all open ranging sessions",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var snapshots []aggregator.Snapshot
			if err := getJSON("/v1/sessions", &snapshots); err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}

			out, err := formatSessions(snapshots, outputFormat)
			if err != nil {
				return fmt.Errorf("format sessions: %w", err)
			}

			fmt.Print(out)
			return nil
		},
	}
}

func formatSessions(snapshots []aggregator.Snapshot, format string) (string, error) {
	switch format {
	case formatJSON:
		return formatSessionsJSON(snapshots)
	case formatTable:
		return formatSessionsTable(snapshots), nil
	default:
		return "", fmt.Errorf("unsupported output format %q", format)
	}
}

func formatSessionsTable(snapshots []aggregator.Snapshot) string {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PEER\tSTATE\tMEASUREMENTS")

	for _, s := range snapshots {
		fmt.Fprintf(w, "%s\t%s\t%d\n", s.Peer.String(), s.State.String(), s.MeasurementCount)
	}

	_ = w.Flush()
	return buf.String()
}
