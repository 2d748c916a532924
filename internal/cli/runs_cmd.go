package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"seedpipe/internal/etl"
)

func newRunsCmd(opts *rootOptions) *cobra.Command {
	var (
		kind  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs (requires --history-db)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch etl.RunKind(kind) {
			case "", etl.RunFetch, etl.RunFlatten:
			default:
				return fmt.Errorf("unknown run kind %q: use fetch or flatten", kind)
			}

			p, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer p.Close()

			logs, err := p.svc.ListRunLogs(etl.RunKind(kind), limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tKIND\tSTATUS\tREAD\tWRITTEN\tINPUTS\tERROR")
			for _, l := range logs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
					l.StartedAt.Format(time.RFC3339), l.Kind, l.Status,
					l.RowsRead, l.RowsWritten, strings.Join(l.Inputs, ","), l.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Only list runs of this kind (fetch, flatten)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")
	return cmd
}
