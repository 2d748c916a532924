package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"seedpipe/internal/etl"
)

func newFetchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <keyset.json>",
		Short: "Query every key of a key set and overwrite the dataset file",
		Long: "fetch reads a JSON object mapping group names to arrays of keys, issues one query per key " +
			"in order and overwrites the dataset file with the collected attribute objects.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer p.Close()

			result, err := p.svc.RunFetch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
}

func newFlattenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "flatten <file.json>...",
		Short: "Append the records of one or more JSON files to the seed script",
		Long: "flatten reads arrays of flat JSON objects, renders every object as a SQL value tuple " +
			"and appends one batch terminated by a semicolon to the seed script.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer p.Close()

			result, err := p.svc.RunFlatten(cmd.Context(), args)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), result)
			return nil
		},
	}
}

func newWatchCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <file.json>...",
		Short: "Flatten the given files again whenever one of them changes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer p.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			done, err := p.svc.Watch(ctx, args)
			if err != nil {
				return err
			}
			return <-done
		},
	}
}

func newScheduleCmd(opts *rootOptions) *cobra.Command {
	var expr string
	cmd := &cobra.Command{
		Use:   "schedule --cron <expr> <keyset.json>",
		Short: "Run fetch on a cron schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer p.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			done, err := p.svc.Schedule(ctx, expr, args[0])
			if err != nil {
				return err
			}
			return <-done
		},
	}
	cmd.Flags().StringVar(&expr, "cron", "", "Cron expression, e.g. \"0 3 * * *\" or \"@daily\"")
	_ = cmd.MarkFlagRequired("cron")
	return cmd
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func printResult(w io.Writer, r *etl.RunResult) {
	fmt.Fprintf(w, "%s: %s, read %d, wrote %d rows (%d bytes) to %s\n",
		r.Kind, r.Status, r.RowsRead, r.RowsWritten, r.Bytes, r.Output)
	for _, s := range r.Skipped {
		fmt.Fprintf(w, "  skipped %s\n", s)
	}
}
