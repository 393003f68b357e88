package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newActivityCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "Show the recorded activity log",
		Long: `Show the most recent entries of the activity log.

Token refreshes, cache fetches, selections and generated schemas are
recorded in the cache database, newest first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, nil)
			if err != nil {
				return err
			}
			defer rt.Close()

			if rt.store == nil {
				return errors.New("the cache store is not available")
			}
			entries, err := rt.session.Activity(ctx, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				return printJSON(out, entries)
			}

			tw := newTable(out)
			fmt.Fprintln(tw, "TIME\tLEVEL\tTYPE\tMESSAGE")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.OccurredAt.Local().Format(time.DateTime), e.Level, e.Type, e.Message)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")

	return cmd
}
