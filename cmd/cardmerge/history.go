package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conorfennell/cardmerge/internal/journal"
)

func newHistoryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List the transfers recorded in the journal",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if a.cfg.JournalDir == "" {
				return fmt.Errorf("%w: no journal configured, set --journal-dir", errUsage)
			}
			j, err := journal.Open(a.cfg.JournalDir)
			if err != nil {
				return err
			}
			entries, err := j.Entries()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "%s  %d -> %d  %s -> %s", e.Time.Local().Format("2006-01-02 15:04:05"), e.SourceID, e.TargetID, e.Source, e.Target)
				if e.Deleted {
					fmt.Fprint(out, "  (source deleted)")
				}
				fmt.Fprintln(out)
			}
			commits, err := j.Commits()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d transfers, %d journal commits\n", len(entries), commits)
			return nil
		},
	}
}
