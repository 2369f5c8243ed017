package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conorfennell/cardmerge/internal/notefield"
)

func newDupesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dupes",
		Short: "List notes sharing the same first field, the usual candidates for a transfer",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			notes, err := a.db.AllNotes(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			groups := notefield.GroupDuplicates(notes)
			if len(groups) == 0 {
				fmt.Fprintln(out, "No duplicate notes found.")
				return nil
			}
			for _, group := range groups {
				fmt.Fprintf(out, "%s (%d notes)\n", notefield.NoteLabel(&group[0]), len(group))
				for _, n := range group {
					cards, err := a.db.CardsByNote(ctx, n.ID)
					if err != nil {
						return err
					}
					ids := make([]string, len(cards))
					for i, c := range cards {
						ids[i] = strconv.FormatInt(c.ID, 10)
					}
					fmt.Fprintf(out, "  note %d  cards %s\n", n.ID, strings.Join(ids, ", "))
				}
			}
			return nil
		},
	}
}
