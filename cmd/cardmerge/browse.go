package main

import (
	"github.com/spf13/cobra"

	"github.com/conorfennell/cardmerge/internal/tui"
)

func newBrowseCmd(a *app) *cobra.Command {
	var search string
	var noWatch bool

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse the collection and transfer data with the copy and paste shortcuts",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := tui.Options{
				CopyShortcut:  a.cfg.ShortcutCopy,
				PasteShortcut: a.cfg.ShortcutPaste,
				Search:        search,
				Logger:        a.logger,
			}
			if !noWatch {
				opts.Watch = a.collection
			}
			return tui.Run(cmd.Context(), a.db, a.newSession(), opts)
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "only list notes whose fields contain this text")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not refresh when the collection changes on disk")
	return cmd
}
