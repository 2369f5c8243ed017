package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conorfennell/cardmerge/internal/importer"
	"github.com/conorfennell/cardmerge/internal/storage"
)

func newImportCmd(a *app) *cobra.Command {
	var noteType string
	var deckID int64
	var tags []string

	cmd := &cobra.Command{
		Use:   "import PATH...",
		Short: "Add Q:/A:/C: markdown flashcards as new notes",
		Long: `import reads every .md file under the given paths and adds each Q:/A:/C: block
as a new note with one new card. Blocks already present with identical fields are
skipped. New notes sharing a first field with an existing note are counted, as they
are usually rewrites whose card should receive the old card's scheduling data.

The note type and deck must exist in the collection's col row, which holds for
collections created by cardmerge init. With a two-field note type the C: context
is appended to the back.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.MinimumNArgs(1)(cmd, args); err != nil {
				return fmt.Errorf("%w: %v", errUsage, err)
			}
			if noteType == "" {
				return fmt.Errorf("%w: --notetype is required", errUsage)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, errs := importer.Collect(args)
			report, err := importer.Import(cmd.Context(), a.db, entries, importer.Options{
				NoteType: noteType,
				DeckID:   deckID,
				Tags:     tags,
				Logger:   a.logger,
			})
			if errors.Is(err, importer.ErrNoteType) || errors.Is(err, importer.ErrDeck) {
				return fmt.Errorf("%w: %v", errUsage, err)
			}
			if err != nil {
				return err
			}
			errs = append(errs, report.Errors...)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d parsed, %d added, %d unchanged\n", report.Parsed, report.Added, report.Unchanged)
			if report.SharedFront > 0 {
				fmt.Fprintf(out, "%d new notes share a first field with an existing note, see `cardmerge dupes`\n", report.SharedFront)
			}
			for _, e := range errs {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", e)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&noteType, "notetype", "", "id or name of the note type of the new notes (required)")
	cmd.Flags().Int64Var(&deckID, "deck", storage.DefaultDeckID, "deck id of the new cards")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "tag added to every new note (repeatable)")
	return cmd
}
