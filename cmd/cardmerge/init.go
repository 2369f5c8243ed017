package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conorfennell/cardmerge/internal/domain"
	"github.com/conorfennell/cardmerge/internal/notefield"
	"github.com/conorfennell/cardmerge/internal/storage"
)

func newInitCmd(a *app) *cobra.Command {
	var demo bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create an empty collection, optionally filled with sample cards",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if !demo {
				fmt.Fprintf(out, "collection ready at %s\n", a.collection)
				return nil
			}
			notes, err := a.db.AllNotes(cmd.Context())
			if err != nil {
				return err
			}
			if len(notes) > 0 {
				return fmt.Errorf("%w: %s already has notes, refusing to add the demo", errUsage, a.collection)
			}
			if err := seedDemo(cmd.Context(), a.db); err != nil {
				return err
			}
			fmt.Fprintf(out, "demo collection ready at %s, try `cardmerge dupes`\n", a.collection)
			return nil
		},
	}

	cmd.Flags().BoolVar(&demo, "demo", false, "add sample notes, cards and reviews")
	return cmd
}

// demoBase is an epoch-millisecond id base, the way the host creates ids.
const demoBase int64 = 1700000000000

const day = 24 * 60 * 60 * 1000

// demoNote builds a note of the collection's default note type: front, back
// and an empty context.
func demoNote(n int64, guid, front, back string) domain.Note {
	fields := strings.Join([]string{front, back, ""}, domain.FieldSeparator)
	return domain.Note{
		ID:       demoBase + n,
		GUID:     guid,
		ModelID:  storage.DefaultNoteTypeID,
		Tags:     " demo ",
		Fields:   fields,
		Sort:     notefield.Plain(front),
		Checksum: notefield.Checksum(fields),
	}
}

// seedDemo adds a reviewed note, a fresh duplicate of it and a few others.
func seedDemo(ctx context.Context, db *storage.DB) error {
	notes := []domain.Note{
		demoNote(1, "demo-maison", "la maison", "the house"),
		demoNote(2, "demo-maison-2", "<b>la maison</b>", "the house (rewritten)"),
		demoNote(3, "demo-chat", "le chat", "the cat"),
		demoNote(4, "demo-chien", "le chien", "the dog"),
	}
	reviewed := domain.Scheduling{
		DeckID: 1, Due: 120, Interval: 21, Factor: 2500, Reps: 6, Lapses: 1,
		Queue: domain.QueueReview, Type: 2, Mod: (demoBase + 20*day) / 1000,
		Data: fmt.Sprintf(`{"s":21.4,"d":5.2,"dr":0.9,"lrt":%d}`, (demoBase+20*day)/1000),
	}
	cards := []domain.Card{
		{ID: demoBase + 101, NoteID: demoBase + 1, Scheduling: reviewed},
		{ID: demoBase + 102, NoteID: demoBase + 2, Scheduling: domain.Scheduling{DeckID: 1, Due: 1, Queue: domain.QueueNew}},
		{ID: demoBase + 103, NoteID: demoBase + 3, Scheduling: domain.Scheduling{DeckID: 1, Due: 2, Queue: domain.QueueNew}},
		{ID: demoBase + 104, NoteID: demoBase + 4, Scheduling: domain.Scheduling{DeckID: 1, Due: 3, Queue: domain.QueueNew}},
		{ID: demoBase + 105, NoteID: demoBase + 4, Ord: 1, Scheduling: domain.Scheduling{DeckID: 1, Due: 4, Queue: domain.QueueNew}},
	}

	for _, n := range notes {
		if err := db.AddNote(ctx, n); err != nil {
			return err
		}
	}
	for _, c := range cards {
		if err := db.AddCard(ctx, c); err != nil {
			return err
		}
	}
	for i, ease := range []int{3, 3, 1, 3, 4, 3} {
		r := domain.ReviewLog{
			ID:         demoBase + int64(i+1)*3*day,
			CardID:     demoBase + 101,
			Ease:       ease,
			Interval:   i*4 + 1,
			Factor:     2500,
			TimeMillis: 4000 + i*500,
			Type:       1,
		}
		if err := db.AddReviewLog(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
