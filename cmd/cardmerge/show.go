package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/conorfennell/cardmerge/internal/domain"
	"github.com/conorfennell/cardmerge/internal/fsrs"
	"github.com/conorfennell/cardmerge/internal/notefield"
)

var headingStyle = lipgloss.NewStyle().Bold(true)

var easeNames = map[int]string{1: "again", 2: "hard", 3: "good", 4: "easy"}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show CARD",
		Short: "Show a card's scheduling data, memory state and review history",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseCardID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			card, err := a.db.Card(ctx, id)
			if err != nil {
				return err
			}
			note, err := a.db.Note(ctx, card.NoteID)
			if err != nil {
				return err
			}
			logs, err := a.db.ReviewLogs(ctx, card.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, headingStyle.Render(fmt.Sprintf("Card %d", card.ID)))
			fmt.Fprintf(out, "  note      %d  %s\n", note.ID, notefield.NoteLabel(note))
			fmt.Fprintf(out, "  fields    %s\n", strings.Join(plainFields(note), " | "))
			fmt.Fprintf(out, "  deck      %d (original %d)\n", card.DeckID, card.OriginalDeckID)
			fmt.Fprintf(out, "  queue     %s  type %d\n", domain.QueueName(card.Queue), card.Type)
			fmt.Fprintf(out, "  due       %d (original %d)\n", card.Due, card.OriginalDue)
			fmt.Fprintf(out, "  interval  %d  ease %d  reps %d  lapses %d\n", card.Interval, card.Factor, card.Reps, card.Lapses)

			fmt.Fprintln(out, headingStyle.Render("Memory state"))
			fmt.Fprintln(out, "  "+describeMemory(card.Data, time.Now()))

			fmt.Fprintln(out, headingStyle.Render(fmt.Sprintf("Reviews (%d)", len(logs))))
			for _, r := range logs {
				fmt.Fprintf(out, "  %s  %-5s  ivl %d  ease %d  %.1fs\n",
					time.UnixMilli(r.ID).Format("2006-01-02 15:04"),
					easeNames[r.Ease], r.Interval, r.Factor, float64(r.TimeMillis)/1000)
			}
			return nil
		},
	}
}

func plainFields(n *domain.Note) []string {
	fields := notefield.Fields(n.Fields)
	for i, f := range fields {
		fields[i] = notefield.Plain(f)
	}
	return fields
}

func describeMemory(data string, now time.Time) string {
	if fsrs.PayloadEmpty(data) {
		return "none"
	}
	ms, err := fsrs.ParseMemoryState(data)
	if err != nil {
		return "unreadable: " + data
	}
	if ms.IsEmpty() {
		return "no FSRS state (" + data + ")"
	}
	s := fmt.Sprintf("stability %.2f  difficulty %.2f", ms.Stability, ms.Difficulty)
	if ms.DesiredRetention > 0 {
		s += fmt.Sprintf("  desired retention %.2f", ms.DesiredRetention)
	}
	if r, ok := ms.RetrievabilityAt(now); ok {
		s += fmt.Sprintf("  retrievability %.0f%%", r*100)
	}
	return s
}
