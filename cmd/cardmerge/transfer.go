package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// cliHost is the transfer host of a one-shot command: the selection is the
// card named on the command line and notifications go to the output.
type cliHost struct {
	out       io.Writer
	selected  []int64
	refreshed bool
}

func (h *cliHost) SelectedCards() ([]int64, error) {
	return h.selected, nil
}

func (h *cliHost) Notify(msg string) {
	fmt.Fprintln(h.out, msg)
}

func (h *cliHost) Refresh() {
	h.refreshed = true
}

func newTransferCmd(a *app) *cobra.Command {
	var from, to int64
	var yes bool

	cmd := &cobra.Command{
		Use:   "transfer --from CARD --to CARD",
		Short: "Transfer the scheduling data and review history of one card onto another",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := noArgs(cmd, args); err != nil {
				return err
			}
			if !cmd.Flags().Changed("from") || !cmd.Flags().Changed("to") {
				return fmt.Errorf("%w: both --from and --to are required", errUsage)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			session := a.newSession()
			host := &cliHost{out: cmd.OutOrStdout(), selected: []int64{from}}

			if _, err := session.Mark(ctx, host); err != nil {
				return reportedError{err}
			}

			if session.Options().DeleteOld && !yes && term.IsTerminal(int(os.Stdin.Fd())) {
				ok, err := confirmDelete(from)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Transfer cancelled.")
					return nil
				}
			}

			host.selected = []int64{to}
			res, err := session.Apply(ctx, host)
			if err != nil {
				return reportedError{err}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "card %d now holds the scheduling data and %d reviews of card %d\n", res.SourceID, res.InheritedReviews, res.TargetID)
			if res.SourceDeleted {
				fmt.Fprintf(out, "the source note was deleted\n")
			} else {
				fmt.Fprintf(out, "the source card moved to id %d\n", res.VacatedID)
			}
			return nil
		},
	}

	cmd.Flags().Int64Var(&from, "from", 0, "card to take the data from")
	cmd.Flags().Int64Var(&to, "to", 0, "card to transfer the data onto")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask before deleting the source note")
	return cmd
}

func confirmDelete(sourceID int64) (bool, error) {
	var ok bool
	err := huh.NewConfirm().
		Title("Delete the source note after the transfer?").
		Description("Card " + strconv.FormatInt(sourceID, 10) + " and every card of its note will be removed.").
		Affirmative("Transfer").
		Negative("Cancel").
		Value(&ok).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("confirmation failed: %w", err)
	}
	return ok, nil
}

func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		return nil
	}
}

func parseCardID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid card id %q", errUsage, arg)
	}
	return id, nil
}
