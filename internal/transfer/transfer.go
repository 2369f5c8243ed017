package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/conorfennell/cardmerge/internal/domain"
	"github.com/conorfennell/cardmerge/internal/fsrs"
	"github.com/conorfennell/cardmerge/internal/notefield"
	"github.com/conorfennell/cardmerge/internal/storage"
)

// Result describes a completed transfer.
type Result struct {
	SourceID int64
	TargetID int64
	// VacatedID is the id the source card was moved to.
	VacatedID int64
	// Attempts is the number of candidate ids tried.
	Attempts int
	// InheritedReviews is the number of review log rows now attached to the target.
	InheritedReviews int
	SourceDeleted    bool
	MemoryCopied     bool
	// Snapshot is the source scheduling captured before any id changed.
	Snapshot    domain.Scheduling
	SourceLabel string
	TargetLabel string
}

// transfer runs the whole procedure in one transaction, so either every step
// applies or none does.
func (s *Session) transfer(ctx context.Context, sourceID, targetID int64) (*Result, error) {
	res := &Result{SourceID: sourceID, TargetID: targetID}

	err := s.db.WithTx(ctx, func(tx *storage.Tx) error {
		// The snapshot must precede the id changes: afterwards sourceID names the target row.
		source, err := tx.Card(ctx, sourceID)
		if err != nil {
			return err
		}
		target, err := tx.Card(ctx, targetID)
		if err != nil {
			return err
		}
		sourceNote, err := tx.Note(ctx, source.NoteID)
		if err != nil {
			return err
		}
		targetNote, err := tx.Note(ctx, target.NoteID)
		if err != nil {
			return err
		}
		res.Snapshot = source.Scheduling
		res.SourceLabel = notefield.NoteLabel(sourceNote)
		res.TargetLabel = notefield.NoteLabel(targetNote)

		vacated, attempts, err := s.vacate(ctx, tx, sourceID)
		res.Attempts = attempts
		if err != nil {
			return err
		}
		res.VacatedID = vacated

		// History keyed to sourceID follows the id onto the target.
		res.InheritedReviews, err = tx.RevlogRefs(ctx, sourceID)
		if err != nil {
			return err
		}
		if err := tx.ReassignCardID(ctx, targetID, sourceID); err != nil {
			return fmt.Errorf("failed to give card %d the id %d: %w", targetID, sourceID, err)
		}

		res.MemoryCopied = s.opts.CopyMemoryState && !fsrs.PayloadEmpty(res.Snapshot.Data)
		if err := tx.UpdateScheduling(ctx, sourceID, res.Snapshot, s.opts.MoveDeck, res.MemoryCopied); err != nil {
			return err
		}
		if err := tx.MarkNoteModified(ctx, target.NoteID); err != nil {
			return err
		}

		if s.opts.DeleteOld {
			if source.NoteID == target.NoteID {
				// Deleting the shared note would take the target with it.
				err = tx.DeleteCard(ctx, vacated)
			} else {
				err = tx.DeleteNote(ctx, source.NoteID)
			}
			if err != nil {
				return err
			}
			res.SourceDeleted = true
		}

		return tx.TouchCollection(ctx, s.now().UnixMilli())
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// vacate moves the card at id to the first candidate above it that no live
// card holds and no review log row references. Reusing an id still present in
// the review log would attach a deleted card's history to the source.
func (s *Session) vacate(ctx context.Context, tx *storage.Tx, id int64) (int64, int, error) {
	for attempt := 1; attempt <= s.opts.MaxIDProbes; attempt++ {
		candidate := id + int64(attempt)

		refs, err := tx.RevlogRefs(ctx, candidate)
		if err != nil {
			return 0, attempt, err
		}
		if refs > 0 {
			s.logger.Debug("candidate id has review history", "source_id", id, "candidate", candidate, "attempt", attempt)
			continue
		}

		err = tx.ReassignCardID(ctx, id, candidate)
		if errors.Is(err, storage.ErrIDTaken) {
			s.logger.Debug("candidate id held by another card", "source_id", id, "candidate", candidate, "attempt", attempt)
			continue
		}
		if err != nil {
			return 0, attempt, err
		}
		return candidate, attempt, nil
	}
	return 0, s.opts.MaxIDProbes, fmt.Errorf("%w: tried %d ids above %d", ErrNoFreeID, s.opts.MaxIDProbes, id)
}
