package storage

import (
	"context"
	"fmt"

	"github.com/conorfennell/cardmerge/internal/domain"
)

// Tx exposes the row mutations of a transfer. It is only valid inside WithTx.
type Tx struct {
	tx querier
}

// Card retrieves a card by id within the transaction.
func (t *Tx) Card(ctx context.Context, id int64) (*domain.Card, error) {
	return getCard(ctx, t.tx, id)
}

// Note retrieves a note by id within the transaction.
func (t *Tx) Note(ctx context.Context, id int64) (*domain.Note, error) {
	return getNote(ctx, t.tx, id)
}

// RevlogRefs counts the review log rows keyed to cardID, including rows left
// behind by deleted cards.
func (t *Tx) RevlogRefs(ctx context.Context, cardID int64) (int, error) {
	var n int
	if err := t.tx.QueryRowContext(ctx, `SELECT count(*) FROM revlog WHERE cid = ?`, cardID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count review logs for card %d: %w", cardID, err)
	}
	return n, nil
}

// ReassignCardID changes a card's primary key. It returns ErrIDTaken when
// another card already holds newID, and ErrNotFound when no card holds oldID.
// A failed statement leaves the transaction usable.
func (t *Tx) ReassignCardID(ctx context.Context, oldID, newID int64) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE cards SET id = ? WHERE id = ?`, newID, oldID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("card %d to %d: %w", oldID, newID, ErrIDTaken)
		}
		return fmt.Errorf("failed to reassign card %d to %d: %w", oldID, newID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to reassign card %d to %d: %w", oldID, newID, err)
	}
	if n == 0 {
		return fmt.Errorf("card %d: %w", oldID, ErrNotFound)
	}
	return nil
}

// UpdateScheduling writes s onto the card and flags it for sync.
// When moveDeck is false the deck columns are left alone; when withData is
// false the data payload is left alone.
func (t *Tx) UpdateScheduling(ctx context.Context, cardID int64, s domain.Scheduling, moveDeck, withData bool) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE cards
		SET due = ?, factor = ?, flags = ?, ivl = ?, lapses = ?, left = ?, mod = ?,
		    odue = ?, reps = ?, queue = ?, type = ?, usn = ?,
		    did = CASE WHEN ? THEN ? ELSE did END,
		    odid = CASE WHEN ? THEN ? ELSE odid END,
		    data = CASE WHEN ? THEN ? ELSE data END
		WHERE id = ?
	`,
		s.Due, s.Factor, s.Flags, s.Interval, s.Lapses, s.Left, s.Mod,
		s.OriginalDue, s.Reps, s.Queue, s.Type, domain.UsnNeedsSync,
		moveDeck, s.DeckID,
		moveDeck, s.OriginalDeckID,
		withData, s.Data,
		cardID,
	)
	if err != nil {
		return fmt.Errorf("failed to update scheduling for card %d: %w", cardID, err)
	}
	return nil
}

// MarkNoteModified flags a note so the next sync uploads it.
func (t *Tx) MarkNoteModified(ctx context.Context, noteID int64) error {
	if _, err := t.tx.ExecContext(ctx, `UPDATE notes SET usn = ? WHERE id = ?`, domain.UsnNeedsSync, noteID); err != nil {
		return fmt.Errorf("failed to mark note %d modified: %w", noteID, err)
	}
	return nil
}

// DeleteNote removes a note and every card that belongs to it.
func (t *Tx) DeleteNote(ctx context.Context, noteID int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, noteID); err != nil {
		return fmt.Errorf("failed to delete note %d: %w", noteID, err)
	}
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM cards WHERE nid = ?`, noteID); err != nil {
		return fmt.Errorf("failed to delete cards of note %d: %w", noteID, err)
	}
	return nil
}

// DeleteCard removes a single card row.
func (t *Tx) DeleteCard(ctx context.Context, cardID int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, cardID); err != nil {
		return fmt.Errorf("failed to delete card %d: %w", cardID, err)
	}
	return nil
}

// TouchCollection sets the collection modification time in epoch milliseconds.
func (t *Tx) TouchCollection(ctx context.Context, modMillis int64) error {
	if _, err := t.tx.ExecContext(ctx, `UPDATE col SET mod = ?`, modMillis); err != nil {
		return fmt.Errorf("failed to update collection modification time: %w", err)
	}
	return nil
}

// AddNote inserts a note within the transaction.
func (t *Tx) AddNote(ctx context.Context, n domain.Note) error {
	return addNote(ctx, t.tx, n)
}

// AddCard inserts a card within the transaction.
func (t *Tx) AddCard(ctx context.Context, c domain.Card) error {
	return addCard(ctx, t.tx, c)
}

// Counters are the lowest unused note and card ids and the next new-card position.
// A card id still referenced by the review log counts as used.
type Counters struct {
	NoteID      int64
	CardID      int64
	NewPosition int64
}

// Counters reads the allocation state of the collection.
func (t *Tx) Counters(ctx context.Context) (Counters, error) {
	var c Counters
	err := t.tx.QueryRowContext(ctx, `
		SELECT
			(SELECT coalesce(max(id), 0) + 1 FROM notes),
			max(
				(SELECT coalesce(max(id), 0) FROM cards),
				(SELECT coalesce(max(cid), 0) FROM revlog)
			) + 1,
			(SELECT coalesce(max(due), 0) + 1 FROM cards WHERE type = 0)
	`).Scan(&c.NoteID, &c.CardID, &c.NewPosition)
	if err != nil {
		return c, fmt.Errorf("failed to read collection counters: %w", err)
	}
	return c, nil
}
