package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/conorfennell/cardmerge/internal/domain"
)

const cardColumns = `id, nid, did, ord, mod, usn, type, queue, due, ivl, factor, reps, lapses, left, odue, odid, flags, data`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner, c *domain.Card) error {
	return row.Scan(
		&c.ID,
		&c.NoteID,
		&c.DeckID,
		&c.Ord,
		&c.Mod,
		&c.Usn,
		&c.Type,
		&c.Queue,
		&c.Due,
		&c.Interval,
		&c.Factor,
		&c.Reps,
		&c.Lapses,
		&c.Left,
		&c.OriginalDue,
		&c.OriginalDeckID,
		&c.Flags,
		&c.Data,
	)
}

func getCard(ctx context.Context, q querier, id int64) (*domain.Card, error) {
	var c domain.Card
	row := q.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id)
	if err := scanCard(row, &c); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("card %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find card %d: %w", id, err)
	}
	return &c, nil
}

func getNote(ctx context.Context, q querier, id int64) (*domain.Note, error) {
	var n domain.Note
	row := q.QueryRowContext(ctx, `
		SELECT id, guid, mid, mod, usn, tags, flds, sfld, csum
		FROM notes WHERE id = ?
	`, id)
	err := row.Scan(&n.ID, &n.GUID, &n.ModelID, &n.Mod, &n.Usn, &n.Tags, &n.Fields, &n.Sort, &n.Checksum)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("note %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find note %d: %w", id, err)
	}
	return &n, nil
}

// Card retrieves a card by its id. It returns ErrNotFound when absent.
func (db *DB) Card(ctx context.Context, id int64) (*domain.Card, error) {
	return getCard(ctx, db.conn, id)
}

// Note retrieves a note by its id. It returns ErrNotFound when absent.
func (db *DB) Note(ctx context.Context, id int64) (*domain.Note, error) {
	return getNote(ctx, db.conn, id)
}

// CardListing is a card together with the fields of its note.
type CardListing struct {
	domain.Card
	NoteFields string
}

// NoteListing is a note together with the number of cards it owns.
type NoteListing struct {
	domain.Note
	CardCount int
}

// ListCards returns cards whose note fields contain search, ordered by id.
// An empty search matches every card. limit <= 0 means no limit.
func (db *DB) ListCards(ctx context.Context, search string, limit int) ([]CardListing, error) {
	query := `
		SELECT c.id, c.nid, c.did, c.ord, c.mod, c.usn, c.type, c.queue, c.due, c.ivl, c.factor,
		       c.reps, c.lapses, c.left, c.odue, c.odid, c.flags, c.data, n.flds
		FROM cards c JOIN notes n ON n.id = c.nid
		WHERE n.flds LIKE ? ESCAPE '\'
		ORDER BY c.id
	`
	args := []any{likePattern(search)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	var cards []CardListing
	for rows.Next() {
		var l CardListing
		c := &l.Card
		if err := rows.Scan(
			&c.ID, &c.NoteID, &c.DeckID, &c.Ord, &c.Mod, &c.Usn, &c.Type, &c.Queue, &c.Due,
			&c.Interval, &c.Factor, &c.Reps, &c.Lapses, &c.Left, &c.OriginalDue,
			&c.OriginalDeckID, &c.Flags, &c.Data, &l.NoteFields,
		); err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		cards = append(cards, l)
	}
	return cards, rows.Err()
}

// ListNotes returns notes whose fields contain search, ordered by id.
func (db *DB) ListNotes(ctx context.Context, search string, limit int) ([]NoteListing, error) {
	query := `
		SELECT n.id, n.guid, n.mid, n.mod, n.usn, n.tags, n.flds, n.sfld,
		       (SELECT count(*) FROM cards c WHERE c.nid = n.id)
		FROM notes n
		WHERE n.flds LIKE ? ESCAPE '\'
		ORDER BY n.id
	`
	args := []any{likePattern(search)}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var notes []NoteListing
	for rows.Next() {
		var l NoteListing
		n := &l.Note
		if err := rows.Scan(&n.ID, &n.GUID, &n.ModelID, &n.Mod, &n.Usn, &n.Tags, &n.Fields, &n.Sort, &l.CardCount); err != nil {
			return nil, fmt.Errorf("failed to scan note row: %w", err)
		}
		notes = append(notes, l)
	}
	return notes, rows.Err()
}

// AllNotes returns every note of the collection.
func (db *DB) AllNotes(ctx context.Context) ([]domain.Note, error) {
	listings, err := db.ListNotes(ctx, "", 0)
	if err != nil {
		return nil, err
	}
	notes := make([]domain.Note, 0, len(listings))
	for _, l := range listings {
		notes = append(notes, l.Note)
	}
	return notes, nil
}

// CardsByNote returns the cards of a note ordered by template ordinal.
func (db *DB) CardsByNote(ctx context.Context, noteID int64) ([]domain.Card, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE nid = ? ORDER BY ord`, noteID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for note %d: %w", noteID, err)
	}
	defer rows.Close()

	var cards []domain.Card
	for rows.Next() {
		var c domain.Card
		if err := scanCard(rows, &c); err != nil {
			return nil, fmt.Errorf("failed to scan card row for note %d: %w", noteID, err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// ReviewLogs returns the review history keyed to a card id, oldest first.
func (db *DB) ReviewLogs(ctx context.Context, cardID int64) ([]domain.ReviewLog, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, cid, ease, ivl, lastIvl, factor, time, type
		FROM revlog WHERE cid = ?
		ORDER BY id
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to get review logs for card %d: %w", cardID, err)
	}
	defer rows.Close()

	var logs []domain.ReviewLog
	for rows.Next() {
		var r domain.ReviewLog
		if err := rows.Scan(&r.ID, &r.CardID, &r.Ease, &r.Interval, &r.LastInterval, &r.Factor, &r.TimeMillis, &r.Type); err != nil {
			return nil, fmt.Errorf("failed to scan review log row for card %d: %w", cardID, err)
		}
		logs = append(logs, r)
	}
	return logs, rows.Err()
}

// Collection returns the singleton collection row.
func (db *DB) Collection(ctx context.Context) (*domain.Collection, error) {
	var c domain.Collection
	if err := db.conn.QueryRowContext(ctx, `SELECT mod, usn FROM col WHERE id = 1`).Scan(&c.Mod, &c.Usn); err != nil {
		return nil, fmt.Errorf("failed to read collection: %w", err)
	}
	return &c, nil
}

// AddNote inserts a note. The sort field defaults to the first field.
func (db *DB) AddNote(ctx context.Context, n domain.Note) error {
	return addNote(ctx, db.conn, n)
}

// AddCard inserts a card.
func (db *DB) AddCard(ctx context.Context, c domain.Card) error {
	return addCard(ctx, db.conn, c)
}

func addNote(ctx context.Context, q querier, n domain.Note) error {
	sort := n.Sort
	if sort == "" {
		sort, _, _ = strings.Cut(n.Fields, domain.FieldSeparator)
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO notes (id, guid, mid, mod, usn, tags, flds, sfld, csum, flags, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, '')
	`, n.ID, n.GUID, n.ModelID, n.Mod, n.Usn, n.Tags, n.Fields, sort, n.Checksum)
	if err != nil {
		return fmt.Errorf("failed to insert note %d: %w", n.ID, err)
	}
	return nil
}

func addCard(ctx context.Context, q querier, c domain.Card) error {
	_, err := q.ExecContext(ctx, `INSERT INTO cards (`+cardColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.NoteID, c.DeckID, c.Ord, c.Mod, c.Usn, c.Type, c.Queue, c.Due,
		c.Interval, c.Factor, c.Reps, c.Lapses, c.Left, c.OriginalDue, c.OriginalDeckID,
		c.Flags, c.Data,
	)
	if err != nil {
		return fmt.Errorf("failed to insert card %d: %w", c.ID, err)
	}
	return nil
}

// AddReviewLog appends a review history row.
func (db *DB) AddReviewLog(ctx context.Context, r domain.ReviewLog) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO revlog (id, cid, usn, ease, ivl, lastIvl, factor, time, type)
		VALUES (?, ?, 0, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.CardID, r.Ease, r.Interval, r.LastInterval, r.Factor, r.TimeMillis, r.Type)
	if err != nil {
		return fmt.Errorf("failed to insert review log %d: %w", r.ID, err)
	}
	return nil
}

func likePattern(search string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(search) + "%"
}
