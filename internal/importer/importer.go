// Package importer adds markdown flashcards to a collection as new notes,
// each with one new card.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/cardmerge/internal/domain"
	"github.com/conorfennell/cardmerge/internal/notefield"
	"github.com/conorfennell/cardmerge/internal/parser"
	"github.com/conorfennell/cardmerge/internal/storage"
)

var (
	// ErrNoteType is returned when the note type is missing from the
	// collection or has too few fields.
	ErrNoteType = errors.New("unusable note type")
	// ErrDeck is returned when the deck is missing from the collection.
	ErrDeck = errors.New("unknown deck")
)

// Options control how imported notes are created.
type Options struct {
	// NoteType is the id or name of the note type of the new notes.
	NoteType string
	DeckID   int64
	// Tags are written to every imported note, space separated.
	Tags   []string
	Logger *slog.Logger
	Now    func() time.Time
}

// Report summarises an import.
type Report struct {
	Parsed int
	Added  int
	// Unchanged counts entries whose note already exists with identical fields.
	Unchanged int
	// SharedFront counts added notes whose first field matches an existing
	// note, the candidates for a scheduling data transfer.
	SharedFront int
	Errors      []error
}

// Collect parses every .md file under the given paths. Files that fail to
// parse are reported in errs and skipped.
func Collect(paths []string) (entries []parser.Entry, errs []error) {
	for _, root := range paths {
		walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
				return nil
			}
			fileEntries, parseErr := parser.ParseFile(path)
			if parseErr != nil {
				errs = append(errs, parseErr)
				return nil
			}
			entries = append(entries, fileEntries...)
			return nil
		})
		if walkErr != nil {
			errs = append(errs, fmt.Errorf("failed to walk %s: %w", root, walkErr))
		}
	}
	return entries, errs
}

// Import adds entries as new notes in one transaction. An entry whose fields
// match an existing note exactly is skipped, so importing a file twice adds
// nothing the second time.
func Import(ctx context.Context, db *storage.DB, entries []parser.Entry, opts Options) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	noteType, err := resolveTarget(ctx, db, opts)
	if err != nil {
		return nil, err
	}

	existing, err := db.AllNotes(ctx)
	if err != nil {
		return nil, err
	}
	byFields := make(map[string]bool, len(existing))
	byFront := make(map[string]bool, len(existing))
	for _, n := range existing {
		byFields[n.Fields] = true
		byFront[notefield.Hash(n.Fields)] = true
	}

	report := &Report{Parsed: len(entries)}
	tags := ""
	if len(opts.Tags) > 0 {
		tags = " " + strings.Join(opts.Tags, " ") + " "
	}

	err = db.WithTx(ctx, func(tx *storage.Tx) error {
		counters, err := tx.Counters(ctx)
		if err != nil {
			return err
		}
		// Ids are epoch milliseconds, as the host creates them.
		nowMillis := now().UnixMilli()
		noteID := max(counters.NoteID, nowMillis)
		cardID := max(counters.CardID, nowMillis)
		position := counters.NewPosition

		for _, e := range entries {
			fields := e.FieldsFor(len(noteType.Fields))
			if byFields[fields] {
				report.Unchanged++
				continue
			}
			if notefield.Normalize(fields) == "" {
				report.Errors = append(report.Errors, fmt.Errorf("line %d: question has no text", e.Line))
				continue
			}

			note := domain.Note{
				ID:       noteID,
				GUID:     uuid.NewString(),
				ModelID:  noteType.ID,
				Mod:      nowMillis / 1000,
				Usn:      domain.UsnNeedsSync,
				Tags:     tags,
				Fields:   fields,
				Sort:     notefield.Plain(notefield.FirstField(fields)),
				Checksum: notefield.Checksum(fields),
			}
			card := domain.Card{
				ID:     cardID,
				NoteID: noteID,
				Usn:    domain.UsnNeedsSync,
				Scheduling: domain.Scheduling{
					DeckID: opts.DeckID,
					Due:    position,
					Mod:    nowMillis / 1000,
					Queue:  domain.QueueNew,
				},
			}
			if err := tx.AddNote(ctx, note); err != nil {
				return err
			}
			if err := tx.AddCard(ctx, card); err != nil {
				return err
			}

			if byFront[notefield.Hash(fields)] {
				report.SharedFront++
			}
			byFields[fields] = true
			byFront[notefield.Hash(fields)] = true
			report.Added++
			noteID++
			cardID++
			position++
			logger.Debug("note imported", "note_id", note.ID, "card_id", card.ID, "line", e.Line)
		}
		if report.Added == 0 {
			return nil
		}
		return tx.TouchCollection(ctx, nowMillis)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to import notes: %w", err)
	}

	logger.Info("import complete",
		"parsed", report.Parsed,
		"added", report.Added,
		"unchanged", report.Unchanged,
		"shared_front", report.SharedFront,
		"errors", len(report.Errors),
	)
	return report, nil
}

// resolveTarget checks the note type and deck against the collection. Only
// collections that keep note types and decks in their col row can be
// imported into, as those created by cardmerge init do.
func resolveTarget(ctx context.Context, db *storage.DB, opts Options) (domain.NoteType, error) {
	types, err := db.NoteTypes(ctx)
	if err != nil {
		return domain.NoteType{}, err
	}
	noteType, err := findNoteType(types, opts.NoteType)
	if err != nil {
		return domain.NoteType{}, err
	}
	if len(noteType.Fields) < 2 {
		return domain.NoteType{}, fmt.Errorf("%w: %q has %d fields, need at least 2", ErrNoteType, noteType.Name, len(noteType.Fields))
	}

	decks, err := db.Decks(ctx)
	if err != nil {
		return domain.NoteType{}, err
	}
	for _, d := range decks {
		if d.ID == opts.DeckID {
			return noteType, nil
		}
	}
	return domain.NoteType{}, fmt.Errorf("%w: no deck with id %d in the collection", ErrDeck, opts.DeckID)
}

// findNoteType matches ref against note type ids and, ignoring case, names.
func findNoteType(types []domain.NoteType, ref string) (domain.NoteType, error) {
	if len(types) == 0 {
		return domain.NoteType{}, fmt.Errorf("%w: the collection lists no note types, import only supports collections created by cardmerge init", ErrNoteType)
	}
	id, idErr := strconv.ParseInt(ref, 10, 64)
	names := make([]string, 0, len(types))
	for _, nt := range types {
		if (idErr == nil && nt.ID == id) || strings.EqualFold(nt.Name, ref) {
			return nt, nil
		}
		names = append(names, fmt.Sprintf("%q (%d)", nt.Name, nt.ID))
	}
	return domain.NoteType{}, fmt.Errorf("%w: no note type %q in the collection, known: %s", ErrNoteType, ref, strings.Join(names, ", "))
}
