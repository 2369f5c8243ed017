package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/conorfennell/cardmerge/internal/domain"
)

// Ids of the deck and note type a collection created by cardmerge starts with.
const (
	DefaultDeckID     int64 = 1
	DefaultNoteTypeID int64 = 1
)

type modelJSON struct {
	Name   string `json:"name"`
	Fields []struct {
		Name string `json:"name"`
	} `json:"flds"`
}

type deckJSON struct {
	Name string `json:"name"`
}

// NoteTypes returns the note types kept in the col row, ordered by id.
// Collections that keep note types in a table of their own return none.
func (db *DB) NoteTypes(ctx context.Context) ([]domain.NoteType, error) {
	var models map[string]modelJSON
	if err := db.readColumnJSON(ctx, "models", &models); err != nil {
		return nil, err
	}
	types := make([]domain.NoteType, 0, len(models))
	for key, m := range models {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse note type id %q: %w", key, err)
		}
		nt := domain.NoteType{ID: id, Name: m.Name}
		for _, f := range m.Fields {
			nt.Fields = append(nt.Fields, f.Name)
		}
		types = append(types, nt)
	}
	sort.Slice(types, func(i, j int) bool { return types[i].ID < types[j].ID })
	return types, nil
}

// Decks returns the decks kept in the col row, ordered by id.
func (db *DB) Decks(ctx context.Context) ([]domain.Deck, error) {
	var decks map[string]deckJSON
	if err := db.readColumnJSON(ctx, "decks", &decks); err != nil {
		return nil, err
	}
	out := make([]domain.Deck, 0, len(decks))
	for key, d := range decks {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse deck id %q: %w", key, err)
		}
		out = append(out, domain.Deck{ID: id, Name: d.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// readColumnJSON decodes a JSON column of the col row. An empty column
// decodes to nothing.
func (db *DB) readColumnJSON(ctx context.Context, column string, v any) error {
	var raw string
	err := db.conn.QueryRowContext(ctx, `SELECT `+column+` FROM col WHERE id = 1`).Scan(&raw)
	if err != nil {
		return fmt.Errorf("failed to read collection %s: %w", column, err)
	}
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to parse collection %s: %w", column, err)
	}
	return nil
}
