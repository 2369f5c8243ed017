package transfer

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/cardmerge/internal/domain"
	"github.com/conorfennell/cardmerge/internal/storage"
)

type fakeHost struct {
	selected  []int64
	err       error
	messages  []string
	refreshes int
}

func (h *fakeHost) SelectedCards() ([]int64, error) { return h.selected, h.err }
func (h *fakeHost) Notify(msg string) { h.messages = append(h.messages, msg) }
func (h *fakeHost) Refresh() { h.refreshes++ }

func (h *fakeHost) selectCards(ids ...int64) *fakeHost {
	h.selected = ids
	h.err = nil
	return h
}

func (h *fakeHost) lastMessage() string {
	if len(h.messages) == 0 {
		return ""
	}
	return h.messages[len(h.messages)-1]
}

type fakeRecorder struct {
	results []*Result
}

func (r *fakeRecorder) Record(_ context.Context, res *Result, _ Options) error {
	r.results = append(r.results, res)
	return nil
}

var fixedNow = time.UnixMilli(1760000000123)

func newTestSession(t *testing.T, opts Options) (*Session, *storage.DB) {
	t.Helper()
	db, err := storage.Open(context.Background(), filepath.Join(t.TempDir(), "collection.anki2"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	if opts.CopyShortcut == "" {
		opts.CopyShortcut = "Ctrl+Alt+C"
	}
	s := NewSession(db, opts, nil)
	s.now = func() time.Time { return fixedNow }
	return s, db
}

func addCard(t *testing.T, db *storage.DB, id, noteID int64, front string, sched domain.Scheduling) {
	t.Helper()
	ctx := context.Background()
	if _, err := db.Note(ctx, noteID); err != nil {
		require.NoError(t, db.AddNote(ctx, domain.Note{ID: noteID, GUID: front, Fields: front + domain.FieldSeparator + "back"}))
	}
	require.NoError(t, db.AddCard(ctx, domain.Card{ID: id, NoteID: noteID, Scheduling: sched}))
}

func addReviews(t *testing.T, db *storage.DB, cardID int64, revIDs ...int64) {
	t.Helper()
	for _, id := range revIDs {
		require.NoError(t, db.AddReviewLog(context.Background(), domain.ReviewLog{ID: id, CardID: cardID, Ease: 3}))
	}
}

func cardAt(t *testing.T, db *storage.DB, id int64) *domain.Card {
	t.Helper()
	c, err := db.Card(context.Background(), id)
	require.NoError(t, err)
	return c
}

func absent(t *testing.T, db *storage.DB, id int64) {
	t.Helper()
	_, err := db.Card(context.Background(), id)
	assert.ErrorIs(t, err, storage.ErrNotFound, "card %d should not exist", id)
}

func snapshotStore(t *testing.T, db *storage.DB) ([]storage.CardListing, *domain.Collection) {
	t.Helper()
	ctx := context.Background()
	cards, err := db.ListCards(ctx, "", 0)
	require.NoError(t, err)
	col, err := db.Collection(ctx)
	require.NoError(t, err)
	return cards, col
}

// seedPair creates card A (1000) and card B (2000) on separate notes.
func seedPair(t *testing.T, db *storage.DB) {
	addCard(t, db, 1000, 1, "Source front", domain.Scheduling{
		DeckID: 10, OriginalDeckID: 11, Due: 5, Interval: 3, Reps: 2, Factor: 2500,
		Flags: 1, Lapses: 1, Left: 2002, Mod: 1700000000, OriginalDue: 4,
		Queue: domain.QueueReview, Type: 2, Data: `{"s":12.5,"d":4.1,"dr":0.9}`,
	})
	addCard(t, db, 2000, 2, "Target front", domain.Scheduling{
		DeckID: 20, Due: 9, Interval: 1, Reps: 0, Factor: 0,
		Queue: domain.QueueNew, Type: 0, Data: `{"s":1.1,"d":9.0}`,
	})
}

func TestTransferScenario(t *testing.T) {
	s, db := newTestSession(t, Options{CopyMemoryState: true})
	seedPair(t, db)
	ctx := context.Background()
	host := &fakeHost{}

	id, err := s.Mark(ctx, host.selectCards(1000))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), id)
	assert.Equal(t, Header+"copied from Source front.", host.lastMessage())

	res, err := s.Apply(ctx, host.selectCards(2000))
	require.NoError(t, err)
	assert.Equal(t, int64(1001), res.VacatedID)
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, res.SourceDeleted)
	assert.True(t, res.MemoryCopied)
	assert.Equal(t, Header+"transferred from Source front to Target front.", host.lastMessage())
	assert.Equal(t, 1, host.refreshes)

	merged := cardAt(t, db, 1000)
	assert.Equal(t, int64(2), merged.NoteID, "the target card now holds the source id")
	assert.Equal(t, int64(5), merged.Due)
	assert.Equal(t, 3, merged.Interval)
	assert.Equal(t, 2, merged.Reps)
	assert.Equal(t, 2500, merged.Factor)
	assert.Equal(t, 1, merged.Flags)
	assert.Equal(t, 1, merged.Lapses)
	assert.Equal(t, 2002, merged.Left)
	assert.Equal(t, int64(1700000000), merged.Mod)
	assert.Equal(t, int64(4), merged.OriginalDue)
	assert.Equal(t, domain.QueueReview, merged.Queue)
	assert.Equal(t, 2, merged.Type)
	assert.Equal(t, `{"s":12.5,"d":4.1,"dr":0.9}`, merged.Data)
	assert.Equal(t, domain.UsnNeedsSync, merged.Usn)
	assert.Equal(t, int64(20), merged.DeckID, "deck stays without Change deck")
	assert.Equal(t, int64(0), merged.OriginalDeckID)

	old := cardAt(t, db, 1001)
	assert.Equal(t, int64(1), old.NoteID)
	assert.Equal(t, int64(5), old.Due)
	absent(t, db, 2000)

	note, err := db.Note(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.UsnNeedsSync, note.Usn)

	col, err := db.Collection(ctx)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.UnixMilli(), col.Mod)

	_, marked := s.Marked()
	assert.False(t, marked)
}

func TestTransferDeleteOldCard(t *testing.T) {
	s, db := newTestSession(t, Options{DeleteOld: true})
	seedPair(t, db)
	addCard(t, db, 1500, 1, "Source front", domain.Scheduling{Due: 1})
	ctx := context.Background()
	host := &fakeHost{}

	_, err := s.Mark(ctx, host.selectCards(1000))
	require.NoError(t, err)
	res, err := s.Apply(ctx, host.selectCards(2000))
	require.NoError(t, err)
	assert.True(t, res.SourceDeleted)

	assert.Equal(t, int64(2), cardAt(t, db, 1000).NoteID)
	absent(t, db, 1001)
	absent(t, db, 1500)
	_, err = db.Note(ctx, 1)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTransferDeleteOldCardSharedNote(t *testing.T) {
	s, db := newTestSession(t, Options{DeleteOld: true})
	addCard(t, db, 1000, 1, "Shared", domain.Scheduling{Due: 5, Interval: 3})
	addCard(t, db, 2000, 1, "Shared", domain.Scheduling{Due: 9})
	ctx := context.Background()
	host := &fakeHost{}

	_, err := s.Mark(ctx, host.selectCards(1000))
	require.NoError(t, err)
	_, err = s.Apply(ctx, host.selectCards(2000))
	require.NoError(t, err)

	merged := cardAt(t, db, 1000)
	assert.Equal(t, int64(5), merged.Due)
	absent(t, db, 1001)
	_, err = db.Note(ctx, 1)
	assert.NoError(t, err, "the note still owns the target card")
}

func TestHistoryFollowsIdentifier(t *testing.T) {
	s, db := newTestSession(t, Options{})
	seedPair(t, db)
	addReviews(t, db, 1000, 1, 2)
	addReviews(t, db, 2000, 3)
	ctx := context.Background()
	host := &fakeHost{}

	_, err := s.Mark(ctx, host.selectCards(1000))
	require.NoError(t, err)
	res, err := s.Apply(ctx, host.selectCards(2000))
	require.NoError(t, err)
	assert.Equal(t, 2, res.InheritedReviews)

	logs, err := db.ReviewLogs(ctx, 1000)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, int64(2), cardAt(t, db, 1000).NoteID, "the history now belongs to the target's note")

	// The vacated id carries no history.
	logs, err = db.ReviewLogs(ctx, res.VacatedID)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestVacateSkipsIDsWithHistory(t *testing.T) {
	s, db := newTestSession(t, Options{})
	seedPair(t, db)
	// A deleted card once held 1001.
	addReviews(t, db, 1001, 7, 8)
	ctx := context.Background()
	host := &fakeHost{}

	_, err := s.Mark(ctx, host.selectCards(1000))
	require.NoError(t, err)
	res, err := s.Apply(ctx, host.selectCards(2000))
	require.NoError(t, err)

	assert.Equal(t, int64(1002), res.VacatedID)
	assert.Equal(t, 2, res.Attempts)
	absent(t, db, 1001)
	assert.Equal(t, int64(1), cardAt(t, db, 1002).NoteID)
}

func TestVacateSkipsLiveCards(t *testing.T) {
	s, db := newTestSession(t, Options{})
	seedPair(t, db)
	addCard(t, db, 1001, 3, "Neighbour", domain.Scheduling{Due: 77})
	addReviews(t, db, 1002, 9)
	ctx := context.Background()
	host := &fakeHost{}

	_, err := s.Mark(ctx, host.selectCards(1000))
	require.NoError(t, err)
	res, err := s.Apply(ctx, host.selectCards(2000))
	require.NoError(t, err)

	assert.Equal(t, int64(1003), res.VacatedID)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, int64(77), cardAt(t, db, 1001).Due, "the neighbour is untouched")
	assert.Equal(t, int64(1), cardAt(t, db, 1003).NoteID)
}

func TestVacateGivesUpAfterMaxProbes(t *testing.T) {
	s, db := newTestSession(t, Options{MaxIDProbes: 2})
	seedPair(t, db)
	addReviews(t, db, 1001, 1)
	addCard(t, db, 1002, 3, "Neighbour", domain.Scheduling{})
	ctx := context.Background()
	host := &fakeHost{}

	_, err := s.Mark(ctx, host.selectCards(1000))
	require.NoError(t, err)
	cardsBefore, colBefore := snapshotStore(t, db)

	_, err = s.Apply(ctx, host.selectCards(2000))
	require.ErrorIs(t, err, ErrNoFreeID)
	assert.Equal(t, Header+"transfer failed, the collection was not changed.", host.lastMessage())
	assert.Zero(t, host.refreshes)

	cardsAfter, colAfter := snapshotStore(t, db)
	assert.Equal(t, cardsBefore, cardsAfter)
	assert.Equal(t, colBefore, colAfter)

	marked, ok := s.Marked()
	assert.True(t, ok, "a failed transfer keeps the mark")
	assert.Equal(t, int64(1000), marked)
}

// failScheduling makes every later write to cards.due abort. The vacate and
// reassign steps only touch cards.id, so they succeed before the failure.
func failScheduling(t *testing.T, db *storage.DB) {
	t.Helper()
	conn, err := sql.Open("sqlite", db.Path())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Exec(`CREATE TRIGGER fail_due BEFORE UPDATE OF due ON cards BEGIN SELECT RAISE(ABORT, 'boom'); END`)
	require.NoError(t, err)
}

func TestApplyRollsBackAfterReassign(t *testing.T) {
	s, db := newTestSession(t, Options{MoveDeck: true, DeleteOld: true, CopyMemoryState: true})
	seedPair(t, db)
	ctx := context.Background()
	host := &fakeHost{}

	_, err := s.Mark(ctx, host.selectCards(1000))
	require.NoError(t, err)
	cardsBefore, colBefore := snapshotStore(t, db)
	failScheduling(t, db)

	_, err = s.Apply(ctx, host.selectCards(2000))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to update scheduling for card 1000")
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, Header+"transfer failed, the collection was not changed.", host.lastMessage())
	assert.Zero(t, host.refreshes)

	assert.Equal(t, int64(1), cardAt(t, db, 1000).NoteID)
	assert.Equal(t, int64(2), cardAt(t, db, 2000).NoteID)
	absent(t, db, 1001)

	cardsAfter, colAfter := snapshotStore(t, db)
	assert.Equal(t, cardsBefore, cardsAfter)
	assert.Equal(t, colBefore, colAfter)

	marked, ok := s.Marked()
	assert.True(t, ok, "a failed transfer keeps the mark")
	assert.Equal(t, int64(1000), marked)
}

func TestMemoryStateOption(t *testing.T) {
	t.Run("disabled keeps the target payload", func(t *testing.T) {
		s, db := newTestSession(t, Options{CopyMemoryState: false})
		seedPair(t, db)
		host := &fakeHost{}
		_, err := s.Mark(context.Background(), host.selectCards(1000))
		require.NoError(t, err)
		res, err := s.Apply(context.Background(), host.selectCards(2000))
		require.NoError(t, err)
		assert.False(t, res.MemoryCopied)
		assert.Equal(t, `{"s":1.1,"d":9.0}`, cardAt(t, db, 1000).Data)
	})

	t.Run("empty source payload is not copied", func(t *testing.T) {
		s, db := newTestSession(t, Options{CopyMemoryState: true})
		addCard(t, db, 1000, 1, "a", domain.Scheduling{Due: 1, Data: "{}"})
		addCard(t, db, 2000, 2, "b", domain.Scheduling{Due: 2, Data: `{"s":3}`})
		host := &fakeHost{}
		_, err := s.Mark(context.Background(), host.selectCards(1000))
		require.NoError(t, err)
		_, err = s.Apply(context.Background(), host.selectCards(2000))
		require.NoError(t, err)
		assert.Equal(t, `{"s":3}`, cardAt(t, db, 1000).Data)
	})
}

func TestChangeDeckOption(t *testing.T) {
	s, db := newTestSession(t, Options{MoveDeck: true})
	seedPair(t, db)
	host := &fakeHost{}
	_, err := s.Mark(context.Background(), host.selectCards(1000))
	require.NoError(t, err)
	_, err = s.Apply(context.Background(), host.selectCards(2000))
	require.NoError(t, err)

	merged := cardAt(t, db, 1000)
	assert.Equal(t, int64(10), merged.DeckID)
	assert.Equal(t, int64(11), merged.OriginalDeckID)
}

func TestApplyTwiceWithoutMark(t *testing.T) {
	s, db := newTestSession(t, Options{})
	seedPair(t, db)
	addCard(t, db, 3000, 3, "Third", domain.Scheduling{Due: 30})
	ctx := context.Background()
	host := &fakeHost{}

	_, err := s.Mark(ctx, host.selectCards(1000))
	require.NoError(t, err)
	_, err = s.Apply(ctx, host.selectCards(2000))
	require.NoError(t, err)

	cardsBefore, colBefore := snapshotStore(t, db)
	_, err = s.Apply(ctx, host.selectCards(3000))
	require.ErrorIs(t, err, ErrNothingMarked)
	assert.Equal(t, Header+"please first select a card to take the data from (Ctrl+Alt+C).", host.lastMessage())

	cardsAfter, colAfter := snapshotStore(t, db)
	assert.Equal(t, cardsBefore, cardsAfter)
	assert.Equal(t, colBefore, colAfter)
}

func TestMarkOverwritesPreviousMark(t *testing.T) {
	s, db := newTestSession(t, Options{})
	seedPair(t, db)
	addCard(t, db, 3000, 3, "Third", domain.Scheduling{Due: 30, Interval: 12})
	ctx := context.Background()
	host := &fakeHost{}

	_, err := s.Mark(ctx, host.selectCards(1000))
	require.NoError(t, err)
	_, err = s.Mark(ctx, host.selectCards(3000))
	require.NoError(t, err)

	res, err := s.Apply(ctx, host.selectCards(2000))
	require.NoError(t, err)
	assert.Equal(t, int64(3000), res.SourceID)

	merged := cardAt(t, db, 3000)
	assert.Equal(t, int64(2), merged.NoteID)
	assert.Equal(t, int64(30), merged.Due)
	assert.Equal(t, 12, merged.Interval)

	untouched := cardAt(t, db, 1000)
	assert.Equal(t, int64(1), untouched.NoteID)
	assert.Equal(t, 0, untouched.Usn)
}

func TestSelectionErrorsNeverMutate(t *testing.T) {
	cases := []struct {
		name    string
		sel     []int64
		selErr  error
		wantErr error
		wantMsg string
	}{
		{"no card", nil, nil, ErrNoSelection, "please select one card."},
		{"two cards", []int64{1000, 2000}, nil, ErrMultipleSelection, "please select only one card."},
		{"note mode", nil, ErrNotCardMode, ErrNotCardMode, "please toggle the card mode instead of the note mode."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, db := newTestSession(t, Options{})
			seedPair(t, db)
			ctx := context.Background()
			cardsBefore, colBefore := snapshotStore(t, db)

			host := &fakeHost{selected: tc.sel, err: tc.selErr}
			_, err := s.Mark(ctx, host)
			require.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, Header+tc.wantMsg, host.lastMessage())
			_, marked := s.Marked()
			assert.False(t, marked)

			// Apply with a valid mark still refuses a bad selection.
			_, err = s.Mark(ctx, (&fakeHost{}).selectCards(1000))
			require.NoError(t, err)
			_, err = s.Apply(ctx, host)
			require.ErrorIs(t, err, tc.wantErr)
			assert.True(t, IsUserError(err))

			cardsAfter, colAfter := snapshotStore(t, db)
			assert.Equal(t, cardsBefore, cardsAfter)
			assert.Equal(t, colBefore, colAfter)
			assert.Zero(t, host.refreshes)
		})
	}
}

func TestApplyToSameCard(t *testing.T) {
	s, db := newTestSession(t, Options{})
	seedPair(t, db)
	ctx := context.Background()
	host := &fakeHost{}

	_, err := s.Mark(ctx, host.selectCards(1000))
	require.NoError(t, err)
	_, err = s.Apply(ctx, host.selectCards(1000))
	require.ErrorIs(t, err, ErrSameCard)
	assert.Equal(t, Header+"please select a different card.", host.lastMessage())

	_, marked := s.Marked()
	assert.True(t, marked)
	assert.Equal(t, int64(5), cardAt(t, db, 1000).Due)
}

func TestMarkMissingCard(t *testing.T) {
	s, _ := newTestSession(t, Options{})
	host := &fakeHost{}

	_, err := s.Mark(context.Background(), host.selectCards(4242))
	require.ErrorIs(t, err, storage.ErrNotFound)
	assert.False(t, IsUserError(err))
	assert.Equal(t, Header+"the card no longer exists, please select it again.", host.lastMessage())
}

func TestRecorderSeesCompletedTransfers(t *testing.T) {
	s, db := newTestSession(t, Options{})
	seedPair(t, db)
	rec := &fakeRecorder{}
	s.SetRecorder(rec)
	ctx := context.Background()
	host := &fakeHost{}

	_, err := s.Mark(ctx, host.selectCards(1000))
	require.NoError(t, err)
	_, err = s.Apply(ctx, host.selectCards(2000))
	require.NoError(t, err)
	_, _ = s.Apply(ctx, host.selectCards(2000))

	require.Len(t, rec.results, 1)
	assert.Equal(t, int64(1000), rec.results[0].SourceID)
	assert.Equal(t, int64(5), rec.results[0].Snapshot.Due)
}
