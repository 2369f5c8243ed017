package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/conorfennell/cardmerge/internal/notefield"
	"github.com/conorfennell/cardmerge/internal/storage"
)

// Selection resolves the cards currently selected in the view.
// It returns ErrNotCardMode when the view lists notes.
type Selection interface {
	SelectedCards() ([]int64, error)
}

// Notifier shows a short, non-blocking message to the user.
type Notifier interface {
	Notify(msg string)
}

// Refresher makes the view re-query the collection.
type Refresher interface {
	Refresh()
}

// Host is the view mediating the two user actions.
type Host interface {
	Selection
	Notifier
	Refresher
}

// Recorder keeps a record of completed transfers.
type Recorder interface {
	Record(ctx context.Context, res *Result, opts Options) error
}

// Options control what a transfer moves.
type Options struct {
	MoveDeck        bool
	DeleteOld       bool
	CopyMemoryState bool
	// MaxIDProbes bounds the candidate ids tried when freeing the source id.
	MaxIDProbes int
	// CopyShortcut is named in the message asking the user to mark a card first.
	CopyShortcut string
}

// Session holds the source card marked by the first action until the second
// action consumes it. A session belongs to a single view and is not safe for
// concurrent use.
type Session struct {
	db       *storage.DB
	opts     Options
	logger   *slog.Logger
	recorder Recorder
	now      func() time.Time

	marked  int64
	hasMark bool
}

// NewSession creates a session with nothing marked.
func NewSession(db *storage.DB, opts Options, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxIDProbes <= 0 {
		opts.MaxIDProbes = 1000
	}
	return &Session{
		db:     db,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// SetRecorder registers r to be told about every completed transfer.
func (s *Session) SetRecorder(r Recorder) {
	s.recorder = r
}

// Options returns the options the session transfers with.
func (s *Session) Options() Options {
	return s.opts
}

// Marked returns the marked source card id, if any.
func (s *Session) Marked() (int64, bool) {
	return s.marked, s.hasMark
}

// Mark records the single selected card as the source of the next Apply,
// replacing any earlier mark. Failures are reported to host and returned.
func (s *Session) Mark(ctx context.Context, host Host) (int64, error) {
	id, err := singleCard(host)
	if err != nil {
		return 0, s.fail(host, err)
	}

	card, err := s.db.Card(ctx, id)
	if err != nil {
		return 0, s.fail(host, err)
	}
	note, err := s.db.Note(ctx, card.NoteID)
	if err != nil {
		return 0, s.fail(host, err)
	}

	s.marked, s.hasMark = id, true
	s.logger.Info("source card marked", "source_id", id, "note_id", note.ID)
	host.Notify(Header + fmt.Sprintf("copied from %s.", notefield.NoteLabel(note)))
	return id, nil
}

// Apply transfers the marked card's scheduling data and review history onto
// the single selected card. On success the mark is cleared and the host is
// refreshed. On failure nothing is changed and the mark is kept.
func (s *Session) Apply(ctx context.Context, host Host) (*Result, error) {
	targetID, err := singleCard(host)
	if err != nil {
		return nil, s.fail(host, err)
	}
	if !s.hasMark {
		return nil, s.fail(host, ErrNothingMarked)
	}
	if targetID == s.marked {
		return nil, s.fail(host, ErrSameCard)
	}

	res, err := s.transfer(ctx, s.marked, targetID)
	if err != nil {
		return nil, s.fail(host, err)
	}
	s.hasMark = false

	s.logger.Info("scheduling data transferred",
		"source_id", res.SourceID,
		"target_id", res.TargetID,
		"vacated_id", res.VacatedID,
		"attempts", res.Attempts,
		"inherited_reviews", res.InheritedReviews,
		"source_deleted", res.SourceDeleted,
	)

	if s.recorder != nil {
		if err := s.recorder.Record(ctx, res, s.opts); err != nil {
			s.logger.Warn("failed to record transfer", "source_id", res.SourceID, "error", err)
		}
	}

	host.Refresh()
	host.Notify(Header + fmt.Sprintf("transferred from %s to %s.", res.SourceLabel, res.TargetLabel))
	return res, nil
}

func (s *Session) fail(host Host, err error) error {
	if IsUserError(err) {
		s.logger.Debug("action rejected", "error", err)
	} else {
		s.logger.Error("transfer action failed", "error", err)
	}
	host.Notify(s.message(err))
	return err
}

func singleCard(sel Selection) (int64, error) {
	ids, err := sel.SelectedCards()
	if err != nil {
		return 0, err
	}
	switch len(ids) {
	case 0:
		return 0, ErrNoSelection
	case 1:
		return ids[0], nil
	default:
		return 0, ErrMultipleSelection
	}
}
