package transfer

import (
	"errors"
	"fmt"

	"github.com/conorfennell/cardmerge/internal/storage"
)

// Header prefixes every notification so it reads in context.
const Header = "Scheduling data transfer: "

// Selection errors.
var (
	ErrNotCardMode       = errors.New("view lists notes, not cards")
	ErrNoSelection       = errors.New("no card selected")
	ErrMultipleSelection = errors.New("more than one card selected")
)

// Sequencing errors.
var (
	ErrNothingMarked = errors.New("no source card marked")
	ErrSameCard      = errors.New("source and target are the same card")
)

// ErrNoFreeID is returned when every candidate id tried was taken.
var ErrNoFreeID = errors.New("no free card id found")

// IsUserError reports whether err comes from the user's selection or the
// order of actions, as opposed to the store.
func IsUserError(err error) bool {
	return errors.Is(err, ErrNotCardMode) ||
		errors.Is(err, ErrNoSelection) ||
		errors.Is(err, ErrMultipleSelection) ||
		errors.Is(err, ErrNothingMarked) ||
		errors.Is(err, ErrSameCard)
}

// message renders err for the notification surface.
func (s *Session) message(err error) string {
	switch {
	case errors.Is(err, ErrNotCardMode):
		return Header + "please toggle the card mode instead of the note mode."
	case errors.Is(err, ErrNoSelection):
		return Header + "please select one card."
	case errors.Is(err, ErrMultipleSelection):
		return Header + "please select only one card."
	case errors.Is(err, ErrNothingMarked):
		return Header + fmt.Sprintf("please first select a card to take the data from (%s).", s.opts.CopyShortcut)
	case errors.Is(err, ErrSameCard):
		return Header + "please select a different card."
	case errors.Is(err, storage.ErrNotFound):
		return Header + "the card no longer exists, please select it again."
	default:
		return Header + "transfer failed, the collection was not changed."
	}
}
