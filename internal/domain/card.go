package domain

// FieldSeparator joins the fields of a note in the flds column.
const FieldSeparator = "\x1f"

// UsnNeedsSync marks a row as modified locally so the next sync uploads it.
const UsnNeedsSync = -1

// Queue values of a card.
const (
	QueueSchedBuried = -3
	QueueUserBuried  = -2
	QueueSuspended   = -1
	QueueNew         = 0
	QueueLearning    = 1
	QueueReview      = 2
	QueueDayLearning = 3
	QueuePreview     = 4
)

// QueueName returns a short label for a queue value.
func QueueName(queue int) string {
	switch queue {
	case QueueNew:
		return "new"
	case QueueLearning, QueueDayLearning:
		return "learn"
	case QueueReview:
		return "review"
	case QueuePreview:
		return "preview"
	case QueueSuspended:
		return "suspended"
	case QueueUserBuried, QueueSchedBuried:
		return "buried"
	default:
		return "?"
	}
}

// Card is one scheduling unit of a collection, as stored in the cards table.
type Card struct {
	ID     int64
	NoteID int64
	Ord    int
	Usn    int
	Scheduling
}

// Scheduling holds every attribute moved by a transfer.
// Values are copied verbatim; odue and odid belong to the host's filtered deck
// model and are never reinterpreted.
type Scheduling struct {
	DeckID         int64
	OriginalDeckID int64
	Due            int64
	Factor         int
	Flags          int
	Interval       int
	Lapses         int
	Left           int
	Mod            int64
	OriginalDue    int64
	Reps           int
	Queue          int
	Type           int
	// Data is the opaque memory-model payload (FSRS state as JSON).
	Data string
}

// Note is the content record cards point at.
type Note struct {
	ID      int64
	GUID    string
	ModelID int64
	Mod     int64
	Usn     int
	Tags    string
	Fields  string
	Sort    string
	// Checksum is the duplicate-check value the host derives from the first field.
	Checksum int64
}

// NoteType names a note type and its fields in order.
type NoteType struct {
	ID     int64
	Name   string
	Fields []string
}

// Deck is a deck of the collection.
type Deck struct {
	ID   int64
	Name string
}

// ReviewLog records a single review event for a card.
// Ease corresponds to the answer button:
// 1: Again
// 2: Hard
// 3: Good
// 4: Easy
type ReviewLog struct {
	ID           int64
	CardID       int64
	Ease         int
	Interval     int
	LastInterval int
	Factor       int
	TimeMillis   int
	Type         int
}

// Collection is the singleton col row.
type Collection struct {
	Mod int64
	Usn int
}
