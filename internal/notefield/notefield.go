package notefield

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"github.com/conorfennell/cardmerge/internal/domain"
)

// LabelWidth is the number of characters a label keeps before the ellipsis.
const LabelWidth = 16

var (
	strict = bluemonday.StrictPolicy()

	// Line breaks separate words on screen but vanish when tags are stripped.
	breaks = strings.NewReplacer(
		"<br>", " ", "<br/>", " ", "<br />", " ",
		"</div>", " ", "</p>", " ", "</li>", " ",
	)
)

// Fields splits a note's flds column into its fields.
func Fields(flds string) []string {
	return strings.Split(flds, domain.FieldSeparator)
}

// FirstField returns the primary field of a note's flds column.
func FirstField(flds string) string {
	first, _, _ := strings.Cut(flds, domain.FieldSeparator)
	return first
}

// Plain strips markup and entities from a field and collapses whitespace.
func Plain(field string) string {
	s := strict.Sanitize(breaks.Replace(field))
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

// Label renders a field for a notification. Text longer than LabelWidth+1
// characters is cut to LabelWidth and followed by "...".
func Label(field string) string {
	s := Plain(field)
	if utf8.RuneCountInString(s) <= LabelWidth+1 {
		return s
	}
	return string([]rune(s)[:LabelWidth]) + "..."
}

// NoteLabel labels a note by its first field.
func NoteLabel(n *domain.Note) string {
	if n == nil {
		return ""
	}
	return Label(FirstField(n.Fields))
}
