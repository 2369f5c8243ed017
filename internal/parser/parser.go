// Package parser reads flashcards written in markdown as Q:/A:/C: blocks, so
// rewritten notes can be imported and then given the scheduling data of the
// cards they replace.
package parser

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/conorfennell/cardmerge/internal/domain"
)

const (
	questionPrefix = "Q:"
	answerPrefix   = "A:"
	contextPrefix  = "C:"
	separator      = "---"
)

// Entry is one parsed flashcard.
type Entry struct {
	Front   string
	Back    string
	Context string
	// Line is where the entry's question starts, counting from 1.
	Line int
}

// FieldsFor joins the entry into the flds column of a note type with count
// fields: front, back, context. With only two fields the context follows the
// back. Fields past the context stay empty.
func (e Entry) FieldsFor(count int) string {
	fields := []string{e.Front, e.Back, e.Context}
	if count < len(fields) {
		back := e.Back
		if e.Context != "" {
			back += "<br><br>" + e.Context
		}
		fields = []string{e.Front, back}
	}
	for len(fields) < count {
		fields = append(fields, "")
	}
	return strings.Join(fields, domain.FieldSeparator)
}

type section int

const (
	seeking section = iota
	inFront
	inBack
	inContext
)

// ParseFile parses the markdown file at path.
func ParseFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	entries, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return entries, nil
}

// Parse reads entries from r. A "Q:" line starts an entry, "A:" and "C:"
// lines start its back and context, and a "---" line ends it. Lines outside
// an entry are ignored. Entries without a question are dropped.
func Parse(r io.Reader) ([]Entry, error) {
	var entries []Entry
	var current Entry
	var block []string
	state := seeking

	flushBlock := func() {
		text := strings.TrimSpace(strings.Join(block, "\n"))
		switch state {
		case inFront:
			current.Front = text
		case inBack:
			current.Back = text
		case inContext:
			current.Context = text
		}
		block = nil
	}
	finish := func() {
		flushBlock()
		if current.Front != "" {
			entries = append(entries, current)
		}
		current = Entry{}
		state = seeking
	}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if strings.TrimSpace(line) == separator {
			finish()
			continue
		}

		next, rest, ok := sectionStart(line)
		if !ok {
			if state != seeking {
				block = append(block, line)
			}
			continue
		}

		if next == inFront {
			// A new question always starts a new entry.
			finish()
			current.Line = lineNo
		} else {
			flushBlock()
		}
		if state == seeking && next != inFront {
			// An answer or context with no question before it.
			continue
		}
		state = next
		block = append(block, rest)
	}
	finish()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func sectionStart(line string) (section, string, bool) {
	for _, p := range []struct {
		prefix string
		s      section
	}{
		{questionPrefix, inFront},
		{answerPrefix, inBack},
		{contextPrefix, inContext},
	} {
		if rest, ok := strings.CutPrefix(line, p.prefix); ok {
			return p.s, strings.TrimPrefix(rest, " "), true
		}
	}
	return seeking, "", false
}
