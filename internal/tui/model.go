// Package tui provides the card browser: a Bubbletea view over the collection
// that marks a source card and transfers its scheduling data onto a target.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/reflow/truncate"

	"github.com/conorfennell/cardmerge/internal/domain"
	"github.com/conorfennell/cardmerge/internal/fsrs"
	"github.com/conorfennell/cardmerge/internal/notefield"
	"github.com/conorfennell/cardmerge/internal/storage"
	"github.com/conorfennell/cardmerge/internal/transfer"
)

const (
	notificationTimeout = 4 * time.Second
	watchDebounce       = 500 * time.Millisecond
	firstFieldWidth     = notefield.LabelWidth + 4
)

// Mode is what the browser lists.
type Mode int

const (
	ModeCards Mode = iota
	ModeNotes
)

func (m Mode) String() string {
	if m == ModeNotes {
		return "notes"
	}
	return "cards"
}

// Options configure the browser.
type Options struct {
	CopyShortcut  string
	PasteShortcut string
	// Search limits the listing to notes whose fields contain it.
	Search string
	// Watch is the collection file to watch for outside writes. Empty disables watching.
	Watch  string
	Logger *slog.Logger
}

// clearStatusMsg clears the notification it was scheduled for.
type clearStatusMsg struct {
	seq int
}

// Model is the Bubbletea model of the browser. It is the transfer host:
// the session reads the selection from it and reports back through it.
type Model struct {
	ctx     context.Context
	db      *storage.DB
	session *transfer.Session
	logger  *slog.Logger
	search  string
	now     func() time.Time

	width, height int

	// Data
	mode   Mode
	cards  []storage.CardListing
	notes  []storage.NoteListing
	picked map[int64]bool

	// UI state
	table    table.Model
	keys     KeyMap
	help     help.Model
	showHelp bool

	status    string
	statusSeq int
	err       error

	watch *watcher
}

var _ transfer.Host = (*Model)(nil)

// New creates a browser listing cards.
func New(ctx context.Context, db *storage.DB, session *transfer.Session, opts Options) (*Model, error) {
	keys, err := NewKeyMap(opts.CopyShortcut, opts.PasteShortcut)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := table.New(table.WithFocused(true), table.WithHeight(20))
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).Foreground(colorAccent)
	t.SetStyles(styles)

	m := &Model{
		ctx:     ctx,
		db:      db,
		session: session,
		logger:  logger,
		search:  opts.Search,
		now:     time.Now,
		picked:  map[int64]bool{},
		table:   t,
		keys:    keys,
		help:    help.New(),
	}
	m.applyColumns()
	m.reload()

	if opts.Watch != "" {
		w, err := newWatcher(opts.Watch, watchDebounce, logger)
		if err != nil {
			logger.Warn("collection changes will not refresh the view", "error", err)
		} else {
			m.watch = w
		}
	}
	return m, nil
}

// Close stops watching the collection.
func (m *Model) Close() error {
	if m.watch == nil {
		return nil
	}
	return m.watch.Close()
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tea.SetWindowTitle("cardmerge")}
	if m.watch != nil {
		cmds = append(cmds, m.watch.wait())
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetWidth(msg.Width)
		m.table.SetHeight(max(msg.Height-6, 3))
		m.help.Width = msg.Width
		return m, nil

	case clearStatusMsg:
		if msg.seq == m.statusSeq {
			m.status = ""
		}
		return m, nil

	case collectionChangedMsg:
		m.logger.Debug("collection changed on disk, refreshing")
		m.reload()
		if m.watch == nil {
			return m, nil
		}
		return m, m.watch.wait()

	case tea.KeyMsg:
		seq := m.statusSeq
		cmd := m.handleKey(msg)
		if m.statusSeq != seq {
			cmd = tea.Batch(cmd, clearStatusAfter(m.statusSeq))
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	// The transfer shortcuts are checked first so they may shadow any other binding.
	switch {
	case key.Matches(msg, m.keys.Mark):
		m.session.Mark(m.ctx, m)
		m.renderRows()

	case key.Matches(msg, m.keys.Apply):
		if _, err := m.session.Apply(m.ctx, m); err == nil {
			clear(m.picked)
			m.renderRows()
		}

	case key.Matches(msg, m.keys.Quit):
		_ = m.Close()
		return tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp

	case key.Matches(msg, m.keys.Mode):
		if m.mode == ModeCards {
			m.mode = ModeNotes
		} else {
			m.mode = ModeCards
		}
		clear(m.picked)
		m.applyColumns()
		m.reload()
		m.table.SetCursor(0)

	case key.Matches(msg, m.keys.Refresh):
		m.reload()

	case key.Matches(msg, m.keys.Toggle):
		if id, ok := m.cursorID(); ok {
			if m.picked[id] {
				delete(m.picked, id)
			} else {
				m.picked[id] = true
			}
			m.renderRows()
		}

	default:
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return cmd
	}
	return nil
}

func clearStatusAfter(seq int) tea.Cmd {
	return tea.Tick(notificationTimeout, func(time.Time) tea.Msg {
		return clearStatusMsg{seq: seq}
	})
}

// SelectedCards implements transfer.Selection. Toggled rows win over the
// cursor row.
func (m *Model) SelectedCards() ([]int64, error) {
	if m.mode != ModeCards {
		return nil, transfer.ErrNotCardMode
	}
	if len(m.picked) > 0 {
		ids := make([]int64, 0, len(m.picked))
		for id := range m.picked {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		return ids, nil
	}
	if id, ok := m.cursorID(); ok {
		return []int64{id}, nil
	}
	return nil, nil
}

// Notify implements transfer.Notifier. The message stays up for notificationTimeout.
func (m *Model) Notify(msg string) {
	m.status = msg
	m.statusSeq++
}

// Refresh implements transfer.Refresher.
func (m *Model) Refresh() {
	m.reload()
}

// reload re-queries the listing for the current mode.
func (m *Model) reload() {
	var err error
	switch m.mode {
	case ModeNotes:
		m.notes, err = m.db.ListNotes(m.ctx, m.search, 0)
	default:
		m.cards, err = m.db.ListCards(m.ctx, m.search, 0)
	}
	m.err = err
	if err != nil {
		m.logger.Error("failed to load collection", "mode", m.mode.String(), "error", err)
	}

	live := make(map[int64]bool, len(m.picked))
	for _, id := range m.rowIDs() {
		if m.picked[id] {
			live[id] = true
		}
	}
	m.picked = live
	m.renderRows()
}

func (m *Model) rowIDs() []int64 {
	var ids []int64
	switch m.mode {
	case ModeNotes:
		for _, n := range m.notes {
			ids = append(ids, n.ID)
		}
	default:
		for _, c := range m.cards {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

func (m *Model) cursorID() (int64, bool) {
	ids := m.rowIDs()
	c := m.table.Cursor()
	if c < 0 || c >= len(ids) {
		return 0, false
	}
	return ids[c], true
}

func (m *Model) applyColumns() {
	// Rows must never carry more cells than there are columns.
	m.table.SetRows(nil)
	switch m.mode {
	case ModeNotes:
		m.table.SetColumns([]table.Column{
			{Title: "", Width: 2},
			{Title: "Note", Width: 14},
			{Title: "First field", Width: firstFieldWidth},
			{Title: "Cards", Width: 5},
			{Title: "Tags", Width: 24},
		})
	default:
		m.table.SetColumns([]table.Column{
			{Title: "", Width: 2},
			{Title: "Card", Width: 14},
			{Title: "First field", Width: firstFieldWidth},
			{Title: "Deck", Width: 14},
			{Title: "Due", Width: 10},
			{Title: "Ivl", Width: 5},
			{Title: "Reps", Width: 5},
			{Title: "Lapses", Width: 6},
			{Title: "Queue", Width: 9},
			{Title: "R", Width: 4},
		})
	}
}

func (m *Model) renderRows() {
	var rows []table.Row
	switch m.mode {
	case ModeNotes:
		for _, n := range m.notes {
			rows = append(rows, table.Row{
				m.selectionMark(n.ID, false),
				strconv.FormatInt(n.ID, 10),
				firstFieldCell(n.Fields),
				strconv.Itoa(n.CardCount),
				strings.TrimSpace(n.Tags),
			})
		}
	default:
		marked, hasMark := m.session.Marked()
		for _, c := range m.cards {
			rows = append(rows, table.Row{
				m.selectionMark(c.ID, hasMark && marked == c.ID),
				strconv.FormatInt(c.ID, 10),
				firstFieldCell(c.NoteFields),
				strconv.FormatInt(c.DeckID, 10),
				strconv.FormatInt(c.Due, 10),
				strconv.Itoa(c.Interval),
				strconv.Itoa(c.Reps),
				strconv.Itoa(c.Lapses),
				domain.QueueName(c.Queue),
				m.retrievability(c.Data),
			})
		}
	}
	m.table.SetRows(rows)
	m.table.SetCursor(m.table.Cursor())
}

// firstFieldCell labels a note by its first field and fits the label to the
// column. Wide characters take two cells each.
func firstFieldCell(flds string) string {
	return truncate.StringWithTail(notefield.Label(notefield.FirstField(flds)), firstFieldWidth, "…")
}

// selectionMark renders the first column: "*" for a toggled row and "+" for
// the marked source card.
func (m *Model) selectionMark(id int64, source bool) string {
	var s string
	if m.picked[id] {
		s += "*"
	}
	if source {
		s += "+"
	}
	return s
}

func (m *Model) retrievability(data string) string {
	ms, err := fsrs.ParseMemoryState(data)
	if err != nil {
		return "?"
	}
	r, ok := ms.RetrievabilityAt(m.now())
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", r*100)
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("cardmerge"))
	b.WriteString(" ")
	b.WriteString(modeStyle.Render(m.mode.String()))
	if id, ok := m.session.Marked(); ok {
		b.WriteString(" ")
		b.WriteString(markedStyle.Render(fmt.Sprintf("source %d", id)))
	}
	if len(m.picked) > 0 {
		b.WriteString(helpStyle.Render(fmt.Sprintf("  %d selected", len(m.picked))))
	}
	b.WriteString("\n")

	b.WriteString(m.table.View())
	b.WriteString("\n")

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render("error: " + m.err.Error()))
	case m.status != "":
		b.WriteString(statusStyle.Render(m.status))
	}
	b.WriteString("\n")

	m.help.ShowAll = m.showHelp
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

// Run shows the browser until the user quits or ctx is cancelled.
func Run(ctx context.Context, db *storage.DB, session *transfer.Session, opts Options) error {
	m, err := New(ctx, db, session, opts)
	if err != nil {
		return err
	}
	defer m.Close()

	if _, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		return fmt.Errorf("browser failed: %w", err)
	}
	return nil
}
