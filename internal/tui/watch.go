package tui

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fsnotify/fsnotify"
)

// collectionChangedMsg is sent once writes to the collection have settled.
type collectionChangedMsg struct{}

// watcher reports writes to a collection file and its journal/WAL siblings,
// coalescing bursts into one notification per debounce window.
type watcher struct {
	fs       *fsnotify.Watcher
	base     string
	debounce time.Duration
	logger   *slog.Logger
	changed  chan struct{}
	done     chan struct{}
	once     sync.Once
}

func newWatcher(path string, debounce time.Duration, logger *slog.Logger) (*watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// SQLite replaces -journal and -wal files, so watch the directory rather than the file.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	w := &watcher{
		fs:       fw,
		base:     filepath.Base(path),
		debounce: debounce,
		logger:   logger,
		changed:  make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *watcher) loop() {
	var timer *time.Timer
	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !strings.HasPrefix(filepath.Base(event.Name), w.base) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				select {
				case w.changed <- struct{}{}:
				default:
				}
			})
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("collection watcher error", "error", err)
		}
	}
}

// wait returns a command that delivers the next change.
func (w *watcher) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-w.changed:
			return collectionChangedMsg{}
		case <-w.done:
			return nil
		}
	}
}

func (w *watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fs.Close()
	})
	return err
}
