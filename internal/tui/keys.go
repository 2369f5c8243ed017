package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// KeyMap defines the key bindings of the browser.
type KeyMap struct {
	Mark    key.Binding
	Apply   key.Binding
	Toggle  key.Binding
	Mode    key.Binding
	Refresh key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// NewKeyMap builds the bindings, with the transfer actions on the given
// shortcuts written the way the add-on's config.json writes them.
func NewKeyMap(copyShortcut, pasteShortcut string) (KeyMap, error) {
	markKey, err := NormalizeShortcut(copyShortcut)
	if err != nil {
		return KeyMap{}, fmt.Errorf("copy shortcut: %w", err)
	}
	applyKey, err := NormalizeShortcut(pasteShortcut)
	if err != nil {
		return KeyMap{}, fmt.Errorf("paste shortcut: %w", err)
	}
	if markKey == applyKey {
		return KeyMap{}, fmt.Errorf("copy and paste shortcuts both map to %q", markKey)
	}

	return KeyMap{
		Mark: key.NewBinding(
			key.WithKeys(markKey),
			key.WithHelp(copyShortcut, "take data from card"),
		),
		Apply: key.NewBinding(
			key.WithKeys(applyKey),
			key.WithHelp(pasteShortcut, "transfer onto card"),
		),
		Toggle: key.NewBinding(
			key.WithKeys(" "),
			key.WithHelp("space", "select"),
		),
		Mode: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "cards/notes"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}, nil
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Mark, k.Apply, k.Mode, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Mark, k.Apply},
		{k.Toggle, k.Mode, k.Refresh},
		{k.Help, k.Quit},
	}
}

// NormalizeShortcut converts a shortcut such as "Ctrl+Alt+C" into the string
// bubbletea reports for that key press ("alt+ctrl+c"). Shift on a letter
// yields the upper-case letter; terminals do not report shift with ctrl.
func NormalizeShortcut(shortcut string) (string, error) {
	var ctrl, alt, shift bool
	var name string
	for _, part := range strings.Split(shortcut, "+") {
		p := strings.ToLower(strings.TrimSpace(part))
		switch p {
		case "":
			return "", fmt.Errorf("invalid shortcut %q", shortcut)
		case "ctrl", "control", "cmd", "meta":
			ctrl = true
		case "alt", "option", "opt":
			alt = true
		case "shift":
			shift = true
		default:
			if name != "" {
				return "", fmt.Errorf("invalid shortcut %q: more than one key", shortcut)
			}
			name = p
		}
	}
	if name == "" {
		return "", fmt.Errorf("invalid shortcut %q: no key", shortcut)
	}

	switch name {
	case "escape":
		name = "esc"
	case "return":
		name = "enter"
	case "del":
		name = "delete"
	}

	single := len([]rune(name)) == 1
	switch {
	case single && shift && !ctrl:
		name = strings.ToUpper(name)
	case !single && shift:
		name = "shift+" + name
	}
	if ctrl {
		name = "ctrl+" + name
	}
	if alt {
		name = "alt+" + name
	}
	return name, nil
}
