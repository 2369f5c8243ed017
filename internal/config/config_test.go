package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(Sources{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MoveDeck() || cfg.DeleteOld() || !cfg.CopyMemoryState() {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.ShortcutCopy != "Ctrl+Alt+C" || cfg.ShortcutPaste != "Ctrl+Alt+V" {
		t.Errorf("unexpected shortcuts %q %q", cfg.ShortcutCopy, cfg.ShortcutPaste)
	}
	if cfg.MaxIDProbes != 1000 {
		t.Errorf("Expected 1000 id probes, got %d", cfg.MaxIDProbes)
	}
}

func TestLoadAddonConfigJSON(t *testing.T) {
	path := writeFile(t, "config.json", `{
    "Change deck": "Yes",
    "Delete old card": "yes",
    "Transfer FSRS data": "No",
    "Shortcut : Copy": "Ctrl+Shift+C",
    "Shortcut : Paste": "Ctrl+Shift+V"
}`)

	cfg, err := Load(Sources{File: path})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.MoveDeck() || !cfg.DeleteOld() || cfg.CopyMemoryState() {
		t.Errorf("config.json values not applied: %+v", cfg)
	}
	if cfg.ShortcutCopy != "Ctrl+Shift+C" {
		t.Errorf("Expected copy shortcut Ctrl+Shift+C, got %q", cfg.ShortcutCopy)
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := writeFile(t, "config.yaml", "Change deck: \"No\"\nMax id probes: 50\nLog level: debug\n")
	dotenv := writeFile(t, ".env", "CARDMERGE_JOURNAL_DIR=/tmp/from-dotenv\n")
	t.Setenv("CARDMERGE_MAX_ID_PROBES", "75")
	t.Setenv("CARDMERGE_CHANGE_DECK", "Yes")
	t.Setenv("CARDMERGE_UNRELATED", "ignored")
	t.Cleanup(func() { os.Unsetenv("CARDMERGE_JOURNAL_DIR") })

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse([]string{"--max-id-probes=90", "--delete-old-card"}); err != nil {
		t.Fatalf("flag parse failed: %v", err)
	}

	cfg, err := Load(Sources{File: path, DotEnv: dotenv, Flags: fs})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	t.Run("flag beats environment", func(t *testing.T) {
		if cfg.MaxIDProbes != 90 {
			t.Errorf("Expected 90, got %d", cfg.MaxIDProbes)
		}
	})
	t.Run("environment beats file", func(t *testing.T) {
		if !cfg.MoveDeck() {
			t.Error("Expected CARDMERGE_CHANGE_DECK to override the file")
		}
	})
	t.Run("file beats defaults", func(t *testing.T) {
		if cfg.LogLevel != "debug" {
			t.Errorf("Expected debug, got %q", cfg.LogLevel)
		}
	})
	t.Run("dotenv is read", func(t *testing.T) {
		if cfg.JournalDir != "/tmp/from-dotenv" {
			t.Errorf("Expected journal dir from .env, got %q", cfg.JournalDir)
		}
	})
	t.Run("unchanged flags do not override", func(t *testing.T) {
		if !cfg.CopyMemoryState() {
			t.Error("Expected default FSRS transfer to survive an unset flag")
		}
		if !cfg.DeleteOld() {
			t.Error("Expected --delete-old-card to apply")
		}
	})
}

func TestLoadMissingDotEnvIsFine(t *testing.T) {
	if _, err := Load(Sources{DotEnv: filepath.Join(t.TempDir(), ".env")}); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad yes/no":        `{"Change deck": "Maybe"}`,
		"zero probes":       `{"Max id probes": 0}`,
		"same shortcuts":    `{"Shortcut : Copy": "Ctrl+K", "Shortcut : Paste": "Ctrl+K"}`,
		"empty shortcut":    `{"Shortcut : Paste": ""}`,
		"unknown log level": `{"Log level": "verbose"}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, "config.json", content)
			if _, err := Load(Sources{File: path}); err == nil {
				t.Error("Expected a validation error")
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	cfg, err := Load(Sources{})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	var buf bytes.Buffer
	logger, closeFn, err := cfg.NewLogger(&buf)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer closeFn()

	logger.Debug("hidden")
	logger.Info("shown", "source_id", 1000)
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("Expected debug records to be filtered at info level")
	}
	if !strings.Contains(out, "source_id=1000") {
		t.Errorf("Expected structured attribute in %q", out)
	}

	cfg.LogFile = filepath.Join(t.TempDir(), "cardmerge.log")
	logger, closeFn, err = cfg.NewLogger(&buf)
	if err != nil {
		t.Fatalf("NewLogger with file failed: %v", err)
	}
	logger.Info("to file")
	closeFn()
	data, err := os.ReadFile(cfg.LogFile)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "to file") {
		t.Errorf("Expected log file to contain the record, got %q", data)
	}
}
