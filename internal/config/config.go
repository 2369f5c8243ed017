package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// Keys match the add-on's config.json so an existing file loads unchanged.
const (
	KeyChangeDeck    = "Change deck"
	KeyDeleteOldCard = "Delete old card"
	KeyTransferFSRS  = "Transfer FSRS data"
	KeyShortcutCopy  = "Shortcut : Copy"
	KeyShortcutPaste = "Shortcut : Paste"
	KeyMaxIDProbes   = "Max id probes"
	KeyJournalDir    = "Journal dir"
	KeyLogLevel      = "Log level"
	KeyLogFile       = "Log file"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "CARDMERGE_"

const (
	yes = "Yes"
	no  = "No"
)

// Config holds the recognized options.
type Config struct {
	ChangeDeck    string `koanf:"Change deck" validate:"oneof=Yes No"`
	DeleteOldCard string `koanf:"Delete old card" validate:"oneof=Yes No"`
	TransferFSRS  string `koanf:"Transfer FSRS data" validate:"oneof=Yes No"`
	ShortcutCopy  string `koanf:"Shortcut : Copy" validate:"required"`
	ShortcutPaste string `koanf:"Shortcut : Paste" validate:"required,nefield=ShortcutCopy"`
	MaxIDProbes   int    `koanf:"Max id probes" validate:"min=1,max=100000"`
	JournalDir    string `koanf:"Journal dir"`
	LogLevel      string `koanf:"Log level" validate:"oneof=debug info warn error"`
	LogFile       string `koanf:"Log file"`
}

// Defaults returns the option values used when nothing overrides them.
func Defaults() map[string]any {
	return map[string]any{
		KeyChangeDeck:    no,
		KeyDeleteOldCard: no,
		KeyTransferFSRS:  yes,
		KeyShortcutCopy:  "Ctrl+Alt+C",
		KeyShortcutPaste: "Ctrl+Alt+V",
		KeyMaxIDProbes:   1000,
		KeyJournalDir:    "",
		KeyLogLevel:      "info",
		KeyLogFile:       "",
	}
}

// Sources lists where Load reads options from. Empty fields are skipped.
type Sources struct {
	// File is a YAML or JSON config file; the add-on's config.json works as is.
	File string
	// DotEnv is a .env file whose variables are loaded before the environment is read.
	DotEnv string
	// Flags is the command-line flag set registered with RegisterFlags.
	Flags *pflag.FlagSet
}

// envKeys maps environment variable suffixes to option keys.
var envKeys = map[string]string{
	"CHANGE_DECK":        KeyChangeDeck,
	"DELETE_OLD_CARD":    KeyDeleteOldCard,
	"TRANSFER_FSRS_DATA": KeyTransferFSRS,
	"SHORTCUT_COPY":      KeyShortcutCopy,
	"SHORTCUT_PASTE":     KeyShortcutPaste,
	"MAX_ID_PROBES":      KeyMaxIDProbes,
	"JOURNAL_DIR":        KeyJournalDir,
	"LOG_LEVEL":          KeyLogLevel,
	"LOG_FILE":           KeyLogFile,
}

// flagKeys maps flag names registered by RegisterFlags to option keys.
var flagKeys = map[string]string{
	"change-deck":     KeyChangeDeck,
	"delete-old-card": KeyDeleteOldCard,
	"transfer-fsrs":   KeyTransferFSRS,
	"max-id-probes":   KeyMaxIDProbes,
	"journal-dir":     KeyJournalDir,
	"log-level":       KeyLogLevel,
	"log-file":        KeyLogFile,
}

// RegisterFlags adds the option flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.Bool("change-deck", false, "move the target card into the source card's deck")
	fs.Bool("delete-old-card", false, "delete the source note and its cards after the transfer")
	fs.Bool("transfer-fsrs", true, "copy the FSRS memory state")
	fs.Int("max-id-probes", 1000, "maximum candidate ids tried when freeing the source id")
	fs.String("journal-dir", "", "git repository recording every transfer (empty disables the journal)")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
	fs.String("log-file", "", "write logs to this file instead of stderr")
}

var validate = validator.New()

// Load merges defaults, the config file, the .env file, the environment and
// the command-line flags, in increasing order of precedence, and validates the result.
func Load(src Sources) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if src.File != "" {
		if err := k.Load(file.Provider(src.File), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", src.File, err)
		}
	}

	if src.DotEnv != "" {
		if err := godotenv.Load(src.DotEnv); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", src.DotEnv, err)
		}
	}

	envProvider := env.ProviderWithValue(EnvPrefix, ".", func(name, value string) (string, any) {
		key, ok := envKeys[strings.TrimPrefix(name, EnvPrefix)]
		if !ok {
			return "", nil
		}
		return key, value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	if src.Flags != nil {
		flagProvider := posflag.ProviderWithFlag(src.Flags, ".", k, func(f *pflag.Flag) (string, any) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			if f.Value.Type() == "bool" {
				return key, yesNo(f.Value.String() == "true")
			}
			return key, posflag.FlagVal(src.Flags, f)
		})
		if err := k.Load(flagProvider, nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.normalize()
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// normalize accepts the spellings people type into config.json.
func (c *Config) normalize() {
	for _, v := range []*string{&c.ChangeDeck, &c.DeleteOldCard, &c.TransferFSRS} {
		switch strings.ToLower(strings.TrimSpace(*v)) {
		case "yes", "y", "true", "1":
			*v = yes
		case "no", "n", "false", "0":
			*v = no
		}
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
}

func yesNo(b bool) string {
	if b {
		return yes
	}
	return no
}

// MoveDeck reports whether deck membership moves with the scheduling data.
func (c *Config) MoveDeck() bool { return c.ChangeDeck == yes }

// DeleteOld reports whether the source note is removed after a transfer.
func (c *Config) DeleteOld() bool { return c.DeleteOldCard == yes }

// CopyMemoryState reports whether the FSRS payload is transferred.
func (c *Config) CopyMemoryState() bool { return c.TransferFSRS == yes }
