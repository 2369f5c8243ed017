package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conorfennell/cardmerge/internal/config"
	"github.com/conorfennell/cardmerge/internal/journal"
	"github.com/conorfennell/cardmerge/internal/storage"
	"github.com/conorfennell/cardmerge/internal/transfer"
)

// Exit codes.
const (
	exitOK     = 0
	exitUser   = 1
	exitSystem = 2
)

// app carries what every command needs once flags are parsed.
type app struct {
	collection string
	configFile string
	dotEnv     string

	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
	db       *storage.DB
}

// reportedError is an error the user has already been shown.
type reportedError struct {
	err error
}

func (e reportedError) Error() string { return e.err.Error() }

func (e reportedError) Unwrap() error { return e.err }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{}
	code := run(ctx, a, os.Args[1:], os.Stdout, os.Stderr)
	a.close()
	stop()
	os.Exit(code)
}

func run(ctx context.Context, a *app, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var reported reportedError
	if !errors.As(err, &reported) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case transfer.IsUserError(err), errors.Is(err, storage.ErrNotFound), errors.Is(err, errUsage):
		return exitUser
	default:
		return exitSystem
	}
}

var errUsage = errors.New("usage error")

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "cardmerge",
		Short: "Transfer scheduling data and review history between cards of an Anki collection",
		Long: `cardmerge moves the scheduling state and review history of one card onto another
card of the same Anki collection, so a rewritten or duplicate note keeps the progress
of the card it replaces. Close Anki before running it against a collection.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})

	flags := root.PersistentFlags()
	flags.StringVarP(&a.collection, "collection", "c", "collection.anki2", "path to the collection file")
	flags.StringVar(&a.configFile, "config", "", "config file (YAML or the add-on's config.json)")
	flags.StringVar(&a.dotEnv, "env-file", ".env", "dotenv file loaded before the environment is read")
	config.RegisterFlags(flags)

	root.AddCommand(
		newBrowseCmd(a),
		newTransferCmd(a),
		newShowCmd(a),
		newDupesCmd(a),
		newHistoryCmd(a),
		newImportCmd(a),
		newInitCmd(a),
	)
	return root
}

// setup loads the config, builds the logger and opens the collection.
func (a *app) setup(cmd *cobra.Command) error {
	if cmd.Name() == "help" {
		return nil
	}
	cfg, err := config.Load(config.Sources{
		File:   a.configFile,
		DotEnv: a.dotEnv,
		Flags:  cmd.Flags(),
	})
	if err != nil {
		return err
	}
	a.cfg = cfg

	// The browser owns the terminal, so it only logs to a file.
	var fallback io.Writer = cmd.ErrOrStderr()
	if cmd.Name() == "browse" {
		fallback = io.Discard
	}
	logger, closeLog, err := cfg.NewLogger(fallback)
	if err != nil {
		return err
	}
	a.logger, a.closeLog = logger, closeLog

	// Opening a missing file would create an empty collection; only init may do that.
	if cmd.Name() != "init" {
		if _, err := os.Stat(a.collection); errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: collection %s does not exist, create it with cardmerge init", errUsage, a.collection)
		}
	}

	db, err := storage.Open(cmd.Context(), a.collection)
	if err != nil {
		return fmt.Errorf("failed to open collection %s: %w", a.collection, err)
	}
	a.db = db
	a.logger.Debug("collection opened", "path", a.collection)
	return nil
}

func (a *app) close() {
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close collection", "error", err)
		}
	}
	if a.closeLog != nil {
		_ = a.closeLog()
	}
}

// newSession builds a transfer session from the config, recording into the
// journal when one is configured.
func (a *app) newSession() *transfer.Session {
	session := transfer.NewSession(a.db, transfer.Options{
		MoveDeck:        a.cfg.MoveDeck(),
		DeleteOld:       a.cfg.DeleteOld(),
		CopyMemoryState: a.cfg.CopyMemoryState(),
		MaxIDProbes:     a.cfg.MaxIDProbes,
		CopyShortcut:    a.cfg.ShortcutCopy,
	}, a.logger)

	if a.cfg.JournalDir != "" {
		j, err := journal.Open(a.cfg.JournalDir)
		if err != nil {
			a.logger.Warn("transfers will not be journaled", "dir", a.cfg.JournalDir, "error", err)
		} else {
			session.SetRecorder(j)
		}
	}
	return session
}
