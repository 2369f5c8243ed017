package journal

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/conorfennell/cardmerge/internal/domain"
	"github.com/conorfennell/cardmerge/internal/transfer"
)

const entriesDir = "entries"

// Entry is one recorded transfer.
type Entry struct {
	ID        string            `yaml:"id"`
	Time      time.Time         `yaml:"time"`
	SourceID  int64             `yaml:"source_id"`
	TargetID  int64             `yaml:"target_id"`
	VacatedID int64             `yaml:"vacated_id"`
	Attempts  int               `yaml:"attempts"`
	Reviews   int               `yaml:"inherited_reviews"`
	Deleted   bool              `yaml:"source_deleted"`
	Source    string            `yaml:"source_label"`
	Target    string            `yaml:"target_label"`
	Options   Options           `yaml:"options"`
	Snapshot  domain.Scheduling `yaml:"snapshot"`
}

// Options are the transfer options in effect when the entry was written.
type Options struct {
	ChangeDeck    bool `yaml:"change_deck"`
	DeleteOldCard bool `yaml:"delete_old_card"`
	TransferFSRS  bool `yaml:"transfer_fsrs_data"`
}

// Journal records transfers as YAML files committed to a git repository, so
// every merge can be inspected and reverted by hand.
type Journal struct {
	dir  string
	repo *git.Repository
	now  func() time.Time
}

// Open opens the journal repository at dir, creating it if it doesn't exist.
func Open(dir string) (*Journal, error) {
	repo, err := git.PlainOpen(dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal dir %s: %w", dir, err)
		}
		repo, err = git.PlainInit(dir, false)
		if err != nil {
			return nil, fmt.Errorf("failed to init journal repo at %s: %w", dir, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to open journal repo at %s: %w", dir, err)
	}
	return &Journal{dir: dir, repo: repo, now: time.Now}, nil
}

// Record writes res as a new entry and commits it.
func (j *Journal) Record(_ context.Context, res *transfer.Result, opts transfer.Options) error {
	now := j.now()
	entry := Entry{
		ID:        uuid.NewString(),
		Time:      now.UTC(),
		SourceID:  res.SourceID,
		TargetID:  res.TargetID,
		VacatedID: res.VacatedID,
		Attempts:  res.Attempts,
		Reviews:   res.InheritedReviews,
		Deleted:   res.SourceDeleted,
		Source:    res.SourceLabel,
		Target:    res.TargetLabel,
		Options: Options{
			ChangeDeck:    opts.MoveDeck,
			DeleteOldCard: opts.DeleteOld,
			TransferFSRS:  opts.CopyMemoryState,
		},
		Snapshot: res.Snapshot,
	}

	data, err := yaml.Marshal(&entry)
	if err != nil {
		return fmt.Errorf("failed to encode journal entry: %w", err)
	}

	name := fmt.Sprintf("%s-%d-%d.yaml", now.UTC().Format("20060102T150405"), res.SourceID, res.TargetID)
	rel := filepath.Join(entriesDir, name)
	if err := os.MkdirAll(filepath.Join(j.dir, entriesDir), 0o755); err != nil {
		return fmt.Errorf("failed to create journal entries dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(j.dir, rel), data, 0o644); err != nil {
		return fmt.Errorf("failed to write journal entry %s: %w", rel, err)
	}

	worktree, err := j.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get journal worktree: %w", err)
	}
	if _, err := worktree.Add(filepath.ToSlash(rel)); err != nil {
		return fmt.Errorf("failed to stage journal entry %s: %w", rel, err)
	}
	msg := fmt.Sprintf("Transfer %d -> %d\n\n%s -> %s\n", res.SourceID, res.TargetID, res.SourceLabel, res.TargetLabel)
	_, err = worktree.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "cardmerge", Email: "cardmerge@localhost", When: now},
	})
	if err != nil {
		return fmt.Errorf("failed to commit journal entry %s: %w", rel, err)
	}
	return nil
}

// Entries returns the recorded transfers, oldest first.
func (j *Journal) Entries() ([]Entry, error) {
	files, err := os.ReadDir(filepath.Join(j.dir, entriesDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read journal entries: %w", err)
	}

	var entries []Entry
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".yaml") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(j.dir, entriesDir, f.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read journal entry %s: %w", f.Name(), err)
		}
		var e Entry
		if err := yaml.Unmarshal(data, &e); err != nil {
			return nil, fmt.Errorf("failed to decode journal entry %s: %w", f.Name(), err)
		}
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(a, b int) bool { return entries[a].Time.Before(entries[b].Time) })
	return entries, nil
}

// Commits returns the number of commits in the journal repository.
func (j *Journal) Commits() (int, error) {
	head, err := j.repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve journal head: %w", err)
	}
	iter, err := j.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return 0, fmt.Errorf("failed to read journal log: %w", err)
	}
	n := 0
	err = iter.ForEach(func(*object.Commit) error {
		n++
		return nil
	})
	return n, err
}
