// Package sync reconciles the local replica with the shared remote one:
// whole-record last-write-wins merging with tombstones, in three modes.
package sync

import (
	"context"
	"log/slog"

	"github.com/aheige321/true-mastery/internal/domain"
)

// LocalStore is the slice of the record store a Syncer needs.
type LocalStore interface {
	Snapshot() domain.Snapshot
	ReplaceAll(domain.Snapshot) error
}

// Syncer runs a reconcile and applies its outcome to the local store.
type Syncer struct {
	runner Runner
	store  LocalStore
	log    *slog.Logger
}

// NewSyncer returns a Syncer. A nil logger means slog.Default().
func NewSyncer(runner Runner, store LocalStore, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{runner: runner, store: store, log: logger.With("component", "sync")}
}

// Summary describes a finished sync.
type Summary struct {
	Mode  Mode
	Cards int
	Decks int
	// Applied is set when the local replica was replaced.
	Applied bool
}

// Sync reconciles the local replica in the given mode. The local replica
// changes only after the reconcile finished successfully, and never in
// ModeOverwriteCloud. A result the store rejects leaves it untouched.
func (s *Syncer) Sync(ctx context.Context, mode Mode) (Summary, error) {
	local := s.store.Snapshot()

	merged, err := s.runner.Run(ctx, mode, local)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{Mode: mode, Cards: len(merged.Cards), Decks: len(merged.Decks)}
	if mode == ModeOverwriteCloud {
		return sum, nil
	}
	if err := s.store.ReplaceAll(merged); err != nil {
		s.log.Error("Rejected reconcile result", "mode", mode, "error", err)
		return Summary{}, err
	}
	sum.Applied = true
	s.log.Info("Local replica updated", "mode", mode, "cards", sum.Cards, "decks", sum.Decks)
	return sum, nil
}
