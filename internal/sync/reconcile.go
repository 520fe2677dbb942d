package sync

import (
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/aheige321/true-mastery/internal/domain"
)

// Mode selects how a reconcile combines the two replicas.
type Mode string

const (
	// ModeSync merges both replicas and writes the result to both.
	ModeSync Mode = "SYNC"
	// ModeOverwriteCloud replaces the remote collections with the local ones.
	ModeOverwriteCloud Mode = "OVERWRITE_CLOUD"
	// ModeOverwriteLocal replaces the local collections with the remote ones.
	ModeOverwriteLocal Mode = "OVERWRITE_LOCAL"
)

// ErrUnknownMode is returned for a mode other than the three above.
var ErrUnknownMode = errors.New("unknown sync mode")

// ParseMode accepts the wire names, case-insensitively. An empty string is
// ModeSync.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToUpper(strings.TrimSpace(s))); m {
	case "":
		return ModeSync, nil
	case ModeSync, ModeOverwriteCloud, ModeOverwriteLocal:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Result is the outcome of Reconcile.
type Result struct {
	// Merged is the state both replicas should hold afterwards.
	Merged domain.Snapshot
	// WriteRemote is set when Merged must be written to the remote.
	WriteRemote bool
}

// Reconcile computes the post-reconcile state from the local and remote
// snapshots without any IO. Local data must carry both collections in the
// modes that use it; otherwise the error wraps domain.ErrMalformedPayload.
func Reconcile(mode Mode, local, remote domain.Snapshot) (Result, error) {
	switch mode {
	case ModeSync:
		if err := local.Validate(); err != nil {
			return Result{}, err
		}
		merged := domain.Snapshot{
			Cards:    Merge(remote.Cards, local.Cards),
			Decks:    Merge(remote.Decks, local.Decks),
			Settings: domain.Settings(overlay(remote.Settings, local.Settings)),
			Stats:    domain.Stats(overlay(remote.Stats, local.Stats)),
		}.Clone()
		domain.RecountDecks(merged.Decks, merged.Cards)
		return Result{Merged: merged, WriteRemote: true}, nil

	case ModeOverwriteCloud:
		if err := local.Validate(); err != nil {
			return Result{}, err
		}
		return Result{Merged: local.Clone(), WriteRemote: true}, nil

	case ModeOverwriteLocal:
		return Result{Merged: remote.Clone()}, nil

	default:
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// overlay copies base and then top into a new map, so top wins on key
// collisions.
func overlay[M ~map[string]V, V any](base, top M) map[string]V {
	out := make(map[string]V, len(base)+len(top))
	maps.Copy(out, base)
	maps.Copy(out, top)
	return out
}
