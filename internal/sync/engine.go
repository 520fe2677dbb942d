package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aheige321/true-mastery/internal/domain"
	"github.com/aheige321/true-mastery/internal/remote"
)

// Runner reconciles a local snapshot against a remote replica and returns
// the state the local replica should hold afterwards. Engine runs the
// reconcile in-process; the HTTP client in package web delegates it to a
// server.
type Runner interface {
	Run(ctx context.Context, mode Mode, local domain.Snapshot) (domain.Snapshot, error)
}

// Engine reconciles against a remote document.
type Engine struct {
	doc    remote.Document
	userID string
	now    func() time.Time
	log    *slog.Logger
}

// NewEngine returns an Engine for userID's entry in doc. An empty userID
// means remote.DefaultUserID; a nil logger means slog.Default().
func NewEngine(doc remote.Document, userID string, logger *slog.Logger) *Engine {
	if userID == "" {
		userID = remote.DefaultUserID
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		doc:    doc,
		userID: userID,
		now:    time.Now,
		log:    logger.With("component", "sync"),
	}
}

// Run reconciles for the engine's tenant.
func (e *Engine) Run(ctx context.Context, mode Mode, local domain.Snapshot) (domain.Snapshot, error) {
	return e.RunFor(ctx, e.userID, mode, local)
}

// RunFor reads the remote document, reconciles userID's entry with local and,
// unless mode is ModeOverwriteLocal, writes the result back. Any failure
// aborts the whole operation and nothing is returned for the caller to
// apply.
func (e *Engine) RunFor(ctx context.Context, userID string, mode Mode, local domain.Snapshot) (domain.Snapshot, error) {
	if userID == "" {
		userID = e.userID
	}
	log := e.log.With("mode", mode, "user", userID)
	log.Info("Starting reconcile", "local_cards", len(local.Cards), "local_decks", len(local.Decks))

	files, err := e.doc.ReadFiles(ctx)
	if err != nil {
		log.Error("Failed to read remote", "error", err)
		return domain.Snapshot{}, fmt.Errorf("read remote: %w", err)
	}
	replica, err := remote.Decode(files, userID)
	if err != nil {
		log.Error("Failed to decode remote", "error", err)
		return domain.Snapshot{}, fmt.Errorf("decode remote: %w", err)
	}

	res, err := Reconcile(mode, local, replica.Snapshot())
	if err != nil {
		return domain.Snapshot{}, err
	}

	if res.WriteRemote {
		if err := res.Merged.Validate(); err != nil {
			log.Error("Refusing to write invalid replica", "error", err)
			return domain.Snapshot{}, fmt.Errorf("merged replica: %w", err)
		}
		synced := e.now().UTC()
		out, remove, err := remote.Encode(files, userID, remote.Replica{
			Cards: res.Merged.Cards,
			Decks: res.Merged.Decks,
			Meta: remote.Meta{
				Settings: res.Merged.Settings,
				Stats:    res.Merged.Stats,
				LastSync: &synced,
			},
		})
		if err != nil {
			return domain.Snapshot{}, fmt.Errorf("encode remote: %w", err)
		}
		if err := e.doc.WriteFiles(ctx, out, remove); err != nil {
			log.Error("Failed to write remote", "error", err)
			return domain.Snapshot{}, fmt.Errorf("write remote: %w", err)
		}
	}

	log.Info("Reconcile complete",
		"remote_cards", len(replica.Cards),
		"merged_cards", len(res.Merged.Cards),
		"merged_decks", len(res.Merged.Decks),
		"wrote_remote", res.WriteRemote,
	)
	return res.Merged, nil
}
