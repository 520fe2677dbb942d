package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aheige321/true-mastery/internal/config"
	"github.com/aheige321/true-mastery/internal/domain"
	"github.com/aheige321/true-mastery/internal/logging"
	"github.com/aheige321/true-mastery/internal/queue"
	"github.com/aheige321/true-mastery/internal/quota"
	"github.com/aheige321/true-mastery/internal/remote"
	"github.com/aheige321/true-mastery/internal/remote/gist"
	"github.com/aheige321/true-mastery/internal/remote/gitdoc"
	"github.com/aheige321/true-mastery/internal/storage"
	"github.com/aheige321/true-mastery/internal/store"
	"github.com/aheige321/true-mastery/internal/sync"
	"github.com/aheige321/true-mastery/internal/web"
)

// app holds what every command needs.
type app struct {
	cfg    *config.Config
	log    *slog.Logger
	db     *storage.DB
	store  *store.Store
	in     *bufio.Scanner
	out    io.Writer
	errOut io.Writer
	now    func() time.Time
}

func newApp(cfg *config.Config, stdin io.Reader, stdout, stderr io.Writer) (*app, error) {
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, stderr)
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Store.Path, err)
	}
	st, err := store.Open(db, store.WithLogger(log))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load replica: %w", err)
	}
	log.Debug("Database opened", "path", cfg.Store.Path)

	return &app{
		cfg:    cfg,
		log:    log,
		db:     db,
		store:  st,
		in:     bufio.NewScanner(stdin),
		out:    stdout,
		errOut: stderr,
		now:    time.Now,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

func (a *app) quota() *quota.Tracker {
	return quota.New(a.store, a.now, a.log)
}

func (a *app) scheduler() *queue.Scheduler {
	return queue.New(a.store, a.quota(),
		queue.WithClock(a.now),
		queue.WithDailyNewLimit(a.cfg.Study.DailyNewLimit),
		queue.WithLogger(a.log),
	)
}

// document returns the remote replica document for the configured remote.
func (a *app) document() (remote.Document, error) {
	s := a.cfg.Sync
	if err := s.Validate(); err != nil {
		return nil, err
	}
	switch s.Remote {
	case config.RemoteGit:
		return gitdoc.New(gitdoc.Options{
			URL:      s.Git.URL,
			Branch:   s.Git.Branch,
			Dir:      s.Git.Directory,
			Username: s.Git.Username,
			Token:    s.Git.Token,
			Logger:   a.log,
		}), nil
	case config.RemoteGist:
		return gist.New(gist.Options{
			ID:      s.Gist.ID,
			Token:   s.Gist.Token,
			APIURL:  s.Gist.APIURL,
			Timeout: s.Gist.Timeout,
			Logger:  a.log,
		}), nil
	default:
		return nil, fmt.Errorf("remote %q has no document to serve", s.Remote)
	}
}

// runner returns the reconcile runner for the configured remote. The http
// remote delegates to a server; the others reconcile in-process.
func (a *app) runner() (sync.Runner, error) {
	s := a.cfg.Sync
	if s.Remote == config.RemoteHTTP {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		return web.NewClient(s.HTTP.Endpoint, s.UserID, s.HTTP.Timeout, a.log), nil
	}
	doc, err := a.document()
	if err != nil {
		return nil, err
	}
	return sync.NewEngine(doc, s.UserID, a.log), nil
}

// resolveDeck finds a live deck by id or, failing that, by name.
func (a *app) resolveDeck(ref string) (domain.Deck, error) {
	decks := a.store.LiveDecks()
	for _, d := range decks {
		if string(d.ID) == ref {
			return d, nil
		}
	}
	for _, d := range decks {
		if strings.EqualFold(d.Name, ref) {
			return d, nil
		}
	}
	return domain.Deck{}, fmt.Errorf("%w: %s", domain.ErrDeckNotFound, ref)
}

// prompt writes msg and returns the next input line. ok is false at end of
// input.
func (a *app) prompt(msg string) (line string, ok bool) {
	fmt.Fprint(a.out, msg)
	if !a.in.Scan() {
		fmt.Fprintln(a.out)
		return "", false
	}
	return strings.TrimSpace(a.in.Text()), true
}
