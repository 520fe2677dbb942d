package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aheige321/true-mastery/internal/remote"
	"github.com/aheige321/true-mastery/internal/sync"
	"github.com/aheige321/true-mastery/internal/web"
)

func cmdSync(ctx context.Context, a *app, argv []string) error {
	return a.reconcile(ctx, "sync", sync.ModeSync, argv)
}

func cmdPush(ctx context.Context, a *app, argv []string) error {
	return a.reconcile(ctx, "push", sync.ModeOverwriteCloud, argv)
}

func cmdPull(ctx context.Context, a *app, argv []string) error {
	return a.reconcile(ctx, "pull", sync.ModeOverwriteLocal, argv)
}

func (a *app) reconcile(ctx context.Context, name string, mode sync.Mode, argv []string) error {
	if err := args(name, argv, 0); err != nil {
		return err
	}
	runner, err := a.runner()
	if err != nil {
		return err
	}

	sum, err := sync.NewSyncer(runner, a.store, a.log).Sync(ctx, mode)
	switch {
	case errors.Is(err, remote.ErrAuth):
		return fmt.Errorf("%w (check the %s token)", err, a.cfg.Sync.Remote)
	case err != nil:
		return err
	}

	if sum.Applied {
		fmt.Fprintf(a.out, "%s complete: %d decks, %d cards.\n", mode, sum.Decks, sum.Cards)
	} else {
		fmt.Fprintf(a.out, "%s complete: remote now holds %d decks, %d cards.\n", mode, sum.Decks, sum.Cards)
	}
	return nil
}

// cmdServe serves the reconcile endpoint over the configured remote
// document until ctx is cancelled.
func cmdServe(ctx context.Context, a *app, argv []string) error {
	if err := args("serve", argv, 0); err != nil {
		return err
	}
	doc, err := a.document()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           web.NewServer(sync.NewEngine(doc, a.cfg.Sync.UserID, a.log), a.log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.log.Info("Starting server", "addr", srv.Addr, "remote", a.cfg.Sync.Remote)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.log.Info("Shutting down server")
	return srv.Shutdown(shutdownCtx)
}
