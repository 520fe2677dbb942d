// Package gitdoc stores the remote document as files in a git repository.
// Every write is one commit pushed to the configured branch.
package gitdoc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/aheige321/true-mastery/internal/remote"
)

const remoteName = "origin"

// Options configures a Document.
type Options struct {
	URL      string
	Branch   string // default "main"
	Dir      string // local working copy
	Username string // default "git"
	Token    string
	Logger   *slog.Logger
}

// Document is a remote.Document backed by a git repository. The local
// working copy is reset to the remote branch before every read and write.
type Document struct {
	url    string
	branch string
	dir    string
	auth   transport.AuthMethod
	now    func() time.Time
	log    *slog.Logger

	mu sync.Mutex
}

var _ remote.Document = (*Document)(nil)

// New returns a Document for opts.
func New(opts Options) *Document {
	d := &Document{
		url:    opts.URL,
		branch: opts.Branch,
		dir:    opts.Dir,
		now:    time.Now,
		log:    opts.Logger,
	}
	if d.branch == "" {
		d.branch = "main"
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	d.log = d.log.With("component", "gitdoc", "url", opts.URL)
	if opts.Token != "" {
		user := opts.Username
		if user == "" {
			user = "git"
		}
		d.auth = &http.BasicAuth{Username: user, Password: opts.Token}
	}
	return d
}

// ReadFiles returns the files at the top level of the branch.
func (d *Document) ReadFiles(ctx context.Context) (remote.Files, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	repo, err := d.checkout(ctx)
	if err != nil {
		return nil, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree at %s: %w", d.dir, err)
	}

	entries, err := wt.Filesystem.ReadDir("/")
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", d.dir, err)
	}
	files := remote.Files{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		f, err := wt.Filesystem.Open(e.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", e.Name(), err)
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", e.Name(), err)
		}
		files[e.Name()] = content
	}
	return files, nil
}

// WriteFiles commits files and the removal of the names in remove, and
// pushes the commit. Nothing is committed when the content is unchanged.
func (d *Document) WriteFiles(ctx context.Context, files remote.Files, remove []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	repo, err := d.checkout(ctx)
	if err != nil {
		return err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get worktree at %s: %w", d.dir, err)
	}

	for name, content := range files {
		if err := writeFile(wt, name, content); err != nil {
			return err
		}
		if _, err := wt.Add(name); err != nil {
			return fmt.Errorf("failed to stage %s: %w", name, err)
		}
	}
	for _, name := range remove {
		if _, err := wt.Filesystem.Stat(name); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if _, err := wt.Remove(name); err != nil {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
	}

	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("failed to get status at %s: %w", d.dir, err)
	}
	if status.IsClean() {
		d.log.Debug("Remote already up to date")
		return nil
	}

	hash, err := wt.Commit("Sync flashcards", &git.CommitOptions{
		Author: &object.Signature{Name: "true-mastery", Email: "sync@true-mastery.local", When: d.now()},
	})
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	ref := config.RefSpec(fmt.Sprintf("%s:%s", plumbing.NewBranchReferenceName(d.branch), plumbing.NewBranchReferenceName(d.branch)))
	err = repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remoteName,
		RefSpecs:   []config.RefSpec{ref},
		Auth:       d.auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return classify("push", err)
	}
	d.log.Info("Pushed remote document", "commit", hash.String(), "branch", d.branch)
	return nil
}

func writeFile(wt *git.Worktree, name string, content []byte) error {
	f, err := wt.Filesystem.Create(name)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", name, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", name, err)
	}
	return nil
}

// checkout clones the repository if it doesn't exist at the local path,
// or fetches and hard-resets to the remote branch if it does.
func (d *Document) checkout(ctx context.Context) (*git.Repository, error) {
	repo, err := git.PlainOpen(d.dir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return d.clone(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open existing repo at %s: %w", d.dir, err)
	}

	branchRef := plumbing.NewBranchReferenceName(d.branch)
	remoteRef := plumbing.NewRemoteReferenceName(remoteName, d.branch)
	err = repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remoteName,
		RefSpecs:   []config.RefSpec{config.RefSpec(fmt.Sprintf("+%s:%s", branchRef, remoteRef))},
		Auth:       d.auth,
	})
	switch {
	case err == nil, errors.Is(err, git.NoErrAlreadyUpToDate):
	case errors.Is(err, transport.ErrEmptyRemoteRepository), errors.Is(err, git.NoMatchingRefSpecError{}):
		// Nothing pushed yet; keep whatever is local.
		return repo, nil
	default:
		return nil, classify("fetch", err)
	}

	ref, err := repo.Reference(remoteRef, true)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", remoteRef, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree at %s: %w", d.dir, err)
	}
	if err := wt.Reset(&git.ResetOptions{Commit: ref.Hash(), Mode: git.HardReset}); err != nil {
		return nil, fmt.Errorf("failed to reset to %s: %w", ref.Hash(), err)
	}
	return repo, nil
}

func (d *Document) clone(ctx context.Context) (*git.Repository, error) {
	d.log.Info("Cloning remote document", "dir", d.dir, "branch", d.branch)
	repo, err := git.PlainCloneContext(ctx, d.dir, false, &git.CloneOptions{
		URL:           d.url,
		Auth:          d.auth,
		RemoteName:    remoteName,
		ReferenceName: plumbing.NewBranchReferenceName(d.branch),
		SingleBranch:  true,
	})
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, transport.ErrEmptyRemoteRepository) && !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return nil, classify("clone", err)
	}

	// The remote has no commits on the branch yet: start a local history
	// that the first write will push.
	d.log.Info("Remote branch is empty, initialising", "dir", d.dir)
	if err := os.RemoveAll(d.dir); err != nil {
		return nil, fmt.Errorf("failed to clean %s: %w", d.dir, err)
	}
	repo, err = git.PlainInit(d.dir, false)
	if err != nil {
		return nil, fmt.Errorf("failed to init repo at %s: %w", d.dir, err)
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(d.branch))
	if err := repo.Storer.SetReference(head); err != nil {
		return nil, fmt.Errorf("failed to point HEAD at %s: %w", d.branch, err)
	}
	if _, err := repo.CreateRemote(&config.RemoteConfig{Name: remoteName, URLs: []string{d.url}}); err != nil {
		return nil, fmt.Errorf("failed to add remote: %w", err)
	}
	return repo, nil
}

// classify maps transport failures onto the remote error taxonomy.
func classify(op string, err error) error {
	if errors.Is(err, transport.ErrAuthenticationRequired) || errors.Is(err, transport.ErrAuthorizationFailed) {
		return fmt.Errorf("%w: %s: %w", remote.ErrAuth, op, err)
	}
	return fmt.Errorf("%w: %s: %w", remote.ErrUnavailable, op, err)
}
