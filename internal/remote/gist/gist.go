// Package gist stores the remote document as the files of a GitHub gist.
package gist

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/aheige321/true-mastery/internal/remote"
)

// DefaultAPIURL is the GitHub REST API root.
const DefaultAPIURL = "https://api.github.com"

// Options configures a Document.
type Options struct {
	ID      string
	Token   string
	APIURL  string        // default DefaultAPIURL
	Timeout time.Duration // default 30s
	Logger  *slog.Logger
}

// Document is a remote.Document backed by a gist.
type Document struct {
	client *resty.Client
	id     string
	token  string
	log    *slog.Logger
}

var _ remote.Document = (*Document)(nil)

type gistFile struct {
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
	RawURL    string `json:"raw_url"`
}

type gistResponse struct {
	Files map[string]*gistFile `json:"files"`
}

// New returns a Document for opts.
func New(opts Options) *Document {
	apiURL := opts.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client := resty.New().
		SetBaseURL(apiURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/vnd.github+json")
	if opts.Token != "" {
		client.SetHeader("Authorization", "token "+opts.Token)
	}

	return &Document{
		client: client,
		id:     opts.ID,
		token:  opts.Token,
		log:    logger.With("component", "gist", "gist", opts.ID),
	}
}

// checkAuth verifies the token before touching the gist.
func (d *Document) checkAuth(ctx context.Context) error {
	if d.id == "" || d.token == "" {
		return fmt.Errorf("%w: gist id and token must be configured", remote.ErrAuth)
	}
	res, err := d.client.R().SetContext(ctx).Get("/user")
	if err != nil {
		return fmt.Errorf("%w: client.R.Get /user > %w", remote.ErrUnavailable, err)
	}
	return statusError("check token", res)
}

// ReadFiles fetches every file of the gist, following raw_url for files the
// API truncated.
func (d *Document) ReadFiles(ctx context.Context) (remote.Files, error) {
	if err := d.checkAuth(ctx); err != nil {
		return nil, err
	}

	var g gistResponse
	res, err := d.client.R().
		SetContext(ctx).
		SetResult(&g).
		SetPathParam("id", d.id).
		Get("/gists/{id}")
	if err != nil {
		return nil, fmt.Errorf("%w: client.R.Get gist > %w", remote.ErrUnavailable, err)
	}
	if err := statusError("read gist", res); err != nil {
		return nil, err
	}

	files := remote.Files{}
	for name, f := range g.Files {
		if f == nil {
			continue
		}
		content := f.Content
		if f.Truncated && f.RawURL != "" {
			raw, err := d.client.R().SetContext(ctx).Get(f.RawURL)
			if err != nil {
				return nil, fmt.Errorf("%w: client.R.Get %s > %w", remote.ErrUnavailable, name, err)
			}
			if err := statusError("read "+name, raw); err != nil {
				return nil, err
			}
			content = raw.String()
		}
		files[name] = []byte(content)
	}
	d.log.Debug("Read gist", "files", len(files))
	return files, nil
}

// WriteFiles updates the gist in one PATCH. Files in remove are deleted by
// sending them as null.
func (d *Document) WriteFiles(ctx context.Context, files remote.Files, remove []string) error {
	if err := d.checkAuth(ctx); err != nil {
		return err
	}

	patch := make(map[string]any, len(files)+len(remove))
	for name, content := range files {
		patch[name] = map[string]string{"content": string(content)}
	}
	for _, name := range remove {
		patch[name] = nil
	}

	res, err := d.client.R().
		SetContext(ctx).
		SetPathParam("id", d.id).
		SetBody(map[string]any{"files": patch}).
		Patch("/gists/{id}")
	if err != nil {
		return fmt.Errorf("%w: client.R.Patch gist > %w", remote.ErrUnavailable, err)
	}
	if err := statusError("write gist", res); err != nil {
		return err
	}
	d.log.Info("Updated gist", "files", len(files), "removed", len(remove))
	return nil
}

func statusError(op string, res *resty.Response) error {
	switch code := res.StatusCode(); {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %s: status %d", remote.ErrAuth, op, code)
	default:
		return fmt.Errorf("%w: %s: status %d, body: %s", remote.ErrUnavailable, op, code, res.String())
	}
}
