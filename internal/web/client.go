package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/aheige321/true-mastery/internal/domain"
	"github.com/aheige321/true-mastery/internal/remote"
	"github.com/aheige321/true-mastery/internal/sync"
)

// Client calls a reconcile endpoint. It implements sync.Runner.
type Client struct {
	client   *resty.Client
	endpoint string
	userID   string
	log      *slog.Logger
}

var _ sync.Runner = (*Client)(nil)

// NewClient returns a Client posting to endpoint, the full URL of the
// reconcile route. A zero timeout means 30 seconds.
func NewClient(endpoint, userID string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client:   resty.New().SetTimeout(timeout),
		endpoint: endpoint,
		userID:   userID,
		log:      logger.With("component", "web-client"),
	}
}

// Run posts the reconcile request and returns the state the server sent
// back. Transport failures wrap remote.ErrUnavailable, a 401 wraps
// remote.ErrAuth and any other failure answer wraps sync.ErrRemoteRejected.
func (c *Client) Run(ctx context.Context, mode sync.Mode, local domain.Snapshot) (domain.Snapshot, error) {
	req := sync.Request{Method: mode, UserID: c.userID}
	if mode != sync.ModeOverwriteLocal {
		req.Data = &local
	}

	var out sync.Response
	res, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		SetError(&out).
		Post(c.endpoint)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("%w: client.R.Post > %w", remote.ErrUnavailable, err)
	}

	switch {
	case res.StatusCode() == http.StatusUnauthorized:
		return domain.Snapshot{}, fmt.Errorf("%w: %s", remote.ErrAuth, out.Error)
	case res.IsError():
		return domain.Snapshot{}, fmt.Errorf("%w: status %d: %s", sync.ErrRemoteRejected, res.StatusCode(), out.Error)
	case !out.Success:
		return domain.Snapshot{}, fmt.Errorf("%w: %s", sync.ErrRemoteRejected, out.Error)
	}

	if out.Data == nil {
		if mode == sync.ModeOverwriteCloud {
			return local, nil
		}
		return domain.Snapshot{}, errors.Join(sync.ErrRemoteRejected, fmt.Errorf("%w: response without data", domain.ErrMalformedPayload))
	}
	c.log.Debug("Reconciled via server", "mode", mode, "cards", len(out.Data.Cards))
	return *out.Data, nil
}
