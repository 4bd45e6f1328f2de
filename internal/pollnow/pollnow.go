// Package pollnow asks the upstream agents to poll one node out of band. The
// result is not read back: fresh state arrives later on the delta stream.
package pollnow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/specialistvlad/healthmesh/internal/ctxlog"
	"golang.org/x/time/rate"
	"resty.dev/v3"
)

// ErrUnknownNode is returned when the agents do not know the node.
var ErrUnknownNode = errors.New("pollnow: unknown node")

// Options configures a Client.
type Options struct {
	BaseURL string
	Timeout time.Duration
	// RateLimit is the sustained requests per second. Zero disables limiting.
	RateLimit float64
}

// Client triggers polls.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
}

// New returns a Client for the agents API at opts.BaseURL.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return &Client{
		http: resty.New().
			SetBaseURL(opts.BaseURL).
			SetTimeout(opts.Timeout),
		limiter: limiter,
	}
}

// PollNow requests an immediate poll of id.
func (c *Client) PollNow(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("pollnow: empty id")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("pollnow: waiting for rate limit: %w", err)
	}
	res, err := c.http.R().
		SetContext(ctx).
		SetPathParam("id", id).
		Post("/agents/pollNow/{id}")
	if err != nil {
		return fmt.Errorf("pollnow %q: %w", id, err)
	}
	switch {
	case res.StatusCode() == http.StatusNotFound:
		return fmt.Errorf("%w: %q", ErrUnknownNode, id)
	case res.IsError():
		return fmt.Errorf("pollnow %q: http status %d", id, res.StatusCode())
	}
	ctxlog.FromContext(ctx).Debug("Poll requested.", "id", id, "status", res.StatusCode())
	return nil
}

// Close releases the HTTP client.
func (c *Client) Close() error {
	return c.http.Close()
}
