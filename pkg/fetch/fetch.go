// Package fetch runs the download side of discordant: it pulls URL requests
// from the bus, fetches each one in its own goroutine, and pushes complete
// response bodies back.
//
// Failures (network errors, bad statuses, more than one redirect, timeouts)
// are logged and the request is dropped; nothing crosses back to the
// bridge or the session. Results carry the request ID, and are not ordered
// relative to one another.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sipeed/discordant/pkg/bus"
	"github.com/sipeed/discordant/pkg/logger"
)

// DefaultTimeout bounds a single fetch: request, redirect hop and body read.
const DefaultTimeout = 10 * time.Second

// ErrTooManyRedirects is reported when the redirect target redirects again.
var ErrTooManyRedirects = errors.New("fetch: more than one redirect")

// Stats are cumulative dispatcher counters.
type Stats struct {
	Requested uint64 `json:"requested"`
	Succeeded uint64 `json:"succeeded"`
	Failed    uint64 `json:"failed"`
}

// Dispatcher consumes DownloadRequests and produces FetchedBuffers.
type Dispatcher struct {
	bus     *bus.MessageBus
	client  *http.Client
	timeout time.Duration

	wg        sync.WaitGroup
	requested atomic.Uint64
	succeeded atomic.Uint64
	failed    atomic.Uint64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout sets the per-fetch deadline. Zero or negative disables it.
func WithTimeout(d time.Duration) Option {
	return func(f *Dispatcher) { f.timeout = d }
}

// WithHTTPClient replaces the HTTP client. Its redirect policy is overridden
// so redirects are always handled by the dispatcher.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Dispatcher) {
		clone := *c
		f.client = &clone
	}
}

// New creates a dispatcher reading mb.Downloads and writing mb.Fetched.
func New(mb *bus.MessageBus, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		bus:     mb,
		client:  &http.Client{},
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return d
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Requested: d.requested.Load(),
		Succeeded: d.succeeded.Load(),
		Failed:    d.failed.Load(),
	}
}

// Run pulls requests until ctx is done or the download queue is closed,
// spawning one task per request. It returns once every task has finished;
// both ways of stopping are a clean shutdown.
func (d *Dispatcher) Run(ctx context.Context) error {
	logger.InfoC("fetch", "Fetch dispatcher started")
	defer d.wg.Wait()

	for {
		req, err := d.bus.Downloads().Recv(ctx)
		if errors.Is(err, bus.ErrQueueClosed) {
			logger.InfoC("fetch", "Download queue closed, dispatcher stopping")
			return nil
		}
		if err != nil {
			logger.InfoC("fetch", "Fetch dispatcher stopped")
			return nil
		}

		d.requested.Add(1)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.handle(ctx, req)
		}()
	}
}

func (d *Dispatcher) handle(ctx context.Context, req bus.DownloadRequest) {
	body, err := d.fetch(ctx, req.URL)
	if err != nil {
		d.failed.Add(1)
		logger.WarnCF("fetch", "Fetch failed, dropping request", map[string]interface{}{
			"id":    req.ID,
			"url":   req.URL,
			"error": err.Error(),
		})
		d.bus.PublishSystem(bus.SystemEvent{
			Type:   bus.SystemFetchFailed,
			Source: "fetch",
			Data:   bus.FetchFailure{ID: req.ID, URL: req.URL, Error: err.Error()},
		})
		return
	}

	// Blocking send: backpressure from a slow consumer stops here, off the
	// gateway goroutine.
	out := bus.FetchedBuffer{ID: req.ID, URL: req.URL, Body: body}
	if err := d.bus.Fetched().Send(ctx, out); err != nil {
		d.failed.Add(1)
		logger.WarnCF("fetch", "Result not delivered", map[string]interface{}{
			"id":    req.ID,
			"error": err.Error(),
		})
		return
	}
	d.succeeded.Add(1)
	logger.DebugCF("fetch", "Fetched", map[string]interface{}{
		"id":    req.ID,
		"url":   req.URL,
		"bytes": len(body),
	})
}

// fetch GETs rawURL, following at most one redirect, and reads the body.
func (d *Dispatcher) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	resp, err := d.get(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	if isRedirect(resp.StatusCode) {
		target, err := redirectTarget(resp)
		drain(resp)
		if err != nil {
			return nil, err
		}
		logger.DebugCF("fetch", "Following redirect", map[string]interface{}{
			"from": rawURL,
			"to":   target,
		})
		resp, err = d.get(ctx, target)
		if err != nil {
			return nil, err
		}
		if isRedirect(resp.StatusCode) {
			drain(resp)
			return nil, ErrTooManyRedirects
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func (d *Dispatcher) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rawURL, err)
	}
	return resp, nil
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// redirectTarget resolves Location against the request URL.
func redirectTarget(resp *http.Response) (string, error) {
	loc := resp.Header.Get("Location")
	if loc == "" {
		return "", fmt.Errorf("redirect %s without Location", resp.Status)
	}
	target, err := url.Parse(loc)
	if err != nil {
		return "", fmt.Errorf("bad Location %q: %w", loc, err)
	}
	return resp.Request.URL.ResolveReference(target).String(), nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
