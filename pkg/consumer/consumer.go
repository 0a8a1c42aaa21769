// Package consumer is the reference consumer loop: it drains bridge events,
// fetches and decodes the images they reference, and hands everything to a
// Sink. Image loading never holds up the event queue.
package consumer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sipeed/discordant/pkg/bus"
	"github.com/sipeed/discordant/pkg/decode"
	"github.com/sipeed/discordant/pkg/events"
	"github.com/sipeed/discordant/pkg/logger"
	"github.com/sipeed/discordant/pkg/media"
)

const (
	// DefaultAwaitTimeout bounds the wait for one fetched image.
	DefaultAwaitTimeout = 15 * time.Second
	// DefaultMaxInFlight caps requests handed to the fetcher and not yet
	// answered.
	DefaultMaxInFlight = 16
	// DefaultBacklog caps references waiting for an in-flight slot.
	DefaultBacklog = 1024

	tick = 50 * time.Millisecond
)

// Sink receives events and decoded images in consumer order. Calls are made
// from the consumer goroutine only.
type Sink interface {
	HandleEvent(msg events.Message)
	HandleImage(ref media.Ref, img *decode.Image)
}

// Stats are cumulative consumer counters, plus the current request load.
type Stats struct {
	Events   uint64 `json:"events"`
	Images   uint64 `json:"images"`
	Skipped  uint64 `json:"skipped"`
	InFlight int64  `json:"in_flight"`
	Backlog  int64  `json:"backlog"`
}

type pending struct {
	ref  media.Ref
	sent time.Time
}

// Consumer pairs each media reference with exactly one fetch, matched by
// request ID, while it keeps draining events.
type Consumer struct {
	bus          *bus.MessageBus
	dec          *decode.Decoder
	sink         Sink
	system       <-chan bus.SystemEvent
	awaitTimeout time.Duration
	maxInFlight  int
	maxBacklog   int

	ready     chan struct{}
	readyOnce sync.Once
	steady    atomic.Bool

	// Owned by the Run goroutine.
	backlog  []media.Ref
	inFlight map[string]pending

	events    atomic.Uint64
	images    atomic.Uint64
	skipped   atomic.Uint64
	inFlightN atomic.Int64
	backlogN  atomic.Int64
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithAwaitTimeout sets how long to wait for one fetch result. Zero or
// negative waits indefinitely.
func WithAwaitTimeout(d time.Duration) Option {
	return func(c *Consumer) { c.awaitTimeout = d }
}

// WithMaxInFlight caps unanswered download requests.
func WithMaxInFlight(n int) Option {
	return func(c *Consumer) {
		if n > 0 {
			c.maxInFlight = n
		}
	}
}

// WithBacklog caps references queued behind the in-flight limit. Extra
// references are skipped.
func WithBacklog(n int) Option {
	return func(c *Consumer) {
		if n > 0 {
			c.maxBacklog = n
		}
	}
}

// New creates a consumer reading mb.Events and mb.Fetched. It subscribes to
// system events straight away so no fetch failure is missed before Run.
func New(mb *bus.MessageBus, dec *decode.Decoder, sink Sink, opts ...Option) *Consumer {
	c := &Consumer{
		bus:          mb,
		dec:          dec,
		sink:         sink,
		system:       mb.SubscribeSystem("consumer"),
		awaitTimeout: DefaultAwaitTimeout,
		maxInFlight:  DefaultMaxInFlight,
		maxBacklog:   DefaultBacklog,
		ready:        make(chan struct{}),
		inFlight:     make(map[string]pending),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WaitReady blocks until the consumer has seen the session Ready message.
func (c *Consumer) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Steady reports whether initialization has completed.
func (c *Consumer) Steady() bool { return c.steady.Load() }

func (c *Consumer) Stats() Stats {
	return Stats{
		Events:   c.events.Load(),
		Images:   c.images.Load(),
		Skipped:  c.skipped.Load(),
		InFlight: c.inFlightN.Load(),
		Backlog:  c.backlogN.Load(),
	}
}

// Run consumes events until the event queue is closed (nil) or ctx is done
// (ctx.Err()). Fetch results and failures are handled as they arrive.
func (c *Consumer) Run(ctx context.Context) error {
	logger.InfoC("consumer", "Consumer loop started")

	ticker := time.NewTicker(c.tickInterval())
	defer ticker.Stop()

	evq := c.bus.Events()
	fetched := c.bus.Fetched()
	system := c.system

	for {
		c.dispatch()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-evq.C():
			c.handle(msg)
		case <-evq.Done():
			for {
				select {
				case msg := <-evq.C():
					c.handle(msg)
				default:
					logger.InfoC("consumer", "Event queue closed, consumer stopping")
					return nil
				}
			}
		case buf := <-fetched.C():
			c.complete(buf)
		case evt, ok := <-system:
			if !ok {
				system = nil
				continue
			}
			c.fail(evt)
		case now := <-ticker.C:
			c.expire(now)
		}
	}
}

func (c *Consumer) tickInterval() time.Duration {
	d := tick
	if c.awaitTimeout > 0 && c.awaitTimeout/4 < d {
		d = c.awaitTimeout / 4
	}
	if d < 5*time.Millisecond {
		d = 5 * time.Millisecond
	}
	return d
}

func (c *Consumer) handle(msg events.Message) {
	c.events.Add(1)

	if _, ok := msg.(events.Ready); ok {
		c.readyOnce.Do(func() {
			c.steady.Store(true)
			close(c.ready)
			logger.InfoC("consumer", "Initialization complete")
		})
	}

	c.sink.HandleEvent(msg)

	for _, ref := range media.References(msg) {
		if len(c.backlog) >= c.maxBacklog {
			c.skipped.Add(1)
			logger.DebugCF("consumer", "Image backlog full, skipping", map[string]interface{}{
				"url": ref.URL,
			})
			continue
		}
		c.backlog = append(c.backlog, ref)
	}
	c.backlogN.Store(int64(len(c.backlog)))
}

// dispatch moves backlog entries to the fetcher while in-flight slots and
// download queue space last.
func (c *Consumer) dispatch() {
	defer func() {
		c.backlogN.Store(int64(len(c.backlog)))
		c.inFlightN.Store(int64(len(c.inFlight)))
	}()

	for len(c.backlog) > 0 && len(c.inFlight) < c.maxInFlight {
		ref := c.backlog[0]
		req, err := c.bus.RequestDownload(ref.URL)
		if errors.Is(err, bus.ErrQueueFull) {
			return
		}
		if err != nil {
			c.skipped.Add(uint64(len(c.backlog)))
			c.backlog = nil
			return
		}
		c.backlog[0] = media.Ref{}
		c.backlog = c.backlog[1:]
		c.inFlight[req.ID] = pending{ref: ref, sent: time.Now()}
	}
	if len(c.backlog) == 0 {
		c.backlog = nil
	}
}

// complete decodes the result of an in-flight request. Results nobody waits
// for any more are discarded.
func (c *Consumer) complete(buf bus.FetchedBuffer) {
	p, ok := c.inFlight[buf.ID]
	if !ok {
		logger.DebugCF("consumer", "Discarding late fetch result", map[string]interface{}{
			"id": buf.ID,
		})
		return
	}
	delete(c.inFlight, buf.ID)

	img, ok := c.dec.Decode(buf.Body)
	if !ok {
		c.skipped.Add(1)
		logger.DebugCF("consumer", "Image not decodable, skipping", map[string]interface{}{
			"url": p.ref.URL,
		})
		return
	}
	c.images.Add(1)
	c.sink.HandleImage(p.ref, img)
}

// fail ends the wait for a request the fetcher gave up on.
func (c *Consumer) fail(evt bus.SystemEvent) {
	if evt.Type != bus.SystemFetchFailed {
		return
	}
	f, ok := evt.Data.(bus.FetchFailure)
	if !ok {
		return
	}
	if _, waiting := c.inFlight[f.ID]; !waiting {
		return
	}
	delete(c.inFlight, f.ID)
	c.skipped.Add(1)
	logger.DebugCF("consumer", "Fetch failed, skipping", map[string]interface{}{
		"id":    f.ID,
		"url":   f.URL,
		"error": f.Error,
	})
}

// expire drops requests older than the await timeout.
func (c *Consumer) expire(now time.Time) {
	if c.awaitTimeout <= 0 {
		return
	}
	for id, p := range c.inFlight {
		if now.Sub(p.sent) < c.awaitTimeout {
			continue
		}
		delete(c.inFlight, id)
		c.skipped.Add(1)
		logger.WarnCF("consumer", "No fetch result in time, skipping", map[string]interface{}{
			"id":      id,
			"url":     p.ref.URL,
			"timeout": c.awaitTimeout.String(),
		})
	}
}
