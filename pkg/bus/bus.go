// Package bus connects the three execution contexts of discordant: the
// gateway session, the consumer loop and the fetch pipeline. All traffic
// between them crosses one of three bounded queues owned by MessageBus.
package bus

import (
	"context"
	"sync"

	"github.com/sipeed/discordant/pkg/events"
)

// DefaultCapacity is the size of each of the three queues.
const DefaultCapacity = 100

// Subscriber is a named tap on a message stream. Multiple subscribers can
// independently observe the same published messages (fan-out).
type Subscriber[T any] struct {
	Name string
	ch   chan T
}

type MessageBus struct {
	events    *Queue[events.Message]
	downloads *Queue[DownloadRequest]
	fetched   *Queue[FetchedBuffer]

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once

	// Fan-out subscribers; taps never hold up the primary consumer.
	eventSubs  []*Subscriber[events.Message]
	systemSubs []*Subscriber[SystemEvent]
}

// NewMessageBus creates a bus whose queues each hold capacity items.
func NewMessageBus(capacity int) *MessageBus {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MessageBus{
		events:    NewQueue[events.Message](capacity),
		downloads: NewQueue[DownloadRequest](capacity),
		fetched:   NewQueue[FetchedBuffer](capacity),
	}
}

// Events is the session → consumer queue.
func (mb *MessageBus) Events() *Queue[events.Message] { return mb.events }

// Downloads is the consumer → fetcher queue.
func (mb *MessageBus) Downloads() *Queue[DownloadRequest] { return mb.downloads }

// Fetched is the fetcher → consumer queue.
func (mb *MessageBus) Fetched() *Queue[FetchedBuffer] { return mb.fetched }

// --- Fan-out subscriptions ---

// SubscribeEventTap creates a named subscriber that receives copies of all
// published event messages. The returned channel is buffered; slow
// subscribers drop.
func (mb *MessageBus) SubscribeEventTap(name string) <-chan events.Message {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	sub := &Subscriber[events.Message]{Name: name, ch: make(chan events.Message, 64)}
	if mb.closed {
		close(sub.ch)
		return sub.ch
	}
	mb.eventSubs = append(mb.eventSubs, sub)
	return sub.ch
}

// SubscribeSystem creates a named subscriber for system events.
func (mb *MessageBus) SubscribeSystem(name string) <-chan SystemEvent {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	sub := &Subscriber[SystemEvent]{Name: name, ch: make(chan SystemEvent, 64)}
	if mb.closed {
		close(sub.ch)
		return sub.ch
	}
	mb.systemSubs = append(mb.systemSubs, sub)
	return sub.ch
}

// PublishSystem publishes a system event to all system subscribers.
func (mb *MessageBus) PublishSystem(event SystemEvent) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return
	}
	for _, sub := range mb.systemSubs {
		select {
		case sub.ch <- event:
		default: // drop if slow
		}
	}
}

// --- Primary queues ---

// PublishEvent hands msg to the consumer without blocking. It fails with
// ErrQueueFull or ErrQueueClosed; taps see the message only if it was
// accepted, so they never observe an event the consumer will not.
func (mb *MessageBus) PublishEvent(msg events.Message) error {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return ErrQueueClosed
	}
	if err := mb.events.TrySend(msg); err != nil {
		return err
	}
	for _, sub := range mb.eventSubs {
		select {
		case sub.ch <- msg:
		default:
		}
	}
	return nil
}

// ConsumeEvent blocks until the next event message is available.
func (mb *MessageBus) ConsumeEvent(ctx context.Context) (events.Message, error) {
	return mb.events.Recv(ctx)
}

// RequestDownload queues a fetch for url without blocking and returns the
// request so the caller can match the FetchedBuffer carrying the same ID.
// It fails with ErrQueueFull or ErrQueueClosed.
func (mb *MessageBus) RequestDownload(url string) (DownloadRequest, error) {
	req := NewDownloadRequest(url)
	if err := mb.downloads.TrySend(req); err != nil {
		return DownloadRequest{}, err
	}
	return req, nil
}

// Close shuts every queue and closes all subscriber channels.
func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		mb.mu.Lock()
		mb.closed = true
		for _, sub := range mb.eventSubs {
			close(sub.ch)
		}
		for _, sub := range mb.systemSubs {
			close(sub.ch)
		}
		mb.mu.Unlock()
		mb.events.Close()
		mb.downloads.Close()
		mb.fetched.Close()
	})
}
