package consumer

import (
	"sync"

	"github.com/sipeed/discordant/pkg/decode"
	"github.com/sipeed/discordant/pkg/events"
	"github.com/sipeed/discordant/pkg/media"
)

// EventHandler handles one consumed event.
type EventHandler func(msg events.Message)

// ImageHandler handles one decoded image.
type ImageHandler func(ref media.Ref, img *decode.Image)

// Router is a Sink that dispatches synchronously to handlers registered per
// event kind. Handlers for the specific kind run first, then global ones.
type Router struct {
	mu       sync.RWMutex
	handlers map[events.Kind][]EventHandler
	all      []EventHandler
	images   []ImageHandler
}

var _ Sink = (*Router)(nil)

func NewRouter() *Router {
	return &Router{handlers: make(map[events.Kind][]EventHandler)}
}

// On registers h for events of kind k.
func (r *Router) On(k events.Kind, h EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[k] = append(r.handlers[k], h)
}

// OnAll registers h for every event.
func (r *Router) OnAll(h EventHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, h)
}

// OnImage registers h for every decoded image.
func (r *Router) OnImage(h ImageHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.images = append(r.images, h)
}

// Use registers both methods of s as global handlers.
func (r *Router) Use(s Sink) {
	r.OnAll(s.HandleEvent)
	r.OnImage(s.HandleImage)
}

func (r *Router) HandleEvent(msg events.Message) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.handlers[msg.Kind()] {
		h(msg)
	}
	for _, h := range r.all {
		h(msg)
	}
}

func (r *Router) HandleImage(ref media.Ref, img *decode.Image) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.images {
		h(ref, img)
	}
}

// HandlerCount returns the number of registered handlers.
func (r *Router) HandlerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := len(r.all) + len(r.images)
	for _, hs := range r.handlers {
		n += len(hs)
	}
	return n
}
