// Package bridge turns discordgo gateway callbacks into events.Message values
// on the bus without ever blocking the gateway goroutine.
//
// Handlers run on the session's own read loop (Register enables SyncEvents),
// so the only work they do is building a message and attempting a
// non-blocking enqueue. A full or closed event queue is unrecoverable and is
// reported on Fatal.
//
// The one exception is READY: the directory snapshot is fetched
// synchronously before the Ready message is emitted.
package bridge

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"

	"github.com/sipeed/discordant/pkg/bus"
	"github.com/sipeed/discordant/pkg/events"
	"github.com/sipeed/discordant/pkg/logger"
)

// DefaultMemberLimit is the number of members fetched per guild on READY.
const DefaultMemberLimit = 1000

// Stats are cumulative bridge counters.
type Stats struct {
	Emitted uint64 `json:"emitted"`
	Dropped uint64 `json:"dropped"`
}

// Bridge forwards session callbacks to the bus event queue.
type Bridge struct {
	bus         *bus.MessageBus
	dir         Directory
	memberLimit int

	mu        sync.Mutex
	me        *discordgo.User
	known     map[string]bool     // guilds seen this process lifetime
	pending   map[string]struct{} // guilds from READY not yet created
	readyIDs  []string
	cacheSent bool
	removers  []func()

	emitted atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Bool

	fatalOnce sync.Once
	fatal     chan error
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithMemberLimit sets how many members per guild the READY snapshot fetches.
func WithMemberLimit(n int) Option {
	return func(b *Bridge) {
		if n > 0 {
			b.memberLimit = n
		}
	}
}

// New creates a bridge publishing to mb. dir answers the READY snapshot
// queries.
func New(mb *bus.MessageBus, dir Directory, opts ...Option) *Bridge {
	b := &Bridge{
		bus:         mb,
		dir:         dir,
		memberLimit: DefaultMemberLimit,
		known:       make(map[string]bool),
		pending:     make(map[string]struct{}),
		fatal:       make(chan error, 1),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Fatal yields the first unrecoverable error. The process is expected to
// tear down the session and bridge when it fires.
func (b *Bridge) Fatal() <-chan error {
	return b.fatal
}

// Stats returns a snapshot of the bridge counters.
func (b *Bridge) Stats() Stats {
	return Stats{Emitted: b.emitted.Load(), Dropped: b.dropped.Load()}
}

// emit is the single enqueue point for every handler.
func (b *Bridge) emit(msg events.Message) {
	if b.failed.Load() {
		b.dropped.Add(1)
		logger.DebugCF("bridge", "Dropping event after fatal error", map[string]interface{}{
			"kind": msg.Kind().String(),
		})
		return
	}
	if err := b.bus.PublishEvent(msg); err != nil {
		b.dropped.Add(1)
		b.fail(fmt.Errorf("enqueue %s: %w", msg.Kind(), err))
		return
	}
	b.emitted.Add(1)
}

func (b *Bridge) fail(err error) {
	b.fatalOnce.Do(func() {
		b.failed.Store(true)
		logger.ErrorCF("bridge", "Event bridge failed", map[string]interface{}{
			"error": err.Error(),
		})
		b.bus.PublishSystem(bus.SystemEvent{
			Type:   bus.SystemBridgeFatal,
			Source: "bridge",
			Data:   map[string]interface{}{"error": err.Error()},
		})
		b.fatal <- err
	})
}

// onReady fetches the directory snapshot and emits Ready. It runs on the
// gateway goroutine; this is the one place startup latency is accepted.
func (b *Bridge) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	b.mu.Lock()
	b.me = r.User
	b.pending = make(map[string]struct{}, len(r.Guilds))
	b.readyIDs = make([]string, 0, len(r.Guilds))
	for _, g := range r.Guilds {
		b.pending[g.ID] = struct{}{}
		b.readyIDs = append(b.readyIDs, g.ID)
		b.known[g.ID] = true
	}
	b.cacheSent = false
	b.mu.Unlock()

	logger.InfoCF("bridge", "Session ready, fetching snapshot", map[string]interface{}{
		"guilds": len(r.Guilds),
	})

	snap, err := b.snapshot()
	if err != nil {
		b.fail(fmt.Errorf("ready snapshot: %w", err))
		return
	}

	b.mu.Lock()
	if snap.User != nil {
		b.me = snap.User
	}
	b.mu.Unlock()

	b.emit(events.Ready{Event: r, Snapshot: snap})
	b.maybeCacheReady("")
}

func (b *Bridge) snapshot() (*events.Snapshot, error) {
	user, err := b.dir.CurrentUser()
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}
	guilds, err := b.dir.ListGuilds()
	if err != nil {
		return nil, fmt.Errorf("list guilds: %w", err)
	}

	snap := &events.Snapshot{User: user, Guilds: make([]events.GuildSnapshot, 0, len(guilds))}
	for _, ug := range guilds {
		gs, err := b.guildSnapshot(ug.ID)
		if err != nil {
			logger.WarnCF("bridge", "Skipping guild in snapshot", map[string]interface{}{
				"guild_id": ug.ID,
				"error":    err.Error(),
			})
			continue
		}
		snap.Guilds = append(snap.Guilds, gs)
	}

	logger.InfoCF("bridge", "Snapshot fetched", map[string]interface{}{
		"guilds":  len(snap.Guilds),
		"skipped": len(guilds) - len(snap.Guilds),
	})
	return snap, nil
}

func (b *Bridge) guildSnapshot(guildID string) (events.GuildSnapshot, error) {
	g, err := b.dir.Guild(guildID)
	if err != nil {
		return events.GuildSnapshot{}, fmt.Errorf("guild: %w", err)
	}
	channels, err := b.dir.Channels(guildID)
	if err != nil {
		return events.GuildSnapshot{}, fmt.Errorf("channels: %w", err)
	}
	members, err := b.dir.Members(guildID, b.memberLimit)
	if err != nil {
		return events.GuildSnapshot{}, fmt.Errorf("members: %w", err)
	}
	return events.GuildSnapshot{Guild: g, Channels: channels, Members: members}, nil
}

// maybeCacheReady marks guildID as received and emits CacheReady once the
// last guild announced by READY has arrived.
func (b *Bridge) maybeCacheReady(guildID string) {
	b.mu.Lock()
	if guildID != "" {
		delete(b.pending, guildID)
	}
	if b.cacheSent || b.readyIDs == nil || len(b.pending) > 0 {
		b.mu.Unlock()
		return
	}
	b.cacheSent = true
	ids := append([]string(nil), b.readyIDs...)
	b.mu.Unlock()

	b.emit(events.CacheReady{GuildIDs: ids})
}
