package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/discordant/pkg/bus"
	"github.com/sipeed/discordant/pkg/events"
)

type fakeDirectory struct {
	mu        sync.Mutex
	user      *discordgo.User
	guilds    []*discordgo.UserGuild
	userErr   error
	failGuild string
	limits    []int
}

func (f *fakeDirectory) CurrentUser() (*discordgo.User, error) {
	return f.user, f.userErr
}

func (f *fakeDirectory) ListGuilds() ([]*discordgo.UserGuild, error) {
	return f.guilds, nil
}

func (f *fakeDirectory) Guild(id string) (*discordgo.Guild, error) {
	if id == f.failGuild {
		return nil, errors.New("boom")
	}
	return &discordgo.Guild{ID: id, Name: "guild " + id, Icon: "icon" + id}, nil
}

func (f *fakeDirectory) Channels(id string) ([]*discordgo.Channel, error) {
	return []*discordgo.Channel{{ID: id + "-general", GuildID: id, Name: "general"}}, nil
}

func (f *fakeDirectory) Members(id string, limit int) ([]*discordgo.Member, error) {
	f.mu.Lock()
	f.limits = append(f.limits, limit)
	f.mu.Unlock()
	return []*discordgo.Member{{GuildID: id, User: &discordgo.User{ID: "u-" + id}}}, nil
}

func newTestBridge(t *testing.T, capacity int, opts ...Option) (*Bridge, *bus.MessageBus, *fakeDirectory) {
	t.Helper()
	mb := bus.NewMessageBus(capacity)
	dir := &fakeDirectory{user: &discordgo.User{ID: "me", Username: "me"}}
	return New(mb, dir, opts...), mb, dir
}

func next(t *testing.T, mb *bus.MessageBus) events.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, err := mb.ConsumeEvent(ctx)
	require.NoError(t, err)
	return msg
}

func TestCallbacksProduceMatchingMessage(t *testing.T) {
	channel := &discordgo.Channel{ID: "c1", GuildID: "g1", Type: discordgo.ChannelTypeGuildText}
	before := &discordgo.Channel{ID: "c1", GuildID: "g1", Name: "old"}
	category := &discordgo.Channel{ID: "cat", GuildID: "g1", Type: discordgo.ChannelTypeGuildCategory}
	dm := &discordgo.Channel{ID: "dm", Type: discordgo.ChannelTypeDM}
	group := &discordgo.Channel{ID: "grp", Type: discordgo.ChannelTypeGroupDM}
	guild := &discordgo.Guild{ID: "g1", Name: "guild"}
	user := &discordgo.User{ID: "u1", Username: "user"}
	member := &discordgo.Member{GuildID: "g1", User: user, Nick: "nick"}
	oldMember := &discordgo.Member{GuildID: "g1", User: user}
	role := &discordgo.Role{ID: "r1", Name: "mod"}
	msg := &discordgo.Message{ID: "m1", ChannelID: "c1", Content: "hi"}
	oldMsg := &discordgo.Message{ID: "m1", ChannelID: "c1", Content: "h"}
	reaction := &discordgo.MessageReaction{UserID: "u1", MessageID: "m1", ChannelID: "c1"}
	voice := &discordgo.VoiceState{UserID: "u1", ChannelID: "v1"}
	oldVoice := &discordgo.VoiceState{UserID: "u1"}
	presence := &discordgo.PresenceUpdate{GuildID: "g1", Presence: discordgo.Presence{User: user}}
	typing := &discordgo.TypingStart{UserID: "u1", ChannelID: "c1"}
	pins := &discordgo.ChannelPinsUpdate{ChannelID: "c1"}
	chunk := &discordgo.GuildMembersChunk{GuildID: "g1", Members: []*discordgo.Member{member}}
	voiceServer := &discordgo.VoiceServerUpdate{Token: "t", GuildID: "g1", Endpoint: "e"}
	resumed := &discordgo.Resumed{}
	presences := discordgo.PresencesReplace{&discordgo.Presence{User: user}}

	tests := []struct {
		name   string
		invoke func(b *Bridge)
		want   events.Message
	}{
		{"resumed", func(b *Bridge) { b.onResumed(nil, resumed) }, events.Resumed{Event: resumed}},
		{"connect", func(b *Bridge) { b.onConnect(nil, &discordgo.Connect{}) },
			events.ShardStageUpdate{Stage: events.StageConnected}},
		{"disconnect", func(b *Bridge) {
			b.onDisconnect(&discordgo.Session{ShardID: 1, ShardCount: 2}, &discordgo.Disconnect{})
		},
			events.ShardStageUpdate{ShardID: 1, ShardCount: 2, Stage: events.StageDisconnected}},
		{"channel create", func(b *Bridge) { b.onChannelCreate(nil, &discordgo.ChannelCreate{Channel: channel}) },
			events.ChannelCreate{Channel: channel}},
		{"category create", func(b *Bridge) { b.onChannelCreate(nil, &discordgo.ChannelCreate{Channel: category}) },
			events.CategoryCreate{Category: category}},
		{"private channel create", func(b *Bridge) { b.onChannelCreate(nil, &discordgo.ChannelCreate{Channel: dm}) },
			events.PrivateChannelCreate{Channel: dm}},
		{"group channel create", func(b *Bridge) { b.onChannelCreate(nil, &discordgo.ChannelCreate{Channel: group}) },
			events.PrivateChannelCreate{Channel: group}},
		{"channel update", func(b *Bridge) {
			b.onChannelUpdate(nil, &discordgo.ChannelUpdate{Channel: channel, BeforeUpdate: before})
		}, events.ChannelUpdate{Old: before, New: channel}},
		{"channel delete", func(b *Bridge) { b.onChannelDelete(nil, &discordgo.ChannelDelete{Channel: channel}) },
			events.ChannelDelete{Channel: channel}},
		{"category delete", func(b *Bridge) { b.onChannelDelete(nil, &discordgo.ChannelDelete{Channel: category}) },
			events.CategoryDelete{Category: category}},
		{"channel pins", func(b *Bridge) { b.onChannelPinsUpdate(nil, pins) }, events.ChannelPinsUpdate{Event: pins}},
		{"recipient add", func(b *Bridge) {
			b.onEvent(nil, &discordgo.Event{Type: "CHANNEL_RECIPIENT_ADD",
				RawData: json.RawMessage(`{"channel_id":"grp","user":{"id":"u1","username":"user"}}`)})
		}, events.ChannelRecipientAdd{ChannelID: "grp", User: &discordgo.User{ID: "u1", Username: "user"}}},
		{"recipient remove", func(b *Bridge) {
			b.onEvent(nil, &discordgo.Event{Type: "CHANNEL_RECIPIENT_REMOVE",
				RawData: json.RawMessage(`{"channel_id":"grp","user":{"id":"u1"}}`)})
		}, events.ChannelRecipientRemove{ChannelID: "grp", User: &discordgo.User{ID: "u1"}}},
		{"guild create", func(b *Bridge) { b.onGuildCreate(nil, &discordgo.GuildCreate{Guild: guild}) },
			events.GuildCreate{Guild: guild, IsNew: true}},
		{"guild update", func(b *Bridge) { b.onGuildUpdate(nil, &discordgo.GuildUpdate{Guild: guild}) },
			events.GuildUpdate{Guild: guild}},
		{"guild delete", func(b *Bridge) {
			b.onGuildDelete(nil, &discordgo.GuildDelete{Guild: &discordgo.Guild{ID: "g1"}, BeforeDelete: guild})
		}, events.GuildDelete{Guild: &discordgo.Guild{ID: "g1"}, Old: guild}},
		{"guild unavailable", func(b *Bridge) {
			b.onGuildDelete(nil, &discordgo.GuildDelete{Guild: &discordgo.Guild{ID: "g1", Unavailable: true}})
		}, events.GuildUnavailable{GuildID: "g1"}},
		{"ban add", func(b *Bridge) { b.onGuildBanAdd(nil, &discordgo.GuildBanAdd{GuildID: "g1", User: user}) },
			events.GuildBanAdd{GuildID: "g1", User: user}},
		{"ban remove", func(b *Bridge) { b.onGuildBanRemove(nil, &discordgo.GuildBanRemove{GuildID: "g1", User: user}) },
			events.GuildBanRemove{GuildID: "g1", User: user}},
		{"emojis", func(b *Bridge) {
			b.onGuildEmojisUpdate(nil, &discordgo.GuildEmojisUpdate{GuildID: "g1", Emojis: []*discordgo.Emoji{{ID: "e1"}}})
		}, events.GuildEmojisUpdate{GuildID: "g1", Emojis: []*discordgo.Emoji{{ID: "e1"}}}},
		{"integrations", func(b *Bridge) {
			b.onGuildIntegrationsUpdate(nil, &discordgo.GuildIntegrationsUpdate{GuildID: "g1"})
		}, events.GuildIntegrationsUpdate{GuildID: "g1"}},
		{"member add", func(b *Bridge) { b.onGuildMemberAdd(nil, &discordgo.GuildMemberAdd{Member: member}) },
			events.GuildMemberAdd{Member: member}},
		{"member update", func(b *Bridge) {
			b.onGuildMemberUpdate(nil, &discordgo.GuildMemberUpdate{Member: member, BeforeUpdate: oldMember})
		}, events.GuildMemberUpdate{Old: oldMember, New: member}},
		{"member remove", func(b *Bridge) { b.onGuildMemberRemove(nil, &discordgo.GuildMemberRemove{Member: member}) },
			events.GuildMemberRemove{Member: member}},
		{"members chunk", func(b *Bridge) { b.onGuildMembersChunk(nil, chunk) }, events.GuildMembersChunk{Chunk: chunk}},
		{"role create", func(b *Bridge) {
			b.onGuildRoleCreate(nil, &discordgo.GuildRoleCreate{GuildRole: &discordgo.GuildRole{GuildID: "g1", Role: role}})
		}, events.GuildRoleCreate{GuildID: "g1", Role: role}},
		{"role update", func(b *Bridge) {
			b.onGuildRoleUpdate(nil, &discordgo.GuildRoleUpdate{GuildRole: &discordgo.GuildRole{GuildID: "g1", Role: role}})
		}, events.GuildRoleUpdate{GuildID: "g1", Role: role}},
		{"role delete", func(b *Bridge) {
			b.onGuildRoleDelete(nil, &discordgo.GuildRoleDelete{GuildID: "g1", RoleID: "r1"})
		}, events.GuildRoleDelete{GuildID: "g1", RoleID: "r1"}},
		{"message create", func(b *Bridge) { b.onMessageCreate(nil, &discordgo.MessageCreate{Message: msg}) },
			events.MessageCreate{Message: msg}},
		{"message update", func(b *Bridge) {
			b.onMessageUpdate(nil, &discordgo.MessageUpdate{Message: msg, BeforeUpdate: oldMsg})
		}, events.MessageUpdate{Old: oldMsg, New: msg}},
		{"message delete", func(b *Bridge) {
			b.onMessageDelete(nil, &discordgo.MessageDelete{Message: msg, BeforeDelete: oldMsg})
		}, events.MessageDelete{ChannelID: "c1", MessageID: "m1", Old: oldMsg}},
		{"message delete bulk", func(b *Bridge) {
			b.onMessageDeleteBulk(nil, &discordgo.MessageDeleteBulk{Messages: []string{"m1", "m2"}, ChannelID: "c1", GuildID: "g1"})
		}, events.MessageDeleteBulk{GuildID: "g1", ChannelID: "c1", MessageIDs: []string{"m1", "m2"}}},
		{"reaction add", func(b *Bridge) {
			b.onReactionAdd(nil, &discordgo.MessageReactionAdd{MessageReaction: reaction, Member: member})
		}, events.ReactionAdd{Reaction: reaction, Member: member}},
		{"reaction remove", func(b *Bridge) {
			b.onReactionRemove(nil, &discordgo.MessageReactionRemove{MessageReaction: reaction})
		}, events.ReactionRemove{Reaction: reaction}},
		{"reaction remove all", func(b *Bridge) {
			b.onReactionRemoveAll(nil, &discordgo.MessageReactionRemoveAll{MessageReaction: reaction})
		}, events.ReactionRemoveAll{ChannelID: "c1", MessageID: "m1"}},
		{"presences replace", func(b *Bridge) { b.onPresencesReplace(nil, &presences) },
			events.PresencesReplace{Presences: presences}},
		{"presence update", func(b *Bridge) { b.onPresenceUpdate(nil, presence) }, events.PresenceUpdate{Event: presence}},
		{"typing", func(b *Bridge) { b.onTypingStart(nil, typing) }, events.TypingStart{Event: typing}},
		{"user update", func(b *Bridge) { b.onUserUpdate(nil, &discordgo.UserUpdate{User: user}) },
			events.UserUpdate{New: user}},
		{"voice state", func(b *Bridge) {
			b.onVoiceStateUpdate(nil, &discordgo.VoiceStateUpdate{VoiceState: voice, BeforeUpdate: oldVoice})
		}, events.VoiceStateUpdate{Old: oldVoice, New: voice}},
		{"voice server", func(b *Bridge) { b.onVoiceServerUpdate(nil, voiceServer) }, events.VoiceServerUpdate{Event: voiceServer}},
		{"webhooks", func(b *Bridge) {
			b.onWebhooksUpdate(nil, &discordgo.WebhooksUpdate{GuildID: "g1", ChannelID: "c1"})
		}, events.WebhooksUpdate{GuildID: "g1", ChannelID: "c1"}},
		{"unknown", func(b *Bridge) {
			b.onEvent(nil, &discordgo.Event{Type: "THREAD_CREATE", RawData: json.RawMessage(`{"id":"t1"}`)})
		}, events.Unknown{Name: "THREAD_CREATE", Raw: json.RawMessage(`{"id":"t1"}`)}},
	}

	covered := make(map[events.Kind]bool)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, mb, _ := newTestBridge(t, 4)
			tt.invoke(b)

			assert.Equal(t, tt.want, next(t, mb))
			assert.Equal(t, 0, mb.Events().Len(), "exactly one message per callback")
			assert.Equal(t, Stats{Emitted: 1}, b.Stats())
			covered[tt.want.Kind()] = true
		})
	}

	// Ready and CacheReady are covered by the snapshot tests below.
	for _, k := range events.Kinds() {
		if k == events.KindReady || k == events.KindCacheReady {
			continue
		}
		assert.Truef(t, covered[k], "no callback test for %s", k)
	}
}

func TestTypedDispatchIsNotDuplicatedAsUnknown(t *testing.T) {
	b, mb, _ := newTestBridge(t, 4)
	b.onEvent(nil, &discordgo.Event{Type: "MESSAGE_CREATE", RawData: json.RawMessage(`{}`)})
	assert.Equal(t, 0, mb.Events().Len())
}

func TestMalformedRecipientEventIsKeptAsUnknown(t *testing.T) {
	b, mb, _ := newTestBridge(t, 4)
	raw := json.RawMessage(`{"channel_id":`)
	b.onEvent(nil, &discordgo.Event{Type: "CHANNEL_RECIPIENT_ADD", RawData: raw})
	assert.Equal(t, events.Unknown{Name: "CHANNEL_RECIPIENT_ADD", Raw: raw}, next(t, mb))
}

func TestFullQueueIsFatalAndDoesNotBlock(t *testing.T) {
	b, mb, _ := newTestBridge(t, 1)
	sys := mb.SubscribeSystem("test")

	b.onTypingStart(nil, &discordgo.TypingStart{UserID: "1"})

	done := make(chan struct{})
	go func() {
		b.onTypingStart(nil, &discordgo.TypingStart{UserID: "2"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("bridge blocked on a full queue")
	}

	select {
	case err := <-b.Fatal():
		assert.ErrorIs(t, err, bus.ErrQueueFull)
	case <-time.After(time.Second):
		t.Fatal("no fatal error reported")
	}

	evt := <-sys
	assert.Equal(t, bus.SystemBridgeFatal, evt.Type)

	// Later events are dropped without a second report.
	b.onTypingStart(nil, &discordgo.TypingStart{UserID: "3"})
	assert.Equal(t, Stats{Emitted: 1, Dropped: 2}, b.Stats())
	assert.Len(t, b.Fatal(), 0)
}

func TestClosedQueueIsFatal(t *testing.T) {
	b, mb, _ := newTestBridge(t, 4)
	mb.Close()

	b.onResumed(nil, &discordgo.Resumed{})

	select {
	case err := <-b.Fatal():
		assert.ErrorIs(t, err, bus.ErrQueueClosed)
	case <-time.After(time.Second):
		t.Fatal("no fatal error reported")
	}
}

func TestReadyEmitsSnapshotThenCacheReady(t *testing.T) {
	b, mb, dir := newTestBridge(t, 16, WithMemberLimit(50))
	dir.guilds = []*discordgo.UserGuild{{ID: "g1"}, {ID: "g2"}, {ID: "bad"}}
	dir.failGuild = "bad"

	ready := &discordgo.Ready{
		User:   &discordgo.User{ID: "me"},
		Guilds: []*discordgo.Guild{{ID: "g1", Unavailable: true}, {ID: "g2", Unavailable: true}},
	}
	b.onReady(nil, ready)

	got, ok := next(t, mb).(events.Ready)
	require.True(t, ok)
	assert.Same(t, ready, got.Event)
	require.NotNil(t, got.Snapshot)
	assert.Equal(t, "me", got.Snapshot.User.ID)
	assert.Equal(t, []string{"g1", "g2"}, got.Snapshot.GuildIDs())
	assert.Len(t, got.Snapshot.Guilds[0].Channels, 1)
	assert.Len(t, got.Snapshot.Guilds[1].Members, 1)
	assert.Equal(t, []int{50, 50}, dir.limits)

	// CacheReady waits for every guild announced in READY.
	b.onGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "g1"}})
	assert.Equal(t, events.GuildCreate{Guild: &discordgo.Guild{ID: "g1"}}, next(t, mb))
	assert.Equal(t, 0, mb.Events().Len())

	b.onGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "g2"}})
	assert.Equal(t, events.GuildCreate{Guild: &discordgo.Guild{ID: "g2"}}, next(t, mb))
	assert.Equal(t, events.CacheReady{GuildIDs: []string{"g1", "g2"}}, next(t, mb))

	// A guild joined afterwards is new and does not repeat CacheReady.
	b.onGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "g3"}})
	assert.Equal(t, events.GuildCreate{Guild: &discordgo.Guild{ID: "g3"}, IsNew: true}, next(t, mb))
	assert.Equal(t, 0, mb.Events().Len())
}

func TestReadyWithoutGuildsIsImmediatelyCacheReady(t *testing.T) {
	b, mb, _ := newTestBridge(t, 4)
	b.onReady(nil, &discordgo.Ready{User: &discordgo.User{ID: "me"}})

	assert.IsType(t, events.Ready{}, next(t, mb))
	assert.Equal(t, events.CacheReady{}, next(t, mb))
}

func TestReadySnapshotFailureIsFatal(t *testing.T) {
	b, mb, dir := newTestBridge(t, 4)
	dir.userErr = fmt.Errorf("401 unauthorized")

	b.onReady(nil, &discordgo.Ready{})

	select {
	case err := <-b.Fatal():
		assert.ErrorContains(t, err, "current user")
	case <-time.After(time.Second):
		t.Fatal("no fatal error reported")
	}
	assert.Equal(t, 0, mb.Events().Len())
}

func TestUserUpdateCarriesPreviousUser(t *testing.T) {
	b, mb, _ := newTestBridge(t, 8)
	b.onReady(nil, &discordgo.Ready{User: &discordgo.User{ID: "me"}})
	next(t, mb) // Ready
	next(t, mb) // CacheReady

	updated := &discordgo.User{ID: "me", Username: "renamed"}
	b.onUserUpdate(nil, &discordgo.UserUpdate{User: updated})

	got := next(t, mb).(events.UserUpdate)
	assert.Equal(t, "me", got.Old.ID)
	assert.Equal(t, "me", got.Old.Username, "old user comes from the snapshot")
	assert.Same(t, updated, got.New)
}

func TestSingleProducerOrderIsPreserved(t *testing.T) {
	b, mb, _ := newTestBridge(t, 64)
	for i := 0; i < 50; i++ {
		b.onMessageDelete(nil, &discordgo.MessageDelete{Message: &discordgo.Message{ID: fmt.Sprint(i), ChannelID: "c"}})
	}
	for i := 0; i < 50; i++ {
		got := next(t, mb).(events.MessageDelete)
		assert.Equal(t, fmt.Sprint(i), got.MessageID)
	}
}

func TestRegisterEnablesSyncDispatch(t *testing.T) {
	s, err := discordgo.New("Bot test")
	require.NoError(t, err)

	b, _, _ := newTestBridge(t, 4)
	b.Register(s)
	assert.True(t, s.SyncEvents)
	assert.NotEmpty(t, b.removers)

	b.Unregister()
	assert.Empty(t, b.removers)
}
