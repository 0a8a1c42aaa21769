package bridge

import (
	"encoding/json"

	"github.com/bwmarrin/discordgo"

	"github.com/sipeed/discordant/pkg/events"
	"github.com/sipeed/discordant/pkg/logger"
)

// typedEvents are the dispatch names that have a dedicated handler below.
// Every other dispatch reaches onEvent and becomes events.Unknown.
var typedEvents = map[string]bool{
	"READY":                       true,
	"RESUMED":                     true,
	"CHANNEL_CREATE":              true,
	"CHANNEL_UPDATE":              true,
	"CHANNEL_DELETE":              true,
	"CHANNEL_PINS_UPDATE":         true,
	"GUILD_CREATE":                true,
	"GUILD_UPDATE":                true,
	"GUILD_DELETE":                true,
	"GUILD_BAN_ADD":               true,
	"GUILD_BAN_REMOVE":            true,
	"GUILD_EMOJIS_UPDATE":         true,
	"GUILD_INTEGRATIONS_UPDATE":   true,
	"GUILD_MEMBER_ADD":            true,
	"GUILD_MEMBER_UPDATE":         true,
	"GUILD_MEMBER_REMOVE":         true,
	"GUILD_MEMBERS_CHUNK":         true,
	"GUILD_ROLE_CREATE":           true,
	"GUILD_ROLE_UPDATE":           true,
	"GUILD_ROLE_DELETE":           true,
	"MESSAGE_CREATE":              true,
	"MESSAGE_UPDATE":              true,
	"MESSAGE_DELETE":              true,
	"MESSAGE_DELETE_BULK":         true,
	"MESSAGE_REACTION_ADD":        true,
	"MESSAGE_REACTION_REMOVE":     true,
	"MESSAGE_REACTION_REMOVE_ALL": true,
	"PRESENCES_REPLACE":           true,
	"PRESENCE_UPDATE":             true,
	"TYPING_START":                true,
	"USER_UPDATE":                 true,
	"VOICE_STATE_UPDATE":          true,
	"VOICE_SERVER_UPDATE":         true,
	"WEBHOOKS_UPDATE":             true,
}

// Register attaches every handler to s and switches the session to
// synchronous dispatch so handlers run in gateway order on its read loop.
func (b *Bridge) Register(s *discordgo.Session) {
	s.SyncEvents = true

	handlers := []interface{}{
		b.onReady,
		b.onResumed,
		b.onConnect,
		b.onDisconnect,
		b.onChannelCreate,
		b.onChannelUpdate,
		b.onChannelDelete,
		b.onChannelPinsUpdate,
		b.onGuildCreate,
		b.onGuildUpdate,
		b.onGuildDelete,
		b.onGuildBanAdd,
		b.onGuildBanRemove,
		b.onGuildEmojisUpdate,
		b.onGuildIntegrationsUpdate,
		b.onGuildMemberAdd,
		b.onGuildMemberUpdate,
		b.onGuildMemberRemove,
		b.onGuildMembersChunk,
		b.onGuildRoleCreate,
		b.onGuildRoleUpdate,
		b.onGuildRoleDelete,
		b.onMessageCreate,
		b.onMessageUpdate,
		b.onMessageDelete,
		b.onMessageDeleteBulk,
		b.onReactionAdd,
		b.onReactionRemove,
		b.onReactionRemoveAll,
		b.onPresencesReplace,
		b.onPresenceUpdate,
		b.onTypingStart,
		b.onUserUpdate,
		b.onVoiceStateUpdate,
		b.onVoiceServerUpdate,
		b.onWebhooksUpdate,
		b.onEvent,
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, h := range handlers {
		b.removers = append(b.removers, s.AddHandler(h))
	}
	logger.InfoCF("bridge", "Registered gateway handlers", map[string]interface{}{
		"handlers": len(handlers),
	})
}

// Unregister detaches every handler added by Register.
func (b *Bridge) Unregister() {
	b.mu.Lock()
	removers := b.removers
	b.removers = nil
	b.mu.Unlock()

	for _, remove := range removers {
		remove()
	}
}

// --- Session lifecycle ---

func (b *Bridge) onResumed(_ *discordgo.Session, r *discordgo.Resumed) {
	b.emit(events.Resumed{Event: r})
}

func (b *Bridge) onConnect(s *discordgo.Session, _ *discordgo.Connect) {
	b.emit(shardStage(s, events.StageConnected))
}

func (b *Bridge) onDisconnect(s *discordgo.Session, _ *discordgo.Disconnect) {
	b.emit(shardStage(s, events.StageDisconnected))
}

func shardStage(s *discordgo.Session, stage events.ShardStage) events.ShardStageUpdate {
	msg := events.ShardStageUpdate{Stage: stage}
	if s != nil {
		msg.ShardID = s.ShardID
		msg.ShardCount = s.ShardCount
	}
	return msg
}

// --- Channels ---

func isCategory(c *discordgo.Channel) bool {
	return c != nil && c.Type == discordgo.ChannelTypeGuildCategory
}

func isPrivate(c *discordgo.Channel) bool {
	return c != nil && (c.Type == discordgo.ChannelTypeDM || c.Type == discordgo.ChannelTypeGroupDM)
}

func (b *Bridge) onChannelCreate(_ *discordgo.Session, c *discordgo.ChannelCreate) {
	switch {
	case isCategory(c.Channel):
		b.emit(events.CategoryCreate{Category: c.Channel})
	case isPrivate(c.Channel):
		b.emit(events.PrivateChannelCreate{Channel: c.Channel})
	default:
		b.emit(events.ChannelCreate{Channel: c.Channel})
	}
}

func (b *Bridge) onChannelUpdate(_ *discordgo.Session, c *discordgo.ChannelUpdate) {
	b.emit(events.ChannelUpdate{Old: c.BeforeUpdate, New: c.Channel})
}

func (b *Bridge) onChannelDelete(_ *discordgo.Session, c *discordgo.ChannelDelete) {
	if isCategory(c.Channel) {
		b.emit(events.CategoryDelete{Category: c.Channel})
		return
	}
	b.emit(events.ChannelDelete{Channel: c.Channel})
}

func (b *Bridge) onChannelPinsUpdate(_ *discordgo.Session, p *discordgo.ChannelPinsUpdate) {
	b.emit(events.ChannelPinsUpdate{Event: p})
}

// --- Guilds ---

func (b *Bridge) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	b.mu.Lock()
	isNew := !b.known[g.ID]
	b.known[g.ID] = true
	b.mu.Unlock()

	b.emit(events.GuildCreate{Guild: g.Guild, IsNew: isNew})
	b.maybeCacheReady(g.ID)
}

func (b *Bridge) onGuildUpdate(_ *discordgo.Session, g *discordgo.GuildUpdate) {
	b.emit(events.GuildUpdate{Guild: g.Guild})
}

func (b *Bridge) onGuildDelete(_ *discordgo.Session, g *discordgo.GuildDelete) {
	if g.Unavailable {
		b.emit(events.GuildUnavailable{GuildID: g.ID})
		return
	}
	b.mu.Lock()
	delete(b.known, g.ID)
	b.mu.Unlock()
	b.emit(events.GuildDelete{Guild: g.Guild, Old: g.BeforeDelete})
}

func (b *Bridge) onGuildBanAdd(_ *discordgo.Session, e *discordgo.GuildBanAdd) {
	b.emit(events.GuildBanAdd{GuildID: e.GuildID, User: e.User})
}

func (b *Bridge) onGuildBanRemove(_ *discordgo.Session, e *discordgo.GuildBanRemove) {
	b.emit(events.GuildBanRemove{GuildID: e.GuildID, User: e.User})
}

func (b *Bridge) onGuildEmojisUpdate(_ *discordgo.Session, e *discordgo.GuildEmojisUpdate) {
	b.emit(events.GuildEmojisUpdate{GuildID: e.GuildID, Emojis: e.Emojis})
}

func (b *Bridge) onGuildIntegrationsUpdate(_ *discordgo.Session, e *discordgo.GuildIntegrationsUpdate) {
	b.emit(events.GuildIntegrationsUpdate{GuildID: e.GuildID})
}

// --- Members and roles ---

func (b *Bridge) onGuildMemberAdd(_ *discordgo.Session, m *discordgo.GuildMemberAdd) {
	b.emit(events.GuildMemberAdd{Member: m.Member})
}

func (b *Bridge) onGuildMemberUpdate(_ *discordgo.Session, m *discordgo.GuildMemberUpdate) {
	b.emit(events.GuildMemberUpdate{Old: m.BeforeUpdate, New: m.Member})
}

func (b *Bridge) onGuildMemberRemove(_ *discordgo.Session, m *discordgo.GuildMemberRemove) {
	b.emit(events.GuildMemberRemove{Member: m.Member})
}

func (b *Bridge) onGuildMembersChunk(_ *discordgo.Session, c *discordgo.GuildMembersChunk) {
	b.emit(events.GuildMembersChunk{Chunk: c})
}

func (b *Bridge) onGuildRoleCreate(_ *discordgo.Session, r *discordgo.GuildRoleCreate) {
	b.emit(events.GuildRoleCreate{GuildID: r.GuildID, Role: r.Role})
}

func (b *Bridge) onGuildRoleUpdate(_ *discordgo.Session, r *discordgo.GuildRoleUpdate) {
	b.emit(events.GuildRoleUpdate{GuildID: r.GuildID, Role: r.Role})
}

func (b *Bridge) onGuildRoleDelete(_ *discordgo.Session, r *discordgo.GuildRoleDelete) {
	b.emit(events.GuildRoleDelete{GuildID: r.GuildID, RoleID: r.RoleID})
}

// --- Messages and reactions ---

func (b *Bridge) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	b.emit(events.MessageCreate{Message: m.Message})
}

func (b *Bridge) onMessageUpdate(_ *discordgo.Session, m *discordgo.MessageUpdate) {
	b.emit(events.MessageUpdate{Old: m.BeforeUpdate, New: m.Message})
}

func (b *Bridge) onMessageDelete(_ *discordgo.Session, m *discordgo.MessageDelete) {
	b.emit(events.MessageDelete{ChannelID: m.ChannelID, MessageID: m.ID, Old: m.BeforeDelete})
}

func (b *Bridge) onMessageDeleteBulk(_ *discordgo.Session, m *discordgo.MessageDeleteBulk) {
	b.emit(events.MessageDeleteBulk{GuildID: m.GuildID, ChannelID: m.ChannelID, MessageIDs: m.Messages})
}

func (b *Bridge) onReactionAdd(_ *discordgo.Session, r *discordgo.MessageReactionAdd) {
	b.emit(events.ReactionAdd{Reaction: r.MessageReaction, Member: r.Member})
}

func (b *Bridge) onReactionRemove(_ *discordgo.Session, r *discordgo.MessageReactionRemove) {
	b.emit(events.ReactionRemove{Reaction: r.MessageReaction})
}

func (b *Bridge) onReactionRemoveAll(_ *discordgo.Session, r *discordgo.MessageReactionRemoveAll) {
	b.emit(events.ReactionRemoveAll{ChannelID: r.ChannelID, MessageID: r.MessageID})
}

// --- Presence, typing, users ---

func (b *Bridge) onPresencesReplace(_ *discordgo.Session, p *discordgo.PresencesReplace) {
	var presences []*discordgo.Presence
	if p != nil {
		presences = *p
	}
	b.emit(events.PresencesReplace{Presences: presences})
}

func (b *Bridge) onPresenceUpdate(_ *discordgo.Session, p *discordgo.PresenceUpdate) {
	b.emit(events.PresenceUpdate{Event: p})
}

func (b *Bridge) onTypingStart(_ *discordgo.Session, t *discordgo.TypingStart) {
	b.emit(events.TypingStart{Event: t})
}

func (b *Bridge) onUserUpdate(_ *discordgo.Session, u *discordgo.UserUpdate) {
	b.mu.Lock()
	old := b.me
	b.me = u.User
	b.mu.Unlock()
	b.emit(events.UserUpdate{Old: old, New: u.User})
}

// --- Voice and webhooks ---

func (b *Bridge) onVoiceStateUpdate(_ *discordgo.Session, v *discordgo.VoiceStateUpdate) {
	b.emit(events.VoiceStateUpdate{Old: v.BeforeUpdate, New: v.VoiceState})
}

func (b *Bridge) onVoiceServerUpdate(_ *discordgo.Session, v *discordgo.VoiceServerUpdate) {
	b.emit(events.VoiceServerUpdate{Event: v})
}

func (b *Bridge) onWebhooksUpdate(_ *discordgo.Session, w *discordgo.WebhooksUpdate) {
	b.emit(events.WebhooksUpdate{GuildID: w.GuildID, ChannelID: w.ChannelID})
}

// --- Everything else ---

type recipientPayload struct {
	ChannelID string          `json:"channel_id"`
	User      *discordgo.User `json:"user"`
}

// onEvent sees every dispatch. Typed dispatches are left to their own
// handler; the rest are preserved as Unknown, except group DM recipient
// changes which discordgo does not model.
func (b *Bridge) onEvent(_ *discordgo.Session, e *discordgo.Event) {
	if typedEvents[e.Type] {
		return
	}

	switch e.Type {
	case "CHANNEL_RECIPIENT_ADD", "CHANNEL_RECIPIENT_REMOVE":
		var p recipientPayload
		if err := json.Unmarshal(e.RawData, &p); err != nil {
			logger.WarnCF("bridge", "Undecodable recipient event", map[string]interface{}{
				"type":  e.Type,
				"error": err.Error(),
			})
			break
		}
		if e.Type == "CHANNEL_RECIPIENT_ADD" {
			b.emit(events.ChannelRecipientAdd{ChannelID: p.ChannelID, User: p.User})
		} else {
			b.emit(events.ChannelRecipientRemove{ChannelID: p.ChannelID, User: p.User})
		}
		return
	}

	b.emit(events.Unknown{Name: e.Type, Raw: e.RawData})
}
