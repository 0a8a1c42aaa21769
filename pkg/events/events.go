// Package events defines the closed set of messages the gateway session can
// produce. Every callback the bridge receives becomes exactly one Message;
// the concrete type is the case tag and decides the payload shape.
//
// Payloads are discordgo model values forwarded as received. Messages are
// built once by the bridge and must be treated as immutable afterwards.
package events

import (
	"encoding/json"

	"github.com/bwmarrin/discordgo"
)

// Message is the tagged union of session events. Only types in this
// package implement it.
type Message interface {
	Kind() Kind
	isMessage()
}

// --- Cache and session lifecycle ---

// CacheReady fires once every guild announced by Ready has been received.
type CacheReady struct {
	GuildIDs []string
}

// Ready carries the gateway READY payload together with the directory
// snapshot fetched while handling it.
type Ready struct {
	Event    *discordgo.Ready
	Snapshot *Snapshot
}

type Resumed struct {
	Event *discordgo.Resumed
}

// ShardStage is the connection stage a shard moved into.
type ShardStage string

const (
	StageConnected    ShardStage = "connected"
	StageDisconnected ShardStage = "disconnected"
)

type ShardStageUpdate struct {
	ShardID    int
	ShardCount int
	Stage      ShardStage
}

// --- Channels ---

type ChannelCreate struct {
	Channel *discordgo.Channel
}

type ChannelUpdate struct {
	Old *discordgo.Channel // nil unless state tracking is enabled
	New *discordgo.Channel
}

type ChannelDelete struct {
	Channel *discordgo.Channel
}

type CategoryCreate struct {
	Category *discordgo.Channel
}

type CategoryDelete struct {
	Category *discordgo.Channel
}

type PrivateChannelCreate struct {
	Channel *discordgo.Channel
}

type ChannelPinsUpdate struct {
	Event *discordgo.ChannelPinsUpdate
}

type ChannelRecipientAdd struct {
	ChannelID string
	User      *discordgo.User
}

type ChannelRecipientRemove struct {
	ChannelID string
	User      *discordgo.User
}

// --- Guilds ---

// GuildCreate is emitted for guilds announced by Ready as they stream in
// (IsNew false) and for guilds joined later (IsNew true).
type GuildCreate struct {
	Guild *discordgo.Guild
	IsNew bool
}

type GuildUpdate struct {
	Guild *discordgo.Guild
}

type GuildDelete struct {
	Guild *discordgo.Guild
	Old   *discordgo.Guild
}

type GuildUnavailable struct {
	GuildID string
}

type GuildBanAdd struct {
	GuildID string
	User    *discordgo.User
}

type GuildBanRemove struct {
	GuildID string
	User    *discordgo.User
}

type GuildEmojisUpdate struct {
	GuildID string
	Emojis  []*discordgo.Emoji
}

type GuildIntegrationsUpdate struct {
	GuildID string
}

// --- Members and roles ---

type GuildMemberAdd struct {
	Member *discordgo.Member
}

type GuildMemberUpdate struct {
	Old *discordgo.Member
	New *discordgo.Member
}

type GuildMemberRemove struct {
	Member *discordgo.Member
}

type GuildMembersChunk struct {
	Chunk *discordgo.GuildMembersChunk
}

type GuildRoleCreate struct {
	GuildID string
	Role    *discordgo.Role
}

type GuildRoleUpdate struct {
	GuildID string
	Role    *discordgo.Role
}

type GuildRoleDelete struct {
	GuildID string
	RoleID  string
}

// --- Messages and reactions ---

type MessageCreate struct {
	Message *discordgo.Message
}

type MessageUpdate struct {
	Old *discordgo.Message
	New *discordgo.Message
}

type MessageDelete struct {
	ChannelID string
	MessageID string
	Old       *discordgo.Message
}

type MessageDeleteBulk struct {
	GuildID    string
	ChannelID  string
	MessageIDs []string
}

type ReactionAdd struct {
	Reaction *discordgo.MessageReaction
	Member   *discordgo.Member
}

type ReactionRemove struct {
	Reaction *discordgo.MessageReaction
}

type ReactionRemoveAll struct {
	ChannelID string
	MessageID string
}

// --- Presence, typing, users ---

type PresencesReplace struct {
	Presences []*discordgo.Presence
}

type PresenceUpdate struct {
	Event *discordgo.PresenceUpdate
}

type TypingStart struct {
	Event *discordgo.TypingStart
}

// UserUpdate reports a change to the logged-in user. Old is the last user
// the bridge saw, nil before Ready.
type UserUpdate struct {
	Old *discordgo.User
	New *discordgo.User
}

// --- Voice and webhooks ---

type VoiceStateUpdate struct {
	Old *discordgo.VoiceState
	New *discordgo.VoiceState
}

type VoiceServerUpdate struct {
	Event *discordgo.VoiceServerUpdate
}

type WebhooksUpdate struct {
	GuildID   string
	ChannelID string
}

// Unknown preserves a gateway dispatch that has no typed case, so protocol
// additions reach the consumer instead of being dropped.
type Unknown struct {
	Name string
	Raw  json.RawMessage
}

func (CacheReady) Kind() Kind              { return KindCacheReady }
func (Ready) Kind() Kind                   { return KindReady }
func (Resumed) Kind() Kind                 { return KindResumed }
func (ShardStageUpdate) Kind() Kind        { return KindShardStageUpdate }
func (ChannelCreate) Kind() Kind           { return KindChannelCreate }
func (ChannelUpdate) Kind() Kind           { return KindChannelUpdate }
func (ChannelDelete) Kind() Kind           { return KindChannelDelete }
func (CategoryCreate) Kind() Kind          { return KindCategoryCreate }
func (CategoryDelete) Kind() Kind          { return KindCategoryDelete }
func (PrivateChannelCreate) Kind() Kind    { return KindPrivateChannelCreate }
func (ChannelPinsUpdate) Kind() Kind       { return KindChannelPinsUpdate }
func (ChannelRecipientAdd) Kind() Kind     { return KindChannelRecipientAdd }
func (ChannelRecipientRemove) Kind() Kind  { return KindChannelRecipientRemove }
func (GuildCreate) Kind() Kind             { return KindGuildCreate }
func (GuildUpdate) Kind() Kind             { return KindGuildUpdate }
func (GuildDelete) Kind() Kind             { return KindGuildDelete }
func (GuildUnavailable) Kind() Kind        { return KindGuildUnavailable }
func (GuildBanAdd) Kind() Kind             { return KindGuildBanAdd }
func (GuildBanRemove) Kind() Kind          { return KindGuildBanRemove }
func (GuildEmojisUpdate) Kind() Kind       { return KindGuildEmojisUpdate }
func (GuildIntegrationsUpdate) Kind() Kind { return KindGuildIntegrationsUpdate }
func (GuildMemberAdd) Kind() Kind          { return KindGuildMemberAdd }
func (GuildMemberUpdate) Kind() Kind       { return KindGuildMemberUpdate }
func (GuildMemberRemove) Kind() Kind       { return KindGuildMemberRemove }
func (GuildMembersChunk) Kind() Kind       { return KindGuildMembersChunk }
func (GuildRoleCreate) Kind() Kind         { return KindGuildRoleCreate }
func (GuildRoleUpdate) Kind() Kind         { return KindGuildRoleUpdate }
func (GuildRoleDelete) Kind() Kind         { return KindGuildRoleDelete }
func (MessageCreate) Kind() Kind           { return KindMessageCreate }
func (MessageUpdate) Kind() Kind           { return KindMessageUpdate }
func (MessageDelete) Kind() Kind           { return KindMessageDelete }
func (MessageDeleteBulk) Kind() Kind       { return KindMessageDeleteBulk }
func (ReactionAdd) Kind() Kind             { return KindReactionAdd }
func (ReactionRemove) Kind() Kind          { return KindReactionRemove }
func (ReactionRemoveAll) Kind() Kind       { return KindReactionRemoveAll }
func (PresencesReplace) Kind() Kind        { return KindPresencesReplace }
func (PresenceUpdate) Kind() Kind          { return KindPresenceUpdate }
func (TypingStart) Kind() Kind             { return KindTypingStart }
func (UserUpdate) Kind() Kind              { return KindUserUpdate }
func (VoiceStateUpdate) Kind() Kind        { return KindVoiceStateUpdate }
func (VoiceServerUpdate) Kind() Kind       { return KindVoiceServerUpdate }
func (WebhooksUpdate) Kind() Kind          { return KindWebhooksUpdate }
func (Unknown) Kind() Kind                 { return KindUnknown }

func (CacheReady) isMessage()              {}
func (Ready) isMessage()                   {}
func (Resumed) isMessage()                 {}
func (ShardStageUpdate) isMessage()        {}
func (ChannelCreate) isMessage()           {}
func (ChannelUpdate) isMessage()           {}
func (ChannelDelete) isMessage()           {}
func (CategoryCreate) isMessage()          {}
func (CategoryDelete) isMessage()          {}
func (PrivateChannelCreate) isMessage()    {}
func (ChannelPinsUpdate) isMessage()       {}
func (ChannelRecipientAdd) isMessage()     {}
func (ChannelRecipientRemove) isMessage()  {}
func (GuildCreate) isMessage()             {}
func (GuildUpdate) isMessage()             {}
func (GuildDelete) isMessage()             {}
func (GuildUnavailable) isMessage()        {}
func (GuildBanAdd) isMessage()             {}
func (GuildBanRemove) isMessage()          {}
func (GuildEmojisUpdate) isMessage()       {}
func (GuildIntegrationsUpdate) isMessage() {}
func (GuildMemberAdd) isMessage()          {}
func (GuildMemberUpdate) isMessage()       {}
func (GuildMemberRemove) isMessage()       {}
func (GuildMembersChunk) isMessage()       {}
func (GuildRoleCreate) isMessage()         {}
func (GuildRoleUpdate) isMessage()         {}
func (GuildRoleDelete) isMessage()         {}
func (MessageCreate) isMessage()           {}
func (MessageUpdate) isMessage()           {}
func (MessageDelete) isMessage()           {}
func (MessageDeleteBulk) isMessage()       {}
func (ReactionAdd) isMessage()             {}
func (ReactionRemove) isMessage()          {}
func (ReactionRemoveAll) isMessage()       {}
func (PresencesReplace) isMessage()        {}
func (PresenceUpdate) isMessage()          {}
func (TypingStart) isMessage()             {}
func (UserUpdate) isMessage()              {}
func (VoiceStateUpdate) isMessage()        {}
func (VoiceServerUpdate) isMessage()       {}
func (WebhooksUpdate) isMessage()          {}
func (Unknown) isMessage()                 {}
