package events

// Kind identifies which case of the Message union a value is.
type Kind string

const (
	// Cache and session lifecycle
	KindCacheReady       Kind = "cache.ready"
	KindReady            Kind = "session.ready"
	KindResumed          Kind = "session.resumed"
	KindShardStageUpdate Kind = "shard.stage_update"

	// Channels
	KindChannelCreate          Kind = "channel.create"
	KindChannelUpdate          Kind = "channel.update"
	KindChannelDelete          Kind = "channel.delete"
	KindCategoryCreate         Kind = "category.create"
	KindCategoryDelete         Kind = "category.delete"
	KindPrivateChannelCreate   Kind = "private_channel.create"
	KindChannelPinsUpdate      Kind = "channel.pins_update"
	KindChannelRecipientAdd    Kind = "channel.recipient_add"
	KindChannelRecipientRemove Kind = "channel.recipient_remove"

	// Guilds
	KindGuildCreate             Kind = "guild.create"
	KindGuildUpdate             Kind = "guild.update"
	KindGuildDelete             Kind = "guild.delete"
	KindGuildUnavailable        Kind = "guild.unavailable"
	KindGuildBanAdd             Kind = "guild.ban_add"
	KindGuildBanRemove          Kind = "guild.ban_remove"
	KindGuildEmojisUpdate       Kind = "guild.emojis_update"
	KindGuildIntegrationsUpdate Kind = "guild.integrations_update"

	// Members and roles
	KindGuildMemberAdd    Kind = "member.add"
	KindGuildMemberUpdate Kind = "member.update"
	KindGuildMemberRemove Kind = "member.remove"
	KindGuildMembersChunk Kind = "member.chunk"
	KindGuildRoleCreate   Kind = "role.create"
	KindGuildRoleUpdate   Kind = "role.update"
	KindGuildRoleDelete   Kind = "role.delete"

	// Messages and reactions
	KindMessageCreate     Kind = "message.create"
	KindMessageUpdate     Kind = "message.update"
	KindMessageDelete     Kind = "message.delete"
	KindMessageDeleteBulk Kind = "message.delete_bulk"
	KindReactionAdd       Kind = "reaction.add"
	KindReactionRemove    Kind = "reaction.remove"
	KindReactionRemoveAll Kind = "reaction.remove_all"

	// Presence, typing, users
	KindPresencesReplace Kind = "presence.replace"
	KindPresenceUpdate   Kind = "presence.update"
	KindTypingStart      Kind = "typing.start"
	KindUserUpdate       Kind = "user.update"

	// Voice and webhooks
	KindVoiceStateUpdate  Kind = "voice.state_update"
	KindVoiceServerUpdate Kind = "voice.server_update"
	KindWebhooksUpdate    Kind = "webhooks.update"

	// Anything the gateway sends that has no typed case
	KindUnknown Kind = "unknown"
)

// Kinds returns every case of the Message union.
func Kinds() []Kind {
	return []Kind{
		KindCacheReady, KindReady, KindResumed, KindShardStageUpdate,
		KindChannelCreate, KindChannelUpdate, KindChannelDelete,
		KindCategoryCreate, KindCategoryDelete, KindPrivateChannelCreate,
		KindChannelPinsUpdate, KindChannelRecipientAdd, KindChannelRecipientRemove,
		KindGuildCreate, KindGuildUpdate, KindGuildDelete, KindGuildUnavailable,
		KindGuildBanAdd, KindGuildBanRemove, KindGuildEmojisUpdate,
		KindGuildIntegrationsUpdate,
		KindGuildMemberAdd, KindGuildMemberUpdate, KindGuildMemberRemove,
		KindGuildMembersChunk, KindGuildRoleCreate, KindGuildRoleUpdate,
		KindGuildRoleDelete,
		KindMessageCreate, KindMessageUpdate, KindMessageDelete,
		KindMessageDeleteBulk, KindReactionAdd, KindReactionRemove,
		KindReactionRemoveAll,
		KindPresencesReplace, KindPresenceUpdate, KindTypingStart, KindUserUpdate,
		KindVoiceStateUpdate, KindVoiceServerUpdate, KindWebhooksUpdate,
		KindUnknown,
	}
}

// String implements fmt.Stringer.
func (k Kind) String() string { return string(k) }

// Valid returns true if the kind is a known case.
func (k Kind) Valid() bool {
	for _, known := range Kinds() {
		if known == k {
			return true
		}
	}
	return false
}
