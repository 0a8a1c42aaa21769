package events

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
)

// allCases holds one zero value per Message implementation.
var allCases = []Message{
	CacheReady{}, Ready{}, Resumed{}, ShardStageUpdate{},
	ChannelCreate{}, ChannelUpdate{}, ChannelDelete{},
	CategoryCreate{}, CategoryDelete{}, PrivateChannelCreate{},
	ChannelPinsUpdate{}, ChannelRecipientAdd{}, ChannelRecipientRemove{},
	GuildCreate{}, GuildUpdate{}, GuildDelete{}, GuildUnavailable{},
	GuildBanAdd{}, GuildBanRemove{}, GuildEmojisUpdate{}, GuildIntegrationsUpdate{},
	GuildMemberAdd{}, GuildMemberUpdate{}, GuildMemberRemove{}, GuildMembersChunk{},
	GuildRoleCreate{}, GuildRoleUpdate{}, GuildRoleDelete{},
	MessageCreate{}, MessageUpdate{}, MessageDelete{}, MessageDeleteBulk{},
	ReactionAdd{}, ReactionRemove{}, ReactionRemoveAll{},
	PresencesReplace{}, PresenceUpdate{}, TypingStart{}, UserUpdate{},
	VoiceStateUpdate{}, VoiceServerUpdate{}, WebhooksUpdate{},
	Unknown{},
}

func TestEveryCaseHasADistinctKnownKind(t *testing.T) {
	seen := make(map[Kind]bool)
	for _, m := range allCases {
		k := m.Kind()
		assert.Truef(t, k.Valid(), "%T has unknown kind %q", m, k)
		assert.Falsef(t, seen[k], "kind %q used twice", k)
		seen[k] = true
	}
	assert.Len(t, seen, len(Kinds()), "every kind needs exactly one case")
}

func TestKindsAreUnique(t *testing.T) {
	seen := make(map[Kind]bool)
	for _, k := range Kinds() {
		assert.False(t, seen[k], k)
		seen[k] = true
	}
}

func TestKindValid(t *testing.T) {
	assert.True(t, KindMessageCreate.Valid())
	assert.False(t, Kind("message.explode").Valid())
	assert.Equal(t, "guild.create", KindGuildCreate.String())
}

func TestSnapshotGuildIDs(t *testing.T) {
	var nilSnap *Snapshot
	assert.Nil(t, nilSnap.GuildIDs())

	s := &Snapshot{Guilds: []GuildSnapshot{
		{Guild: &discordgo.Guild{ID: "1"}},
		{},
		{Guild: &discordgo.Guild{ID: "2"}},
	}}
	assert.Equal(t, []string{"1", "2"}, s.GuildIDs())
}
