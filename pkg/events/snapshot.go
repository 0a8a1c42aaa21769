package events

import "github.com/bwmarrin/discordgo"

// Snapshot is the directory state fetched synchronously when the session
// becomes ready: the logged-in user and, per guild, its channels and the
// first page of members.
type Snapshot struct {
	User   *discordgo.User
	Guilds []GuildSnapshot
}

type GuildSnapshot struct {
	Guild    *discordgo.Guild
	Channels []*discordgo.Channel
	Members  []*discordgo.Member
}

// GuildIDs returns the IDs of all guilds in the snapshot, in order.
func (s *Snapshot) GuildIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.Guilds))
	for _, g := range s.Guilds {
		if g.Guild != nil {
			ids = append(ids, g.Guild.ID)
		}
	}
	return ids
}
