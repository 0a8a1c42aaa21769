package bridge

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
)

// Directory is the synchronous query side of the session, used only while
// building the READY snapshot.
type Directory interface {
	CurrentUser() (*discordgo.User, error)
	ListGuilds() ([]*discordgo.UserGuild, error)
	Guild(guildID string) (*discordgo.Guild, error)
	Channels(guildID string) ([]*discordgo.Channel, error)
	Members(guildID string, limit int) ([]*discordgo.Member, error)
}

// Sender is the command side of the session.
type Sender interface {
	SendText(channelID, content string) error
	AddRole(guildID, userID, roleID string) error
}

// guildPageSize is the REST maximum for GET /users/@me/guilds.
const guildPageSize = 200

// maxMembersPerRequest is the REST maximum for GET /guilds/{id}/members.
const maxMembersPerRequest = 1000

// SessionDirectory answers Directory and Sender calls over the REST API of
// a discordgo session.
type SessionDirectory struct {
	S *discordgo.Session
}

var (
	_ Directory = (*SessionDirectory)(nil)
	_ Sender    = (*SessionDirectory)(nil)
)

func (d *SessionDirectory) CurrentUser() (*discordgo.User, error) {
	return d.S.User("@me")
}

// ListGuilds pages through every guild the user belongs to.
func (d *SessionDirectory) ListGuilds() ([]*discordgo.UserGuild, error) {
	var all []*discordgo.UserGuild
	after := ""
	for {
		page, err := d.S.UserGuilds(guildPageSize, "", after, false)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < guildPageSize {
			return all, nil
		}
		after = page[len(page)-1].ID
	}
}

func (d *SessionDirectory) Guild(guildID string) (*discordgo.Guild, error) {
	return d.S.Guild(guildID)
}

func (d *SessionDirectory) Channels(guildID string) ([]*discordgo.Channel, error) {
	return d.S.GuildChannels(guildID)
}

// Members fetches up to limit members, paging past the per-request cap.
func (d *SessionDirectory) Members(guildID string, limit int) ([]*discordgo.Member, error) {
	var all []*discordgo.Member
	after := ""
	for len(all) < limit {
		n := min(limit-len(all), maxMembersPerRequest)
		page, err := d.S.GuildMembers(guildID, after, n)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < n || page[len(page)-1].User == nil {
			break
		}
		after = page[len(page)-1].User.ID
	}
	return all, nil
}

func (d *SessionDirectory) SendText(channelID, content string) error {
	if _, err := d.S.ChannelMessageSend(channelID, content); err != nil {
		return fmt.Errorf("send to %s: %w", channelID, err)
	}
	return nil
}

func (d *SessionDirectory) AddRole(guildID, userID, roleID string) error {
	if err := d.S.GuildMemberRoleAdd(guildID, userID, roleID); err != nil {
		return fmt.Errorf("add role %s to %s: %w", roleID, userID, err)
	}
	return nil
}

// Reconnect closes the gateway connection and opens a new one. The READY that
// follows goes through the bridge like the first one.
func (d *SessionDirectory) Reconnect() error {
	if err := d.S.Close(); err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if err := d.S.Open(); err != nil {
		return fmt.Errorf("open session: %w", err)
	}
	return nil
}
