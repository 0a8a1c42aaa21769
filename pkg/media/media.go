// Package media lists the images an event references, as URLs the WebP
// decoder can handle.
package media

import (
	"net/url"
	"path"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/sipeed/discordant/pkg/events"
)

// RefKind says what an image belongs to.
type RefKind string

const (
	RefAttachment RefKind = "attachment"
	RefEmbed      RefKind = "embed"
	RefGuildIcon  RefKind = "guild_icon"
	RefAvatar     RefKind = "avatar"
)

// Ref is one image referenced by an event.
type Ref struct {
	Kind RefKind
	// OwnerID is the message, guild or user the image belongs to.
	OwnerID string
	URL     string
}

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// References returns the images msg carries, in a stable order. Events
// without images return nil. For Ready that is the user's own avatar, every
// guild icon and the member avatars of the first guild.
func References(msg events.Message) []Ref {
	var refs []Ref
	switch m := msg.(type) {
	case events.MessageCreate:
		refs = messageRefs(m.Message)
	case events.GuildCreate:
		refs = appendGuildIcon(refs, m.Guild)
	case events.GuildUpdate:
		refs = appendGuildIcon(refs, m.Guild)
	case events.GuildMemberAdd:
		refs = appendMemberAvatar(refs, m.Member)
	case events.GuildMemberUpdate:
		refs = appendMemberAvatar(refs, m.New)
	case events.UserUpdate:
		refs = appendUserAvatar(refs, m.New)
	case events.Ready:
		if m.Snapshot == nil {
			return nil
		}
		refs = appendUserAvatar(refs, m.Snapshot.User)
		for _, g := range m.Snapshot.Guilds {
			refs = appendGuildIcon(refs, g.Guild)
		}
		// Member avatars only for the first guild; the rest load on demand
		// through member events.
		if len(m.Snapshot.Guilds) > 0 {
			for _, member := range m.Snapshot.Guilds[0].Members {
				refs = appendMemberAvatar(refs, member)
			}
		}
	}
	return refs
}

func messageRefs(m *discordgo.Message) []Ref {
	if m == nil {
		return nil
	}
	var refs []Ref
	for _, a := range m.Attachments {
		if a == nil || !isImageAttachment(a) {
			continue
		}
		src := a.ProxyURL
		if src == "" {
			src = a.URL
		}
		refs = append(refs, Ref{Kind: RefAttachment, OwnerID: m.ID, URL: WebPURL(src)})
	}
	for _, e := range m.Embeds {
		if e == nil {
			continue
		}
		if e.Thumbnail != nil {
			if u := firstNonEmpty(e.Thumbnail.ProxyURL, e.Thumbnail.URL); u != "" {
				refs = append(refs, Ref{Kind: RefEmbed, OwnerID: m.ID, URL: WebPURL(u)})
			}
		}
		if e.Image != nil {
			if u := firstNonEmpty(e.Image.ProxyURL, e.Image.URL); u != "" {
				refs = append(refs, Ref{Kind: RefEmbed, OwnerID: m.ID, URL: WebPURL(u)})
			}
		}
	}
	return refs
}

func isImageAttachment(a *discordgo.MessageAttachment) bool {
	if strings.HasPrefix(a.ContentType, "image/") {
		return true
	}
	return imageExts[strings.ToLower(path.Ext(a.Filename))]
}

func appendGuildIcon(refs []Ref, g *discordgo.Guild) []Ref {
	if g == nil || g.Icon == "" {
		return refs
	}
	return append(refs, Ref{
		Kind:    RefGuildIcon,
		OwnerID: g.ID,
		URL:     WebPURL(discordgo.EndpointGuildIcon(g.ID, g.Icon)),
	})
}

func appendMemberAvatar(refs []Ref, m *discordgo.Member) []Ref {
	if m == nil || m.User == nil {
		return refs
	}
	if m.Avatar != "" && m.GuildID != "" {
		return append(refs, Ref{
			Kind:    RefAvatar,
			OwnerID: m.User.ID,
			URL:     WebPURL(discordgo.EndpointCDN + "guilds/" + m.GuildID + "/users/" + m.User.ID + "/avatars/" + m.Avatar + ".png"),
		})
	}
	return appendUserAvatar(refs, m.User)
}

func appendUserAvatar(refs []Ref, u *discordgo.User) []Ref {
	if u == nil || u.Avatar == "" {
		return refs
	}
	return append(refs, Ref{
		Kind:    RefAvatar,
		OwnerID: u.ID,
		URL:     WebPURL(discordgo.EndpointUserAvatar(u.ID, u.Avatar)),
	})
}

// WebPURL asks Discord's CDN or media proxy for the WebP rendition of an
// image. Static CDN assets get a .webp extension; proxied attachments get
// format=webp. Other hosts are returned unchanged.
func WebPURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	switch u.Host {
	case "cdn.discordapp.com":
		if strings.HasPrefix(u.Path, "/attachments/") || strings.HasPrefix(u.Path, "/ephemeral-attachments/") {
			return raw
		}
		ext := path.Ext(u.Path)
		if !imageExts[strings.ToLower(ext)] {
			return raw
		}
		u.Path = strings.TrimSuffix(u.Path, ext) + ".webp"
	case "media.discordapp.net", "images-ext-1.discordapp.net", "images-ext-2.discordapp.net":
		q := u.Query()
		q.Set("format", "webp")
		u.RawQuery = q.Encode()
	default:
		return raw
	}
	return u.String()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
