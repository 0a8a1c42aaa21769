package consumer

import (
	"github.com/sipeed/discordant/pkg/decode"
	"github.com/sipeed/discordant/pkg/events"
	"github.com/sipeed/discordant/pkg/logger"
	"github.com/sipeed/discordant/pkg/media"
)

// LogSink is a headless Sink that logs what a UI would render.
type LogSink struct{}

func (LogSink) HandleEvent(msg events.Message) {
	fields := map[string]interface{}{"kind": msg.Kind().String()}
	switch m := msg.(type) {
	case events.Ready:
		if m.Snapshot != nil {
			fields["guilds"] = len(m.Snapshot.Guilds)
			if m.Snapshot.User != nil {
				fields["user"] = m.Snapshot.User.Username
			}
		}
	case events.CacheReady:
		fields["guilds"] = len(m.GuildIDs)
	case events.MessageCreate:
		if m.Message != nil {
			fields["channel_id"] = m.Message.ChannelID
			if m.Message.Author != nil {
				fields["author"] = m.Message.Author.Username
			}
			fields["content"] = m.Message.Content
		}
	case events.Unknown:
		fields["name"] = m.Name
		fields["bytes"] = len(m.Raw)
	}
	logger.InfoCF("sink", "Event", fields)
}

func (LogSink) HandleImage(ref media.Ref, img *decode.Image) {
	logger.InfoCF("sink", "Image", map[string]interface{}{
		"kind":   string(ref.Kind),
		"owner":  ref.OwnerID,
		"width":  img.Width,
		"height": img.Height,
	})
}
