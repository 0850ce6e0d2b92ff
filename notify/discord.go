package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/AdrianGerman/discord-bots/watch"
)

// DiscordSender posts messages through a Discord bot session.
type DiscordSender struct {
	session *discordgo.Session

	ready     chan struct{}
	readyOnce sync.Once

	mu        sync.Mutex
	readySeen bool
	// guilds listed in READY whose GUILD_CREATE has not arrived yet
	pending map[string]struct{}
}

// NewDiscordSender creates a session for the bot token. Call Open to connect.
func NewDiscordSender(botToken string) (*DiscordSender, error) {
	if botToken == "" {
		return nil, errors.New("discord bot token empty")
	}
	s, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds
	d := &DiscordSender{session: s, ready: make(chan struct{})}
	s.AddHandler(d.onReady)
	s.AddHandler(d.onGuildCreate)
	s.AddHandler(d.onGuildDelete)
	return d, nil
}

func (d *DiscordSender) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	user := ""
	if r.User != nil {
		user = r.User.Username
	}
	slog.Info("discord: connected", slog.String("user", user), slog.Int("guilds", len(r.Guilds)))

	d.mu.Lock()
	defer d.mu.Unlock()
	d.readySeen = true
	d.pending = make(map[string]struct{}, len(r.Guilds))
	for _, g := range r.Guilds {
		if g != nil {
			d.pending[g.ID] = struct{}{}
		}
	}
	d.checkReadyLocked()
}

// onGuildCreate runs after discordgo has cached the guild's channels.
func (d *DiscordSender) onGuildCreate(_ *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil || g.Unavailable {
		return
	}
	d.guildSettled(g.ID)
}

func (d *DiscordSender) onGuildDelete(_ *discordgo.Session, g *discordgo.GuildDelete) {
	// an outage keeps the guild pending; removal settles it
	if g.Guild == nil || g.Unavailable {
		return
	}
	d.guildSettled(g.ID)
}

func (d *DiscordSender) guildSettled(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.pending, id)
	d.checkReadyLocked()
}

func (d *DiscordSender) checkReadyLocked() {
	if !d.readySeen || len(d.pending) > 0 {
		return
	}
	d.readyOnce.Do(func() {
		slog.Info("discord: guild channels cached")
		close(d.ready)
	})
}

// Open connects to the gateway. Ready closes once Discord reports READY and
// every guild it lists has been delivered.
func (d *DiscordSender) Open() error {
	return d.session.Open()
}

// Close disconnects from the gateway.
func (d *DiscordSender) Close() error {
	return d.session.Close()
}

// Ready is closed when the gateway session is established and the channel
// cache is populated.
func (d *DiscordSender) Ready() <-chan struct{} {
	return d.ready
}

// Send posts msg to channelID. Channels the session has not cached yet are
// reported as unavailable instead of being attempted.
func (d *DiscordSender) Send(ctx context.Context, channelID string, msg Message) error {
	if !d.channelAvailable(channelID) {
		return &watch.DeliveryError{Channel: channelID, Err: watch.ErrChannelUnavailable}
	}
	_, err := d.session.ChannelMessageSendComplex(channelID, discordMessage(msg), discordgo.WithContext(ctx))
	if err != nil {
		return &watch.DeliveryError{Channel: channelID, Err: err}
	}
	return nil
}

func (d *DiscordSender) channelAvailable(channelID string) bool {
	if channelID == "" || d.session.State == nil {
		return false
	}
	_, err := d.session.State.Channel(channelID)
	return err == nil
}

func discordMessage(msg Message) *discordgo.MessageSend {
	embed := &discordgo.MessageEmbed{
		Title:       msg.Title,
		Description: msg.Description,
		URL:         msg.URL,
		Color:       msg.Color,
	}
	if msg.ImageURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: msg.ImageURL}
	}
	if msg.AuthorName != "" {
		embed.Author = &discordgo.MessageEmbedAuthor{Name: msg.AuthorName, IconURL: msg.AuthorIcon}
	}
	if msg.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: msg.Footer}
	}
	if !msg.Timestamp.IsZero() {
		embed.Timestamp = msg.Timestamp.UTC().Format(time.RFC3339)
	}
	for _, f := range msg.Fields {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}

	out := &discordgo.MessageSend{
		Content: msg.Text(),
		Embeds:  []*discordgo.MessageEmbed{embed},
		// only the configured role may be pinged
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}
	if msg.MentionRoleID != "" {
		out.AllowedMentions.Roles = []string{msg.MentionRoleID}
	}
	return out
}
