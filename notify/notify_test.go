package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/AdrianGerman/discord-bots/watch"
)

var liveTarget = watch.Target{Name: "twitch:chan", Identity: "chan", Style: watch.StyleLiveness}

func startedEvent() watch.Event {
	return watch.Event{
		Kind:       watch.Started,
		Target:     liveTarget,
		ExternalID: "s1",
		Observation: watch.Observation{
			Present:     true,
			ExternalID:  "s1",
			Title:       "Speedrun any%",
			Author:      "Chan",
			Link:        "https://www.twitch.tv/chan",
			ImageURL:    "https://thumb/1280x720.jpg",
			Game:        "Celeste",
			ViewerCount: 12,
			PublishedAt: time.Date(2024, 10, 15, 14, 30, 0, 0, time.UTC),
		},
	}
}

func TestRenderStarted(t *testing.T) {
	msg, err := Render(startedEvent(), "999")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if msg.Text() != "<@&999> Chan is live on Twitch!" {
		t.Errorf("Text() = %q", msg.Text())
	}
	if msg.Title != "Speedrun any%" || msg.URL != "https://www.twitch.tv/chan" {
		t.Errorf("title/url = %q %q", msg.Title, msg.URL)
	}
	if msg.ImageURL != "https://thumb/1280x720.jpg" {
		t.Errorf("ImageURL = %q", msg.ImageURL)
	}
	if !strings.Contains(msg.Description, "Celeste") {
		t.Errorf("Description = %q, want game", msg.Description)
	}
	if len(msg.Fields) != 2 || msg.Fields[1].Value != "12" {
		t.Errorf("Fields = %+v", msg.Fields)
	}
	if msg.Color != ColorTwitch {
		t.Errorf("Color = %x", msg.Color)
	}
}

func TestRenderNewItemWithoutRole(t *testing.T) {
	ev := watch.Event{
		Kind:       watch.NewItem,
		Target:     watch.Target{Name: "youtube:UCx", Identity: "UCx", Style: watch.StyleLatestItem},
		ExternalID: "v2",
		Observation: watch.Observation{
			Present: true, ExternalID: "v2", Title: "New video", Author: "Some Channel",
			Link: "https://www.youtube.com/watch?v=v2",
		},
	}
	msg, err := Render(ev, "")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if msg.Text() != "Some Channel uploaded a new video!" {
		t.Errorf("Text() = %q", msg.Text())
	}
	if msg.PlainText() != "Some Channel uploaded a new video! | New video | https://www.youtube.com/watch?v=v2" {
		t.Errorf("PlainText() = %q", msg.PlainText())
	}
}

func TestRenderEndedAndFallbacks(t *testing.T) {
	msg, err := Render(watch.Event{Kind: watch.Ended, Target: liveTarget, ExternalID: "s1"}, "999")
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if msg.MentionRoleID != "" {
		t.Error("offline notice must not mention the role")
	}
	if msg.Content != "chan has ended the stream." {
		t.Errorf("Content = %q", msg.Content)
	}

	ev := startedEvent()
	ev.Observation.Title = "  "
	ev.Observation.Author = ""
	ev.Observation.Game = ""
	msg, _ = Render(ev, "")
	if msg.Title != "Live now" || msg.AuthorName != "chan" {
		t.Errorf("fallbacks: title=%q author=%q", msg.Title, msg.AuthorName)
	}

	if _, err := Render(watch.Event{Kind: watch.Kind(99)}, ""); err == nil {
		t.Error("Render() of unknown kind should fail")
	}
}

type fakeSender struct {
	channel string
	msg     Message
	err     error
	calls   int
}

func (f *fakeSender) Send(ctx context.Context, channelRef string, msg Message) error {
	f.calls++
	f.channel, f.msg = channelRef, msg
	return f.err
}

func TestAnnouncerSendsOnce(t *testing.T) {
	s := &fakeSender{}
	a := &Announcer{Sender: s, ChannelRef: "123", RoleID: "999"}

	if err := a.Announce(context.Background(), startedEvent()); err != nil {
		t.Fatalf("Announce() error = %v", err)
	}
	if s.calls != 1 || s.channel != "123" || s.msg.MentionRoleID != "999" {
		t.Errorf("sender got calls=%d channel=%q msg=%+v", s.calls, s.channel, s.msg)
	}
}

func TestAnnouncerWrapsFailures(t *testing.T) {
	s := &fakeSender{err: errors.New("HTTP 403 Forbidden")}
	a := &Announcer{Sender: s, ChannelRef: "123"}

	err := a.Announce(context.Background(), startedEvent())
	var de *watch.DeliveryError
	if !errors.As(err, &de) || de.Channel != "123" {
		t.Fatalf("Announce() error = %v, want *watch.DeliveryError for 123", err)
	}
	if s.calls != 1 {
		t.Errorf("send attempts = %d, want 1 (no retries)", s.calls)
	}

	if err := (&Announcer{ChannelRef: "x"}).Announce(context.Background(), startedEvent()); !errors.As(err, &de) {
		t.Errorf("nil sender: error = %v, want DeliveryError", err)
	}
}

func TestAnnouncerLimiterRespectsContext(t *testing.T) {
	s := &fakeSender{}
	lim := rate.NewLimiter(rate.Every(time.Hour), 1)
	a := &Announcer{Sender: s, ChannelRef: "123", Limiter: lim}

	if err := a.Announce(context.Background(), startedEvent()); err != nil {
		t.Fatalf("first Announce() error = %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := a.Announce(ctx, startedEvent())
	var de *watch.DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("throttled Announce() error = %v, want DeliveryError", err)
	}
	if s.calls != 1 {
		t.Errorf("send attempts = %d, want 1", s.calls)
	}
}

func TestFanoutJoinsErrors(t *testing.T) {
	ok := &fakeSender{}
	bad := &fakeSender{err: &watch.DeliveryError{Channel: "irc", Err: watch.ErrChannelUnavailable}}
	f := Fanout{
		&Announcer{Sender: bad, ChannelRef: "irc"},
		&Announcer{Sender: ok, ChannelRef: "123"},
	}

	err := f.Announce(context.Background(), startedEvent())
	if ok.calls != 1 {
		t.Error("later notifiers must still be called after a failure")
	}
	if !errors.Is(err, watch.ErrChannelUnavailable) {
		t.Errorf("Announce() error = %v, want ErrChannelUnavailable", err)
	}
	if got := watch.ErrorClass(err); got != "delivery_error" {
		t.Errorf("ErrorClass = %q", got)
	}
	if err := (Fanout{&Announcer{Sender: ok, ChannelRef: "1"}}).Announce(context.Background(), startedEvent()); err != nil {
		t.Errorf("all succeed: error = %v", err)
	}
}

func TestDiscordSenderUnavailableChannel(t *testing.T) {
	d, err := NewDiscordSender("fake-token")
	if err != nil {
		t.Fatalf("NewDiscordSender() error = %v", err)
	}

	err = d.Send(context.Background(), "404404", Message{Content: "hi"})
	var de *watch.DeliveryError
	if !errors.As(err, &de) || !errors.Is(err, watch.ErrChannelUnavailable) {
		t.Fatalf("Send() error = %v, want unavailable DeliveryError", err)
	}

	if err := d.session.State.GuildAdd(&discordgo.Guild{ID: "g1", Channels: []*discordgo.Channel{{ID: "c1", GuildID: "g1"}}}); err != nil {
		t.Fatalf("GuildAdd: %v", err)
	}
	if !d.channelAvailable("c1") {
		t.Error("cached channel should be available")
	}

	select {
	case <-d.Ready():
		t.Error("Ready() closed before READY")
	default:
	}
	d.onReady(d.session, &discordgo.Ready{User: &discordgo.User{Username: "bot"}})
	d.onReady(d.session, &discordgo.Ready{})
	select {
	case <-d.Ready():
	default:
		t.Error("Ready() not closed after READY")
	}
}

func TestDiscordSenderWaitsForGuilds(t *testing.T) {
	d, err := NewDiscordSender("fake-token")
	if err != nil {
		t.Fatalf("NewDiscordSender() error = %v", err)
	}
	// READY lists guilds as unavailable stubs; channels arrive with GUILD_CREATE
	d.onReady(d.session, &discordgo.Ready{Guilds: []*discordgo.Guild{
		{ID: "g1", Unavailable: true},
		{ID: "g2", Unavailable: true},
	}})
	select {
	case <-d.Ready():
		t.Fatal("Ready() closed before any guild was delivered")
	default:
	}
	if err := d.Send(context.Background(), "c1", Message{Content: "hi"}); !errors.Is(err, watch.ErrChannelUnavailable) {
		t.Fatalf("Send() error = %v, want ErrChannelUnavailable", err)
	}

	g1 := &discordgo.Guild{ID: "g1", Channels: []*discordgo.Channel{{ID: "c1", GuildID: "g1"}}}
	if err := d.session.State.GuildAdd(g1); err != nil {
		t.Fatalf("GuildAdd: %v", err)
	}
	d.onGuildCreate(d.session, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "g2", Unavailable: true}})
	d.onGuildCreate(d.session, &discordgo.GuildCreate{Guild: g1})
	select {
	case <-d.Ready():
		t.Fatal("Ready() closed while g2 is still pending")
	default:
	}

	d.onGuildDelete(d.session, &discordgo.GuildDelete{Guild: &discordgo.Guild{ID: "g2"}})
	select {
	case <-d.Ready():
	default:
		t.Fatal("Ready() not closed after every guild settled")
	}
	if !d.channelAvailable("c1") {
		t.Error("c1 should be cached once Ready() is closed")
	}
}

func TestNewDiscordSenderRequiresToken(t *testing.T) {
	if _, err := NewDiscordSender(""); err == nil {
		t.Error("NewDiscordSender(\"\") error = nil")
	}
}

func TestDiscordMessage(t *testing.T) {
	msg, _ := Render(startedEvent(), "999")
	out := discordMessage(msg)

	if out.Content != "<@&999> Chan is live on Twitch!" {
		t.Errorf("Content = %q", out.Content)
	}
	if len(out.AllowedMentions.Roles) != 1 || out.AllowedMentions.Roles[0] != "999" {
		t.Errorf("AllowedMentions = %+v", out.AllowedMentions)
	}
	if len(out.Embeds) != 1 {
		t.Fatalf("Embeds = %d, want 1", len(out.Embeds))
	}
	e := out.Embeds[0]
	if e.Image == nil || e.Image.URL != "https://thumb/1280x720.jpg" {
		t.Errorf("Image = %+v", e.Image)
	}
	if e.Timestamp != "2024-10-15T14:30:00Z" {
		t.Errorf("Timestamp = %q", e.Timestamp)
	}
	if len(e.Fields) != 2 {
		t.Errorf("Fields = %d, want 2", len(e.Fields))
	}

	plain := discordMessage(Message{Content: "x"})
	if len(plain.AllowedMentions.Roles) != 0 {
		t.Error("no role should be mentionable without MentionRoleID")
	}
}

func TestTwitchChatSenderNotConnected(t *testing.T) {
	s, err := NewTwitchChatSender("bot", "oauth:token")
	if err != nil {
		t.Fatalf("NewTwitchChatSender() error = %v", err)
	}
	err = s.Send(context.Background(), "chan", Message{Content: "hi"})
	if !errors.Is(err, watch.ErrChannelUnavailable) {
		t.Fatalf("Send() error = %v, want ErrChannelUnavailable", err)
	}
	if _, err := NewTwitchChatSender("", ""); err == nil {
		t.Error("NewTwitchChatSender without credentials should fail")
	}
}
