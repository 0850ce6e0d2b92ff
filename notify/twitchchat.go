package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/AdrianGerman/discord-bots/watch"
)

// TwitchChatSender mirrors announcements into Twitch chat as plain text.
// The IRC client requires a bot username and a user OAuth token with
// chat:read/chat:edit scopes; the Helix app token cannot be used here.
type TwitchChatSender struct {
	client *twitch.Client

	connected atomic.Bool
	ready     chan struct{}
	readyOnce sync.Once
}

// NewTwitchChatSender creates an IRC client. Call Join and then Run to connect.
func NewTwitchChatSender(username, oauthToken string) (*TwitchChatSender, error) {
	if username == "" || oauthToken == "" {
		return nil, errors.New("twitch chat: username and oauth token required")
	}
	s := &TwitchChatSender{
		client: twitch.NewClient(username, oauthToken),
		ready:  make(chan struct{}),
	}
	s.client.OnConnect(func() {
		s.connected.Store(true)
		slog.Info("twitch chat: connected", slog.String("user", username))
		s.readyOnce.Do(func() { close(s.ready) })
	})
	return s, nil
}

// Join registers channels to join on connect.
func (s *TwitchChatSender) Join(channels ...string) {
	s.client.Join(channels...)
}

// Ready is closed on the first successful IRC connect.
func (s *TwitchChatSender) Ready() <-chan struct{} {
	return s.ready
}

// Run connects and blocks until ctx is cancelled or the connection fails for good.
func (s *TwitchChatSender) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.client.Disconnect()
		case <-done:
		}
	}()
	err := s.client.Connect()
	s.connected.Store(false)
	if errors.Is(err, twitch.ErrClientDisconnected) {
		return nil
	}
	return err
}

// Send says msg in channel. It fails fast while the client is not connected.
func (s *TwitchChatSender) Send(_ context.Context, channel string, msg Message) error {
	if channel == "" || !s.connected.Load() {
		return &watch.DeliveryError{Channel: channel, Err: watch.ErrChannelUnavailable}
	}
	s.client.Say(channel, msg.PlainText())
	return nil
}
