package notify

import (
	"context"
	"errors"

	"golang.org/x/time/rate"

	"github.com/AdrianGerman/discord-bots/watch"
)

// Sender delivers a rendered message to a channel on one chat platform.
type Sender interface {
	Send(ctx context.Context, channelRef string, msg Message) error
}

// Announcer renders events and sends them to a fixed channel. It implements watch.Notifier.
type Announcer struct {
	Sender     Sender
	ChannelRef string
	RoleID     string
	// Limiter, when set, paces sends to stay under the platform's rate limit.
	Limiter *rate.Limiter
}

// Announce renders ev and sends it once. Every failure is a *watch.DeliveryError.
func (a *Announcer) Announce(ctx context.Context, ev watch.Event) error {
	msg, err := Render(ev, a.RoleID)
	if err != nil {
		return &watch.DeliveryError{Channel: a.ChannelRef, Err: err}
	}
	if a.Sender == nil {
		return &watch.DeliveryError{Channel: a.ChannelRef, Err: errors.New("no sender configured")}
	}
	if a.Limiter != nil {
		if err := a.Limiter.Wait(ctx); err != nil {
			return &watch.DeliveryError{Channel: a.ChannelRef, Err: err}
		}
	}
	if err := a.Sender.Send(ctx, a.ChannelRef, msg); err != nil {
		var de *watch.DeliveryError
		if errors.As(err, &de) {
			return err
		}
		return &watch.DeliveryError{Channel: a.ChannelRef, Err: err}
	}
	return nil
}

// Fanout announces to every notifier, even when earlier ones fail, and joins the errors.
type Fanout []watch.Notifier

// Announce implements watch.Notifier.
func (f Fanout) Announce(ctx context.Context, ev watch.Event) error {
	var errs []error
	for _, n := range f {
		if err := n.Announce(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
