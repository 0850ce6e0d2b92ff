package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/AdrianGerman/discord-bots/telemetry"
)

// Watch binds a target to the fetcher that observes it and the notifier that announces it.
type Watch struct {
	Target   Target
	Fetcher  Fetcher
	Notifier Notifier
}

// Scheduler drives fetch → apply → announce for every watch on its own interval.
// Ticks of one watch never overlap; different watches run concurrently.
type Scheduler struct {
	Tracker *Tracker
	Watches []Watch
	// Ready is closed when the delivery surface can accept messages.
	// Nothing is polled before that. A nil channel means ready immediately.
	Ready <-chan struct{}
	// Clock drives tick timing. Nil means the real clock.
	Clock clockwork.Clock
}

// Run blocks until ctx is cancelled. It waits for Ready, then polls every
// watch. In-flight ticks are awaited before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.Tracker == nil {
		s.Tracker = NewTracker()
	}
	if s.Clock == nil {
		s.Clock = clockwork.NewRealClock()
	}
	if len(s.Watches) == 0 {
		return errors.New("no watches configured")
	}
	for _, w := range s.Watches {
		if w.Fetcher == nil || w.Notifier == nil {
			return fmt.Errorf("watch %s: fetcher and notifier are required", w.Target.Name)
		}
		if w.Target.Interval <= 0 {
			return fmt.Errorf("watch %s: interval must be positive", w.Target.Name)
		}
	}

	if s.Ready != nil {
		slog.Info("scheduler: waiting for delivery surface")
		select {
		case <-ctx.Done():
			return nil
		case <-s.Ready:
		}
	}
	telemetry.SetDeliveryReady(true)

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range s.Watches {
		g.Go(func() error {
			s.loop(gctx, w)
			return nil
		})
	}
	return g.Wait()
}

func (s *Scheduler) loop(ctx context.Context, w Watch) {
	var (
		running atomic.Bool
		wg      sync.WaitGroup
	)
	defer wg.Wait()

	log := slog.With(slog.String("target", w.Target.Name))
	trigger := func() {
		if !running.CompareAndSwap(false, true) {
			log.Warn("scheduler: previous tick still running; skipping")
			telemetry.RecordSkip(w.Target.Name)
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer running.Store(false)
			s.tick(ctx, w)
		}()
	}

	ticker := s.Clock.NewTicker(w.Target.Interval)
	defer ticker.Stop()
	log.Info("scheduler: started poller", slog.String("style", w.Target.Style.String()), slog.Duration("interval", w.Target.Interval))
	trigger()
	for {
		select {
		case <-ctx.Done():
			log.Info("scheduler: poller stopped")
			return
		case <-ticker.Chan():
			trigger()
		}
	}
}

// tick runs one fetch → apply → announce cycle. Errors end the tick and are
// retried implicitly by the next one.
func (s *Scheduler) tick(ctx context.Context, w Watch) {
	start := s.Clock.Now()
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	ctx, span := telemetry.StartSpan(ctx, "watch.tick",
		attribute.String("target", w.Target.Name),
		attribute.String("style", w.Target.Style.String()),
	)
	defer span.End()
	log := telemetry.LoggerWithCorr(ctx).With(slog.String("target", w.Target.Name))

	result := "ok"
	defer func() { telemetry.RecordTick(w.Target.Name, result, s.Clock.Since(start)) }()

	obs, err := w.Fetcher.Fetch(ctx, w.Target.Identity)
	if err != nil {
		if ctx.Err() != nil {
			result = "cancelled"
			return
		}
		result = ErrorClass(err)
		telemetry.RecordError(span, err)
		log.Warn("scheduler: fetch failed; skipping tick", slog.String("class", result), slog.Any("err", err))
		return
	}
	// a cancelled tick must not commit state
	if ctx.Err() != nil {
		result = "cancelled"
		return
	}

	ev, ok := s.Tracker.Apply(w.Target, obs)
	if !ok {
		log.Debug("scheduler: no transition", slog.Bool("present", obs.Present), slog.String("id", obs.ExternalID))
		telemetry.SetSpanSuccess(span)
		return
	}
	telemetry.RecordTransition(w.Target.Name, ev.Kind.String())
	span.SetAttributes(attribute.String("transition", ev.Kind.String()), attribute.String("external_id", ev.ExternalID))
	log.Info("scheduler: transition detected", slog.String("kind", ev.Kind.String()), slog.String("id", ev.ExternalID))

	if ev.Kind == Ended && !w.Target.AnnounceEnd {
		telemetry.SetSpanSuccess(span)
		return
	}
	if err := w.Notifier.Announce(ctx, ev); err != nil {
		result = ErrorClass(err)
		if result == "error" {
			result = "delivery_error"
		}
		telemetry.RecordDeliveryFailure(w.Target.Name)
		telemetry.RecordError(span, err)
		log.Error("scheduler: announcement dropped", slog.String("kind", ev.Kind.String()), slog.Any("err", err))
		return
	}
	telemetry.SetSpanSuccess(span)
	log.Info("scheduler: announcement sent", slog.String("kind", ev.Kind.String()), slog.String("id", ev.ExternalID))
}
