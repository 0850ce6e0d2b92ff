package twitchapi

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/AdrianGerman/discord-bots/testutil"
	"github.com/AdrianGerman/discord-bots/watch"
)

func TestLiveFetcher_Offline(t *testing.T) {
	m := testutil.NewMockTwitchServer(t)
	m.MockOAuthTokenResponse("tok")
	m.MockStreamsResponse(nil)

	obs, err := NewLiveFetcher(newHelix(m)).Fetch(context.Background(), "chan")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if obs.Present {
		t.Errorf("Fetch() = %+v, want Absent", obs)
	}
}

func TestLiveFetcher_Live(t *testing.T) {
	m := testutil.NewMockTwitchServer(t)
	m.MockOAuthTokenResponse("tok")
	m.MockStreamsResponse([]map[string]interface{}{testutil.LiveStream("40001", "chan", "Speedrun")})
	m.MockUserResponse("1001", "chan", "https://img/chan.png")

	obs, err := NewLiveFetcher(newHelix(m)).Fetch(context.Background(), "chan")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	want := watch.Observation{
		Present:     true,
		ExternalID:  "40001",
		Title:       "Speedrun",
		Author:      "Chan",
		AuthorIcon:  "https://img/chan.png",
		Link:        "https://www.twitch.tv/chan",
		ImageURL:    "https://static-cdn.jtvnw.net/previews-ttv/live_user_chan-1280x720.jpg",
		Game:        "Just Chatting",
		ViewerCount: 42,
		PublishedAt: time.Date(2024, 10, 15, 14, 30, 0, 0, time.UTC),
	}
	if !obs.PublishedAt.Equal(want.PublishedAt) {
		t.Errorf("PublishedAt = %v, want %v", obs.PublishedAt, want.PublishedAt)
	}
	obs.PublishedAt = want.PublishedAt
	if obs != want {
		t.Errorf("Fetch() =\n%+v\nwant\n%+v", obs, want)
	}
}

func TestLiveFetcher_AvatarCachedAndOptional(t *testing.T) {
	m := testutil.NewMockTwitchServer(t)
	m.MockOAuthTokenResponse("tok")
	m.MockStreamsResponse([]map[string]interface{}{testutil.LiveStream("1", "chan", "t")})
	f := NewLiveFetcher(newHelix(m))

	// no /helix/users handler: lookup fails but the observation is still produced
	obs, err := f.Fetch(context.Background(), "chan")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if obs.AuthorIcon != "" {
		t.Errorf("AuthorIcon = %q, want empty on lookup failure", obs.AuthorIcon)
	}

	m.MockUserResponse("1001", "chan", "https://img/a.png")
	for i := 0; i < 3; i++ {
		if _, err := f.Fetch(context.Background(), "chan"); err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
	}
	if got := f.Avatar(context.Background(), "chan"); got != "https://img/a.png" {
		t.Errorf("Avatar() = %q", got)
	}
	// one failed lookup + one successful, then cached
	if got := m.Hits("/helix/users"); got != 2 {
		t.Errorf("/helix/users hits = %d, want 2", got)
	}
}

func TestLiveFetcher_AvatarRejectionCostsNoRefresh(t *testing.T) {
	m := testutil.NewMockTwitchServer(t)
	m.MockOAuthTokenResponse("tok")
	m.MockStreamsResponse([]map[string]interface{}{testutil.LiveStream("1", "chan", "t")})
	m.Handle("/helix/users", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	f := NewLiveFetcher(newHelix(m))

	obs, err := f.Fetch(context.Background(), "chan")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if !obs.Present || obs.AuthorIcon != "" {
		t.Errorf("obs = %+v, want present without icon", obs)
	}
	// only the initial acquisition; the rejected avatar lookup does not refresh
	if got := m.Hits("/oauth2/token"); got != 1 {
		t.Errorf("token exchanges = %d, want 1", got)
	}
	if got := m.Hits("/helix/users"); got != 1 {
		t.Errorf("/helix/users hits = %d, want 1", got)
	}
}

func TestLiveFetcher_MalformedPayloads(t *testing.T) {
	missingID := testutil.LiveStream("", "chan", "t")
	badThumb := testutil.LiveStream("1", "chan", "t")
	badThumb["thumbnail_url"] = "https://static-cdn.jtvnw.net/previews-ttv/live_user_chan.jpg"

	for name, stream := range map[string]map[string]interface{}{
		"missing id":            missingID,
		"thumbnail placeholder": badThumb,
	} {
		t.Run(name, func(t *testing.T) {
			m := testutil.NewMockTwitchServer(t)
			m.MockOAuthTokenResponse("tok")
			m.MockStreamsResponse([]map[string]interface{}{stream})

			_, err := NewLiveFetcher(newHelix(m)).Fetch(context.Background(), "chan")
			var fe *watch.FetchError
			if !errors.As(err, &fe) {
				t.Fatalf("Fetch() error = %v, want *watch.FetchError", err)
			}
		})
	}
}

// One 401 followed by success yields one refresh and one observation, and
// the scheduler announces it exactly once.
func TestLiveFetcher_AuthRetryEndToEnd(t *testing.T) {
	m := testutil.NewMockTwitchServer(t)
	m.MockOAuthTokenResponse("fresh")
	m.MockUserResponse("1001", "chan", "")
	m.Handle("/helix/streams", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"x","user_login":"chan","title":"t","thumbnail_url":"https://t/{width}x{height}.jpg","started_at":"2024-10-15T14:30:00Z"}]}`))
	})
	hc := newHelix(m)
	hc.AppTokenSource.SetToken("expired")
	f := NewLiveFetcher(hc)

	target := watch.Target{Name: "twitch:chan", Identity: "chan", Style: watch.StyleLiveness, Interval: time.Hour}
	announced := make(chan watch.Event, 4)
	s := &watch.Scheduler{Watches: []watch.Watch{{
		Target:  target,
		Fetcher: f,
		Notifier: watch.NotifierFunc(func(ctx context.Context, ev watch.Event) error {
			announced <- ev
			return nil
		}),
	}}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case ev := <-announced:
		if ev.Kind != watch.Started || ev.ExternalID != "x" {
			t.Errorf("event = %+v, want Started x", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no announcement")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(announced) != 0 {
		t.Errorf("extra announcements: %d", len(announced))
	}
	if got := m.Hits("/oauth2/token"); got != 1 {
		t.Errorf("refresh exchanges = %d, want 1", got)
	}
}

func TestThumbnailURL(t *testing.T) {
	got, err := ThumbnailURL("https://x/live_user_a-{width}x{height}.jpg")
	if err != nil {
		t.Fatalf("ThumbnailURL() error = %v", err)
	}
	if got != "https://x/live_user_a-1280x720.jpg" {
		t.Errorf("ThumbnailURL() = %q", got)
	}
	for _, bad := range []string{"", "https://x/a.jpg", "https://x/a-{width}.jpg"} {
		if _, err := ThumbnailURL(bad); err == nil {
			t.Errorf("ThumbnailURL(%q) error = nil", bad)
		}
	}
}
