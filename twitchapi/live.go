package twitchapi

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/AdrianGerman/discord-bots/watch"
)

// Thumbnail size substituted into the Helix thumbnail template.
const (
	ThumbnailWidth  = "1280"
	ThumbnailHeight = "720"
)

// LiveFetcher observes whether a broadcaster is live. It implements watch.Fetcher.
type LiveFetcher struct {
	Helix *HelixClient

	mu      sync.Mutex
	avatars map[string]string
}

// NewLiveFetcher returns a LiveFetcher backed by helix.
func NewLiveFetcher(helix *HelixClient) *LiveFetcher {
	return &LiveFetcher{Helix: helix, avatars: make(map[string]string)}
}

// Fetch returns Absent when login is offline and the current session otherwise.
func (f *LiveFetcher) Fetch(ctx context.Context, login string) (watch.Observation, error) {
	streams, err := f.Helix.GetStreams(ctx, login)
	if err != nil {
		return watch.Observation{}, err
	}
	if len(streams) == 0 {
		return watch.Absent(), nil
	}
	s := streams[0]
	if s.ID == "" {
		return watch.Observation{}, watch.Fetchf(login, "stream payload missing id")
	}
	thumb, err := ThumbnailURL(s.ThumbnailURL)
	if err != nil {
		return watch.Observation{}, &watch.FetchError{Identity: login, Err: err}
	}
	userLogin := s.UserLogin
	if userLogin == "" {
		userLogin = login
	}
	author := s.UserName
	if author == "" {
		author = userLogin
	}
	return watch.Observation{
		Present:     true,
		ExternalID:  s.ID,
		Title:       s.Title,
		Author:      author,
		AuthorIcon:  f.Avatar(ctx, userLogin),
		Link:        "https://www.twitch.tv/" + userLogin,
		ImageURL:    thumb,
		Game:        s.GameName,
		ViewerCount: s.ViewerCount,
		PublishedAt: s.StartedAt,
	}, nil
}

// Avatar returns the broadcaster's profile image, looked up once per login.
// Lookup failures are logged and yield an empty string.
func (f *LiveFetcher) Avatar(ctx context.Context, login string) string {
	f.mu.Lock()
	if url, ok := f.avatars[login]; ok {
		f.mu.Unlock()
		return url
	}
	f.mu.Unlock()
	u, err := f.Helix.GetUser(ctx, login)
	if err != nil {
		slog.Debug("twitch avatar lookup failed", slog.String("login", login), slog.Any("err", err))
		return ""
	}
	f.mu.Lock()
	if f.avatars == nil {
		f.avatars = make(map[string]string)
	}
	f.avatars[login] = u.ProfileImageURL
	f.mu.Unlock()
	return u.ProfileImageURL
}

// ThumbnailURL fills the {width}/{height} placeholders of a Helix thumbnail
// template. A template without both placeholders is rejected.
func ThumbnailURL(template string) (string, error) {
	if !strings.Contains(template, "{width}") || !strings.Contains(template, "{height}") {
		return "", errors.New("thumbnail template missing {width}/{height} placeholders: " + template)
	}
	r := strings.NewReplacer("{width}", ThumbnailWidth, "{height}", ThumbnailHeight)
	return r.Replace(template), nil
}
