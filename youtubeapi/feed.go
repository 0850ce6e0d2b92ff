// Package youtubeapi observes the newest upload of a YouTube channel, either
// through the public Atom feed or through the YouTube Data API when an API
// key is configured.
package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/AdrianGerman/discord-bots/watch"
)

// DefaultFeedURL is the public uploads feed; the channel id goes in ?channel_id=.
const DefaultFeedURL = "https://www.youtube.com/feeds/videos.xml"

// FeedFetcher reads the channel's Atom feed. It implements watch.Fetcher.
type FeedFetcher struct {
	FeedURL    string
	HTTPClient *http.Client
}

func (f *FeedFetcher) http() *http.Client {
	if f.HTTPClient != nil {
		return f.HTTPClient
	}
	return http.DefaultClient
}

// Fetch returns the first feed entry, in feed order, or Absent for an empty feed.
func (f *FeedFetcher) Fetch(ctx context.Context, channelID string) (watch.Observation, error) {
	if channelID == "" {
		return watch.Observation{}, watch.Fetchf(channelID, "channel id empty")
	}
	base := f.FeedURL
	if base == "" {
		base = DefaultFeedURL
	}
	q := url.Values{}
	q.Set("channel_id", channelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+q.Encode(), nil)
	if err != nil {
		return watch.Observation{}, &watch.FetchError{Identity: channelID, Err: err}
	}
	resp, err := f.http().Do(req)
	if err != nil {
		return watch.Observation{}, &watch.FetchError{Identity: channelID, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return watch.Observation{}, watch.Fetchf(channelID, "feed: %s: %s", resp.Status, string(b))
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return watch.Observation{}, watch.Fetchf(channelID, "feed parse: %w", err)
	}
	if len(feed.Items) == 0 {
		return watch.Absent(), nil
	}
	item := feed.Items[0]
	videoID, err := VideoID(item.GUID)
	if err != nil {
		return watch.Observation{}, &watch.FetchError{Identity: channelID, Err: err}
	}

	obs := watch.Observation{
		Present:    true,
		ExternalID: videoID,
		Title:      item.Title,
		Author:     feed.Title,
		Link:       item.Link,
		ImageURL:   ThumbnailURL(videoID),
	}
	if len(item.Authors) > 0 && item.Authors[0].Name != "" {
		obs.Author = item.Authors[0].Name
	}
	if obs.Link == "" {
		obs.Link = WatchURL(videoID)
	}
	if item.PublishedParsed != nil {
		obs.PublishedAt = *item.PublishedParsed
	}
	return obs, nil
}

// VideoID extracts the id from a feed entry id of the form "yt:video:<id>".
func VideoID(entryID string) (string, error) {
	i := strings.LastIndex(entryID, ":")
	if i < 0 {
		return "", fmt.Errorf("feed entry id %q has no provider prefix", entryID)
	}
	id := entryID[i+1:]
	if id == "" {
		return "", errors.New("feed entry id " + entryID + " has an empty video id")
	}
	return id, nil
}

// WatchURL is the public watch page of a video.
func WatchURL(videoID string) string { return "https://www.youtube.com/watch?v=" + videoID }

// ThumbnailURL is the high-quality default thumbnail of a video.
func ThumbnailURL(videoID string) string { return "https://i.ytimg.com/vi/" + videoID + "/hqdefault.jpg" }
