package youtubeapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/AdrianGerman/discord-bots/watch"
)

// UploadsFetcher reads the newest entry of a channel's uploads playlist via
// the YouTube Data API. It implements watch.Fetcher.
type UploadsFetcher struct {
	svc     *yt.Service
	Timeout time.Duration
}

// NewUploadsFetcher builds the Data API client. apiKey is required; extra
// options (endpoint overrides in tests) are appended.
func NewUploadsFetcher(ctx context.Context, apiKey string, opts ...option.ClientOption) (*UploadsFetcher, error) {
	if apiKey == "" {
		return nil, errors.New("youtube api key empty")
	}
	opts = append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	svc, err := yt.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube service: %w", err)
	}
	return &UploadsFetcher{svc: svc}, nil
}

// UploadsPlaylistID maps a channel id (UC...) to its uploads playlist (UU...).
func UploadsPlaylistID(channelID string) (string, error) {
	if !strings.HasPrefix(channelID, "UC") || len(channelID) <= 2 {
		return "", fmt.Errorf("channel id %q does not look like a UC... channel id", channelID)
	}
	return "UU" + channelID[2:], nil
}

// Fetch returns the newest upload or Absent when the playlist is empty.
func (f *UploadsFetcher) Fetch(ctx context.Context, channelID string) (watch.Observation, error) {
	playlistID, err := UploadsPlaylistID(channelID)
	if err != nil {
		return watch.Observation{}, &watch.FetchError{Identity: channelID, Err: err}
	}
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}
	res, err := f.svc.PlaylistItems.List([]string{"snippet"}).
		PlaylistId(playlistID).
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == 404 {
			return watch.Observation{}, watch.Fetchf(channelID, "uploads playlist %s not found", playlistID)
		}
		return watch.Observation{}, &watch.FetchError{Identity: channelID, Err: err}
	}
	if len(res.Items) == 0 {
		return watch.Absent(), nil
	}
	sn := res.Items[0].Snippet
	if sn == nil || sn.ResourceId == nil || sn.ResourceId.VideoId == "" {
		return watch.Observation{}, watch.Fetchf(channelID, "playlist item missing video id")
	}
	videoID := sn.ResourceId.VideoId
	obs := watch.Observation{
		Present:    true,
		ExternalID: videoID,
		Title:      sn.Title,
		Author:     sn.ChannelTitle,
		Link:       WatchURL(videoID),
		ImageURL:   ThumbnailURL(videoID),
	}
	if sn.Thumbnails != nil && sn.Thumbnails.High != nil && sn.Thumbnails.High.Url != "" {
		obs.ImageURL = sn.Thumbnails.High.Url
	}
	if t, err := time.Parse(time.RFC3339, sn.PublishedAt); err == nil {
		obs.PublishedAt = t
	}
	return obs, nil
}
