// Package twitchapi contains minimal helpers to interact with the Twitch Helix API
// using an app access token: stream status lookups for the liveness watch and
// user lookups for announcement decoration.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/AdrianGerman/discord-bots/watch"
)

// DefaultBaseURL is the Helix API root.
const DefaultBaseURL = "https://api.twitch.tv/helix"

// HelixClient provides the Helix calls the notifier needs.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	BaseURL        string
	HTTPClient     *http.Client
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) baseURL() string {
	if hc.BaseURL != "" {
		return hc.BaseURL
	}
	return DefaultBaseURL
}

// Stream is a live stream as returned by GET /helix/streams.
type Stream struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	UserLogin    string    `json:"user_login"`
	UserName     string    `json:"user_name"`
	GameName     string    `json:"game_name"`
	Title        string    `json:"title"`
	ViewerCount  int       `json:"viewer_count"`
	StartedAt    time.Time `json:"started_at"`
	ThumbnailURL string    `json:"thumbnail_url"`
}

// User is a Twitch account as returned by GET /helix/users.
type User struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	ProfileImageURL string `json:"profile_image_url"`
}

// GetStreams returns the live streams for login (zero or one entry).
func (hc *HelixClient) GetStreams(ctx context.Context, login string) ([]Stream, error) {
	if login == "" {
		return nil, &watch.FetchError{Err: errors.New("login empty")}
	}
	q := url.Values{}
	q.Set("user_login", login)
	var body struct {
		Data []Stream `json:"data"`
	}
	if err := hc.get(ctx, login, "/streams", q, &body, true); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// GetUser resolves a login name to its user record. A 401 here is reported
// as a FetchError without refreshing the credential; refresh is driven by the
// stream lookup only.
func (hc *HelixClient) GetUser(ctx context.Context, login string) (User, error) {
	if login == "" {
		return User{}, &watch.FetchError{Err: errors.New("login empty")}
	}
	q := url.Values{}
	q.Set("login", login)
	var body struct {
		Data []User `json:"data"`
	}
	if err := hc.get(ctx, login, "/users", q, &body, false); err != nil {
		return User{}, err
	}
	if len(body.Data) == 0 {
		return User{}, &watch.FetchError{Identity: login, Err: errors.New("user not found")}
	}
	return body.Data[0], nil
}

// get performs an authenticated GET and decodes the JSON body into out.
// With refresh set, a 401 triggers exactly one credential refresh and one retry.
func (hc *HelixClient) get(ctx context.Context, identity, path string, q url.Values, out any, refresh bool) error {
	if hc.AppTokenSource == nil {
		return &watch.AuthError{Err: errors.New("helix client has no token source")}
	}
	cred, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return err
	}
	resp, err := hc.do(ctx, path, q, cred)
	if err != nil {
		return &watch.FetchError{Identity: identity, Err: err}
	}
	if resp.StatusCode == http.StatusUnauthorized && refresh {
		drain(resp)
		cred, err = hc.AppTokenSource.InvalidateAndRefresh(ctx, cred)
		if err != nil {
			return err
		}
		resp, err = hc.do(ctx, path, q, cred)
		if err != nil {
			return &watch.FetchError{Identity: identity, Err: err}
		}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &watch.FetchError{Identity: identity, Err: fmt.Errorf("helix %s: %s: %s", path, resp.Status, string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &watch.FetchError{Identity: identity, Err: fmt.Errorf("helix %s: decode: %w", path, err)}
	}
	return nil
}

func (hc *HelixClient) do(ctx context.Context, path string, q url.Values, cred Credential) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hc.baseURL()+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	return hc.http().Do(req)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if err := resp.Body.Close(); err != nil {
		slog.Warn("failed to close response body", slog.Any("err", err))
	}
}
