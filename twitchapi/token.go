package twitchapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"

	"github.com/AdrianGerman/discord-bots/telemetry"
	"github.com/AdrianGerman/discord-bots/watch"
)

// DefaultTokenURL is the Twitch client-credentials endpoint.
const DefaultTokenURL = "https://id.twitch.tv/oauth2/token"

// Credential is an app access token as returned by the token endpoint.
type Credential struct {
	AccessToken string
	TokenType   string
	ObtainedAt  time.Time
}

// TokenSource fetches and caches a Twitch app access (client credentials) token.
// The token is kept until Helix rejects it; there is no expiry clock.
// NOTE: This token CANNOT be used for IRC chat; chat requires a user (bot) OAuth token.
type TokenSource struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	HTTPClient   *http.Client

	mu       sync.RWMutex
	cred     Credential
	group    singleflight.Group
	inflight *flight
	flights  uint64
}

// Get returns the cached credential, performing the exchange if there is none.
func (ts *TokenSource) Get(ctx context.Context) (Credential, error) {
	ts.mu.RLock()
	cred := ts.cred
	ts.mu.RUnlock()
	if cred.AccessToken != "" {
		return cred, nil
	}
	return ts.exchangeOnce(ctx)
}

// InvalidateAndRefresh drops rejected and exchanges for a new credential.
// Concurrent callers share one exchange; a caller whose rejected token was
// already replaced gets the replacement without another exchange.
func (ts *TokenSource) InvalidateAndRefresh(ctx context.Context, rejected Credential) (Credential, error) {
	ts.mu.Lock()
	if ts.cred.AccessToken != "" && ts.cred.AccessToken != rejected.AccessToken {
		cred := ts.cred
		ts.mu.Unlock()
		return cred, nil
	}
	ts.cred = Credential{}
	ts.mu.Unlock()
	slog.Info("twitch app token rejected; refreshing")
	return ts.exchangeOnce(ctx)
}

// SetToken seeds the cache with an existing access token.
func (ts *TokenSource) SetToken(accessToken string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.cred = Credential{AccessToken: accessToken, TokenType: "bearer", ObtainedAt: time.Now()}
}

// flight is one shared exchange. Its context is cancelled once every caller
// waiting on it has returned.
type flight struct {
	key     string
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

func (ts *TokenSource) join(ctx context.Context) *flight {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.inflight == nil {
		ts.flights++
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		ts.inflight = &flight{key: "exchange-" + strconv.FormatUint(ts.flights, 10), ctx: fctx, cancel: cancel}
	}
	ts.inflight.waiters++
	return ts.inflight
}

func (ts *TokenSource) leave(f *flight) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	f.waiters--
	if f.waiters == 0 {
		f.cancel()
		if ts.inflight == f {
			ts.inflight = nil
		}
	}
}

func (ts *TokenSource) exchangeOnce(ctx context.Context) (Credential, error) {
	f := ts.join(ctx)
	defer ts.leave(f)
	ch := ts.group.DoChan(f.key, func() (any, error) {
		ts.mu.RLock()
		cached := ts.cred
		ts.mu.RUnlock()
		if cached.AccessToken != "" {
			return cached, nil
		}
		var (
			cred Credential
			err  error
		)
		telemetry.TimeFunc(telemetry.TokenExchangeDuration, func() {
			cred, err = ts.exchange(f.ctx)
		})
		telemetry.RecordTokenExchange(err)
		if err != nil {
			return Credential{}, err
		}
		ts.mu.Lock()
		ts.cred = cred
		ts.mu.Unlock()
		return cred, nil
	})
	select {
	case <-ctx.Done():
		return Credential{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Credential{}, res.Err
		}
		return res.Val.(Credential), nil
	}
}

func (ts *TokenSource) exchange(ctx context.Context) (Credential, error) {
	if ts.ClientID == "" || ts.ClientSecret == "" {
		return Credential{}, &watch.AuthError{Err: errors.New("missing client id/secret for twitch app token")}
	}
	tokenURL := ts.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	cc := &clientcredentials.Config{
		ClientID:     ts.ClientID,
		ClientSecret: ts.ClientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	if ts.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, ts.HTTPClient)
	}
	tok, err := cc.Token(ctx)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.Response != nil {
			slog.Warn("twitch token request failed", slog.String("status", re.Response.Status))
		}
		return Credential{}, &watch.AuthError{Err: err}
	}
	if tok.AccessToken == "" {
		return Credential{}, &watch.AuthError{Err: errors.New("empty access_token in twitch response")}
	}
	return Credential{AccessToken: tok.AccessToken, TokenType: tok.TokenType, ObtainedAt: time.Now()}, nil
}
