// Command discord-bots watches a Twitch broadcaster and a YouTube channel and
// announces changes to Discord. It:
//   - Loads configuration and initializes structured logging.
//   - Connects the Discord gateway (and optionally Twitch chat) for delivery.
//   - Polls Helix for liveness and the channel feed (or Data API) for uploads,
//     announcing each transition once.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status, and /metrics.
//
// Shutdown is graceful on SIGINT/SIGTERM.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/AdrianGerman/discord-bots/config"
	"github.com/AdrianGerman/discord-bots/notify"
	"github.com/AdrianGerman/discord-bots/server"
	"github.com/AdrianGerman/discord-bots/telemetry"
	"github.com/AdrianGerman/discord-bots/twitchapi"
	"github.com/AdrianGerman/discord-bots/watch"
	"github.com/AdrianGerman/discord-bots/youtubeapi"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load()

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	format := strings.ToLower(os.Getenv("LOG_FORMAT")) // text | json
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	default:
		format = "text"
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))
	slog.Info("logger initialized", slog.String("level", lvl.String()), slog.String("format", format), slog.String("version", version))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("config invalid", slog.Any("err", err))
		os.Exit(1)
	}

	telemetry.Init()

	// Tracing is optional; requires OTEL_EXPORTER_OTLP_ENDPOINT
	shutdownTracing, err := telemetry.InitTracing("discord-bots", version)
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Outbound calls carry client spans when tracing is enabled
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout, Transport: otelhttp.NewTransport(http.DefaultTransport)}

	// Delivery: Discord gateway, plus the optional Twitch chat mirror
	discord, err := notify.NewDiscordSender(cfg.BotToken)
	if err != nil {
		slog.Error("discord setup failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := discord.Open(); err != nil {
		slog.Error("discord connect failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := discord.Close(); err != nil {
			slog.Error("failed to close discord session", slog.Any("err", err))
		}
	}()
	// Discord allows 5 messages per 5s per channel
	discordLimiter := rate.NewLimiter(rate.Every(time.Second), 5)

	var chat *notify.TwitchChatSender
	if cfg.ChatMirrorEnabled() {
		chat, err = notify.NewTwitchChatSender(cfg.TwitchBotUsername, cfg.TwitchOAuthToken)
		if err != nil {
			slog.Error("twitch chat setup failed", slog.Any("err", err))
			os.Exit(1)
		}
		chat.Join(cfg.TwitchAnnounceChannel)
		go func() {
			if err := chat.Run(ctx); err != nil {
				slog.Error("twitch chat exited with error", slog.Any("err", err))
			}
		}()
	} else {
		slog.Info("twitch chat mirror disabled (missing TWITCH_BOT_USERNAME, TWITCH_OAUTH_TOKEN or TWITCH_ANNOUNCE_CHANNEL)")
	}
	// 20 messages per 30s for non-moderator bots
	chatLimiter := rate.NewLimiter(rate.Every(1500*time.Millisecond), 1)

	notifierFor := func(channelID, roleID string) watch.Notifier {
		n := &notify.Announcer{Sender: discord, ChannelRef: channelID, RoleID: roleID, Limiter: discordLimiter}
		if chat == nil {
			return n
		}
		return notify.Fanout{n, &notify.Announcer{Sender: chat, ChannelRef: cfg.TwitchAnnounceChannel, Limiter: chatLimiter}}
	}

	var watches []watch.Watch

	if cfg.TwitchEnabled() {
		ts := &twitchapi.TokenSource{ClientID: cfg.TwitchClientID, ClientSecret: cfg.TwitchClientSecret, HTTPClient: httpClient}
		// Best-effort warm-up; a failure here is retried on the first tick
		wctx, cancel := context.WithTimeout(ctx, 8*time.Second)
		if cred, err := ts.Get(wctx); err != nil {
			slog.Warn("twitch app token fetch failed", slog.Any("err", err))
		} else if tok := cred.AccessToken; len(tok) > 6 {
			slog.Info("twitch app token acquired", slog.String("tail", "***"+tok[len(tok)-6:]))
		}
		cancel()

		helix := &twitchapi.HelixClient{AppTokenSource: ts, ClientID: cfg.TwitchClientID, HTTPClient: httpClient}
		watches = append(watches, watch.Watch{
			Target: watch.Target{
				Name:        "twitch:" + cfg.TwitchUserLogin,
				Identity:    cfg.TwitchUserLogin,
				Style:       watch.StyleLiveness,
				Interval:    cfg.CheckInterval,
				AnnounceEnd: cfg.AnnounceStreamEnd,
			},
			Fetcher:  twitchapi.NewLiveFetcher(helix),
			Notifier: notifierFor(cfg.AnnounceChannelID, cfg.AnnounceRoleID),
		})
	}

	if cfg.YouTubeEnabled() {
		var fetcher watch.Fetcher = &youtubeapi.FeedFetcher{HTTPClient: httpClient}
		if cfg.YTAPIKey != "" {
			uploads, err := youtubeapi.NewUploadsFetcher(ctx, cfg.YTAPIKey)
			if err != nil {
				slog.Error("youtube data api setup failed", slog.Any("err", err))
				os.Exit(1)
			}
			uploads.Timeout = cfg.HTTPTimeout
			fetcher = uploads
			slog.Info("youtube: using data api uploads playlist")
		}
		watches = append(watches, watch.Watch{
			Target: watch.Target{
				Name:     "youtube:" + cfg.YTChannelID,
				Identity: cfg.YTChannelID,
				Style:    watch.StyleLatestItem,
				Interval: cfg.YTCheckInterval,
			},
			Fetcher:  fetcher,
			Notifier: notifierFor(cfg.YTAnnounceChannelID, cfg.YTAnnounceRoleID),
		})
	}

	tracker := watch.NewTracker()
	targets := make([]watch.Target, 0, len(watches))
	for _, w := range watches {
		targets = append(targets, w.Target)
	}

	// HTTP server (health/ready/status/metrics)
	go func() {
		h := &server.Handlers{Tracker: tracker, Targets: targets, Ready: discord.Ready()}
		if err := server.Start(ctx, cfg.HTTPAddr, server.NewMux(h)); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	slog.Info("starting watches", slog.Int("count", len(watches)))
	sched := &watch.Scheduler{Tracker: tracker, Watches: watches, Ready: discord.Ready()}
	if err := sched.Run(ctx); err != nil {
		slog.Error("scheduler exited with error", slog.Any("err", err))
		os.Exit(1)
	}
	slog.Info("shutting down")
}
