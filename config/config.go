// Package config loads environment variables and provides a typed Config used across the service.
// Optional sections (YouTube watch, Twitch chat mirror) are disabled when their variables are empty.
// Call Validate after Load before wiring anything.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Discord
	BotToken          string
	AnnounceChannelID string
	AnnounceRoleID    string

	// Twitch liveness watch
	TwitchClientID     string
	TwitchClientSecret string
	TwitchUserLogin    string
	CheckInterval      time.Duration
	AnnounceStreamEnd  bool

	// YouTube upload watch
	YTChannelID         string
	YTAnnounceChannelID string
	YTAnnounceRoleID    string
	YTCheckInterval     time.Duration
	YTAPIKey            string

	// Twitch chat mirror
	TwitchBotUsername     string
	TwitchOAuthToken      string
	TwitchAnnounceChannel string

	// HTTP
	HTTPAddr    string
	HTTPTimeout time.Duration
}

// Load reads environment variables and applies defaults. Malformed numbers and
// durations are errors; missing values are left for Validate.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.BotToken = os.Getenv("BOT_TOKEN")
	cfg.AnnounceChannelID = os.Getenv("ANNOUNCE_CHANNEL_ID")
	cfg.AnnounceRoleID = os.Getenv("ANNOUNCE_ROLE_ID")

	cfg.TwitchClientID = os.Getenv("TWITCH_CLIENT_ID")
	cfg.TwitchClientSecret = os.Getenv("TWITCH_CLIENT_SECRET")
	cfg.TwitchUserLogin = strings.ToLower(strings.TrimSpace(os.Getenv("TWITCH_USER_LOGIN")))

	secs, err := intEnv("CHECK_INTERVAL_SECONDS", 60)
	if err != nil {
		return nil, err
	}
	cfg.CheckInterval = time.Duration(secs) * time.Second

	if v := os.Getenv("ANNOUNCE_STREAM_END"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid ANNOUNCE_STREAM_END: %w", err)
		}
		cfg.AnnounceStreamEnd = b
	}

	cfg.YTChannelID = strings.TrimSpace(os.Getenv("YT_CHANNEL_ID"))
	cfg.YTAnnounceChannelID = os.Getenv("YT_ANNOUNCE_CHANNEL_ID")
	if cfg.YTAnnounceChannelID == "" {
		cfg.YTAnnounceChannelID = cfg.AnnounceChannelID
	}
	cfg.YTAnnounceRoleID = os.Getenv("YT_ANNOUNCE_ROLE_ID")
	mins, err := intEnv("CHECK_INTERVAL_MINUTES", 15)
	if err != nil {
		return nil, err
	}
	cfg.YTCheckInterval = time.Duration(mins) * time.Minute
	cfg.YTAPIKey = os.Getenv("YT_API_KEY")

	cfg.TwitchBotUsername = os.Getenv("TWITCH_BOT_USERNAME")
	cfg.TwitchOAuthToken = os.Getenv("TWITCH_OAUTH_TOKEN")
	cfg.TwitchAnnounceChannel = strings.ToLower(os.Getenv("TWITCH_ANNOUNCE_CHANNEL"))

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8080"
	}
	cfg.HTTPTimeout = 10 * time.Second
	if v := os.Getenv("HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
		}
		cfg.HTTPTimeout = d
	}

	return cfg, nil
}

// Validate checks that the configuration describes at least one runnable watch.
func (c *Config) Validate() error {
	var errs []error
	if c.BotToken == "" {
		errs = append(errs, errors.New("missing BOT_TOKEN"))
	}
	if !c.TwitchEnabled() && !c.YouTubeEnabled() {
		errs = append(errs, errors.New("nothing to watch: set TWITCH_USER_LOGIN and/or YT_CHANNEL_ID"))
	}
	if c.TwitchEnabled() {
		if c.AnnounceChannelID == "" {
			errs = append(errs, errors.New("missing ANNOUNCE_CHANNEL_ID"))
		}
		if c.TwitchClientID == "" || c.TwitchClientSecret == "" {
			errs = append(errs, errors.New("missing twitch env: require TWITCH_CLIENT_ID, TWITCH_CLIENT_SECRET"))
		}
		if c.CheckInterval <= 0 {
			errs = append(errs, errors.New("CHECK_INTERVAL_SECONDS must be positive"))
		}
	}
	if c.YouTubeEnabled() {
		if c.YTAnnounceChannelID == "" {
			errs = append(errs, errors.New("missing YT_ANNOUNCE_CHANNEL_ID (or ANNOUNCE_CHANNEL_ID)"))
		}
		if c.YTCheckInterval <= 0 {
			errs = append(errs, errors.New("CHECK_INTERVAL_MINUTES must be positive"))
		}
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("HTTP_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

// TwitchEnabled reports whether a liveness watch is configured.
func (c *Config) TwitchEnabled() bool { return c.TwitchUserLogin != "" }

// YouTubeEnabled reports whether an upload watch is configured.
func (c *Config) YouTubeEnabled() bool { return c.YTChannelID != "" }

// ChatMirrorEnabled reports whether announcements are mirrored into Twitch chat.
func (c *Config) ChatMirrorEnabled() bool {
	return c.TwitchBotUsername != "" && c.TwitchOAuthToken != "" && c.TwitchAnnounceChannel != ""
}

func intEnv(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
