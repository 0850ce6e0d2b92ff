// Package watch is the change-detection engine: it polls a Fetcher per
// Target on a fixed interval, diffs each Observation against the last known
// state, and hands the resulting transition (if any) to a Notifier.
//
// State lives in memory only. After a restart the first observation of a
// latest-item target re-baselines instead of re-announcing.
package watch

import (
	"context"
	"time"
)

// Style selects how a target's observations are turned into transitions.
type Style int

const (
	// StyleLiveness tracks a live session; going live is always announced,
	// even on the first tick.
	StyleLiveness Style = iota
	// StyleLatestItem tracks the newest entry of a feed; the first
	// observation only seeds the baseline.
	StyleLatestItem
)

func (s Style) String() string {
	switch s {
	case StyleLiveness:
		return "liveness"
	case StyleLatestItem:
		return "latest-item"
	default:
		return "unknown"
	}
}

// Target is one watched external entity. It is immutable for the process lifetime.
type Target struct {
	// Name keys the tracked state and labels logs/metrics (e.g. "twitch:somechannel").
	Name string
	// Identity is what the fetcher queries upstream (user login, channel id).
	Identity string
	Style    Style
	Interval time.Duration
	// AnnounceEnd forwards Ended events to the notifier; otherwise they only update state.
	AnnounceEnd bool
}

// Observation is the result of one successful fetch. The zero value is Absent.
type Observation struct {
	Present bool
	// ExternalID identifies the current live session or the latest item.
	ExternalID  string
	Title       string
	Author      string
	AuthorIcon  string
	Link        string
	ImageURL    string
	Game        string
	ViewerCount int
	PublishedAt time.Time
}

// Absent reports that the entity is not live or the feed has no items.
func Absent() Observation { return Observation{} }

// Kind is the type of transition.
type Kind int

const (
	Started Kind = iota + 1
	Ended
	NewItem
)

func (k Kind) String() string {
	switch k {
	case Started:
		return "started"
	case Ended:
		return "ended"
	case NewItem:
		return "new_item"
	default:
		return "unknown"
	}
}

// Event is a transition worth announcing. It lives for one tick.
type Event struct {
	Kind       Kind
	Target     Target
	ExternalID string
	// Observation carries the rendering payload; empty for Ended.
	Observation Observation
}

// Fetcher returns the current observable state of identity.
// Errors should be *FetchError or *AuthError.
type Fetcher interface {
	Fetch(ctx context.Context, identity string) (Observation, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, identity string) (Observation, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, identity string) (Observation, error) {
	return f(ctx, identity)
}

// Notifier delivers an announcement. It never touches tracked state.
type Notifier interface {
	Announce(ctx context.Context, ev Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event) error

// Announce calls f.
func (f NotifierFunc) Announce(ctx context.Context, ev Event) error { return f(ctx, ev) }
