// Package notify renders transition events into chat messages and delivers
// them. Delivery is attempted once; failures surface as *watch.DeliveryError.
package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AdrianGerman/discord-bots/watch"
)

// Embed colours.
const (
	ColorTwitch  = 0x9146FF
	ColorYouTube = 0xFF0000
	ColorOffline = 0x747F8D
)

// Field is a name/value pair shown under the message body.
type Field struct {
	Name   string
	Value  string
	Inline bool
}

// Message is a rendered announcement, independent of the chat platform.
type Message struct {
	// MentionRoleID, when set, prefixes Content with a role mention.
	MentionRoleID string
	Content       string
	Title         string
	Description   string
	URL           string
	ImageURL      string
	AuthorName    string
	AuthorIcon    string
	Color         int
	Fields        []Field
	Footer        string
	Timestamp     time.Time
}

// Text returns Content with the role mention applied.
func (m Message) Text() string {
	if m.MentionRoleID == "" {
		return m.Content
	}
	return "<@&" + m.MentionRoleID + "> " + m.Content
}

// PlainText flattens the message for platforms without embeds. Mentions are dropped.
func (m Message) PlainText() string {
	parts := []string{m.Content}
	if m.Title != "" {
		parts = append(parts, m.Title)
	}
	if m.URL != "" {
		parts = append(parts, m.URL)
	}
	return strings.Join(parts, " | ")
}

// Render builds the announcement for ev. roleID may be empty.
func Render(ev watch.Event, roleID string) (Message, error) {
	obs := ev.Observation
	author := obs.Author
	if author == "" {
		author = ev.Target.Identity
	}
	switch ev.Kind {
	case watch.Started:
		msg := Message{
			MentionRoleID: roleID,
			Content:       author + " is live on Twitch!",
			Title:         orDefault(obs.Title, "Live now"),
			URL:           obs.Link,
			ImageURL:      obs.ImageURL,
			AuthorName:    author,
			AuthorIcon:    obs.AuthorIcon,
			Color:         ColorTwitch,
			Footer:        "Twitch",
			Timestamp:     obs.PublishedAt,
		}
		if obs.Game != "" {
			msg.Description = fmt.Sprintf("%s is streaming **%s**", author, obs.Game)
			msg.Fields = append(msg.Fields, Field{Name: "Game", Value: obs.Game, Inline: true})
		}
		msg.Fields = append(msg.Fields, Field{Name: "Viewers", Value: strconv.Itoa(obs.ViewerCount), Inline: true})
		return msg, nil
	case watch.NewItem:
		return Message{
			MentionRoleID: roleID,
			Content:       author + " uploaded a new video!",
			Title:         orDefault(obs.Title, "New video"),
			URL:           obs.Link,
			ImageURL:      obs.ImageURL,
			AuthorName:    author,
			Color:         ColorYouTube,
			Footer:        "YouTube",
			Timestamp:     obs.PublishedAt,
		}, nil
	case watch.Ended:
		// no mention for the offline notice
		return Message{
			Content: ev.Target.Identity + " has ended the stream.",
			Title:   "Stream offline",
			Color:   ColorOffline,
			Footer:  "Twitch",
		}, nil
	default:
		return Message{}, fmt.Errorf("render: unsupported event kind %v", ev.Kind)
	}
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
