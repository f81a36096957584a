// Package notify delivers board events to chat platforms. Delivery is
// best-effort: the board mutation has already committed by the time a
// notifier runs, so failures are logged and never propagated.
package notify

import (
	"fmt"
	"log"
	"strings"

	"github.com/kanbanx/kanbanx/internal/audit"
	"github.com/kanbanx/kanbanx/internal/config"
)

// Sink delivers one formatted event line to a single platform.
type Sink interface {
	Post(text string) error
	Name() string
}

// Fanout sends each event to every configured sink.
type Fanout struct {
	sinks []Sink
}

// FromConfig builds a Fanout from whichever platforms have tokens
// configured. The returned notifier may have no sinks, which is fine:
// Notify becomes a no-op.
func FromConfig(cfg config.NotifyConfig) (*Fanout, error) {
	f := &Fanout{}
	if cfg.Slack.BotToken != "" {
		s, err := NewSlack(SlackOpts{BotToken: cfg.Slack.BotToken, Channel: cfg.Slack.Channel})
		if err != nil {
			return nil, err
		}
		f.sinks = append(f.sinks, s)
	}
	if cfg.Discord.BotToken != "" {
		d, err := NewDiscord(DiscordOpts{BotToken: cfg.Discord.BotToken, ChannelID: cfg.Discord.ChannelID})
		if err != nil {
			return nil, err
		}
		f.sinks = append(f.sinks, d)
	}
	return f, nil
}

// Enabled reports whether any sink is configured.
func (f *Fanout) Enabled() bool { return len(f.sinks) > 0 }

// Notify implements audit.Notifier. Sink errors are logged per platform
// and the first one is returned so the caller can log it too.
func (f *Fanout) Notify(event audit.Event) error {
	if len(f.sinks) == 0 {
		return nil
	}
	text := Format(event)
	var first error
	for _, s := range f.sinks {
		if err := s.Post(text); err != nil {
			log.Printf("notify: %s delivery failed: %v", s.Name(), err)
			if first == nil {
				first = fmt.Errorf("notify: %s: %w", s.Name(), err)
			}
		}
	}
	return first
}

// Format renders an audit event as a single chat line.
func Format(event audit.Event) string {
	var sb strings.Builder
	switch event.Action {
	case "create":
		sb.WriteString("🆕 Task created")
	case "move":
		sb.WriteString("➡️ Task moved")
	case "assign":
		sb.WriteString("🤖 Task claimed")
	case "release":
		sb.WriteString("↩️ Task released")
	case "comment":
		sb.WriteString("💬 Comment added")
	default:
		sb.WriteString("📋 Task updated")
	}
	if event.TaskTitle != "" {
		fmt.Fprintf(&sb, ": %s", event.TaskTitle)
	} else if event.TaskID != "" {
		fmt.Fprintf(&sb, ": %s", event.TaskID)
	}
	if event.ActorID != "" {
		fmt.Fprintf(&sb, " (%s %s)", strings.ToLower(event.ActorType), event.ActorID)
	}
	if event.Note != "" {
		fmt.Fprintf(&sb, ": %s", event.Note)
	}
	return sb.String()
}
