package notify

import (
	"fmt"

	slackapi "github.com/slack-go/slack"
)

// slackClient abstracts the Slack API methods we use, enabling test mocks.
type slackClient interface {
	PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error)
}

// Slack posts board events to a single Slack channel.
type Slack struct {
	client  slackClient
	channel string
}

// SlackOpts holds parameters for creating a Slack sink.
type SlackOpts struct {
	BotToken string // xoxb-... Slack bot token
	Channel  string // channel name or ID to post to
	// For testing: inject a mock client instead of the real Slack API.
	Client slackClient
}

// NewSlack creates a Slack sink.
func NewSlack(opts SlackOpts) (*Slack, error) {
	if opts.Client == nil && opts.BotToken == "" {
		return nil, fmt.Errorf("notify: slack bot token is required")
	}
	if opts.Channel == "" {
		return nil, fmt.Errorf("notify: slack channel is required")
	}
	client := opts.Client
	if client == nil {
		client = slackapi.New(opts.BotToken)
	}
	return &Slack{client: client, channel: opts.Channel}, nil
}

func (s *Slack) Name() string { return "slack" }

func (s *Slack) Post(text string) error {
	_, _, err := s.client.PostMessage(s.channel, slackapi.MsgOptionText(text, false))
	if err != nil {
		return fmt.Errorf("notify: slack post: %w", err)
	}
	return nil
}
