// Package notify sends XC3 alerts and reports to Slack, email and SNS.
package notify

import (
	"github.com/lytics/slackhook"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Sender posts a message to a Slack webhook.
type Sender interface {
	Send(*slackhook.Message) error
}

// Slack posts plain text messages to a channel. Username overrides the
// webhook's configured name when set.
type Slack struct {
	Logger    *zap.Logger
	Channel   string
	Username  string
	IconEmoji string
	Client    Sender
}

// NewSlack returns a Slack notifier for webhookURL.
func NewSlack(logger *zap.Logger, webhookURL, channel, iconEmoji string) (*Slack, error) {
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is not configured")
	}
	return &Slack{
		Logger:    logger,
		Channel:   channel,
		IconEmoji: iconEmoji,
		Client:    slackhook.New(webhookURL),
	}, nil
}

// Send posts text, preceded by a bold title line when title is set.
func (s *Slack) Send(title, text string) error {
	if title != "" {
		text = "*" + title + "*\n" + text
	}
	message := &slackhook.Message{
		Text:      text,
		Channel:   s.Channel,
		UserName:  s.Username,
		IconEmoji: s.IconEmoji,
	}
	if err := s.Client.Send(message); err != nil {
		return errors.Wrap(err, "failed to send slack message")
	}
	s.Logger.Info("successfully sent slack message", zap.String("slack-channel", s.Channel))
	return nil
}

// SendCode posts text as a preformatted block, used for tables.
func (s *Slack) SendCode(title, text string) error {
	return s.Send(title, "```\n"+text+"\n```")
}
