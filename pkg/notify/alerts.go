package notify

import "go.uber.org/zap"

// Alerts fans a budget alert out to Slack and email. Either channel may
// be nil. A failing channel is logged and does not stop the other.
type Alerts struct {
	Logger *zap.Logger
	Slack  *Slack
	Mail   *Mailer
}

// Send delivers the email subject and body, and the Slack text.
func (a *Alerts) Send(subject, body, slackText string) {
	if a.Mail != nil {
		if err := a.Mail.Send(subject, body); err != nil {
			a.Logger.Error("failed to send alert email", zap.Error(err))
		}
	}
	if a.Slack != nil {
		if err := a.Slack.Send("", slackText); err != nil {
			a.Logger.Error("failed to send alert to slack", zap.Error(err))
		}
	}
}
