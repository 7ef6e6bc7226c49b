package notify

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ses"
	"github.com/aws/aws-sdk-go/service/ses/sesiface"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Mailer sends plain text email through SES. With no recipients the
// message goes back to Source.
type Mailer struct {
	Logger    *zap.Logger
	SESClient sesiface.SESAPI
	Source    string
	To        []string
}

// Send emails subject and body.
func (m *Mailer) Send(subject, body string) error {
	to := m.To
	if len(to) == 0 {
		to = []string{m.Source}
	}
	_, err := m.SESClient.SendEmail(&ses.SendEmailInput{
		Source:      aws.String(m.Source),
		Destination: &ses.Destination{ToAddresses: aws.StringSlice(to)},
		Message: &ses.Message{
			Subject: &ses.Content{Data: aws.String(subject)},
			Body: &ses.Body{
				Text: &ses.Content{Data: aws.String(body)},
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "failed to send email")
	}
	m.Logger.Info("Sent email", zap.String("subject", subject), zap.Strings("to", to))
	return nil
}
