package notify

import (
	"encoding/json"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Topic publishes to an SNS topic.
type Topic struct {
	Logger    *zap.Logger
	SNSClient snsiface.SNSAPI
	TopicARN  string
}

// Publish sends a plain text message.
func (t *Topic) Publish(subject, message string) error {
	input := &sns.PublishInput{
		TopicArn: aws.String(t.TopicARN),
		Message:  aws.String(message),
	}
	if subject != "" {
		input.Subject = aws.String(subject)
	}
	if _, err := t.SNSClient.Publish(input); err != nil {
		return errors.Wrapf(err, "failed to publish to %s", t.TopicARN)
	}
	t.Logger.Info("Published SNS message", zap.String("topic", t.TopicARN))
	return nil
}

// PublishJSON sends v as a structured message whose default body is the
// JSON encoding of v.
func (t *Topic) PublishJSON(v interface{}) error {
	inner, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, "unable to encode message")
	}
	outer, err := json.Marshal(map[string]string{"default": string(inner)})
	if err != nil {
		return errors.Wrap(err, "unable to encode message")
	}
	_, err = t.SNSClient.Publish(&sns.PublishInput{
		TopicArn:         aws.String(t.TopicARN),
		Message:          aws.String(string(outer)),
		MessageStructure: aws.String("json"),
	})
	if err != nil {
		return errors.Wrapf(err, "failed to publish to %s", t.TopicARN)
	}
	t.Logger.Info("Published SNS message", zap.String("topic", t.TopicARN))
	return nil
}
