package main

import (
	"context"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-lambda-go/lambdacontext"
	awssession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/costexplorer"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	awslambda "github.com/aws/aws-sdk-go/service/lambda"
	"github.com/aws/aws-sdk-go/service/resourcegroupstaggingapi"
	"github.com/aws/aws-sdk-go/service/resourcegroupstaggingapi/resourcegroupstaggingapiiface"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/ses"
	awsssm "github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/sts"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/internal/aws/session"
	"github.com/xgrid/xc3/internal/aws/ssm"
	"github.com/xgrid/xc3/pkg/costquery"
	"github.com/xgrid/xc3/pkg/invoke"
	"github.com/xgrid/xc3/pkg/metrics"
	"github.com/xgrid/xc3/pkg/notify"
	"github.com/xgrid/xc3/pkg/regions"
	"github.com/xgrid/xc3/pkg/resourcearn"
	"github.com/xgrid/xc3/pkg/store"
)

// SlackOptions configure the Slack webhook a function posts to.
type SlackOptions struct {
	SlackWebhookURL    string `long:"slack-webhook-url" description:"The Slack Webhook Url." required:"false" env:"SLACK_WEBHOOK_URL"`
	SSMSlackWebhookURL string `long:"ssm-slack-webhook-url" description:"The name of the Slack Webhook Url in Parameter store." required:"false" env:"SSM_SLACK_WEBHOOK_URL"`
	SlackChannel       string `long:"slack-channel" description:"The Slack channel." required:"false" env:"SLACK_CHANNEL"`
}

// MailOptions configure the SES sender.
type MailOptions struct {
	SESEmailAddress string `long:"ses-email-address" description:"The verified SES address alerts are sent from and to." required:"false" env:"SES_EMAIL_ADDRESS"`
}

func makeSession() *awssession.Session {
	return session.MustMakeSession(options.Region, options.Profile)
}

func makePusher() *metrics.Pusher {
	return &metrics.Pusher{URL: options.Pushgateway, Logger: logger}
}

func makeCosts(sess *awssession.Session) *costquery.Client {
	return &costquery.Client{Logger: logger, CostExplorer: costexplorer.New(sess)}
}

func costsIn(sess *awssession.Session) func(string) *costquery.Client {
	return func(region string) *costquery.Client {
		return makeCosts(session.InRegion(sess, region))
	}
}

func taggingIn(sess *awssession.Session) func(string) resourcegroupstaggingapiiface.ResourceGroupsTaggingAPIAPI {
	return func(region string) resourcegroupstaggingapiiface.ResourceGroupsTaggingAPIAPI {
		return resourcegroupstaggingapi.New(session.InRegion(sess, region))
	}
}

func ec2In(sess *awssession.Session) func(string) ec2iface.EC2API {
	return func(region string) ec2iface.EC2API {
		return ec2.New(session.InRegion(sess, region))
	}
}

func makeInvoker(sess *awssession.Session) *invoke.Invoker {
	return &invoke.Invoker{Logger: logger, LambdaClient: awslambda.New(sess)}
}

func makeStore(sess *awssession.Session, bucket string) *store.Store {
	return &store.Store{Logger: logger, S3: s3.New(sess), Bucket: bucket}
}

// metadataBucket is where functions share their JSON documents.
func metadataBucket() string {
	return options.Namespace + "-metadata-storage"
}

// makeNames loads region display names from path, keeping the built in
// names when the parameter is missing.
func makeNames(sess *awssession.Session, path string) regions.Names {
	if path == "" {
		return regions.Default()
	}
	names, err := regions.Load(awsssm.New(sess), path)
	if err != nil {
		logger.Warn("Unable to load region names, using defaults", zap.String("parameter", path), zap.Error(err))
		return regions.Default()
	}
	return names
}

func (o SlackOptions) makeSlack(sess *awssession.Session, iconEmoji string) (*notify.Slack, error) {
	webhookURL := o.SlackWebhookURL
	if webhookURL == "" && o.SSMSlackWebhookURL != "" {
		value, err := ssm.DecryptValue(awsssm.New(sess), o.SSMSlackWebhookURL)
		if err != nil {
			return nil, err
		}
		webhookURL = value
	}
	return notify.NewSlack(logger, webhookURL, o.SlackChannel, iconEmoji)
}

func (o MailOptions) makeMailer(sess *awssession.Session) *notify.Mailer {
	return &notify.Mailer{Logger: logger, SESClient: ses.New(sess), Source: o.SESEmailAddress}
}

// accountID is the account of the invoked function, or of the caller's
// credentials outside Lambda.
func accountID(ctx context.Context, sess *awssession.Session) (string, error) {
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.InvokedFunctionArn != "" {
		return resourcearn.Account(lc.InvokedFunctionArn), nil
	}
	return session.AccountID(sts.New(sess))
}

// runtimeRegion is the region the function executes in.
func runtimeRegion(sess *awssession.Session) string {
	if r := os.Getenv("AWS_REGION"); r != "" {
		return r
	}
	return session.Region(sess)
}

// start hands handler to the Lambda runtime when running as a function,
// otherwise it runs once.
func start(handler interface{}, once func() error) error {
	if options.Lambda {
		logger.Info("Running Lambda handler.")
		lambda.Start(handler)
		return nil
	}
	return once()
}
