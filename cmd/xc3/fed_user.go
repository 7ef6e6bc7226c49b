package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"
	awssession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/iam"
	awslambda "github.com/aws/aws-sdk-go/service/lambda"
	"github.com/aws/aws-sdk-go/service/resourcegroupstaggingapi"
	"github.com/aws/aws-sdk-go/service/s3"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/internal/response"
	"github.com/xgrid/xc3/pkg/feduser"
)

const untaggedChannel = "#untagged-resources"

// FedUserOptions configure the federated user functions.
type FedUserOptions struct {
	NextFunction string `long:"next-function" description:"The function the results are handed to." required:"false" env:"lambda_function_name"`
}

func (o FedUserOptions) scanner(sess *awssession.Session) *feduser.Scanner {
	return &feduser.Scanner{
		Logger:        logger,
		IAMClient:     iam.New(sess),
		TaggingClient: resourcegroupstaggingapi.New(sess),
		S3Client:      s3.New(sess),
		EC2Client:     ec2.New(sess),
		LambdaClient:  awslambda.New(sess),
		Costs:         makeCosts(sess),
		Pusher:        makePusher(),
		Store:         makeStore(sess, metadataBucket()),
		Invoker:       makeInvoker(sess),
		Region:        runtimeRegion(sess),
	}
}

type fedUserListCommand struct {
	FedUserOptions
}

func (c *fedUserListCommand) Execute(args []string) error {
	s := c.scanner(makeSession())
	handler := func(ctx context.Context) (response.Response, error) {
		return reply(s.ListResources(c.NextFunction))
	}
	return start(handler, func() error {
		return logResult(s.ListResources(c.NextFunction))
	})
}

type untaggedCommand struct {
	FedUserOptions
	Account    string   `long:"account" description:"The account whose non-compliant resources are reported." required:"false" env:"ACC_NUM"`
	AccountIDs []string `long:"federated-account" description:"A federated account to scan, repeatable." required:"false"`
}

func (c *untaggedCommand) Execute(args []string) error {
	sess := makeSession()
	s := c.scanner(sess)
	metadata := makeStore(sess, metadataBucket())
	handler := func(ctx context.Context, req feduser.UntaggedRequest) (response.Response, error) {
		return reply(s.ScanUntagged(&req, metadata, c.Account, c.NextFunction))
	}
	return start(handler, func() error {
		req := feduser.UntaggedRequest{AccountIDs: c.AccountIDs}
		return logResult(s.ScanUntagged(&req, metadata, c.Account, c.NextFunction))
	})
}

type resourceNotificationCommand struct {
	FedUserOptions
	TopicOptions
	SlackOptions
}

func (c *resourceNotificationCommand) Execute(args []string) error {
	sess := makeSession()
	s := c.scanner(sess)
	s.Topic = c.topic(sess)
	if c.SlackChannel == "" {
		c.SlackChannel = untaggedChannel
	}
	slack, err := c.makeSlack(sess, "")
	if err != nil {
		logger.Warn("Slack notifications disabled", zap.Error(err))
	} else {
		s.Slack = slack
	}
	handler := func(ctx context.Context, n feduser.Notification) (response.Response, error) {
		return reply(s.Notify(&n))
	}
	return start(handler, func() error {
		return logResult(s.Notify(&feduser.Notification{}))
	})
}

type fedUserCostCommand struct {
	FedUserOptions
	Bucket string `long:"bucket" description:"The S3 bucket holding the resources document." required:"false"`
	Key    string `long:"key" description:"The S3 key of the resources document." required:"false"`
}

func (c *fedUserCostCommand) Execute(args []string) error {
	s := c.scanner(makeSession())
	handler := func(ctx context.Context, event events.S3Event) (response.Response, error) {
		var costs []feduser.ResourceCost
		for _, o := range s3Objects(event) {
			found, err := s.ResourceCosts(o.bucket, o.key)
			if err != nil {
				return reply(nil, err)
			}
			costs = append(costs, found...)
		}
		return response.OK(costs), nil
	}
	return start(handler, func() error {
		bucket := c.Bucket
		if bucket == "" {
			bucket = metadataBucket()
		}
		key := c.Key
		if key == "" {
			key = feduser.ResourcesKey(time.Now())
		}
		return logResult(s.ResourceCosts(bucket, key))
	})
}
