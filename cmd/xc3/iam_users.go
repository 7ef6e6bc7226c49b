package main

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"
	awssession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/iam"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/pkg/errors"

	"github.com/xgrid/xc3/internal/response"
	"github.com/xgrid/xc3/pkg/iamusers"
	"github.com/xgrid/xc3/pkg/notify"
)

// TopicOptions name the SNS topic a function publishes to.
type TopicOptions struct {
	TopicARN string `long:"topic-arn" description:"The SNS topic ARN." required:"false" env:"sns_topic_arn"`
}

func (o TopicOptions) topic(sess *awssession.Session) *notify.Topic {
	return &notify.Topic{Logger: logger, SNSClient: sns.New(sess), TopicARN: o.TopicARN}
}

// IAMUserOptions configure the IAM user functions.
type IAMUserOptions struct {
	TopicOptions
	RegionNamesPath string `long:"region-names-path" description:"The Parameter Store path of the region names." required:"false" env:"region_names_path"`
}

func (o IAMUserOptions) reporter(sess *awssession.Session) *iamusers.Reporter {
	return &iamusers.Reporter{
		Logger:           logger,
		IAMClient:        iam.New(sess),
		TaggingIn:        taggingIn(sess),
		Costs:            makeCosts(sess),
		Pusher:           makePusher(),
		Store:            makeStore(sess, metadataBucket()),
		Topic:            o.topic(sess),
		CloudWatchClient: cloudwatch.New(sess),
		Alerts:           &notify.Alerts{Logger: logger},
		Names:            makeNames(sess, o.RegionNamesPath),
		Region:           runtimeRegion(sess),
	}
}

const noIAMUsers = "IAM Users don't exist"

type listIAMUsersCommand struct {
	IAMUserOptions
}

func (c *listIAMUsersCommand) Execute(args []string) error {
	sess := makeSession()
	r := c.reporter(sess)
	list := func(ctx context.Context, bucket, key string) ([]iamusers.User, error) {
		id, err := accountID(ctx, sess)
		if err != nil {
			return nil, err
		}
		r.AccountID = id
		return r.ListUsers(bucket, key)
	}
	handler := func(ctx context.Context, event events.S3Event) (response.Response, error) {
		var users []iamusers.User
		if len(event.Records) == 0 {
			found, err := list(ctx, "", "")
			if err != nil {
				return reply(nil, err)
			}
			users = found
		}
		for _, o := range s3Objects(event) {
			found, err := list(ctx, o.bucket, o.key)
			if err != nil {
				return reply(nil, err)
			}
			users = append(users, found...)
		}
		if len(users) == 0 {
			return response.OK(noIAMUsers), nil
		}
		return response.OK(users), nil
	}
	return start(handler, func() error {
		return logResult(list(context.Background(), "", ""))
	})
}

type iamUserResourcesCostCommand struct {
	IAMUserOptions
	Users []string `long:"user" description:"An IAM user to cost, repeatable." required:"false"`
}

func usersFromSNS(event events.SNSEvent) ([]iamusers.User, error) {
	var users []iamusers.User
	for _, record := range event.Records {
		var batch []iamusers.User
		if err := json.Unmarshal([]byte(record.SNS.Message), &batch); err != nil {
			return nil, errors.Wrap(err, "invalid user list message")
		}
		users = append(users, batch...)
	}
	return users, nil
}

func namedUsers(names []string) []iamusers.User {
	users := make([]iamusers.User, 0, len(names))
	for _, n := range names {
		users = append(users, iamusers.User{UserName: n})
	}
	return users
}

func (c *iamUserResourcesCostCommand) Execute(args []string) error {
	sess := makeSession()
	r := c.reporter(sess)
	run := func(ctx context.Context, users []iamusers.User) ([]*iamusers.UserResources, error) {
		id, err := accountID(ctx, sess)
		if err != nil {
			return nil, err
		}
		r.AccountID = id
		return r.UserResourcesCost(users)
	}
	handler := func(ctx context.Context, event events.SNSEvent) (response.Response, error) {
		users, err := usersFromSNS(event)
		if err != nil {
			return reply(nil, err)
		}
		return reply(run(ctx, users))
	}
	return start(handler, func() error {
		return logResult(run(context.Background(), namedUsers(c.Users)))
	})
}

type userMappingEvent struct {
	Users   []string `json:"users"`
	Regions []string `json:"regions"`
}

type iamUserMappingCommand struct {
	IAMUserOptions
	Users   []string `long:"user" description:"An IAM user to map, repeatable." required:"false"`
	Regions []string `long:"mapping-region" description:"A region to search, repeatable." required:"false"`
}

func (c *iamUserMappingCommand) Execute(args []string) error {
	r := c.reporter(makeSession())
	handler := func(ctx context.Context, event userMappingEvent) (response.Response, error) {
		return reply(r.MapResources(event.Users, event.Regions))
	}
	return start(handler, func() error {
		return logResult(r.MapResources(c.Users, c.Regions))
	})
}

type iamUserCostCommand struct {
	IAMUserOptions
	AlertOptions
	BudgetAmount string `long:"budget-amount" description:"The per user budget in dollars." required:"true" env:"IAM_BUDGET_AMOUNT"`
}

func (c *iamUserCostCommand) Execute(args []string) error {
	amount, err := parseAmount("iam budget amount", c.BudgetAmount)
	if err != nil {
		return err
	}
	sess := makeSession()
	r := c.reporter(sess)
	r.Alerts = c.alerts(sess, "")
	handler := func(ctx context.Context) (response.Response, error) {
		return reply(r.UserCostAlert(amount))
	}
	return start(handler, func() error {
		return logResult(r.UserCostAlert(amount))
	})
}
