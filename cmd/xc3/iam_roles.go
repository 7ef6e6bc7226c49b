package main

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"
	awssession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/iam"
	awslambda "github.com/aws/aws-sdk-go/service/lambda"
	"github.com/aws/aws-sdk-go/service/rds"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"

	"github.com/xgrid/xc3/internal/response"
	"github.com/xgrid/xc3/pkg/iamroles"
)

// IAMRoleOptions configure the IAM role functions.
type IAMRoleOptions struct {
	RegionNamesPath string `long:"region-names-path" description:"The Parameter Store path of the region names." required:"false" env:"region_names_path"`
	NextFunction    string `long:"next-function" description:"The function the roles are handed to." required:"false" env:"lambda_function_name"`
}

func (o IAMRoleOptions) mapper(sess *awssession.Session) *iamroles.Mapper {
	return &iamroles.Mapper{
		Logger:         logger,
		IAMClient:      iam.New(sess),
		LambdaClient:   awslambda.New(sess),
		S3Client:       s3.New(sess),
		EC2Client:      ec2.New(sess),
		EC2In:          ec2In(sess),
		RDSClient:      rds.New(sess),
		DynamoDBClient: dynamodb.New(sess),
		Costs:          makeCosts(sess),
		Pusher:         makePusher(),
		Store:          makeStore(sess, metadataBucket()),
		Invoker:        makeInvoker(sess),
		Names:          makeNames(sess, o.RegionNamesPath),
	}
}

type iamRolesCommand struct {
	IAMRoleOptions
}

func (c *iamRolesCommand) Execute(args []string) error {
	m := c.mapper(makeSession())
	handler := func(ctx context.Context) (response.Response, error) {
		return reply(m.CollectRoles(c.NextFunction))
	}
	return start(handler, func() error {
		return logResult(m.CollectRoles(c.NextFunction))
	})
}

type iamRolesMappingCommand struct {
	IAMRoleOptions
}

func (c *iamRolesMappingCommand) Execute(args []string) error {
	m := c.mapper(makeSession())
	handler := func(ctx context.Context, payload iamroles.Payload) (response.Response, error) {
		return reply(m.MapAndForward(payload.IAMRoles, c.NextFunction))
	}
	return start(handler, func() error {
		roles, err := m.ListRoles()
		if err != nil {
			return err
		}
		return logResult(m.MapServices(roles), nil)
	})
}

type iamRolesCostCommand struct {
	IAMRoleOptions
}

func (c *iamRolesCostCommand) Execute(args []string) error {
	m := c.mapper(makeSession())
	handler := func(ctx context.Context, payload iamroles.Payload) (response.Response, error) {
		return reply(m.ServiceCosts(payload.IAMRoles))
	}
	return start(handler, func() error {
		roles, err := m.ListRoles()
		if err != nil {
			return err
		}
		return logResult(m.ServiceCosts(m.MapServices(roles)))
	})
}

type iamRolesAllCommand struct {
	IAMRoleOptions
	Bucket string `long:"bucket" description:"The S3 bucket holding the role inventory." required:"false"`
	Key    string `long:"key" description:"The S3 key of the gzipped role inventory." required:"false"`
}

func (c *iamRolesAllCommand) Execute(args []string) error {
	sess := makeSession()
	m := c.mapper(sess)
	run := func(ctx context.Context, bucket, key string) ([]iamroles.InventoryRole, error) {
		id, err := accountID(ctx, sess)
		if err != nil {
			return nil, err
		}
		m.AccountID = id
		return m.AllRoles(bucket, key, c.NextFunction)
	}
	handler := func(ctx context.Context, event events.S3Event) (response.Response, error) {
		var roles []iamroles.InventoryRole
		for _, o := range s3Objects(event) {
			found, err := run(ctx, o.bucket, o.key)
			if err != nil {
				return reply(nil, err)
			}
			roles = append(roles, found...)
		}
		return response.OK(roles), nil
	}
	return start(handler, func() error {
		return logResult(run(context.Background(), c.Bucket, c.Key))
	})
}

// ReportOptions locate the cost and usage reports.
type ReportOptions struct {
	ReportBucket string `long:"report-bucket" description:"The S3 bucket holding cost and usage reports." required:"true" env:"report_bucket_name"`
	ReportPrefix string `long:"report-prefix" description:"The S3 prefix of the cost and usage reports." required:"false" env:"report_prefix"`
}

type iamRoleLambdaCostCommand struct {
	IAMRoleOptions
	ReportOptions
}

func (c *iamRoleLambdaCostCommand) run(m *iamroles.Mapper, sess *awssession.Session) ([]iamroles.FunctionCost, error) {
	reports := makeStore(sess, c.ReportBucket)
	key, err := reports.Latest(c.ReportPrefix)
	if err != nil {
		return nil, err
	}
	return m.LambdaRoleCost(reports, key)
}

func (c *iamRoleLambdaCostCommand) Execute(args []string) error {
	sess := makeSession()
	m := c.mapper(sess)
	handler := func(ctx context.Context) (response.Response, error) {
		return reply(c.run(m, sess))
	}
	return start(handler, func() error {
		return logResult(c.run(m, sess))
	})
}

type iamRolesServiceMappingCommand struct {
	IAMRoleOptions
	Payload string `long:"payload" description:"The inventory roles as JSON." required:"false"`
}

func (c *iamRolesServiceMappingCommand) Execute(args []string) error {
	m := c.mapper(makeSession())
	handler := func(ctx context.Context, roles []iamroles.InventoryRole) (response.Response, error) {
		return reply(m.MapRoleServicesAndForward(roles, c.NextFunction))
	}
	return start(handler, func() error {
		var roles []iamroles.InventoryRole
		if c.Payload != "" {
			if err := json.Unmarshal([]byte(c.Payload), &roles); err != nil {
				return errors.Wrap(err, "invalid inventory roles payload")
			}
		}
		return logResult(m.MapRoleServices(roles))
	})
}

type iamRolesServiceCommand struct {
	IAMRoleOptions
	ReportOptions
	Payload string `long:"payload" description:"The mapped roles as JSON." required:"false"`
}

func (c *iamRolesServiceCommand) Execute(args []string) error {
	sess := makeSession()
	m := c.mapper(sess)
	reports := makeStore(sess, c.ReportBucket)
	run := func(ctx context.Context, roles []iamroles.RoleServices) ([]iamroles.ServiceCost, error) {
		id, err := accountID(ctx, sess)
		if err != nil {
			return nil, err
		}
		m.AccountID = id
		return m.ServiceData(roles, reports, c.ReportPrefix)
	}
	handler := func(ctx context.Context, roles []iamroles.RoleServices) (response.Response, error) {
		return reply(run(ctx, roles))
	}
	return start(handler, func() error {
		var roles []iamroles.RoleServices
		if c.Payload != "" {
			if err := json.Unmarshal([]byte(c.Payload), &roles); err != nil {
				return errors.Wrap(err, "invalid mapped roles payload")
			}
		}
		return logResult(run(context.Background(), roles))
	})
}
