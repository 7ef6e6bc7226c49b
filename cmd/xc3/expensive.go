package main

import (
	"context"
	"encoding/json"
	"net/http"

	awssession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/pkg/errors"

	"github.com/xgrid/xc3/internal/response"
	"github.com/xgrid/xc3/pkg/expensive"
)

// ExpensiveOptions locate the expensive services documents.
type ExpensiveOptions struct {
	Bucket          string `long:"bucket" description:"The S3 bucket holding cost documents." required:"false" env:"bucket_name"`
	Prefix          string `long:"expensive-service-prefix" description:"The S3 prefix of the per account expensive services." default:"expensive-services" env:"expensive_service_prefix"`
	TopPrefix       string `long:"top5-expensive-service-prefix" description:"The S3 prefix of the top services documents." default:"top5-expensive-services" env:"top5_expensive_service_prefix"`
	RegionNamesPath string `long:"region-names-path" description:"The Parameter Store path of the region names." required:"false" env:"region_names_path"`
	Concurrency     int    `long:"concurrency" description:"The number of regions queried at once." default:"4" env:"CONCURRENCY"`
}

func (o ExpensiveOptions) explorer(sess *awssession.Session) *expensive.Explorer {
	bucket := o.Bucket
	if bucket == "" {
		bucket = metadataBucket()
	}
	return &expensive.Explorer{
		Logger:      logger,
		EC2Client:   ec2.New(sess),
		CostsIn:     costsIn(sess),
		Names:       makeNames(sess, o.RegionNamesPath),
		Pusher:      makePusher(),
		Store:       makeStore(sess, bucket),
		Invoker:     makeInvoker(sess),
		Concurrency: o.Concurrency,
	}
}

type expensiveDispatchCommand struct {
	AccountOptions
	ExpensiveOptions
	DetailFunction string `long:"detail-function" description:"The function reporting an account's expensive services." required:"true" env:"lambda_function_name"`
}

func (c *expensiveDispatchCommand) run(sess *awssession.Session) error {
	details, err := c.directory(sess).Details()
	if err != nil {
		return err
	}
	return c.explorer(sess).Dispatch(details, c.DetailFunction)
}

func (c *expensiveDispatchCommand) Execute(args []string) error {
	sess := makeSession()
	handler := func(ctx context.Context) (response.Response, error) {
		return reply("Expensive services requested", c.run(sess))
	}
	return start(handler, func() error {
		return c.run(sess)
	})
}

type expensiveDetailCommand struct {
	ExpensiveOptions
	AccountID     string `long:"account-id" description:"The account to report." required:"false"`
	AccountDetail string `long:"account-detail-name" description:"The account detail entry, <id>-<name>." required:"false"`
}

func (c *expensiveDetailCommand) Execute(args []string) error {
	e := c.explorer(makeSession())
	handler := func(ctx context.Context, req expensive.AccountRequest) (response.Response, error) {
		return reply(e.RegionTopServices(&req, c.Prefix))
	}
	return start(handler, func() error {
		req := expensive.AccountRequest{AccountID: c.AccountID, AccountDetail: c.AccountDetail}
		return logResult(e.RegionTopServices(&req, c.Prefix))
	})
}

type topServicesCommand struct {
	ExpensiveOptions
	ReportBucket string `long:"report-bucket" description:"The S3 bucket holding cost and usage reports." required:"true" env:"report_bucket_name"`
	ReportPrefix string `long:"report-prefix" description:"The S3 prefix of the cost and usage reports." required:"false" env:"report_prefix"`
}

func (c *topServicesCommand) Execute(args []string) error {
	sess := makeSession()
	e := c.explorer(sess)
	reports := makeStore(sess, c.ReportBucket)
	handler := func(ctx context.Context) (response.Response, error) {
		return reply(e.ReportTopServices(reports, c.ReportPrefix, c.TopPrefix))
	}
	return start(handler, func() error {
		return logResult(e.ReportTopServices(reports, c.ReportPrefix, c.TopPrefix))
	})
}

type resourceBreakdownEvent struct {
	AccountID map[string][]expensive.ResourceRow `json:"account_id"`
}

type resourceBreakdownCommand struct {
	ExpensiveOptions
	Payload string `long:"payload" description:"The breakdown event as JSON." required:"false"`
}

func (c *resourceBreakdownCommand) Execute(args []string) error {
	e := c.explorer(makeSession())
	handler := func(ctx context.Context, event resourceBreakdownEvent) (response.Response, error) {
		if len(event.AccountID) == 0 {
			return response.New(http.StatusAccepted, "No payload found for resource cost breakdown"), nil
		}
		return reply(e.ResourceBreakdown(event.AccountID, c.TopPrefix))
	}
	return start(handler, func() error {
		var event resourceBreakdownEvent
		if c.Payload != "" {
			if err := json.Unmarshal([]byte(c.Payload), &event); err != nil {
				return errors.Wrap(err, "invalid breakdown payload")
			}
		}
		res, err := handler(context.Background(), event)
		return logResult(res, err)
	})
}
