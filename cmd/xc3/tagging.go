package main

import (
	"context"

	awssession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"

	"github.com/xgrid/xc3/internal/response"
	"github.com/xgrid/xc3/pkg/tagging"
)

// TaggingOptions configure the tagging compliance functions.
type TaggingOptions struct {
	RegionNamesPath string `long:"region-names-path" description:"The Parameter Store path of the region names." required:"false" env:"region_names_path"`
	TaggingList     string `long:"tagging-list" description:"The required tag keys, as a list or comma separated." default:"Owner,Creator,Project" env:"tagging_list"`
	NextFunction    string `long:"next-function" description:"The function the resources are handed to." required:"false" env:"lambda_function_name"`
	Concurrency     int    `long:"concurrency" description:"The number of regions scanned at once." default:"4" env:"CONCURRENCY"`
}

func (o TaggingOptions) checker(sess *awssession.Session) *tagging.Checker {
	return &tagging.Checker{
		Logger:       logger,
		EC2Client:    ec2.New(sess),
		TaggingIn:    taggingIn(sess),
		Names:        makeNames(sess, o.RegionNamesPath),
		Invoker:      makeInvoker(sess),
		Pusher:       makePusher(),
		RequiredTags: tagging.ParseTagList(o.TaggingList),
		Concurrency:  o.Concurrency,
	}
}

type resourceListCommand struct {
	TaggingOptions
}

func (c *resourceListCommand) Execute(args []string) error {
	ch := c.checker(makeSession())
	handler := func(ctx context.Context) (response.Response, error) {
		return reply(ch.Collect(c.NextFunction))
	}
	return start(handler, func() error {
		return logResult(ch.Collect(""))
	})
}

type resourceParsingCommand struct {
	TaggingOptions
}

func (c *resourceParsingCommand) Execute(args []string) error {
	sess := makeSession()
	ch := c.checker(sess)
	handler := func(ctx context.Context, items []tagging.RegionResources) (response.Response, error) {
		id, err := accountID(ctx, sess)
		if err != nil {
			return reply(nil, err)
		}
		ch.AccountID = id
		return reply(ch.Parse(items))
	}
	return start(handler, func() error {
		items, err := ch.Collect("")
		if err != nil {
			return err
		}
		id, err := accountID(context.Background(), sess)
		if err != nil {
			return err
		}
		ch.AccountID = id
		return logResult(ch.Parse(items))
	})
}
