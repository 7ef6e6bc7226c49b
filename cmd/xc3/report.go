package main

import (
	"context"

	"github.com/xgrid/xc3/internal/response"
	"github.com/xgrid/xc3/pkg/report"
)

type reportCommand struct {
	CostDocumentOptions
	SlackOptions
	ExpensivePrefix string `long:"expensive-service-prefix" description:"The S3 prefix of the per account expensive services." default:"expensive-services" env:"expensive_service_prefix"`
}

func (c *reportCommand) Execute(args []string) error {
	sess := makeSession()
	slack, err := c.makeSlack(sess, ":bar_chart:")
	if err != nil {
		return err
	}
	n := &report.Notifier{Logger: logger, Store: makeStore(sess, c.bucket()), Slack: slack}
	keys := report.Keys{
		MonthlyCost:     c.monthlyCostKey(),
		ProjectSpend:    c.projectSpendKey(),
		ExpensivePrefix: c.ExpensivePrefix,
	}
	handler := func(ctx context.Context) (response.Response, error) {
		return reply("Cost report sent", n.Send(keys))
	}
	return start(handler, func() error {
		return n.Send(keys)
	})
}
