package main

import (
	"context"
	"strings"

	awssession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/internal/response"
	"github.com/xgrid/xc3/pkg/budget"
	"github.com/xgrid/xc3/pkg/notify"
)

// CostDocumentOptions locate the cost documents shared with the report
// notifier.
type CostDocumentOptions struct {
	Bucket             string `long:"bucket" description:"The S3 bucket holding cost documents." required:"false" env:"bucket_name"`
	MonthlyCostPrefix  string `long:"monthly-cost-prefix" description:"The S3 prefix of the monthly account cost document." default:"monthly-cost" env:"monthly_cost_prefix"`
	ProjectSpendPrefix string `long:"project-spend-prefix" description:"The S3 prefix of the project spend document." default:"project-spend" env:"project_spend_prefix"`
}

func (o CostDocumentOptions) bucket() string {
	if o.Bucket != "" {
		return o.Bucket
	}
	return metadataBucket()
}

func (o CostDocumentOptions) monthlyCostKey() string {
	return strings.TrimSuffix(o.MonthlyCostPrefix, "/") + "/monthly_cost.json"
}

func (o CostDocumentOptions) projectSpendKey() string {
	return strings.TrimSuffix(o.ProjectSpendPrefix, "/") + "/project_spend.json"
}

func makeBudget(sess *awssession.Session, bucket string) *budget.Budget {
	return &budget.Budget{
		Logger:           logger,
		Costs:            makeCosts(sess),
		Pusher:           makePusher(),
		Store:            makeStore(sess, bucket),
		Invoker:          makeInvoker(sess),
		CloudWatchClient: cloudwatch.New(sess),
	}
}

func parseAmount(name, value string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "invalid %s %q", name, value)
	}
	return amount, nil
}

type totalAccountCostCommand struct {
	AccountOptions
	CostDocumentOptions
}

func (c *totalAccountCostCommand) run(sess *awssession.Session) (budget.MonthlyCosts, error) {
	details, err := c.directory(sess).Details()
	if err != nil {
		return nil, err
	}
	return makeBudget(sess, c.bucket()).TotalAccountCost(details, c.monthlyCostKey())
}

func (c *totalAccountCostCommand) Execute(args []string) error {
	sess := makeSession()
	handler := func(ctx context.Context) (response.Response, error) {
		return reply(c.run(sess))
	}
	return start(handler, func() error {
		return logResult(c.run(sess))
	})
}

type projectSpendCommand struct {
	CostDocumentOptions
	BreakdownFunction string `long:"breakdown-function" description:"The function reporting each project's resources." required:"false" env:"lambda_function_name"`
}

func (c *projectSpendCommand) Execute(args []string) error {
	sess := makeSession()
	b := makeBudget(sess, c.bucket())
	handler := func(ctx context.Context) (response.Response, error) {
		return reply(b.ProjectSpend(c.projectSpendKey(), c.BreakdownFunction))
	}
	return start(handler, func() error {
		return logResult(b.ProjectSpend(c.projectSpendKey(), c.BreakdownFunction))
	})
}

type projectSpendBreakdownCommand struct {
	Project   string `long:"project" description:"The project to break down." required:"false"`
	StartDate string `long:"start-date" description:"The first day, YYYY-MM-DD." required:"false"`
	EndDate   string `long:"end-date" description:"The day after the last, YYYY-MM-DD." required:"false"`
}

func (c *projectSpendBreakdownCommand) Execute(args []string) error {
	b := makeBudget(makeSession(), metadataBucket())
	handler := func(ctx context.Context, req budget.BreakdownRequest) (response.Response, error) {
		return reply(b.ProjectSpendBreakdown(&req))
	}
	return start(handler, func() error {
		req := budget.BreakdownRequest{ProjectName: c.Project, StartDate: c.StartDate, EndDate: c.EndDate}
		return logResult(b.ProjectSpendBreakdown(&req))
	})
}

type projectEvent struct {
	ProjectName string `json:"project_name"`
}

type projectServicesCommand struct {
	Project string `long:"project" description:"The project to break down." default:"Others"`
}

func (c *projectServicesCommand) Execute(args []string) error {
	b := makeBudget(makeSession(), metadataBucket())
	handler := func(ctx context.Context, event projectEvent) (response.Response, error) {
		if event.ProjectName == "" {
			event.ProjectName = budget.Others
		}
		return reply(b.ProjectServices(event.ProjectName))
	}
	return start(handler, func() error {
		return logResult(b.ProjectServices(c.Project))
	})
}

type servicesCostEvent struct {
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	Services  []string `json:"services"`
}

type servicesCostCommand struct {
	StartDate string   `long:"start-date" description:"The first day, YYYY-MM-DD." required:"false"`
	EndDate   string   `long:"end-date" description:"The day after the last, YYYY-MM-DD." required:"false"`
	Services  []string `long:"service" description:"A service to report, repeatable. All services when omitted." required:"false"`
}

func (c *servicesCostCommand) Execute(args []string) error {
	b := makeBudget(makeSession(), metadataBucket())
	handler := func(ctx context.Context, event servicesCostEvent) (response.Response, error) {
		return reply(b.ServiceCosts(event.StartDate, event.EndDate, event.Services))
	}
	return start(handler, func() error {
		return logResult(b.ServiceCosts(c.StartDate, c.EndDate, c.Services))
	})
}

// AlertOptions configure budget alerts.
type AlertOptions struct {
	SlackOptions
	MailOptions
}

// costCalculator is the Slack username of the service budget alerts.
const costCalculator = "Cost Calculator"

// alerts builds the alert channels. An empty username keeps the
// webhook's configured name.
func (o AlertOptions) alerts(sess *awssession.Session, username string) *notify.Alerts {
	alerts := &notify.Alerts{Logger: logger}
	if o.SESEmailAddress != "" {
		alerts.Mail = o.makeMailer(sess)
	}
	slack, err := o.makeSlack(sess, ":moneybag:")
	if err != nil {
		logger.Warn("Slack alerts disabled", zap.Error(err))
	} else {
		slack.Username = username
		alerts.Slack = slack
	}
	return alerts
}

type accountAlertCommand struct {
	AlertOptions
	BudgetAmount string `long:"budget-amount" description:"The monthly account budget in dollars." required:"true" env:"BUDGET_AMOUNT"`
}

func (c *accountAlertCommand) Execute(args []string) error {
	amount, err := parseAmount("budget amount", c.BudgetAmount)
	if err != nil {
		return err
	}
	sess := makeSession()
	b := makeBudget(sess, metadataBucket())
	b.Alerts = c.alerts(sess, "")
	handler := func(ctx context.Context) (response.Response, error) {
		return reply(b.AccountAlert(amount))
	}
	return start(handler, func() error {
		return logResult(b.AccountAlert(amount))
	})
}

type serviceBudgetCommand struct {
	AlertOptions
	Bucket       string `long:"bucket" description:"The S3 bucket holding the service costs." required:"false" env:"bucket_name"`
	BudgetAmount string `long:"budget-amount" description:"The per region services budget in dollars." required:"true" env:"SERVICES_BUDGET_AMOUNT"`
}

func (c *serviceBudgetCommand) Execute(args []string) error {
	amount, err := parseAmount("services budget amount", c.BudgetAmount)
	if err != nil {
		return err
	}
	bucket := c.Bucket
	if bucket == "" {
		bucket = metadataBucket()
	}
	sess := makeSession()
	b := makeBudget(sess, bucket)
	b.Alerts = c.alerts(sess, costCalculator)
	handler := func(ctx context.Context) (response.Response, error) {
		return reply(b.ServiceBudget(amount))
	}
	return start(handler, func() error {
		return logResult(b.ServiceBudget(amount))
	})
}
