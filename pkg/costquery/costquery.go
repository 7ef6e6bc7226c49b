// Package costquery runs parameterized Cost Explorer queries and
// aggregates their results.
package costquery

import (
	"time"

	"github.com/avast/retry-go"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/costexplorer"
	"github.com/aws/aws-sdk-go/service/costexplorer/costexploreriface"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/internal/aws/awserrs"
)

const (
	// DateLayout is the date format Cost Explorer uses for time periods.
	DateLayout = "2006-01-02"

	// UnblendedCost is the metric every XC3 function reports.
	UnblendedCost = "UnblendedCost"

	Daily   = costexplorer.GranularityDaily
	Monthly = costexplorer.GranularityMonthly

	DimensionLinkedAccount = "LINKED_ACCOUNT"
	DimensionService       = "SERVICE"
	DimensionRegion        = "REGION"
	DimensionResourceID    = "RESOURCE_ID"
	DimensionInstanceID    = "INSTANCE_ID"

	// ProjectTag is the cost allocation tag projects are grouped by.
	ProjectTag = "Project"

	defaultAttempts = 5
	defaultDelay    = 5 * time.Second
)

var validate = validator.New()

// Query describes one Cost Explorer request. End is exclusive.
type Query struct {
	Start         string `validate:"required,datetime=2006-01-02"`
	End           string `validate:"required,datetime=2006-01-02"`
	Granularity   string `validate:"required,oneof=DAILY MONTHLY HOURLY"`
	Metric        string `validate:"required"`
	GroupBy       []*costexplorer.GroupDefinition
	Filter        *costexplorer.Expression
	WithResources bool
}

// Client wraps the Cost Explorer API. Throttled requests are retried
// Attempts times, Delay apart.
type Client struct {
	Logger       *zap.Logger
	CostExplorer costexploreriface.CostExplorerAPI
	Attempts     uint
	Delay        time.Duration
}

// Results returns every ResultByTime for q, following page tokens.
func (c *Client) Results(q *Query) ([]*costexplorer.ResultByTime, error) {
	if err := validate.Struct(q); err != nil {
		return nil, errors.Wrap(err, "invalid cost query")
	}
	if q.WithResources && q.Filter == nil {
		return nil, errors.New("invalid cost query: resource level queries require a filter")
	}

	var results []*costexplorer.ResultByTime
	var token *string
	for {
		var page []*costexplorer.ResultByTime
		var next *string
		err := c.retry(func() error {
			var err error
			if q.WithResources {
				page, next, err = c.withResources(q, token)
			} else {
				page, next, err = c.costAndUsage(q, token)
			}
			return err
		})
		if err != nil {
			return nil, errors.Wrapf(err, "cost and usage query %s to %s failed", q.Start, q.End)
		}
		results = append(results, page...)
		if aws.StringValue(next) == "" {
			return results, nil
		}
		token = next
	}
}

func (c *Client) costAndUsage(q *Query, token *string) ([]*costexplorer.ResultByTime, *string, error) {
	out, err := c.CostExplorer.GetCostAndUsage(&costexplorer.GetCostAndUsageInput{
		TimePeriod:    &costexplorer.DateInterval{Start: aws.String(q.Start), End: aws.String(q.End)},
		Granularity:   aws.String(q.Granularity),
		Metrics:       []*string{aws.String(q.Metric)},
		GroupBy:       q.GroupBy,
		Filter:        q.Filter,
		NextPageToken: token,
	})
	if err != nil {
		return nil, nil, err
	}
	return out.ResultsByTime, out.NextPageToken, nil
}

func (c *Client) withResources(q *Query, token *string) ([]*costexplorer.ResultByTime, *string, error) {
	out, err := c.CostExplorer.GetCostAndUsageWithResources(&costexplorer.GetCostAndUsageWithResourcesInput{
		TimePeriod:    &costexplorer.DateInterval{Start: aws.String(q.Start), End: aws.String(q.End)},
		Granularity:   aws.String(q.Granularity),
		Metrics:       []*string{aws.String(q.Metric)},
		GroupBy:       q.GroupBy,
		Filter:        q.Filter,
		NextPageToken: token,
	})
	if err != nil {
		return nil, nil, err
	}
	return out.ResultsByTime, out.NextPageToken, nil
}

func (c *Client) retry(fn func() error) error {
	attempts, delay := c.Attempts, c.Delay
	if attempts == 0 {
		attempts = defaultAttempts
	}
	if delay == 0 {
		delay = defaultDelay
	}
	return retry.Do(
		fn,
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return awserrs.HasCode(err, costexplorer.ErrCodeLimitExceededException) || awserrs.IsThrottle(err)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.Logger.Info("Cost Explorer request throttled, retrying",
				zap.Int("attempt", int(n)),
				zap.String("reason", err.Error()))
		}),
	)
}

// GroupBy builds a dimension grouping for each key.
func GroupBy(dimensions ...string) []*costexplorer.GroupDefinition {
	groups := make([]*costexplorer.GroupDefinition, 0, len(dimensions))
	for _, d := range dimensions {
		groups = append(groups, &costexplorer.GroupDefinition{
			Type: aws.String(costexplorer.GroupDefinitionTypeDimension),
			Key:  aws.String(d),
		})
	}
	return groups
}

// GroupByTag builds a tag grouping.
func GroupByTag(key string) []*costexplorer.GroupDefinition {
	return []*costexplorer.GroupDefinition{{
		Type: aws.String(costexplorer.GroupDefinitionTypeTag),
		Key:  aws.String(key),
	}}
}
