package budget

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/pkg/costquery"
)

const (
	// ServicesCostKey holds the per region service costs checked by
	// ServiceBudget.
	ServicesCostKey = "cost-metrics/services_cost.json"

	alertSubject = "Budget Exceeded"
)

var warnRatio = decimal.NewFromFloat(0.75)

// RegionServiceCost is one row of the services cost document.
type RegionServiceCost struct {
	Service string          `json:"Service"`
	Region  string          `json:"Region"`
	Cost    decimal.Decimal `json:"Cost"`
}

// RegionCosts maps a region to its cost per service.
type RegionCosts map[string]map[string]decimal.Decimal

// Total sums the services of region.
func (r RegionCosts) Total(region string) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range r[region] {
		sum = sum.Add(c)
	}
	return sum
}

func money(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}

// AccountAlert publishes the last 30 days of account spend to CloudWatch
// and alerts when it is above the budget or above 75% of it.
func (b *Budget) AccountAlert(budget decimal.Decimal) (decimal.Decimal, error) {
	results, err := b.Costs.Results(costquery.LastDays(b.now(), alertDays).Query(costquery.Monthly))
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "unable to get account cost")
	}
	cost := costquery.Total(results, costquery.UnblendedCost)

	_, err = b.CloudWatchClient.PutMetricData(&cloudwatch.PutMetricDataInput{
		Namespace: aws.String("AccountCost"),
		MetricData: []*cloudwatch.MetricDatum{{
			MetricName: aws.String("TotalCost"),
			Value:      aws.Float64(cost.InexactFloat64()),
			Unit:       aws.String(cloudwatch.StandardUnitNone),
		}},
	})
	if err != nil {
		return cost, errors.Wrap(err, "unable to publish account cost metric")
	}

	switch {
	case cost.GreaterThan(budget):
		b.Alerts.Send(alertSubject,
			"You have exceeded your budget. Your current cost: "+money(cost),
			"Budget Exceeded: Your current cost: "+money(cost))
	case cost.GreaterThan(budget.Mul(warnRatio)):
		b.Alerts.Send(alertSubject,
			"You have exceeded 75% of your budget. Your current cost: "+money(cost),
			"Budget Exceeded - 75%: Your current cost: "+money(cost))
	default:
		b.Logger.Info("Account cost within budget",
			zap.String("cost", money(cost)),
			zap.String("budget", money(budget)))
	}
	return cost, nil
}

// ServiceBudget aggregates the services cost document per region and
// service, publishes each pair to CloudWatch and alerts on regions
// whose total is above budget.
func (b *Budget) ServiceBudget(budget decimal.Decimal) (RegionCosts, error) {
	var rows []RegionServiceCost
	if err := b.Store.GetJSON(ServicesCostKey, &rows); err != nil {
		return nil, err
	}

	costs := RegionCosts{}
	var regions []string
	for _, row := range rows {
		if _, ok := costs[row.Region]; !ok {
			costs[row.Region] = map[string]decimal.Decimal{}
			regions = append(regions, row.Region)
		}
		costs[row.Region][row.Service] = costs[row.Region][row.Service].Add(row.Cost)
	}

	for _, region := range regions {
		for _, service := range sortedKeys(costs[region]) {
			_, err := b.CloudWatchClient.PutMetricData(&cloudwatch.PutMetricDataInput{
				Namespace: aws.String("RegionServiceCostMetrics"),
				MetricData: []*cloudwatch.MetricDatum{{
					MetricName: aws.String("RegionServiceCost"),
					Dimensions: []*cloudwatch.Dimension{
						{Name: aws.String("Region"), Value: aws.String(region)},
						{Name: aws.String("Service"), Value: aws.String(service)},
					},
					Value: aws.Float64(costs[region][service].InexactFloat64()),
				}},
			})
			if err != nil {
				return nil, errors.Wrapf(err, "unable to publish cost of %s in %s", service, region)
			}
		}
	}

	var text strings.Builder
	for _, region := range regions {
		total := costs.Total(region)
		if !total.GreaterThan(budget) {
			continue
		}
		fmt.Fprintf(&text, "Region: %s, Total Cost: %s\n", region, money(total))
		for _, service := range sortedKeys(costs[region]) {
			fmt.Fprintf(&text, "  Service: %s, Cost: %s\n", service, money(costs[region][service]))
		}
	}
	if text.Len() > 0 {
		b.Alerts.Send("AWS Account Cost Metric",
			"The cost of your AWS account for the last 24 hours is: "+text.String(),
			text.String())
	}
	return costs, nil
}

func sortedKeys(m map[string]decimal.Decimal) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
