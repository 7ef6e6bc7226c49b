package iamusers

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/pkg/costquery"
	"github.com/xgrid/xc3/pkg/metrics"
)

const (
	resourceCostDays = 14

	// CostKey holds the per user costs checked by UserCostAlert.
	CostKey = "cost-metrics/iam_cost.json"

	timeLayout = "2006-01-02 15:04:05"
)

// UserCost is one row of the user cost document.
type UserCost struct {
	IAM    string          `json:"IAM"`
	Region string          `json:"Region"`
	Cost   decimal.Decimal `json:"Cost"`
}

// queryTime renders the end of a cost period as the time of day the
// dashboards expect.
func queryTime(end string) string {
	if len(end) < len(costquery.DateLayout) {
		return end
	}
	return end[:len(costquery.DateLayout)] + " 12:02:02"
}

// instanceCost sums the daily cost of an instance over the last 14 days.
func (r *Reporter) instanceCost(instanceID string) (decimal.Decimal, string, error) {
	q := costquery.LastDays(r.now(), resourceCostDays).Query(costquery.Daily)
	q.Filter = costquery.Dimension(costquery.DimensionResourceID, instanceID)
	q.WithResources = true
	results, err := r.Costs.Results(q)
	if err != nil {
		return decimal.Zero, "", err
	}
	return costquery.Total(results, costquery.UnblendedCost), queryTime(costquery.LastEnd(results)), nil
}

// UserResourcesCost finds the resources owned by each user in the
// function's region and reports their cost. Instance costs cover the
// last 14 days and functions are listed without cost.
func (r *Reporter) UserResourcesCost(users []User) ([]*UserResources, error) {
	resourceGauge := metrics.NewGaugeVec("IAM_USER_Resource_Cost_List", "IAM User Resource List And Cost",
		"Query_Time", "user", "region", "resource", "cumulative_cost", "account_id")
	totalGauge := metrics.NewGaugeVec("IAM_USER_Total_Services_Cost_List", "IAM User Total Services Cost List",
		"Query_Time", "user", "region", "resources_cost", "account_id")

	var mapped []*UserResources
	for _, u := range users {
		ur, err := r.OwnedResources(u.UserName, r.Region)
		if err != nil {
			return nil, err
		}
		mapped = append(mapped, ur)

		region := r.Names.Display(ur.Region)
		total := decimal.Zero
		lastQuery := r.now().Format(timeLayout)
		for _, res := range ur.ResourceList {
			switch {
			case res == "":
				continue
			case strings.Contains(res, "ec2"):
				parts := strings.SplitN(res, "/", 2)
				if len(parts) < 2 {
					r.Logger.Warn("Skipping ec2 resource without id", zap.String("resource", res))
					continue
				}
				cost, at, err := r.instanceCost(parts[1])
				if err != nil {
					return nil, errors.Wrapf(err, "unable to get cost of %s", res)
				}
				if at != "" {
					lastQuery = at
				}
				total = total.Add(cost)
				resourceGauge.WithLabelValues(lastQuery, u.UserName, region, res, cost.String(), r.AccountID).
					Set(cost.InexactFloat64())
			case strings.Contains(res, "lambda"):
				resourceGauge.WithLabelValues(lastQuery, u.UserName, region, res, "0", r.AccountID).Set(0)
			}
		}
		totalGauge.WithLabelValues(r.now().Format(timeLayout), u.UserName, region, total.String(), r.AccountID).
			Set(total.InexactFloat64())
	}

	if err := r.Pusher.Push("IAM_User_Resource_List_Cost_"+r.Region, resourceGauge); err != nil {
		return nil, errors.Wrap(err, "failed to push cost data to Prometheus")
	}
	if err := r.Pusher.Push("IAM_User_Total_Services_Cost_List_"+r.Region, totalGauge); err != nil {
		return nil, errors.Wrap(err, "failed to push cost data to Prometheus")
	}
	return mapped, nil
}

// UserCostAlert alerts on users whose cost is above budget and publishes
// the cost of every user to CloudWatch.
func (r *Reporter) UserCostAlert(budget decimal.Decimal) ([]UserCost, error) {
	var costs []UserCost
	if err := r.Store.GetJSON(CostKey, &costs); err != nil {
		return nil, err
	}

	var high []UserCost
	var text strings.Builder
	for _, c := range costs {
		if c.Cost.GreaterThan(budget) {
			high = append(high, c)
			fmt.Fprintf(&text, "IAM User: %s, Region: %s, Cost: $%s\n", c.IAM, c.Region, c.Cost)
		}
	}
	if len(high) > 0 {
		r.Alerts.Send("High-Cost IAM Users Notification", text.String(), text.String())
	}

	for _, c := range costs {
		_, err := r.CloudWatchClient.PutMetricData(&cloudwatch.PutMetricDataInput{
			Namespace: aws.String("IAMCostMetrics"),
			MetricData: []*cloudwatch.MetricDatum{{
				MetricName: aws.String("IAMCost"),
				Dimensions: []*cloudwatch.Dimension{
					{Name: aws.String("IAMUser"), Value: aws.String(c.IAM)},
					{Name: aws.String("Region"), Value: aws.String(c.Region)},
				},
				Value: aws.Float64(c.Cost.InexactFloat64()),
			}},
		})
		if err != nil {
			return nil, errors.Wrapf(err, "unable to publish cost of %s", c.IAM)
		}
	}
	return high, nil
}
