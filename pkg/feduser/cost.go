package feduser

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/pkg/costquery"
	"github.com/xgrid/xc3/pkg/metrics"
	"github.com/xgrid/xc3/pkg/store"
)

const resourceCostDays = 14

// ResourceCost is the cost of a compliant federated resource.
type ResourceCost struct {
	ResourceID string          `json:"resource_id"`
	Cost       decimal.Decimal `json:"cost"`
	Region     string          `json:"region"`
	Resource   string          `json:"resource"`
	AccountID  string          `json:"account_id"`
}

// CostKey is the day's resource cost document.
func CostKey(t time.Time) string {
	return store.DatedKey(KeyPrefix, t, "duplicated.json")
}

func (s *Scanner) resourceCost(arn string) (decimal.Decimal, error) {
	q := costquery.LastDays(s.now(), resourceCostDays).Query(costquery.Daily)
	q.Filter = costquery.Dimension(costquery.DimensionResourceID, arn)
	q.WithResources = true
	results, err := s.Costs.Results(q)
	if err != nil {
		return decimal.Zero, err
	}
	return costquery.Total(results, costquery.UnblendedCost), nil
}

// ResourceCosts prices the compliant resources of the resources document
// at key in bucket over the last 14 days. The result, or the error that
// stopped it, is written to the day's cost document.
func (s *Scanner) ResourceCosts(bucket, key string) ([]ResourceCost, error) {
	rows, err := s.resourceCosts(bucket, key)
	if err != nil {
		if putErr := s.Store.PutJSON(CostKey(s.now()), map[string]string{"data": err.Error()}); putErr != nil {
			s.Logger.Error("Unable to record resource cost failure", zap.Error(putErr))
		}
		return nil, err
	}
	if err := s.Store.PutJSON(CostKey(s.now()), map[string][]ResourceCost{"ec2": rows}); err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Scanner) resourceCosts(bucket, key string) ([]ResourceCost, error) {
	var inv Inventory
	if err := s.Store.WithBucket(bucket).GetJSON(key, &inv); err != nil {
		return nil, err
	}
	gauge := metrics.NewGaugeVec("FED_USER_Resource_Cost_List", "FED USER Resource List And Cost",
		"resource_id", "resource", "cost", "account_id", "region")

	var rows []ResourceCost
	for _, account := range sortedAccounts(inv.Body) {
		for _, r := range inv.Body[account] {
			if !r.Compliance {
				continue
			}
			parts := strings.Split(r.ResourceARN, ":")
			if len(parts) < 4 {
				return nil, errors.Errorf("invalid resource arn %q", r.ResourceARN)
			}
			region := parts[3]
			if strings.HasPrefix(r.ResourceARN, "arn:aws:s3") {
				region = ""
			}
			cost, err := s.resourceCost(r.ResourceARN)
			if err != nil {
				return nil, errors.Wrapf(err, "unable to get cost of %s", r.ResourceARN)
			}
			row := ResourceCost{ResourceID: r.ResourceARN, Cost: cost, Region: region, Resource: parts[2], AccountID: account}
			rows = append(rows, row)
			gauge.WithLabelValues(row.ResourceID, row.Resource, cost.String(), account, region).Set(cost.InexactFloat64())
		}
	}
	if err := s.Pusher.Push("FED_USER_Resource_Cost_List", gauge); err != nil {
		return nil, err
	}
	return rows, nil
}
