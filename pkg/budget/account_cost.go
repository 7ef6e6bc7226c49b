package budget

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/pkg/accounts"
	"github.com/xgrid/xc3/pkg/costquery"
	"github.com/xgrid/xc3/pkg/metrics"
)

// MonthlyCosts maps an account detail to its cost per month name.
type MonthlyCosts map[string]map[string]decimal.Decimal

// TotalAccountCost reports the year to date monthly cost of every
// account, excluding credits and refunds. Negative months are reported
// as zero. When key is set the result is also written there.
func (b *Budget) TotalAccountCost(details []accounts.Detail, key string) (MonthlyCosts, error) {
	gauge := metrics.NewGaugeVec("Total_Account_Cost", "Cost by month", "month", "cost", "account_id")
	window := costquery.YearToDate(b.now())
	monthly := MonthlyCosts{}

	for _, detail := range details {
		if err := detail.Validate(); err != nil {
			return nil, err
		}
		q := window.Query(costquery.Monthly)
		q.Filter = costquery.And(
			costquery.Dimension(costquery.DimensionLinkedAccount, detail.ID()),
			costquery.ExcludeCredits(),
		)
		q.GroupBy = costquery.GroupBy(costquery.DimensionLinkedAccount)
		results, err := b.Costs.Results(q)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to get cost of account %s", detail.ID())
		}

		months := map[string]decimal.Decimal{}
		for _, m := range costquery.Months(results, costquery.UnblendedCost) {
			amount := m.Amount
			if amount.IsNegative() {
				amount = decimal.Zero
			}
			months[m.Month] = amount
			gauge.WithLabelValues(m.Month, amount.String(), string(detail)).Set(amount.InexactFloat64())
		}
		monthly[string(detail)] = months
		b.Logger.Info("Collected account cost",
			zap.String("account", string(detail)),
			zap.Int("months", len(months)))
	}

	if err := b.Pusher.Push("Total_Account_Cost", gauge); err != nil {
		return nil, errors.Wrap(err, "failed to push cost data to Prometheus")
	}
	if key != "" {
		if err := b.Store.PutJSON(key, monthly); err != nil {
			return nil, err
		}
	}
	return monthly, nil
}

// ServiceCosts reports the cost of the given services over the window,
// or of every service when none are given.
func (b *Budget) ServiceCosts(start, end string, services []string) (map[string]decimal.Decimal, error) {
	q := costquery.Window{Start: start, End: end}.Query(costquery.Monthly)
	q.GroupBy = costquery.GroupBy(costquery.DimensionService)
	if len(services) > 0 {
		q.Filter = costquery.Dimension(costquery.DimensionService, services...)
	}
	results, err := b.Costs.Results(q)
	if err != nil {
		return nil, errors.Wrap(err, "error getting cost and usage")
	}

	gauge := metrics.NewGaugeVec("Service_Cost", "XC3 Gauge for Cost of all Services", "Service", "Metric")
	costs := map[string]decimal.Decimal{}
	for _, g := range costquery.Groups(results, costquery.UnblendedCost) {
		costs[g.Key()] = g.Amount
		gauge.WithLabelValues(g.Key(), g.Amount.String()).Set(g.Amount.InexactFloat64())
	}
	if err := b.Pusher.Push("Cost_of_all_services", gauge); err != nil {
		return nil, err
	}
	return costs, nil
}
