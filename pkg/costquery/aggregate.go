package costquery

import (
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/costexplorer"
	"github.com/shopspring/decimal"
)

// GroupCost is the summed cost of one Cost Explorer group.
type GroupCost struct {
	Keys   []string
	Amount decimal.Decimal
}

// Key returns the first group key.
func (g GroupCost) Key() string {
	if len(g.Keys) == 0 {
		return ""
	}
	return g.Keys[0]
}

// MonthCost is the cost of one calendar month.
type MonthCost struct {
	Month  string
	Amount decimal.Decimal
}

// Amount parses a metric value; missing or malformed values count as
// zero.
func Amount(mv *costexplorer.MetricValue) decimal.Decimal {
	if mv == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(aws.StringValue(mv.Amount))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Total sums the period totals of metric.
func Total(results []*costexplorer.ResultByTime, metric string) decimal.Decimal {
	sum := decimal.Zero
	for _, r := range results {
		sum = sum.Add(Amount(r.Total[metric]))
	}
	return sum
}

// GroupTotal sums metric across every group of every period.
func GroupTotal(results []*costexplorer.ResultByTime, metric string) decimal.Decimal {
	sum := decimal.Zero
	for _, g := range Groups(results, metric) {
		sum = sum.Add(g.Amount)
	}
	return sum
}

// Groups sums metric per group across periods, in first seen order.
func Groups(results []*costexplorer.ResultByTime, metric string) []GroupCost {
	var groups []GroupCost
	index := map[string]int{}
	for _, r := range results {
		for _, g := range r.Groups {
			keys := aws.StringValueSlice(g.Keys)
			id := strings.Join(keys, "\x00")
			amount := Amount(g.Metrics[metric])
			if i, ok := index[id]; ok {
				groups[i].Amount = groups[i].Amount.Add(amount)
				continue
			}
			index[id] = len(groups)
			groups = append(groups, GroupCost{Keys: keys, Amount: amount})
		}
	}
	return groups
}

// TopN returns the n most expensive groups. Equal amounts keep their
// input order.
func TopN(groups []GroupCost, n int) []GroupCost {
	sorted := make([]GroupCost, len(groups))
	copy(sorted, groups)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Amount.GreaterThan(sorted[j].Amount)
	})
	if n >= 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// Months returns the cost per calendar month. A period with groups
// contributes its first group's amount, otherwise its total.
func Months(results []*costexplorer.ResultByTime, metric string) []MonthCost {
	var months []MonthCost
	index := map[string]int{}
	for _, r := range results {
		if r.TimePeriod == nil {
			continue
		}
		start, err := time.Parse(DateLayout, aws.StringValue(r.TimePeriod.Start))
		if err != nil {
			continue
		}
		var amount decimal.Decimal
		if len(r.Groups) == 0 {
			amount = Amount(r.Total[metric])
		} else {
			amount = Amount(r.Groups[0].Metrics[metric])
		}
		name := start.Month().String()
		if i, ok := index[name]; ok {
			months[i].Amount = months[i].Amount.Add(amount)
			continue
		}
		index[name] = len(months)
		months = append(months, MonthCost{Month: name, Amount: amount})
	}
	return months
}

// LastEnd returns the end date of the final period, or an empty string.
func LastEnd(results []*costexplorer.ResultByTime) string {
	if len(results) == 0 || results[len(results)-1].TimePeriod == nil {
		return ""
	}
	return aws.StringValue(results[len(results)-1].TimePeriod.End)
}
