// Package expensive finds the most expensive services per region and
// account.
package expensive

import (
	"time"

	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/pkg/accounts"
	"github.com/xgrid/xc3/pkg/costquery"
	"github.com/xgrid/xc3/pkg/invoke"
	"github.com/xgrid/xc3/pkg/metrics"
	"github.com/xgrid/xc3/pkg/regions"
	"github.com/xgrid/xc3/pkg/store"
)

const (
	detailDays = 14
	topN       = 5

	defaultConcurrency = 4
)

// Explorer is shared by the expensive services functions.
type Explorer struct {
	Logger    *zap.Logger
	EC2Client ec2iface.EC2API
	// CostsIn returns a Cost Explorer client for a region.
	CostsIn     func(region string) *costquery.Client
	Names       regions.Names
	Pusher      *metrics.Pusher
	Store       *store.Store
	Invoker     *invoke.Invoker
	Concurrency int
	Now         func() time.Time
}

// AccountRequest names the account whose services are examined.
type AccountRequest struct {
	AccountID     string `json:"account_id"`
	AccountDetail string `json:"account_detail"`
}

// ServiceRow is one of the top services of a region.
type ServiceRow struct {
	Account string          `json:"Account,omitempty"`
	Region  string          `json:"Region"`
	Service string          `json:"Service"`
	Cost    decimal.Decimal `json:"Cost"`
}

func (e *Explorer) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Dispatch asks function to examine each account.
func (e *Explorer) Dispatch(details []accounts.Detail, function string) error {
	for _, detail := range details {
		if err := detail.Validate(); err != nil {
			return err
		}
		req := AccountRequest{AccountID: detail.ID(), AccountDetail: string(detail)}
		if err := e.Invoker.Async(function, req); err != nil {
			return errors.Wrap(err, "error invoking expensive service function")
		}
	}
	return nil
}

// RegionTopServices reports the five most expensive services of the
// account in every enabled region over the last 14 days and writes them
// to prefix/<account detail>.json. Regions that fail are skipped.
func (e *Explorer) RegionTopServices(req *AccountRequest, prefix string) ([]ServiceRow, error) {
	codes, err := regions.Enabled(e.EC2Client)
	if err != nil {
		return nil, err
	}
	window := costquery.LastDays(e.now(), detailDays)

	concurrency := e.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	perRegion := make([][]ServiceRow, len(codes))
	p := pool.New().WithMaxGoroutines(concurrency)
	for i, code := range codes {
		i, code := i, code
		p.Go(func() {
			q := window.Query(costquery.Monthly)
			q.GroupBy = costquery.GroupBy(costquery.DimensionService)
			q.Filter = costquery.And(
				costquery.Dimension(costquery.DimensionRegion, code),
				costquery.Dimension(costquery.DimensionLinkedAccount, req.AccountID),
			)
			results, err := e.CostsIn(code).Results(q)
			if err != nil {
				e.Logger.Error("Error getting response from cost and usage api",
					zap.String("region", code), zap.Error(err))
				return
			}
			for _, g := range costquery.TopN(costquery.Groups(results, costquery.UnblendedCost), topN) {
				perRegion[i] = append(perRegion[i], ServiceRow{
					Account: req.AccountDetail,
					Region:  e.Names.Dashed(code),
					Service: g.Key(),
					Cost:    g.Amount,
				})
			}
		})
	}
	p.Wait()

	gauge := metrics.NewGaugeVec("Expensive_Services_Detail", "AWS Services Cost Detail",
		"service", "cost", "region", "account_id")
	var rows, stored []ServiceRow
	for _, regionRows := range perRegion {
		for _, row := range regionRows {
			rows = append(rows, row)
			stored = append(stored, ServiceRow{Region: row.Region, Service: row.Service, Cost: row.Cost})
			gauge.WithLabelValues(row.Service, row.Cost.String(), row.Region, row.Account).Set(row.Cost.InexactFloat64())
		}
	}
	if err := e.Pusher.Push(req.AccountDetail, gauge); err != nil {
		return nil, err
	}
	if err := e.Store.PutJSON(prefix+"/"+req.AccountDetail+".json", stored); err != nil {
		return nil, err
	}
	return rows, nil
}
