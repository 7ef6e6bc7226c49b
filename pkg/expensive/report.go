package expensive

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/pkg/cur"
	"github.com/xgrid/xc3/pkg/metrics"
	"github.com/xgrid/xc3/pkg/store"
)

// TopServicesKey is where the report based top services are written,
// relative to the top services prefix.
const TopServicesKey = "top5_expensive_service.json"

// ResourceRow is the cost of one resource of an expensive service.
type ResourceRow struct {
	Region     string          `json:"Region"`
	Service    string          `json:"Service"`
	ResourceID string          `json:"ResourceId"`
	Cost       decimal.Decimal `json:"Cost"`
}

// TopFromReport aggregates line items per region and service category
// and keeps the five most expensive categories of each region. Regions
// are sorted by code.
func TopFromReport(items []*cur.LineItem) []ServiceRow {
	type key struct{ region, service string }
	sums := map[key]decimal.Decimal{}
	for _, item := range items {
		k := key{item.Region, item.ServiceCategory()}
		sums[k] = sums[k].Add(item.Cost())
	}

	byRegion := map[string][]ServiceRow{}
	for k, cost := range sums {
		byRegion[k.region] = append(byRegion[k.region], ServiceRow{Region: k.region, Service: k.service, Cost: cost})
	}
	codes := lo.Keys(byRegion)
	sort.Strings(codes)

	var rows []ServiceRow
	for _, code := range codes {
		regionRows := byRegion[code]
		sort.Slice(regionRows, func(i, j int) bool {
			if !regionRows[i].Cost.Equal(regionRows[j].Cost) {
				return regionRows[i].Cost.GreaterThan(regionRows[j].Cost)
			}
			return regionRows[i].Service < regionRows[j].Service
		})
		if len(regionRows) > topN {
			regionRows = regionRows[:topN]
		}
		rows = append(rows, regionRows...)
	}
	return rows
}

// ReportTopServices reads the newest cost and usage report under
// reportPrefix in reports, and writes the top services per region to
// prefix/top5_expensive_service.json.
func (e *Explorer) ReportTopServices(reports *store.Store, reportPrefix, prefix string) ([]ServiceRow, error) {
	key, err := reports.Latest(reportPrefix)
	if err != nil {
		return nil, errors.Wrap(err, "no cost and usage reports found")
	}
	body, err := reports.Get(key)
	if err != nil {
		return nil, err
	}
	items, err := cur.ReadAuto(key, body)
	if err != nil {
		return nil, err
	}
	e.Logger.Info("Read cost and usage report", zap.String("key", key), zap.Int("line-items", len(items)))

	rows := TopFromReport(items)
	gauge := metrics.NewGaugeVec("top_service_cost", "Cost of top 5 services by region", "region", "service")
	for _, row := range rows {
		gauge.WithLabelValues(row.Region, row.Service).Set(row.Cost.InexactFloat64())
	}
	if err := e.Pusher.Push("services_cost", gauge); err != nil {
		return nil, err
	}
	if err := e.Store.PutJSON(prefix+"/"+TopServicesKey, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ResourceBreakdown reports the resource costs of each account, keyed by
// account id, and writes every row to prefix/resource_breakdown.json.
func (e *Explorer) ResourceBreakdown(byAccount map[string][]ResourceRow, prefix string) ([]ResourceRow, error) {
	accountIDs := lo.Keys(byAccount)
	sort.Strings(accountIDs)

	var collectors []prometheus.Collector
	var rows []ResourceRow
	for _, id := range accountIDs {
		g := metrics.NewGaugeVec("Resource_Cost_"+id, "Cost of resource of 5 services by region",
			"region", "service", "resource")
		for _, r := range byAccount[id] {
			g.WithLabelValues(r.Region, r.Service, r.ResourceID).Set(r.Cost.InexactFloat64())
			rows = append(rows, r)
		}
		collectors = append(collectors, g)
	}
	if err := e.Pusher.Push("resources_cost", collectors...); err != nil {
		return nil, err
	}
	if err := e.Store.PutJSON(prefix+"/resource_breakdown.json", rows); err != nil {
		return nil, err
	}
	return rows, nil
}
