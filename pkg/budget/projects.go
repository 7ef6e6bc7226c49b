package budget

import (
	"strings"

	"github.com/aws/aws-sdk-go/service/costexplorer"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/pkg/costquery"
	"github.com/xgrid/xc3/pkg/metrics"
)

// BreakdownRequest asks for the resource costs of one project.
type BreakdownRequest struct {
	ProjectName string `json:"project_name" validate:"required"`
	StartDate   string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

// ResourceCost is the cost of one resource of a project.
type ResourceCost struct {
	Resource string          `json:"Resource"`
	Service  string          `json:"Service"`
	Cost     decimal.Decimal `json:"Cost"`
}

// ServiceCost is the cost of one service.
type ServiceCost struct {
	Service string          `json:"Service"`
	Cost    decimal.Decimal `json:"Cost"`
}

// projectName turns a "Project$apollo" group key into "apollo". Spend
// without the tag is grouped under Others.
func projectName(key string) string {
	name := key
	if i := strings.Index(key, "$"); i >= 0 {
		name = key[i+1:]
	}
	if name == "" {
		return Others
	}
	return name
}

// projectFilter matches the project's tag. Others matches resources
// whose tag is empty.
func projectFilter(project string) *costexplorer.Expression {
	if project == Others {
		return costquery.Tag(costquery.ProjectTag, "")
	}
	return costquery.Tag(costquery.ProjectTag, project)
}

// ProjectSpend reports the last 30 days of spend per project, writes the
// totals to key and asks breakdownFunction for each project's resource
// costs over the last 14 days.
func (b *Budget) ProjectSpend(key, breakdownFunction string) (map[string]decimal.Decimal, error) {
	now := b.now()
	q := costquery.LastDays(now, projectSpendDays).Query(costquery.Monthly)
	q.GroupBy = costquery.GroupByTag(costquery.ProjectTag)
	results, err := b.Costs.Results(q)
	if err != nil {
		return nil, errors.Wrap(err, "error getting cost of project")
	}

	gauge := metrics.NewGaugeVec("Project_Spend_Cost", "XC3 Project Spend Cost",
		"project_spend_project", "project_spend_cost")
	projects := map[string]decimal.Decimal{}
	var names []string
	for _, g := range costquery.Groups(results, costquery.UnblendedCost) {
		name := projectName(g.Key())
		if _, seen := projects[name]; !seen {
			names = append(names, name)
		}
		projects[name] = projects[name].Add(g.Amount)
	}
	for _, name := range names {
		gauge.WithLabelValues(name, projects[name].String()).Set(projects[name].InexactFloat64())
	}

	if breakdownFunction != "" {
		window := costquery.LastDays(now, breakdownDays)
		for _, name := range names {
			req := BreakdownRequest{ProjectName: name, StartDate: window.Start, EndDate: window.End}
			if err := b.Invoker.Async(breakdownFunction, req); err != nil {
				b.Logger.Error("Error invoking project breakdown",
					zap.String("project", name), zap.Error(err))
			}
		}
	}

	if err := b.Store.PutJSON(key, projects); err != nil {
		return nil, err
	}
	if err := b.Pusher.Push("Project-Spend-Cost", gauge); err != nil {
		return nil, err
	}
	return projects, nil
}

// ProjectSpendBreakdown returns the cost of every resource tagged with
// the project, by service.
func (b *Budget) ProjectSpendBreakdown(req *BreakdownRequest) ([]ResourceCost, error) {
	if err := validate.Struct(req); err != nil {
		return nil, errors.Wrap(err, "invalid breakdown request")
	}
	q := costquery.Window{Start: req.StartDate, End: req.EndDate}.Query(costquery.Monthly)
	q.WithResources = true
	q.Filter = projectFilter(req.ProjectName)
	q.GroupBy = costquery.GroupBy(costquery.DimensionResourceID, costquery.DimensionService)
	results, err := b.Costs.Results(q)
	if err != nil {
		return nil, errors.Wrapf(err, "error getting cost of project %s", req.ProjectName)
	}

	gauge := metrics.NewGaugeVec("Project_Resource_Cost", "XC3 Project Resource Cost", "project", "service", "resource")
	var rows []ResourceCost
	for _, g := range costquery.Groups(results, costquery.UnblendedCost) {
		if len(g.Keys) < 2 {
			continue
		}
		rows = append(rows, ResourceCost{Resource: g.Keys[0], Service: g.Keys[1], Cost: g.Amount})
		gauge.WithLabelValues(req.ProjectName, g.Keys[1], g.Keys[0]).Set(g.Amount.InexactFloat64())
	}
	if err := b.Pusher.Push(req.ProjectName+"-Resources", gauge); err != nil {
		return nil, err
	}
	return rows, nil
}

// ProjectServices reports the last 30 days of spend per service of a
// project.
func (b *Budget) ProjectServices(project string) ([]ServiceCost, error) {
	q := costquery.LastDays(b.now(), projectSpendDays).Query(costquery.Monthly)
	q.GroupBy = costquery.GroupBy(costquery.DimensionService)
	q.Filter = projectFilter(project)
	results, err := b.Costs.Results(q)
	if err != nil {
		return nil, errors.Wrapf(err, "error getting response from cost and usage api for %s", project)
	}

	gauge := metrics.NewGaugeVec(project+"_Services_Cost", "AWS Services Cost Detail",
		"project_spend_service", "project_spend_cost")
	var rows []ServiceCost
	for _, g := range costquery.Groups(results, costquery.UnblendedCost) {
		rows = append(rows, ServiceCost{Service: g.Key(), Cost: g.Amount})
		gauge.WithLabelValues(g.Key(), g.Amount.String()).Set(g.Amount.InexactFloat64())
	}
	if err := b.Pusher.Push(project+"-Service", gauge); err != nil {
		return nil, err
	}
	return rows, nil
}
