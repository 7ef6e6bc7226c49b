// Package report renders the stored cost documents as tables and posts
// them to Slack.
package report

import (
	"path"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/pkg/expensive"
	"github.com/xgrid/xc3/pkg/notify"
	"github.com/xgrid/xc3/pkg/store"
)

// Keys locates the documents to report.
type Keys struct {
	MonthlyCost     string
	ProjectSpend    string
	ExpensivePrefix string
}

// Notifier posts the cost tables.
type Notifier struct {
	Logger *zap.Logger
	Store  *store.Store
	Slack  *notify.Slack
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func monthIndex(name string) int {
	t, err := time.Parse("January", name)
	if err != nil {
		return 13
	}
	return int(t.Month())
}

// MonthlyTable renders account costs per month with the months in
// calendar order.
func MonthlyTable(costs map[string]map[string]decimal.Decimal) string {
	seen := map[string]bool{}
	for _, months := range costs {
		for m := range months {
			seen[m] = true
		}
	}
	months := lo.Keys(seen)
	sort.Slice(months, func(i, j int) bool {
		if monthIndex(months[i]) != monthIndex(months[j]) {
			return monthIndex(months[i]) < monthIndex(months[j])
		}
		return months[i] < months[j]
	})
	accounts := lo.Keys(costs)
	sort.Strings(accounts)

	t := table.NewWriter()
	header := table.Row{"Account"}
	for _, m := range months {
		header = append(header, m)
	}
	t.AppendHeader(header)
	for _, a := range accounts {
		row := table.Row{a}
		for _, m := range months {
			row = append(row, money(costs[a][m]))
		}
		t.AppendRow(row)
	}
	return t.Render()
}

// ProjectTable renders the spend of each project.
func ProjectTable(projects map[string]decimal.Decimal) string {
	names := lo.Keys(projects)
	sort.Strings(names)
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Project", "Cost"})
	for _, n := range names {
		t.AppendRow(table.Row{n, money(projects[n])})
	}
	return t.Render()
}

// ServicesTable renders expensive services rows.
func ServicesTable(rows []expensive.ServiceRow) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Region", "Service", "Cost"})
	for _, r := range rows {
		t.AppendRow(table.Row{r.Region, r.Service, money(r.Cost)})
	}
	return t.Render()
}

// load decodes the document at key into v. A missing document is logged
// and leaves v untouched.
func (n *Notifier) load(key string, v interface{}) error {
	err := n.Store.GetJSON(key, v)
	if store.IsNotFound(err) {
		n.Logger.Warn("Cost document not found", zap.String("key", key))
		return nil
	}
	return err
}

// Send posts the monthly account costs, the project spend and every
// expensive services document to Slack.
func (n *Notifier) Send(keys Keys) error {
	var monthly map[string]map[string]decimal.Decimal
	if err := n.load(keys.MonthlyCost, &monthly); err != nil {
		return err
	}
	if err := n.Slack.SendCode("Monthly Cost of AWS Accounts($)", MonthlyTable(monthly)); err != nil {
		return err
	}

	var projects map[string]decimal.Decimal
	if err := n.load(keys.ProjectSpend, &projects); err != nil {
		return err
	}
	if err := n.Slack.SendCode("Cost of Projects ($)", ProjectTable(projects)); err != nil {
		return err
	}

	if keys.ExpensivePrefix == "" {
		return nil
	}
	objects, err := n.Store.List(keys.ExpensivePrefix)
	if err != nil {
		return err
	}
	for _, o := range objects {
		key := aws.StringValue(o.Key)
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		var rows []expensive.ServiceRow
		if err := n.load(key, &rows); err != nil {
			return err
		}
		name := strings.TrimSuffix(path.Base(key), ".json")
		if err := n.Slack.SendCode("Expensive Services Costs for "+name, ServicesTable(rows)); err != nil {
			return err
		}
	}
	return nil
}
