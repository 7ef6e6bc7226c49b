package iamroles

import (
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/lambda"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/pkg/cur"
	"github.com/xgrid/xc3/pkg/metrics"
	"github.com/xgrid/xc3/pkg/store"
)

// FunctionCost is the cost of a function on one usage day.
type FunctionCost struct {
	Role      string
	Function  string
	StartDate string
	Cost      decimal.Decimal
}

type roleFunction struct {
	role, function string
}

// roleFunctions pairs each function with the role it runs as.
func (m *Mapper) roleFunctions() ([]roleFunction, error) {
	roles, err := m.ListRoles()
	if err != nil {
		return nil, err
	}
	byArn := lo.SliceToMap(roles, func(r *Role) (string, string) { return r.RoleArn, r.RoleName })

	var pairs []roleFunction
	err = m.LambdaClient.ListFunctionsPages(&lambda.ListFunctionsInput{}, func(page *lambda.ListFunctionsOutput, lastPage bool) bool {
		for _, f := range page.Functions {
			if name, ok := byArn[aws.StringValue(f.Role)]; ok {
				pairs = append(pairs, roleFunction{role: name, function: aws.StringValue(f.FunctionName)})
			}
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to list lambda functions")
	}
	return pairs, nil
}

// LambdaRoleCost sums the Lambda line items of the cost and usage report
// at key in reports per role, function and usage start date.
func (m *Mapper) LambdaRoleCost(reports *store.Store, key string) ([]FunctionCost, error) {
	pairs, err := m.roleFunctions()
	if err != nil {
		return nil, err
	}
	body, err := reports.Get(key)
	if err != nil {
		return nil, err
	}
	items, err := cur.ReadAuto(key, body)
	if err != nil {
		return nil, err
	}

	type costKey struct{ role, function, start string }
	sums := map[costKey]decimal.Decimal{}
	for _, item := range items {
		if item.ProductCode != cur.LambdaProductCode {
			continue
		}
		for _, p := range pairs {
			if p.function == "" || !strings.Contains(item.ResourceID, p.function) {
				continue
			}
			k := costKey{p.role, p.function, item.UsageStartDate}
			sums[k] = sums[k].Add(item.Cost())
			break
		}
	}

	costs := make([]FunctionCost, 0, len(sums))
	for k, c := range sums {
		costs = append(costs, FunctionCost{Role: k.role, Function: k.function, StartDate: k.start, Cost: c})
	}
	sort.Slice(costs, func(i, j int) bool {
		if costs[i].Role != costs[j].Role {
			return costs[i].Role < costs[j].Role
		}
		if costs[i].Function != costs[j].Function {
			return costs[i].Function < costs[j].Function
		}
		return costs[i].StartDate < costs[j].StartDate
	})

	gauge := metrics.NewGaugeVec("aws_lambda_function_cost", "AWS Lambda function cost",
		"role_name", "function_name", "start_date")
	for _, c := range costs {
		gauge.WithLabelValues(c.Role, c.Function, c.StartDate).Set(c.Cost.InexactFloat64())
	}
	if err := m.Pusher.Push("aws_lambda_costs", gauge); err != nil {
		return nil, err
	}
	m.Logger.Info("Pushed lambda function costs", zap.Int("functions", len(pairs)), zap.Int("series", len(costs)))
	return costs, nil
}
