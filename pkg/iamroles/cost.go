package iamroles

import (
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/pkg/costquery"
	"github.com/xgrid/xc3/pkg/metrics"
)

// ResourceCost is the cost of one resource of a role.
type ResourceCost struct {
	Service  string
	Resource string
	Cost     decimal.Decimal
}

// resourceCost returns the first daily cost of the year for a resource.
// Failures are logged and count as zero.
func (m *Mapper) resourceCost(dimension, id string) decimal.Decimal {
	q := costquery.YearToDate(m.now()).Query(costquery.Daily)
	q.Filter = costquery.Dimension(dimension, id)
	results, err := m.Costs.Results(q)
	if err != nil {
		m.Logger.Error("Error fetching cost of resource", zap.String("resource", id), zap.Error(err))
		return decimal.Zero
	}
	if len(results) == 0 {
		return decimal.Zero
	}
	return costquery.Amount(results[0].Total[costquery.UnblendedCost])
}

// resources lists the resources of role billed under service, with the
// dimension their cost is filtered by.
func (r *Role) resources(service string) (string, []string) {
	switch service {
	case "lambda":
		return costquery.DimensionResourceID, r.LambdaFuncs
	case "ec2":
		ids := make([]string, 0, len(r.EC2Instances))
		for _, i := range r.EC2Instances {
			ids = append(ids, i.ID)
		}
		return costquery.DimensionInstanceID, ids
	case "s3":
		return costquery.DimensionResourceID, r.S3Buckets
	case "rds":
		return costquery.DimensionResourceID, r.RDSInstances
	case "dynamodb":
		return costquery.DimensionResourceID, r.DynamoDBTables
	}
	return "", nil
}

// ServiceCosts reports each role, the cost of its resources and the
// cost of each of its services.
func (m *Mapper) ServiceCosts(roles []*Role) (map[string][]ResourceCost, error) {
	roleInfo := metrics.NewGaugeVec("iam_role_info", "IAM Role Information", "role_name", "rolearn")
	resourceCosts := metrics.NewGaugeVec("iam_role_resource_costs", "Role and Associated Resource Costs",
		"role_name", "service", "resource_name")
	serviceCosts := metrics.NewGaugeVec("service_costs", "Cost of Each Service for IAM Roles", "role_name", "service")

	byRole := map[string][]ResourceCost{}
	for _, role := range roles {
		for _, service := range role.ServiceMapping {
			serviceCost := decimal.Zero
			dimension, ids := role.resources(service)
			for _, id := range ids {
				cost := m.resourceCost(dimension, id)
				resourceCosts.WithLabelValues(role.RoleName, service, id).Set(cost.InexactFloat64())
				byRole[role.RoleName] = append(byRole[role.RoleName], ResourceCost{Service: service, Resource: id, Cost: cost})
				serviceCost = serviceCost.Add(cost)
			}
			serviceCosts.WithLabelValues(role.RoleName, service).Set(serviceCost.InexactFloat64())
			roleInfo.WithLabelValues(role.RoleName, role.RoleArn).Set(0)
		}
	}
	if err := m.Pusher.Push("iam_roles_service_mapping", roleInfo, resourceCosts, serviceCosts); err != nil {
		return nil, err
	}
	return byRole, nil
}
