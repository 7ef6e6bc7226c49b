package iamroles

import (
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/aws/aws-sdk-go/service/lambda"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/pkg/costquery"
	"github.com/xgrid/xc3/pkg/cur"
	"github.com/xgrid/xc3/pkg/metrics"
	"github.com/xgrid/xc3/pkg/resourcearn"
	"github.com/xgrid/xc3/pkg/store"
)

const (
	// NoRegion marks a role that has never been used.
	NoRegion = "None"

	serviceCostDays = 14

	// Instance states as shown on the dashboard: the action the
	// instance is ready for.
	stateStop  = "Stop"
	stateStart = "Start"
	stateNone  = "None"
)

// ServiceDetail is one service trusted by a role. EC2 and Lambda
// details name the resource launched with the role.
type ServiceDetail struct {
	Service        string `json:"Service"`
	InstanceRegion string `json:"Instance_Region,omitempty"`
	Instance       string `json:"Instance,omitempty"`
	FunctionRegion string `json:"Function_Region,omitempty"`
	Function       string `json:"Function,omitempty"`
}

// RoleServices is a role with the region it was last used in and the
// services trusted by it.
type RoleServices struct {
	Role     string          `json:"Role"`
	Region   string          `json:"Role_Region"`
	Services []ServiceDetail `json:"Service Details"`
}

// ServiceCost is the cost and state of one resource of a role.
type ServiceCost struct {
	Role     string
	Region   string
	Resource string
	Cost     decimal.Decimal
	State    string
}

// MapRoleServices resolves the services trusted by each inventory role
// in the region the role was last used in. Instances are found through
// the role's instance profiles and functions by their exact execution
// role ARN.
func (m *Mapper) MapRoleServices(roles []InventoryRole) ([]RoleServices, error) {
	var functions []*lambda.FunctionConfiguration
	listed := false

	mapped := make([]RoleServices, 0, len(roles))
	for _, role := range roles {
		region := role.region()
		rs := RoleServices{Role: role.Arn, Region: region, Services: []ServiceDetail{}}
		var services []string
		if role.AssumeRolePolicyDocument != nil {
			services = role.AssumeRolePolicyDocument.Services()
		}
		for _, service := range services {
			switch service {
			case "ec2":
				if region == NoRegion {
					continue
				}
				instances, err := m.regionInstances(region, role.RoleName)
				if err != nil {
					return nil, errors.Wrapf(err, "error listing instances of role %s", role.RoleName)
				}
				for _, i := range instances {
					rs.Services = append(rs.Services, ServiceDetail{Service: service, InstanceRegion: i.Region, Instance: i.ID})
				}
			case "lambda":
				if region == NoRegion {
					continue
				}
				if !listed {
					var err error
					if functions, err = m.listFunctions(); err != nil {
						return nil, errors.Wrap(err, "error listing lambda functions")
					}
					listed = true
				}
				for _, f := range functions {
					if aws.StringValue(f.Role) != role.Arn {
						continue
					}
					arn := aws.StringValue(f.FunctionArn)
					rs.Services = append(rs.Services, ServiceDetail{Service: service, FunctionRegion: resourcearn.Region(arn), Function: arn})
				}
			default:
				rs.Services = append(rs.Services, ServiceDetail{Service: service})
			}
		}
		mapped = append(mapped, rs)
	}
	return mapped, nil
}

// MapRoleServicesAndForward maps the roles and hands the whole list to
// the service data function in one invocation.
func (m *Mapper) MapRoleServicesAndForward(roles []InventoryRole, serviceFunction string) ([]RoleServices, error) {
	mapped, err := m.MapRoleServices(roles)
	if err != nil {
		return nil, err
	}
	if err := m.Invoker.Async(serviceFunction, mapped); err != nil {
		return nil, errors.Wrap(err, "error invoking iam role service function")
	}
	return mapped, nil
}

func (m *Mapper) listFunctions() ([]*lambda.FunctionConfiguration, error) {
	var functions []*lambda.FunctionConfiguration
	err := m.LambdaClient.ListFunctionsPages(&lambda.ListFunctionsInput{}, func(page *lambda.ListFunctionsOutput, lastPage bool) bool {
		functions = append(functions, page.Functions...)
		return true
	})
	return functions, err
}

// regionInstances lists the instances launched with any of the role's
// instance profiles in region.
func (m *Mapper) regionInstances(region, roleName string) ([]Instance, error) {
	profiles, err := m.instanceProfiles(roleName)
	if err != nil {
		return nil, err
	}
	client := m.ec2In(region)
	var instances []Instance
	for _, p := range profiles {
		err := client.DescribeInstancesPages(&ec2.DescribeInstancesInput{
			Filters: []*ec2.Filter{{
				Name:   aws.String("iam-instance-profile.arn"),
				Values: []*string{p.Arn},
			}},
		}, func(page *ec2.DescribeInstancesOutput, lastPage bool) bool {
			for _, r := range page.Reservations {
				for _, i := range r.Instances {
					instances = append(instances, Instance{Region: zoneRegion(i.Placement), ID: aws.StringValue(i.InstanceId)})
				}
			}
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	return instances, nil
}

// ServiceData reports the cost and state of every resource in the
// mapped roles. Instance costs accumulate over the last 14 days, one
// sample per day. Function costs are summed from the cost and usage
// report under reportPrefix in reports, read only when a role has a
// function.
func (m *Mapper) ServiceData(roles []RoleServices, reports *store.Store, reportPrefix string) ([]ServiceCost, error) {
	gauge := metrics.NewGaugeVec("IAM_Role_Service", "XC3 IAM Role Service Data",
		"TimeSlot", "iam_role_of_service", "iam_role_service_region", "iam_role_service_account",
		"iam_role_service_resource_id", "iam_role_service_cost", "iam_role_service_state")
	window := costquery.LastDays(m.now(), serviceCostDays)
	slot := timeSlot(window.End)

	var items []*cur.LineItem
	loaded := false

	var costs []ServiceCost
	for _, role := range roles {
		if role.Region == NoRegion || role.Region == "" {
			continue
		}
		name := role.Role[strings.LastIndex(role.Role, "/")+1:]
		display := m.Names.Display(role.Region)

		if len(role.Services) == 0 {
			gauge.WithLabelValues(slot, name, display, m.AccountID, stateNone, "0", stateStart).Set(0)
			continue
		}
		for _, d := range role.Services {
			switch {
			case d.Service == "ec2" && d.Instance != "":
				state, err := m.instanceState(d.InstanceRegion, d.Instance)
				if err != nil {
					m.Logger.Error("Error fetching instance state", zap.String("instance", d.Instance), zap.Error(err))
					continue
				}
				if state == "" {
					continue
				}
				q := window.Query(costquery.Daily)
				q.Filter = costquery.Dimension(costquery.DimensionResourceID, d.Instance)
				q.WithResources = true
				results, err := m.Costs.Results(q)
				if err != nil {
					m.Logger.Error("Error fetching instance cost", zap.String("instance", d.Instance), zap.Error(err))
					continue
				}
				resource := "ec2:instance/" + d.Instance
				cumulative := decimal.Zero
				for _, r := range results {
					cumulative = cumulative.Add(costquery.Amount(r.Total[costquery.UnblendedCost]))
					end := ""
					if r.TimePeriod != nil {
						end = aws.StringValue(r.TimePeriod.End)
					}
					gauge.WithLabelValues(timeSlot(end), name, display, m.AccountID, resource, cumulative.StringFixed(2), state).
						Set(cumulative.InexactFloat64())
				}
				costs = append(costs, ServiceCost{Role: name, Region: role.Region, Resource: resource, Cost: cumulative, State: state})
			case d.Service == "lambda" && d.Function != "":
				if !loaded {
					var err error
					if items, err = m.readReport(reports, reportPrefix); err != nil {
						return nil, err
					}
					loaded = true
				}
				total := decimal.Zero
				for _, item := range items {
					if item.ResourceID == d.Function {
						total = total.Add(item.Cost())
					}
				}
				resource := "lambda:function/" + d.Function
				gauge.WithLabelValues(slot, name, display, m.AccountID, resource, total.String(), stateNone).Set(total.InexactFloat64())
				costs = append(costs, ServiceCost{Role: name, Region: role.Region, Resource: resource, Cost: total, State: stateNone})
			default:
				gauge.WithLabelValues(slot, name, display, m.AccountID, d.Service, "0", stateStart).Set(0)
				costs = append(costs, ServiceCost{Role: name, Region: role.Region, Resource: d.Service, Cost: decimal.Zero, State: stateStart})
			}
		}
	}

	if err := m.Pusher.Push("IAM-roles-service-data", gauge); err != nil {
		return nil, err
	}
	return costs, nil
}

// instanceState returns the dashboard state of an instance, or an
// empty string for instances that are neither running nor stopped.
func (m *Mapper) instanceState(region, id string) (string, error) {
	out, err := m.ec2In(region).DescribeInstances(&ec2.DescribeInstancesInput{InstanceIds: aws.StringSlice([]string{id})})
	if err != nil {
		return "", err
	}
	for _, r := range out.Reservations {
		for _, i := range r.Instances {
			if i.State == nil {
				continue
			}
			switch aws.StringValue(i.State.Name) {
			case ec2.InstanceStateNameRunning:
				return stateStop, nil
			case ec2.InstanceStateNameStopped:
				return stateStart, nil
			}
		}
	}
	return "", nil
}

func (m *Mapper) readReport(reports *store.Store, prefix string) ([]*cur.LineItem, error) {
	key, err := reports.Latest(prefix)
	if err != nil {
		return nil, err
	}
	body, err := reports.Get(key)
	if err != nil {
		return nil, err
	}
	return cur.ReadAuto(key, body)
}

func (m *Mapper) ec2In(region string) ec2iface.EC2API {
	if m.EC2In != nil {
		return m.EC2In(region)
	}
	return m.EC2Client
}

func zoneRegion(p *ec2.Placement) string {
	if p == nil {
		return ""
	}
	return strings.TrimRight(aws.StringValue(p.AvailabilityZone), "abcdefghijklmnopqrstuvwxyz")
}

// timeSlot renders a period end date as the time of day the dashboards
// expect.
func timeSlot(end string) string {
	if len(end) < len(costquery.DateLayout) {
		return end
	}
	return end[:len(costquery.DateLayout)] + " 12:02:02"
}
