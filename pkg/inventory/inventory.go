// Package inventory backs the custom dashboard: it lists the instances
// of a region with their state and cost, and starts or stops them.
package inventory

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/aws/aws-sdk-go/service/resourcegroupstaggingapi"
	"github.com/aws/aws-sdk-go/service/resourcegroupstaggingapi/resourcegroupstaggingapiiface"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/internal/response"
	"github.com/xgrid/xc3/pkg/costquery"
	"github.com/xgrid/xc3/pkg/invoke"
	"github.com/xgrid/xc3/pkg/resourcearn"
)

const (
	costDays = 14

	// StatusStopped is the state that makes StateChange start an
	// instance.
	StatusStopped = "stopped"
)

var validate = validator.New()

// Inventory is shared by the dashboard functions.
type Inventory struct {
	Logger *zap.Logger
	// TaggingIn and EC2In return clients for a region.
	TaggingIn func(region string) resourcegroupstaggingapiiface.ResourceGroupsTaggingAPIAPI
	EC2In     func(region string) ec2iface.EC2API
	// EC2Client serves state changes.
	EC2Client ec2iface.EC2API
	Costs     *costquery.Client
	Invoker   *invoke.Invoker
	Now       func() time.Time
}

// Request asks for the instances of a region.
type Request struct {
	Region string `json:"region" validate:"required"`
}

// CostStatusRequest asks for the state and cost of instances.
type CostStatusRequest struct {
	Region       string   `json:"Region"`
	ResourceList []string `json:"ResourceList"`
}

// Row is the state and cost of an instance.
type Row struct {
	ResourceID string          `json:"Resource_ID"`
	Cost       decimal.Decimal `json:"Cost"`
	Status     string          `json:"Status"`
}

// StateRequest asks to start or stop an instance.
type StateRequest struct {
	ResourceID string `json:"resource_id" validate:"required"`
	Status     string `json:"status"`
}

func (inv *Inventory) now() time.Time {
	if inv.Now != nil {
		return inv.Now()
	}
	return time.Now()
}

// Instances returns the short names ("ec2:instance/i-0abc") of the
// instances in region.
func (inv *Inventory) Instances(region string) ([]string, error) {
	var names []string
	err := inv.TaggingIn(region).GetResourcesPages(&resourcegroupstaggingapi.GetResourcesInput{
		ResourceTypeFilters: aws.StringSlice([]string{"ec2:instance"}),
	}, func(page *resourcegroupstaggingapi.GetResourcesOutput, lastPage bool) bool {
		for _, m := range page.ResourceTagMappingList {
			names = append(names, resourcearn.Short(aws.StringValue(m.ResourceARN)))
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to list instances in %s", region)
	}
	return names, nil
}

// Resources lists the instances of the requested region and asks
// costStatusFunction for their state and cost.
func (inv *Inventory) Resources(req *Request, costStatusFunction string) ([]Row, error) {
	if err := validate.Struct(req); err != nil {
		return nil, errors.Wrap(err, "invalid inventory request")
	}
	names, err := inv.Instances(req.Region)
	if err != nil {
		return nil, err
	}

	var resp response.Response
	err = inv.Invoker.Sync(costStatusFunction, CostStatusRequest{Region: req.Region, ResourceList: names}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("%s responded with status %d: %s", costStatusFunction, resp.StatusCode, resp.Body)
	}
	var rows []Row
	if err := json.Unmarshal([]byte(resp.Body), &rows); err != nil {
		return nil, errors.Wrapf(err, "unable to decode response from %s", costStatusFunction)
	}
	return rows, nil
}

func (inv *Inventory) instanceState(client ec2iface.EC2API, id string) (string, error) {
	out, err := client.DescribeInstances(&ec2.DescribeInstancesInput{InstanceIds: aws.StringSlice([]string{id})})
	if err != nil {
		return "", errors.Wrapf(err, "unable to describe %s", id)
	}
	for _, r := range out.Reservations {
		for _, i := range r.Instances {
			if i.State != nil {
				return aws.StringValue(i.State.Name), nil
			}
		}
	}
	return "", errors.Errorf("instance %s not found", id)
}

func (inv *Inventory) instanceCost(id string) (decimal.Decimal, error) {
	q := costquery.LastDays(inv.now(), costDays).Query(costquery.Monthly)
	q.Filter = costquery.Dimension(costquery.DimensionResourceID, id)
	q.WithResources = true
	results, err := inv.Costs.Results(q)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "unable to get cost of %s", id)
	}
	return costquery.Total(results, costquery.UnblendedCost), nil
}

// CostStatus returns the state and last 14 days cost of each instance.
// An empty list yields a single empty row.
func (inv *Inventory) CostStatus(req *CostStatusRequest) ([]Row, error) {
	if len(req.ResourceList) == 0 {
		return []Row{{}}, nil
	}
	client := inv.EC2In(req.Region)
	rows := make([]Row, 0, len(req.ResourceList))
	for _, name := range req.ResourceList {
		id := resourcearn.ResourceID(name)
		state, err := inv.instanceState(client, id)
		if err != nil {
			return nil, err
		}
		cost, err := inv.instanceCost(id)
		if err != nil {
			return nil, err
		}
		rows = append(rows, Row{ResourceID: id, Cost: cost, Status: state})
	}
	return rows, nil
}

// StateChange starts a stopped instance and stops any other.
func (inv *Inventory) StateChange(req *StateRequest) (interface{}, error) {
	if err := validate.Struct(req); err != nil {
		return nil, errors.Wrap(err, "invalid state change request")
	}
	ids := aws.StringSlice([]string{req.ResourceID})
	if req.Status == StatusStopped {
		out, err := inv.EC2Client.StartInstances(&ec2.StartInstancesInput{InstanceIds: ids})
		if err != nil {
			return nil, errors.Wrapf(err, "unable to start %s", req.ResourceID)
		}
		inv.Logger.Info("Started instance", zap.String("instance", req.ResourceID))
		return out, nil
	}
	out, err := inv.EC2Client.StopInstances(&ec2.StopInstancesInput{InstanceIds: ids})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to stop %s", req.ResourceID)
	}
	inv.Logger.Info("Stopped instance", zap.String("instance", req.ResourceID))
	return out, nil
}
