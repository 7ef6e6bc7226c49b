package main

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"
	awssession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/pkg/errors"

	"github.com/xgrid/xc3/internal/response"
	"github.com/xgrid/xc3/pkg/inventory"
)

// InventoryOptions configure the dashboard backend functions.
type InventoryOptions struct {
	CostStatusFunction string `long:"cost-status-function" description:"The function reporting instance cost and state." required:"false" env:"lambda_function_name"`
}

func (o InventoryOptions) inventory(sess *awssession.Session) *inventory.Inventory {
	return &inventory.Inventory{
		Logger:    logger,
		TaggingIn: taggingIn(sess),
		EC2In:     ec2In(sess),
		EC2Client: ec2.New(sess),
		Costs:     makeCosts(sess),
		Invoker:   makeInvoker(sess),
	}
}

// apiResponse answers an API Gateway request with the CORS headers the
// dashboard needs.
func apiResponse(v interface{}, err error) (events.APIGatewayProxyResponse, error) {
	res := response.OK(v)
	if err != nil {
		res = response.Error(err)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: res.StatusCode,
		Headers:    response.CORS,
		Body:       res.Body,
	}, nil
}

func decodeBody(req events.APIGatewayProxyRequest, v interface{}) error {
	if err := json.Unmarshal([]byte(req.Body), v); err != nil {
		return errors.Wrap(err, "invalid request body")
	}
	return nil
}

type resourceInventoryCommand struct {
	InventoryOptions
	InventoryRegion string `long:"inventory-region" description:"The region to list." required:"false"`
}

func (c *resourceInventoryCommand) Execute(args []string) error {
	inv := c.inventory(makeSession())
	handler := func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		var body inventory.Request
		if err := decodeBody(req, &body); err != nil {
			return apiResponse(nil, err)
		}
		return apiResponse(inv.Resources(&body, c.CostStatusFunction))
	}
	return start(handler, func() error {
		ids, err := inv.Instances(c.InventoryRegion)
		if err != nil {
			return err
		}
		return logResult(inv.CostStatus(&inventory.CostStatusRequest{Region: c.InventoryRegion, ResourceList: ids}))
	})
}

type resourceCostStatusCommand struct {
	InventoryOptions
}

func (c *resourceCostStatusCommand) Execute(args []string) error {
	inv := c.inventory(makeSession())
	handler := func(ctx context.Context, req inventory.CostStatusRequest) (response.Response, error) {
		rows, err := inv.CostStatus(&req)
		if err != nil {
			return response.Error(err), nil
		}
		return response.OK(rows), nil
	}
	return start(handler, func() error {
		logger.Info("resource-cost-status is invoked by resource-inventory")
		return nil
	})
}

type resourceStateChangeCommand struct {
	InventoryOptions
	ResourceID string `long:"resource-id" description:"The instance to start or stop." required:"false"`
	Status     string `long:"status" description:"The instance's current state." required:"false"`
}

func (c *resourceStateChangeCommand) Execute(args []string) error {
	inv := c.inventory(makeSession())
	handler := func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		var body inventory.StateRequest
		if err := decodeBody(req, &body); err != nil {
			return apiResponse(nil, err)
		}
		return apiResponse(inv.StateChange(&body))
	}
	return start(handler, func() error {
		return logResult(inv.StateChange(&inventory.StateRequest{ResourceID: c.ResourceID, Status: c.Status}))
	})
}
