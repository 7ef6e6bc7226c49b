package main

import (
	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/internal/response"
)

type command struct {
	name    string
	short   string
	command interface{}
}

var commands = []command{
	{"linked-accounts", "Store the organization's linked accounts in Parameter Store", &linkedAccountsCommand{}},

	{"total-account-cost", "Report the year to date monthly cost of every account", &totalAccountCostCommand{}},
	{"project-spend-cost", "Report the last 30 days of spend per project", &projectSpendCommand{}},
	{"project-spend-breakdown", "Report the resource costs of a project", &projectSpendBreakdownCommand{}},
	{"project-cost-breakdown", "Report the service costs of a project", &projectServicesCommand{}},
	{"services-cost", "Report the cost of services over a window", &servicesCostCommand{}},
	{"total-account-alert", "Alert when the account cost nears the budget", &accountAlertCommand{}},
	{"total-cost-by-service", "Alert on regions whose service cost exceeds the budget", &serviceBudgetCommand{}},

	{"most-expensive-service", "Ask for the expensive services of every account", &expensiveDispatchCommand{}},
	{"expensive-services-detail", "Report the top services of each region for an account", &expensiveDetailCommand{}},
	{"top-5-expensive-services", "Report the top services of each region from the cost and usage report", &topServicesCommand{}},
	{"resources-breakdown", "Report the resource costs of the top services", &resourceBreakdownCommand{}},

	{"list-iam-users", "Report IAM users and publish them for costing", &listIAMUsersCommand{}},
	{"iam-user-resources-cost", "Report the cost of resources owned by IAM users", &iamUserResourcesCostCommand{}},
	{"resource-mapping-to-iam-user", "Map owned resources to IAM users", &iamUserMappingCommand{}},
	{"iam-user-cost", "Alert on IAM users over budget", &iamUserCostCommand{}},

	{"iam-roles", "Collect IAM roles for service mapping", &iamRolesCommand{}},
	{"iam-roles-mapping", "Map IAM roles to the resources of their services", &iamRolesMappingCommand{}},
	{"iam-roles-cost", "Report the cost of resources used by IAM roles", &iamRolesCostCommand{}},
	{"iam-roles-all", "Report every IAM role of an inventory", &iamRolesAllCommand{}},
	{"iam-roles-service-mapping", "Map inventory roles to services in the region they were last used", &iamRolesServiceMappingCommand{}},
	{"iam-roles-service", "Report the cost and state of the resources of mapped roles", &iamRolesServiceCommand{}},
	{"iam-role-lambda-cost", "Report Lambda costs per IAM role from the cost and usage report", &iamRoleLambdaCostCommand{}},

	{"list-fed-user", "List resources of federated accounts", &fedUserListCommand{}},
	{"untagged-resources", "Find untagged resources of federated accounts", &untaggedCommand{}},
	{"resource-notification", "Notify about untagged resources", &resourceNotificationCommand{}},
	{"fed-user-resource-cost", "Report the cost of federated account resources", &fedUserCostCommand{}},

	{"resource-list", "Collect tagged resources of every region", &resourceListCommand{}},
	{"resource-parsing", "Report resources missing required tags", &resourceParsingCommand{}},

	{"resource-inventory", "List the instances of a region with cost and status", &resourceInventoryCommand{}},
	{"resource-cost-status", "Report the cost and state of instances", &resourceCostStatusCommand{}},
	{"resource-state-change", "Start or stop an instance", &resourceStateChangeCommand{}},

	{"cost-report-notifier", "Post cost tables to Slack", &reportCommand{}},
}

// reply turns the result of a function into its Lambda response. Errors
// are returned to the runtime.
func reply(v interface{}, err error) (response.Response, error) {
	if err != nil {
		logger.Error("function failed", zap.Error(err))
		return response.Response{}, err
	}
	return response.OK(v), nil
}

// logResult logs the result of a command line run.
func logResult(v interface{}, err error) error {
	if err != nil {
		return err
	}
	logger.Info("completed", zap.Any("result", v))
	return nil
}

// s3Object is an object named by an S3 notification.
type s3Object struct {
	bucket string
	key    string
}

// s3Objects returns the objects of an S3 notification. Notification keys
// are URL encoded, so the decoded key is used.
func s3Objects(event events.S3Event) []s3Object {
	objects := make([]s3Object, 0, len(event.Records))
	for _, record := range event.Records {
		objects = append(objects, s3Object{bucket: record.S3.Bucket.Name, key: record.S3.Object.URLDecodedKey})
	}
	return objects
}
