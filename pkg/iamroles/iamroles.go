// Package iamroles maps IAM roles to the services and resources that
// assume them and reports what those resources cost.
package iamroles

import (
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/aws/aws-sdk-go/service/iam"
	"github.com/aws/aws-sdk-go/service/iam/iamiface"
	"github.com/aws/aws-sdk-go/service/lambda/lambdaiface"
	"github.com/aws/aws-sdk-go/service/rds/rdsiface"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/internal/aws/iampolicy"
	"github.com/xgrid/xc3/pkg/costquery"
	"github.com/xgrid/xc3/pkg/invoke"
	"github.com/xgrid/xc3/pkg/metrics"
	"github.com/xgrid/xc3/pkg/regions"
	"github.com/xgrid/xc3/pkg/store"
)

const creationLayout = "2006-01-02 15:04:05"

// Mapper is shared by the IAM role functions. Each function only needs
// some of the clients. EC2In returns a client for another region and
// falls back to EC2Client when unset.
type Mapper struct {
	Logger         *zap.Logger
	IAMClient      iamiface.IAMAPI
	LambdaClient   lambdaiface.LambdaAPI
	S3Client       s3iface.S3API
	EC2Client      ec2iface.EC2API
	EC2In          func(region string) ec2iface.EC2API
	RDSClient      rdsiface.RDSAPI
	DynamoDBClient dynamodbiface.DynamoDBAPI
	Costs          *costquery.Client
	Pusher         *metrics.Pusher
	Store          *store.Store
	Invoker        *invoke.Invoker
	Names          regions.Names
	AccountID      string
	Now            func() time.Time
}

// Instance is an EC2 instance launched with one of a role's instance
// profiles.
type Instance struct {
	Region string `json:"Instance_Region"`
	ID     string `json:"Instance"`
}

// Role is a role and, once mapped, the services trusted by it and their
// resources.
type Role struct {
	RoleName       string     `json:"RoleName"`
	RoleArn        string     `json:"RoleArn"`
	CreationDate   string     `json:"CreationDate"`
	Description    string     `json:"Description"`
	Path           string     `json:"Path"`
	ServiceMapping []string   `json:"ServiceMapping"`
	LambdaFuncs    []string   `json:"LambdaFunctions,omitempty"`
	S3Buckets      []string   `json:"S3Buckets,omitempty"`
	EC2Instances   []Instance `json:"EC2Instances,omitempty"`
	RDSInstances   []string   `json:"RDSInstances,omitempty"`
	DynamoDBTables []string   `json:"DynamoDBTables,omitempty"`
}

// Payload is passed between the role functions.
type Payload struct {
	IAMRoles []*Role `json:"iam_roles"`
}

// InventoryRole is a role as written to the resources inventory.
type InventoryRole struct {
	RoleName     string `json:"RoleName"`
	Arn          string `json:"Arn"`
	Path         string `json:"Path"`
	Description  string `json:"Description"`
	RoleLastUsed struct {
		Region string `json:"Region,omitempty"`
	} `json:"RoleLastUsed"`
	AssumeRolePolicyDocument *iampolicy.Document `json:"AssumeRolePolicyDocument,omitempty"`
}

func (r InventoryRole) region() string {
	if r.RoleLastUsed.Region == "" {
		return NoRegion
	}
	return r.RoleLastUsed.Region
}

func (m *Mapper) now() time.Time {
	if m.Now != nil {
		return m.Now()
	}
	return time.Now()
}

// ListRoles returns every role in the account.
func (m *Mapper) ListRoles() ([]*Role, error) {
	var roles []*Role
	err := m.IAMClient.ListRolesPages(&iam.ListRolesInput{}, func(page *iam.ListRolesOutput, lastPage bool) bool {
		for _, r := range page.Roles {
			roles = append(roles, &Role{
				RoleName:     aws.StringValue(r.RoleName),
				RoleArn:      aws.StringValue(r.Arn),
				CreationDate: aws.TimeValue(r.CreateDate).Format(creationLayout),
				Description:  aws.StringValue(r.Description),
				Path:         aws.StringValue(r.Path),
			})
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrap(err, "error fetching IAM role details")
	}
	return roles, nil
}

// CollectRoles lists the roles and hands them to the mapping function.
func (m *Mapper) CollectRoles(mappingFunction string) ([]*Role, error) {
	roles, err := m.ListRoles()
	if err != nil {
		return nil, err
	}
	if err := m.Invoker.Async(mappingFunction, Payload{IAMRoles: roles}); err != nil {
		return nil, err
	}
	return roles, nil
}

// AllRoles reports the roles in the gzipped inventory at key in bucket
// with the region they were last used in, and hands the inventory
// records to the service mapping function. Keys that are not resource
// inventories yield no roles.
func (m *Mapper) AllRoles(bucket, key, mappingFunction string) ([]InventoryRole, error) {
	stored := []InventoryRole{}
	if strings.Contains(key, "resources") {
		if err := m.Store.WithBucket(bucket).GetGzipJSON(key, &stored); err != nil {
			m.Logger.Error("Error getting object. Make sure they exist and your bucket is in the same region as this function.",
				zap.String("bucket", bucket), zap.String("key", key), zap.Error(err))
			return nil, err
		}
	}

	if err := m.Invoker.Async(mappingFunction, stored); err != nil {
		return nil, errors.Wrap(err, "error invoking iam role service mapping function")
	}

	gauge := metrics.NewGaugeVec("IAM_Role_All", "XC3 All IAM Roles",
		"iam_role_all", "iam_role_all_region", "iam_role_all_account")
	for _, s := range stored {
		gauge.WithLabelValues(s.RoleName, m.Names.Display(s.region()), m.AccountID).Set(0)
	}
	if err := m.Pusher.Push("IAM-roles-all", gauge); err != nil {
		return nil, err
	}
	return stored, nil
}
