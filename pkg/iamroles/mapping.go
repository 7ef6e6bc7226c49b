package iamroles

import (
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/iam"
	"github.com/aws/aws-sdk-go/service/lambda"
	"github.com/aws/aws-sdk-go/service/rds"
	"github.com/aws/aws-sdk-go/service/s3"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/internal/aws/iampolicy"
)

// NoServices marks a role that no service may assume.
const NoServices = "No Affiliated Services"

// MapServices fills in the services trusted by each role and the
// resources of those services that belong to it. Lookup failures are
// logged and leave the role with an empty service list.
func (m *Mapper) MapServices(roles []*Role) []*Role {
	for _, role := range roles {
		out, err := m.IAMClient.GetRole(&iam.GetRoleInput{RoleName: aws.String(role.RoleName)})
		if err != nil {
			m.Logger.Error("Error fetching IAM role details", zap.String("role", role.RoleName), zap.Error(err))
			role.ServiceMapping = []string{}
			continue
		}
		doc, err := iampolicy.Decode(aws.StringValue(out.Role.AssumeRolePolicyDocument))
		if err != nil {
			m.Logger.Error("Unable to parse trust policy", zap.String("role", role.RoleName), zap.Error(err))
			role.ServiceMapping = []string{}
			continue
		}

		role.ServiceMapping = nil
		for _, service := range doc.Services() {
			switch service {
			case "lambda":
				role.LambdaFuncs = m.lambdaFunctions(role.RoleName)
			case "s3":
				role.S3Buckets = m.buckets(role.RoleName)
			case "ec2":
				role.EC2Instances = m.instances(role.RoleName)
			case "rds":
				role.RDSInstances = m.databases(role.RoleName)
			case "dynamodb":
				role.DynamoDBTables = m.tables(role.RoleName)
			}
			role.ServiceMapping = append(role.ServiceMapping, service)
		}
		if len(role.ServiceMapping) == 0 {
			role.ServiceMapping = []string{NoServices}
		}
	}
	return roles
}

// MapAndForward maps the roles and hands them to the cost function.
func (m *Mapper) MapAndForward(roles []*Role, costFunction string) ([]*Role, error) {
	mapped := m.MapServices(roles)
	if err := m.Invoker.Async(costFunction, Payload{IAMRoles: mapped}); err != nil {
		return nil, err
	}
	return mapped, nil
}

func (m *Mapper) lambdaFunctions(roleName string) []string {
	var arns []string
	err := m.LambdaClient.ListFunctionsPages(&lambda.ListFunctionsInput{FunctionVersion: aws.String(lambda.FunctionVersionAll)},
		func(page *lambda.ListFunctionsOutput, lastPage bool) bool {
			for _, f := range page.Functions {
				if strings.Contains(aws.StringValue(f.Role), roleName) {
					arns = append(arns, aws.StringValue(f.FunctionArn))
				}
			}
			return true
		})
	if err != nil {
		m.Logger.Error("Error fetching Lambda functions for role", zap.String("role", roleName), zap.Error(err))
		return nil
	}
	return arns
}

func (m *Mapper) buckets(roleName string) []string {
	out, err := m.S3Client.ListBuckets(&s3.ListBucketsInput{})
	if err != nil {
		m.Logger.Error("Error fetching S3 buckets for role", zap.String("role", roleName), zap.Error(err))
		return nil
	}
	var names []string
	for _, b := range out.Buckets {
		if strings.Contains(aws.StringValue(b.Name), roleName) {
			names = append(names, aws.StringValue(b.Name))
		}
	}
	return names
}

func (m *Mapper) instanceProfiles(roleName string) ([]*iam.InstanceProfile, error) {
	var profiles []*iam.InstanceProfile
	err := m.IAMClient.ListInstanceProfilesForRolePages(&iam.ListInstanceProfilesForRoleInput{RoleName: aws.String(roleName)},
		func(page *iam.ListInstanceProfilesForRoleOutput, lastPage bool) bool {
			profiles = append(profiles, page.InstanceProfiles...)
			return true
		})
	return profiles, err
}

func (m *Mapper) instances(roleName string) []Instance {
	profiles, err := m.instanceProfiles(roleName)
	if err != nil {
		m.Logger.Error("Error fetching EC2 instances for role", zap.String("role", roleName), zap.Error(err))
		return nil
	}
	var instances []Instance
	for _, p := range profiles {
		err := m.EC2Client.DescribeInstancesPages(&ec2.DescribeInstancesInput{
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
			m.Logger.Error("Error fetching EC2 instances for role", zap.String("role", roleName), zap.Error(err))
			return nil
		}
	}
	return instances
}

// databases lists the account's DB instances when the role has an
// instance profile.
func (m *Mapper) databases(roleName string) []string {
	profiles, err := m.instanceProfiles(roleName)
	if err != nil || len(profiles) == 0 {
		if err != nil {
			m.Logger.Error("Error fetching RDS instances for role", zap.String("role", roleName), zap.Error(err))
		}
		return nil
	}
	var ids []string
	err = m.RDSClient.DescribeDBInstancesPages(&rds.DescribeDBInstancesInput{}, func(page *rds.DescribeDBInstancesOutput, lastPage bool) bool {
		for _, db := range page.DBInstances {
			ids = append(ids, aws.StringValue(db.DBInstanceIdentifier))
		}
		return true
	})
	if err != nil {
		m.Logger.Error("Error fetching RDS instances for role", zap.String("role", roleName), zap.Error(err))
		return nil
	}
	return ids
}

func (m *Mapper) tables(roleName string) []string {
	var names []string
	err := m.DynamoDBClient.ListTablesPages(&dynamodb.ListTablesInput{}, func(page *dynamodb.ListTablesOutput, lastPage bool) bool {
		for _, t := range page.TableNames {
			if strings.Contains(aws.StringValue(t), roleName) {
				names = append(names, aws.StringValue(t))
			}
		}
		return true
	})
	if err != nil {
		m.Logger.Error("Error fetching DynamoDB tables for role", zap.String("role", roleName), zap.Error(err))
		return nil
	}
	return names
}
