package feduser

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/costexplorer"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/aws/aws-sdk-go/service/iam"
	"github.com/aws/aws-sdk-go/service/iam/iamiface"
	"github.com/aws/aws-sdk-go/service/lambda"
	"github.com/aws/aws-sdk-go/service/resourcegroupstaggingapi"
	"github.com/aws/aws-sdk-go/service/resourcegroupstaggingapi/resourcegroupstaggingapiiface"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"
	"github.com/lytics/slackhook"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/internal/mocks"
	"github.com/xgrid/xc3/pkg/costquery"
	"github.com/xgrid/xc3/pkg/invoke"
	"github.com/xgrid/xc3/pkg/metrics"
	"github.com/xgrid/xc3/pkg/notify"
	"github.com/xgrid/xc3/pkg/store"
)

func trustPolicy(principal string) *string {
	return aws.String(url.QueryEscape(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":` +
		principal + `,"Action":"sts:AssumeRoleWithSAML"}]}`))
}

type mockIAMClient struct {
	iamiface.IAMAPI
}

func (m *mockIAMClient) ListRolesPages(input *iam.ListRolesInput, fn func(*iam.ListRolesOutput, bool) bool) error {
	fn(&iam.ListRolesOutput{Roles: []*iam.Role{
		{RoleName: aws.String("okta-admin"), AssumeRolePolicyDocument: trustPolicy(`{"Federated":"arn:aws:iam::210987654321:saml-provider/okta"}`)},
		{RoleName: aws.String("okta-dev"), AssumeRolePolicyDocument: trustPolicy(`{"Federated":"arn:aws:iam::210987654321:saml-provider/okta"}`)},
		{RoleName: aws.String("lambda-exec"), AssumeRolePolicyDocument: trustPolicy(`{"Service":"lambda.amazonaws.com"}`)},
	}}, true)
	return nil
}

type mockTaggingClient struct {
	resourcegroupstaggingapiiface.ResourceGroupsTaggingAPIAPI
}

func tags(kv ...string) []*resourcegroupstaggingapi.Tag {
	var t []*resourcegroupstaggingapi.Tag
	for i := 0; i < len(kv); i += 2 {
		t = append(t, &resourcegroupstaggingapi.Tag{Key: aws.String(kv[i]), Value: aws.String(kv[i+1])})
	}
	return t
}

func (m *mockTaggingClient) GetResourcesPages(input *resourcegroupstaggingapi.GetResourcesInput, fn func(*resourcegroupstaggingapi.GetResourcesOutput, bool) bool) error {
	fn(&resourcegroupstaggingapi.GetResourcesOutput{ResourceTagMappingList: []*resourcegroupstaggingapi.ResourceTagMapping{
		{
			ResourceARN: aws.String("arn:aws:ec2:eu-west-1:210987654321:instance/i-0abc"),
			Tags:        tags("Owner", "alice", "Creator", "alice", "Project", "xc3"),
		},
		{
			ResourceARN: aws.String("arn:aws:s3:::xc3-reports"),
			Tags:        tags("Owner", "alice"),
		},
	}}, true)
	return nil
}

type mockS3Client struct {
	*mocks.S3
}

func (m *mockS3Client) ListBuckets(input *s3.ListBucketsInput) (*s3.ListBucketsOutput, error) {
	return &s3.ListBucketsOutput{Buckets: []*s3.Bucket{{Name: aws.String("tagged")}, {Name: aws.String("bare")}}}, nil
}

func (m *mockS3Client) GetBucketTagging(input *s3.GetBucketTaggingInput) (*s3.GetBucketTaggingOutput, error) {
	if aws.StringValue(input.Bucket) == "bare" {
		return nil, awserr.New("NoSuchTagSet", "The TagSet does not exist", nil)
	}
	return &s3.GetBucketTaggingOutput{TagSet: []*s3.Tag{{Key: aws.String("Owner"), Value: aws.String("bob")}}}, nil
}

type mockEC2Client struct {
	ec2iface.EC2API
}

func (m *mockEC2Client) DescribeInstancesPages(input *ec2.DescribeInstancesInput, fn func(*ec2.DescribeInstancesOutput, bool) bool) error {
	fn(&ec2.DescribeInstancesOutput{Reservations: []*ec2.Reservation{
		{OwnerId: aws.String("210987654321"), Instances: []*ec2.Instance{{InstanceId: aws.String("i-0bare")}}},
		{OwnerId: aws.String("999999999999"), Instances: []*ec2.Instance{{InstanceId: aws.String("i-0other")}}},
		{OwnerId: aws.String("210987654321"), Instances: []*ec2.Instance{{
			InstanceId: aws.String("i-0tagged"),
			Tags:       []*ec2.Tag{{Key: aws.String("Name"), Value: aws.String("web")}},
		}}},
	}}, true)
	return nil
}

func (m *mockEC2Client) DescribeVpcsPages(input *ec2.DescribeVpcsInput, fn func(*ec2.DescribeVpcsOutput, bool) bool) error {
	fn(&ec2.DescribeVpcsOutput{Vpcs: []*ec2.Vpc{{VpcId: aws.String("vpc-0bare"), OwnerId: aws.String("210987654321")}}}, true)
	return nil
}

type mockLambdaClient struct {
	*mocks.Lambda
}

func (m *mockLambdaClient) ListFunctionsPages(input *lambda.ListFunctionsInput, fn func(*lambda.ListFunctionsOutput, bool) bool) error {
	fn(&lambda.ListFunctionsOutput{Functions: []*lambda.FunctionConfiguration{
		{FunctionName: aws.String("bare"), FunctionArn: aws.String("arn:aws:lambda:eu-west-1:210987654321:function:bare")},
		{FunctionName: aws.String("tagged"), FunctionArn: aws.String("arn:aws:lambda:eu-west-1:210987654321:function:tagged")},
	}}, true)
	return nil
}

func (m *mockLambdaClient) ListTags(input *lambda.ListTagsInput) (*lambda.ListTagsOutput, error) {
	if strings.HasSuffix(aws.StringValue(input.Resource), ":tagged") {
		return &lambda.ListTagsOutput{Tags: aws.StringMap(map[string]string{"Owner": "bob"})}, nil
	}
	return &lambda.ListTagsOutput{}, nil
}

type mockSNSClient struct {
	snsiface.SNSAPI
	published []*sns.PublishInput
}

func (m *mockSNSClient) Publish(input *sns.PublishInput) (*sns.PublishOutput, error) {
	m.published = append(m.published, input)
	return &sns.PublishOutput{}, nil
}

type slackRecorder struct {
	messages []*slackhook.Message
}

func (s *slackRecorder) Send(m *slackhook.Message) error {
	s.messages = append(s.messages, m)
	return nil
}

type FedUserSuite struct {
	suite.Suite
	ce      *mocks.CostExplorer
	s3      *mocks.S3
	lambda  *mockLambdaClient
	sns     *mockSNSClient
	slack   *slackRecorder
	gateway *mocks.Gateway
	s       Scanner
}

func TestFedUserSuite(t *testing.T) {
	suite.Run(t, new(FedUserSuite))
}

func (suite *FedUserSuite) SetupTest() {
	logger := zap.NewNop()
	suite.ce = new(mocks.CostExplorer)
	suite.s3 = mocks.NewS3()
	suite.lambda = &mockLambdaClient{Lambda: &mocks.Lambda{}}
	suite.sns = &mockSNSClient{}
	suite.slack = &slackRecorder{}
	suite.gateway = mocks.NewGateway()
	suite.s = Scanner{
		Logger:        logger,
		IAMClient:     &mockIAMClient{},
		TaggingClient: &mockTaggingClient{},
		S3Client:      &mockS3Client{S3: suite.s3},
		EC2Client:     &mockEC2Client{},
		LambdaClient:  suite.lambda,
		Costs:         &costquery.Client{Logger: logger, CostExplorer: suite.ce, Delay: time.Millisecond},
		Pusher:        &metrics.Pusher{URL: suite.gateway.URL, Logger: logger},
		Store:         &store.Store{Logger: logger, S3: suite.s3, Bucket: "xc3-metadata-storage"},
		Invoker:       &invoke.Invoker{Logger: logger, LambdaClient: suite.lambda},
		Topic:         &notify.Topic{Logger: logger, SNSClient: suite.sns, TopicARN: "arn:aws:sns:eu-west-1:123456789012:untagged"},
		Slack:         &notify.Slack{Logger: logger, Channel: "#untagged-resources", Client: suite.slack},
		Region:        "eu-west-1",
		Now:           func() time.Time { return time.Date(2024, 4, 3, 9, 0, 0, 0, time.UTC) },
	}
}

func (suite *FedUserSuite) TearDownTest() {
	suite.gateway.Close()
}

func (suite *FedUserSuite) TestListResources() {
	all, err := suite.s.ListResources("xc3-untagged")
	suite.Require().NoError(err)
	suite.Require().Contains(all, "210987654321")
	suite.Len(all, 1)

	resources := all["210987654321"]
	suite.Require().Len(resources, 2)
	suite.True(resources[0].Compliance)
	suite.False(resources[1].Compliance)

	suite.Contains(string(suite.s3.Objects["fed-resources/2024/04/03/resources.json"]), `"body":{"210987654321":[`)
	payloads := suite.lambda.Payloads("xc3-untagged")
	suite.Require().Len(payloads, 1)
	suite.Equal([]interface{}{"210987654321"}, payloads[0]["accId"])
}

func (suite *FedUserSuite) TestScanUntagged() {
	suite.s3.PutJSON(ResourcesKey(suite.s.now()), Inventory{Body: map[string][]Resource{
		"210987654321": {
			{ResourceARN: "arn:aws:s3:::xc3-reports", Compliance: false},
			{ResourceARN: "arn:aws:ec2:eu-west-1:210987654321:instance/i-0abc", Compliance: true},
		},
	}})

	n, err := suite.s.ScanUntagged(&UntaggedRequest{AccountIDs: []string{"210987654321"}}, suite.s.Store, "210987654321", "xc3-notify")
	suite.Require().NoError(err)
	suite.Equal([]string{
		"Resource Type: S3 Bucket\n Resource Name: bare\n Resource ARN: arn:aws:s3:::bare",
		"Resource Type: EC2 Instance\n Resource Name: i-0bare\n Resource ARN: arn:aws:ec2:eu-west-1:210987654321:instance/i-0bare",
		"Resource Type: VPC\n Resource Name: vpc-0bare\n Resource ARN: arn:aws:ec2:eu-west-1:210987654321:vpc/vpc-0bare",
		"Resource Type: Lambda Function\n Resource Name: bare\n Resource ARN: arn:aws:lambda:eu-west-1:210987654321:function:bare",
	}, n.Untagged)
	suite.Equal([]string{"ResourceArn: arn:aws:s3:::xc3-reports"}, n.NonCompliant)
	suite.Len(suite.lambda.Payloads("xc3-notify"), 1)
}

func (suite *FedUserSuite) TestNotify() {
	msg, err := suite.s.Notify(&Notification{
		Untagged:     []string{"Resource Type: VPC\n Resource Name: vpc-1\n Resource ARN: arn"},
		NonCompliant: []string{"ResourceArn: arn:aws:s3:::reports"},
	})
	suite.Require().NoError(err)
	suite.True(strings.HasPrefix(msg, "Dear Team and Administrator,\n\n"))
	suite.Contains(msg, "\n\n\n1. Resource Type: VPC\n Resource Name: vpc-1\n Resource ARN: arn\n\n")
	suite.Contains(msg, "\nFollowing are the resources without proper tags for cost allocation:\n1. ResourceArn: arn:aws:s3:::reports\n\n")
	suite.True(strings.HasSuffix(msg, "Thank you for your attention to this matter.\n\nBest Regards"))

	suite.Require().Len(suite.sns.published, 1)
	suite.Equal(NotificationSubject, aws.StringValue(suite.sns.published[0].Subject))
	suite.Require().Len(suite.slack.messages, 1)
	suite.Equal("#untagged-resources", suite.slack.messages[0].Channel)
}

func (suite *FedUserSuite) TestNotifyWithoutNonCompliant() {
	msg, err := suite.s.Notify(&Notification{})
	suite.Require().NoError(err)
	suite.NotContains(msg, "Following are the resources")
}

func (suite *FedUserSuite) TestResourceCosts() {
	suite.s3.PutJSON("fed-resources/2024/04/03/resources.json", Inventory{Body: map[string][]Resource{
		"210987654321": {
			{ResourceARN: "arn:aws:ec2:eu-west-1:210987654321:instance/i-0abc", Compliance: true},
			{ResourceARN: "arn:aws:s3:::xc3-reports", Compliance: true},
			{ResourceARN: "arn:aws:lambda:eu-west-1:210987654321:function:bare", Compliance: false},
		},
	}})
	suite.ce.On("GetCostAndUsageWithResources", mock.MatchedBy(func(in *costexplorer.GetCostAndUsageWithResourcesInput) bool {
		return aws.StringValue(in.Filter.Dimensions.Values[0]) == "arn:aws:ec2:eu-west-1:210987654321:instance/i-0abc"
	})).Return(mocks.ResourceResults(
		mocks.Period("2024-03-20", "2024-03-21", "1.5"),
		mocks.Period("2024-03-21", "2024-03-22", "2"),
	), nil)
	suite.ce.On("GetCostAndUsageWithResources", mock.Anything).Return(mocks.ResourceResults(), nil)

	rows, err := suite.s.ResourceCosts("xc3-metadata-storage", "fed-resources/2024/04/03/resources.json")
	suite.Require().NoError(err)
	suite.Require().Len(rows, 2)
	suite.Equal("3.5", rows[0].Cost.String())
	suite.Equal("eu-west-1", rows[0].Region)
	suite.Equal("ec2", rows[0].Resource)
	suite.Equal("", rows[1].Region)

	suite.Contains(string(suite.s3.Objects[CostKey(suite.s.now())]), `"ec2":[`)
	_, ok := suite.gateway.Pushed("FED_USER_Resource_Cost_List")
	suite.True(ok)
}

func (suite *FedUserSuite) TestResourceCostsRecordsFailure() {
	_, err := suite.s.ResourceCosts("xc3-metadata-storage", "fed-resources/missing.json")
	suite.Error(err)
	suite.Contains(string(suite.s3.Objects[CostKey(suite.s.now())]), `"data":`)
}
