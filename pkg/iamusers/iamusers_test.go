package iamusers

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/costexplorer"
	"github.com/aws/aws-sdk-go/service/iam"
	"github.com/aws/aws-sdk-go/service/iam/iamiface"
	"github.com/aws/aws-sdk-go/service/resourcegroupstaggingapi"
	"github.com/aws/aws-sdk-go/service/resourcegroupstaggingapi/resourcegroupstaggingapiiface"
	"github.com/aws/aws-sdk-go/service/sns"
	"github.com/aws/aws-sdk-go/service/sns/snsiface"
	"github.com/lytics/slackhook"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/internal/mocks"
	"github.com/xgrid/xc3/pkg/costquery"
	"github.com/xgrid/xc3/pkg/metrics"
	"github.com/xgrid/xc3/pkg/notify"
	"github.com/xgrid/xc3/pkg/regions"
	"github.com/xgrid/xc3/pkg/store"
)

type mockIAMClient struct {
	iamiface.IAMAPI
	users []*iam.User
}

func (m *mockIAMClient) ListUsersPages(input *iam.ListUsersInput, fn func(*iam.ListUsersOutput, bool) bool) error {
	fn(&iam.ListUsersOutput{Users: m.users}, true)
	return nil
}

type mockTaggingClient struct {
	resourcegroupstaggingapiiface.ResourceGroupsTaggingAPIAPI
	owned map[string][]string
}

func (m *mockTaggingClient) GetResourcesPages(input *resourcegroupstaggingapi.GetResourcesInput, fn func(*resourcegroupstaggingapi.GetResourcesOutput, bool) bool) error {
	out := &resourcegroupstaggingapi.GetResourcesOutput{}
	for _, arn := range m.owned[aws.StringValue(input.TagFilters[0].Values[0])] {
		out.ResourceTagMappingList = append(out.ResourceTagMappingList,
			&resourcegroupstaggingapi.ResourceTagMapping{ResourceARN: aws.String(arn)})
	}
	fn(out, true)
	return nil
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
	sent []string
}

func (s *slackRecorder) Send(m *slackhook.Message) error {
	s.sent = append(s.sent, m.Text)
	return nil
}

type IAMUsersSuite struct {
	suite.Suite
	ce         *mocks.CostExplorer
	s3         *mocks.S3
	sns        *mockSNSClient
	cloudwatch *mocks.CloudWatch
	gateway    *mocks.Gateway
	slack      *slackRecorder
	tagging    *mockTaggingClient
	r          Reporter
}

func TestIAMUsersSuite(t *testing.T) {
	suite.Run(t, new(IAMUsersSuite))
}

func (suite *IAMUsersSuite) SetupTest() {
	logger := zap.NewNop()
	suite.ce = new(mocks.CostExplorer)
	suite.s3 = mocks.NewS3()
	suite.sns = &mockSNSClient{}
	suite.cloudwatch = &mocks.CloudWatch{}
	suite.gateway = mocks.NewGateway()
	suite.slack = &slackRecorder{}
	suite.tagging = &mockTaggingClient{owned: map[string][]string{
		"alice": {
			"arn:aws:ec2:eu-west-1:123456789012:instance/i-0abc",
			"arn:aws:lambda:eu-west-1:123456789012:function:resize",
		},
	}}
	suite.r = Reporter{
		Logger: logger,
		IAMClient: &mockIAMClient{users: []*iam.User{
			{UserName: aws.String("alice"), Arn: aws.String("arn:aws:iam::123456789012:user/alice"), UserId: aws.String("AIDA1")},
		}},
		TaggingIn: func(string) resourcegroupstaggingapiiface.ResourceGroupsTaggingAPIAPI {
			return suite.tagging
		},
		Costs:            &costquery.Client{Logger: logger, CostExplorer: suite.ce, Delay: time.Millisecond},
		Pusher:           &metrics.Pusher{URL: suite.gateway.URL, Logger: logger},
		Store:            &store.Store{Logger: logger, S3: suite.s3, Bucket: "xc3-metadata-storage"},
		Topic:            &notify.Topic{Logger: logger, SNSClient: suite.sns, TopicARN: "arn:aws:sns:eu-west-1:123456789012:xc3"},
		CloudWatchClient: suite.cloudwatch,
		Alerts:           &notify.Alerts{Logger: logger, Slack: &notify.Slack{Logger: logger, Client: suite.slack}},
		Names:            regions.Default(),
		Region:           "eu-west-1",
		AccountID:        "123456789012",
		Now:              func() time.Time { return time.Date(2023, 3, 15, 12, 0, 0, 0, time.UTC) },
	}
}

func (suite *IAMUsersSuite) TearDownTest() {
	suite.gateway.Close()
}

func (suite *IAMUsersSuite) putGzip(key string, v interface{}) {
	body, err := json.Marshal(v)
	suite.Require().NoError(err)
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err = zw.Write(body)
	suite.Require().NoError(err)
	suite.Require().NoError(zw.Close())
	suite.s3.Objects[key] = buf.Bytes()
}

func (suite *IAMUsersSuite) TestListUsersFromInventory() {
	suite.putGzip("iam/resources.json.gz", []map[string]string{
		{"UserName": "bob", "Arn": "arn:aws:iam::123456789012:user/bob", "UserId": "AIDA2"},
	})

	users, err := suite.r.ListUsers("inventory", "iam/resources.json.gz")
	suite.Require().NoError(err)
	suite.Equal([]User{{UserName: "bob", UserArn: "arn:aws:iam::123456789012:user/bob", UserID: "AIDA2"}}, users)

	body, ok := suite.gateway.Pushed("IAM_User_Details")
	suite.Require().True(ok)
	suite.Contains(body, "AIDA2")

	suite.Require().Len(suite.sns.published, 1)
	suite.Equal("json", aws.StringValue(suite.sns.published[0].MessageStructure))
	suite.Contains(aws.StringValue(suite.sns.published[0].Message), `\"UserArn\":\"arn:aws:iam::123456789012:user/bob\"`)
}

func (suite *IAMUsersSuite) TestListUsersLive() {
	users, err := suite.r.ListUsers("", "")
	suite.Require().NoError(err)
	suite.Require().Len(users, 1)
	suite.Equal("alice", users[0].UserName)
}

func (suite *IAMUsersSuite) TestListUsersIgnoresOtherKeys() {
	users, err := suite.r.ListUsers("inventory", "iam/roles.json.gz")
	suite.NoError(err)
	suite.Empty(users)
	suite.Empty(suite.sns.published)
}

func (suite *IAMUsersSuite) TestMapResources() {
	mapped, err := suite.r.MapResources([]string{"alice", "carol"}, []string{"eu-west-1"})
	suite.Require().NoError(err)
	suite.Require().Len(mapped, 2)
	suite.Equal([]string{"ec2:instance/i-0abc", "lambda:function:resize"}, mapped[0].ResourceList)
	suite.Equal([]string{""}, mapped[1].ResourceList)
}

func (suite *IAMUsersSuite) TestUserResourcesCost() {
	suite.ce.On("GetCostAndUsageWithResources", mock.MatchedBy(func(in *costexplorer.GetCostAndUsageWithResourcesInput) bool {
		return aws.StringValue(in.Filter.Dimensions.Values[0]) == "i-0abc" && aws.StringValue(in.Granularity) == costquery.Daily
	})).Return(mocks.ResourceResults(
		mocks.Period("2023-03-13", "2023-03-14", "1.25"),
		mocks.Period("2023-03-14", "2023-03-15", "0.75"),
	), nil)

	mapped, err := suite.r.UserResourcesCost([]User{{UserName: "alice"}})
	suite.Require().NoError(err)
	suite.Len(mapped, 1)

	body, ok := suite.gateway.Pushed("IAM_User_Resource_List_Cost_eu-west-1")
	suite.Require().True(ok)
	suite.Contains(body, "2023-03-15 12:02:02")
	suite.Contains(body, "ec2:instance/i-0abc")
	suite.Contains(body, "lambda:function:resize")
	suite.Contains(body, "eu-west-1 (Ireland)")

	body, ok = suite.gateway.Pushed("IAM_User_Total_Services_Cost_List_eu-west-1")
	suite.Require().True(ok)
	suite.Contains(body, "IAM_USER_Total_Services_Cost_List")
}

func (suite *IAMUsersSuite) TestUserCostAlert() {
	suite.s3.PutJSON(CostKey, []map[string]interface{}{
		{"IAM": "alice", "Region": "eu-west-1", "Cost": 12.5},
		{"IAM": "bob", "Region": "us-east-1", "Cost": "3"},
	})

	high, err := suite.r.UserCostAlert(decimal.NewFromInt(10))
	suite.Require().NoError(err)
	suite.Require().Len(high, 1)
	suite.Equal("alice", high[0].IAM)
	suite.Equal([]string{"IAM User: alice, Region: eu-west-1, Cost: $12.5\n"}, suite.slack.sent)
	suite.Len(suite.cloudwatch.Input, 2)
	suite.Equal("IAMCostMetrics", aws.StringValue(suite.cloudwatch.Input[1].Namespace))
}
