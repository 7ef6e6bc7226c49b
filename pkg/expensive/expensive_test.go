package expensive

import (
	"archive/zip"
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/costexplorer"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/internal/mocks"
	"github.com/xgrid/xc3/pkg/accounts"
	"github.com/xgrid/xc3/pkg/costquery"
	"github.com/xgrid/xc3/pkg/cur"
	"github.com/xgrid/xc3/pkg/invoke"
	"github.com/xgrid/xc3/pkg/metrics"
	"github.com/xgrid/xc3/pkg/regions"
	"github.com/xgrid/xc3/pkg/store"
)

type mockEC2Client struct {
	ec2iface.EC2API
}

func (m *mockEC2Client) DescribeRegions(*ec2.DescribeRegionsInput) (*ec2.DescribeRegionsOutput, error) {
	return &ec2.DescribeRegionsOutput{Regions: []*ec2.Region{
		{RegionName: aws.String("us-east-1")},
		{RegionName: aws.String("eu-west-1")},
		{RegionName: aws.String("ap-south-1")},
	}}, nil
}

var logger = zap.NewNop()

func newExplorer(t *testing.T, ce *mocks.CostExplorer, s3 *mocks.S3, lambda *mocks.Lambda) (*Explorer, *mocks.Gateway) {
	gateway := mocks.NewGateway()
	t.Cleanup(gateway.Close)
	costs := &costquery.Client{Logger: logger, CostExplorer: ce, Delay: time.Millisecond}
	return &Explorer{
		Logger:    logger,
		EC2Client: &mockEC2Client{},
		CostsIn:   func(string) *costquery.Client { return costs },
		Names:     regions.Default(),
		Pusher:    &metrics.Pusher{URL: gateway.URL, Logger: logger},
		Store:     &store.Store{Logger: logger, S3: s3, Bucket: "xc3-metadata-storage"},
		Invoker:   &invoke.Invoker{Logger: logger, LambdaClient: lambda},
		Now:       func() time.Time { return time.Date(2023, 3, 15, 0, 0, 0, 0, time.UTC) },
	}, gateway
}

func regionFilter(region string) interface{} {
	return mock.MatchedBy(func(in *costexplorer.GetCostAndUsageInput) bool {
		return aws.StringValue(in.Filter.And[0].Dimensions.Values[0]) == region
	})
}

func TestDispatch(t *testing.T) {
	lambda := &mocks.Lambda{}
	e, _ := newExplorer(t, new(mocks.CostExplorer), mocks.NewS3(), lambda)

	err := e.Dispatch([]accounts.Detail{"123456789012-prod", "210987654321-dev"}, "xc3-expensive-services")
	require.NoError(t, err)
	payloads := lambda.Payloads("xc3-expensive-services")
	require.Len(t, payloads, 2)
	assert.Equal(t, "210987654321", payloads[1]["account_id"])
	assert.Equal(t, "210987654321-dev", payloads[1]["account_detail"])

	assert.Error(t, e.Dispatch([]accounts.Detail{"not-an-account"}, "xc3-expensive-services"))
}

func TestRegionTopServices(t *testing.T) {
	ce := new(mocks.CostExplorer)
	ce.On("GetCostAndUsage", regionFilter("us-east-1")).Return(mocks.Results(
		mocks.Period("2023-03-01", "2023-03-15", "0",
			mocks.Group("1", "AWS Lambda"),
			mocks.Group("9", "Amazon EC2"),
			mocks.Group("3", "Amazon S3"),
			mocks.Group("2", "Amazon RDS"),
			mocks.Group("8", "Amazon VPC"),
			mocks.Group("0.5", "AWS KMS")),
	), nil)
	ce.On("GetCostAndUsage", regionFilter("eu-west-1")).Return(nil, errors.New("access denied"))
	ce.On("GetCostAndUsage", regionFilter("ap-south-1")).Return(mocks.Results(
		mocks.Period("2023-03-01", "2023-03-15", "0", mocks.Group("4", "Amazon S3")),
	), nil)

	s3 := mocks.NewS3()
	e, gateway := newExplorer(t, ce, s3, &mocks.Lambda{})
	rows, err := e.RegionTopServices(&AccountRequest{AccountID: "123456789012", AccountDetail: "123456789012-prod"}, "expensive-services")
	require.NoError(t, err)

	var got []string
	for _, r := range rows {
		got = append(got, r.Region+"/"+r.Service)
	}
	want := []string{
		"us-east-1-N. Virginia/Amazon EC2",
		"us-east-1-N. Virginia/Amazon VPC",
		"us-east-1-N. Virginia/Amazon S3",
		"us-east-1-N. Virginia/Amazon RDS",
		"us-east-1-N. Virginia/AWS Lambda",
		"ap-south-1-Mumbai/Amazon S3",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("RegionTopServices() mismatch (-want +got):\n%s", diff)
	}

	_, ok := gateway.Pushed("123456789012-prod")
	assert.True(t, ok)
	stored := string(s3.Objects["expensive-services/123456789012-prod.json"])
	assert.Contains(t, stored, `{"Region":"ap-south-1-Mumbai","Service":"Amazon S3","Cost":"4"}`)
	assert.NotContains(t, stored, "Account")
}

func TestTopFromReport(t *testing.T) {
	item := func(region, product, resource, cost string) *cur.LineItem {
		return &cur.LineItem{Region: region, ProductName: product, ResourceID: resource, UnblendedCost: cost}
	}
	items := []*cur.LineItem{
		item("us-east-1", cur.EC2ProductName, "i-0abc", "4"),
		item("us-east-1", cur.EC2ProductName, "i-0def", "1"),
		item("us-east-1", cur.EC2ProductName, "vol-0abc", "2"),
		item("us-east-1", "AWS Lambda", "", "0.5"),
		item("us-east-1", "Amazon S3", "", "0.1"),
		item("us-east-1", "Amazon DynamoDB", "", "0.2"),
		item("us-east-1", "AWS Glue", "", "0.05"),
		item("eu-west-1", "Amazon S3", "", "3"),
	}

	rows := TopFromReport(items)
	want := []ServiceRow{
		{Region: "eu-west-1", Service: "Amazon S3", Cost: decimal.RequireFromString("3")},
		{Region: "us-east-1", Service: "Ec2", Cost: decimal.RequireFromString("5")},
		{Region: "us-east-1", Service: "Ec2-Others", Cost: decimal.RequireFromString("2")},
		{Region: "us-east-1", Service: "AWS Lambda", Cost: decimal.RequireFromString("0.5")},
		{Region: "us-east-1", Service: "Amazon DynamoDB", Cost: decimal.RequireFromString("0.2")},
		{Region: "us-east-1", Service: "Amazon S3", Cost: decimal.RequireFromString("0.1")},
	}
	require.Len(t, rows, len(want))
	for i := range want {
		assert.Equal(t, want[i].Region, rows[i].Region)
		assert.Equal(t, want[i].Service, rows[i].Service)
		assert.True(t, want[i].Cost.Equal(rows[i].Cost), "%s: %s", rows[i].Service, rows[i].Cost)
	}
}

func TestReportTopServices(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("report.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte("lineItem/ResourceId,lineItem/UnblendedCost,product/region,product/ProductName\ni-0abc,2.5,us-east-1,Amazon Elastic Compute Cloud\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	reports := mocks.NewS3()
	reports.Objects["report/xc3/20230301-20230401/report.csv.zip"] = buf.Bytes()
	s3 := mocks.NewS3()
	e, gateway := newExplorer(t, new(mocks.CostExplorer), s3, &mocks.Lambda{})

	rows, err := e.ReportTopServices(&store.Store{Logger: logger, S3: reports, Bucket: "cur"}, "report/", "top5")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Ec2", rows[0].Service)
	_, ok := gateway.Pushed("services_cost")
	assert.True(t, ok)
	assert.Contains(t, string(s3.Objects["top5/"+TopServicesKey]), `"Service":"Ec2"`)
}

func TestResourceBreakdown(t *testing.T) {
	s3 := mocks.NewS3()
	e, gateway := newExplorer(t, new(mocks.CostExplorer), s3, &mocks.Lambda{})

	rows, err := e.ResourceBreakdown(map[string][]ResourceRow{
		"123456789012": {{Region: "us-east-1", Service: "Ec2", ResourceID: "i-0abc", Cost: decimal.NewFromInt(3)}},
	}, "top5")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	body, ok := gateway.Pushed("resources_cost")
	require.True(t, ok)
	assert.Contains(t, body, "Resource_Cost_123456789012")
	assert.Contains(t, string(s3.Objects["top5/resource_breakdown.json"]), `"ResourceId":"i-0abc"`)
}
