package tagging

import (
	"reflect"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/aws/aws-sdk-go/service/resourcegroupstaggingapi"
	"github.com/aws/aws-sdk-go/service/resourcegroupstaggingapi/resourcegroupstaggingapiiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/internal/mocks"
	"github.com/xgrid/xc3/pkg/invoke"
	"github.com/xgrid/xc3/pkg/metrics"
	"github.com/xgrid/xc3/pkg/regions"
)

type mockEC2Client struct {
	ec2iface.EC2API
	codes []string
}

func (m *mockEC2Client) DescribeRegions(*ec2.DescribeRegionsInput) (*ec2.DescribeRegionsOutput, error) {
	codes := m.codes
	if codes == nil {
		codes = []string{"us-east-1", "eu-west-1", "ap-south-1"}
	}
	out := &ec2.DescribeRegionsOutput{}
	for _, code := range codes {
		out.Regions = append(out.Regions, &ec2.Region{RegionName: aws.String(code)})
	}
	return out, nil
}

type mockTaggingClient struct {
	resourcegroupstaggingapiiface.ResourceGroupsTaggingAPIAPI
	mappings []*resourcegroupstaggingapi.ResourceTagMapping
	err      error
}

func (m *mockTaggingClient) GetResourcesPages(input *resourcegroupstaggingapi.GetResourcesInput, fn func(*resourcegroupstaggingapi.GetResourcesOutput, bool) bool) error {
	if m.err != nil {
		return m.err
	}
	fn(&resourcegroupstaggingapi.GetResourcesOutput{ResourceTagMappingList: m.mappings}, true)
	return nil
}

func newChecker(t *testing.T, clients map[string]*mockTaggingClient) (*Checker, *mocks.Lambda, *mocks.Gateway) {
	logger := zap.NewNop()
	lambda := &mocks.Lambda{}
	gateway := mocks.NewGateway()
	t.Cleanup(gateway.Close)
	return &Checker{
		Logger:    logger,
		EC2Client: &mockEC2Client{},
		TaggingIn: func(region string) resourcegroupstaggingapiiface.ResourceGroupsTaggingAPIAPI {
			if c, ok := clients[region]; ok {
				return c
			}
			return &mockTaggingClient{}
		},
		Names:        regions.Default(),
		Invoker:      &invoke.Invoker{Logger: logger, LambdaClient: lambda},
		Pusher:       &metrics.Pusher{URL: gateway.URL, Logger: logger},
		RequiredTags: []string{"Owner", "Project"},
		AccountID:    "123456789012",
	}, lambda, gateway
}

func TestParseTagList(t *testing.T) {
	cases := map[string][]string{
		`['Owner', 'Project']`: {"Owner", "Project"},
		`["Owner","Creator"]`:  {"Owner", "Creator"},
		"Owner, Project":       {"Owner", "Project"},
		"":                     nil,
	}
	for in, want := range cases {
		if got := ParseTagList(in); !reflect.DeepEqual(got, want) {
			t.Errorf("ParseTagList(%q) = %v, \nwant = %v", in, got, want)
		}
	}
}

func TestCollect(t *testing.T) {
	c, lambda, _ := newChecker(t, map[string]*mockTaggingClient{
		"eu-west-1": {mappings: []*resourcegroupstaggingapi.ResourceTagMapping{
			{ResourceARN: aws.String("arn:aws:s3:::reports")},
		}},
		"us-east-1": {mappings: []*resourcegroupstaggingapi.ResourceTagMapping{
			{
				ResourceARN: aws.String("arn:aws:ec2:us-east-1:123456789012:instance/i-0abc"),
				Tags:        []*resourcegroupstaggingapi.Tag{{Key: aws.String("Owner"), Value: aws.String("alice")}},
			},
		}},
	})

	found, err := c.Collect("xc3-resource-parsing")
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, "us-east-1 (N. Virginia)", found[0].Region)
	assert.Equal(t, "eu-west-1 (Ireland)", found[1].Region)
	assert.Equal(t, []Tag{}, found[1].ResourceList[0].Tags)
	assert.Len(t, lambda.Calls, 1)
}

func TestCollectWithoutParsingFunction(t *testing.T) {
	c, lambda, _ := newChecker(t, map[string]*mockTaggingClient{
		"eu-west-1": {mappings: []*resourcegroupstaggingapi.ResourceTagMapping{
			{ResourceARN: aws.String("arn:aws:s3:::reports")},
		}},
	})
	found, err := c.Collect("")
	require.NoError(t, err)
	assert.Len(t, found, 1)
	assert.Empty(t, lambda.Calls)
}

func TestCollectUnknownRegion(t *testing.T) {
	c, _, _ := newChecker(t, map[string]*mockTaggingClient{
		"xx-test-1": {mappings: []*resourcegroupstaggingapi.ResourceTagMapping{
			{ResourceARN: aws.String("arn:aws:s3:::reports")},
		}},
	})
	c.EC2Client = &mockEC2Client{codes: []string{"xx-test-1"}}

	found, err := c.Collect("")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "xx-test-1 (Unknown)", found[0].Region)
}

func TestCollectFailsOnRegionError(t *testing.T) {
	c, lambda, _ := newChecker(t, map[string]*mockTaggingClient{
		"ap-south-1": {err: awserr.New("AccessDeniedException", "denied", nil)},
	})
	_, err := c.Collect("xc3-resource-parsing")
	assert.Error(t, err)
	assert.Empty(t, lambda.Calls)
}

func TestParse(t *testing.T) {
	c, _, gateway := newChecker(t, nil)
	untagged, err := c.Parse([]RegionResources{{
		Region: "us-east-1 (N. Virginia)",
		ResourceList: []Resource{
			{ResourceARN: "arn:aws:ec2:us-east-1:123456789012:instance/i-0abc", Tags: []Tag{{Key: "Owner", Value: "alice"}}},
			{ResourceARN: "arn:aws:ec2:us-east-1:123456789012:volume/vol-0abc", Tags: []Tag{{Key: "Name", Value: "data"}}},
			{ResourceARN: "arn:aws:lambda:us-east-1:123456789012:function:api"},
			{ResourceARN: "not-an-arn"},
		},
	}})
	require.NoError(t, err)
	want := map[string][]string{
		"us-east-1 (N. Virginia)": {"ec2:volume/vol-0abc", "lambda:function:api"},
	}
	if !reflect.DeepEqual(untagged, want) {
		t.Errorf("Parse() = %v, \nwant = %v", untagged, want)
	}
	body, ok := gateway.Pushed("TaggingResourceList")
	require.True(t, ok)
	assert.Contains(t, body, "lambda:function:api")
}
