// Package tagging finds resources that miss the cost allocation tags an
// organization requires.
package tagging

import (
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/aws/aws-sdk-go/service/resourcegroupstaggingapi"
	"github.com/aws/aws-sdk-go/service/resourcegroupstaggingapi/resourcegroupstaggingapiiface"
	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/pkg/invoke"
	"github.com/xgrid/xc3/pkg/metrics"
	"github.com/xgrid/xc3/pkg/regions"
	"github.com/xgrid/xc3/pkg/resourcearn"
)

const (
	defaultConcurrency = 4

	// unknownRegion names regions missing from the region names.
	unknownRegion = "Unknown"
)

// Checker is shared by the tagging compliance functions.
type Checker struct {
	Logger    *zap.Logger
	EC2Client ec2iface.EC2API
	// TaggingIn returns a tagging client for a region.
	TaggingIn    func(region string) resourcegroupstaggingapiiface.ResourceGroupsTaggingAPIAPI
	Names        regions.Names
	Invoker      *invoke.Invoker
	Pusher       *metrics.Pusher
	RequiredTags []string
	AccountID    string
	Concurrency  int
}

// Tag is a resource tag.
type Tag struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
}

// Resource is a resource and its tags.
type Resource struct {
	ResourceARN string `json:"ResourceARN"`
	Tags        []Tag  `json:"Tags"`
}

// RegionResources lists the resources of a region. Region is the display
// form "us-east-1 (N. Virginia)".
type RegionResources struct {
	Region       string     `json:"Region"`
	ResourceList []Resource `json:"ResourceList"`
}

// ParseTagList reads the required tags setting, written either as a
// list literal (["Owner", 'Project']) or comma separated.
func ParseTagList(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	var tags []string
	for _, t := range strings.Split(s, ",") {
		t = strings.Trim(strings.TrimSpace(t), `"'`)
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func (c *Checker) regionResources(code string) ([]Resource, error) {
	var resources []Resource
	err := c.TaggingIn(code).GetResourcesPages(&resourcegroupstaggingapi.GetResourcesInput{},
		func(page *resourcegroupstaggingapi.GetResourcesOutput, lastPage bool) bool {
			for _, m := range page.ResourceTagMappingList {
				r := Resource{ResourceARN: aws.StringValue(m.ResourceARN), Tags: []Tag{}}
				for _, t := range m.Tags {
					r.Tags = append(r.Tags, Tag{Key: aws.StringValue(t.Key), Value: aws.StringValue(t.Value)})
				}
				resources = append(resources, r)
			}
			return true
		})
	if err != nil {
		return nil, errors.Wrapf(err, "error in calling get_resources api in %s", code)
	}
	return resources, nil
}

// Collect lists the resources of every enabled region and hands the
// regions that have any to parsingFunction, when one is set.
func (c *Checker) Collect(parsingFunction string) ([]RegionResources, error) {
	codes, err := regions.Enabled(c.EC2Client)
	if err != nil {
		return nil, err
	}
	concurrency := c.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}

	perRegion := make([][]Resource, len(codes))
	p := pool.New().WithErrors().WithMaxGoroutines(concurrency)
	for i, code := range codes {
		i, code := i, code
		p.Go(func() error {
			resources, err := c.regionResources(code)
			perRegion[i] = resources
			return err
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	var found []RegionResources
	for i, code := range codes {
		if len(perRegion[i]) == 0 {
			continue
		}
		found = append(found, RegionResources{Region: c.Names.DisplayOr(code, unknownRegion), ResourceList: perRegion[i]})
	}
	if parsingFunction == "" {
		return found, nil
	}
	if err := c.Invoker.Async(parsingFunction, found); err != nil {
		return nil, errors.Wrap(err, "error invoking resource parsing function")
	}
	return found, nil
}

// Missing reports whether r has no tags or none of the required ones.
func (c *Checker) Missing(r Resource) bool {
	for _, t := range r.Tags {
		for _, required := range c.RequiredTags {
			if t.Key == required {
				return false
			}
		}
	}
	return true
}

// Parse reports the resources of each region that miss the required
// tags, keyed by region. Resources whose ARN cannot be parsed are
// skipped.
func (c *Checker) Parse(items []RegionResources) (map[string][]string, error) {
	gauge := metrics.NewGaugeVec("TaggingResourceList", "Resource List", "resource", "region", "account_id")
	untagged := map[string][]string{}
	for _, item := range items {
		for _, r := range item.ResourceList {
			if !c.Missing(r) {
				continue
			}
			name, err := resourcearn.Parse(r.ResourceARN)
			if err != nil {
				c.Logger.Error("Invalid ARN format", zap.String("arn", r.ResourceARN), zap.Error(err))
				continue
			}
			untagged[item.Region] = append(untagged[item.Region], name)
			gauge.WithLabelValues(name, item.Region, c.AccountID).Set(0)
		}
	}
	if err := c.Pusher.Push("TaggingResourceList", gauge); err != nil {
		return nil, err
	}
	return untagged, nil
}
