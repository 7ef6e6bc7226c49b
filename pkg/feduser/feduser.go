// Package feduser reports the resources of accounts reached through
// federated roles and flags the ones missing cost allocation tags.
package feduser

import (
	"sort"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/aws/aws-sdk-go/service/iam"
	"github.com/aws/aws-sdk-go/service/iam/iamiface"
	"github.com/aws/aws-sdk-go/service/lambda/lambdaiface"
	"github.com/aws/aws-sdk-go/service/resourcegroupstaggingapi"
	"github.com/aws/aws-sdk-go/service/resourcegroupstaggingapi/resourcegroupstaggingapiiface"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/internal/aws/iampolicy"
	"github.com/xgrid/xc3/pkg/costquery"
	"github.com/xgrid/xc3/pkg/invoke"
	"github.com/xgrid/xc3/pkg/metrics"
	"github.com/xgrid/xc3/pkg/notify"
	"github.com/xgrid/xc3/pkg/store"
)

// KeyPrefix is where the federated resource documents are written.
const KeyPrefix = "fed-resources"

// RequiredTags must all be present for a resource to be compliant.
var RequiredTags = []string{"Owner", "Creator", "Project"}

// ResourceTypes are the resource types listed for each account.
var ResourceTypes = []string{"s3", "lambda", "ec2:instance"}

// Scanner is shared by the federated user functions. Each function only
// needs some of the clients.
type Scanner struct {
	Logger        *zap.Logger
	IAMClient     iamiface.IAMAPI
	TaggingClient resourcegroupstaggingapiiface.ResourceGroupsTaggingAPIAPI
	S3Client      s3iface.S3API
	EC2Client     ec2iface.EC2API
	LambdaClient  lambdaiface.LambdaAPI
	Costs         *costquery.Client
	Pusher        *metrics.Pusher
	Store         *store.Store
	Invoker       *invoke.Invoker
	Topic         *notify.Topic
	Slack         *notify.Slack
	// Region the EC2 client is bound to.
	Region string
	Now    func() time.Time
}

// Resource is a tagged resource and whether it carries every required
// tag.
type Resource struct {
	ResourceARN string            `json:"ResourceARN"`
	Tags        map[string]string `json:"Tags"`
	Compliance  bool              `json:"Compliance"`
}

// Inventory is the resources document keyed by account id.
type Inventory struct {
	Body map[string][]Resource `json:"body"`
}

// UntaggedRequest names the federated accounts to scan.
type UntaggedRequest struct {
	AccountIDs []string `json:"accId"`
}

func (s *Scanner) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ResourcesKey is the day's resources document.
func ResourcesKey(t time.Time) string {
	return store.DatedKey(KeyPrefix, t, "resources.json")
}

// Compliant reports whether tags has every required tag.
func Compliant(tags map[string]string) bool {
	for _, t := range RequiredTags {
		if _, ok := tags[t]; !ok {
			return false
		}
	}
	return true
}

// FederatedAccounts returns the accounts of the identity providers
// trusted by the account's roles.
func (s *Scanner) FederatedAccounts() ([]string, error) {
	seen := map[string]bool{}
	err := s.IAMClient.ListRolesPages(&iam.ListRolesInput{}, func(page *iam.ListRolesOutput, lastPage bool) bool {
		for _, r := range page.Roles {
			doc, err := iampolicy.Decode(aws.StringValue(r.AssumeRolePolicyDocument))
			if err != nil {
				s.Logger.Warn("Skipping role with unreadable trust policy",
					zap.String("role", aws.StringValue(r.RoleName)), zap.Error(err))
				continue
			}
			if id, ok := doc.FederatedAccount(); ok {
				seen[id] = true
			}
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to list iam roles")
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// taggedResources lists the buckets, functions and instances visible to
// the tagging client. Failures are logged and yield no resources.
func (s *Scanner) taggedResources() []Resource {
	var resources []Resource
	err := s.TaggingClient.GetResourcesPages(&resourcegroupstaggingapi.GetResourcesInput{
		ResourceTypeFilters: aws.StringSlice(ResourceTypes),
	}, func(page *resourcegroupstaggingapi.GetResourcesOutput, lastPage bool) bool {
		for _, m := range page.ResourceTagMappingList {
			tags := map[string]string{}
			for _, t := range m.Tags {
				tags[aws.StringValue(t.Key)] = aws.StringValue(t.Value)
			}
			resources = append(resources, Resource{
				ResourceARN: aws.StringValue(m.ResourceARN),
				Tags:        tags,
				Compliance:  Compliant(tags),
			})
		}
		return true
	})
	if err != nil {
		s.Logger.Error("Error retrieving resources", zap.Error(err))
		return nil
	}
	return resources
}

// ListResources records the tagged resources of every federated account
// in the day's resources document and asks untaggedFunction to scan
// those accounts.
func (s *Scanner) ListResources(untaggedFunction string) (map[string][]Resource, error) {
	ids, err := s.FederatedAccounts()
	if err != nil {
		return nil, err
	}
	all := map[string][]Resource{}
	for _, id := range ids {
		all[id] = s.taggedResources()
	}
	if err := s.Store.PutJSON(ResourcesKey(s.now()), Inventory{Body: all}); err != nil {
		return nil, err
	}
	if err := s.Invoker.Sync(untaggedFunction, UntaggedRequest{AccountIDs: ids}, nil); err != nil {
		s.Logger.Error("Error invoking untagged resource function", zap.Error(err))
	}
	return all, nil
}

func sortedAccounts(body map[string][]Resource) []string {
	ids := lo.Keys(body)
	sort.Strings(ids)
	return ids
}
