package feduser

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/lambda"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/internal/aws/awserrs"
	"github.com/xgrid/xc3/pkg/resourcearn"
	"github.com/xgrid/xc3/pkg/store"
)

// Untagged is a resource without any tags.
type Untagged struct {
	Type string
	Name string
	ARN  string
}

func (u Untagged) String() string {
	return fmt.Sprintf("Resource Type: %s\n Resource Name: %s\n Resource ARN: %s", u.Type, u.Name, u.ARN)
}

// Notification is the payload of the notification function.
type Notification struct {
	Untagged     []string `json:"Payload1"`
	NonCompliant []string `json:"Payload2"`
}

func (s *Scanner) untaggedBuckets() ([]Untagged, error) {
	out, err := s.S3Client.ListBuckets(&s3.ListBucketsInput{})
	if err != nil {
		return nil, errors.Wrap(err, "unable to list buckets")
	}
	var found []Untagged
	for _, b := range out.Buckets {
		name := aws.StringValue(b.Name)
		tagging, err := s.S3Client.GetBucketTagging(&s3.GetBucketTaggingInput{Bucket: b.Name})
		switch {
		case awserrs.HasCode(err, "NoSuchTagSet"):
		case err != nil:
			s.Logger.Error("Error retrieving tags for bucket", zap.String("bucket", name), zap.Error(err))
			continue
		case len(tagging.TagSet) > 0:
			continue
		}
		found = append(found, Untagged{Type: "S3 Bucket", Name: name, ARN: "arn:aws:s3:::" + name})
	}
	return found, nil
}

func (s *Scanner) untaggedInstances() ([]Untagged, error) {
	var found []Untagged
	err := s.EC2Client.DescribeInstancesPages(&ec2.DescribeInstancesInput{}, func(page *ec2.DescribeInstancesOutput, lastPage bool) bool {
		for _, r := range page.Reservations {
			for _, i := range r.Instances {
				if len(i.Tags) > 0 {
					continue
				}
				id := aws.StringValue(i.InstanceId)
				found = append(found, Untagged{
					Type: "EC2 Instance",
					Name: id,
					ARN:  fmt.Sprintf("arn:aws:ec2:%s:%s:instance/%s", s.Region, aws.StringValue(r.OwnerId), id),
				})
			}
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to describe instances")
	}
	return found, nil
}

func (s *Scanner) untaggedVpcs() ([]Untagged, error) {
	var found []Untagged
	err := s.EC2Client.DescribeVpcsPages(&ec2.DescribeVpcsInput{}, func(page *ec2.DescribeVpcsOutput, lastPage bool) bool {
		for _, v := range page.Vpcs {
			if len(v.Tags) > 0 {
				continue
			}
			id := aws.StringValue(v.VpcId)
			found = append(found, Untagged{
				Type: "VPC",
				Name: id,
				ARN:  fmt.Sprintf("arn:aws:ec2:%s:%s:vpc/%s", s.Region, aws.StringValue(v.OwnerId), id),
			})
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to describe vpcs")
	}
	return found, nil
}

func (s *Scanner) untaggedFunctions() ([]Untagged, error) {
	var functions []*lambda.FunctionConfiguration
	err := s.LambdaClient.ListFunctionsPages(&lambda.ListFunctionsInput{}, func(page *lambda.ListFunctionsOutput, lastPage bool) bool {
		functions = append(functions, page.Functions...)
		return true
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to list functions")
	}
	var found []Untagged
	for _, f := range functions {
		tags, err := s.LambdaClient.ListTags(&lambda.ListTagsInput{Resource: f.FunctionArn})
		if err != nil {
			return nil, errors.Wrapf(err, "unable to list tags of %s", aws.StringValue(f.FunctionName))
		}
		if len(tags.Tags) > 0 {
			continue
		}
		found = append(found, Untagged{Type: "Lambda Function", Name: aws.StringValue(f.FunctionName), ARN: aws.StringValue(f.FunctionArn)})
	}
	return found, nil
}

// UntaggedResources lists buckets, instances, VPCs and functions without
// tags. Resources other than buckets are kept only when they belong to
// one of accountIDs.
func (s *Scanner) UntaggedResources(accountIDs []string) ([]string, error) {
	wanted := map[string]bool{}
	for _, id := range accountIDs {
		wanted[id] = true
	}

	var found []string
	for _, list := range []func() ([]Untagged, error){
		s.untaggedBuckets, s.untaggedInstances, s.untaggedVpcs, s.untaggedFunctions,
	} {
		resources, err := list()
		if err != nil {
			return nil, err
		}
		for _, r := range resources {
			if r.Type != "S3 Bucket" && !wanted[resourcearn.Account(r.ARN)] {
				continue
			}
			found = append(found, r.String())
		}
	}
	return found, nil
}

// NonCompliant returns the resources of account in the day's resources
// document that miss a required tag. A missing document yields none.
func (s *Scanner) NonCompliant(metadata *store.Store, account string) []string {
	var inv Inventory
	if err := metadata.GetJSON(ResourcesKey(s.now()), &inv); err != nil {
		s.Logger.Error("Unable to read federated resources", zap.String("bucket", metadata.Bucket), zap.Error(err))
		return nil
	}
	var found []string
	for _, r := range inv.Body[account] {
		if !r.Compliance {
			found = append(found, "ResourceArn: "+r.ResourceARN)
		}
	}
	return found
}

// ScanUntagged collects the untagged resources of the federated accounts
// and the non-compliant resources of account, and hands both to
// notifyFunction.
func (s *Scanner) ScanUntagged(req *UntaggedRequest, metadata *store.Store, account, notifyFunction string) (*Notification, error) {
	untagged, err := s.UntaggedResources(req.AccountIDs)
	if err != nil {
		return nil, err
	}
	n := &Notification{Untagged: untagged, NonCompliant: s.NonCompliant(metadata, account)}
	var resp interface{}
	if err := s.Invoker.Sync(notifyFunction, n, &resp); err != nil {
		return nil, err
	}
	s.Logger.Info("Untagged resources found",
		zap.String("resources", strings.Join(untagged, "\n")),
		zap.Any("notification-response", resp))
	return n, nil
}
