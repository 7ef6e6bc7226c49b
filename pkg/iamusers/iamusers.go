// Package iamusers reports IAM users, the resources they own and what
// those resources cost.
package iamusers

import (
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/cloudwatch/cloudwatchiface"
	"github.com/aws/aws-sdk-go/service/iam"
	"github.com/aws/aws-sdk-go/service/iam/iamiface"
	"github.com/aws/aws-sdk-go/service/resourcegroupstaggingapi"
	"github.com/aws/aws-sdk-go/service/resourcegroupstaggingapi/resourcegroupstaggingapiiface"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/pkg/costquery"
	"github.com/xgrid/xc3/pkg/metrics"
	"github.com/xgrid/xc3/pkg/notify"
	"github.com/xgrid/xc3/pkg/regions"
	"github.com/xgrid/xc3/pkg/resourcearn"
	"github.com/xgrid/xc3/pkg/store"
)

// OwnerTag names the owner of a resource.
const OwnerTag = "Owner"

// Reporter is shared by the IAM user functions.
type Reporter struct {
	Logger    *zap.Logger
	IAMClient iamiface.IAMAPI
	// TaggingIn returns a tagging client for a region.
	TaggingIn        func(region string) resourcegroupstaggingapiiface.ResourceGroupsTaggingAPIAPI
	Costs            *costquery.Client
	Pusher           *metrics.Pusher
	Store            *store.Store
	Topic            *notify.Topic
	CloudWatchClient cloudwatchiface.CloudWatchAPI
	Alerts           *notify.Alerts
	Names            regions.Names
	// Region the function runs in.
	Region    string
	AccountID string
	Now       func() time.Time
}

// User is an IAM user as published to the resources cost function.
type User struct {
	UserName string `json:"UserName"`
	UserArn  string `json:"UserArn"`
	UserID   string `json:"UserId"`
}

// record is a user in the resources inventory document.
type record struct {
	UserName string `json:"UserName"`
	Arn      string `json:"Arn"`
	UserID   string `json:"UserId"`
}

// UserResources lists the resources owned by a user in a region. A user
// without resources has a single empty entry.
type UserResources struct {
	User         string   `json:"User"`
	ResourceList []string `json:"ResourceList"`
	Region       string   `json:"Region"`
}

func (r *Reporter) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// ListUsers reads users from the gzipped inventory at key in bucket, or
// from IAM when key is empty, reports them and publishes them to the
// topic. Keys that are not resource inventories yield no users.
func (r *Reporter) ListUsers(bucket, key string) ([]User, error) {
	var users []User
	switch {
	case key == "":
		err := r.IAMClient.ListUsersPages(&iam.ListUsersInput{}, func(page *iam.ListUsersOutput, lastPage bool) bool {
			for _, u := range page.Users {
				users = append(users, User{
					UserName: aws.StringValue(u.UserName),
					UserArn:  aws.StringValue(u.Arn),
					UserID:   aws.StringValue(u.UserId),
				})
			}
			return true
		})
		if err != nil {
			return nil, errors.Wrap(err, "unable to list iam users")
		}
	case strings.Contains(key, "resources"):
		var records []record
		if err := r.Store.WithBucket(bucket).GetGzipJSON(key, &records); err != nil {
			r.Logger.Error("Error getting object. Make sure bucket and function are in the same region.",
				zap.String("bucket", bucket), zap.String("key", key), zap.Error(err))
			return nil, err
		}
		for _, rec := range records {
			users = append(users, User{UserName: rec.UserName, UserArn: rec.Arn, UserID: rec.UserID})
		}
	}
	if len(users) == 0 {
		return nil, nil
	}

	gauge := metrics.NewGaugeVec("IAM_Users", "IAM Users", "user_name", "user_arn", "user_id", "account_id")
	for _, u := range users {
		gauge.WithLabelValues(u.UserName, u.UserArn, u.UserID, r.AccountID).Set(0)
	}
	if err := r.Pusher.Push("IAM_User_Details", gauge); err != nil {
		return nil, err
	}
	if err := r.Topic.PublishJSON(users); err != nil {
		return nil, err
	}
	return users, nil
}

// OwnedResources returns the shortened ARNs of the resources tagged as
// owned by user in region.
func (r *Reporter) OwnedResources(user, region string) (*UserResources, error) {
	var owned []string
	err := r.TaggingIn(region).GetResourcesPages(&resourcegroupstaggingapi.GetResourcesInput{
		TagFilters: []*resourcegroupstaggingapi.TagFilter{{
			Key:    aws.String(OwnerTag),
			Values: aws.StringSlice([]string{user}),
		}},
	}, func(page *resourcegroupstaggingapi.GetResourcesOutput, lastPage bool) bool {
		for _, m := range page.ResourceTagMappingList {
			owned = append(owned, resourcearn.Short(aws.StringValue(m.ResourceARN)))
		}
		return true
	})
	if err != nil {
		return nil, errors.Wrapf(err, "error getting resources of %s in %s", user, region)
	}
	if len(owned) == 0 {
		owned = []string{""}
	}
	return &UserResources{User: user, ResourceList: owned, Region: region}, nil
}

// MapResources looks up the resources of every user in every region.
func (r *Reporter) MapResources(users, regionCodes []string) ([]*UserResources, error) {
	var mapped []*UserResources
	for _, user := range users {
		for _, region := range regionCodes {
			ur, err := r.OwnedResources(user, region)
			if err != nil {
				return nil, err
			}
			mapped = append(mapped, ur)
		}
	}
	return mapped, nil
}
