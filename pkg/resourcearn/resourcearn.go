// Package resourcearn shortens resource ARNs for dashboard labels.
package resourcearn

import (
	"strings"

	"github.com/aws/aws-sdk-go/aws/arn"
	"github.com/pkg/errors"
)

// Parse returns "service:resource", where resource is everything after
// the account field, e.g. "ec2:instance/i-0abc" or "lambda:function:api".
func Parse(resourceARN string) (string, error) {
	a, err := arn.Parse(resourceARN)
	if err != nil {
		return "", errors.Wrapf(err, "invalid ARN format %q", resourceARN)
	}
	return a.Service + ":" + a.Resource, nil
}

// Short keeps the service and the resource parts of the colon separated
// ARN fields: "ec2:instance/i-0abc" or "lambda:function:api".
func Short(resourceARN string) string {
	parts := strings.Split(resourceARN, ":")
	switch {
	case len(parts) < 6:
		return resourceARN
	case len(parts) == 6:
		return parts[2] + ":" + parts[5]
	}
	return parts[2] + ":" + parts[5] + ":" + parts[6]
}

// Service returns the service field, or an empty string.
func Service(resourceARN string) string {
	a, err := arn.Parse(resourceARN)
	if err != nil {
		return ""
	}
	return a.Service
}

// Account returns the account field, or an empty string.
func Account(resourceARN string) string {
	a, err := arn.Parse(resourceARN)
	if err != nil {
		return ""
	}
	return a.AccountID
}

// Region returns the region field. Global resources such as S3 buckets
// have none.
func Region(resourceARN string) string {
	a, err := arn.Parse(resourceARN)
	if err != nil {
		return ""
	}
	return a.Region
}

// ResourceID returns the final "/" or ":" separated segment.
func ResourceID(resourceARN string) string {
	i := strings.LastIndexAny(resourceARN, "/:")
	return resourceARN[i+1:]
}
