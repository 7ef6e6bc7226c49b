// Package awserrs classifies errors returned by the AWS SDK.
package awserrs

import (
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/pkg/errors"
)

// Code returns the AWS error code carried by err, unwrapping any
// pkg/errors context, or an empty string.
func Code(err error) string {
	if aerr, ok := errors.Cause(err).(awserr.Error); ok {
		return aerr.Code()
	}
	return ""
}

// HasCode reports whether err is an AWS error with one of the codes.
func HasCode(err error, codes ...string) bool {
	code := Code(err)
	if code == "" {
		return false
	}
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// StatusCode returns the HTTP status of a failed request, or 0.
func StatusCode(err error) int {
	if rerr, ok := errors.Cause(err).(awserr.RequestFailure); ok {
		return rerr.StatusCode()
	}
	return 0
}

// IsThrottle reports whether the error is a throttling error the SDK
// would normally retry.
func IsThrottle(err error) bool {
	if aerr, ok := errors.Cause(err).(awserr.Error); ok {
		return request.IsErrorThrottle(aerr)
	}
	return false
}
