package session

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/sts"
	"github.com/aws/aws-sdk-go/service/sts/stsiface"
	"github.com/pkg/errors"
)

// MakeSession creates an AWS Session, with appropriate defaults,
// using shared credentials, and with region and profile overrides.
func MakeSession(region, profile string) (*session.Session, error) {
	sessOpts := session.Options{
		SharedConfigState: session.SharedConfigEnable,
	}
	if profile != "" {
		sessOpts.Profile = profile
	}
	if region != "" {
		sessOpts.Config = aws.Config{
			Region: aws.String(region),
		}
	}
	return session.NewSessionWithOptions(sessOpts)
}

// MustMakeSession creates an AWS Session using MakeSession and ensures
// that it is valid.
func MustMakeSession(region, profile string) *session.Session {
	return session.Must(MakeSession(region, profile))
}

// InRegion returns a copy of sess pinned to region. Cost Explorer and
// EC2 calls that fan out over every region use one copy per region.
func InRegion(sess *session.Session, region string) *session.Session {
	return sess.Copy(&aws.Config{Region: aws.String(region)})
}

// Region returns the region a session is configured for, or an empty
// string.
func Region(sess *session.Session) string {
	return aws.StringValue(sess.Config.Region)
}

// AccountID returns the account the caller's credentials belong to.
func AccountID(client stsiface.STSAPI) (string, error) {
	out, err := client.GetCallerIdentity(&sts.GetCallerIdentityInput{})
	if err != nil {
		return "", errors.Wrap(err, "unable to get caller identity")
	}
	return aws.StringValue(out.Account), nil
}
