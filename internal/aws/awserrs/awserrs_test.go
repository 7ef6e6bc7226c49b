package awserrs

import (
	"testing"

	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestHasCode(t *testing.T) {
	aerr := awserr.New("NoSuchTagSet", "The TagSet does not exist", nil)

	assert.True(t, HasCode(aerr, "NoSuchTagSet"))
	assert.True(t, HasCode(errors.Wrap(aerr, "get bucket tagging"), "AccessDenied", "NoSuchTagSet"))
	assert.False(t, HasCode(aerr, "AccessDenied"))
	assert.False(t, HasCode(errors.New("plain"), "NoSuchTagSet"))
	assert.Equal(t, "", Code(nil))
}

func TestStatusCode(t *testing.T) {
	rerr := awserr.NewRequestFailure(awserr.New("AccessDenied", "denied", nil), 403, "req-1")
	assert.Equal(t, 403, StatusCode(errors.Wrap(rerr, "put object")))
	assert.Equal(t, 0, StatusCode(errors.New("plain")))
}

func TestIsThrottle(t *testing.T) {
	assert.True(t, IsThrottle(awserr.New("ThrottlingException", "slow down", nil)))
	assert.False(t, IsThrottle(awserr.New("NoSuchKey", "missing", nil)))
}
