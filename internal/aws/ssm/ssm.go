package ssm

import (
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"
	"github.com/pkg/errors"
)

// DecryptValue returns the decrypted value for a Parameter Store key
func DecryptValue(client ssmiface.SSMAPI, parameterStoreKey string) (string, error) {
	getParameterOutput, err := client.GetParameter(&ssm.GetParameterInput{
		Name:           aws.String(parameterStoreKey),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok {
			switch aerr.Code() {
			case ssm.ErrCodeInternalServerError:
				return "", errors.Wrap(err, "ssm appeared to have an internal error")
			case ssm.ErrCodeInvalidKeyId, ssm.ErrCodeParameterNotFound, ssm.ErrCodeParameterVersionNotFound:
				return "", errors.Wrapf(err, "the parameter store key %q appears to be invalid", parameterStoreKey)
			default:
				return "", errors.Wrap(err, "unknown AWS error")
			}
		}
		return "", errors.Wrap(err, "unknown error getting ssm parameter")
	}
	if getParameterOutput.Parameter == nil || getParameterOutput.Parameter.Value == nil {
		return "", errors.Errorf("ssm parameter %q value is nil", parameterStoreKey)
	}
	return *getParameterOutput.Parameter.Value, nil
}

// GetJSON decodes the decrypted value of a parameter into v.
func GetJSON(client ssmiface.SSMAPI, parameterStoreKey string, v interface{}) error {
	value, err := DecryptValue(client, parameterStoreKey)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(value), v); err != nil {
		return errors.Wrapf(err, "ssm parameter %q is not valid JSON", parameterStoreKey)
	}
	return nil
}

// GetStringList returns a list parameter. Values written by PutStringList
// are JSON arrays; plain comma separated StringList values are accepted
// too.
func GetStringList(client ssmiface.SSMAPI, parameterStoreKey string) ([]string, error) {
	value, err := DecryptValue(client, parameterStoreKey)
	if err != nil {
		return nil, err
	}
	var list []string
	if strings.HasPrefix(strings.TrimSpace(value), "[") {
		if err := json.Unmarshal([]byte(value), &list); err != nil {
			return nil, errors.Wrapf(err, "ssm parameter %q is not a valid list", parameterStoreKey)
		}
		return list, nil
	}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list, nil
}

// PutStringList stores values as a JSON encoded StringList parameter,
// overwriting any previous version.
func PutStringList(client ssmiface.SSMAPI, parameterStoreKey string, values []string) error {
	body, err := json.Marshal(values)
	if err != nil {
		return errors.Wrap(err, "unable to encode parameter value")
	}
	_, err = client.PutParameter(&ssm.PutParameterInput{
		Name:      aws.String(parameterStoreKey),
		Value:     aws.String(string(body)),
		Type:      aws.String(ssm.ParameterTypeStringList),
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		return errors.Wrap(err, "failed to put value in ssm parameter")
	}
	return nil
}
