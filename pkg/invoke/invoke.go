// Package invoke hands work from one XC3 function to the next.
package invoke

import (
	"encoding/json"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	awslambda "github.com/aws/aws-sdk-go/service/lambda"
	"github.com/aws/aws-sdk-go/service/lambda/lambdaiface"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Invoker calls other Lambda functions.
type Invoker struct {
	Logger       *zap.Logger
	LambdaClient lambdaiface.LambdaAPI
}

// Async queues payload for function. The call succeeds once Lambda has
// accepted the event.
func (i *Invoker) Async(function string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "unable to encode payload for %s", function)
	}
	out, err := i.LambdaClient.Invoke(&awslambda.InvokeInput{
		FunctionName:   aws.String(function),
		InvocationType: aws.String(awslambda.InvocationTypeEvent),
		Payload:        body,
	})
	if err != nil {
		return errors.Wrapf(err, "error invoking %s", function)
	}
	if status := aws.Int64Value(out.StatusCode); status != http.StatusAccepted {
		return errors.Errorf("unexpected status code %d returned from %s", status, function)
	}
	i.Logger.Info("Invoked function asynchronously",
		zap.String("function", function),
		zap.Int("payload-bytes", len(body)))
	return nil
}

// Sync calls function and waits for the result, decoding the response
// payload into out when out is not nil.
func (i *Invoker) Sync(function string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrapf(err, "unable to encode payload for %s", function)
	}
	resp, err := i.LambdaClient.Invoke(&awslambda.InvokeInput{
		FunctionName:   aws.String(function),
		InvocationType: aws.String(awslambda.InvocationTypeRequestResponse),
		Payload:        body,
	})
	if err != nil {
		return errors.Wrapf(err, "error invoking %s", function)
	}
	if status := aws.Int64Value(resp.StatusCode); status != http.StatusOK {
		return errors.Errorf("unexpected status code %d returned from %s", status, function)
	}
	if resp.FunctionError != nil {
		return errors.Errorf("%s failed with %s: %s", function, aws.StringValue(resp.FunctionError), string(resp.Payload))
	}
	i.Logger.Info("Invoked function", zap.String("function", function))
	if out == nil || len(resp.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Payload, out); err != nil {
		return errors.Wrapf(err, "unable to decode response from %s", function)
	}
	return nil
}
