// Package mocks holds AWS client fakes shared by the function tests.
package mocks

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/cloudwatch/cloudwatchiface"
	"github.com/aws/aws-sdk-go/service/costexplorer"
	"github.com/aws/aws-sdk-go/service/costexplorer/costexploreriface"
	awslambda "github.com/aws/aws-sdk-go/service/lambda"
	"github.com/aws/aws-sdk-go/service/lambda/lambdaiface"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/stretchr/testify/mock"
)

// CostExplorer is a testify mock of the Cost Explorer API.
type CostExplorer struct {
	mock.Mock
	costexploreriface.CostExplorerAPI
}

func (m *CostExplorer) GetCostAndUsage(input *costexplorer.GetCostAndUsageInput) (*costexplorer.GetCostAndUsageOutput, error) {
	args := m.Called(input)
	out, _ := args.Get(0).(*costexplorer.GetCostAndUsageOutput)
	return out, args.Error(1)
}

func (m *CostExplorer) GetCostAndUsageWithResources(input *costexplorer.GetCostAndUsageWithResourcesInput) (*costexplorer.GetCostAndUsageWithResourcesOutput, error) {
	args := m.Called(input)
	out, _ := args.Get(0).(*costexplorer.GetCostAndUsageWithResourcesOutput)
	return out, args.Error(1)
}

// Period builds a result period with a total and optional groups.
func Period(start, end, total string, groups ...*costexplorer.Group) *costexplorer.ResultByTime {
	return &costexplorer.ResultByTime{
		TimePeriod: &costexplorer.DateInterval{Start: aws.String(start), End: aws.String(end)},
		Total:      map[string]*costexplorer.MetricValue{"UnblendedCost": {Amount: aws.String(total), Unit: aws.String("USD")}},
		Groups:     groups,
	}
}

// Group builds a result group.
func Group(amount string, keys ...string) *costexplorer.Group {
	return &costexplorer.Group{
		Keys:    aws.StringSlice(keys),
		Metrics: map[string]*costexplorer.MetricValue{"UnblendedCost": {Amount: aws.String(amount), Unit: aws.String("USD")}},
	}
}

// Results wraps periods in a GetCostAndUsage output.
func Results(periods ...*costexplorer.ResultByTime) *costexplorer.GetCostAndUsageOutput {
	return &costexplorer.GetCostAndUsageOutput{ResultsByTime: periods}
}

// ResourceResults wraps periods in a GetCostAndUsageWithResources output.
func ResourceResults(periods ...*costexplorer.ResultByTime) *costexplorer.GetCostAndUsageWithResourcesOutput {
	return &costexplorer.GetCostAndUsageWithResourcesOutput{ResultsByTime: periods}
}

// S3 keeps objects in memory.
type S3 struct {
	s3iface.S3API
	mu      sync.Mutex
	Objects map[string][]byte
	PutErr  error
}

// NewS3 returns an empty bucket.
func NewS3() *S3 {
	return &S3{Objects: map[string][]byte{}}
}

func (m *S3) PutObject(input *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
	if m.PutErr != nil {
		return nil, m.PutErr
	}
	body, err := io.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Objects[aws.StringValue(input.Key)] = body
	return &s3.PutObjectOutput{}, nil
}

func (m *S3) GetObject(input *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, ok := m.Objects[aws.StringValue(input.Key)]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, "The specified key does not exist.", nil)
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (m *S3) ListObjectsV2Pages(input *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool) error {
	m.mu.Lock()
	var keys []string
	for k := range m.Objects {
		if strings.HasPrefix(k, aws.StringValue(input.Prefix)) {
			keys = append(keys, k)
		}
	}
	m.mu.Unlock()
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{}
	for _, k := range keys {
		out.Contents = append(out.Contents, &s3.Object{Key: aws.String(k)})
	}
	fn(out, true)
	return nil
}

// PutJSON stores v encoded as JSON.
func (m *S3) PutJSON(key string, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Objects[key] = body
}

// Lambda records invocations and answers with Status, or 202 for
// asynchronous calls and 200 otherwise.
type Lambda struct {
	lambdaiface.LambdaAPI
	mu       sync.Mutex
	Calls    []*awslambda.InvokeInput
	Status   int64
	Response []byte
}

func (m *Lambda) Invoke(input *awslambda.InvokeInput) (*awslambda.InvokeOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, input)
	status := m.Status
	if status == 0 {
		status = http.StatusOK
		if aws.StringValue(input.InvocationType) == awslambda.InvocationTypeEvent {
			status = http.StatusAccepted
		}
	}
	return &awslambda.InvokeOutput{StatusCode: aws.Int64(status), Payload: m.Response}, nil
}

// Payloads decodes the payload of every call to function into a
// slice of maps.
func (m *Lambda) Payloads(function string) []map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	var payloads []map[string]interface{}
	for _, c := range m.Calls {
		if aws.StringValue(c.FunctionName) != function {
			continue
		}
		var p map[string]interface{}
		_ = json.Unmarshal(c.Payload, &p)
		payloads = append(payloads, p)
	}
	return payloads
}

// Bodies returns the raw payload of every call to function.
func (m *Lambda) Bodies(function string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var bodies [][]byte
	for _, c := range m.Calls {
		if aws.StringValue(c.FunctionName) == function {
			bodies = append(bodies, c.Payload)
		}
	}
	return bodies
}

// CloudWatch records metric data.
type CloudWatch struct {
	cloudwatchiface.CloudWatchAPI
	mu    sync.Mutex
	Input []*cloudwatch.PutMetricDataInput
}

func (m *CloudWatch) PutMetricData(input *cloudwatch.PutMetricDataInput) (*cloudwatch.PutMetricDataOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Input = append(m.Input, input)
	return &cloudwatch.PutMetricDataOutput{}, nil
}

// Gateway is a Pushgateway that keeps the last body pushed per job.
type Gateway struct {
	*httptest.Server
	mu     sync.Mutex
	Pushes map[string]string
}

// NewGateway starts a gateway. Close it when done.
func NewGateway() *Gateway {
	g := &Gateway{Pushes: map[string]string{}}
	g.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		job := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
		g.mu.Lock()
		g.Pushes[job] = string(body)
		g.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	return g
}

// Pushed returns the body pushed for job.
func (g *Gateway) Pushed(job string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	body, ok := g.Pushes[job]
	return body, ok
}
