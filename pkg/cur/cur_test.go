package cur

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const report = `identity/LineItemId,lineItem/ProductCode,lineItem/ResourceId,lineItem/UnblendedCost,lineItem/UsageStartDate,product/region,product/ProductName
a1,AmazonEC2,i-0abc,1.50,2023-05-01T00:00:00Z,us-east-1,Amazon Elastic Compute Cloud
a2,AmazonEC2,vol-0abc,0.25,2023-05-01T00:00:00Z,us-east-1,Amazon Elastic Compute Cloud
a3,AWSLambda,arn:aws:lambda:us-east-1:123456789012:function:api,,2023-05-01T00:00:00Z,us-east-1,AWS Lambda
`

func TestRead(t *testing.T) {
	items, err := Read(bytes.NewBufferString(report))
	require.NoError(t, err)
	require.Len(t, items, 3)

	assert.Equal(t, "Ec2", items[0].ServiceCategory())
	assert.Equal(t, "Ec2-Others", items[1].ServiceCategory())
	assert.Equal(t, "AWS Lambda", items[2].ServiceCategory())
	assert.Equal(t, "1.5", items[0].Cost().String())
	assert.True(t, items[2].Cost().IsZero())
}

func TestReadZip(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("xc3-report-00001.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte(report))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	items, err := ReadAuto("cur/20230501-20230601/xc3-report.csv.zip", buf.Bytes())
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestReadGzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(report))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	items, err := ReadAuto("cur/xc3-report-00001.csv.gz", buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, LambdaProductCode, items[2].ProductCode)

	_, err = ReadGzip([]byte("plain text"))
	assert.Error(t, err)
}
