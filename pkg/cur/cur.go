// Package cur reads AWS Cost and Usage Report line items.
package cur

import (
	"archive/zip"
	"bytes"
	"compress/gzip"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const (
	// EC2ProductName is the product name of EC2 line items.
	EC2ProductName = "Amazon Elastic Compute Cloud"
	// LambdaProductCode is the product code of Lambda line items.
	LambdaProductCode = "AWSLambda"
)

// LineItem holds the report columns XC3 uses. Other columns are
// ignored.
type LineItem struct {
	ProductCode    string `csv:"lineItem/ProductCode"`
	ResourceID     string `csv:"lineItem/ResourceId"`
	UnblendedCost  string `csv:"lineItem/UnblendedCost"`
	UsageStartDate string `csv:"lineItem/UsageStartDate"`
	Region         string `csv:"product/region"`
	ProductName    string `csv:"product/ProductName"`
}

// Cost parses the unblended cost, treating blanks as zero.
func (l *LineItem) Cost() decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(l.UnblendedCost))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ServiceCategory splits EC2 into instance cost ("Ec2") and everything
// else billed under EC2 ("Ec2-Others").
func (l *LineItem) ServiceCategory() string {
	if l.ProductName != EC2ProductName {
		return l.ProductName
	}
	if strings.HasPrefix(l.ResourceID, "i-") {
		return "Ec2"
	}
	return "Ec2-Others"
}

// Read decodes CSV line items.
func Read(r io.Reader) ([]*LineItem, error) {
	var items []*LineItem
	if err := gocsv.Unmarshal(r, &items); err != nil {
		return nil, errors.Wrap(err, "unable to parse cost and usage report")
	}
	return items, nil
}

// ReadGzip decodes a gzip compressed report.
func ReadGzip(body []byte) ([]*LineItem, error) {
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "cost and usage report is not gzip compressed")
	}
	defer zr.Close()
	return Read(zr)
}

// ReadZip decodes the first file of a zipped report.
func ReadZip(body []byte) ([]*LineItem, error) {
	zr, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return nil, errors.Wrap(err, "cost and usage report is not a zip archive")
	}
	if len(zr.File) == 0 {
		return nil, errors.New("cost and usage report archive is empty")
	}
	f, err := zr.File[0].Open()
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open %s", zr.File[0].Name)
	}
	defer f.Close()
	return Read(f)
}

// ReadAuto picks the decoder from the object key.
func ReadAuto(key string, body []byte) ([]*LineItem, error) {
	switch {
	case strings.HasSuffix(key, ".zip"):
		return ReadZip(body)
	case strings.HasSuffix(key, ".gz"):
		return ReadGzip(body)
	}
	return Read(bytes.NewReader(body))
}
