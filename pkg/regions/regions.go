// Package regions maps AWS region codes to the names shown on dashboards.
package regions

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ec2"
	"github.com/aws/aws-sdk-go/service/ec2/ec2iface"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"
	"github.com/pkg/errors"

	"github.com/xgrid/xc3/internal/aws/ssm"
)

// Unknown is shown for regions missing from the map.
const Unknown = "unknown region name"

var defaultNames = map[string]string{
	"us-east-1":      "N. Virginia",
	"us-east-2":      "Ohio",
	"us-west-1":      "N. California",
	"us-west-2":      "Oregon",
	"af-south-1":     "Cape Town",
	"ap-east-1":      "Hong Kong",
	"ap-south-1":     "Mumbai",
	"ap-northeast-2": "Seoul",
	"ap-southeast-1": "Singapore",
	"ap-southeast-2": "Sydney",
	"ap-northeast-1": "Tokyo",
	"ap-northeast-3": "Osaka",
	"ca-central-1":   "Canada",
	"eu-central-1":   "Frankfurt",
	"eu-west-1":      "Ireland",
	"eu-west-2":      "London",
	"eu-south-1":     "Milan",
	"eu-west-3":      "Paris",
	"eu-north-1":     "Stockholm",
	"me-south-1":     "Bahrain",
	"sa-east-1":      "São Paulo",
}

// Names maps region codes to display names.
type Names map[string]string

// Default returns a copy of the built in names.
func Default() Names {
	n := Names{}
	for k, v := range defaultNames {
		n[k] = v
	}
	return n
}

// Load returns the built in names overridden by the JSON object stored
// in the parameter at path.
func Load(client ssmiface.SSMAPI, path string) (Names, error) {
	n := Default()
	if path == "" {
		return n, nil
	}
	var stored map[string]string
	if err := ssm.GetJSON(client, path, &stored); err != nil {
		return nil, errors.Wrap(err, "error retrieving region names from parameter store")
	}
	for k, v := range stored {
		n[k] = v
	}
	return n, nil
}

// Name returns the display name of code.
func (n Names) Name(code string) string {
	if name, ok := n[code]; ok {
		return name
	}
	return Unknown
}

// Display renders "us-east-1 (N. Virginia)".
func (n Names) Display(code string) string {
	return code + " (" + n.Name(code) + ")"
}

// DisplayOr renders code like Display, naming unmapped regions fallback.
func (n Names) DisplayOr(code, fallback string) string {
	name, ok := n[code]
	if !ok {
		name = fallback
	}
	return code + " (" + name + ")"
}

// Dashed renders "us-east-1-N. Virginia".
func (n Names) Dashed(code string) string {
	return code + "-" + n.Name(code)
}

// Enabled lists the regions enabled for the account.
func Enabled(client ec2iface.EC2API) ([]string, error) {
	out, err := client.DescribeRegions(&ec2.DescribeRegionsInput{})
	if err != nil {
		return nil, errors.Wrap(err, "error describing ec2 regions")
	}
	codes := make([]string, 0, len(out.Regions))
	for _, r := range out.Regions {
		codes = append(codes, aws.StringValue(r.RegionName))
	}
	return codes, nil
}
