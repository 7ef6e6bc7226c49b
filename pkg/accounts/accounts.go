// Package accounts keeps the list of member accounts linked to the
// management account.
package accounts

import (
	"regexp"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/organizations"
	"github.com/aws/aws-sdk-go/service/organizations/organizationsiface"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/internal/aws/ssm"
)

var accountIDPattern = regexp.MustCompile(`^[0-9]{12}$`)

// Detail is an "<account id>-<account name>" entry.
type Detail string

// ID returns the account id part of the detail.
func (d Detail) ID() string {
	return strings.SplitN(string(d), "-", 2)[0]
}

// Validate checks that the account id has twelve digits.
func (d Detail) Validate() error {
	if !accountIDPattern.MatchString(d.ID()) {
		return errors.Errorf("invalid AWS account ID %q", d.ID())
	}
	return nil
}

// ParameterName is where the details of a deployment are stored.
func ParameterName(namespace string) string {
	return "/" + strings.Trim(namespace, "/") + "/account_details"
}

// Directory reads organization accounts and keeps them in Parameter
// Store.
type Directory struct {
	Logger             *zap.Logger
	OrganizationClient organizationsiface.OrganizationsAPI
	SSMClient          ssmiface.SSMAPI
	Namespace          string
}

// ListLinkedAccounts stores every organization account as a detail and
// returns the stored list.
func (d *Directory) ListLinkedAccounts() ([]Detail, error) {
	var details []Detail
	err := d.OrganizationClient.ListAccountsPages(&organizations.ListAccountsInput{},
		func(page *organizations.ListAccountsOutput, lastPage bool) bool {
			for _, a := range page.Accounts {
				details = append(details, Detail(aws.StringValue(a.Id)+"-"+aws.StringValue(a.Name)))
			}
			return true
		})
	if err != nil {
		return nil, errors.Wrap(err, "an error occurred in calling organizations api")
	}

	values := make([]string, 0, len(details))
	for _, detail := range details {
		values = append(values, string(detail))
	}
	if err := ssm.PutStringList(d.SSMClient, ParameterName(d.Namespace), values); err != nil {
		return nil, err
	}
	d.Logger.Info("Stored linked accounts",
		zap.String("parameter", ParameterName(d.Namespace)),
		zap.Int("accounts", len(details)))
	return details, nil
}

// Details loads and validates the stored details.
func (d *Directory) Details() ([]Detail, error) {
	values, err := ssm.GetStringList(d.SSMClient, ParameterName(d.Namespace))
	if err != nil {
		return nil, err
	}
	details := make([]Detail, 0, len(values))
	for _, v := range values {
		detail := Detail(v)
		if err := detail.Validate(); err != nil {
			return nil, err
		}
		details = append(details, detail)
	}
	return details, nil
}
