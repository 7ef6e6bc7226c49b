package accounts

import (
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/organizations"
	"github.com/aws/aws-sdk-go/service/organizations/organizationsiface"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"
	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
)

type mockOrganizationsClient struct {
	organizationsiface.OrganizationsAPI
}

func (m *mockOrganizationsClient) ListAccountsPages(input *organizations.ListAccountsInput, fn func(*organizations.ListAccountsOutput, bool) bool) error {
	pages := []*organizations.ListAccountsOutput{
		{Accounts: []*organizations.Account{{Id: aws.String("123456789012"), Name: aws.String("prod")}}},
		{Accounts: []*organizations.Account{{Id: aws.String("210987654321"), Name: aws.String("dev-sandbox")}}},
	}
	for i, p := range pages {
		if !fn(p, i == len(pages)-1) {
			break
		}
	}
	return nil
}

// mockSSMClient is a one parameter store.
type mockSSMClient struct {
	ssmiface.SSMAPI
	name, value string
}

func (m *mockSSMClient) PutParameter(input *ssm.PutParameterInput) (*ssm.PutParameterOutput, error) {
	m.name, m.value = *input.Name, *input.Value
	return &ssm.PutParameterOutput{}, nil
}

func (m *mockSSMClient) GetParameter(input *ssm.GetParameterInput) (*ssm.GetParameterOutput, error) {
	return &ssm.GetParameterOutput{Parameter: &ssm.Parameter{Value: aws.String(m.value)}}, nil
}

func TestListLinkedAccounts(t *testing.T) {
	store := &mockSSMClient{}
	d := &Directory{
		Logger:             zap.NewNop(),
		OrganizationClient: &mockOrganizationsClient{},
		SSMClient:          store,
		Namespace:          "xc3",
	}
	got, err := d.ListLinkedAccounts()
	if err != nil {
		t.Fatalf("ERROR: unexpected error %v", err)
	}
	want := []Detail{"123456789012-prod", "210987654321-dev-sandbox"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListLinkedAccounts() mismatch (-want +got):\n%s", diff)
	}
	if store.name != "/xc3/account_details" {
		t.Errorf("stored under %v", store.name)
	}

	details, err := d.Details()
	if err != nil {
		t.Fatalf("ERROR: unexpected error %v", err)
	}
	if details[1].ID() != "210987654321" {
		t.Errorf("ID() = %v", details[1].ID())
	}
}

func TestDetailsRejectInvalidAccount(t *testing.T) {
	d := &Directory{
		Logger:    zap.NewNop(),
		SSMClient: &mockSSMClient{value: `["12345-short"]`},
		Namespace: "xc3",
	}
	if _, err := d.Details(); err == nil {
		t.Error("ERROR: expected an invalid account id error")
	}
}
