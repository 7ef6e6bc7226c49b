package main

import (
	"context"

	awssession "github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/organizations"
	awsssm "github.com/aws/aws-sdk-go/service/ssm"

	"github.com/xgrid/xc3/internal/response"
	"github.com/xgrid/xc3/pkg/accounts"
)

// AccountOptions locate the linked account details.
type AccountOptions struct {
	AccountDetail string `long:"account-detail" description:"The Parameter Store namespace of the account details." default:"xc3" env:"account_detail"`
}

func (o AccountOptions) directory(sess *awssession.Session) *accounts.Directory {
	return &accounts.Directory{
		Logger:             logger,
		OrganizationClient: organizations.New(sess),
		SSMClient:          awsssm.New(sess),
		Namespace:          o.AccountDetail,
	}
}

type linkedAccountsCommand struct {
	AccountOptions
}

func (c *linkedAccountsCommand) Execute(args []string) error {
	d := c.directory(makeSession())
	handler := func(ctx context.Context) (response.Response, error) {
		return reply(d.ListLinkedAccounts())
	}
	return start(handler, func() error {
		return logResult(d.ListLinkedAccounts())
	})
}
