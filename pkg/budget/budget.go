// Package budget reports account, project and service spend and alerts
// when a budget is exceeded.
package budget

import (
	"time"

	"github.com/aws/aws-sdk-go/service/cloudwatch/cloudwatchiface"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xgrid/xc3/pkg/costquery"
	"github.com/xgrid/xc3/pkg/invoke"
	"github.com/xgrid/xc3/pkg/metrics"
	"github.com/xgrid/xc3/pkg/notify"
	"github.com/xgrid/xc3/pkg/store"
)

const (
	projectSpendDays = 30
	breakdownDays    = 14
	alertDays        = 30

	// Others collects spend without a Project tag.
	Others = "Others"
)

var validate = validator.New()

// Budget is shared by the budget functions. Each function only needs
// some of the clients.
type Budget struct {
	Logger           *zap.Logger
	Costs            *costquery.Client
	Pusher           *metrics.Pusher
	Store            *store.Store
	Invoker          *invoke.Invoker
	CloudWatchClient cloudwatchiface.CloudWatchAPI
	Alerts           *notify.Alerts
	Now              func() time.Time
}

func (b *Budget) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}
