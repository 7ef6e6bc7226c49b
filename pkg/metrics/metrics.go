// Package metrics publishes gauges to a Prometheus Pushgateway.
package metrics

import (
	"regexp"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9_:]`)

// Pusher pushes collectors to the Pushgateway at URL. The URL may omit
// the scheme, in which case http is assumed.
type Pusher struct {
	URL    string
	Logger *zap.Logger
	Client push.HTTPDoer
}

// Push replaces the metrics of job with the given collectors.
func (p *Pusher) Push(job string, collectors ...prometheus.Collector) error {
	if p.URL == "" {
		p.Logger.Warn("No Pushgateway configured, metrics not pushed", zap.String("job", job))
		return nil
	}
	registry := prometheus.NewRegistry()
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return errors.Wrapf(err, "unable to register collector for job %s", job)
		}
	}
	pusher := push.New(p.URL, job).Gatherer(registry)
	if p.Client != nil {
		pusher = pusher.Client(p.Client)
	}
	if err := pusher.Push(); err != nil {
		return errors.Wrapf(err, "failed to push metrics for job %s", job)
	}
	p.Logger.Info("Pushed metrics to Pushgateway", zap.String("job", job))
	return nil
}

// MetricName makes s a legal Prometheus metric name. Names built from
// project or account identifiers may contain dashes or start with a
// digit.
func MetricName(s string) string {
	name := invalidNameChars.ReplaceAllString(s, "_")
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "_" + name
	}
	return name
}

// NewGaugeVec returns a gauge vector with a sanitized name.
func NewGaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: MetricName(name),
		Help: help,
	}, labels)
}
