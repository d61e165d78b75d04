package api

import (
	"context"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the RPC counters exposed on /metrics
type Metrics struct {
	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	admissions *prometheus.CounterVec
}

// NewMetrics registers the API metrics with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lotmarket_rpc_requests_total",
				Help: "RPC requests by procedure and result code",
			},
			[]string{"procedure", "code"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lotmarket_rpc_duration_seconds",
				Help:    "RPC latency by procedure",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"procedure"},
		),
		admissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lotmarket_bid_admissions_total",
				Help: "PlaceBid outcomes by result code",
			},
			[]string{"code"},
		),
	}
}

// Interceptor records every unary call
func (m *Metrics) Interceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			res, err := next(ctx, req)

			procedure := req.Spec().Procedure
			code := resultCode(err)
			m.requests.WithLabelValues(procedure, code).Inc()
			m.duration.WithLabelValues(procedure).Observe(time.Since(start).Seconds())
			if procedure == PlaceBidProcedure {
				m.admissions.WithLabelValues(code).Inc()
			}
			return res, err
		}
	}
}

func resultCode(err error) string {
	if err == nil {
		return "ok"
	}
	return connect.CodeOf(err).String()
}
