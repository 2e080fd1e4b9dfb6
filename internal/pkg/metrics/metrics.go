package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradegate_actions_total",
		Help: "The total number of trading actions processed",
	}, []string{"kind", "outcome"})

	ScopeDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradegate_scope_denials_total",
		Help: "Total validator denials by offending field",
	}, []string{"field"})

	BridgeRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradegate_bridge_requests_total",
		Help: "Outbound execution-service calls by result",
	}, []string{"endpoint", "result"})

	BridgeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tradegate_bridge_latency_seconds",
		Help:    "Execution-service call latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	ProvisioningTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradegate_provisioning_total",
		Help: "Connector provisioning attempts by result",
	}, []string{"result"})

	AgentToolRounds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tradegate_agent_tool_rounds",
		Help:    "Tool-call rounds consumed per chat request",
		Buckets: []float64{0, 1, 2, 3, 4, 6, 8, 12},
	})

	RequestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tradegate_request_latency_seconds",
		Help:    "Inbound request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
)
