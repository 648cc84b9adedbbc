package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querydesk_queries_total",
			Help: "Total number of answered questions by result.",
		},
		[]string{"result"},
	)
	queryTurns = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "querydesk_query_turns",
			Help:    "Model turns needed to answer one question.",
			Buckets: []float64{1, 2, 3, 4, 5, 7, 10, 15, 20},
		},
	)
	modelCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querydesk_model_calls_total",
			Help: "Total number of language model calls by purpose and result.",
		},
		[]string{"purpose", "result"},
	)
	modelCallDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querydesk_model_call_duration_seconds",
			Help:    "Language model call latency.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30, 60, 120},
		},
		[]string{"purpose"},
	)
	toolCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querydesk_tool_calls_total",
			Help: "Total number of tool calls by tool and outcome.",
		},
		[]string{"tool", "outcome"},
	)
	statementDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "querydesk_statement_duration_seconds",
			Help:    "SQL execution latency by outcome.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	catalogOmissionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "querydesk_catalog_omissions_total",
			Help: "Tables left out of a full catalog because their schema could not be read.",
		},
	)
	resourceReadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "querydesk_resource_reads_total",
			Help: "Total number of resource reads served by kind and result.",
		},
		[]string{"resource", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		queriesTotal,
		queryTurns,
		modelCallsTotal,
		modelCallDurationSeconds,
		toolCallsTotal,
		statementDurationSeconds,
		catalogOmissionsTotal,
		resourceReadsTotal,
	)
}

func ObserveQuery(result string, turns int) {
	queriesTotal.WithLabelValues(result).Inc()
	if turns > 0 {
		queryTurns.Observe(float64(turns))
	}
}

func ObserveModelCall(purpose string, err error, elapsed time.Duration) {
	modelCallsTotal.WithLabelValues(purpose, resultLabel(err)).Inc()
	modelCallDurationSeconds.WithLabelValues(purpose).Observe(elapsed.Seconds())
}

func ObserveToolCall(tool, outcome string) {
	toolCallsTotal.WithLabelValues(tool, outcome).Inc()
}

func ObserveStatement(outcome string, elapsed time.Duration) {
	statementDurationSeconds.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func AddCatalogOmissions(n int) {
	if n > 0 {
		catalogOmissionsTotal.Add(float64(n))
	}
}

func ObserveResourceRead(resource string, err error) {
	resourceReadsTotal.WithLabelValues(resource, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
