package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	aiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamemaster_ai_requests_total",
			Help: "Total number of requests to model providers.",
		},
		[]string{"provider", "model", "status"},
	)
	aiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gamemaster_ai_request_duration_seconds",
			Help:    "Histogram of model provider request durations.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider", "model"},
	)
	aiPromptTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gamemaster_ai_prompt_tokens",
			Help:    "Histogram of prompt token counts per generation step.",
			Buckets: prometheus.LinearBuckets(500, 500, 20),
		},
		[]string{"provider", "model"},
	)
	aiCompletionTokens = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gamemaster_ai_completion_tokens",
			Help:    "Histogram of completion token counts per generation step.",
			Buckets: prometheus.LinearBuckets(100, 100, 20),
		},
		[]string{"provider", "model"},
	)
	aiToolCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gamemaster_ai_tool_calls_total",
			Help: "Total number of tool calls requested by models.",
		},
		[]string{"provider", "model"},
	)
)
