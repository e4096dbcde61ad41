package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Run metrics
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_runs_total",
			Help: "Total number of research runs by final status",
		},
		[]string{"status"},
	)

	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "research_run_duration_seconds",
			Help:    "Research run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	ResearchLoops = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "research_loops",
			Help:    "Number of search/reflection loops per completed run",
			Buckets: []float64{1, 2, 3, 4, 5, 8, 10},
		},
	)

	// Search metrics
	SearchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_search_outcomes_total",
			Help: "Search executions by outcome (contributed, no_results, no_contribution, timeout, search_error)",
		},
		[]string{"outcome"},
	)

	ResultSummaries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_result_summaries_total",
			Help: "Per-result summarization outcomes (relevant, irrelevant, failed, skipped)",
		},
		[]string{"outcome"},
	)

	SourcesRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "research_sources_registered_total",
			Help: "Distinct sources registered across runs",
		},
	)

	// Model metrics
	ModelRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_model_retries_total",
			Help: "Structured model calls retried after malformed output or provider errors",
		},
		[]string{"stage"},
	)

	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_search_provider_requests_total",
			Help: "Requests sent to search providers by provider and status",
		},
		[]string{"provider", "status"},
	)
)
