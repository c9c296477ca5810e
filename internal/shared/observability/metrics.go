package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ParsingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pyrename_parsing_seconds",
		Help:    "Time spent parsing a source file.",
		Buckets: prometheus.DefBuckets,
	}, []string{"language"})

	GraphBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pyrename_graph_build_seconds",
		Help:    "Time spent resolving the import graph.",
		Buckets: prometheus.DefBuckets,
	})

	ModulesIndexed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pyrename_modules_indexed",
		Help: "Number of Python modules in the current project index.",
	})

	IndexCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pyrename_index_cache_lookups_total",
		Help: "Scope-tree cache lookups by result (hit or miss).",
	}, []string{"result"})

	ReferencesCollected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pyrename_references_collected_total",
		Help: "Total number of references collected for rename targets.",
	})

	EditsPlanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pyrename_edits_planned_total",
		Help: "Total number of edits produced by the planner.",
	})

	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pyrename_analysis_seconds",
		Help:    "Time spent on each phase of a rename operation.",
		Buckets: prometheus.DefBuckets,
	}, []string{"phase"})

	VerificationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pyrename_verification_seconds",
		Help:    "Time spent verifying a snapshot, by level.",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"level"})

	OperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pyrename_operations_total",
		Help: "Rename operations by command and final state.",
	}, []string{"command", "state"})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pyrename_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})
)
