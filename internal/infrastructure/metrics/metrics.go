package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Ledger metrics
	EntriesCreated     prometheus.Counter
	EntriesAmended     prometheus.Counter
	MutationDuration   *prometheus.HistogramVec
	MutationRejections *prometheus.CounterVec
	HashChainFailures  prometheus.Counter

	// Export metrics
	Exports        *prometheus.CounterVec
	ExportDuration *prometheus.HistogramVec
	ExportBytes    *prometheus.HistogramVec
	ExportArchived prometheus.Counter

	// API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Database metrics
	DBRetries *prometheus.CounterVec
	DBErrors  *prometheus.CounterVec

	// Lock metrics
	LockWaitDuration *prometheus.HistogramVec
	LockTimeouts     *prometheus.CounterVec

	// Authentication metrics
	AuthFailures *prometheus.CounterVec

	// Rate limiting metrics
	RateLimitHits *prometheus.CounterVec
}

// New creates all Prometheus metrics and registers them with reg. A nil reg
// uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		// Ledger metrics
		EntriesCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "clinicalledger_entries_created_total",
			Help: "Total number of treatment entries created",
		}),
		EntriesAmended: f.NewCounter(prometheus.CounterOpts{
			Name: "clinicalledger_entries_amended_total",
			Help: "Total number of accepted amendments",
		}),
		MutationDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clinicalledger_mutation_duration_seconds",
				Help:    "Duration of create and amend operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		MutationRejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinicalledger_mutation_rejections_total",
				Help: "Rejected create and amend operations by error kind",
			},
			[]string{"operation", "kind"},
		),
		HashChainFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "clinicalledger_hash_chain_failures_total",
			Help: "Audit histories whose hash chain failed verification",
		}),

		// Export metrics
		Exports: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinicalledger_exports_total",
				Help: "Total number of ledger exports by format and status",
			},
			[]string{"format", "status"},
		),
		ExportDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clinicalledger_export_duration_seconds",
				Help:    "Duration of ledger exports",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format"},
		),
		ExportBytes: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clinicalledger_export_bytes",
				Help:    "Size of rendered exports",
				Buckets: prometheus.ExponentialBuckets(256, 4, 8),
			},
			[]string{"format"},
		),
		ExportArchived: f.NewCounter(prometheus.CounterOpts{
			Name: "clinicalledger_exports_archived_total",
			Help: "Total number of exports stored in object storage",
		}),

		// API metrics
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinicalledger_http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clinicalledger_http_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		// Database metrics
		DBRetries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinicalledger_db_retries_total",
				Help: "Transactions retried after serialization failures or deadlocks",
			},
			[]string{"code"},
		),
		DBErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinicalledger_db_errors_total",
				Help: "Database errors by operation",
			},
			[]string{"operation"},
		),

		// Lock metrics
		LockWaitDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clinicalledger_lock_wait_seconds",
				Help:    "Time spent acquiring per-entry locks",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"backend"},
		),
		LockTimeouts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinicalledger_lock_timeouts_total",
				Help: "Per-entry lock acquisitions abandoned on context expiry",
			},
			[]string{"backend"},
		),

		// Authentication metrics
		AuthFailures: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinicalledger_auth_failures_total",
				Help: "Rejected bearer tokens by reason",
			},
			[]string{"reason"},
		),

		// Rate limiting metrics
		RateLimitHits: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clinicalledger_rate_limit_hits_total",
				Help: "Requests rejected by the rate limiter",
			},
			[]string{"path"},
		),
	}
}
