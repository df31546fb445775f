package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ingestion metrics
	MemoriesIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mnemos_memories_ingested_total",
			Help: "Total number of memories ingested by source kind",
		},
		[]string{"source_kind"},
	)

	IngestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mnemos_ingest_duration_seconds",
			Help:    "Time taken for the ingestion transaction to commit",
			Buckets: prometheus.DefBuckets,
		},
	)

	IngestDedupHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mnemos_ingest_dedup_hits_total",
			Help: "Total number of ingests short-circuited by digest dedup",
		},
	)

	// Background job metrics
	JobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mnemos_jobs_processed_total",
			Help: "Total number of background jobs processed by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mnemos_job_duration_seconds",
			Help:    "Background job handler duration by kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Vault metrics
	VaultAuditDiscrepanciesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mnemos_vault_audit_discrepancies",
			Help: "Discrepancies found by the last vault audit, by kind",
		},
		[]string{"kind"},
	)

	VaultAuditDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mnemos_vault_audit_duration_seconds",
			Help:    "Time taken for a full vault audit pass",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Scheduler metrics
	LoopRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mnemos_loop_runs_total",
			Help: "Total number of named loop runs by loop name and outcome",
		},
		[]string{"loop", "outcome"},
	)

	LoopDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mnemos_loop_duration_seconds",
			Help:    "Named loop run duration by loop name",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"loop"},
	)

	LoopDisabledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mnemos_loop_disabled_total",
			Help: "Total number of times a loop auto-disabled after consecutive failures",
		},
		[]string{"loop"},
	)

	// Heartbeat/testament metrics
	HeartbeatAlertLevel = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mnemos_heartbeat_alert_level",
			Help: "Current escalation level, 0 (Fresh) through 5 (InheritanceTriggered)",
		},
	)

	HeartbeatDaysSinceCheckin = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mnemos_heartbeat_days_since_checkin",
			Help: "Days elapsed since the last recorded check-in",
		},
	)

	// Search metrics
	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mnemos_search_duration_seconds",
			Help:    "Hybrid search latency by mode (keyword, semantic, hybrid)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	// Chat metrics
	ChatTurnsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mnemos_chat_turns_total",
			Help: "Total number of chat turns answered",
		},
	)

	ChatResponseDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mnemos_chat_response_duration_seconds",
			Help:    "Time from a chat question to the done frame",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Provider metrics
	ProviderRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mnemos_provider_requests_total",
			Help: "Total embedding/chat provider requests by provider kind and outcome",
		},
		[]string{"provider", "outcome"},
	)

	ProviderRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mnemos_provider_request_duration_seconds",
			Help:    "Embedding/chat provider request duration by provider kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(MemoriesIngestedTotal)
	prometheus.MustRegister(IngestDuration)
	prometheus.MustRegister(IngestDedupHitsTotal)

	prometheus.MustRegister(JobsProcessedTotal)
	prometheus.MustRegister(JobDuration)

	prometheus.MustRegister(VaultAuditDiscrepanciesTotal)
	prometheus.MustRegister(VaultAuditDuration)

	prometheus.MustRegister(LoopRunsTotal)
	prometheus.MustRegister(LoopDuration)
	prometheus.MustRegister(LoopDisabledTotal)

	prometheus.MustRegister(HeartbeatAlertLevel)
	prometheus.MustRegister(HeartbeatDaysSinceCheckin)

	prometheus.MustRegister(SearchDuration)

	prometheus.MustRegister(ChatTurnsTotal)
	prometheus.MustRegister(ChatResponseDuration)

	prometheus.MustRegister(ProviderRequestsTotal)
	prometheus.MustRegister(ProviderRequestDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times an operation for later observation against a histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time to histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed time to a labeled histogram vec.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
