package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 凭证相关指标
	CredentialRotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geminivoice_credential_rotations_total",
			Help: "Total number of credential rotations",
		},
		[]string{"reason"},
	)

	CredentialErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geminivoice_credential_errors_total",
			Help: "Total number of credential failures by classified error class",
		},
		[]string{"credential", "class"},
	)

	CredentialsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "geminivoice_credentials",
			Help: "Number of pooled credentials per status",
		},
		[]string{"status"},
	)

	PersistWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geminivoice_credential_persist_writes_total",
			Help: "Credential metadata writes by outcome",
		},
		[]string{"outcome"},
	)

	// 会话相关指标
	ConnectAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geminivoice_session_connect_attempts_total",
			Help: "Upstream session open attempts by outcome",
		},
		[]string{"outcome"},
	)

	ConnectDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "geminivoice_session_connect_duration_seconds",
			Help:    "Time spent in Connect including retries and backoff",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	CircuitOpensTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geminivoice_session_circuit_opens_total",
			Help: "Number of times the session circuit breaker opened",
		},
	)

	ReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geminivoice_session_reconnects_total",
			Help: "Automatic reconnects by outcome",
		},
		[]string{"outcome"},
	)

	SessionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geminivoice_session_errors_total",
			Help: "Send/receive failures by operation and class",
		},
		[]string{"op", "class"},
	)

	SessionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "geminivoice_session_state",
			Help: "1 for the current session state, 0 otherwise",
		},
		[]string{"state"},
	)

	// 存储指标
	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "geminivoice_storage_operation_duration_seconds",
			Help:    "Storage backend operation latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"backend", "operation"},
	)

	StorageOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geminivoice_storage_operation_errors_total",
			Help: "Storage backend operation failures",
		},
		[]string{"backend", "operation"},
	)

	// 管理接口指标
	AdminRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geminivoice_admin_requests_total",
			Help: "Admin API requests",
		},
		[]string{"method", "path", "status_class"},
	)

	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geminivoice_admin_rate_limit_rejections_total",
			Help: "Admin API requests rejected by the rate limiter",
		},
	)

	// 后台任务
	TasksRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "geminivoice_tasks_running",
			Help: "Background tasks currently running",
		},
	)

	TaskRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "geminivoice_task_rejections_total",
			Help: "Background tasks rejected because the task manager was at capacity",
		},
	)
)

// RecordStorageOperation tracks a storage backend operation.
func RecordStorageOperation(backend, operation string, duration time.Duration, err error) {
	StorageOperationDuration.WithLabelValues(backend, operation).Observe(duration.Seconds())
	if err != nil {
		StorageOperationErrors.WithLabelValues(backend, operation).Inc()
	}
}

// SetSessionState flips the state gauge so exactly one state reports 1.
func SetSessionState(current string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == current {
			v = 1
		}
		SessionState.WithLabelValues(s).Set(v)
	}
}

// SetCredentialCounts publishes the per-status credential gauge.
func SetCredentialCounts(counts map[string]int) {
	for status, n := range counts {
		CredentialsByStatus.WithLabelValues(status).Set(float64(n))
	}
}

// StatusClass buckets an HTTP status code as "2xx", "4xx", ...
func StatusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
