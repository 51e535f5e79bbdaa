package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce          sync.Once
	httpDurationHistogram *prometheus.HistogramVec
	transferOutcomeCount  *prometheus.CounterVec
	cashOutcomeCount      *prometheus.CounterVec
	stuckFundsCounter     *prometheus.CounterVec
	riskFailOpenCounter   prometheus.Counter
	blockedCounter        *prometheus.CounterVec
	notifyPublishCounter  *prometheus.CounterVec
	idempotencyCounter    *prometheus.CounterVec
	workerRunCounter      *prometheus.CounterVec
	staleRecordsGauge     prometheus.Gauge
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		transferOutcomeCount = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transfer_outcomes_total",
			Help: "Terminal transfer outcomes (done, blocked, unresolved, failed_*)",
		}, []string{"outcome"})

		cashOutcomeCount = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cash_outcomes_total",
			Help: "Terminal cash operation outcomes",
		}, []string{"type", "outcome"})

		stuckFundsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transfer_stuck_funds_total",
			Help: "Transfers that debited the source without a landed credit or compensation",
		}, []string{"currency"})

		riskFailOpenCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "risk_gate_fail_open_total",
			Help: "Risk gate calls that failed and were allowed through",
		})

		blockedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "blocker_blocked_total",
			Help: "Requests denied by the risk gate",
		}, []string{"currency"})

		notifyPublishCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notification_publish_total",
			Help: "Notification publish attempts by result",
		}, []string{"result"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker runs by result",
		}, []string{"worker", "result"})

		staleRecordsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "operation_records_stale_pending",
			Help: "Operation records still PENDING past the reconciliation threshold",
		})

		prometheus.MustRegister(
			httpDurationHistogram,
			transferOutcomeCount,
			cashOutcomeCount,
			stuckFundsCounter,
			riskFailOpenCounter,
			blockedCounter,
			notifyPublishCounter,
			idempotencyCounter,
			workerRunCounter,
			staleRecordsGauge,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementTransferOutcome(outcome string) {
	if transferOutcomeCount == nil {
		return
	}
	transferOutcomeCount.WithLabelValues(outcome).Inc()
}

func IncrementCashOutcome(opType, outcome string) {
	if cashOutcomeCount == nil {
		return
	}
	cashOutcomeCount.WithLabelValues(opType, outcome).Inc()
}

// IncrementStuckFunds marks the most severe failure class: money left the
// source account and neither the credit nor the compensation landed.
func IncrementStuckFunds(currency string) {
	if stuckFundsCounter == nil {
		return
	}
	stuckFundsCounter.WithLabelValues(currency).Inc()
}

func IncrementRiskFailOpen() {
	if riskFailOpenCounter == nil {
		return
	}
	riskFailOpenCounter.Inc()
}

func IncrementBlocked(currency string) {
	if blockedCounter == nil {
		return
	}
	blockedCounter.WithLabelValues(currency).Inc()
}

func IncrementNotifyPublish(result string) {
	if notifyPublishCounter == nil {
		return
	}
	notifyPublishCounter.WithLabelValues(result).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}

func SetStaleRecords(n int) {
	if staleRecordsGauge == nil {
		return
	}
	staleRecordsGauge.Set(float64(n))
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}
