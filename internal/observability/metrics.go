package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce            sync.Once
	httpDurationHistogram   *prometheus.HistogramVec
	depositDetectedCounter  *prometheus.CounterVec
	depositRejectedCounter  *prometheus.CounterVec
	depositForwardedCounter *prometheus.CounterVec
	depositConfirmedCounter *prometheus.CounterVec
	workerRunCounter        *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		depositDetectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deposits_detected_total",
			Help: "Deposits recorded by the chain scanners",
		}, []string{"chain", "kind"})

		depositRejectedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deposits_rejected_total",
			Help: "Chain inputs skipped during scanning",
		}, []string{"chain", "reason"})

		depositForwardedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deposits_forwarded_total",
			Help: "Deposits forwarded off their deposit address",
		}, []string{"chain"})

		depositConfirmedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "deposits_confirmed_total",
			Help: "Forwarding transactions that reached the confirmation threshold",
		}, []string{"chain"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			depositDetectedCounter,
			depositRejectedCounter,
			depositForwardedCounter,
			depositConfirmedCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementDepositDetected(chain, kind string) {
	if depositDetectedCounter == nil {
		return
	}
	depositDetectedCounter.WithLabelValues(chain, kind).Inc()
}

func IncrementDepositRejected(chain, reason string) {
	if depositRejectedCounter == nil {
		return
	}
	depositRejectedCounter.WithLabelValues(chain, reason).Inc()
}

func IncrementDepositForwarded(chain string) {
	if depositForwardedCounter == nil {
		return
	}
	depositForwardedCounter.WithLabelValues(chain).Inc()
}

func IncrementDepositConfirmed(chain string) {
	if depositConfirmedCounter == nil {
		return
	}
	depositConfirmedCounter.WithLabelValues(chain).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
