package cycle

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ivprover",
		Subsystem: "cycle",
		Name:      "total",
		Help:      "Count of proof submission cycles by result.",
	}, []string{"result"})

	cycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ivprover",
		Subsystem: "cycle",
		Name:      "duration_seconds",
		Help:      "Duration of proof submission cycles.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
	}, []string{"result"})

	selectedSwaps = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ivprover",
		Subsystem: "cycle",
		Name:      "selected_swaps",
		Help:      "Number of swaps proven in the last cycle.",
	})

	lastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ivprover",
		Subsystem: "cycle",
		Name:      "last_success_timestamp_seconds",
		Help:      "Unix time of the last completed cycle.",
	})
)

const (
	resultSuccess = "success"
	resultError   = "error"
)

func observeCycle(err error, swaps int, started, finished time.Time) {
	result := resultSuccess
	if err != nil {
		result = resultError
	}
	cyclesTotal.WithLabelValues(result).Inc()
	cycleDuration.WithLabelValues(result).Observe(finished.Sub(started).Seconds())
	if err == nil {
		selectedSwaps.Set(float64(swaps))
		lastSuccess.Set(float64(finished.Unix()))
	}
}
