package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 分析未给出判定时的结果标签
const (
	OutcomeCancelled   = "cancelled"
	OutcomeUnavailable = "unavailable"
	OutcomeError       = "error"
)

var (
	analysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roadeye_analyses_total",
			Help: "Total number of video analyses by outcome",
		},
		[]string{"outcome"},
	)

	analysisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "roadeye_analysis_duration_seconds",
			Help:    "Video analysis duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	detectFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "roadeye_detect_failures_total",
			Help: "Frames skipped because the detector failed",
		},
	)

	notifyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "roadeye_notifications_total",
			Help: "Accident notifications by channel and status",
		},
		[]string{"channel", "status"},
	)
)

// ObserveAnalysis 记录一次分析的结果与耗时
func ObserveAnalysis(outcome string, cost time.Duration) {
	analysesTotal.WithLabelValues(outcome).Inc()
	analysisDuration.Observe(cost.Seconds())
}

// DetectFailed 单帧检测失败
func DetectFailed(int, error) {
	detectFailures.Inc()
}

// ObserveNotify 记录通知发送结果
func ObserveNotify(channel string, err error) {
	status := "ok"
	if err != nil {
		status = "failed"
	}
	notifyTotal.WithLabelValues(channel, status).Inc()
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
