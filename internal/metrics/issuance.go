package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	certificatesRendered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventcert",
			Subsystem: "certificate",
			Name:      "renders_total",
			Help:      "证书渲染次数，按结果区分。",
		},
		[]string{"result"},
	)

	renderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "eventcert",
			Subsystem: "certificate",
			Name:      "render_duration_seconds",
			Help:      "单张证书渲染耗时（秒）。",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	emailsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventcert",
			Subsystem: "issuance",
			Name:      "emails_total",
			Help:      "批量发送中逐个收件人的投递结果。",
		},
		[]string{"kind", "result"},
	)

	batchRecipients = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "eventcert",
			Subsystem: "issuance",
			Name:      "batch_recipients",
			Help:      "每个批次的收件人数量。",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
	)
)

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// ObserveRender 记录一次证书渲染。
func ObserveRender(started time.Time, err error) {
	certificatesRendered.WithLabelValues(result(err)).Inc()
	if err == nil {
		renderDuration.Observe(time.Since(started).Seconds())
	}
}

// ObserveDelivery 记录一位收件人的投递结果。
func ObserveDelivery(kind string, err error) {
	emailsDelivered.WithLabelValues(kind, result(err)).Inc()
}

// ObserveBatch 记录批次规模。
func ObserveBatch(recipients int) {
	batchRecipients.Observe(float64(recipients))
}
