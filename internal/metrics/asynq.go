package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksHandled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "eventcert",
			Subsystem: "queue",
			Name:      "tasks_total",
			Help:      "排队任务处理次数。outcome 为 ok、retry 或 dropped。",
		},
		[]string{"task_type", "outcome"},
	)

	taskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "eventcert",
			Subsystem: "queue",
			Name:      "task_duration_seconds",
			Help:      "单个批次任务的处理耗时（秒）。",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		},
		[]string{"task_type"},
	)

	tasksRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "eventcert",
			Subsystem: "queue",
			Name:      "tasks_running",
			Help:      "worker 中正在执行的任务数。",
		},
	)
)

func taskOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, asynq.SkipRetry):
		return "dropped"
	default:
		return "retry"
	}
}

// AsynqMetricsMiddleware 记录批次任务的处理结果与耗时。
func AsynqMetricsMiddleware() asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			tasksRunning.Inc()
			defer tasksRunning.Dec()

			start := time.Now()
			err := next.ProcessTask(ctx, task)
			taskDuration.WithLabelValues(task.Type()).Observe(time.Since(start).Seconds())
			tasksHandled.WithLabelValues(task.Type(), taskOutcome(err)).Inc()
			return err
		})
	}
}
