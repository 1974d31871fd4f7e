package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "phrestore",
		Subsystem: "jobs",
		Name:      "submitted_total",
		Help:      "提交的修复任务总数。",
	})

	jobsFinishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "phrestore",
		Subsystem: "jobs",
		Name:      "finished_total",
		Help:      "进入终态的修复任务数，按结果区分。",
	}, []string{"status"})

	jobsReapedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "phrestore",
		Subsystem: "jobs",
		Name:      "reaped_total",
		Help:      "因处理超时被标记失败的任务数。",
	})
)

func JobSubmitted() { jobsSubmittedTotal.Inc() }
func JobFinished(status string) { jobsFinishedTotal.WithLabelValues(status).Inc() }
func JobsReaped(n int64) { jobsReapedTotal.Add(float64(n)) }
