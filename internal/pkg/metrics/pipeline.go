package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	leadsByStage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gpdata_leads_by_stage",
			Help: "Number of leads currently in each sales stage",
		},
		[]string{"stage"},
	)

	workerTasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gpdata_worker_tasks_total",
			Help: "Total number of background tasks processed",
		},
		[]string{"task_type", "status"},
	)

	followupsScheduled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gpdata_followups_scheduled_total",
			Help: "Total number of follow-ups scheduled by the stale lead scan",
		},
	)
)

// SetLeadsByStage replaces the pipeline snapshot.
// Stages absent from counts are reported as zero.
func SetLeadsByStage(stages []string, counts map[string]int64) {
	for _, stage := range stages {
		leadsByStage.WithLabelValues(stage).Set(float64(counts[stage]))
	}
}

// RecordTask records the outcome of a background task
func RecordTask(taskType string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	workerTasksTotal.WithLabelValues(taskType, status).Inc()
}

// RecordFollowupsScheduled adds to the scheduled follow-up counter
func RecordFollowupsScheduled(n int) {
	followupsScheduled.Add(float64(n))
}
