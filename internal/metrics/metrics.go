package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemsPushed tracks items forwarded to each output queue
	ItemsPushed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_items_pushed_total",
			Help: "Total number of items pushed to output queues",
		},
		[]string{"queue"},
	)

	// JobAttempts tracks backend runs, including resumed ones
	JobAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_job_attempts_total",
			Help: "Total number of job runs",
		},
		[]string{"backend"},
	)

	// JobResumes tracks runs resumed after a failure
	JobResumes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_job_resumes_total",
			Help: "Total number of job runs resumed after a failure",
		},
		[]string{"backend"},
	)

	// JobOutcomes tracks finished jobs by final state
	JobOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_job_outcomes_total",
			Help: "Total number of finished jobs by final state",
		},
		[]string{"backend", "state"},
	)

	// JobDuration tracks wall time of whole executions
	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harvester_job_duration_seconds",
			Help:    "Job execution time in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)
)
