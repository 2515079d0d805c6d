package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tasksProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vnovel_image_worker_tasks_processed_total",
			Help: "Total number of image generation tasks processed.",
		},
		[]string{"status"}, // success, error_generation, error_publish, error_unmarshal
	)
	taskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vnovel_image_worker_task_duration_seconds",
		Help:    "Duration of image generation task processing.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 9), // 1s .. 256s
	})
)
