package image

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	imageRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vnovel_image_requests_total",
			Help: "Total number of image generation requests by service and status.",
		},
		[]string{"service", "status"},
	)
	imagePollAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vnovel_image_poll_attempts",
			Help:    "Number of status polls needed to obtain an image.",
			Buckets: prometheus.LinearBuckets(1, 3, 10),
		},
	)
)
