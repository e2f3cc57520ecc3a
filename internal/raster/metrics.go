package raster

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rasterizeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "docframe_rasterize_duration_seconds",
			Help:    "Time to rasterize all pages of a document",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 25},
		},
	)

	pagesUnavailable = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docframe_pages_unavailable_total",
			Help: "Total number of pages that failed to rasterize",
		},
	)

	staleRasterizations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "docframe_stale_rasterizations_total",
			Help: "Total number of rasterizations discarded because the document changed",
		},
	)
)
