package review

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	locateRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docframe_locate_requests_total",
			Help: "Total number of locate requests by target kind and outcome",
		},
		[]string{"kind", "status"},
	)

	openDocuments = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "docframe_documents_opened_total",
			Help: "Total number of document opens by outcome",
		},
		[]string{"outcome"},
	)
)
