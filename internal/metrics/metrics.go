// Package metrics exposes prometheus instrumentation for the stats
// endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts stats requests by outcome code ("OK" or an
	// error code from the taxonomy).
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rewindbox_requests_total",
		Help: "Stats requests by outcome code.",
	}, []string{"code"})

	// RequestDuration observes the full decrypt-and-query cycle.
	RequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rewindbox_request_duration_seconds",
		Help:    "Duration of the decrypt-and-query cycle.",
		Buckets: prometheus.DefBuckets,
	})

	// UploadBytes counts bytes of uploaded database images after
	// transport decompression.
	UploadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rewindbox_upload_bytes_total",
		Help: "Uploaded database bytes after decompression.",
	})
)
