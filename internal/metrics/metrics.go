// Package metrics exposes Prometheus counters for the signing pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CertificationsTotal counts successful document certifications.
	CertificationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "esign",
		Name:      "certifications_total",
		Help:      "Number of documents certified.",
	})

	// SignaturesTotal counts successful field signatures.
	SignaturesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "esign",
		Name:      "signatures_total",
		Help:      "Number of field signatures applied.",
	})

	// TimestampsTotal counts timestamp tokens issued by the responder.
	TimestampsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "esign",
		Name:      "timestamps_total",
		Help:      "Number of timestamp tokens issued.",
	})

	// JournalsSealedTotal counts sealed proof journals.
	JournalsSealedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "esign",
		Name:      "journals_sealed_total",
		Help:      "Number of proof journals sealed.",
	})

	// FailuresTotal counts failed operations by name.
	FailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "esign",
		Name:      "failures_total",
		Help:      "Number of failed operations.",
	}, []string{"operation"})
)

// Handler serves the default registry over HTTP.
func Handler() http.Handler {
	return promhttp.Handler()
}
