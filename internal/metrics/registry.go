package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	defaultMetrics *Metrics
	once           sync.Once
)

// Default returns the process-wide instance registered with the default
// registerer, creating it on first use.
func Default() *Metrics {
	once.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewRegistry creates an isolated registry carrying the gate metrics plus
// the Go runtime and process collectors.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, NewMetrics(reg)
}

// HandlerFor returns the exposition handler for reg.
func HandlerFor(reg prometheus.Gatherer, opts promhttp.HandlerOpts) http.Handler {
	return promhttp.HandlerFor(reg, opts)
}
