package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"video-thumbnail/internal/logging"
)

// MetricsHandler serves the default registry, OpenMetrics when the scraper
// asks for it. Collection errors are logged and the remaining metrics served.
func (h *Handlers) MetricsHandler() http.Handler {
	return promhttp.InstrumentMetricHandler(prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			ErrorLog:          promLogger{},
			ErrorHandling:     promhttp.ContinueOnError,
			EnableOpenMetrics: true,
		}))
}

// promLogger adapts logging to promhttp.Logger.
type promLogger struct{}

func (promLogger) Println(v ...interface{}) {
	logging.Warn("metrics: %v", v)
}
