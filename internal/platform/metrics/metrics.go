package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the media server.
type Metrics struct {
	registry                 *prometheus.Registry
	requestsTotal            prometheus.Counter
	errorsTotal              prometheus.Counter
	listingsTotal            prometheus.Counter
	thumbnailsGenerated      prometheus.Counter
	thumbnailFailures        prometheus.Counter
	subtitleExtractionsTotal prometheus.Counter
	cacheHitsTotal           prometheus.Counter
	cacheMissesTotal         prometheus.Counter
	cacheSizeBytes           prometheus.Gauge
}

// New creates and registers Prometheus metrics for the media server.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	listingsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_listings_total",
		Help: "Total number of directory and archive listings served",
	})
	thumbnailsGenerated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_thumbnails_generated_total",
		Help: "Total number of thumbnails derived from source media",
	})
	thumbnailFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_thumbnail_failures_total",
		Help: "Total number of thumbnail derivations that failed to decode",
	})
	subtitleExtractionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_subtitle_extractions_total",
		Help: "Total number of embedded subtitle extractions performed",
	})
	cacheHitsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_cache_hits_total",
		Help: "Total number of derivation cache hits",
	})
	cacheMissesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_cache_misses_total",
		Help: "Total number of derivation cache misses",
	})
	cacheSizeBytes := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "media_cache_size_bytes",
		Help: "On-disk size of the derivation cache",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		listingsTotal,
		thumbnailsGenerated,
		thumbnailFailures,
		subtitleExtractionsTotal,
		cacheHitsTotal,
		cacheMissesTotal,
		cacheSizeBytes,
	)

	return &Metrics{
		registry:                 registry,
		requestsTotal:            requestsTotal,
		errorsTotal:              errorsTotal,
		listingsTotal:            listingsTotal,
		thumbnailsGenerated:      thumbnailsGenerated,
		thumbnailFailures:        thumbnailFailures,
		subtitleExtractionsTotal: subtitleExtractionsTotal,
		cacheHitsTotal:           cacheHitsTotal,
		cacheMissesTotal:         cacheMissesTotal,
		cacheSizeBytes:           cacheSizeBytes,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncListings increments the listings counter.
func (m *Metrics) IncListings() {
	m.listingsTotal.Inc()
}

// IncThumbnailsGenerated increments the thumbnails generated counter.
func (m *Metrics) IncThumbnailsGenerated() {
	m.thumbnailsGenerated.Inc()
}

// IncThumbnailFailures increments the thumbnail decode failure counter.
func (m *Metrics) IncThumbnailFailures() {
	m.thumbnailFailures.Inc()
}

// IncSubtitleExtractions increments the subtitle extraction counter.
func (m *Metrics) IncSubtitleExtractions() {
	m.subtitleExtractionsTotal.Inc()
}

// IncCacheHits increments the cache hit counter.
func (m *Metrics) IncCacheHits() {
	m.cacheHitsTotal.Inc()
}

// IncCacheMisses increments the cache miss counter.
func (m *Metrics) IncCacheMisses() {
	m.cacheMissesTotal.Inc()
}

// SetCacheSizeBytes sets the cache size gauge.
func (m *Metrics) SetCacheSizeBytes(n int64) {
	m.cacheSizeBytes.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values
// (e.g. cache size).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
