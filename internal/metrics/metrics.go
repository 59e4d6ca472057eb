package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"matchvault/internal/archive"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "matchvault"

// Metrics collects queue, client and archive activity. It satisfies the
// observer interfaces of the queue, pvp and archive packages.
type Metrics struct {
	registry *prometheus.Registry

	attempts   prometheus.Counter
	retries    prometheus.Counter
	exhausted  prometheus.Counter
	depth      prometheus.Gauge
	captures   prometheus.Counter
	cache      *prometheus.CounterVec
	archives   *prometheus.CounterVec
	duration   prometheus.Histogram
	referenced *prometheus.CounterVec
}

// New creates the collectors on a private registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		attempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_attempts_total",
			Help:      "Total number of request attempts made by the queue",
		}),
		retries: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_retries_total",
			Help:      "Total number of failed attempts requeued for retry",
		}),
		exhausted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_exhausted_total",
			Help:      "Total number of requests that ran out of retries",
		}),
		depth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Current number of pending requests",
		}),
		captures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_captures_total",
			Help:      "Total number of malformed responses captured to disk",
		}),
		cache: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "match_cache_lookups_total",
			Help:      "Match detail cache lookups by result",
		}, []string{"result"}),
		archives: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archives_total",
			Help:      "Finished archive runs by outcome",
		}, []string{"outcome"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "archive_duration_seconds",
			Help:      "Duration of archive runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 8),
		}),
		referenced: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "referenced_matches_total",
			Help:      "Referenced matches archived by kind",
		}, []string{"kind"}),
	}
}

func (m *Metrics) ObserveAttempt()    { m.attempts.Inc() }
func (m *Metrics) ObserveRetry()      { m.retries.Inc() }
func (m *Metrics) ObserveExhausted()  { m.exhausted.Inc() }
func (m *Metrics) ObserveDepth(n int) { m.depth.Set(float64(n)) }
func (m *Metrics) ObserveCapture()    { m.captures.Inc() }

func (m *Metrics) ObserveCache(hit bool) {
	if hit {
		m.cache.WithLabelValues("hit").Inc()
		return
	}
	m.cache.WithLabelValues("miss").Inc()
}

func (m *Metrics) ObserveArchive(err error, elapsed time.Duration) {
	outcome := "completed"
	if err != nil {
		outcome = "failed"
	}
	m.archives.WithLabelValues(outcome).Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveReferenced(kind archive.Kind, n int) {
	m.referenced.WithLabelValues(string(kind)).Add(float64(n))
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done
func (m *Metrics) Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
