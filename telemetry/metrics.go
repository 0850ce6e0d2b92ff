// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	TicksTotal         *prometheus.CounterVec // labels: target, result
	TicksSkipped       *prometheus.CounterVec // labels: target
	TransitionsTotal   *prometheus.CounterVec // labels: target, kind
	DeliveriesFailed   *prometheus.CounterVec // labels: target
	TokenExchanges     prometheus.Counter
	TokenExchangeFails prometheus.Counter

	// Histograms (seconds)
	TickDuration          *prometheus.HistogramVec // labels: target
	TokenExchangeDuration prometheus.Histogram

	// Gauges
	DeliveryReadyGauge prometheus.Gauge // 1=ready,0=waiting
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		TicksTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "watch_ticks_total", Help: "Polling ticks by outcome"}, []string{"target", "result"})
		TicksSkipped = promauto.NewCounterVec(prometheus.CounterOpts{Name: "watch_ticks_skipped_total", Help: "Ticks skipped because the previous tick was still running"}, []string{"target"})
		TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "watch_transitions_total", Help: "State transitions detected"}, []string{"target", "kind"})
		DeliveriesFailed = promauto.NewCounterVec(prometheus.CounterOpts{Name: "watch_deliveries_failed_total", Help: "Announcements that could not be delivered"}, []string{"target"})
		TokenExchanges = promauto.NewCounter(prometheus.CounterOpts{Name: "watch_token_exchanges_total", Help: "Client-credentials exchanges performed"})
		TokenExchangeFails = promauto.NewCounter(prometheus.CounterOpts{Name: "watch_token_exchange_failures_total", Help: "Client-credentials exchanges that failed"})
		TickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{Name: "watch_tick_duration_seconds", Help: "Tick duration seconds", Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}}, []string{"target"})
		TokenExchangeDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "watch_token_exchange_duration_seconds", Help: "Client-credentials exchange duration seconds", Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15}})
		DeliveryReadyGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "watch_delivery_ready", Help: "Delivery surface ready=1 waiting=0"})
	})
}

// RecordTick counts a finished tick for target with the given result label.
func RecordTick(target, result string, d time.Duration) {
	if TicksTotal != nil {
		TicksTotal.WithLabelValues(target, result).Inc()
	}
	if TickDuration != nil {
		TickDuration.WithLabelValues(target).Observe(d.Seconds())
	}
}

// RecordSkip counts a tick dropped by the overlap guard.
func RecordSkip(target string) {
	if TicksSkipped != nil {
		TicksSkipped.WithLabelValues(target).Inc()
	}
}

// RecordTransition counts a detected transition.
func RecordTransition(target, kind string) {
	if TransitionsTotal != nil {
		TransitionsTotal.WithLabelValues(target, kind).Inc()
	}
}

// RecordDeliveryFailure counts an announcement that was dropped.
func RecordDeliveryFailure(target string) {
	if DeliveriesFailed != nil {
		DeliveriesFailed.WithLabelValues(target).Inc()
	}
}

// RecordTokenExchange counts a client-credentials exchange and whether it failed.
func RecordTokenExchange(err error) {
	if TokenExchanges != nil {
		TokenExchanges.Inc()
	}
	if err != nil && TokenExchangeFails != nil {
		TokenExchangeFails.Inc()
	}
}

// SetDeliveryReady sets gauge to 1 if ready else 0.
func SetDeliveryReady(ready bool) {
	if DeliveryReadyGauge != nil {
		if ready {
			DeliveryReadyGauge.Set(1)
		} else {
			DeliveryReadyGauge.Set(0)
		}
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
