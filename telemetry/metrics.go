// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	InboundMessages     *prometheus.CounterVec // platform
	SkippedMessages     *prometheus.CounterVec // reason
	RepliesSent         *prometheus.CounterVec // branch: normal|moderated
	SendFailures        *prometheus.CounterVec // platform
	DroppedEvents       *prometheus.CounterVec // platform
	SessionOpenFailures *prometheus.CounterVec // platform
	BackendFailures     prometheus.Counter
	PersistFailures     *prometheus.CounterVec // op: append|log

	// Histograms (seconds)
	BackendDuration   prometheus.Observer
	ReconcileDuration prometheus.Observer

	// Gauges
	ActiveSessions prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		InboundMessages = promauto.NewCounterVec(prometheus.CounterOpts{Name: "neurobot_inbound_messages_total", Help: "Chat messages received"}, []string{"platform"})
		SkippedMessages = promauto.NewCounterVec(prometheus.CounterOpts{Name: "neurobot_skipped_messages_total", Help: "Messages not answered, by reason"}, []string{"reason"})
		RepliesSent = promauto.NewCounterVec(prometheus.CounterOpts{Name: "neurobot_replies_sent_total", Help: "Replies sent, by branch"}, []string{"branch"})
		SendFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "neurobot_send_failures_total", Help: "Replies that failed to send"}, []string{"platform"})
		DroppedEvents = promauto.NewCounterVec(prometheus.CounterOpts{Name: "neurobot_dropped_events_total", Help: "Inbound events dropped on a full session queue"}, []string{"platform"})
		SessionOpenFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "neurobot_session_open_failures_total", Help: "Sessions that failed to open"}, []string{"platform"})
		BackendFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "neurobot_backend_failures_total", Help: "Generative backend calls that failed or returned nothing"})
		PersistFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "neurobot_persist_failures_total", Help: "Memory or audit writes that failed"}, []string{"op"})
		BackendDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "neurobot_backend_duration_seconds", Help: "Generative backend call duration seconds", Buckets: prometheus.DefBuckets})
		ReconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "neurobot_reconcile_duration_seconds", Help: "Reconcile pass duration seconds", Buckets: prometheus.DefBuckets})
		ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{Name: "neurobot_active_sessions", Help: "Open chat sessions"})
	})
}

func incVec(v *prometheus.CounterVec, label string) {
	if v != nil {
		v.WithLabelValues(label).Inc()
	}
}

// Inbound counts a received message.
func Inbound(platform string) { incVec(InboundMessages, platform) }

// Skipped counts a message that produced no reply.
func Skipped(reason string) { incVec(SkippedMessages, reason) }

// Replied counts a sent reply.
func Replied(branch string) { incVec(RepliesSent, branch) }

// SendFailed counts a reply the transport refused.
func SendFailed(platform string) { incVec(SendFailures, platform) }

// Dropped counts an inbound event lost to backpressure.
func Dropped(platform string) { incVec(DroppedEvents, platform) }

// OpenFailed counts a session that could not be opened.
func OpenFailed(platform string) { incVec(SessionOpenFailures, platform) }

// PersistFailed counts a swallowed persistence error.
func PersistFailed(op string) { incVec(PersistFailures, op) }

// BackendFailed counts a failed generation.
func BackendFailed() {
	if BackendFailures != nil {
		BackendFailures.Inc()
	}
}

// SetActiveSessions records the current registry size.
func SetActiveSessions(n int) {
	if ActiveSessions != nil {
		ActiveSessions.Set(float64(n))
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

// NewCorrelation embeds a fresh random correlation id.
func NewCorrelation(ctx context.Context) (context.Context, string) {
	id := uuid.NewString()
	return WithCorrelation(ctx, id), id
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
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
