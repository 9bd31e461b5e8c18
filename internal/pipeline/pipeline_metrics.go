package pipeline

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/cbwatch/internal/broadcast"
	"github.com/linnemanlabs/cbwatch/internal/dispatch"
	"github.com/linnemanlabs/cbwatch/internal/pdu"
)

// Metrics holds Prometheus metrics for the pipeline and its sinks.
type Metrics struct {
	SubmitsTotal     *prometheus.CounterVec
	BatchesTotal     *prometheus.CounterVec
	FragmentsDropped *prometheus.CounterVec
	MessagesTotal    *prometheus.CounterVec
	PipelineDuration *prometheus.HistogramVec
	SinkCallsTotal   *prometheus.CounterVec
	SinkAttempts     *prometheus.HistogramVec
	SinkDuration     *prometheus.HistogramVec
	SinkFailures     *prometheus.CounterVec
	SinkQueueDropped *prometheus.CounterVec
}

// NewMetrics registers and returns pipeline metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SubmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbwatch_submits_total",
			Help: "Total batch submissions by result.",
		}, []string{"result"}),
		BatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbwatch_batches_total",
			Help: "Total processed batches by format and result.",
		}, []string{"format", "result"}),
		FragmentsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbwatch_fragments_dropped_total",
			Help: "Pages skipped during assembly because they could not be decoded.",
		}, []string{"format", "kind"}),
		MessagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbwatch_messages_total",
			Help: "Assembled messages by format, category and policy decision.",
		}, []string{"format", "category", "decision"}),
		PipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cbwatch_pipeline_duration_seconds",
			Help:    "Time from batch start to dispatch in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8), // 100us .. ~1.6s
		}, []string{"format"}),
		SinkCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbwatch_sink_calls_total",
			Help: "Total sink calls by sink and outcome.",
		}, []string{"sink", "outcome"}),
		SinkAttempts: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cbwatch_sink_attempts",
			Help:    "Attempts made per sink call.",
			Buckets: prometheus.LinearBuckets(1, 1, 8), // 1 .. 8
		}, []string{"sink"}),
		SinkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cbwatch_sink_duration_seconds",
			Help:    "Duration of sink calls including retries in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms .. ~10s
		}, []string{"sink"}),
		SinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbwatch_sink_failures_total",
			Help: "Sink calls abandoned after exhausting retries.",
		}, []string{"sink"}),
		SinkQueueDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cbwatch_sink_queue_dropped_total",
			Help: "Sink work dropped because the queue was full or closed.",
		}, []string{"sink"}),
	}

	reg.MustRegister(
		m.SubmitsTotal,
		m.BatchesTotal,
		m.FragmentsDropped,
		m.MessagesTotal,
		m.PipelineDuration,
		m.SinkCallsTotal,
		m.SinkAttempts,
		m.SinkDuration,
		m.SinkFailures,
		m.SinkQueueDropped,
	)

	return m
}

// Hooks returns service Hooks that increment the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnSubmit: func(result string) {
			m.SubmitsTotal.WithLabelValues(result).Inc()
		},
		OnMessage: func(format, category, decision string) {
			m.MessagesTotal.WithLabelValues(format, category, decision).Inc()
		},
		OnComplete: func(format, result string, duration float64) {
			m.BatchesTotal.WithLabelValues(format, result).Inc()
			m.PipelineDuration.WithLabelValues(format).Observe(duration)
		},
	}
}

// DispatchHooks returns coordinator hooks that record sink outcomes.
func (m *Metrics) DispatchHooks() dispatch.Hooks {
	return dispatch.Hooks{
		OnResult: func(sink string, attempts int, duration float64, err error) {
			outcome := "success"
			if err != nil {
				outcome = "error"
				m.SinkFailures.WithLabelValues(sink).Inc()
			}
			m.SinkCallsTotal.WithLabelValues(sink, outcome).Inc()
			m.SinkAttempts.WithLabelValues(sink).Observe(float64(attempts))
			m.SinkDuration.WithLabelValues(sink).Observe(duration)
		},
		OnDrop: func(sink string) {
			m.SinkQueueDropped.WithLabelValues(sink).Inc()
		},
	}
}

// DropHook returns an assembler hook counting skipped pages by decode error kind.
func (m *Metrics) DropHook() broadcast.DropHook {
	return func(format pdu.Format, _ int, err error) {
		m.FragmentsDropped.WithLabelValues(format.String(), dropKind(err)).Inc()
	}
}

func dropKind(err error) string {
	switch {
	case errors.Is(err, pdu.ErrTruncated):
		return "truncated"
	case errors.Is(err, pdu.ErrInvalidHeader):
		return "invalid_header"
	default:
		return "other"
	}
}
