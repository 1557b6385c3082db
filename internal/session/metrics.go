package session

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	sessions        metric.Int64Counter
	captureFailures metric.Int64Counter
	stops           metric.Int64Counter
	transcriptions  metric.Int64Counter
	latency         metric.Float64Histogram
}

func newMetrics() (*metrics, error) {
	meter := otel.Meter("github.com/loqalabs/loqa-dictate/session")

	sessions, err := meter.Int64Counter("dictate.sessions.started", metric.WithDescription("Recordings started"))
	if err != nil {
		return nil, err
	}
	captureFailures, err := meter.Int64Counter("dictate.capture.failures", metric.WithDescription("Recordings that could not open the input device"))
	if err != nil {
		return nil, err
	}
	stops, err := meter.Int64Counter("dictate.recordings.stopped", metric.WithDescription("Recordings stopped, by reason"))
	if err != nil {
		return nil, err
	}
	transcriptions, err := meter.Int64Counter("dictate.transcriptions", metric.WithDescription("Transcription outcomes"))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("dictate.transcription.duration", metric.WithDescription("Transcription latency"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return &metrics{
		sessions:        sessions,
		captureFailures: captureFailures,
		stops:           stops,
		transcriptions:  transcriptions,
		latency:         latency,
	}, nil
}

func (m *metrics) recordStop(ctx context.Context, reason string) {
	m.stops.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *metrics) recordTranscription(ctx context.Context, outcome string, took time.Duration) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.transcriptions.Add(ctx, 1, attrs)
	m.latency.Record(ctx, took.Seconds(), attrs)
}
