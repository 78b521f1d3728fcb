package utils

import (
	"context"

	"github.com/sirupsen/logrus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// NewTracerProvider returns a tracer provider that reports finished spans
// to the logger at debug level
func NewTracerProvider(logger *logrus.Logger) *sdktrace.TracerProvider {
	return sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(&logSpanProcessor{logger: logger}),
	)
}

// logSpanProcessor writes each ended span as one log line
type logSpanProcessor struct {
	logger *logrus.Logger
}

func (p *logSpanProcessor) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {}

func (p *logSpanProcessor) OnEnd(s sdktrace.ReadOnlySpan) {
	if !p.logger.IsLevelEnabled(logrus.DebugLevel) {
		return
	}

	fields := logrus.Fields{
		"span":        s.Name(),
		"trace_id":    s.SpanContext().TraceID().String(),
		"duration_ms": s.EndTime().Sub(s.StartTime()).Milliseconds(),
	}
	for _, attr := range s.Attributes() {
		fields["span."+string(attr.Key)] = attr.Value.Emit()
	}
	if status := s.Status(); status.Description != "" {
		fields["span.error"] = status.Description
	}

	p.logger.WithFields(fields).Debug("Span finished")
}

func (p *logSpanProcessor) Shutdown(ctx context.Context) error { return nil }

func (p *logSpanProcessor) ForceFlush(ctx context.Context) error { return nil }
