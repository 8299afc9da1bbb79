package engine

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "engine/dispatcher"

type messageMetrics struct {
	logger         *log.Logger
	span           trace.Span
	start          time.Time
	handleDuration time.Duration
	msgType        string
	partition      int
	offset         int64
	attempts       int
	errorStage     string
}

func newMessageMetrics(ctx context.Context, logger *log.Logger, partition int, offset int64) (*messageMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, "dispatch.message",
		trace.WithAttributes(
			attribute.Int("bus.partition", partition),
			attribute.Int64("bus.offset", offset),
		))
	return &messageMetrics{
		logger:    logger,
		span:      span,
		start:     time.Now(),
		partition: partition,
		offset:    offset,
	}, spanCtx
}

func (m *messageMetrics) SetType(msgType string) {
	m.msgType = msgType
	m.span.SetAttributes(attribute.String("message.type", msgType))
}

func (m *messageMetrics) SetAttempts(attempts int) {
	m.attempts = attempts
}

func (m *messageMetrics) ObserveHandle(duration time.Duration) {
	if duration <= 0 {
		return
	}
	m.handleDuration += duration
}

func (m *messageMetrics) SetErrorStage(stage string) {
	if stage == "" {
		return
	}
	m.errorStage = stage
	m.span.AddEvent("dispatch.stage_failed", trace.WithAttributes(attribute.String("stage", stage)))
}

func (m *messageMetrics) Log(err error) {
	if m == nil {
		return
	}
	defer m.span.End()

	fields := log.Fields{
		"partition": m.partition,
		"offset":    m.offset,
		"type":      m.msgType,
		"attempts":  m.attempts,
		"total_ms":  durationToMillis(time.Since(m.start)),
	}
	if m.handleDuration > 0 {
		fields["handle_ms"] = durationToMillis(m.handleDuration)
	}
	if m.errorStage != "" {
		fields["error_stage"] = m.errorStage
	}
	if sc := m.span.SpanContext(); sc.HasTraceID() {
		fields["trace_id"] = sc.TraceID().String()
	}

	if err != nil {
		m.span.RecordError(err)
		m.span.SetStatus(codes.Error, err.Error())
		fields["error"] = err.Error()
		m.logger.WithFields(fields).Warn("message.dispatch.metrics")
		return
	}
	m.span.SetStatus(codes.Ok, "")
	m.logger.WithFields(fields).Info("message.dispatch.metrics")
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
