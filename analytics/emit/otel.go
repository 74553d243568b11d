package emit

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// OTelEmitter turns each event into an OpenTelemetry span. Events are
// points in time, so each span is ended immediately; the batch span
// processor handles export.
//
// Setup is the usual SDK wiring:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
//	emitter := emit.NewOTelEmitter(otel.Tracer("graph-analytics"))
type OTelEmitter struct {
	tracer trace.Tracer
}

// NewOTelEmitter creates an emitter on the given tracer.
func NewOTelEmitter(tracer trace.Tracer) *OTelEmitter {
	return &OTelEmitter{tracer: tracer}
}

// Emit records the event as a span named after event.Msg, with the run,
// phase, engine, and job identifiers plus all metadata as attributes. An
// "error" metadata entry marks the span as failed.
func (o *OTelEmitter) Emit(event Event) {
	_, span := o.tracer.Start(context.Background(), event.Msg)
	defer span.End()

	span.SetAttributes(
		attribute.String("run_id", event.RunID),
		attribute.String("phase", event.Phase),
		attribute.String("engine_id", event.EngineID),
		attribute.String("job_id", event.JobID),
	)
	o.addMeta(span, event.Meta)

	if errText, ok := event.Meta["error"].(string); ok && errText != "" {
		span.SetStatus(codes.Error, errText)
		span.RecordError(fmt.Errorf("%s", errText))
	}
}

// Flush forces export of buffered spans; call before shutdown. A no-op
// when the global provider is not an SDK TracerProvider.
func (o *OTelEmitter) Flush(ctx context.Context) error {
	if tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); ok {
		return tp.ForceFlush(ctx)
	}
	return nil
}

func (o *OTelEmitter) addMeta(span trace.Span, meta map[string]any) {
	for key, value := range meta {
		switch v := value.(type) {
		case string:
			span.SetAttributes(attribute.String(key, v))
		case bool:
			span.SetAttributes(attribute.Bool(key, v))
		case int:
			span.SetAttributes(attribute.Int(key, v))
		case int64:
			span.SetAttributes(attribute.Int64(key, v))
		case float64:
			span.SetAttributes(attribute.Float64(key, v))
		default:
			span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
		}
	}
}
