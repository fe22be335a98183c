package lg

import (
	"context"
	"log"
	"runtime"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	"go.opentelemetry.io/otel/trace"
)

var tracerKey = contextKey{"tracer"}

func Tracer(ctx context.Context) trace.Tracer {
	if t := fromContext[contextKey, trace.Tracer](ctx, tracerKey); t != nil {
		return t
	}
	return otel.Tracer("")
}

// Span starts a span named for the calling function.
func Span(ctx context.Context, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	name, file, line := caller(2)

	attrs := trace.WithAttributes(
		semconv.CodeFunctionKey.String(name),
		semconv.CodeFilepathKey.String(file),
		semconv.CodeLineNumberKey.Int(line),
	)

	return Tracer(ctx).Start(ctx, name, append(opts, attrs)...)
}

// Fork returns a context detached from the parent's cancellation but
// still carrying its span, for work that outlives the request.
func Fork(ctx context.Context) context.Context {
	return trace.ContextWithSpan(context.Background(), trace.SpanFromContext(ctx))
}

func NewAttr(name string, value any) attribute.KeyValue {
	switch value := value.(type) {
	case string:
		return attribute.String(name, value)
	case int:
		return attribute.Int(name, value)
	case int64:
		return attribute.Int64(name, value)
	case bool:
		return attribute.Bool(name, value)
	default:
		return attribute.String(name, "unsupported type")
	}
}

func caller(skip int) (string, string, int) {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown", "unknown", 0
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "unknown", file, line
	}
	name := fn.Name()
	if i := strings.LastIndexByte(name, '/'); i > 0 {
		name = name[i+1:]
	}
	return name, file, line
}

func initTracing(ctx context.Context, name string) (context.Context, func() error) {
	endpoint := env("PAGER_TRACE_ENDPOINT", "")
	if endpoint == "" {
		return toContext(ctx, tracerKey, otel.Tracer(name)), nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(name),
		),
	)
	if err != nil {
		log.Println("failed to create trace resource:", err)
		return ctx, nil
	}

	traceExporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithEndpoint(endpoint),
	)
	if err != nil {
		log.Println("failed to create trace exporter:", err)
		return ctx, nil
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	ctx = toContext(ctx, tracerKey, tracerProvider.Tracer(name))

	return ctx, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		defer log.Println("tracer stopped")
		return tracerProvider.Shutdown(ctx)
	}
}
