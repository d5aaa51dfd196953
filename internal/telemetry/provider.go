package telemetry

import (
	"context"
	"database/sql"
	"net/http"
	"os"

	"github.com/XSAM/otelsql"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Config identifies the process to the telemetry backends.
type Config struct {
	ServiceName    string
	ServiceVersion string
	// Metrics enables the Prometheus exporter and Go runtime metrics. The
	// worker leaves it off since it has no HTTP surface to scrape.
	Metrics bool
}

// Providers bundles the global tracer and meter providers set up for one
// process. MetricsHandler serves the Prometheus scrape endpoint and is nil
// unless Config.Metrics was set.
type Providers struct {
	MetricsHandler http.Handler

	shutdowns []func(context.Context) error
}

// Init configures the OTLP trace exporter, W3C propagation and, when asked
// for, the Prometheus meter provider plus runtime instrumentation. The
// returned Providers must be shut down to flush pending spans.
func Init(ctx context.Context, cfg Config) (*Providers, error) {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:4317"
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	p := &Providers{shutdowns: []func(context.Context) error{tp.Shutdown}}

	if cfg.Metrics {
		promExporter, err := prometheus.New()
		if err != nil {
			_ = p.Shutdown(ctx)
			return nil, err
		}

		mp := metric.NewMeterProvider(
			metric.WithReader(promExporter),
			metric.WithResource(res),
		)
		otel.SetMeterProvider(mp)
		p.MetricsHandler = promhttp.Handler()
		p.shutdowns = append(p.shutdowns, mp.Shutdown)

		if err := runtime.Start(); err != nil {
			_ = p.Shutdown(ctx)
			return nil, err
		}
	}

	return p, nil
}

// Shutdown stops the providers in reverse init order and reports the first
// error encountered.
func (p *Providers) Shutdown(ctx context.Context) error {
	var firstErr error
	for i := len(p.shutdowns) - 1; i >= 0; i-- {
		if err := p.shutdowns[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// OpenDB opens a database handle instrumented to record a span per query.
func OpenDB(driverName, dsn string) (*sql.DB, error) {
	return otelsql.Open(driverName, dsn,
		otelsql.WithAttributes(semconv.DBSystemPostgreSQL),
	)
}

// WithHTTPRoute wraps an http.HandlerFunc to add the http.route attribute
// to the current span using the request's Pattern (Go 1.22+), since otelhttp
// does not add the route attribute after ServeMux routing.
func WithHTTPRoute(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Pattern != "" {
			span := oteltrace.SpanFromContext(r.Context())
			span.SetAttributes(semconv.HTTPRoute(r.Pattern))
		}
		h(w, r)
	}
}
