package telemetry

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	promclient "github.com/prometheus/client_golang/prometheus"
)

// Global telemetry handles
var (
	// Tracer for distributed tracing
	Tracer = otel.Tracer("github.com/yairfalse/kinos")

	// Meter for metrics
	Meter = otel.Meter("github.com/yairfalse/kinos")

	// PrometheusRegistry for Prometheus scraping (dual export pattern).
	// The OTEL exporter registers itself with this registry.
	PrometheusRegistry *promclient.Registry

	// Metrics - following OTEL naming conventions
	VolumesDiscovered metric.Int64Counter
	SnapshotsCreated  metric.Int64Counter
	SnapshotsDeleted  metric.Int64Counter
	SnapshotsHeld     metric.Int64Counter
	UnitErrors        metric.Int64Counter
	RunDuration       metric.Float64Histogram
	CatalogRevision   metric.Int64Gauge
)

// Config for OTEL initialization
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	OTELEndpoint   string // OTLP gRPC endpoint, e.g. "localhost:4317"; empty disables push export
	Insecure       bool   // true for local dev
}

// InitOTEL initializes OpenTelemetry with traces and metrics. Spans are
// always recorded so log entries carry trace IDs, but only exported when an
// OTLP endpoint is configured; metrics always export through the Prometheus
// registry and additionally push via OTLP when an endpoint is configured.
func InitOTEL(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	cfg = applyConfigDefaults(cfg)

	res, err := createOTELResource(cfg)
	if err != nil {
		return nil, err
	}

	return setupProviders(ctx, cfg, res)
}

// applyConfigDefaults applies default values to config
func applyConfigDefaults(cfg Config) Config {
	if cfg.OTELEndpoint == "" {
		cfg.OTELEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}

	if cfg.ServiceName == "" {
		cfg.ServiceName = "kinos"
	}

	return cfg
}

// createOTELResource creates the OTEL resource with service information
func createOTELResource(cfg Config) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// setupProviders sets up trace and metric providers
func setupProviders(ctx context.Context, cfg Config, res *resource.Resource) (func(context.Context) error, error) {
	traceShutdown, err := setupTraceProvider(ctx, cfg, res)
	if err != nil {
		return nil, fmt.Errorf("failed to setup traces: %w", err)
	}

	metricShutdown, err := setupMetricProvider(ctx, cfg, res)
	if err != nil {
		_ = traceShutdown(ctx)
		return nil, fmt.Errorf("failed to setup metrics: %w", err)
	}

	if err := initMetrics(); err != nil {
		_ = traceShutdown(ctx)
		_ = metricShutdown(ctx)
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return createCombinedShutdown(traceShutdown, metricShutdown), nil
}

// createCombinedShutdown creates a combined shutdown function
func createCombinedShutdown(traceShutdown, metricShutdown func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		var err error
		if e := traceShutdown(ctx); e != nil {
			err = fmt.Errorf("trace shutdown failed: %w", e)
		}
		if e := metricShutdown(ctx); e != nil && err == nil {
			err = fmt.Errorf("metric shutdown failed: %w", e)
		}
		return err
	}
}

// setupTraceProvider configures the trace provider; the OTLP batcher is
// attached only when an endpoint is configured
func setupTraceProvider(ctx context.Context, cfg Config, res *resource.Resource) (func(context.Context) error, error) {
	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	}

	if cfg.OTELEndpoint != "" {
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(cfg.OTELEndpoint),
		}

		if cfg.Insecure {
			opts = append(opts, otlptracegrpc.WithDialOption(
				grpc.WithTransportCredentials(insecure.NewCredentials()),
			))
		}

		exporter, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}

		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(5*time.Second),
		))
	}

	provider := sdktrace.NewTracerProvider(providerOpts...)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	Tracer = provider.Tracer("github.com/yairfalse/kinos")

	return provider.Shutdown, nil
}

// setupMetricProvider configures the metric provider with dual export:
// Prometheus for pull-based scraping plus OTLP for push-based export
func setupMetricProvider(ctx context.Context, cfg Config, res *resource.Resource) (func(context.Context) error, error) {
	var readers []sdkmetric.Reader

	registry := promclient.NewRegistry()
	PrometheusRegistry = registry

	prometheusExporter, err := prometheus.New(
		prometheus.WithRegisterer(registry),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	readers = append(readers, prometheusExporter)

	if cfg.OTELEndpoint != "" {
		otlpReader, err := createOTLPReader(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metric reader: %w", err)
		}
		readers = append(readers, otlpReader)
	}

	providerOpts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
	}
	for _, reader := range readers {
		providerOpts = append(providerOpts, sdkmetric.WithReader(reader))
	}

	provider := sdkmetric.NewMeterProvider(providerOpts...)

	otel.SetMeterProvider(provider)

	Meter = provider.Meter("github.com/yairfalse/kinos")

	return provider.Shutdown, nil
}

// createOTLPReader creates an OTLP periodic reader for push-based export
func createOTLPReader(ctx context.Context, cfg Config) (sdkmetric.Reader, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.OTELEndpoint),
	}

	if cfg.Insecure {
		opts = append(opts, otlpmetricgrpc.WithDialOption(
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		))
	}

	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	return sdkmetric.NewPeriodicReader(exporter,
		sdkmetric.WithInterval(10*time.Second),
	), nil
}

// initMetrics initializes all metric instruments
func initMetrics() error {
	if err := initCounters(); err != nil {
		return err
	}

	if err := initHistograms(); err != nil {
		return err
	}

	return initGauges()
}

// initCounters initializes counter metrics
func initCounters() error {
	var err error

	VolumesDiscovered, err = Meter.Int64Counter("kinos.volumes.discovered.total",
		metric.WithDescription("Total number of tagged volumes discovered"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create volumes_discovered counter: %w", err)
	}

	SnapshotsCreated, err = Meter.Int64Counter("kinos.snapshots.created.total",
		metric.WithDescription("Total number of snapshots created"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create snapshots_created counter: %w", err)
	}

	SnapshotsDeleted, err = Meter.Int64Counter("kinos.snapshots.deleted.total",
		metric.WithDescription("Total number of snapshots deleted by retention"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create snapshots_deleted counter: %w", err)
	}

	SnapshotsHeld, err = Meter.Int64Counter("kinos.snapshots.held.total",
		metric.WithDescription("Total number of deletions vetoed by hold policies"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create snapshots_held counter: %w", err)
	}

	UnitErrors, err = Meter.Int64Counter("kinos.unit.errors.total",
		metric.WithDescription("Total number of per-volume and per-snapshot failures"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create unit_errors counter: %w", err)
	}

	return nil
}

// initHistograms initializes histogram metrics
func initHistograms() error {
	var err error

	RunDuration, err = Meter.Float64Histogram("kinos.run.duration.seconds",
		metric.WithDescription("Duration of run cycles"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create run_duration histogram: %w", err)
	}

	return nil
}

// initGauges initializes gauge metrics
func initGauges() error {
	var err error

	CatalogRevision, err = Meter.Int64Gauge("kinos.catalog.revision.current",
		metric.WithDescription("Current catalog revision number"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create catalog_revision gauge: %w", err)
	}

	return nil
}

// Recording helpers. Instruments stay nil until InitOTEL runs; the one-shot
// CLI path never initializes them, so each helper tolerates that.

func RecordVolumesDiscovered(ctx context.Context, count int) {
	if VolumesDiscovered == nil {
		return
	}
	VolumesDiscovered.Add(ctx, int64(count))
}

func RecordSnapshotCreated(ctx context.Context, volumeID string) {
	if SnapshotsCreated == nil {
		return
	}
	SnapshotsCreated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("volume_id", volumeID),
	))
}

func RecordSnapshotDeleted(ctx context.Context, volumeID string) {
	if SnapshotsDeleted == nil {
		return
	}
	SnapshotsDeleted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("volume_id", volumeID),
	))
}

func RecordSnapshotHeld(ctx context.Context, policy string) {
	if SnapshotsHeld == nil {
		return
	}
	SnapshotsHeld.Add(ctx, 1, metric.WithAttributes(
		attribute.String("policy", policy),
	))
}

func RecordUnitError(ctx context.Context, phase string) {
	if UnitErrors == nil {
		return
	}
	UnitErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("phase", phase),
	))
}

func RecordRunDuration(ctx context.Context, seconds float64, success bool) {
	if RunDuration == nil {
		return
	}
	RunDuration.Record(ctx, seconds, metric.WithAttributes(
		attribute.Bool("success", success),
	))
}

func SetCatalogRevision(ctx context.Context, revision int64) {
	if CatalogRevision == nil {
		return
	}
	CatalogRevision.Record(ctx, revision)
}
