// Package telemetry provides OpenTelemetry metrics for the box inventory.
package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

const (
	meterName = "github.com/wolfeidau/boxstock"
)

// Supply outcomes.
const (
	SupplyOK       = "ok"
	SupplyOverflow = "overflow"
	SupplyInvalid  = "invalid"
)

// MetricsConfig configures the metrics system.
type MetricsConfig struct {
	// ServiceName is the name of the service for resource attributes.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317").
	// If empty, OTLP export is disabled.
	OTLPEndpoint string

	// EnablePrometheus enables the Prometheus /metrics endpoint.
	EnablePrometheus bool

	// FlushInterval is how often to export metrics (default: 10s).
	FlushInterval time.Duration
}

// Metrics holds the OpenTelemetry metric instruments.
type Metrics struct {
	supplyRequestsTotal metric.Int64Counter
	supplyUnitsTotal    metric.Int64Counter

	purchaseRequestsTotal metric.Int64Counter
	purchaseUnitsTotal    metric.Int64Counter
	purchaseDivides       metric.Int64Histogram

	sweepRunsTotal    metric.Int64Counter
	sweepEvictedTotal metric.Int64Counter
	sweepDuration     metric.Float64Histogram

	boxTypes     metric.Int64Gauge
	unitsInStock metric.Int64Gauge
	queueRecords metric.Int64Gauge

	meterProvider *sdkmetric.MeterProvider
	promHandler   http.Handler
}

var (
	globalMetrics *Metrics
	initOnce      sync.Once
	initErr       error
)

// InitMetrics initializes the OpenTelemetry metrics system.
// Returns a shutdown function that should be called on application exit.
// Uses sync.Once to ensure single initialisation.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (shutdown func(context.Context) error, err error) {
	initOnce.Do(func() {
		initErr = doInitMetrics(ctx, cfg)
	})

	if initErr != nil {
		return nil, initErr
	}

	return shutdownMetrics, nil
}

func doInitMetrics(ctx context.Context, cfg MetricsConfig) error {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "boxstock"
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return err
	}

	var readers []sdkmetric.Reader
	var promHandler http.Handler

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(), // Use WithTLSCredentials for production
		)
		if err != nil {
			return err
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(otlpExporter,
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	if cfg.EnablePrometheus {
		promExp, err := promexporter.New()
		if err != nil {
			return err
		}
		readers = append(readers, promExp)
		promHandler = promhttp.Handler()
	}

	// If no exporters configured, use a no-op periodic reader to still collect metrics
	if len(readers) == 0 {
		readers = append(readers, sdkmetric.NewPeriodicReader(noopExporter{},
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)

	m, err := newMetrics(mp.Meter(meterName))
	if err != nil {
		return err
	}
	m.meterProvider = mp
	m.promHandler = promHandler
	globalMetrics = m

	return nil
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	supplyRequestsTotal, err := meter.Int64Counter(
		"boxstock_supply_requests_total",
		metric.WithDescription("Total number of supply requests by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	supplyUnitsTotal, err := meter.Int64Counter(
		"boxstock_supply_units_total",
		metric.WithDescription("Total boxes offered by supply requests, split into accepted and rejected"),
		metric.WithUnit("{box}"),
	)
	if err != nil {
		return nil, err
	}

	purchaseRequestsTotal, err := meter.Int64Counter(
		"boxstock_purchase_requests_total",
		metric.WithDescription("Total number of purchase requests by outcome"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	purchaseUnitsTotal, err := meter.Int64Counter(
		"boxstock_purchase_units_total",
		metric.WithDescription("Total boxes taken by confirmed purchases"),
		metric.WithUnit("{box}"),
	)
	if err != nil {
		return nil, err
	}

	purchaseDivides, err := meter.Int64Histogram(
		"boxstock_purchase_divides",
		metric.WithDescription("Number of box types consumed per purchase"),
		metric.WithUnit("{divide}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 3, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	sweepRunsTotal, err := meter.Int64Counter(
		"boxstock_sweep_runs_total",
		metric.WithDescription("Total number of expiration sweeps"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	sweepEvictedTotal, err := meter.Int64Counter(
		"boxstock_sweep_evicted_total",
		metric.WithDescription("Total number of box types evicted by expiration sweeps"),
		metric.WithUnit("{box_type}"),
	)
	if err != nil {
		return nil, err
	}

	sweepDuration, err := meter.Float64Histogram(
		"boxstock_sweep_duration_seconds",
		metric.WithDescription("Expiration sweep duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1),
	)
	if err != nil {
		return nil, err
	}

	boxTypes, err := meter.Int64Gauge(
		"boxstock_box_types",
		metric.WithDescription("Current number of distinct box types in stock"),
		metric.WithUnit("{box_type}"),
	)
	if err != nil {
		return nil, err
	}

	unitsInStock, err := meter.Int64Gauge(
		"boxstock_units_in_stock",
		metric.WithDescription("Current number of boxes in stock across all box types"),
		metric.WithUnit("{box}"),
	)
	if err != nil {
		return nil, err
	}

	queueRecords, err := meter.Int64Gauge(
		"boxstock_expiration_queue_records",
		metric.WithDescription("Current number of records in the expiration queue"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		supplyRequestsTotal:   supplyRequestsTotal,
		supplyUnitsTotal:      supplyUnitsTotal,
		purchaseRequestsTotal: purchaseRequestsTotal,
		purchaseUnitsTotal:    purchaseUnitsTotal,
		purchaseDivides:       purchaseDivides,
		sweepRunsTotal:        sweepRunsTotal,
		sweepEvictedTotal:     sweepEvictedTotal,
		sweepDuration:         sweepDuration,
		boxTypes:              boxTypes,
		unitsInStock:          unitsInStock,
		queueRecords:          queueRecords,
	}, nil
}

func shutdownMetrics(ctx context.Context) error {
	if globalMetrics == nil {
		return nil
	}
	err := globalMetrics.meterProvider.Shutdown(ctx)
	globalMetrics = nil
	return err
}

// Enabled reports whether metrics have been initialised.
func Enabled() bool {
	return globalMetrics != nil
}

// RecordSupply records a supply request. accepted and rejected are the boxes
// added to stock and the boxes returned due to the per box type cap.
func RecordSupply(ctx context.Context, outcome string, accepted, rejected int) {
	if globalMetrics == nil {
		return
	}

	globalMetrics.supplyRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	if accepted > 0 {
		globalMetrics.supplyUnitsTotal.Add(ctx, int64(accepted), metric.WithAttributes(attribute.String("result", "accepted")))
	}
	if rejected > 0 {
		globalMetrics.supplyUnitsTotal.Add(ctx, int64(rejected), metric.WithAttributes(attribute.String("result", "rejected")))
	}
}

// RecordPurchase records a finished purchase.
func RecordPurchase(ctx context.Context, outcome string, taken, divides int) {
	if globalMetrics == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	globalMetrics.purchaseRequestsTotal.Add(ctx, 1, attrs)
	if taken > 0 {
		globalMetrics.purchaseUnitsTotal.Add(ctx, int64(taken))
	}
	globalMetrics.purchaseDivides.Record(ctx, int64(divides), attrs)
}

// RecordSweep records one expiration sweep.
func RecordSweep(ctx context.Context, evicted int, duration time.Duration) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.sweepRunsTotal.Add(ctx, 1)
	globalMetrics.sweepEvictedTotal.Add(ctx, int64(evicted))
	globalMetrics.sweepDuration.Record(ctx, duration.Seconds())
}

// UpdateStockState updates the stock gauges. Called after every mutation.
func UpdateStockState(ctx context.Context, boxTypes, units, queued int) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.boxTypes.Record(ctx, int64(boxTypes))
	globalMetrics.unitsInStock.Record(ctx, int64(units))
	globalMetrics.queueRecords.Record(ctx, int64(queued))
}

// PrometheusHandler returns the Prometheus metrics HTTP handler.
// Returns a handler that returns 404 if Prometheus export is not enabled,
// allowing safe registration regardless of initialization order.
func PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if globalMetrics == nil || globalMetrics.promHandler == nil {
			http.NotFound(w, r)
			return
		}
		globalMetrics.promHandler.ServeHTTP(w, r)
	})
}

// noopExporter is a no-op metrics exporter for when no exporters are configured.
type noopExporter struct{}

func (noopExporter) Temporality(_ sdkmetric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

func (noopExporter) Aggregation(_ sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return nil
}

func (noopExporter) Export(_ context.Context, _ *metricdata.ResourceMetrics) error {
	return nil
}

func (noopExporter) ForceFlush(_ context.Context) error {
	return nil
}

func (noopExporter) Shutdown(_ context.Context) error {
	return nil
}
