package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"betmirror/config"
	"betmirror/domain/entities"
	"betmirror/domain/interfaces"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// MetricsProvider manages OpenTelemetry metrics for the bet mirror
type MetricsProvider struct {
	config        *config.Config
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter
	initialized   bool
	mu            sync.RWMutex

	// Metric instruments
	transitionsCounter       metric.Int64Counter
	conflictsCounter         metric.Int64Counter
	policyViolationsCounter  metric.Int64Counter
	chainSubmissionsCounter  metric.Int64Counter
	chainSubmissionDurations metric.Float64Histogram
	notificationsCounter     metric.Int64Counter
}

var _ interfaces.MetricsRecorder = (*MetricsProvider)(nil)

// NewMetricsProvider creates a new metrics provider
func NewMetricsProvider(cfg *config.Config) *MetricsProvider {
	return &MetricsProvider{
		config: cfg,
	}
}

// Initialize sets up the OpenTelemetry metrics provider
func (mp *MetricsProvider) Initialize(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.initialized {
		log.Info("Metrics provider already initialized")
		return nil
	}

	if !mp.config.OTelEnabled {
		log.Info("OpenTelemetry metrics disabled")
		mp.initialized = true
		return nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(mp.config.OTelServiceName),
			attribute.String("environment", mp.config.Environment),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to create resource: %w", err)
	}

	var exporter sdkmetric.Exporter
	switch mp.config.OTelExporterType {
	case "console":
		exporter, err = stdoutmetric.New()
		if err != nil {
			return fmt.Errorf("failed to create console exporter: %w", err)
		}
		log.Info("Using console metric exporter")

	case "otlp":
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		exporter, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(mp.config.OTelOTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return fmt.Errorf("failed to create OTLP exporter: %w", err)
		}
		log.Infof("Using OTLP metric exporter: %s", mp.config.OTelOTLPEndpoint)

	case "none":
		log.Info("Metrics export disabled (exporter_type='none')")
		mp.initialized = true
		return nil

	default:
		return fmt.Errorf("unknown exporter type: %s", mp.config.OTelExporterType)
	}

	mp.meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(
				exporter,
				sdkmetric.WithInterval(time.Duration(mp.config.OTelExportIntervalMS)*time.Millisecond),
			),
		),
	)
	otel.SetMeterProvider(mp.meterProvider)

	if err := mp.createInstruments(mp.meterProvider.Meter("betmirror")); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}

	mp.initialized = true
	log.Info("Metrics provider initialized successfully")
	return nil
}

// InitializeWithMeterProvider wires instruments onto an existing provider
func (mp *MetricsProvider) InitializeWithMeterProvider(provider *sdkmetric.MeterProvider) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.meterProvider = provider
	if err := mp.createInstruments(provider.Meter("betmirror")); err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}
	mp.initialized = true
	return nil
}

func (mp *MetricsProvider) createInstruments(meter metric.Meter) error {
	var err error
	mp.meter = meter

	mp.transitionsCounter, err = meter.Int64Counter(
		TransitionsCommittedTotal,
		metric.WithDescription("Transitions committed to the mirror"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create transitions counter: %w", err)
	}

	mp.conflictsCounter, err = meter.Int64Counter(
		MirrorConflictsTotal,
		metric.WithDescription("Conditional writes rejected because the bet moved"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create conflicts counter: %w", err)
	}

	mp.policyViolationsCounter, err = meter.Int64Counter(
		PolicyViolationsTotal,
		metric.WithDescription("Actions refused by the transition table"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create policy violations counter: %w", err)
	}

	mp.chainSubmissionsCounter, err = meter.Int64Counter(
		ChainSubmissionsTotal,
		metric.WithDescription("Contract transactions by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create chain submissions counter: %w", err)
	}

	mp.chainSubmissionDurations, err = meter.Float64Histogram(
		ChainSubmissionDuration,
		metric.WithDescription("Time from submission to confirmation receipt in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2, 4, 8, 15, 30, 60, 120, 300),
	)
	if err != nil {
		return fmt.Errorf("failed to create chain submission histogram: %w", err)
	}

	mp.notificationsCounter, err = meter.Int64Counter(
		NotificationsTotal,
		metric.WithDescription("Counterparty notifications by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create notifications counter: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the metrics provider
func (mp *MetricsProvider) Shutdown(ctx context.Context) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	if mp.meterProvider != nil {
		return mp.meterProvider.Shutdown(ctx)
	}
	return nil
}

// RecordTransitionCommitted counts a transition written to the mirror
func (mp *MetricsProvider) RecordTransitionCommitted(action entities.Action, source string) {
	if !mp.isEnabled() {
		return
	}
	mp.transitionsCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelAction, string(action)),
			attribute.String(LabelSource, source),
		),
	)
}

// RecordMirrorConflict counts a rejected conditional write
func (mp *MetricsProvider) RecordMirrorConflict(action entities.Action) {
	if !mp.isEnabled() {
		return
	}
	mp.conflictsCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(LabelAction, string(action))),
	)
}

// RecordPolicyViolation counts a refused action
func (mp *MetricsProvider) RecordPolicyViolation(action entities.Action) {
	if !mp.isEnabled() {
		return
	}
	mp.policyViolationsCounter.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String(LabelAction, string(action))),
	)
}

// RecordChainSubmission records a contract transaction outcome and its latency
func (mp *MetricsProvider) RecordChainSubmission(action entities.Action, outcome string, duration time.Duration) {
	if !mp.isEnabled() {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(LabelAction, string(action)),
		attribute.String(LabelOutcome, outcome),
	)
	mp.chainSubmissionsCounter.Add(context.Background(), 1, attrs)
	mp.chainSubmissionDurations.Record(context.Background(), duration.Seconds(), attrs)
}

// RecordNotification records a notification outcome
func (mp *MetricsProvider) RecordNotification(notificationType entities.NotificationType, outcome string) {
	if !mp.isEnabled() {
		return
	}
	mp.notificationsCounter.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String(LabelNotificationType, string(notificationType)),
			attribute.String(LabelOutcome, outcome),
		),
	)
}

// isEnabled checks if metrics are initialized with live instruments
func (mp *MetricsProvider) isEnabled() bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.initialized && mp.meter != nil
}

// Global metrics provider instance
var (
	globalMetrics *MetricsProvider
	metricsOnce   sync.Once
)

// InitializeGlobalMetrics initializes the global metrics provider
func InitializeGlobalMetrics(ctx context.Context, cfg *config.Config) error {
	var err error
	metricsOnce.Do(func() {
		globalMetrics = NewMetricsProvider(cfg)
		err = globalMetrics.Initialize(ctx)
	})
	return err
}

// GetMetrics returns the global metrics provider
func GetMetrics() *MetricsProvider {
	return globalMetrics
}

// ShutdownGlobalMetrics shuts down the global metrics provider
func ShutdownGlobalMetrics(ctx context.Context) error {
	if globalMetrics != nil {
		return globalMetrics.Shutdown(ctx)
	}
	return nil
}
