// Package otel provides OpenTelemetry initialization for the precache
// binaries: a metric pipeline and a log bridge over OTLP gRPC. Tracing is
// not wired; the tool is a short-lived synchronous I/O pump.
package otel

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// Config holds OpenTelemetry configuration.
type Config struct {
	Enabled           bool
	Endpoint          string
	ServiceName       string
	ServiceInstanceID string
	Insecure          bool
}

// Provider holds initialized OTel providers.
type Provider struct {
	MeterProvider  *sdkmetric.MeterProvider
	LoggerProvider *sdklog.LoggerProvider
	Meter          metric.Meter
	LogHandler     slog.Handler
	startTime      time.Time
}

// Init initializes OpenTelemetry with the given configuration.
// Returns a shutdown function that should be called on exit.
// If OTel is disabled, returns a no-op provider and shutdown function.
func Init(ctx context.Context, cfg Config) (*Provider, func(context.Context) error, error) {
	if !cfg.Enabled {
		return &Provider{
			Meter:     otel.Meter(cfg.ServiceName),
			startTime: time.Now(),
		}, func(context.Context) error { return nil }, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceInstanceID(cfg.ServiceInstanceID),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("create resource: %w", err)
	}

	metricOpts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}
	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create metric exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)

	logOpts := []otlploggrpc.Option{
		otlploggrpc.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		logOpts = append(logOpts, otlploggrpc.WithInsecure())
	}
	logExporter, err := otlploggrpc.New(ctx, logOpts...)
	if err != nil {
		meterProvider.Shutdown(ctx)
		return nil, nil, fmt.Errorf("create log exporter: %w", err)
	}

	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)),
		sdklog.WithResource(res),
	)

	otel.SetMeterProvider(meterProvider)

	logHandler := otelslog.NewHandler(cfg.ServiceName, otelslog.WithLoggerProvider(loggerProvider))

	provider := &Provider{
		MeterProvider:  meterProvider,
		LoggerProvider: loggerProvider,
		Meter:          meterProvider.Meter(cfg.ServiceName),
		LogHandler:     logHandler,
		startTime:      time.Now(),
	}

	if err := provider.registerSystemMetrics(); err != nil {
		meterProvider.Shutdown(ctx)
		loggerProvider.Shutdown(ctx)
		return nil, nil, fmt.Errorf("register system metrics: %w", err)
	}

	shutdown := func(ctx context.Context) error {
		var errs []error
		if err := meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter: %w", err))
		}
		if err := loggerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown logger: %w", err))
		}
		if len(errs) > 0 {
			return fmt.Errorf("shutdown errors: %v", errs)
		}
		return nil
	}

	return provider, shutdown, nil
}

// registerSystemMetrics registers the process uptime gauge.
func (p *Provider) registerSystemMetrics() error {
	uptime, err := p.Meter.Float64ObservableGauge(
		"precache_uptime_seconds",
		metric.WithDescription("Process uptime in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("create uptime gauge: %w", err)
	}

	_, err = p.Meter.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveFloat64(uptime, time.Since(p.startTime).Seconds())
			return nil
		},
		uptime,
	)
	if err != nil {
		return fmt.Errorf("register callback: %w", err)
	}

	return nil
}

// MeterFor returns a meter for the given subsystem.
func (p *Provider) MeterFor(subsystem string) metric.Meter {
	if p.MeterProvider != nil {
		return p.MeterProvider.Meter(subsystem)
	}
	return otel.Meter(subsystem)
}
