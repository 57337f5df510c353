package bootstrap

import (
	"context"
	"errors"

	"github.com/erp/billing/internal/infrastructure/config"
	"github.com/erp/billing/internal/infrastructure/logger"
	"github.com/erp/billing/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Telemetry holds the OpenTelemetry providers and the profiler of one process
type Telemetry struct {
	Tracer   *telemetry.TracerProvider
	Meters   *telemetry.MeterProvider
	Logs     *telemetry.LoggerProvider
	Profiler *telemetry.Profiler

	// Logger is the process logger, teed into the OTLP log pipeline when
	// log export is enabled.
	Logger *zap.Logger
}

// StartTelemetry initializes tracing, metrics, log export and profiling. Each
// signal is a no-op when its switch in cfg.Telemetry is off.
func StartTelemetry(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Telemetry, error) {
	tc := cfg.Telemetry
	t := &Telemetry{Logger: log}

	var err error
	t.Tracer, err = telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           tc.Enabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		SamplingRatio:     tc.SamplingRatio,
		ServiceName:       tc.ServiceName,
		Insecure:          tc.Insecure,
	}, log)
	if err != nil {
		return nil, err
	}

	t.Meters, err = telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           tc.MetricsEnabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		ExportInterval:    tc.MetricsInterval,
		ServiceName:       tc.ServiceName,
		Insecure:          tc.Insecure,
	}, log)
	if err != nil {
		_ = t.Shutdown(ctx)
		return nil, err
	}

	t.Logs, err = telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           tc.LogsEnabled,
		CollectorEndpoint: tc.CollectorEndpoint,
		ServiceName:       tc.ServiceName,
		Insecure:          tc.Insecure,
	}, log)
	if err != nil {
		_ = t.Shutdown(ctx)
		return nil, err
	}
	if t.Logs.IsEnabled() {
		teed, err := logger.New(&logger.Config{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
			Output: cfg.Log.Output,
		}, logger.WithTee(t.Logs.ZapCore(logger.ParseLevel(cfg.Log.Level))))
		if err != nil {
			_ = t.Shutdown(ctx)
			return nil, err
		}
		t.Logger = teed
	}

	t.Profiler, err = telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         tc.ProfilingEnabled,
		ServerAddress:   tc.PyroscopeAddress,
		ApplicationName: tc.ServiceName,
	}, t.Logger)
	if err != nil {
		_ = t.Shutdown(ctx)
		return nil, err
	}
	if t.Profiler.IsEnabled() {
		if err := t.Tracer.EnableSpanProfiles(); err != nil {
			t.Logger.Warn("Failed to enable span profiles", zap.Error(err))
		}
	}
	return t, nil
}

// Meter returns a named meter; the global no-op meter while metrics are off
func (t *Telemetry) Meter(name string) metric.Meter {
	return t.Meters.Meter(name)
}

// Shutdown flushes every started signal. Logs go last so shutdown messages
// from the other providers are still exported.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.Profiler != nil {
		errs = append(errs, t.Profiler.Stop())
	}
	if t.Tracer != nil {
		errs = append(errs, t.Tracer.Shutdown(ctx))
	}
	if t.Meters != nil {
		errs = append(errs, t.Meters.Shutdown(ctx))
	}
	if t.Logs != nil {
		errs = append(errs, t.Logs.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
