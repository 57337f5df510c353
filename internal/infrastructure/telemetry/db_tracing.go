package telemetry

import (
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds database tracing configuration.
type DBTracingConfig struct {
	Enabled         bool
	LogFullSQL      bool
	SlowQueryThresh time.Duration
	DBSystem        string
}

// DBTracingPlugin is a gorm.Plugin that installs otelgorm and tags slow
// statements on their span. Pass it to persistence.WithPlugin.
type DBTracingPlugin struct {
	config DBTracingConfig
	logger *zap.Logger
}

// NewDBTracingPlugin creates the plugin. Defaults: postgresql, 200ms.
func NewDBTracingPlugin(cfg DBTracingConfig, logger *zap.Logger) *DBTracingPlugin {
	if cfg.DBSystem == "" {
		cfg.DBSystem = "postgresql"
	}
	if cfg.SlowQueryThresh <= 0 {
		cfg.SlowQueryThresh = 200 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DBTracingPlugin{config: cfg, logger: logger}
}

// Name implements gorm.Plugin.
func (p *DBTracingPlugin) Name() string { return "billing:db_tracing" }

// Initialize implements gorm.Plugin.
func (p *DBTracingPlugin) Initialize(db *gorm.DB) error {
	if !p.config.Enabled {
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(p.config.DBSystem)}
	if !p.config.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	if err := p.registerSlowQueryCallbacks(db); err != nil {
		return err
	}

	p.logger.Info("Database tracing enabled",
		zap.String("db_system", p.config.DBSystem),
		zap.Duration("slow_query_threshold", p.config.SlowQueryThresh),
	)
	return nil
}

const startTimeKey = "billing:query_start"

func (p *DBTracingPlugin) registerSlowQueryCallbacks(db *gorm.DB) error {
	before := func(tx *gorm.DB) {
		tx.InstanceSet(startTimeKey, time.Now())
	}
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register("billing_timing:before_create", before); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("billing_timing:after_create", p.afterStatement); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("billing_timing:before_query", before); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("billing_timing:after_query", p.afterStatement); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("billing_timing:before_update", before); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("billing_timing:after_update", p.afterStatement); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("billing_timing:before_delete", before); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("billing_timing:after_delete", p.afterStatement); err != nil {
		return err
	}
	if err := cb.Raw().Before("gorm:raw").Register("billing_timing:before_raw", before); err != nil {
		return err
	}
	return cb.Raw().After("gorm:raw").Register("billing_timing:after_raw", p.afterStatement)
}

func (p *DBTracingPlugin) afterStatement(tx *gorm.DB) {
	v, ok := tx.InstanceGet(startTimeKey)
	if !ok {
		return
	}
	start, ok := v.(time.Time)
	if !ok {
		return
	}
	elapsed := time.Since(start)
	if elapsed <= p.config.SlowQueryThresh || tx.Statement.Context == nil {
		return
	}

	span := trace.SpanFromContext(tx.Statement.Context)
	if span.IsRecording() {
		span.SetAttributes(
			attribute.Bool("db.slow_query", true),
			attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
		)
	}
	p.logger.Warn("Slow statement",
		zap.String("table", tx.Statement.Table),
		zap.Duration("elapsed", elapsed),
	)
}
