// Package bootstrap assembles the billing engine from configuration. The HTTP
// server and the billingctl CLI share it so both run the same ledger wiring.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	billingapp "github.com/erp/billing/internal/application/billing"
	"github.com/erp/billing/internal/domain/billing"
	"github.com/erp/billing/internal/domain/shared/valueobject"
	"github.com/erp/billing/internal/infrastructure/cache"
	"github.com/erp/billing/internal/infrastructure/config"
	"github.com/erp/billing/internal/infrastructure/event"
	"github.com/erp/billing/internal/infrastructure/migration"
	"github.com/erp/billing/internal/infrastructure/persistence"
	"github.com/erp/billing/internal/infrastructure/storage"
	"github.com/erp/billing/internal/infrastructure/telemetry"
	"github.com/erp/billing/migrations"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// meterName scopes the ledger instruments
const meterName = "github.com/erp/billing/ledger"

// App is the assembled engine
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Telemetry *Telemetry

	DB        *persistence.Database
	Invoices  *persistence.GormInvoiceRepository
	Deals     *persistence.GormDealSource
	Locker    cache.Locker
	Documents *storage.S3DocumentStore // nil when no bucket is configured
	Bus       *event.InMemoryEventBus

	Ledger *billingapp.LedgerService
	Batch  *billingapp.RecurringBatchJob
}

// NewCalculator builds the ledger calculator from the [billing] section
func NewCalculator(cfg config.BillingConfig) (billing.Calculator, error) {
	base, err := valueobject.ParseCurrency(cfg.BaseCurrency)
	if err != nil {
		return billing.Calculator{}, fmt.Errorf("billing.base_currency: %w", err)
	}
	tax, err := billing.NewTaxPolicy(cfg.TaxRate)
	if err != nil {
		return billing.Calculator{}, fmt.Errorf("billing.tax_rate: %w", err)
	}
	return billing.NewCalculator(tax, valueobject.NewConverter(base)), nil
}

// New connects every backing service and builds the ledger. tel may be nil,
// in which case metrics go to the global meter provider. Close releases what
// New opened.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger, tel *Telemetry) (_ *App, err error) {
	app := &App{Config: cfg, Logger: log, Telemetry: tel}
	defer func() {
		if err != nil {
			_ = app.Close(context.WithoutCancel(ctx))
		}
	}()

	calc, err := NewCalculator(cfg.Billing)
	if err != nil {
		return nil, err
	}

	var dbOpts []persistence.Option
	if cfg.Telemetry.DBTraceEnabled {
		system := "postgresql"
		if cfg.Database.Driver == "sqlite" {
			system = "sqlite"
		}
		dbOpts = append(dbOpts, persistence.WithPlugin(telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         true,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
			DBSystem:        system,
		}, log)))
	}
	app.DB, err = persistence.NewDatabase(&cfg.Database, log, cfg.Log.Level, dbOpts...)
	if err != nil {
		return nil, err
	}
	if err := app.migrate(); err != nil {
		return nil, err
	}
	app.Invoices = persistence.NewGormInvoiceRepository(app.DB.DB)
	app.Deals = persistence.NewGormDealSource(app.DB.DB)

	app.Locker, err = cache.NewLockerFactory(cfg.Redis, cache.WithLogger(log)).CreateLocker()
	if err != nil {
		return nil, fmt.Errorf("failed to create locker: %w", err)
	}

	if cfg.Storage.Bucket != "" {
		app.Documents, err = storage.NewS3DocumentStore(ctx, &cfg.Storage,
			storage.WithLogger(log),
			storage.WithPresignExpiry(cfg.Storage.PresignExpiry),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create document store: %w", err)
		}
		if err := app.Documents.EnsureBucket(ctx); err != nil {
			return nil, err
		}
	}

	app.Bus = event.NewInMemoryEventBus(log)
	dispatcher := event.NewLogNotificationDispatcher(log)
	app.Bus.Subscribe(event.NewPaymentNotificationHandler(dispatcher))
	app.Bus.Subscribe(event.NewGenerationNotificationHandler(dispatcher))
	if err := app.Bus.Start(ctx); err != nil {
		return nil, err
	}

	metrics, err := telemetry.NewLedgerMetrics(ledgerMeter(tel))
	if err != nil {
		return nil, err
	}

	opts := []billingapp.LedgerServiceOption{
		billingapp.WithEventPublisher(app.Bus),
		billingapp.WithMetrics(metrics),
		billingapp.WithLogger(log),
		billingapp.WithDefaultDueDays(cfg.Billing.DefaultDueDays),
		billingapp.WithConceptFormatter(billing.NewConceptFormatter(cfg.Billing.ConceptPrefix, cfg.Billing.Locale)),
	}
	if app.Documents != nil {
		opts = append(opts, billingapp.WithDocumentStore(app.Documents))
	}
	app.Ledger = billingapp.NewLedgerService(app.Invoices, calc, opts...)
	app.Batch = billingapp.NewRecurringBatchJob(app.Ledger, app.Deals, cfg.Scheduler.MaxConcurrency, log)

	log.Info("Billing ledger ready",
		zap.String("database", cfg.Database.Driver),
		zap.String("base_currency", cfg.Billing.BaseCurrency),
		zap.Bool("documents", app.Documents != nil),
	)
	return app, nil
}

func (a *App) migrate() error {
	if a.Config.Database.Driver == "sqlite" {
		return persistence.EnsureSQLiteSchema(a.DB.DB)
	}
	sqlDB, err := a.DB.DB.DB()
	if err != nil {
		return err
	}
	m, err := migration.New(sqlDB, migrations.FS, a.Logger)
	if err != nil {
		return err
	}
	// Closing the migrator would close sqlDB as well.
	return m.Up()
}

// Close stops the bus and releases the locker and the database
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Bus != nil {
		errs = append(errs, a.Bus.Stop(ctx))
	}
	if a.Locker != nil {
		errs = append(errs, a.Locker.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

func ledgerMeter(tel *Telemetry) metric.Meter {
	if tel == nil || tel.Meters == nil {
		return otel.GetMeterProvider().Meter(meterName)
	}
	return tel.Meter(meterName)
}
