// Package integration runs the ledger against a real PostgreSQL started with
// testcontainers. The tests are skipped with -short.
package integration

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/erp/billing/internal/infrastructure/config"
	"github.com/erp/billing/internal/infrastructure/migration"
	"github.com/erp/billing/internal/infrastructure/persistence"
	"github.com/erp/billing/internal/infrastructure/persistence/models"
	"github.com/erp/billing/migrations"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// TestDB is a migrated database in its own container
type TestDB struct {
	*persistence.Database
	Container testcontainers.Container
	t         *testing.T
}

// NewTestDB starts PostgreSQL, connects through persistence.NewDatabase and
// applies the embedded migrations.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("billing_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("billing"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	tdb := &TestDB{Container: container, t: t}
	t.Cleanup(tdb.Close)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	tdb.Database, err = persistence.NewDatabase(&config.DatabaseConfig{
		Driver:          "postgres",
		Host:            host,
		Port:            portNum,
		User:            "postgres",
		Password:        "billing",
		DBName:          "billing_test",
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5,
		SlowThreshold:   time.Second,
	}, zap.NewNop(), "silent")
	require.NoError(t, err, "Failed to connect to database")

	sqlDB, err := tdb.DB.DB()
	require.NoError(t, err)
	m, err := migration.New(sqlDB, migrations.FS, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up(), "Failed to run migrations")

	return tdb
}

// Close closes the connection and terminates the container
func (tdb *TestDB) Close() {
	if tdb.Database != nil {
		_ = tdb.Database.Close()
	}
	if tdb.Container != nil {
		if err := tdb.Container.Terminate(context.Background()); err != nil {
			tdb.t.Logf("Warning: Failed to terminate container: %v", err)
		}
	}
}

// CleanTables empties the ledger tables
func (tdb *TestDB) CleanTables() {
	tdb.t.Helper()
	require.NoError(tdb.t, tdb.DB.Exec("TRUNCATE TABLE invoices, project_deals").Error)
}

// InsertDeal writes an active deal row for projectID
func (tdb *TestDB) InsertDeal(projectID uuid.UUID, currency, amount string, rate *decimal.Decimal, start time.Time) {
	tdb.t.Helper()
	deal := models.ProjectDealModel{
		ProjectID:       projectID,
		Currency:        currency,
		RecurringAmount: decimal.RequireFromString(amount),
		ExchangeRate:    rate,
		StartDate:       start,
		Active:          true,
		UpdatedAt:       time.Now().UTC(),
	}
	require.NoError(tdb.t, tdb.DB.Create(&deal).Error)
}

// CountRecurring counts the recurring invoices of projectID
func (tdb *TestDB) CountRecurring(projectID uuid.UUID) int64 {
	tdb.t.Helper()
	var n int64
	require.NoError(tdb.t, tdb.DB.Model(&models.InvoiceModel{}).
		Where("project_id = ? AND invoice_type = ?", projectID, "RECURRING").
		Count(&n).Error)
	return n
}
