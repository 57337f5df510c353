package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/erp/billing/internal/domain/billing"
	"github.com/erp/billing/internal/infrastructure/storage"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubReporter struct {
	rows []billing.ReportRow
	err  error
}

func (s stubReporter) Report(context.Context, uuid.UUID) ([]billing.ReportRow, error) {
	return s.rows, s.err
}

func TestExportReport(t *testing.T) {
	ctx := context.Background()
	projectID := uuid.MustParse("6f1f2b8e-1c7d-4b0f-9a35-0b7f0c7e2d11")
	now := time.Date(2024, 4, 2, 9, 30, 0, 0, time.UTC)
	rows := []billing.ReportRow{{
		Date:       time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Category:   "RECURRING",
		Concept:    "Monthly fee",
		Status:     "PAID",
		Currency:   "USD",
		Amount:     decimal.RequireFromString("1190"),
		AmountBase: decimal.RequireFromString("1190"),
	}}
	want := "date,category,concept,status,currency,amount,amount_base\n" +
		"2024-03-01,RECURRING,Monthly fee,PAID,USD,1190.00,1190.00\n"

	t.Run("stdout only", func(t *testing.T) {
		var out bytes.Buffer
		key, err := exportReport(ctx, stubReporter{rows: rows}, projectID, &out, nil, now)
		require.NoError(t, err)
		assert.Empty(t, key)
		assert.Equal(t, want, out.String())
	})

	t.Run("uploads the same file", func(t *testing.T) {
		var out bytes.Buffer
		store := storage.NewMemoryDocumentStore()
		key, err := exportReport(ctx, stubReporter{rows: rows}, projectID, &out, store, now)
		require.NoError(t, err)
		assert.Equal(t, "reports/6f1f2b8e-1c7d-4b0f-9a35-0b7f0c7e2d11/billing-20240402T093000.csv", key)

		ok, err := store.Exists(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, want, out.String())
	})

	t.Run("report error", func(t *testing.T) {
		var out bytes.Buffer
		_, err := exportReport(ctx, stubReporter{err: errors.New("db down")}, projectID, &out, nil, now)
		assert.EqualError(t, err, "db down")
		assert.Empty(t, out.String())
	})
}

func TestFlagValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"summary without project", []string{"summary"}, `required flag(s) "project" not set`},
		{"summary with bad project", []string{"summary", "--project", "abc"}, "--project must be a UUID"},
		{"export with bad project", []string{"export", "--project", "42"}, "--project must be a UUID"},
		{"generate with bad month", []string{"generate", "--up-to", "March"}, "invalid month"},
		{"generate with bad project", []string{"generate", "--project", "x"}, "--project must be a UUID"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCmd()
			cmd.SetArgs(tt.args)
			cmd.SetOut(new(bytes.Buffer))
			cmd.SetErr(new(bytes.Buffer))
			err := cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
