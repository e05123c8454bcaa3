package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/invoice-cli/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func stored(id string, status model.Status, cost float64) model.StoredReport {
	return model.StoredReport{
		InvoiceID: id,
		Status:    status,
		CostUSD:   cost,
		Report: &model.ValidationReport{
			InvoiceID: id,
			Status:    status,
			Header:    []model.ExtractedField{{Name: model.FieldTaxID, Value: "NL863334647B01", Provenance: model.ProvenancePattern, Confidence: 1}},
			Billable:  []model.LineItem{},
		},
	}
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "testdata/invoices")
		require.NoError(t, err)
		assert.NotEmpty(t, run.ID)
		assert.Equal(t, model.RunStatusRunning, run.Status)

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, "testdata/invoices", got.Source)
		assert.Equal(t, model.RunStatusRunning, got.Status)
		assert.Nil(t, got.Summary)
	})

	t.Run("CompleteRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "dir")
		require.NoError(t, err)

		summary := model.BatchSummary{Total: 3, Accepted: 1, Rejected: 1, NeedsReview: 1,
			ByReason: map[model.ErrorKind]int{model.KindOutOfDomain: 1}, CostUSD: 0.05}
		require.NoError(t, s.CompleteRun(ctx, run.ID, summary))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusComplete, got.Status)
		require.NotNil(t, got.Summary)
		assert.Equal(t, 3, got.Summary.Total)
		assert.Equal(t, 1, got.Summary.ByReason[model.KindOutOfDomain])
		assert.InDelta(t, 0.05, got.Summary.CostUSD, 1e-9)
	})

	t.Run("FailRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "dir")
		require.NoError(t, err)
		require.NoError(t, s.FailRun(ctx, run.ID, "registry unreadable"))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusFailed, got.Status)
		assert.Equal(t, "registry unreadable", got.Error)
	})

	t.Run("UnknownRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.GetRun(ctx, "missing")
		assert.True(t, IsNotFound(err))
		assert.True(t, IsNotFound(s.CompleteRun(ctx, "missing", model.BatchSummary{})))
		assert.True(t, IsNotFound(s.FailRun(ctx, "missing", "x")))
	})

	t.Run("ListRuns", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a, err := s.CreateRun(ctx, "a")
		require.NoError(t, err)
		_, err = s.CreateRun(ctx, "b")
		require.NoError(t, err)
		require.NoError(t, s.CompleteRun(ctx, a.ID, model.BatchSummary{Total: 1}))

		all, err := s.ListRuns(ctx, RunFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		done, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
		require.NoError(t, err)
		require.Len(t, done, 1)
		assert.Equal(t, a.ID, done[0].ID)

		limited, err := s.ListRuns(ctx, RunFilter{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})

	t.Run("SaveAndGetReports", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "dir")
		require.NoError(t, err)

		require.NoError(t, s.SaveReports(ctx, run.ID, []model.StoredReport{
			stored("inv-2", model.StatusReject, 0),
			stored("inv-1", model.StatusAccept, 0.02),
		}))

		got, err := s.GetReport(ctx, run.ID, "inv-1")
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.RunID)
		assert.Equal(t, model.StatusAccept, got.Status)
		assert.InDelta(t, 0.02, got.CostUSD, 1e-9)
		v, ok := got.Report.HeaderValue(model.FieldTaxID)
		assert.True(t, ok)
		assert.Equal(t, "NL863334647B01", v)

		list, err := s.ListReports(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "inv-1", list[0].InvoiceID)
		assert.Equal(t, "inv-2", list[1].InvoiceID)
	})

	t.Run("SaveReportsReplaces", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "dir")
		require.NoError(t, err)
		require.NoError(t, s.SaveReports(ctx, run.ID, []model.StoredReport{stored("inv-1", model.StatusNeedsReview, 0)}))
		require.NoError(t, s.SaveReports(ctx, run.ID, []model.StoredReport{stored("inv-1", model.StatusAccept, 0)}))

		list, err := s.ListReports(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, model.StatusAccept, list[0].Status)
	})

	t.Run("MissingReport", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, "dir")
		require.NoError(t, err)
		_, err = s.GetReport(ctx, run.ID, "nope")
		assert.True(t, IsNotFound(err))

		list, err := s.ListReports(ctx, run.ID)
		require.NoError(t, err)
		assert.Empty(t, list)
		assert.NoError(t, s.SaveReports(ctx, run.ID, nil))
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestListLimit(t *testing.T) {
	assert.Equal(t, defaultListLimit, listLimit(0))
	assert.Equal(t, defaultListLimit, listLimit(-3))
	assert.Equal(t, 5, listLimit(5))
}
