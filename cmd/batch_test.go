package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/invoice-cli/internal/export"
	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/pipeline"
	"github.com/sells-group/invoice-cli/internal/store"
)

func result(id string, status model.Status, cost float64) *pipeline.Result {
	return &pipeline.Result{
		Report: &model.ValidationReport{
			InvoiceID:     id,
			Status:        status,
			Header:        []model.ExtractedField{{Name: model.FieldTotalAmount, Value: "242.00"}},
			Billable:      []model.LineItem{},
			NoActivity:    []model.LineItem{},
			RejectedItems: []model.LineItem{},
			Discrepancies: []model.Discrepancy{},
		},
		OpticalText: "scanned " + id,
		CostUSD:     cost,
	}
}

func TestBatchPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.pdf", "a.txt", "notes.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	paths, err := batchPaths(dir, []string{"extra.txt"}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"extra.txt", filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.pdf")}, paths)

	paths, err = batchPaths(dir, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.txt")}, paths)
}

func TestBatchPaths_Errors(t *testing.T) {
	_, err := batchPaths("", nil, 0)
	assert.Error(t, err)

	_, err = batchPaths(filepath.Join(t.TempDir(), "missing"), nil, 0)
	assert.Error(t, err)
}

func TestSourceLabel(t *testing.T) {
	assert.Equal(t, "invoices", sourceLabel("invoices", []string{"a.pdf"}))
	assert.Equal(t, "2 files", sourceLabel("", []string{"a.pdf", "b.pdf"}))
}

func TestStoredReports(t *testing.T) {
	got := storedReports("run-1", []*pipeline.Result{
		result("inv-1", model.StatusAccept, 0.02),
		nil,
		{},
	})
	require.Len(t, got, 1)
	assert.Equal(t, "run-1", got[0].RunID)
	assert.Equal(t, "inv-1", got[0].InvoiceID)
	assert.Equal(t, model.StatusAccept, got[0].Status)
	assert.InDelta(t, 0.02, got[0].CostUSD, 1e-9)
}

func TestFinishBatch_WritesOutputs(t *testing.T) {
	out := t.TempDir()
	truth := filepath.Join(t.TempDir(), "truth.json")
	require.NoError(t, os.WriteFile(truth,
		[]byte(`[{"invoice_id": "inv-1", "status": "accept"}, {"invoice_id": "inv-2", "status": "accept"}]`), 0o644))

	results := []*pipeline.Result{
		result("inv-1", model.StatusAccept, 0.01),
		result("inv-2", model.StatusNeedsReview, 0.02),
	}
	s, err := finishBatch(context.Background(), nil, "run-1", results,
		[]string{model.FieldTotalAmount}, batchOptions{
			OutDir:      out,
			TruthPath:   truth,
			XLSX:        true,
			DumpOptical: true,
		})
	require.NoError(t, err)

	assert.Equal(t, 2, s.Batch.Total)
	assert.Equal(t, 1, s.Batch.Accepted)
	assert.Equal(t, 1, s.Batch.NeedsReview)
	assert.InDelta(t, 0.03, s.Batch.CostUSD, 1e-9)
	require.NotNil(t, s.Batch.Accuracy)
	assert.InDelta(t, 0.5, *s.Batch.Accuracy, 1e-9)
	assert.Equal(t, 2, s.Batch.Evaluated)

	for _, name := range []string{
		"inv-1" + export.ReportSuffix,
		"inv-2" + export.ReportSuffix,
		"inv-1" + export.OpticalSuffix,
		export.SummaryJSON,
		export.SummaryXLSX,
	} {
		assert.FileExists(t, filepath.Join(out, name))
	}

	b, err := os.ReadFile(filepath.Join(out, export.SummaryJSON))
	require.NoError(t, err)
	var written export.Summary
	require.NoError(t, json.Unmarshal(b, &written))
	assert.Equal(t, "run-1", written.RunID)
	require.NotNil(t, written.Eval)
	assert.Equal(t, 2, written.Eval.Invoices)
}

func TestFinishBatch_PersistsRun(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(ctx))

	run, err := st.CreateRun(ctx, "invoices")
	require.NoError(t, err)

	_, err = finishBatch(ctx, st, run.ID, []*pipeline.Result{
		result("inv-1", model.StatusAccept, 0.01),
		result("inv-2", model.StatusReject, 0),
	}, nil, batchOptions{OutDir: t.TempDir()})
	require.NoError(t, err)

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	require.NotNil(t, got.Summary)
	assert.Equal(t, 2, got.Summary.Total)

	reports, err := st.ListReports(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, reports, 2)
}
