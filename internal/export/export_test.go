package export

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/sells-group/invoice-cli/internal/eval"
	"github.com/sells-group/invoice-cli/internal/model"
)

func hours(h float64) *float64 { return &h }

func reports() []*model.ValidationReport {
	return []*model.ValidationReport{
		{
			InvoiceID: "inv-1",
			Status:    model.StatusAccept,
			Header: []model.ExtractedField{
				{Name: model.FieldSupplierName, Value: "Coaching B.V.", Provenance: model.ProvenanceAgent},
				{Name: model.FieldTaxID, Value: "NL863334647B01", Provenance: model.ProvenancePattern},
			},
			Billable:      []model.LineItem{{CaseID: "JN16-I21-284", RawCaseID: "JN16-121-284", Match: model.MatchCorrected, Hours: hours(1.5)}},
			NoActivity:    []model.LineItem{{CaseID: "AB10-C34-567", RawCaseID: "AB10-C34-567", Match: model.MatchExact}},
			RejectedItems: []model.LineItem{},
			Discrepancies: []model.Discrepancy{},
			Trail:         []model.State{model.StateGated, model.StateReported},
		},
		{
			InvoiceID:     "scans/inv-2",
			Status:        model.StatusReject,
			Reason:        model.KindOutOfDomain,
			Header:        []model.ExtractedField{{Name: model.FieldTaxID, Null: true}},
			Billable:      []model.LineItem{},
			NoActivity:    []model.LineItem{},
			RejectedItems: []model.LineItem{{RawCaseID: "ZZ99", Match: model.MatchUnknown, Rejected: true, RejectReason: "registry_violation"}},
			Discrepancies: []model.Discrepancy{{Field: "line_items", Reason: "no_valid_items", Tier: model.TierRegistry}},
			Trail:         []model.State{model.StateGated, model.StateRejected},
		},
	}
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "inv-1.report.json", FileName("inv-1", ReportSuffix))
	assert.Equal(t, "scans_inv-2.ocr.txt", FileName("scans/inv-2", OpticalSuffix))
	assert.Equal(t, "invoice.report.json", FileName("  ", ReportSuffix))
	assert.Equal(t, "_secret.report.json", FileName("..secret", ReportSuffix))
}

func TestWriteReport(t *testing.T) {
	dir := t.TempDir()
	r := reports()[0]

	path, err := WriteReport(dir, r)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "inv-1.report.json"), path)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	want, err := r.MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestWriteOptical(t *testing.T) {
	dir := t.TempDir()

	path, err := WriteOptical(dir, "inv-1", "--- Page 1 ---\nKvK 84726180")
	require.NoError(t, err)
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "KvK 84726180")

	path, err = WriteOptical(dir, "inv-2", "")
	require.NoError(t, err)
	assert.Empty(t, path)
	_, err = os.Stat(filepath.Join(dir, "inv-2.ocr.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestWriteSummary(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	s := Summary{
		RunID: "run-1",
		Batch: model.BatchSummary{Total: 2, Accepted: 1, Rejected: 1, ByReason: map[model.ErrorKind]int{model.KindOutOfDomain: 1}},
		Eval:  &eval.Summary{Invoices: 2, Compared: 4, Matched: 3, Accuracy: 0.75},
	}

	path, err := WriteSummary(dir, s)
	require.NoError(t, err)

	var got Summary
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "run-1", got.RunID)
	assert.Equal(t, 1, got.Batch.ByReason[model.KindOutOfDomain])
	require.NotNil(t, got.Eval)
	assert.InDelta(t, 0.75, got.Eval.Accuracy, 1e-9)
}

func TestWorkbook(t *testing.T) {
	s := Summary{
		Batch: model.BatchSummary{Total: 2, Accepted: 1, Rejected: 1, ByReason: map[model.ErrorKind]int{model.KindOutOfDomain: 1}, CostUSD: 0.04},
		Eval: &eval.Summary{Invoices: 1, Accuracy: 1, PerField: map[string]eval.FieldStat{
			model.FieldTaxID: {Compared: 1, Matched: 1, Accuracy: 1},
		}},
	}
	b, err := Workbook(append(reports(), nil), []string{model.FieldSupplierName, model.FieldTaxID}, s)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck

	assert.Equal(t, []string{SheetInvoices, SheetLineItems, SheetSummary}, f.GetSheetList())

	rows, err := f.GetRows(SheetInvoices)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Invoice", "Status", "Reason", "supplier_name", "tax_id", "Billable hours", "Discrepancies"}, rows[0])
	assert.Equal(t, "inv-1", rows[1][0])
	assert.Equal(t, "Coaching B.V.", rows[1][3])
	assert.Equal(t, "NL863334647B01", rows[1][4])
	assert.Equal(t, "1.5", rows[1][5])
	assert.Equal(t, "OutOfDomain", rows[2][2])
	assert.Equal(t, "line_items:no_valid_items", rows[2][6])

	lines, err := f.GetRows(SheetLineItems)
	require.NoError(t, err)
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"inv-1", "billable", "JN16-I21-284", "JN16-121-284", "corrected", "", "1.5"}, lines[1])
	assert.Equal(t, "no_activity", lines[2][1])
	assert.Equal(t, "rejected", lines[3][1])
	assert.Equal(t, "registry_violation", lines[3][8])

	summary, err := f.GetRows(SheetSummary)
	require.NoError(t, err)
	flat := map[string]string{}
	for _, row := range summary {
		if len(row) == 2 {
			flat[row[0]] = row[1]
		}
	}
	assert.Equal(t, "2", flat["Total"])
	assert.Equal(t, "1", flat["Rejected: OutOfDomain"])
	assert.Equal(t, "1", flat["Accuracy: tax_id"])
}

func TestWriteXLSX(t *testing.T) {
	dir := t.TempDir()
	path, err := WriteXLSX(dir, reports(), []string{model.FieldTaxID}, Summary{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, SummaryXLSX), path)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}
