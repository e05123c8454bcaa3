package export

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-cli/internal/eval"
	"github.com/sells-group/invoice-cli/internal/model"
)

// Sheet names in the summary workbook.
const (
	SheetInvoices  = "Invoices"
	SheetLineItems = "Line items"
	SheetSummary   = "Summary"
)

// Workbook renders reports into an XLSX workbook: one row per invoice, one
// row per line item, and the batch totals.
func Workbook(reports []*model.ValidationReport, headerFields []string, s Summary) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close() //nolint:errcheck

	if err := f.SetSheetName("Sheet1", SheetInvoices); err != nil {
		return nil, eris.Wrap(err, "export: rename sheet")
	}
	for _, name := range []string{SheetLineItems, SheetSummary} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, eris.Wrapf(err, "export: new sheet %s", name)
		}
	}

	invoiceHeader := append([]string{"Invoice", "Status", "Reason"}, headerFields...)
	invoiceHeader = append(invoiceHeader, "Billable hours", "Discrepancies")
	invoices := newSheetWriter(f, SheetInvoices)
	invoices.row(toAny(invoiceHeader)...)

	lines := newSheetWriter(f, SheetLineItems)
	lines.row("Invoice", "Bucket", "Case", "Raw case", "Match", "Date", "Hours", "Description", "Reject reason")

	for _, r := range reports {
		if r == nil {
			continue
		}
		cells := []any{r.InvoiceID, string(r.Status), string(r.Reason)}
		for _, name := range headerFields {
			v, _ := r.HeaderValue(name)
			cells = append(cells, v)
		}
		cells = append(cells, billableHours(r), discrepancySummary(r.Discrepancies))
		invoices.row(cells...)

		for _, bucket := range []struct {
			name  string
			items []model.LineItem
		}{
			{"billable", r.Billable},
			{"no_activity", r.NoActivity},
			{"rejected", r.RejectedItems},
		} {
			for _, it := range bucket.items {
				var hours any
				if it.Hours != nil {
					hours = *it.Hours
				}
				lines.row(r.InvoiceID, bucket.name, it.CaseID, it.RawCaseID, string(it.Match),
					it.Date, hours, it.Description, it.RejectReason)
			}
		}
	}

	summary := newSheetWriter(f, SheetSummary)
	writeSummarySheet(summary, s)

	_ = f.SetColWidth(SheetInvoices, "A", "A", 28)
	_ = f.SetColWidth(SheetLineItems, "A", "A", 28)
	_ = f.SetColWidth(SheetLineItems, "H", "H", 48)
	_ = f.SetColWidth(SheetSummary, "A", "A", 24)

	if invoices.err != nil || lines.err != nil || summary.err != nil {
		return nil, eris.Wrap(firstErr(invoices.err, lines.err, summary.err), "export: fill workbook")
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, eris.Wrap(err, "export: xlsx write")
	}
	zap.L().Debug("export: workbook built", zap.Int("invoices", len(reports)))
	return buf.Bytes(), nil
}

// WriteXLSX writes the workbook as summary.xlsx under dir.
func WriteXLSX(dir string, reports []*model.ValidationReport, headerFields []string, s Summary) (string, error) {
	b, err := Workbook(reports, headerFields, s)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, SummaryXLSX)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "export: mkdir %s", dir)
	}
	return path, eris.Wrapf(os.WriteFile(path, b, 0o644), "export: write %s", path)
}

func writeSummarySheet(w *sheetWriter, s Summary) {
	b := s.Batch
	w.row("Metric", "Value")
	if s.RunID != "" {
		w.row("Run", s.RunID)
	}
	w.row("Total", b.Total)
	w.row("Accepted", b.Accepted)
	w.row("Rejected", b.Rejected)
	w.row("Needs review", b.NeedsReview)
	for _, kind := range sortedKinds(b.ByReason) {
		w.row("Rejected: "+string(kind), b.ByReason[kind])
	}
	w.row("Cost (USD)", b.CostUSD)
	if s.Eval != nil {
		w.row("Evaluated invoices", s.Eval.Invoices)
		w.row("Accuracy", s.Eval.Accuracy)
		for _, field := range sortedFieldStats(s.Eval.PerField) {
			w.row("Accuracy: "+field, s.Eval.PerField[field].Accuracy)
		}
	}
}

type sheetWriter struct {
	f     *excelize.File
	sheet string
	next  int
	err   error
}

func newSheetWriter(f *excelize.File, sheet string) *sheetWriter {
	return &sheetWriter{f: f, sheet: sheet, next: 1}
}

func (w *sheetWriter) row(values ...any) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, w.next)
	if err != nil {
		w.err = err
		return
	}
	if err := w.f.SetSheetRow(w.sheet, cell, &values); err != nil {
		w.err = err
		return
	}
	w.next++
}

func billableHours(r *model.ValidationReport) float64 {
	var total float64
	for _, it := range r.Billable {
		if it.Hours != nil {
			total += *it.Hours
		}
	}
	return total
}

func discrepancySummary(ds []model.Discrepancy) string {
	parts := make([]string, 0, len(ds))
	for _, d := range ds {
		parts = append(parts, d.Field+":"+d.Reason)
	}
	return strings.Join(parts, "; ")
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func sortedKinds(m map[model.ErrorKind]int) []model.ErrorKind {
	out := make([]model.ErrorKind, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

func sortedFieldStats(m map[string]eval.FieldStat) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
