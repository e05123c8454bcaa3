// Package export writes batch output: one JSON report per invoice, the batch
// summary, optional optical-text dumps and a summary workbook.
package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-cli/internal/eval"
	"github.com/sells-group/invoice-cli/internal/model"
)

// File names and suffixes under the output directory.
const (
	ReportSuffix  = ".report.json"
	OpticalSuffix = ".ocr.txt"
	SummaryJSON   = "summary.json"
	SummaryXLSX   = "summary.xlsx"
)

// Summary is the content of summary.json.
type Summary struct {
	RunID string             `json:"run_id,omitempty"`
	Batch model.BatchSummary `json:"batch"`
	Eval  *eval.Summary      `json:"eval,omitempty"`
}

var unsafeName = strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")

// FileName turns an invoice ID into a file name with suffix.
func FileName(invoiceID, suffix string) string {
	name := unsafeName.Replace(strings.TrimSpace(invoiceID))
	if name == "" {
		name = "invoice"
	}
	return name + suffix
}

// WriteReport writes r as <id>.report.json under dir and returns the path.
func WriteReport(dir string, r *model.ValidationReport) (string, error) {
	b, err := r.MarshalCanonical()
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName(r.InvoiceID, ReportSuffix))
	if err := writeFile(path, b); err != nil {
		return "", err
	}
	return path, nil
}

// WriteOptical dumps recognised text as <id>.ocr.txt. Empty text is skipped.
func WriteOptical(dir, invoiceID, text string) (string, error) {
	if text == "" {
		return "", nil
	}
	path := filepath.Join(dir, FileName(invoiceID, OpticalSuffix))
	if err := writeFile(path, []byte(text)); err != nil {
		return "", err
	}
	return path, nil
}

// WriteSummary writes summary.json under dir.
func WriteSummary(dir string, s Summary) (string, error) {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "export: marshal summary")
	}
	path := filepath.Join(dir, SummaryJSON)
	if err := writeFile(path, append(b, '\n')); err != nil {
		return "", err
	}
	return path, nil
}

func writeFile(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "export: mkdir for %s", path)
	}
	return eris.Wrapf(os.WriteFile(path, b, 0o644), "export: write %s", path)
}
