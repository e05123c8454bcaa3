package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/invoice-cli/internal/eval"
	"github.com/sells-group/invoice-cli/internal/model"
)

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "0b5c7f3a", truncateID("0b5c7f3a-1111-2222-3333-444455556666"))
	assert.Equal(t, "short", truncateID("short"))
	assert.Equal(t, "", truncateID(""))
}

func TestFormatRunsList(t *testing.T) {
	created := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "0b5c7f3a-1111-2222-3333-444455556666",
			Source:    "invoices/march",
			Status:    model.RunStatusComplete,
			Summary:   &model.BatchSummary{Total: 12, Accepted: 9, NeedsReview: 2, CostUSD: 0.125},
			CreatedAt: created,
			UpdatedAt: created.Add(90 * time.Second),
		},
		{
			ID:        "9f9f9f9f-aaaa",
			Source:    strings.Repeat("x", 40),
			Status:    model.RunStatusRunning,
			CreatedAt: created,
			UpdatedAt: created,
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)
	out := buf.String()

	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "SOURCE")
	assert.Contains(t, out, "0b5c7f3a")
	assert.NotContains(t, out, "0b5c7f3a-1111")
	assert.Contains(t, out, "invoices/march")
	assert.Contains(t, out, "$0.1250")
	assert.Contains(t, out, "1m30s")
	assert.Contains(t, out, "2026-03-02 09:30")
	assert.Contains(t, out, strings.Repeat("x", 27)+"...")
	assert.Contains(t, out, "running")
}

func TestFormatReportsList(t *testing.T) {
	var buf bytes.Buffer
	formatReportsList(&buf, []model.StoredReport{
		{InvoiceID: "inv-1", Status: model.StatusAccept, CostUSD: 0.01, Report: &model.ValidationReport{}},
		{InvoiceID: "inv-2", Status: model.StatusReject, Report: &model.ValidationReport{Reason: model.KindOutOfDomain}},
	})
	out := buf.String()
	assert.Contains(t, out, "inv-1")
	assert.Contains(t, out, "accept")
	assert.Contains(t, out, "$0.0100")
	assert.Contains(t, out, "OutOfDomain")
}

func TestFormatEvalSummary(t *testing.T) {
	var buf bytes.Buffer
	formatEvalSummary(&buf, eval.Summary{
		Invoices: 2,
		Compared: 4,
		Matched:  3,
		Accuracy: 0.75,
		PerField: map[string]eval.FieldStat{
			"total_amount": {Compared: 2, Matched: 2, Accuracy: 1},
			"status":       {Compared: 2, Matched: 1, Accuracy: 0.5},
		},
	})
	out := buf.String()
	assert.Contains(t, out, "0.750")
	assert.Less(t, strings.Index(out, "status"), strings.Index(out, "total_amount"))
}
