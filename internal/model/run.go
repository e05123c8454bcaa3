package model

import "time"

// RunStatus represents the lifecycle of a batch run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one batch execution over a set of invoices.
type Run struct {
	ID        string        `json:"id"`
	Source    string        `json:"source"`
	Status    RunStatus     `json:"status"`
	Summary   *BatchSummary `json:"summary,omitempty"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// BatchSummary aggregates verdicts over a batch.
type BatchSummary struct {
	Total       int               `json:"total"`
	Accepted    int               `json:"accepted"`
	Rejected    int               `json:"rejected"`
	NeedsReview int               `json:"needs_review"`
	ByReason    map[ErrorKind]int `json:"by_reason,omitempty"`
	Accuracy    *float64          `json:"accuracy,omitempty"`
	Evaluated   int               `json:"evaluated,omitempty"`
	CostUSD     float64           `json:"cost_usd"`
}

// Add counts one report.
func (s *BatchSummary) Add(r *ValidationReport) {
	s.Total++
	switch r.Status {
	case StatusAccept:
		s.Accepted++
	case StatusReject:
		s.Rejected++
		if r.Reason != "" {
			if s.ByReason == nil {
				s.ByReason = make(map[ErrorKind]int)
			}
			s.ByReason[r.Reason]++
		}
	case StatusNeedsReview:
		s.NeedsReview++
	}
}

// StoredReport is a report persisted under a run.
type StoredReport struct {
	RunID     string            `json:"run_id"`
	InvoiceID string            `json:"invoice_id"`
	Status    Status            `json:"status"`
	Report    *ValidationReport `json:"report"`
	CostUSD   float64           `json:"cost_usd"`
	CreatedAt time.Time         `json:"created_at"`
}
