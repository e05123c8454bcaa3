// Package agent holds the probabilistic extraction tier: a header agent and
// a line-item agent that prompt a language model through the Completer
// boundary and turn its JSON answer into typed fields.
package agent

import (
	"context"

	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/pattern"
)

// Prompt is one single-turn request to an inference backend.
type Prompt struct {
	Phase     string
	System    string
	User      string
	MaxTokens int64
}

// Completion is the raw answer of an inference backend.
type Completion struct {
	Text         string
	Model        string
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
}

// Completer is the inference boundary.
type Completer interface {
	Name() string
	Complete(ctx context.Context, p Prompt) (*Completion, error)
}

// Usage accumulates spend over agent calls.
type Usage struct {
	Calls        int     `json:"calls"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd"`
}

// Add records one completion.
func (u *Usage) Add(c *Completion) {
	if c == nil {
		return
	}
	u.Calls++
	u.InputTokens += c.InputTokens
	u.OutputTokens += c.OutputTokens
	u.CostUSD += c.CostUSD
}

// Merge adds o to u.
func (u *Usage) Merge(o Usage) {
	u.Calls += o.Calls
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.CostUSD += o.CostUSD
}

// HeaderRequest asks for document-level fields.
type HeaderRequest struct {
	InvoiceID  string
	Text       string
	Optical    string
	Fields     []model.FieldSpec
	Hints      pattern.Hints
	StrictNull bool
}

// Rejection is an agent value that failed format validation.
type Rejection struct {
	Field  string
	Raw    string
	Reason string
}

// HeaderResult holds one agent-tier field per requested field.
type HeaderResult struct {
	Fields   []model.ExtractedField
	Rejected []Rejection
	InDomain *bool
	Usage    Usage
}

// HeaderExtractor extracts header fields.
type HeaderExtractor interface {
	ExtractHeader(ctx context.Context, req HeaderRequest) (*HeaderResult, error)
}

// LineItemRequest asks for the billed case lines.
type LineItemRequest struct {
	InvoiceID    string
	Text         string
	Fields       []model.FieldSpec
	AllowedCases []string
	StrictNull   bool
}

// LineItemResult holds normalised, registry-checked line items.
type LineItemResult struct {
	Items []model.LineItem
	Usage Usage
}

// LineItemExtractor extracts line items.
type LineItemExtractor interface {
	ExtractLineItems(ctx context.Context, req LineItemRequest) (*LineItemResult, error)
}
