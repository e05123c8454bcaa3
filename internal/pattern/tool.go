// Package pattern is the deterministic extraction tier: compiled patterns for
// Dutch invoice identifiers, dates and amounts, plus look-alike correction.
// Everything here is pure; the same text always yields the same result.
package pattern

import (
	"slices"

	"github.com/sells-group/invoice-cli/internal/model"
)

// Field names understood by the tool.
const (
	FieldRegistrationID = model.FieldRegistrationID
	FieldTaxID          = model.FieldTaxID
	FieldInvoiceNumber  = model.FieldInvoiceNumber
	FieldInvoiceDate    = model.FieldInvoiceDate
	FieldTotalAmount    = model.FieldTotalAmount
	FieldCaseID         = "case_id"
)

const (
	confidenceExact     = 1.0
	confidenceCorrected = 0.85
	confidenceAmbiguous = 0.3
)

// Candidate is one match of a field pattern.
type Candidate struct {
	Field      string  `json:"field"`
	Value      string  `json:"value"`
	Raw        string  `json:"raw"`
	Offset     int     `json:"offset"`
	Confidence float64 `json:"confidence"`
	Corrected  bool    `json:"corrected,omitempty"`
}

func newCandidate(field, value, raw string, offset int, corrected bool) Candidate {
	conf := confidenceExact
	if corrected {
		conf = confidenceCorrected
	}
	return Candidate{
		Field:      field,
		Value:      value,
		Raw:        raw,
		Offset:     offset,
		Confidence: conf,
		Corrected:  corrected,
	}
}

// ResolutionStatus summarises the candidates for one field.
type ResolutionStatus string

const (
	Resolved  ResolutionStatus = "resolved"
	Ambiguous ResolutionStatus = "ambiguous"
	Missing   ResolutionStatus = "missing"
)

// Resolution is the tool's verdict for one field.
type Resolution struct {
	Field      string           `json:"field"`
	Status     ResolutionStatus `json:"status"`
	Value      string           `json:"value,omitempty"`
	Confidence float64          `json:"confidence"`
	Candidates []Candidate      `json:"candidates,omitempty"`
}

// Values returns the distinct candidate values in order of first appearance.
func (r Resolution) Values() []string {
	return distinctValues(r.Candidates)
}

// AsField converts the resolution into an extracted field from tier p.
// Ambiguous readings become policy nulls that keep their candidates.
func (r Resolution) AsField(p model.Provenance) model.ExtractedField {
	f := model.ExtractedField{Name: r.Field, Provenance: p, Confidence: r.Confidence}
	switch r.Status {
	case Resolved:
		f.Value = r.Value
		if len(r.Candidates) > 0 {
			f.Raw = r.Candidates[0].Raw
		}
	case Ambiguous:
		f.Null = true
		f.PolicyNull = true
		f.Candidates = r.Values()
	default:
		f.Null = true
	}
	return f
}

// CaseMatcher corrects case identifiers against the registry.
type CaseMatcher interface {
	Correct(raw string) Correction
}

// Tool runs the field patterns over text.
type Tool struct {
	cases CaseMatcher
}

// NewTool creates a Tool. cases may be nil, in which case case identifiers are
// reported as read.
func NewTool(cases CaseMatcher) *Tool {
	return &Tool{cases: cases}
}

// Supports reports whether the tool has patterns for field.
func (t *Tool) Supports(field string) bool {
	switch field {
	case FieldRegistrationID, FieldTaxID, FieldInvoiceNumber, FieldInvoiceDate, FieldTotalAmount, FieldCaseID:
		return true
	default:
		return false
	}
}

// Extract returns every match for field in text, in text order.
func (t *Tool) Extract(text, field string) []Candidate {
	text = PrepareText(text)
	var out []Candidate
	switch field {
	case FieldRegistrationID:
		out = extractKvK(text)
	case FieldTaxID:
		out = extractVAT(text)
	case FieldInvoiceNumber:
		out = extractInvoiceNumbers(text)
	case FieldInvoiceDate:
		out = extractDates(text)
	case FieldTotalAmount:
		out = extractTotals(text)
		if len(out) == 0 {
			out = extractAmounts(text)
		}
	case FieldCaseID:
		out = extractCaseIDs(text)
	}
	slices.SortStableFunc(out, func(a, b Candidate) int { return a.Offset - b.Offset })
	return out
}

// Resolve extracts field and decides whether the reading is unique.
func (t *Tool) Resolve(text, field string) Resolution {
	cands := t.Extract(text, field)
	res := Resolution{Field: field, Status: Missing, Candidates: cands}

	values := distinctValues(cands)
	switch len(values) {
	case 0:
	case 1:
		res.Status = Resolved
		res.Value = values[0]
		for _, c := range cands {
			res.Confidence = max(res.Confidence, c.Confidence)
		}
	default:
		res.Status = Ambiguous
		res.Confidence = confidenceAmbiguous
	}
	return res
}

// ResolveAll resolves each field in order.
func (t *Tool) ResolveAll(text string, fields []string) []Resolution {
	out := make([]Resolution, 0, len(fields))
	for _, f := range fields {
		if t.Supports(f) {
			out = append(out, t.Resolve(text, f))
		}
	}
	return out
}

// CaseIDs returns the case identifiers read from text, corrected against
// the registry when one is configured. Duplicates are dropped.
func (t *Tool) CaseIDs(text string) []Correction {
	var out []Correction
	seen := make(map[string]bool)
	for _, c := range t.Extract(text, FieldCaseID) {
		if seen[c.Value] {
			continue
		}
		seen[c.Value] = true
		if t.cases == nil {
			out = append(out, Correction{Input: c.Raw, Value: c.Value, Kind: model.MatchUnknown, Contamination: Contamination(c.Raw)})
			continue
		}
		out = append(out, t.cases.Correct(c.Raw))
	}
	return out
}

// Hints are non-binding pattern readings passed to the agents as context.
type Hints struct {
	RegistrationIDs []string `json:"registration_ids,omitempty"`
	TaxIDs          []string `json:"tax_ids,omitempty"`
	InvoiceNumbers  []string `json:"invoice_numbers,omitempty"`
	Dates           []string `json:"dates,omitempty"`
	Amounts         []string `json:"amounts,omitempty"`
	Total           string   `json:"total,omitempty"`
	CaseIDs         []string `json:"case_ids,omitempty"`
}

// Hints collects readings for every supported field.
func (t *Tool) Hints(text string) Hints {
	h := Hints{
		RegistrationIDs: distinctValues(t.Extract(text, FieldRegistrationID)),
		TaxIDs:          distinctValues(t.Extract(text, FieldTaxID)),
		InvoiceNumbers:  distinctValues(t.Extract(text, FieldInvoiceNumber)),
		Dates:           distinctValues(t.Extract(text, FieldInvoiceDate)),
		Amounts:         distinctValues(extractAmounts(PrepareText(text))),
	}
	if totals := extractTotals(PrepareText(text)); len(totals) > 0 {
		h.Total = totals[len(totals)-1].Value
	}
	for _, c := range t.CaseIDs(text) {
		if c.Accepted() {
			h.CaseIDs = append(h.CaseIDs, c.Value)
		}
	}
	slices.Sort(h.CaseIDs)
	h.CaseIDs = slices.Compact(h.CaseIDs)
	return h
}

func distinctValues(cands []Candidate) []string {
	var out []string
	for _, c := range cands {
		if !slices.Contains(out, c.Value) {
			out = append(out, c.Value)
		}
	}
	return out
}
