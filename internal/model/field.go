package model

import "slices"

// Provenance names the tier that produced a field value.
type Provenance string

const (
	ProvenancePattern        Provenance = "pattern-tier"
	ProvenanceOpticalPattern Provenance = "optical-pattern-tier"
	ProvenanceAgent          Provenance = "agent-tier"
)

// Rank orders tiers by trust. Deterministic tiers outrank probabilistic ones.
func (p Provenance) Rank() int {
	switch p {
	case ProvenancePattern:
		return 3
	case ProvenanceOpticalPattern:
		return 2
	case ProvenanceAgent:
		return 1
	default:
		return 0
	}
}

// Header field names.
const (
	FieldSupplierName   = "supplier_name"
	FieldRegistrationID = "registration_id"
	FieldTaxID          = "tax_id"
	FieldInvoiceNumber  = "invoice_number"
	FieldInvoiceDate    = "invoice_date"
	FieldTotalAmount    = "total_amount"
)

// HeaderFields lists header fields in report order.
var HeaderFields = []string{
	FieldSupplierName,
	FieldRegistrationID,
	FieldTaxID,
	FieldInvoiceNumber,
	FieldInvoiceDate,
	FieldTotalAmount,
}

// FieldSpec describes one field an agent is asked to extract.
type FieldSpec struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Format      string `json:"format,omitempty" yaml:"format,omitempty"`
	Critical    bool   `json:"critical,omitempty" yaml:"critical,omitempty"`
}

// ExtractedField is a single extracted value with its provenance.
// Null means the tier explicitly found nothing; PolicyNull means the
// precision policy refused to guess (e.g. an ambiguous correction).
type ExtractedField struct {
	Name       string     `json:"name"`
	Value      string     `json:"value,omitempty"`
	Null       bool       `json:"null"`
	PolicyNull bool       `json:"policy_null,omitempty"`
	Provenance Provenance `json:"provenance,omitempty"`
	Confidence float64    `json:"confidence"`
	Raw        string     `json:"raw,omitempty"`
	Candidates []string   `json:"candidates,omitempty"`
}

// NullField returns an explicit null for name produced by tier p.
func NullField(name string, p Provenance) ExtractedField {
	return ExtractedField{Name: name, Null: true, Provenance: p}
}

// Resolved reports whether the field carries a usable value.
func (f ExtractedField) Resolved() bool {
	return !f.Null && f.Value != ""
}

// OfferOutcome is the result of proposing a value to a FieldSet.
type OfferOutcome int

const (
	// OfferAccepted means the candidate became the field's current value.
	OfferAccepted OfferOutcome = iota
	// OfferIgnored means the candidate added nothing (null over a value, or a
	// lower tier over a policy null).
	OfferIgnored
	// OfferConflict means two tiers disagreed on a non-null value. Displaced
	// holds the losing value.
	OfferConflict
)

// OfferResult describes what happened to an offered field.
type OfferResult struct {
	Outcome   OfferOutcome
	Displaced *ExtractedField
}

// FieldSet is an ordered, append-only record of header fields. Every accepted
// offer is kept in History so escalation never erases earlier evidence.
type FieldSet struct {
	order   []string
	current map[string]ExtractedField
	history []ExtractedField
}

// NewFieldSet creates a FieldSet that reports fields in the given order.
func NewFieldSet(names ...string) *FieldSet {
	return &FieldSet{
		order:   slices.Clone(names),
		current: make(map[string]ExtractedField, len(names)),
	}
}

// Get returns the current value for name.
func (s *FieldSet) Get(name string) (ExtractedField, bool) {
	f, ok := s.current[name]
	return f, ok
}

// Offer proposes f. Rules:
//   - an unknown field or a plain null takes any candidate;
//   - a policy null yields only to a non-null value from a higher-ranked tier;
//   - a value yields only to a different value from a higher-ranked tier,
//     which is reported as a conflict;
//   - nulls never displace values.
func (s *FieldSet) Offer(f ExtractedField) OfferResult {
	if !slices.Contains(s.order, f.Name) {
		s.order = append(s.order, f.Name)
	}

	cur, ok := s.current[f.Name]
	switch {
	case !ok:
		return s.accept(f)

	case cur.Null && !cur.PolicyNull:
		if f.Null && !f.PolicyNull {
			return OfferResult{Outcome: OfferIgnored}
		}
		return s.accept(f)

	case cur.Null:
		if f.Null || f.Provenance.Rank() <= cur.Provenance.Rank() {
			return OfferResult{Outcome: OfferIgnored}
		}
		return s.accept(f)

	default:
		if f.Null {
			return OfferResult{Outcome: OfferIgnored}
		}
		if f.Value == cur.Value {
			if f.Provenance.Rank() > cur.Provenance.Rank() {
				return s.accept(f)
			}
			return OfferResult{Outcome: OfferIgnored}
		}
		if f.Provenance.Rank() > cur.Provenance.Rank() {
			s.accept(f)
			return OfferResult{Outcome: OfferConflict, Displaced: &cur}
		}
		loser := f
		return OfferResult{Outcome: OfferConflict, Displaced: &loser}
	}
}

func (s *FieldSet) accept(f ExtractedField) OfferResult {
	s.current[f.Name] = f
	s.history = append(s.history, f)
	return OfferResult{Outcome: OfferAccepted}
}

// Missing returns the names that have no resolved value.
func (s *FieldSet) Missing(names []string) []string {
	var out []string
	for _, n := range names {
		if f, ok := s.current[n]; !ok || !f.Resolved() {
			out = append(out, n)
		}
	}
	return out
}

// Fields returns the current value of every field in order. Fields never
// offered are reported as nulls without provenance.
func (s *FieldSet) Fields() []ExtractedField {
	out := make([]ExtractedField, 0, len(s.order))
	for _, n := range s.order {
		f, ok := s.current[n]
		if !ok {
			f = ExtractedField{Name: n, Null: true}
		}
		out = append(out, f)
	}
	return out
}

// History returns every accepted offer in arrival order.
func (s *FieldSet) History() []ExtractedField {
	return slices.Clone(s.history)
}
