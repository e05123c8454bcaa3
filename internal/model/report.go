package model

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// Status is the final verdict on an invoice.
type Status string

const (
	StatusAccept      Status = "accept"
	StatusReject      Status = "reject"
	StatusNeedsReview Status = "needs-review"
)

// State is a node in the orchestrator's state machine.
type State string

const (
	StateGated             State = "gated"
	StateDispatched        State = "dispatched"
	StateValidated         State = "validated"
	StateEscalatingOptical State = "escalating-optical"
	StateEscalatingPattern State = "escalating-pattern"
	StateEscalatingAgent   State = "escalating-agent"
	StateMerged            State = "merged"
	StateGatekept          State = "gatekept"
	StateReported          State = "reported"
	StateRejected          State = "rejected"
)

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateReported || s == StateRejected
}

// Discrepancy tiers that are not extraction tiers.
const (
	TierGate     = "gate"
	TierOptical  = "optical"
	TierRegistry = "registry"
	TierMerge    = "merge"
)

// Discrepancy records something the pipeline could not reconcile.
type Discrepancy struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
	Tier   string `json:"tier"`
	Detail string `json:"detail,omitempty"`
}

// ValidationReport is the immutable outcome for one invoice. It carries no
// timestamps or run identifiers so identical inputs yield identical bytes.
type ValidationReport struct {
	InvoiceID     string           `json:"invoice_id"`
	Status        Status           `json:"status"`
	Reason        ErrorKind        `json:"reason,omitempty"`
	InDomain      *bool            `json:"in_domain,omitempty"`
	Header        []ExtractedField `json:"header"`
	Billable      []LineItem       `json:"billable"`
	NoActivity    []LineItem       `json:"no_activity"`
	RejectedItems []LineItem       `json:"rejected_items"`
	Discrepancies []Discrepancy    `json:"discrepancies"`
	Trail         []State          `json:"trail"`
}

// HeaderValue returns the resolved value of a header field, or "" if null.
func (r *ValidationReport) HeaderValue(name string) (string, bool) {
	for _, f := range r.Header {
		if f.Name == name {
			if f.Resolved() {
				return f.Value, true
			}
			return "", false
		}
	}
	return "", false
}

// HeaderField returns the header field with the given name.
func (r *ValidationReport) HeaderField(name string) (ExtractedField, bool) {
	for _, f := range r.Header {
		if f.Name == name {
			return f, true
		}
	}
	return ExtractedField{}, false
}

// MarshalCanonical encodes the report as indented JSON.
func (r *ValidationReport) MarshalCanonical() ([]byte, error) {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return nil, eris.Wrapf(err, "model: marshal report %s", r.InvoiceID)
	}
	return append(b, '\n'), nil
}
