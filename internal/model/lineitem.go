package model

// MatchKind describes how a raw case identifier relates to the registry.
type MatchKind string

const (
	MatchExact     MatchKind = "exact"
	MatchCorrected MatchKind = "corrected"
	MatchAmbiguous MatchKind = "ambiguous"
	MatchUnknown   MatchKind = "unknown"
)

// Duration units accepted from the line-item agent.
const (
	UnitHours   = "hours"
	UnitMinutes = "minutes"
)

// LineItem is one billed case line. Hours is nil when the duration is
// unknown; RawDuration keeps what the agent reported before unit conversion.
type LineItem struct {
	CaseID        string     `json:"case_id,omitempty"`
	RawCaseID     string     `json:"raw_case_id"`
	Date          string     `json:"date,omitempty"`
	Hours         *float64   `json:"hours"`
	RawDuration   *float64   `json:"raw_duration,omitempty"`
	Unit          string     `json:"unit,omitempty"`
	Description   string     `json:"description,omitempty"`
	Match         MatchKind  `json:"match"`
	Contamination string     `json:"contamination,omitempty"`
	Candidates    []string   `json:"candidates,omitempty"`
	Rejected      bool       `json:"rejected,omitempty"`
	RejectReason  string     `json:"reject_reason,omitempty"`
	Provenance    Provenance `json:"provenance"`
}

// NoActivity reports whether the item carries no billable time.
func (li LineItem) NoActivity() bool {
	return li.Hours == nil || *li.Hours == 0
}

// Valid reports whether the item resolved to a registry member.
func (li LineItem) Valid() bool {
	return !li.Rejected && li.CaseID != "" &&
		(li.Match == MatchExact || li.Match == MatchCorrected)
}
