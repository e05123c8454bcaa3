package agent

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/pattern"
)

// Line-item column names.
const (
	caseField        = "case_id"
	dateField        = "date"
	durationField    = "duration"
	unitField        = "unit"
	descriptionField = "description"
)

// Reject reasons for line items.
const (
	RejectRegistryViolation = "registry_violation"
	RejectAmbiguousCase     = "ambiguous_case_id"
	RejectMissingCase       = "missing_case_id"
)

var durationNumber = regexp.MustCompile(`-?\d+(?:[.,]\d+)?`)

// LineItemAgent extracts line items and checks them against the registry.
type LineItemAgent struct {
	completer Completer
	cases     pattern.CaseMatcher
}

// NewLineItemAgent creates a LineItemAgent. cases is consulted for every
// extracted identifier.
func NewLineItemAgent(c Completer, cases pattern.CaseMatcher) *LineItemAgent {
	return &LineItemAgent{completer: c, cases: cases}
}

type lineItemAnswer struct {
	LineItems []map[string]any `json:"line_items"`
}

// ExtractLineItems implements LineItemExtractor.
func (a *LineItemAgent) ExtractLineItems(ctx context.Context, req LineItemRequest) (*LineItemResult, error) {
	res := &LineItemResult{}

	sch, err := compileSchema("line_items.json", lineItemSchema(req.Fields))
	if err != nil {
		return res, err
	}

	comp, err := a.completer.Complete(ctx, lineItemPrompt(req))
	res.Usage.Add(comp)
	if err != nil {
		return res, err
	}

	var ans lineItemAnswer
	if err := decodeValidated("agent: line items", comp.Text, sch, &ans); err != nil {
		return res, err
	}

	res.Items = make([]model.LineItem, 0, len(ans.LineItems))
	for _, raw := range ans.LineItems {
		item := NormalizeLineItem(raw)
		res.Items = append(res.Items, CheckCase(item, a.cases))
	}
	return res, nil
}

// NormalizeLineItem converts one raw answer row. Durations are converted to
// hours here, before any registry check.
func NormalizeLineItem(raw map[string]any) model.LineItem {
	item := model.LineItem{
		RawCaseID:   strings.TrimSpace(scalarString(raw[caseField])),
		Description: strings.Join(strings.Fields(scalarString(raw[descriptionField])), " "),
		Provenance:  model.ProvenanceAgent,
	}
	if isNullWord(item.RawCaseID) {
		item.RawCaseID = ""
	}
	if d, ok := pattern.NormalizeDate(scalarString(raw[dateField])); ok {
		item.Date = d
	}
	item.Hours, item.RawDuration, item.Unit = NormalizeDuration(raw[durationField], scalarString(raw[unitField]))
	return item
}

// NormalizeDuration returns the duration in hours, the number as reported and
// the unit it was read in. Minutes are divided by 60. A missing or negative
// duration yields nil hours.
func NormalizeDuration(value any, unit string) (hours, reported *float64, unitOut string) {
	unitOut = normalizeUnit(unit)

	var n float64
	switch v := value.(type) {
	case float64:
		n = v
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		if unitOut == "" && (strings.Contains(s, "min") || strings.HasSuffix(s, "m")) {
			unitOut = model.UnitMinutes
		}
		num := durationNumber.FindString(s)
		if num == "" {
			return nil, nil, unitOut
		}
		parsed, ok := pattern.ParseAmount(num)
		if !ok {
			return nil, nil, unitOut
		}
		n = parsed
	default:
		return nil, nil, unitOut
	}
	if n < 0 {
		return nil, &n, unitOut
	}
	if unitOut == "" {
		unitOut = model.UnitHours
	}

	h := n
	if unitOut == model.UnitMinutes {
		h = n / 60
	}
	h = math.Round(h*1e4) / 1e4
	return &h, &n, unitOut
}

func normalizeUnit(u string) string {
	switch strings.ToLower(strings.TrimSpace(u)) {
	case "minutes", "minute", "minuten", "minuut", "min", "mins", "m":
		return model.UnitMinutes
	case "hours", "hour", "uur", "uren", "u", "h", "hrs":
		return model.UnitHours
	default:
		return ""
	}
}

// CheckCase validates item's case identifier against cases. Look-alike
// repairs are applied only when unique; anything else rejects the item.
func CheckCase(item model.LineItem, cases pattern.CaseMatcher) model.LineItem {
	if item.RawCaseID == "" {
		item.Match = model.MatchUnknown
		item.Rejected = true
		item.RejectReason = RejectMissingCase
		return item
	}
	if cases == nil {
		item.Match = model.MatchUnknown
		item.Rejected = true
		item.RejectReason = RejectRegistryViolation
		return item
	}

	c := cases.Correct(item.RawCaseID)
	item.Match = c.Kind
	item.Contamination = c.Contamination
	switch c.Kind {
	case model.MatchExact, model.MatchCorrected:
		item.CaseID = c.Value
	case model.MatchAmbiguous:
		item.Candidates = c.Candidates
		item.Rejected = true
		item.RejectReason = RejectAmbiguousCase
	default:
		item.Rejected = true
		item.RejectReason = RejectRegistryViolation
	}
	return item
}
