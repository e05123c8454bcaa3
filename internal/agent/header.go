package agent

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/pattern"
)

const (
	agentConfidence          = 0.6
	agentCorrectedConfidence = 0.5
)

// HeaderAgent extracts header fields through a Completer.
type HeaderAgent struct {
	completer Completer
}

// NewHeaderAgent creates a HeaderAgent.
func NewHeaderAgent(c Completer) *HeaderAgent {
	return &HeaderAgent{completer: c}
}

type headerAnswer struct {
	Fields   map[string]any `json:"fields"`
	InDomain *bool          `json:"in_domain"`
}

// ExtractHeader implements HeaderExtractor. Every requested field comes back
// as an agent-tier value or an explicit null; values that fail the pattern
// normalisers are nulled and listed in Rejected.
func (a *HeaderAgent) ExtractHeader(ctx context.Context, req HeaderRequest) (*HeaderResult, error) {
	res := &HeaderResult{}
	if len(req.Fields) == 0 {
		return res, nil
	}

	sch, err := compileSchema("header.json", headerSchema(req.Fields))
	if err != nil {
		return res, err
	}

	comp, err := a.completer.Complete(ctx, headerPrompt(req))
	res.Usage.Add(comp)
	if err != nil {
		return res, err
	}

	var ans headerAnswer
	if err := decodeValidated("agent: header", comp.Text, sch, &ans); err != nil {
		return res, err
	}

	for _, spec := range req.Fields {
		f, rej := NormalizeHeaderValue(spec.Name, scalarString(ans.Fields[spec.Name]))
		res.Fields = append(res.Fields, f)
		if rej != nil {
			res.Rejected = append(res.Rejected, *rej)
			zap.L().Debug("agent: header value rejected",
				zap.String("invoice", req.InvoiceID),
				zap.String("field", rej.Field),
				zap.String("raw", rej.Raw),
			)
		}
	}
	res.InDomain = ans.InDomain
	return res, nil
}

// NormalizeHeaderValue turns a raw agent answer into an agent-tier field.
// Identifiers, dates and amounts must pass the same normalisers as the
// pattern tier; anything else is trimmed.
func NormalizeHeaderValue(name, raw string) (model.ExtractedField, *Rejection) {
	raw = strings.Join(strings.Fields(raw), " ")
	if isNullWord(raw) {
		return model.NullField(name, model.ProvenanceAgent), nil
	}

	f := model.ExtractedField{
		Name:       name,
		Raw:        raw,
		Provenance: model.ProvenanceAgent,
		Confidence: agentConfidence,
	}

	var (
		value     string
		corrected bool
		ok        = true
	)
	switch name {
	case model.FieldRegistrationID:
		value, corrected, ok = pattern.NormalizeKvK(raw)
	case model.FieldTaxID:
		value, corrected, ok = pattern.NormalizeVAT(raw)
	case model.FieldInvoiceDate:
		value, ok = pattern.NormalizeDate(raw)
	case model.FieldTotalAmount:
		var amount float64
		amount, ok = pattern.ParseAmount(strings.Trim(raw, "€$ EURUSDeurusd"))
		value = pattern.FormatAmount(amount)
	default:
		value = raw
	}

	if !ok {
		f.Null = true
		f.Confidence = 0
		return f, &Rejection{Field: name, Raw: raw, Reason: "invalid_format"}
	}
	f.Value = value
	if corrected {
		f.Confidence = agentCorrectedConfidence
	}
	return f, nil
}

func isNullWord(s string) bool {
	switch strings.ToLower(s) {
	case "", "null", "none", "n/a", "na", "unknown", "onbekend", "-":
		return true
	}
	return false
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}
