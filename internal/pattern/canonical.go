package pattern

import (
	"slices"
	"strings"

	"github.com/sells-group/invoice-cli/internal/model"
)

// Correction is the outcome of matching a raw identifier against a set of
// known canonical codes.
type Correction struct {
	Input         string          `json:"input"`
	Value         string          `json:"value,omitempty"`
	Kind          model.MatchKind `json:"kind"`
	Confidence    float64         `json:"confidence"`
	Candidates    []string        `json:"candidates,omitempty"`
	Contamination string          `json:"contamination"`
}

// Accepted reports whether the correction resolved to exactly one code.
func (c Correction) Accepted() bool {
	return c.Kind == model.MatchExact || c.Kind == model.MatchCorrected
}

// Canonicalizer corrects digit/letter look-alikes in identifiers drawn from a
// closed set. A correction is accepted only when the folded form points at a
// single known code; several targets make the reading ambiguous.
type Canonicalizer struct {
	exact  map[string]string
	byFold map[string][]string
}

// NewCanonicalizer indexes codes. Duplicate codes are ignored.
func NewCanonicalizer(codes []string) *Canonicalizer {
	c := &Canonicalizer{
		exact:  make(map[string]string, len(codes)),
		byFold: make(map[string][]string, len(codes)),
	}
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		key := NormalizeCode(code)
		if _, dup := c.exact[key]; dup {
			continue
		}
		c.exact[key] = code
		fold := FoldConfusables(key)
		c.byFold[fold] = append(c.byFold[fold], code)
	}
	for k := range c.byFold {
		slices.Sort(c.byFold[k])
	}
	return c
}

// Len returns the number of distinct codes indexed.
func (c *Canonicalizer) Len() int {
	return len(c.exact)
}

// Contains reports whether code is a member, ignoring case and separators
// style.
func (c *Canonicalizer) Contains(code string) bool {
	_, ok := c.exact[NormalizeCode(code)]
	return ok
}

// Correct matches raw against the index.
func (c *Canonicalizer) Correct(raw string) Correction {
	key := NormalizeCode(raw)
	out := Correction{Input: raw, Kind: model.MatchUnknown}

	if code, ok := c.exact[key]; ok {
		out.Value = code
		out.Kind = model.MatchExact
		out.Confidence = 1.0
		out.Contamination = Contamination(code)
		return out
	}

	targets := c.byFold[FoldConfusables(key)]
	switch len(targets) {
	case 0:
		out.Contamination = Contamination(raw)
	case 1:
		out.Value = targets[0]
		out.Kind = model.MatchCorrected
		out.Confidence = 0.75
		out.Candidates = slices.Clone(targets)
		out.Contamination = Contamination(targets[0])
	default:
		out.Kind = model.MatchAmbiguous
		out.Confidence = 0.3
		out.Candidates = slices.Clone(targets)
		out.Contamination = Contamination(raw)
	}
	return out
}

// NormalizeCode upper-cases code, unifies dashes and drops whitespace.
func NormalizeCode(code string) string {
	code = dashReplacer.Replace(strings.ToUpper(strings.TrimSpace(code)))
	return strings.Join(strings.Fields(code), "")
}

// Contamination flags whether code contains the letters I or O, which are the
// usual source of OCR swaps.
func Contamination(code string) string {
	up := strings.ToUpper(code)
	hasI := strings.ContainsRune(up, 'I')
	hasO := strings.ContainsRune(up, 'O')
	switch {
	case hasI && hasO:
		return "I_and_O"
	case hasI:
		return "I_only"
	case hasO:
		return "O_only"
	default:
		return "none"
	}
}
