package pipeline

import (
	"strings"
	"unicode"

	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/pattern"
)

// DefaultMarkers are the invoice-like words the gate looks for. They are
// matched case- and diacritic-insensitively.
var DefaultMarkers = []string{
	"factuur", "invoice", "rekening", "nota", "btw", "vat", "kvk",
	"totaal", "total", "bedrag", "amount", "te betalen",
}

// DefaultMinLength is the minimum number of non-space characters.
const DefaultMinLength = 50

// Verdict is the gate's classification of a raw text layer.
type Verdict struct {
	Usable bool   `json:"usable"`
	Reason string `json:"reason,omitempty"`
}

// Gate rejects unreadable or non-invoice text before any agent is paid for.
type Gate struct {
	minLength int
	markers   []string
}

// NewGate creates a gate. Zero or empty arguments select the defaults.
func NewGate(minLength int, markers []string) *Gate {
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	folded := make([]string, 0, len(markers))
	for _, m := range markers {
		if m = pattern.FoldDiacritics(strings.TrimSpace(m)); m != "" {
			folded = append(folded, m)
		}
	}
	return &Gate{minLength: minLength, markers: folded}
}

// Check classifies text as usable or rejected with a reason.
func (g *Gate) Check(text string) Verdict {
	n := 0
	for _, r := range text {
		if !unicode.IsSpace(r) && unicode.IsPrint(r) {
			n++
		}
	}
	if n == 0 {
		return Verdict{Reason: "empty text layer"}
	}
	if n < g.minLength {
		return Verdict{Reason: "text layer too short"}
	}

	folded := pattern.FoldDiacritics(text)
	for _, m := range g.markers {
		if strings.Contains(folded, m) {
			return Verdict{Usable: true}
		}
	}
	return Verdict{Reason: "no invoice marker found"}
}

// Error returns the verdict as an InputUnreadable error, or nil if usable.
func (v Verdict) Error() error {
	if v.Usable {
		return nil
	}
	return model.NewKindError(model.KindInputUnreadable, "gate", errString(v.Reason))
}

type errString string

func (e errString) Error() string { return string(e) }
