package pattern

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var dashReplacer = strings.NewReplacer(
	"\u2010", "-", "\u2011", "-", "\u2012", "-", "\u2013", "-", "\u2014", "-", "\u2212", "-",
)

// PrepareText applies compatibility normalisation so that non-breaking
// spaces, full-width digits and typographic dashes match the ASCII patterns.
func PrepareText(s string) string {
	return dashReplacer.Replace(norm.NFKC.String(s))
}

// FoldDiacritics lower-cases s and strips combining marks ("cliënt" becomes
// "client").
func FoldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// digitLookalike maps letters that OCR commonly confuses with digits.
var digitLookalike = map[rune]rune{
	'O': '0',
	'Q': '0',
	'I': '1',
	'L': '1',
	'S': '5',
	'B': '8',
	'Z': '2',
}

// letterLookalike is the reverse mapping for letter positions.
var letterLookalike = map[rune]rune{
	'0': 'O',
	'1': 'I',
	'5': 'S',
	'8': 'B',
	'2': 'Z',
}

// FoldConfusables maps every digit/letter look-alike to its digit form.
// Two codes with equal folds are indistinguishable to a noisy reader.
func FoldConfusables(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range strings.ToUpper(s) {
		if d, ok := digitLookalike[r]; ok {
			r = d
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// ApplyLayout corrects look-alikes in s against a fixed layout where 'L'
// marks a letter position and 'D' a digit position. It returns false when s
// has the wrong length or a character cannot be mapped.
func ApplyLayout(s, layout string) (string, bool) {
	in := []rune(strings.ToUpper(s))
	if len(in) != len(layout) {
		return "", false
	}
	out := make([]rune, len(in))
	for i, want := range layout {
		r := in[i]
		switch want {
		case 'D':
			if unicode.IsDigit(r) {
				out[i] = r
			} else if d, ok := digitLookalike[r]; ok {
				out[i] = d
			} else {
				return "", false
			}
		case 'L':
			if unicode.IsLetter(r) {
				out[i] = r
			} else if l, ok := letterLookalike[r]; ok {
				out[i] = l
			} else {
				return "", false
			}
		default:
			if r != want {
				return "", false
			}
			out[i] = r
		}
	}
	return string(out), true
}

// compact removes separators and label punctuation and upper-cases s.
func compact(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToUpper(s) {
		switch r {
		case ' ', '.', '-', ':', '#', '\t', '\n', '\u00a0':
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
