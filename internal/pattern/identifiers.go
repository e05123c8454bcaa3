package pattern

import (
	"regexp"
	"strings"
)

const (
	kvkLayout   = "DDDDDDDD"
	vatNLLayout = "LLDDDDDDDDDLDD"
)

var (
	// Chamber of Commerce number after a label; look-alikes are accepted and
	// corrected against the all-digit layout.
	kvkLabelled = regexp.MustCompile(`(?i)\b(?:kvk|k\.v\.k\.|kamer van koophandel|chamber of commerce)(?:[-\s]?(?:nummer|number|nr|no))?\.?[^\n\d]{0,20}?((?:[0-9OIlSB][ .]?){7}[0-9OIlSB])(?:[^0-9A-Za-z]|$)`)

	// Dutch VAT number anywhere in the text, separators allowed.
	vatNL = regexp.MustCompile(`(?i)\bN\s?[L1I][\s.]?((?:[0-9OIlSB][\s.]?){9})[B8][\s.]?([0-9OIlSB][\s.]?[0-9OIlSB])(?:[^0-9A-Za-z]|$)`)

	// VAT number after a label, for non-Dutch layouts.
	vatLabelled = regexp.MustCompile(`(?i)\b(?:btw|vat|omzetbelastingnummer|ob-nummer|tax)(?:[-\s]?(?:id|nr|nummer|number|no))?\.?\s*[:#]?\s*([A-Z]{2}[A-Z0-9 .\-]{8,16})`)

	vatPrefix     = regexp.MustCompile(`^(?:BTWID|BTWNR|BTW|VATID|VATNR|VAT|TAXID|TAXNR|TAX)`)
	vatNLCanon    = regexp.MustCompile(`^NL\d{9}B\d{2}$`)
	vatEUGeneric  = regexp.MustCompile(`^[A-Z]{2}\d{8,12}$`)
	kvkCanon      = regexp.MustCompile(`^\d{8}$`)
	euCountryCode = regexp.MustCompile(`^(?:AT|BE|BG|CY|CZ|DE|DK|EE|EL|ES|FI|FR|HR|HU|IE|IT|LT|LU|LV|MT|NL|PL|PT|RO|SE|SI|SK|XI)`)
)

// NormalizeKvK returns the canonical 8-digit registration number for raw.
// corrected is true when look-alike letters were replaced.
func NormalizeKvK(raw string) (value string, corrected bool, ok bool) {
	c := compact(raw)
	if kvkCanon.MatchString(c) {
		return c, false, true
	}
	fixed, ok := ApplyLayout(c, kvkLayout)
	if !ok || !kvkCanon.MatchString(fixed) {
		return "", false, false
	}
	return fixed, true, true
}

// NormalizeVAT returns the canonical VAT number for raw. Dutch numbers are
// corrected against their fixed layout; other EU numbers must already be
// clean.
func NormalizeVAT(raw string) (value string, corrected bool, ok bool) {
	c := vatPrefix.ReplaceAllString(compact(raw), "")
	if vatNLCanon.MatchString(c) {
		return c, false, true
	}
	if len(c) == len(vatNLLayout) {
		if fixed, ok := ApplyLayout(c, vatNLLayout); ok {
			fixed = "NL" + fixed[2:11] + "B" + fixed[12:]
			if vatNLCanon.MatchString(fixed) && looksDutch(c) {
				return fixed, true, true
			}
		}
	}
	if vatEUGeneric.MatchString(c) && euCountryCode.MatchString(c) {
		return c, false, true
	}
	return "", false, false
}

// looksDutch guards the layout correction so only NL-prefixed readings (or
// their look-alikes) are rewritten to NL.
func looksDutch(c string) bool {
	if len(c) < 2 {
		return false
	}
	return c[0] == 'N' && strings.ContainsRune("L1I", rune(c[1]))
}

func extractKvK(text string) []Candidate {
	var out []Candidate
	for _, m := range kvkLabelled.FindAllStringSubmatchIndex(text, -1) {
		raw := text[m[2]:m[3]]
		v, corrected, ok := NormalizeKvK(raw)
		if !ok {
			continue
		}
		out = append(out, newCandidate(FieldRegistrationID, v, raw, m[2], corrected))
	}
	return out
}

func extractVAT(text string) []Candidate {
	var out []Candidate
	for _, m := range vatNL.FindAllStringIndex(text, -1) {
		raw := trimTrailingNonAlnum(text[m[0]:m[1]])
		v, corrected, ok := NormalizeVAT(raw)
		if !ok {
			continue
		}
		out = append(out, newCandidate(FieldTaxID, v, raw, m[0], corrected))
	}
	for _, m := range vatLabelled.FindAllStringSubmatchIndex(text, -1) {
		raw, v, corrected, ok := longestValid(text[m[2]:m[3]], NormalizeVAT)
		if !ok {
			continue
		}
		out = append(out, newCandidate(FieldTaxID, v, raw, m[2], corrected))
	}
	return out
}

// longestValid tries the longest whitespace-delimited prefix of s that
// normalizes, so a capture that ran into the next word still yields a value.
func longestValid(s string, normalize func(string) (string, bool, bool)) (raw, value string, corrected, ok bool) {
	fields := strings.Fields(s)
	for n := len(fields); n > 0; n-- {
		raw = strings.Join(fields[:n], " ")
		if value, corrected, ok = normalize(raw); ok {
			return raw, value, corrected, true
		}
	}
	return "", "", false, false
}

func trimTrailingNonAlnum(s string) string {
	return strings.TrimRightFunc(s, func(r rune) bool {
		return !(r >= '0' && r <= '9' || r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z')
	})
}
