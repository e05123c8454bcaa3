package pattern

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	dateNumeric = regexp.MustCompile(`\b(\d{1,2})[-/.](\d{1,2})[-/.](\d{4}|\d{2})\b`)
	dateISO     = regexp.MustCompile(`\b(\d{4})[-/](\d{1,2})[-/](\d{1,2})\b`)
	dateText    = regexp.MustCompile(`(?i)\b(\d{1,2})\s+(januari|februari|maart|april|mei|juni|juli|augustus|september|oktober|november|december|january|february|march|may|june|july|august|october|jan|feb|mrt|mar|apr|jun|jul|aug|sept|sep|okt|oct|nov|dec)\.?\s+(\d{4})\b`)

	amountCurrency = regexp.MustCompile(`(?i)(?:€|\beur\b|\beuro\b|\$|\busd\b)\s*(-?\d+(?:[.,]\d{3})*(?:[.,]\d{1,2})?)`)
	amountTotal    = regexp.MustCompile(`(?i)\b(?:totaalbedrag|totaal|total|te betalen|amount due|bedrag)\b[^\d\n]{0,25}?(\d+(?:[.,]\d{3})*(?:[.,]\d{1,2})?)`)

	invoiceNumberPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(?:factuurnummer|factuur\s?nr\.?|factuur\s?no\.?|invoice\s?(?:number|no\.?|nr\.?|#))\s*[:#]?\s*([A-Z0-9][A-Z0-9./\-]{2,30})`),
		regexp.MustCompile(`(?i)\bfactuurnummer:\s*\n(?:.*\n)?\s*([0-9]{3,})`),
		regexp.MustCompile(`(?i)\bbetreft:\s*facturen?\s+(\d{3,})`),
		regexp.MustCompile(`(?i)\bfact\.:\s*([A-Z0-9._\-]+)`),
	}

	caseIDPattern = regexp.MustCompile(`(?i)\b([A-Z0-9]{2}\d{1,2}-[A-Z0-9]\d{2}-\d{3})\b`)
	caseIDShape   = regexp.MustCompile(`^[A-Z0-9]{2}\d{1,2}-[A-Z0-9]\d{2}-\d{3}$`)

	hasDigit = regexp.MustCompile(`\d`)
)

var monthNumbers = map[string]time.Month{
	"januari": time.January, "january": time.January, "jan": time.January,
	"februari": time.February, "february": time.February, "feb": time.February,
	"maart": time.March, "march": time.March, "mrt": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"mei": time.May, "may": time.May,
	"juni": time.June, "june": time.June, "jun": time.June,
	"juli": time.July, "july": time.July, "jul": time.July,
	"augustus": time.August, "august": time.August, "aug": time.August,
	"september": time.September, "sept": time.September, "sep": time.September,
	"oktober": time.October, "october": time.October, "okt": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

// isoDate validates a calendar date and formats it as YYYY-MM-DD.
func isoDate(year, month, day int) (string, bool) {
	if year < 100 {
		year += 2000
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return "", false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return "", false
	}
	return t.Format("2006-01-02"), true
}

// NormalizeDate converts a day-first numeric, ISO or written (Dutch or
// English) date to ISO 8601.
func NormalizeDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if m := dateISO.FindStringSubmatch(raw); m != nil {
		return isoDate(atoi(m[1]), atoi(m[2]), atoi(m[3]))
	}
	if m := dateNumeric.FindStringSubmatch(raw); m != nil {
		return isoDate(atoi(m[3]), atoi(m[2]), atoi(m[1]))
	}
	if m := dateText.FindStringSubmatch(raw); m != nil {
		month, ok := monthNumbers[strings.ToLower(m[2])]
		if !ok {
			return "", false
		}
		return isoDate(atoi(m[3]), int(month), atoi(m[1]))
	}
	return "", false
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// ParseAmount parses EU ("1.250,00") and US ("1,250.00") formatted amounts.
// When both separators appear the later one is the decimal mark. A single
// kind of separator followed by exactly three digits is a thousands mark.
func ParseAmount(raw string) (float64, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	if s == "" {
		return 0, false
	}
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if len(s)-lastComma-1 == 3 {
			s = strings.ReplaceAll(s, ",", "")
		} else {
			s = strings.ReplaceAll(s, ",", ".")
		}
	case lastDot >= 0:
		if len(s)-lastDot-1 == 3 {
			s = strings.ReplaceAll(s, ".", "")
		}
	}
	if strings.Count(s, ".") > 1 {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// FormatAmount renders v with two decimals.
func FormatAmount(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

func extractDates(text string) []Candidate {
	var out []Candidate
	add := func(re *regexp.Regexp) {
		for _, m := range re.FindAllStringIndex(text, -1) {
			raw := text[m[0]:m[1]]
			if v, ok := NormalizeDate(raw); ok {
				out = append(out, newCandidate(FieldInvoiceDate, v, raw, m[0], false))
			}
		}
	}
	add(dateISO)
	add(dateNumeric)
	add(dateText)
	return out
}

func extractAmounts(text string) []Candidate {
	var out []Candidate
	for _, m := range amountCurrency.FindAllStringSubmatchIndex(text, -1) {
		raw := text[m[2]:m[3]]
		if v, ok := ParseAmount(raw); ok {
			out = append(out, newCandidate(FieldTotalAmount, FormatAmount(v), raw, m[2], false))
		}
	}
	return out
}

func extractTotals(text string) []Candidate {
	var out []Candidate
	for _, m := range amountTotal.FindAllStringSubmatchIndex(text, -1) {
		raw := text[m[2]:m[3]]
		if v, ok := ParseAmount(raw); ok {
			out = append(out, newCandidate(FieldTotalAmount, FormatAmount(v), raw, m[2], false))
		}
	}
	return out
}

func extractInvoiceNumbers(text string) []Candidate {
	var out []Candidate
	for _, re := range invoiceNumberPatterns {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			raw := strings.TrimRight(text[m[2]:m[3]], ".-/")
			if !hasDigit.MatchString(raw) {
				continue
			}
			out = append(out, newCandidate(FieldInvoiceNumber, strings.ToUpper(raw), raw, m[2], false))
		}
	}
	return out
}

// LooksLikeCaseID reports whether s, once normalised, has the shape of a
// case identifier.
func LooksLikeCaseID(s string) bool {
	return caseIDShape.MatchString(NormalizeCode(s))
}

func extractCaseIDs(text string) []Candidate {
	var out []Candidate
	for _, m := range caseIDPattern.FindAllStringSubmatchIndex(text, -1) {
		raw := text[m[2]:m[3]]
		out = append(out, newCandidate(FieldCaseID, NormalizeCode(raw), raw, m[2], false))
	}
	return out
}
