package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/invoice-cli/internal/model"
)

const opticalSample = "KvK nummer: 84726180 BTW Nr: NL863334647B01"

func TestResolve_CriticalIdentifiers(t *testing.T) {
	t.Parallel()
	tool := NewTool(nil)

	tests := []struct {
		name      string
		text      string
		field     string
		want      string
		corrected bool
	}{
		{name: "kvk plain", text: opticalSample, field: FieldRegistrationID, want: "84726180"},
		{name: "vat plain", text: opticalSample, field: FieldTaxID, want: "NL863334647B01"},
		{name: "kvk dashed label", text: "KvK-nr: 84726180\nIBAN NL00BANK0123456789", field: FieldRegistrationID, want: "84726180"},
		{name: "kvk spaced digits", text: "Kamer van Koophandel 8472 6180", field: FieldRegistrationID, want: "84726180"},
		{name: "vat with separators", text: "BTW-nummer: NL 8633.34.647.B.01", field: FieldTaxID, want: "NL863334647B01"},
		{name: "vat lowercase", text: "btw nl863334647b01", field: FieldTaxID, want: "NL863334647B01"},
		{name: "vat eu generic", text: "VAT: DE123456789\nTotal 100", field: FieldTaxID, want: "DE123456789"},
		{name: "kvk look-alike", text: "KvK: 8472618O", field: FieldRegistrationID, want: "84726180", corrected: true},
		{name: "vat look-alike", text: "BTW NL863334647B0l", field: FieldTaxID, want: "NL863334647B01", corrected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := tool.Resolve(tt.text, tt.field)
			require.Equal(t, Resolved, res.Status, "candidates: %+v", res.Candidates)
			assert.Equal(t, tt.want, res.Value)
			if tt.corrected {
				assert.InDelta(t, confidenceCorrected, res.Confidence, 0.001)
			} else {
				assert.InDelta(t, confidenceExact, res.Confidence, 0.001)
			}
		})
	}
}

func TestResolve_AmbiguousIsPolicyNull(t *testing.T) {
	t.Parallel()
	tool := NewTool(nil)
	text := "Leverancier KvK 84726180\nOpdrachtgever KvK 12345678"

	res := tool.Resolve(text, FieldRegistrationID)
	require.Equal(t, Ambiguous, res.Status)
	assert.Equal(t, []string{"84726180", "12345678"}, res.Values())

	f := res.AsField(model.ProvenancePattern)
	assert.True(t, f.Null)
	assert.True(t, f.PolicyNull)
	assert.Empty(t, f.Value)
	assert.Equal(t, []string{"84726180", "12345678"}, f.Candidates)
}

func TestResolve_Missing(t *testing.T) {
	t.Parallel()
	tool := NewTool(nil)
	res := tool.Resolve("Factuur voor coaching, zie bijlage.", FieldTaxID)
	assert.Equal(t, Missing, res.Status)

	f := res.AsField(model.ProvenancePattern)
	assert.True(t, f.Null)
	assert.False(t, f.PolicyNull)
}

func TestResolve_Deterministic(t *testing.T) {
	t.Parallel()
	tool := NewTool(nil)
	first := tool.ResolveAll(opticalSample, []string{FieldRegistrationID, FieldTaxID, "supplier_name"})
	for range 5 {
		assert.Equal(t, first, tool.ResolveAll(opticalSample, []string{FieldRegistrationID, FieldTaxID, "supplier_name"}))
	}
	assert.Len(t, first, 2)
}

func TestNormalizeVAT(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"NL863334647B01", "NL863334647B01", true},
		{"BTW NL 863334647 B01", "NL863334647B01", true},
		{"VATID: NL863334647B01", "NL863334647B01", true},
		{"N1863334647B01", "NL863334647B01", true},
		{"FR12345678901", "FR12345678901", true},
		{"QQ12345678", "", false},
		{"NL86333464B01", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, _, ok := NormalizeVAT(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestNormalizeKvK(t *testing.T) {
	t.Parallel()
	v, corrected, ok := NormalizeKvK("8472 6180")
	require.True(t, ok)
	assert.False(t, corrected)
	assert.Equal(t, "84726180", v)

	v, corrected, ok = NormalizeKvK("B4726I80")
	require.True(t, ok)
	assert.True(t, corrected)
	assert.Equal(t, "84726180", v)

	_, _, ok = NormalizeKvK("8472618")
	assert.False(t, ok)
	_, _, ok = NormalizeKvK("8472618X")
	assert.False(t, ok)
}

func TestNormalizeDate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"15-01-2025", "2025-01-15", true},
		{"15/01/25", "2025-01-15", true},
		{"2025-01-15", "2025-01-15", true},
		{"3 maart 2025", "2025-03-03", true},
		{"12 Oct 2024", "2024-10-12", true},
		{"31-02-2025", "", false},
		{"no date", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeDate(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestParseAmount(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want float64
		ok   bool
	}{
		{"1.250,00", 1250.00, true},
		{"1,250.00", 1250.00, true},
		{"12,50", 12.50, true},
		{"12,5", 12.5, true},
		{"1.250", 1250, true},
		{"1,250", 1250, true},
		{"99.95", 99.95, true},
		{"-12,50", -12.50, true},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseAmount(tt.raw)
		assert.Equal(t, tt.ok, ok, tt.raw)
		assert.InDelta(t, tt.want, got, 0.0001, tt.raw)
	}
}

func TestHints(t *testing.T) {
	t.Parallel()
	canon := NewCanonicalizer([]string{"JN16-I21-284", "AB12-C34-567"})
	tool := NewTool(canon)

	text := `Factuurnummer: 2025-0042
Factuurdatum: 15-01-2025
KvK 84726180  BTW NL863334647B01
JN16-121-284  14-01-2025  1,5 uur
AB12-C34-567  10-01-2025  90 min
ZZ99-Z99-999  11-01-2025  1 uur
Subtotaal € 200,00
Totaal € 242,00`

	h := tool.Hints(text)
	assert.Equal(t, []string{"84726180"}, h.RegistrationIDs)
	assert.Equal(t, []string{"NL863334647B01"}, h.TaxIDs)
	assert.Equal(t, []string{"2025-0042"}, h.InvoiceNumbers)
	assert.Contains(t, h.Dates, "2025-01-15")
	assert.Equal(t, "242.00", h.Total)
	assert.Equal(t, []string{"AB12-C34-567", "JN16-I21-284"}, h.CaseIDs)
}

func TestCaseIDs_WithoutRegistry(t *testing.T) {
	t.Parallel()
	tool := NewTool(nil)
	got := tool.CaseIDs("JN16-121-284 and jn16-121-284 and AB12-C34-567")
	require.Len(t, got, 2)
	assert.Equal(t, "JN16-121-284", got[0].Value)
	assert.Equal(t, model.MatchUnknown, got[0].Kind)
}

func TestLooksLikeCaseID(t *testing.T) {
	assert.True(t, LooksLikeCaseID("JN16-I21-284"))
	assert.True(t, LooksLikeCaseID(" jn16–121-284 "))
	assert.True(t, LooksLikeCaseID("A810-C34-567"))
	assert.False(t, LooksLikeCaseID("clientCaseNumber"))
	assert.False(t, LooksLikeCaseID("JN16-I21-284 extra"))
	assert.False(t, LooksLikeCaseID(""))
}
