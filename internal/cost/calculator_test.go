package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/invoice-cli/internal/config"
)

func testRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"haiku":  {Input: 0.80, Output: 4.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
			"sonnet": {Input: 3.00, Output: 15.00, CacheWriteMul: 1.25, CacheReadMul: 0.1},
		},
		Gemini:     map[string]ModelRate{"flash": {Input: 0.30, Output: 2.50}},
		OCRPerPage: 0.002,
	}
}

func TestClaude(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name       string
		model      string
		input      int64
		output     int64
		cacheWrite int64
		cacheRead  int64
		want       float64
	}{
		{name: "haiku simple", model: "haiku", input: 1000000, output: 100000, want: 0.80 + 0.40},
		{name: "sonnet simple", model: "sonnet", input: 1000000, output: 1000000, want: 3.00 + 15.00},
		{name: "sonnet with cache", model: "sonnet", cacheWrite: 1000000, cacheRead: 1000000, want: 3.00*1.25 + 3.00*0.1},
		{name: "unknown model", model: "gpt", input: 1000000, want: 0},
		{name: "zero tokens", model: "haiku", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := calc.Claude(tt.model, tt.input, tt.output, tt.cacheWrite, tt.cacheRead)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestGemini(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())
	assert.InDelta(t, 0.30+0.25, calc.Gemini("flash", 1000000, 100000), 1e-9)
	assert.Zero(t, calc.Gemini("unknown", 1000000, 1000000))
}

func TestOCRPages(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 0.006, NewCalculator(testRates()).OCRPages(3), 1e-9)
}

func TestNilCalculator(t *testing.T) {
	t.Parallel()
	var calc *Calculator
	assert.Zero(t, calc.Claude("haiku", 1, 1, 1, 1))
	assert.Zero(t, calc.Gemini("flash", 1, 1))
	assert.Zero(t, calc.OCRPages(10))
}

func TestDefaultRates(t *testing.T) {
	t.Parallel()
	rates := DefaultRates()
	assert.Contains(t, rates.Anthropic, "claude-sonnet-4-5-20250929")
	assert.Contains(t, rates.Gemini, "gemini-2.5-flash")
	assert.Positive(t, rates.OCRPerPage)
}

func TestRatesFromConfig(t *testing.T) {
	t.Parallel()
	r := RatesFromConfig(config.PricingConfig{
		Anthropic: map[string]config.ModelPricing{
			"claude-sonnet-4-5-20250929": {Input: 2.0, Output: 10.0},
			"claude-new":                 {Input: 1.0, Output: 5.0},
		},
		Gemini: map[string]config.ModelPricing{"gemini-x": {Input: 0.1, Output: 0.4}},
		OCR:    config.OCRPricing{PerPage: 0.01},
	})
	assert.InDelta(t, 2.0, r.Anthropic["claude-sonnet-4-5-20250929"].Input, 1e-9)
	assert.InDelta(t, 1.25, r.Anthropic["claude-new"].CacheWriteMul, 1e-9)
	assert.InDelta(t, 0.4, r.Gemini["gemini-x"].Output, 1e-9)
	assert.InDelta(t, 0.01, r.OCRPerPage, 1e-9)
}
