package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/invoice-cli/internal/model"
)

func TestGate_Check(t *testing.T) {
	t.Parallel()
	g := NewGate(0, nil)

	tests := []struct {
		name   string
		text   string
		usable bool
		reason string
	}{
		{name: "empty", text: "", reason: "empty text layer"},
		{name: "whitespace only", text: " \n\t \n", reason: "empty text layer"},
		{name: "too short", text: "Factuur 12", reason: "text layer too short"},
		{name: "no marker", text: strings.Repeat("lorem ipsum dolor sit amet ", 5), reason: "no invoice marker found"},
		{name: "dutch invoice", text: "FACTUUR\nLeverancier Coaching B.V.\nKvK 84726180\nTotaal € 242,00", usable: true},
		{name: "english invoice", text: "Invoice 2025-0042 for coaching sessions delivered in January, amount due 120.00", usable: true},
		{name: "diacritics", text: "Rëkening voor geleverde diensten in de maand januari aan cliënt, zie specificatie", usable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := g.Check(tt.text)
			assert.Equal(t, tt.usable, v.Usable)
			assert.Equal(t, tt.reason, v.Reason)
		})
	}
}

func TestGate_CustomMarkers(t *testing.T) {
	t.Parallel()
	g := NewGate(5, []string{" Déclaration "})
	assert.True(t, g.Check("Declaration nr 4").Usable)
	assert.False(t, g.Check("Factuur nr 4").Usable)
}

func TestVerdict_Error(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Verdict{Usable: true}.Error())

	err := Verdict{Reason: "empty text layer"}.Error()
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindInputUnreadable))
	assert.Contains(t, err.Error(), "empty text layer")
}
