package fetcher

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamCSV_WithHeader(t *testing.T) {
	input := "clientCaseNumber,name\nJN16-I21-284,Jansen\nAB12-C34-567,Bakker\n"
	headerCh := make(chan []string, 1)

	rows, err := CollectCSV(context.Background(), strings.NewReader(input), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"JN16-I21-284", "Jansen"}, rows[0])
	assert.Equal(t, []string{"clientCaseNumber", "name"}, <-headerCh)
}

func TestStreamCSV_TrimAndSkipBlank(t *testing.T) {
	input := "\ufeffcode\n  JN16-I21-284 \n,\n\nAB12-C34-567\n"
	headerCh := make(chan []string, 1)

	rows, err := CollectCSV(context.Background(), strings.NewReader(input), CSVOptions{
		HasHeader: true,
		HeaderCh:  headerCh,
		TrimSpace: true,
		SkipBlank: true,
	})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"JN16-I21-284"}, {"AB12-C34-567"}}, rows)
	assert.Equal(t, []string{"code"}, <-headerCh)
}

func TestStreamCSV_Semicolon(t *testing.T) {
	rows, err := CollectCSV(context.Background(), strings.NewReader("a;b\n1;2\n"), CSVOptions{Delimiter: ';'})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"a", "b"}, {"1", "2"}}, rows)
}

func TestStreamCSV_ReadError(t *testing.T) {
	r := io.MultiReader(strings.NewReader("a,b\n"), &errReader{err: io.ErrUnexpectedEOF})

	_, err := CollectCSV(context.Background(), r, CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "csv: read row")
}

func TestStreamCSV_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := CollectCSV(ctx, strings.NewReader("a\nb\n"), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

type errReader struct{ err error }

func (r *errReader) Read([]byte) (int, error) { return 0, r.err }
