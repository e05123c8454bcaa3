// Package registry loads the reference data a run is checked against: the
// case registry of valid client case numbers and the field specification
// handed to the extraction agents.
package registry

import (
	"context"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/invoice-cli/internal/fetcher"
	"github.com/sells-group/invoice-cli/internal/pattern"
)

// CaseColumn is the preferred registry column; the first column is used when
// it is absent.
const CaseColumn = "clientCaseNumber"

// CaseRegistry is the immutable set of valid case identifiers. It is safe for
// concurrent use because nothing mutates it after loading.
type CaseRegistry struct {
	codes []string
	canon *pattern.Canonicalizer
}

// NewCaseRegistry builds a registry from codes. Empty and duplicate codes are
// dropped.
func NewCaseRegistry(codes []string) *CaseRegistry {
	var clean []string
	for _, c := range codes {
		if c = strings.TrimSpace(c); c != "" {
			clean = append(clean, c)
		}
	}
	slices.Sort(clean)
	clean = slices.Compact(clean)
	return &CaseRegistry{codes: clean, canon: pattern.NewCanonicalizer(clean)}
}

// LoadCases reads the registry CSV at path. Any failure, including an empty
// registry, is returned as an error.
func LoadCases(ctx context.Context, path string) (*CaseRegistry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	reg, err := ReadCases(ctx, f)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: load %s", path)
	}

	zap.L().Info("registry: loaded case registry",
		zap.String("path", path),
		zap.Int("cases", reg.Len()),
	)
	return reg, nil
}

// ReadCases parses registry rows from r. The first row is a header when it
// names CaseColumn or holds no case-shaped cell; otherwise the input is a
// headerless list and the first row is data.
func ReadCases(ctx context.Context, r io.Reader) (*CaseRegistry, error) {
	rows, err := fetcher.CollectCSV(ctx, r, fetcher.CSVOptions{
		TrimSpace: true,
		SkipBlank: true,
	})
	if err != nil {
		return nil, eris.Wrap(err, "registry: read cases")
	}
	if len(rows) == 0 {
		return nil, eris.New("registry: no columns found")
	}

	col := 0
	if isHeader(rows[0]) {
		if i := slices.Index(rows[0], CaseColumn); i >= 0 {
			col = i
		}
		rows = rows[1:]
	}

	codes := make([]string, 0, len(rows))
	for _, row := range rows {
		if col < len(row) {
			codes = append(codes, row[col])
		}
	}

	reg := NewCaseRegistry(codes)
	if reg.Len() == 0 {
		return nil, eris.New("registry: no case identifiers found")
	}
	return reg, nil
}

func isHeader(row []string) bool {
	if slices.Contains(row, CaseColumn) {
		return true
	}
	return !slices.ContainsFunc(row, pattern.LooksLikeCaseID)
}

// Len returns the number of distinct codes.
func (r *CaseRegistry) Len() int { return len(r.codes) }

// Codes returns the codes in sorted order.
func (r *CaseRegistry) Codes() []string { return slices.Clone(r.codes) }

// Contains reports exact membership after normalisation.
func (r *CaseRegistry) Contains(code string) bool { return r.canon.Contains(code) }

// Correct matches a raw case identifier against the registry, repairing
// look-alike characters only when the repair is unique.
func (r *CaseRegistry) Correct(raw string) pattern.Correction { return r.canon.Correct(raw) }

// Subset returns the registry codes that appear in hints, for use as the
// allowed-case list of a prompt. With no hints the whole registry is returned,
// capped at limit when limit > 0.
func (r *CaseRegistry) Subset(hints []string, limit int) []string {
	var out []string
	for _, h := range hints {
		if c := r.Correct(h); c.Accepted() && !slices.Contains(out, c.Value) {
			out = append(out, c.Value)
		}
	}
	if len(out) > 0 {
		slices.Sort(out)
		return out
	}
	if limit > 0 && len(r.codes) > limit {
		return slices.Clone(r.codes[:limit])
	}
	return r.Codes()
}
