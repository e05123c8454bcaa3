// Package eval measures reports against hand-checked ground truth. It only
// reads reports and never feeds back into the pipeline.
package eval

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/invoice-cli/internal/agent"
	"github.com/sells-group/invoice-cli/internal/fetcher"
	"github.com/sells-group/invoice-cli/internal/model"
	"github.com/sells-group/invoice-cli/internal/pattern"
)

// Pseudo-fields compared besides the header.
const (
	FieldStatus        = "status"
	FieldBillableCases = "billable_cases"
	FieldBillableHours = "billable_hours"
)

const hoursTolerance = 0.01

// Truth is the expected outcome for one invoice. A header key mapped to
// null expects an explicit null; absent keys are not compared.
type Truth struct {
	InvoiceID     string             `json:"invoice_id"`
	Status        model.Status       `json:"status,omitempty"`
	Header        map[string]*string `json:"header"`
	BillableCases []string           `json:"billable_cases,omitempty"`
	BillableHours *float64           `json:"billable_hours,omitempty"`
}

// FieldResult is the comparison of one field.
type FieldResult struct {
	Field    string `json:"field"`
	Expected string `json:"expected"`
	Got      string `json:"got"`
	Match    bool   `json:"match"`
}

// Evaluation is the per-invoice comparison.
type Evaluation struct {
	InvoiceID string        `json:"invoice_id"`
	Fields    []FieldResult `json:"fields"`
	Matched   int           `json:"matched"`
	Compared  int           `json:"compared"`
	Accuracy  float64       `json:"accuracy"`
}

// Compare checks report against truth field by field.
func Compare(report *model.ValidationReport, truth Truth) Evaluation {
	ev := Evaluation{InvoiceID: report.InvoiceID}
	add := func(field, expected, got string, match bool) {
		ev.Fields = append(ev.Fields, FieldResult{Field: field, Expected: expected, Got: got, Match: match})
		ev.Compared++
		if match {
			ev.Matched++
		}
	}

	names := make([]string, 0, len(truth.Header))
	for name := range truth.Header {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		want := truth.Header[name]
		got, ok := report.HeaderValue(name)
		switch {
		case want == nil:
			add(name, "null", display(got, ok), !ok)
		case !ok:
			add(name, *want, "null", false)
		default:
			add(name, *want, got, canonical(name, *want) == canonical(name, got))
		}
	}

	if truth.Status != "" {
		add(FieldStatus, string(truth.Status), string(report.Status), truth.Status == report.Status)
	}

	if truth.BillableCases != nil {
		want := sortedUnique(truth.BillableCases, pattern.NormalizeCode)
		var got []string
		for _, it := range report.Billable {
			got = append(got, it.CaseID)
		}
		got = sortedUnique(got, pattern.NormalizeCode)
		add(FieldBillableCases, strings.Join(want, ","), strings.Join(got, ","), slices.Equal(want, got))
	}

	if truth.BillableHours != nil {
		var total float64
		for _, it := range report.Billable {
			if it.Hours != nil {
				total += *it.Hours
			}
		}
		add(FieldBillableHours, pattern.FormatAmount(*truth.BillableHours), pattern.FormatAmount(total),
			math.Abs(total-*truth.BillableHours) <= hoursTolerance)
	}

	if ev.Compared > 0 {
		ev.Accuracy = float64(ev.Matched) / float64(ev.Compared)
	}
	return ev
}

func display(v string, ok bool) string {
	if !ok {
		return "null"
	}
	return v
}

// canonical brings a header value to the form the pipeline emits, so
// "8472 6180" and "84726180" compare equal. Free text compares case- and
// diacritic-insensitively.
func canonical(name, v string) string {
	if f, rej := agent.NormalizeHeaderValue(name, v); rej == nil && f.Value != "" {
		v = f.Value
	}
	return strings.Join(strings.Fields(pattern.FoldDiacritics(v)), " ")
}

func sortedUnique(in []string, norm func(string) string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = norm(s); s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// FieldStat counts matches for one field across invoices.
type FieldStat struct {
	Compared int     `json:"compared"`
	Matched  int     `json:"matched"`
	Accuracy float64 `json:"accuracy"`
}

// Summary aggregates evaluations.
type Summary struct {
	Invoices int                  `json:"invoices"`
	Compared int                  `json:"compared"`
	Matched  int                  `json:"matched"`
	Accuracy float64              `json:"accuracy"`
	PerField map[string]FieldStat `json:"per_field"`
}

// Summarize computes micro-averaged accuracy over all compared fields.
func Summarize(evals []Evaluation) Summary {
	s := Summary{Invoices: len(evals), PerField: make(map[string]FieldStat)}
	for _, ev := range evals {
		s.Compared += ev.Compared
		s.Matched += ev.Matched
		for _, f := range ev.Fields {
			st := s.PerField[f.Field]
			st.Compared++
			if f.Match {
				st.Matched++
			}
			s.PerField[f.Field] = st
		}
	}
	for name, st := range s.PerField {
		st.Accuracy = float64(st.Matched) / float64(st.Compared)
		s.PerField[name] = st
	}
	if s.Compared > 0 {
		s.Accuracy = float64(s.Matched) / float64(s.Compared)
	}
	return s
}

// Evaluate compares every report that has a truth record. Reports without
// truth are skipped.
func Evaluate(reports []*model.ValidationReport, truth map[string]Truth) []Evaluation {
	var out []Evaluation
	for _, r := range reports {
		if r == nil {
			continue
		}
		t, ok := truth[r.InvoiceID]
		if !ok {
			continue
		}
		out = append(out, Compare(r, t))
	}
	return out
}

// LoadTruth reads ground truth from a JSON file or a directory of JSON
// files. A file holds one object or an array; objects without invoice_id
// take the file's base name.
func LoadTruth(ctx context.Context, path string) (map[string]Truth, error) {
	files, err := jsonFiles(path, ".json")
	if err != nil {
		return nil, err
	}

	out := make(map[string]Truth)
	for _, file := range files {
		records, err := decodeFile[Truth](ctx, file)
		if err != nil {
			return nil, err
		}
		for _, t := range records {
			if t.InvoiceID == "" {
				t.InvoiceID = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
			}
			out[t.InvoiceID] = t
		}
	}
	return out, nil
}

// LoadReports reads every "*.report.json" file under dir.
func LoadReports(ctx context.Context, dir string) ([]*model.ValidationReport, error) {
	files, err := jsonFiles(dir, ".report.json")
	if err != nil {
		return nil, err
	}
	var out []*model.ValidationReport
	for _, file := range files {
		records, err := decodeFile[model.ValidationReport](ctx, file)
		if err != nil {
			return nil, err
		}
		for i := range records {
			out = append(out, &records[i])
		}
	}
	return out, nil
}

func jsonFiles(path, suffix string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "eval: stat %s", path)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	matches, err := filepath.Glob(filepath.Join(path, "*"+suffix))
	if err != nil {
		return nil, eris.Wrapf(err, "eval: list %s", path)
	}
	sort.Strings(matches)
	return matches, nil
}

func decodeFile[T any](ctx context.Context, path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "eval: open %s", path)
	}
	defer f.Close()

	records, err := fetcher.DecodeJSONRecords[T](ctx, f)
	if err != nil {
		return nil, eris.Wrapf(err, "eval: decode %s", path)
	}
	return records, nil
}
