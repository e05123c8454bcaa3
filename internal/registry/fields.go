package registry

import (
	"bytes"
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/invoice-cli/internal/model"
)

//go:embed fields.yaml
var defaultFieldSpec []byte

// FieldSpec is the full extraction instruction set: header fields and the
// line-item fields described to the line-item agent.
type FieldSpec struct {
	Header    []model.FieldSpec `yaml:"header"`
	LineItems []model.FieldSpec `yaml:"line_items"`
}

// DefaultFieldSpec returns the built-in specification.
func DefaultFieldSpec() (*FieldSpec, error) {
	return parseFieldSpec(defaultFieldSpec)
}

// LoadFieldSpec reads a YAML field specification. An empty path yields the
// built-in one.
func LoadFieldSpec(path string) (*FieldSpec, error) {
	if path == "" {
		return DefaultFieldSpec()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "registry: read field spec %s", path)
	}
	return parseFieldSpec(data)
}

func parseFieldSpec(data []byte) (*FieldSpec, error) {
	var spec FieldSpec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return nil, eris.Wrap(err, "registry: parse field spec")
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	return &spec, nil
}

func (s *FieldSpec) validate() error {
	if len(s.Header) == 0 {
		return eris.New("registry: field spec has no header fields")
	}
	seen := make(map[string]bool)
	for _, f := range s.Header {
		if f.Name == "" {
			return eris.New("registry: header field without name")
		}
		if seen[f.Name] {
			return eris.Errorf("registry: duplicate header field %q", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// Select returns the header fields named in names, in spec order. A nil names
// selects every header field.
func (s *FieldSpec) Select(names []string) []model.FieldSpec {
	if names == nil {
		return s.Header
	}
	var out []model.FieldSpec
	for _, f := range s.Header {
		for _, n := range names {
			if n == f.Name {
				out = append(out, f)
				break
			}
		}
	}
	return out
}

// HeaderNames lists the header field names in order.
func (s *FieldSpec) HeaderNames() []string {
	out := make([]string, len(s.Header))
	for i, f := range s.Header {
		out[i] = f.Name
	}
	return out
}

// Critical lists the header fields flagged critical.
func (s *FieldSpec) Critical() []string {
	var out []string
	for _, f := range s.Header {
		if f.Critical {
			out = append(out, f.Name)
		}
	}
	return out
}
