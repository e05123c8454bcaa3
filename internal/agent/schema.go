package agent

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sells-group/invoice-cli/internal/model"
)

var fencePattern = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*\\n?(.*?)\\n?```$")

// StripFences removes a surrounding markdown code fence and any prose before
// the first '{'.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		s = strings.TrimSpace(m[1])
	}
	if i := strings.IndexByte(s, '{'); i > 0 {
		s = s[i:]
	}
	if j := strings.LastIndexByte(s, '}'); j >= 0 && j < len(s)-1 {
		s = s[:j+1]
	}
	return s
}

// compileSchema compiles a schema given as a Go map.
func compileSchema(name string, schema map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schema)
	if err != nil {
		return nil, eris.Wrap(err, "agent: marshal schema")
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, eris.Wrap(err, "agent: add schema")
	}
	sch, err := compiler.Compile(name)
	if err != nil {
		return nil, eris.Wrap(err, "agent: compile schema")
	}
	return sch, nil
}

// decodeValidated strips fences, validates the answer against sch and
// decodes it into out. Any mismatch is a MalformedResponse.
func decodeValidated(op, text string, sch *jsonschema.Schema, out any) error {
	body := StripFences(text)
	if body == "" {
		return malformed(op, eris.New("empty response"))
	}
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return malformed(op, eris.Wrap(err, "response is not JSON"))
	}
	if err := sch.Validate(v); err != nil {
		return malformed(op, eris.Wrap(err, "response does not match schema"))
	}
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return malformed(op, eris.Wrap(err, "decode response"))
	}
	return nil
}

var nullableScalar = map[string]any{"type": []string{"string", "number", "null"}}

// headerSchema requires every requested field, each a string, number or null.
func headerSchema(fields []model.FieldSpec) map[string]any {
	props := make(map[string]any, len(fields))
	required := make([]string, 0, len(fields))
	for _, f := range fields {
		props[f.Name] = nullableScalar
		required = append(required, f.Name)
	}
	return map[string]any{
		"type":     "object",
		"required": []string{"fields"},
		"properties": map[string]any{
			"fields": map[string]any{
				"type":       "object",
				"required":   required,
				"properties": props,
			},
			"in_domain": map[string]any{"type": []string{"boolean", "null"}},
		},
	}
}

// lineItemSchema describes {"line_items": [...]} with the requested columns.
func lineItemSchema(fields []model.FieldSpec) map[string]any {
	props := make(map[string]any, len(fields))
	var required []string
	for _, f := range fields {
		props[f.Name] = nullableScalar
		if f.Name == caseField {
			required = append(required, caseField)
		}
	}
	item := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		item["required"] = required
	}
	return map[string]any{
		"type":     "object",
		"required": []string{"line_items"},
		"properties": map[string]any{
			"line_items": map[string]any{
				"type":  "array",
				"items": item,
			},
		},
	}
}
