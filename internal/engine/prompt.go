package engine

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/invopop/jsonschema"

	"agent-architect/backend/pkg/models"
)

// placeholderPattern matches {{name}} and {name}. The double-brace form is
// tried first at every position, so {{x}} is never read as {x} wrapped in
// stray braces.
var placeholderPattern = regexp.MustCompile(`\{\{([^{}]+)\}\}|\{([^{}]+)\}`)

// RenderPrompt substitutes input values into a prompt template. A placeholder
// refers to an input when its content equals the declared input name, or when
// its annotation-stripped content equals the input's normalized name, so
// {{count}}, {count: number} and {{count: int}} all address "count: number".
// Placeholders that address no input are left untouched. Substitution is a
// single pass; substituted values are never rescanned. The declared names of
// inputs no placeholder addressed are returned.
func RenderPrompt(template string, inputs map[string]any) (string, []string) {
	byRaw := make(map[string]string, len(inputs))
	byName := make(map[string]string, len(inputs))
	for _, key := range sortedKeys(inputs) {
		byRaw[strings.TrimSpace(key)] = key
		if _, taken := byName[Normalize(key)]; !taken {
			byName[Normalize(key)] = key
		}
	}

	used := make(map[string]bool, len(inputs))
	rendered := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		inner := strings.Trim(match, "{}")
		key, ok := byRaw[strings.TrimSpace(inner)]
		if !ok {
			key, ok = byName[Normalize(inner)]
		}
		if !ok {
			return match
		}
		used[key] = true
		return stringify(inputs[key])
	})

	var unused []string
	for _, key := range sortedKeys(inputs) {
		if !used[key] {
			unused = append(unused, key)
		}
	}
	return rendered, unused
}

// stringify renders maps, slices, arrays and structs as indented JSON and
// scalars as text. Pointers are followed.
func stringify(v any) string {
	if v == nil {
		return "null"
	}
	if s, ok := v.(string); ok {
		return s
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return "null"
		}
		return stringify(rv.Elem().Interface())
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	default:
		return fmt.Sprint(v)
	}
}

// OutputSchema describes an agent's declared outputs as a closed JSON object.
// Property names are normalized; a recognised annotation becomes the property
// type.
func OutputSchema(agent models.Agent) *jsonschema.Schema {
	props := jsonschema.NewProperties()
	required := make([]string, 0, len(agent.Outputs))
	for _, f := range ParseFields(agent.Outputs) {
		if _, exists := props.Get(f.Name); exists {
			continue
		}
		props.Set(f.Name, &jsonschema.Schema{
			Type:        jsonType(f.Type),
			Description: f.Raw,
		})
		required = append(required, f.Name)
	}
	return &jsonschema.Schema{
		Type:                 "object",
		Title:                agent.Name + " result",
		Properties:           props,
		Required:             required,
		AdditionalProperties: jsonschema.FalseSchema,
	}
}

func jsonType(annotation string) string {
	switch strings.ToLower(annotation) {
	case "string", "text", "str":
		return "string"
	case "number", "float", "double":
		return "number"
	case "integer", "int":
		return "integer"
	case "boolean", "bool":
		return "boolean"
	case "array", "list":
		return "array"
	case "object", "json", "map":
		return "object"
	default:
		return ""
	}
}

// BuildPrompt renders the agent's template and appends the response
// instructions: the reply must be one JSON object whose "result" holds
// exactly the agent's normalized output names.
func BuildPrompt(agent models.Agent, inputs map[string]any) (string, []string) {
	rendered, unused := RenderPrompt(agent.Prompt, inputs)

	names := make([]string, 0, len(agent.Outputs))
	example := make([]string, 0, len(agent.Outputs))
	for _, f := range ParseFields(agent.Outputs) {
		names = append(names, f.Name)
		example = append(example, fmt.Sprintf("    %q: \"value\"", f.Name))
	}

	schema, err := json.MarshalIndent(OutputSchema(agent), "", "  ")
	if err != nil {
		schema = []byte("{}")
	}

	var b strings.Builder
	b.WriteString(rendered)
	b.WriteString("\n\nIMPORTANT: Your response must be a single valid JSON object with this structure:\n")
	b.WriteString("{\n  \"result\": {\n")
	b.WriteString(strings.Join(example, ",\n"))
	b.WriteString("\n  },\n  \"reasoning\": \"Explanation of how you arrived at this result\"\n}\n\n")
	fmt.Fprintf(&b, "The \"result\" object must contain exactly these keys: %s.\n", strings.Join(names, ", "))
	b.WriteString("Do not add any keys that are not listed. The \"result\" object must satisfy this JSON schema:\n")
	b.Write(schema)
	b.WriteString("\n")
	return b.String(), unused
}
