// Package engine executes a workflow's agent graph: it orders agents,
// resolves each agent's declared inputs, invokes the language model per
// agent, and coerces every model response back onto the agent's declared
// output contract.
package engine

import (
	"maps"
	"slices"
	"strings"
)

// Field is a declared input or output name parsed with the grammar
// name [ ':' type ]. Raw keeps the declaration exactly as written.
type Field struct {
	Raw  string
	Name string
	Type string
}

// ParseField splits a declaration on its first colon.
func ParseField(raw string) Field {
	name, typ, _ := strings.Cut(raw, ":")
	return Field{
		Raw:  raw,
		Name: strings.TrimSpace(name),
		Type: strings.TrimSpace(typ),
	}
}

// ParseFields parses every declaration in order.
func ParseFields(raw []string) []Field {
	fields := make([]Field, len(raw))
	for i, r := range raw {
		fields[i] = ParseField(r)
	}
	return fields
}

// Normalize returns the comparison key of a declared name: the part before
// the first colon, whitespace-trimmed. Comparison stays case-sensitive.
func Normalize(name string) string {
	return ParseField(name).Name
}

// DuplicateNames returns the normalized names that occur more than once.
func DuplicateNames(raw []string) []string {
	seen := make(map[string]int, len(raw))
	var dups []string
	for _, r := range raw {
		n := Normalize(r)
		seen[n]++
		if seen[n] == 2 {
			dups = append(dups, n)
		}
	}
	return dups
}

// lookup finds the value for a declared name in m: the exact key first, then
// the normalized key, then any key whose normalized form matches. Keys are
// scanned in sorted order so the result does not depend on map iteration.
func lookup(m map[string]any, declared string) (any, bool) {
	if v, ok := m[declared]; ok {
		return v, true
	}
	name := Normalize(declared)
	if v, ok := m[name]; ok {
		return v, true
	}
	for _, k := range sortedKeys(m) {
		if Normalize(k) == name {
			return m[k], true
		}
	}
	return nil, false
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
