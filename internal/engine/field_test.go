package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseField(t *testing.T) {
	tests := []struct {
		raw      string
		wantName string
		wantType string
	}{
		{"count", "count", ""},
		{"count: number", "count", "number"},
		{"  count :number  ", "count", "number"},
		{"url: string: absolute", "url", "string: absolute"},
		{":", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			f := ParseField(tt.raw)
			assert.Equal(t, tt.raw, f.Raw)
			assert.Equal(t, tt.wantName, f.Name)
			assert.Equal(t, tt.wantType, f.Type)
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	for _, s := range []string{"a", "a: number", " a ", "a:b:c", "", "Mixed Case: Text", "{{x}}"} {
		once := Normalize(s)
		assert.Equal(t, once, Normalize(once), "input %q", s)
	}
	assert.Equal(t, "a", Normalize("a: number"))
	assert.Equal(t, Normalize("a"), Normalize("a: number"))
}

func TestNormalize_CaseSensitive(t *testing.T) {
	assert.NotEqual(t, Normalize("Summary"), Normalize("summary"))
}

func TestDuplicateNames(t *testing.T) {
	assert.Empty(t, DuplicateNames([]string{"a", "b: string"}))
	assert.Equal(t, []string{"a"}, DuplicateNames([]string{"a", "a: string", "a: int", "b"}))
}

func TestLookup(t *testing.T) {
	m := map[string]any{
		"text: string": "annotated",
		"summary":      "plain",
	}

	v, ok := lookup(m, "text: string")
	assert.True(t, ok)
	assert.Equal(t, "annotated", v)

	v, ok = lookup(m, "summary: string")
	assert.True(t, ok)
	assert.Equal(t, "plain", v, "normalized key")

	v, ok = lookup(m, "text")
	assert.True(t, ok)
	assert.Equal(t, "annotated", v, "normalized scan")

	_, ok = lookup(m, "missing")
	assert.False(t, ok)

	_, ok = lookup(nil, "text")
	assert.False(t, ok)
}
