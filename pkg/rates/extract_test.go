package rates

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecode(t *testing.T, raw string) any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var doc any
	require.NoError(t, dec.Decode(&doc))
	return doc
}

func extract(extractors []Extractor, doc any) (float64, bool) {
	for _, e := range extractors {
		if f, ok := e(doc); ok {
			return f, true
		}
	}
	return 0, false
}

func TestParseRate(t *testing.T) {
	tests := []struct {
		in    any
		want  float64
		valid bool
	}{
		{json.Number("1234.5"), 1234.5, true},
		{1187.25, 1187.25, true},
		{" 1234,5 ", 1234.5, true},
		{"0", 0, false},
		{json.Number("-5"), 0, false},
		{"NaN", 0, false},
		{"+Inf", 0, false},
		{"abc", 0, false},
		{"", 0, false},
		{true, 0, false},
		{nil, 0, false},
		{map[string]any{"ask": 1}, 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseRate(tt.in)
		assert.Equal(t, tt.valid, ok, "input %#v", tt.in)
		assert.Equal(t, tt.want, got, "input %#v", tt.in)
	}
}

func TestPrimaryExtractors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		want  float64
		found bool
	}{
		{
			name:  "preferred asset ask as string",
			body:  `{"cripto":{"usdt":{"ask":"1234.5","bid":1200}}}`,
			want:  1234.5,
			found: true,
		},
		{
			name:  "preferred asset price when ask invalid",
			body:  `{"cripto":{"usdt":{"ask":0,"price":1199.9}}}`,
			want:  1199.9,
			found: true,
		},
		{
			name:  "alternate asset order usdc before ccb",
			body:  `{"cripto":{"ccb":{"ask":1300},"usdc":{"ask":1250}}}`,
			want:  1250,
			found: true,
		},
		{
			name:  "bare scalar",
			body:  `{"cripto":1111.11}`,
			want:  1111.11,
			found: true,
		},
		{
			name:  "generic search respects key preference",
			body:  `{"cripto":{"x":{"valor":900,"avg":950}}}`,
			want:  950,
			found: true,
		},
		{
			name:  "generic search finds valor",
			body:  `{"cripto":{"valor":900}}`,
			want:  900,
			found: true,
		},
		{
			name:  "thousands separator is rejected",
			body:  `{"cripto":{"other":{"promedio":"1.234,5"}}}`,
			want:  0,
			found: false,
		},
		{
			name:  "first numeric leaf skips timestamps",
			body:  `{"cripto":{"other":{"time":1700000000,"variation":1.2,"z":1010}}}`,
			want:  1010,
			found: true,
		},
		{
			name:  "negative only",
			body:  `{"cripto":{"ask":-5}}`,
			found: false,
		},
		{
			name:  "empty document",
			body:  `{}`,
			found: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extract(PrimaryExtractors(), mustDecode(t, tt.body))
			assert.Equal(t, tt.found, ok)
			if tt.found {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestSecondaryExtractors(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		want  float64
		found bool
	}{
		{"venta", `{"compra":1180,"venta":1215,"fechaActualizacion":"2024-05-01T12:00:00Z"}`, 1215, true},
		{"compra when venta missing", `{"compra":1180}`, 1180, true},
		{"decimal comma", `{"venta":"1215,75"}`, 1215.75, true},
		{"nested", `{"data":{"promedio":1200}}`, 1200, true},
		{"nothing valid", `{"venta":"n/a","fechaActualizacion":"x"}`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extract(SecondaryExtractors(), mustDecode(t, tt.body))
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSearch_Deterministic(t *testing.T) {
	doc := mustDecode(t, `{"b":{"ask":2},"a":{"ask":1},"c":[{"ask":3}]}`)
	for i := 0; i < 20; i++ {
		got, ok := Search("", "ask")(doc)
		require.True(t, ok)
		assert.Equal(t, 1.0, got)
	}
}
