package rates

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Extractor pulls a rate out of a decoded JSON document. It reports false when
// the document carries no valid rate at the place it looks.
type Extractor func(doc any) (float64, bool)

// skippedKeys are never treated as rates by the generic search
var skippedKeys = []string{"time", "timestamp", "variation"}

// ParseRate converts a JSON scalar into a rate. Strings are trimmed and a
// decimal comma is accepted. Only finite values greater than zero are valid.
func ParseRate(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = x
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(x), ",", ".")
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, false
	}
	return f, true
}

// Path extracts the value at a fixed object path
func Path(keys ...string) Extractor {
	return func(doc any) (float64, bool) {
		return ParseRate(lookup(doc, keys...))
	}
}

// Search walks the subtree at root (the whole document when root is empty or
// missing) looking for the first preferred key, in order, that holds a valid
// rate. When none does it falls back to the first valid numeric leaf.
// Object keys are visited in sorted order so the result is deterministic.
func Search(root string, preferred ...string) Extractor {
	return func(doc any) (float64, bool) {
		node := doc
		if root != "" {
			if sub := lookup(doc, root); sub != nil {
				node = sub
			}
		}

		for _, key := range preferred {
			if f, ok := findKey(node, key); ok {
				return f, true
			}
		}
		return firstNumeric(node)
	}
}

func lookup(doc any, keys ...string) any {
	cur := doc
	for _, k := range keys {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[k]
		if !ok {
			return nil
		}
	}
	return cur
}

func findKey(node any, key string) (float64, bool) {
	switch n := node.(type) {
	case map[string]any:
		if v, ok := n[key]; ok {
			if f, ok := ParseRate(v); ok {
				return f, true
			}
		}
		for _, k := range sortedKeys(n) {
			if f, ok := findKey(n[k], key); ok {
				return f, true
			}
		}
	case []any:
		for _, item := range n {
			if f, ok := findKey(item, key); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func firstNumeric(node any) (float64, bool) {
	switch n := node.(type) {
	case map[string]any:
		for _, k := range sortedKeys(n) {
			if isSkipped(k) {
				continue
			}
			if f, ok := firstNumeric(n[k]); ok {
				return f, true
			}
		}
	case []any:
		for _, item := range n {
			if f, ok := firstNumeric(item); ok {
				return f, true
			}
		}
	case json.Number, float64:
		return ParseRate(n)
	}
	return 0, false
}

func isSkipped(key string) bool {
	k := strings.ToLower(key)
	if strings.HasPrefix(k, "fecha") {
		return true
	}
	for _, s := range skippedKeys {
		if k == s {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// PrimaryExtractors is the extraction order for the CriptoYa dollar feed
func PrimaryExtractors() []Extractor {
	return []Extractor{
		Path("cripto", "usdt", "ask"),
		Path("cripto", "usdt", "price"),
		Path("cripto", "usdc", "ask"),
		Path("cripto", "usdc", "price"),
		Path("cripto", "ccb", "ask"),
		Path("cripto", "ccb", "price"),
		Path("cripto"),
		Search("cripto", "promedio", "venta", "price", "avg", "ask", "valor"),
	}
}

// SecondaryExtractors is the extraction order for the DolarAPI crypto quote
func SecondaryExtractors() []Extractor {
	return []Extractor{
		Path("venta"),
		Path("compra"),
		Search("", "venta", "promedio", "compra", "valor", "price"),
	}
}
