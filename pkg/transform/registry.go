package transform

import (
	"strings"
	"unicode"
)

// Func transforms a single mapped value.
type Func func(any) any

var registry = make(map[string]Func)

func init() {
	Register("trim", stringFunc(strings.TrimSpace))
	Register("collapse", stringFunc(CollapseString))
	Register("upper", stringFunc(strings.ToUpper))
	Register("lower", stringFunc(strings.ToLower))
	Register("title", stringFunc(titleCase))
	Register("digits_only", stringFunc(digitsOnly))
	Register("tax_id", stringFunc(NormalizeTaxID))
	Register("fold", stringFunc(Fold))
}

// Register adds a named transform to the registry
func Register(name string, fn Func) {
	registry[name] = fn
}

// Lookup retrieves a named transform
func Lookup(name string) (Func, bool) {
	fn, ok := registry[name]
	return fn, ok
}

func stringFunc(fn func(string) string) Func {
	return func(v any) any {
		s, ok := ToString(v)
		if !ok {
			return v
		}
		return fn(s)
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		runes := []rune(w)
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
