// Package transform maps loosely-typed external records onto the canonical schema.
package transform

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

const (
	// HomeCurrency is assumed when a record carries no currency.
	HomeCurrency = "CLP"

	isoDateLayout = "2006-01-02"
)

var (
	whitespaceRe  = regexp.MustCompile(`\s+`)
	separatorRe   = regexp.MustCompile(`[\s_\-]+`)
	dayFirst4Re   = regexp.MustCompile(`^(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{4})$`)
	dayFirst2Re   = regexp.MustCompile(`^(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{2})$`)
	currencyToken = regexp.MustCompile(`(?i)US\$|CLP|UF|[$€£]`)
)

var isoLayouts = []string{
	isoDateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Separators configures how currency amounts are read.
type Separators struct {
	Thousands string `json:"thousands_separator"`
	Decimal   string `json:"decimal_separator"`
}

// DefaultSeparators reads "1,234.56".
var DefaultSeparators = Separators{Thousands: ",", Decimal: "."}

func (s Separators) withDefaults() Separators {
	if s.Thousands == "" && s.Decimal == "" {
		return DefaultSeparators
	}
	if s.Decimal == "" {
		s.Decimal = "."
	}
	return s
}

// CollapseString trims and collapses internal whitespace runs to one space.
func CollapseString(s string) string {
	return whitespaceRe.ReplaceAllString(strings.TrimSpace(s), " ")
}

// StripDiacritics removes combining marks, so "ejecución" becomes "ejecucion".
func StripDiacritics(s string) string {
	decomposed := norm.NFD.String(s)
	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Fold lower-cases, strips accents and collapses separators to single spaces.
func Fold(s string) string {
	s = strings.ToLower(StripDiacritics(strings.TrimSpace(s)))
	return strings.TrimSpace(separatorRe.ReplaceAllString(s, " "))
}

// NormalizeFieldName turns "Fiscal Year" or "fiscal-year" into "fiscal_year".
func NormalizeFieldName(s string) string {
	return strings.ReplaceAll(Fold(s), " ", "_")
}

// ToString renders a loosely-typed value as text. ok is false for nil and empty strings.
func ToString(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		return t, strings.TrimSpace(t) != ""
	case *string:
		if t == nil {
			return "", false
		}
		return *t, strings.TrimSpace(*t) != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case bool:
		return strconv.FormatBool(t), true
	case time.Time:
		return t.Format(isoDateLayout), true
	case fmt.Stringer:
		return t.String(), true
	default:
		return fmt.Sprintf("%v", t), true
	}
}

// ParseInteger strips every character except digits and '-' before parsing.
// The stripped form is returned so callers can tell whether anything was removed.
func ParseInteger(s string) (int, string, error) {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) || r == '-' {
			b.WriteRune(r)
		}
	}
	stripped := b.String()
	n, err := strconv.Atoi(stripped)
	if err != nil {
		return 0, stripped, fmt.Errorf("invalid integer %q", s)
	}
	return n, stripped, nil
}

// ParseAmount strips currency symbols and the CLP/UF tokens, applies the
// separators and parses the result. A decimal separator that occurs more
// than once is read as digit grouping ("1.234.567" is 1234567).
func ParseAmount(s string, seps Separators) (float64, string, error) {
	seps = seps.withDefaults()

	cleaned := currencyToken.ReplaceAllString(s, "")
	cleaned = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, cleaned)

	if seps.Decimal != "" && strings.Count(cleaned, seps.Decimal) > 1 {
		cleaned = strings.ReplaceAll(cleaned, seps.Decimal, "")
	}
	if seps.Thousands != "" {
		cleaned = strings.ReplaceAll(cleaned, seps.Thousands, "")
	}
	if seps.Decimal != "" && seps.Decimal != "." {
		cleaned = strings.ReplaceAll(cleaned, seps.Decimal, ".")
	}

	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsInf(f, 0) {
		return math.NaN(), cleaned, fmt.Errorf("invalid amount %q", s)
	}
	return f, cleaned, nil
}

// ParseDate accepts ISO dates first, then dd/mm/yyyy and dd/mm/yy. Two-digit
// years below 50 land in the 2000s, the rest in the 1900s. iso reports whether
// the input was already ISO.
func ParseDate(s string) (t time.Time, iso bool, err error) {
	s = strings.TrimSpace(s)
	for _, layout := range isoLayouts {
		if parsed, perr := time.Parse(layout, s); perr == nil {
			return parsed, true, nil
		}
	}

	if m := dayFirst4Re.FindStringSubmatch(s); m != nil {
		year, _ := strconv.Atoi(m[3])
		if parsed, ok := buildDate(m[1], m[2], year); ok {
			return parsed, false, nil
		}
	}

	if m := dayFirst2Re.FindStringSubmatch(s); m != nil {
		yy, _ := strconv.Atoi(m[3])
		year := 1900 + yy
		if yy < 50 {
			year = 2000 + yy
		}
		if parsed, ok := buildDate(m[1], m[2], year); ok {
			return parsed, false, nil
		}
	}

	return time.Time{}, false, fmt.Errorf("unrecognized date %q", s)
}

func buildDate(dayStr, monthStr string, year int) (time.Time, bool) {
	day, _ := strconv.Atoi(dayStr)
	month, _ := strconv.Atoi(monthStr)
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes 31/02 into March
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

var currencySynonyms = map[string]string{
	"clp":                 "CLP",
	"peso":                "CLP",
	"pesos":               "CLP",
	"peso chileno":        "CLP",
	"pesos chilenos":      "CLP",
	"$":                   "CLP",
	"uf":                  "CLF",
	"clf":                 "CLF",
	"unidad de fomento":   "CLF",
	"unidades de fomento": "CLF",
	"usd":                 "USD",
	"us$":                 "USD",
	"dolar":               "USD",
	"dolares":             "USD",
	"dollar":              "USD",
	"dollars":             "USD",
	"eur":                 "EUR",
	"euro":                "EUR",
	"euros":               "EUR",
	"€":                   "EUR",
}

// NormalizeCurrencyCode maps localized currency names to ISO codes. Absent
// values become the home currency; known reports whether the input was recognized.
func NormalizeCurrencyCode(s string) (code string, known bool) {
	if strings.TrimSpace(s) == "" {
		return HomeCurrency, true
	}
	if code, ok := currencySynonyms[Fold(s)]; ok {
		return code, true
	}
	return strings.ToUpper(strings.TrimSpace(s)), false
}

// NormalizeTaxID canonicalizes a RUT: "12.345.678-k" becomes "12345678-K".
func NormalizeTaxID(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if unicode.IsDigit(r) || r == 'K' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) < 2 {
		return digits
	}
	return digits[:len(digits)-1] + "-" + digits[len(digits)-1:]
}
