package transform

import (
	"math"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// recorder reads canonical fields out of a remapped record and collects warnings.
type recorder struct {
	fields   map[string]any
	seps     Separators
	warnings []models.TransformationWarning
}

func newRecorder(fields map[string]any, seps Separators) *recorder {
	return &recorder{fields: fields, seps: seps, warnings: []models.TransformationWarning{}}
}

func (r *recorder) warn(field string, original, transformed any, reason string) {
	r.warnings = append(r.warnings, models.TransformationWarning{
		Field:       field,
		Original:    original,
		Transformed: transformed,
		Reason:      reason,
	})
}

func (r *recorder) raw(field string) (any, string, bool) {
	v, ok := r.fields[field]
	if !ok {
		return nil, "", false
	}
	s, present := ToString(v)
	return v, s, present
}

func (r *recorder) str(field string) string {
	_, s, ok := r.raw(field)
	if !ok {
		return ""
	}
	out := CollapseString(s)
	if out != s {
		r.warn(field, s, out, "whitespace normalized")
	}
	return out
}

func (r *recorder) optStr(field string) *string {
	s := r.str(field)
	if s == "" {
		return nil
	}
	return &s
}

func (r *recorder) taxID(field string) *string {
	_, s, ok := r.raw(field)
	if !ok {
		return nil
	}
	out := NormalizeTaxID(s)
	if out != s {
		r.warn(field, s, out, "tax id normalized")
	}
	if out == "" {
		return nil
	}
	return &out
}

func (r *recorder) integer(field string) *int {
	v, s, ok := r.raw(field)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case int:
		return &t
	case float64:
		if t == math.Trunc(t) {
			n := int(t)
			return &n
		}
	}
	n, stripped, err := ParseInteger(s)
	if err != nil {
		r.warn(field, s, nil, "not an integer")
		return nil
	}
	if stripped != s {
		r.warn(field, s, n, "non-numeric characters removed")
	}
	return &n
}

func (r *recorder) amount(field string) *float64 {
	v, s, ok := r.raw(field)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case float64:
		return &t
	case int:
		f := float64(t)
		return &f
	}
	f, cleaned, err := ParseAmount(s, r.seps)
	if err != nil {
		r.warn(field, s, nil, "not a currency amount")
		return &f
	}
	if cleaned != s {
		r.warn(field, s, f, "currency formatting removed")
	}
	return &f
}

func (r *recorder) currency(field string) string {
	_, s, _ := r.raw(field)
	code, known := NormalizeCurrencyCode(s)
	switch {
	case s == "":
	case !known:
		r.warn(field, s, code, "unrecognized currency code")
	case code != s:
		r.warn(field, s, code, "currency code normalized")
	}
	return code
}

func (r *recorder) date(field string) *time.Time {
	v, s, ok := r.raw(field)
	if !ok {
		return nil
	}
	if t, isTime := v.(time.Time); isTime {
		return &t
	}
	t, iso, err := ParseDate(s)
	if err != nil {
		r.warn(field, s, nil, "unrecognized date format")
		return nil
	}
	if !iso {
		r.warn(field, s, t.Format(isoDateLayout), "date converted to ISO format")
	}
	return &t
}

func (r *recorder) status(field string, vocab StatusVocabulary) string {
	_, s, _ := r.raw(field)
	code, known := vocab.Normalize(s)
	switch {
	case s == "":
	case !known:
		r.warn(field, s, code, "unrecognized status")
	case code != s:
		r.warn(field, s, code, "status normalized")
	}
	return code
}
