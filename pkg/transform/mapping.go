package transform

import (
	"fmt"
	"sort"
)

// FieldMapping remaps one source field onto a canonical field.
type FieldMapping struct {
	Source string `json:"source" validate:"required"`
	Target string `json:"target" validate:"required"`
	// Transform names a registered transform, e.g. "tax_id".
	Transform string `json:"transform,omitempty"`
	// Default is used when the source field is absent.
	Default any `json:"default,omitempty"`
	// Func takes precedence over Transform when set programmatically.
	Func Func `json:"-"`
}

// Config tunes a transformation run.
type Config struct {
	Mappings   []FieldMapping `json:"mappings,omitempty"`
	Separators Separators     `json:"separators"`
	// Aliases rename source-specific field names, e.g. "razon_social" to "name".
	Aliases map[string]string `json:"aliases,omitempty"`
}

// Validate checks that every named transform is registered.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	for _, m := range c.Mappings {
		if m.Transform == "" {
			continue
		}
		if _, ok := Lookup(m.Transform); !ok {
			return fmt.Errorf("unknown transform %q for field %q", m.Transform, m.Target)
		}
	}
	return nil
}

// remap builds the canonical-named view of a raw record. Field names are
// normalized, then aliases applied where the canonical name is still free,
// then explicit mappings override.
func remap(raw map[string]any, entityAliases map[string]string, cfg *Config) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		out[NormalizeFieldName(k)] = v
	}

	if cfg != nil {
		applyAliases(out, cfg.Aliases)
	}
	applyAliases(out, entityAliases)

	if cfg == nil {
		return out
	}

	for _, m := range cfg.Mappings {
		v, ok := raw[m.Source]
		if !ok {
			v, ok = out[NormalizeFieldName(m.Source)]
		}
		if !ok || v == nil {
			if m.Default == nil {
				continue
			}
			out[m.Target] = m.Default
			continue
		}
		switch {
		case m.Func != nil:
			v = m.Func(v)
		case m.Transform != "":
			if fn, found := Lookup(m.Transform); found {
				v = fn(v)
			}
		}
		out[m.Target] = v
	}
	return out
}

func applyAliases(fields map[string]any, aliases map[string]string) {
	names := make([]string, 0, len(aliases))
	for alias := range aliases {
		names = append(names, alias)
	}
	sort.Strings(names)

	for _, alias := range names {
		canonical := aliases[alias]
		key := NormalizeFieldName(alias)
		v, ok := fields[key]
		if !ok {
			continue
		}
		if _, taken := fields[canonical]; !taken {
			fields[canonical] = v
		}
	}
}
