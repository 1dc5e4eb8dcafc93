package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// EntityType identifies a canonical civic-finance record kind.
type EntityType string

const (
	EntityTypeSupplier    EntityType = "supplier"
	EntityTypeBudget      EntityType = "budget"
	EntityTypeExpenditure EntityType = "expenditure"
	EntityTypeProject     EntityType = "project"
	EntityTypeContract    EntityType = "contract"
)

// EntityTypes lists every entity type the pipeline can produce.
var EntityTypes = []EntityType{
	EntityTypeSupplier,
	EntityTypeBudget,
	EntityTypeExpenditure,
	EntityTypeProject,
	EntityTypeContract,
}

// ParseEntityType accepts singular or plural names ("budgets", "Budget").
func ParseEntityType(s string) (EntityType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "s")
	for _, t := range EntityTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unsupported entity type %q", s)
}

// KeyPart is one column of a natural key.
type KeyPart struct {
	Column string
	Value  any
}

// Resolved returns the value with pointers dereferenced; unset pointers are nil.
func (p KeyPart) Resolved() any {
	return deref(p.Value)
}

// NaturalKey is the ordered business key used to detect existing records.
type NaturalKey []KeyPart

// Empty reports whether every part of the key is unset.
func (k NaturalKey) Empty() bool {
	for _, p := range k {
		if !isZero(p.Value) {
			return false
		}
	}
	return true
}

func (k NaturalKey) String() string {
	parts := make([]string, 0, len(k))
	for _, p := range k {
		parts = append(parts, fmt.Sprintf("%s=%v", p.Column, deref(p.Value)))
	}
	return strings.Join(parts, ",")
}

// Record is a canonical record produced by the transformation layer.
type Record interface {
	EntityType() EntityType
	NaturalKey() NaturalKey
	// Fields returns the canonical field map consumed by validation. Absent
	// values are omitted; malformed amounts are present as NaN.
	Fields() map[string]any
	// SetOwner scopes the record to a municipality. Records without an owner ignore it.
	SetOwner(municipalityID uuid.UUID)
}

func isZero(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case *string:
		return t == nil || *t == ""
	case *int:
		return t == nil
	case *uuid.UUID:
		return t == nil || *t == uuid.Nil
	case uuid.UUID:
		return t == uuid.Nil
	}
	return false
}

func deref(v any) any {
	switch t := v.(type) {
	case *string:
		if t == nil {
			return nil
		}
		return *t
	case *int:
		if t == nil {
			return nil
		}
		return *t
	case *uuid.UUID:
		if t == nil {
			return nil
		}
		return *t
	}
	return v
}
