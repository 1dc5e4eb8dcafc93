package validation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/transform"
	"github.com/Ramsey-B/fern/pkg/utils"
)

var ErrUnsupportedEntityType = errors.New("unsupported entity type")

// ReferenceChecker resolves foreign keys against the store.
type ReferenceChecker interface {
	Exists(ctx context.Context, ref Reference, id uuid.UUID) (bool, error)
}

// Context carries per-call validation options.
type Context struct {
	// MunicipalityID is used for the municipality foreign key when the record has none.
	MunicipalityID *uuid.UUID
	// SkipForeignKeys disables reference lookups, for callers that already
	// guarantee referential integrity.
	SkipForeignKeys bool
}

// InvalidRecord is a record rejected by ValidateBatch.
type InvalidRecord struct {
	// Position is the 1-based index of the record in the input.
	Position int                      `json:"position"`
	Record   map[string]any           `json:"record"`
	Errors   []models.ValidationError `json:"errors"`
}

// BatchResult partitions a batch into valid and invalid records.
type BatchResult struct {
	Valid   []map[string]any `json:"valid"`
	Invalid []InvalidRecord  `json:"invalid"`
}

type Engine struct {
	logger     ectologger.Logger
	references ReferenceChecker
	schemas    map[models.EntityType]Schema
}

// NewEngine builds an engine over the built-in schemas. references may be nil,
// in which case foreign keys are not checked.
func NewEngine(logger ectologger.Logger, references ReferenceChecker) *Engine {
	return &Engine{
		logger:     logger,
		references: references,
		schemas:    Schemas,
	}
}

func (e *Engine) Schema(entityType models.EntityType) (Schema, error) {
	s, ok := e.schemas[entityType]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %s", ErrUnsupportedEntityType, entityType)
	}
	return s, nil
}

// ValidateRecord validates a transformed record.
func (e *Engine) ValidateRecord(ctx context.Context, record models.Record, vctx Context) (models.ValidationResult, error) {
	return e.ValidateEntity(ctx, record.EntityType(), record.Fields(), vctx)
}

// ValidateEntity checks required fields first and returns only those errors
// when any is missing. Otherwise every present field is type checked, then
// range, length and enum checked, and all violations are returned.
func (e *Engine) ValidateEntity(ctx context.Context, entityType models.EntityType, data map[string]any, vctx Context) (models.ValidationResult, error) {
	ctx, span := tracing.StartSpan(ctx, "ValidationEngine.ValidateEntity")
	defer span.End()

	schema, err := e.Schema(entityType)
	if err != nil {
		return models.ValidationResult{}, err
	}

	result := models.ValidationResult{Valid: true, Errors: []models.ValidationError{}}

	for _, rule := range schema.Fields {
		if rule.Required && !present(data[rule.Name]) {
			result.Errors = append(result.Errors, models.ValidationError{
				Field:        rule.Name,
				Message:      fmt.Sprintf("%s is required", rule.Name),
				Constraint:   models.ConstraintRequired,
				SuggestedFix: fmt.Sprintf("Provide a value for %s", rule.Name),
			})
		}
	}
	if len(result.Errors) > 0 {
		result.Valid = false
		return result, nil
	}

	dates := map[string]time.Time{}
	for _, rule := range schema.Fields {
		value := data[rule.Name]
		if rule.ForeignKey == RefMunicipality && !present(value) && vctx.MunicipalityID != nil {
			value = vctx.MunicipalityID.String()
		}
		if !present(value) {
			continue
		}

		errs, parsed := checkField(rule, value)
		result.Errors = append(result.Errors, errs...)
		if len(errs) > 0 {
			continue
		}
		if t, ok := parsed.(time.Time); ok {
			dates[rule.Name] = t
		}

		if rule.ForeignKey != "" && !vctx.SkipForeignKeys && e.references != nil {
			id := parsed.(uuid.UUID)
			exists, err := e.references.Exists(ctx, rule.ForeignKey, id)
			if err != nil {
				tracing.RecordError(span, err)
				e.logger.WithContext(ctx).WithError(err).WithField("reference", rule.ForeignKey).Error("Failed to check reference")
				return models.ValidationResult{}, fmt.Errorf("failed to check %s reference: %w", rule.ForeignKey, err)
			}
			if !exists {
				result.Errors = append(result.Errors, models.ValidationError{
					Field:        rule.Name,
					Value:        value,
					Message:      fmt.Sprintf("%s %s does not exist", rule.ForeignKey, id),
					Constraint:   models.ConstraintForeignKey,
					SuggestedFix: fmt.Sprintf("Create the %s first or reference an existing one", rule.ForeignKey),
				})
			}
		}
	}

	for _, order := range schema.DateOrders {
		start, okStart := dates[order.Start]
		end, okEnd := dates[order.End]
		if okStart && okEnd && end.Before(start) {
			result.Errors = append(result.Errors, models.ValidationError{
				Field:        order.End,
				Value:        data[order.End],
				Message:      fmt.Sprintf("%s must be on or after %s", order.End, order.Start),
				Constraint:   models.ConstraintRange,
				SuggestedFix: fmt.Sprintf("Use a %s on or after %s", order.End, start.Format(time.DateOnly)),
			})
		}
	}

	result.Valid = len(result.Errors) == 0
	return result, nil
}

// ValidateBatch validates every record and partitions them, keeping input order.
func (e *Engine) ValidateBatch(ctx context.Context, entityType models.EntityType, records []map[string]any, vctx Context) (BatchResult, error) {
	batch := BatchResult{Valid: []map[string]any{}, Invalid: []InvalidRecord{}}
	for i, record := range records {
		res, err := e.ValidateEntity(ctx, entityType, record, vctx)
		if err != nil {
			return BatchResult{}, err
		}
		if res.Valid {
			batch.Valid = append(batch.Valid, record)
			continue
		}
		batch.Invalid = append(batch.Invalid, InvalidRecord{Position: i + 1, Record: record, Errors: res.Errors})
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_type": entityType,
		"valid":       len(batch.Valid),
		"invalid":     len(batch.Invalid),
	}).Debug("Validated batch")
	return batch, nil
}

// present treats nil and blank strings as absent. NaN counts as present so
// malformed amounts reach the type check.
func present(v any) bool {
	_, ok := transform.ToString(v)
	return ok
}

// checkField runs the type check and, when it passes, the range, length and
// enum checks. The coerced value is returned for later cross-field checks.
func checkField(rule FieldRule, value any) ([]models.ValidationError, any) {
	fail := func(kind models.ConstraintKind, msg, fix string) models.ValidationError {
		return models.ValidationError{Field: rule.Name, Value: printable(value), Message: msg, Constraint: kind, SuggestedFix: fix}
	}

	switch rule.Type {
	case TypeInteger:
		n, ok := toInteger(value)
		if !ok {
			return []models.ValidationError{fail(models.ConstraintType, fmt.Sprintf("%s must be an integer", rule.Name), "Use a whole number such as 2024")}, nil
		}
		return checkRange(rule, float64(n), fail), n

	case TypeDecimal:
		f, ok := toDecimal(value)
		if !ok {
			return []models.ValidationError{fail(models.ConstraintType, fmt.Sprintf("%s must be a finite number", rule.Name), "Use a plain number such as 1500000.50")}, nil
		}
		var errs []models.ValidationError
		switch {
		case rule.AllowZero && f < 0:
			errs = append(errs, fail(models.ConstraintRange, fmt.Sprintf("%s must not be negative", rule.Name), "Use zero or a positive amount"))
		case !rule.AllowZero && f <= 0:
			errs = append(errs, fail(models.ConstraintRange, fmt.Sprintf("%s must be greater than zero", rule.Name), "Use a positive amount"))
		}
		if f >= MaxAmount {
			errs = append(errs, fail(models.ConstraintRange, fmt.Sprintf("%s exceeds the maximum plausible amount", rule.Name), "Check the column for misplaced separators or encoding problems"))
		}
		return append(errs, checkRange(rule, f, fail)...), f

	case TypeDate:
		t, ok := toDate(value)
		if !ok {
			return []models.ValidationError{fail(models.ConstraintType, fmt.Sprintf("%s must be a date", rule.Name), "Use the YYYY-MM-DD format")}, nil
		}
		if t.Year() < MinDateYear || t.Year() > MaxDateYear {
			return []models.ValidationError{fail(models.ConstraintRange, fmt.Sprintf("%s must be between %d and %d", rule.Name, MinDateYear, MaxDateYear), "Check the year of the date")}, nil
		}
		return nil, t

	case TypeEmail:
		s, _ := transform.ToString(value)
		if err := utils.ValidateValue(strings.TrimSpace(s), "email"); err != nil {
			return []models.ValidationError{fail(models.ConstraintType, fmt.Sprintf("%s must be an email address", rule.Name), "Use an address like compras@municipio.cl")}, nil
		}
		return checkLength(rule, s, fail), s

	case TypeTaxID:
		s, _ := transform.ToString(value)
		if !ValidRUT(s) {
			return []models.ValidationError{fail(models.ConstraintType, fmt.Sprintf("%s must be a valid RUT", rule.Name), "Use a RUT with its check digit, e.g. 12345678-5")}, nil
		}
		return nil, transform.NormalizeTaxID(s)

	case TypeUUID:
		s, _ := transform.ToString(value)
		id, err := uuid.Parse(strings.TrimSpace(s))
		if err != nil {
			return []models.ValidationError{fail(models.ConstraintType, fmt.Sprintf("%s must be a UUID", rule.Name), "Use an identifier like 3f1c2a4e-0b7d-4c1e-9a53-2f8e6d1b7c90")}, nil
		}
		return nil, id

	default:
		s, _ := transform.ToString(value)
		errs := checkLength(rule, s, fail)
		if len(rule.Enum) > 0 && !slices.Contains(rule.Enum, strings.TrimSpace(s)) {
			errs = append(errs, fail(models.ConstraintEnum, fmt.Sprintf("%s must be one of %s", rule.Name, strings.Join(rule.Enum, ", ")), fmt.Sprintf("Use one of: %s", strings.Join(rule.Enum, ", "))))
		}
		return errs, s
	}
}

type failFunc func(kind models.ConstraintKind, msg, fix string) models.ValidationError

func checkRange(rule FieldRule, v float64, fail failFunc) []models.ValidationError {
	var errs []models.ValidationError
	if rule.Min != nil && v < *rule.Min {
		errs = append(errs, fail(models.ConstraintRange, fmt.Sprintf("%s must be at least %s", rule.Name, formatBound(*rule.Min)), rangeFix(rule)))
	}
	if rule.Max != nil && v > *rule.Max {
		errs = append(errs, fail(models.ConstraintRange, fmt.Sprintf("%s must be at most %s", rule.Name, formatBound(*rule.Max)), rangeFix(rule)))
	}
	return errs
}

func rangeFix(rule FieldRule) string {
	switch {
	case rule.Min != nil && rule.Max != nil:
		return fmt.Sprintf("Use a value between %s and %s", formatBound(*rule.Min), formatBound(*rule.Max))
	case rule.Min != nil:
		return fmt.Sprintf("Use a value of at least %s", formatBound(*rule.Min))
	default:
		return fmt.Sprintf("Use a value of at most %s", formatBound(*rule.Max))
	}
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func checkLength(rule FieldRule, s string, fail failFunc) []models.ValidationError {
	n := utf8.RuneCountInString(strings.TrimSpace(s))
	switch {
	case rule.MinLength > 0 && n < rule.MinLength:
		return []models.ValidationError{fail(models.ConstraintLength, fmt.Sprintf("%s must be at least %d characters", rule.Name, rule.MinLength), lengthFix(rule))}
	case rule.MaxLength > 0 && n > rule.MaxLength:
		return []models.ValidationError{fail(models.ConstraintLength, fmt.Sprintf("%s must be at most %d characters", rule.Name, rule.MaxLength), lengthFix(rule))}
	}
	return nil
}

func lengthFix(rule FieldRule) string {
	if rule.MinLength > 0 && rule.MaxLength > 0 {
		return fmt.Sprintf("Use between %d and %d characters", rule.MinLength, rule.MaxLength)
	}
	if rule.MaxLength > 0 {
		return fmt.Sprintf("Shorten to %d characters or fewer", rule.MaxLength)
	}
	return fmt.Sprintf("Use at least %d characters", rule.MinLength)
}

func toInteger(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) || t != math.Trunc(t) {
			return 0, false
		}
		return int(t), true
	}
	s, _ := transform.ToString(v)
	n, err := strconv.Atoi(strings.TrimSpace(s))
	return n, err == nil
}

func toDecimal(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	default:
		s, _ := transform.ToString(v)
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	}
	return f, !math.IsNaN(f) && !math.IsInf(f, 0)
}

func toDate(v any) (time.Time, bool) {
	if t, ok := v.(time.Time); ok {
		return t, true
	}
	s, _ := transform.ToString(v)
	t, _, err := transform.ParseDate(s)
	return t, err == nil
}

// printable keeps NaN out of JSON responses.
func printable(v any) any {
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return v
}
