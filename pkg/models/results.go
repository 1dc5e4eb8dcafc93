package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncOptions controls one sync run.
type SyncOptions struct {
	EntityType  EntityType `json:"entity_type" validate:"required"`
	DateFrom    *time.Time `json:"date_from,omitempty"`
	DateTo      *time.Time `json:"date_to,omitempty"`
	TenantID    *uuid.UUID `json:"tenant_id,omitempty"`
	BatchSize   int        `json:"batch_size,omitempty" validate:"omitempty,min=1,max=1000"`
	Incremental bool       `json:"incremental"`
	Validate    bool       `json:"validate"`
}

// RecordError captures a record that could not be written.
type RecordError struct {
	Record  map[string]any `json:"record,omitempty"`
	Message string         `json:"message"`
}

// SyncResult reports reconciliation counts for one sync run.
type SyncResult struct {
	Success         bool          `json:"success"`
	ConnectorID     uuid.UUID     `json:"connector_id"`
	EntityType      EntityType    `json:"entity_type"`
	RecordsFetched  int           `json:"records_fetched"`
	RecordsInserted int           `json:"records_inserted"`
	RecordsUpdated  int           `json:"records_updated"`
	RecordsSkipped  int           `json:"records_skipped"`
	Errors          []RecordError `json:"errors"`
	Duration        time.Duration `json:"-"`
	DurationMs      int64         `json:"duration_ms"`
}

// TransformationWarning describes a non-fatal change made while normalizing a field.
type TransformationWarning struct {
	Field       string `json:"field"`
	Original    any    `json:"original"`
	Transformed any    `json:"transformed"`
	Reason      string `json:"reason"`
}

// TransformationResult is one canonical record plus the warnings raised producing it.
type TransformationResult struct {
	Record   Record                  `json:"record"`
	Warnings []TransformationWarning `json:"warnings"`
}

// ConstraintKind classifies a validation failure.
type ConstraintKind string

const (
	ConstraintRequired   ConstraintKind = "required"
	ConstraintType       ConstraintKind = "type"
	ConstraintRange      ConstraintKind = "range"
	ConstraintLength     ConstraintKind = "length"
	ConstraintEnum       ConstraintKind = "enum"
	ConstraintForeignKey ConstraintKind = "foreign_key"
)

// ValidationError is a field-level diagnostic.
type ValidationError struct {
	Field        string         `json:"field"`
	Value        any            `json:"value,omitempty"`
	Message      string         `json:"message"`
	Constraint   ConstraintKind `json:"constraint"`
	SuggestedFix string         `json:"suggested_fix,omitempty"`
}

// ValidationResult is the outcome of validating one record.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors"`
}

// UploadRowError is a diagnostic for one row of an uploaded file.
type UploadRowError struct {
	Row     int    `json:"row"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Value   any    `json:"value,omitempty"`
}

// UploadResult reports the outcome of one bulk upload.
type UploadResult struct {
	TotalRecords      int              `json:"total_records"`
	SuccessfulInserts int              `json:"successful_inserts"`
	FailedRecords     int              `json:"failed_records"`
	Errors            []UploadRowError `json:"errors"`
}
