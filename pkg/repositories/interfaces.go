package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/validation"
)

// Transactor runs work atomically.
type Transactor interface {
	// WithinTransaction runs fn in one transaction bound to the ctx passed to fn.
	// A returned error rolls everything back.
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	// WithinSavepoint isolates fn inside the ctx transaction. A failing fn only
	// undoes its own statements.
	WithinSavepoint(ctx context.Context, fn func(ctx context.Context) error) error
}

// RecordRepo persists canonical records by natural key.
type RecordRepo interface {
	FindExisting(ctx context.Context, record models.Record) (*uuid.UUID, error)
	Create(ctx context.Context, record models.Record) (uuid.UUID, error)
	Update(ctx context.Context, id uuid.UUID, record models.Record) error
	Count(ctx context.Context, entityType models.EntityType, municipalityID *uuid.UUID) (int, error)
}

// LookupRepo fetches or creates the lookup entities referenced by uploads.
type LookupRepo interface {
	FiscalYearID(ctx context.Context, municipalityID uuid.UUID, year int) (uuid.UUID, error)
	// SupplierID matches by tax id first, then by name, and creates the supplier when neither matches.
	SupplierID(ctx context.Context, taxID *string, name string) (uuid.UUID, error)
	FundingSourceID(ctx context.Context, name string) (uuid.UUID, error)
}

// ConnectorRepo defines the interface for connector repository operations
type ConnectorRepo interface {
	Create(ctx context.Context, connector *models.ConnectorConfig) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.ConnectorConfig, error)
	GetByName(ctx context.Context, name string) (*models.ConnectorConfig, error)
	List(ctx context.Context) ([]models.ConnectorConfig, error)
	Update(ctx context.Context, connector *models.ConnectorConfig) error
	Delete(ctx context.Context, id uuid.UUID) error
	MarkSynced(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ConnectorLogRepo defines the interface for connector audit log operations
type ConnectorLogRepo interface {
	Create(ctx context.Context, log *models.ConnectorLog) error
	ListByConnector(ctx context.Context, connectorID uuid.UUID, limit, offset int) ([]models.ConnectorLog, int, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ReferenceRepo answers foreign-key existence checks.
type ReferenceRepo interface {
	validation.ReferenceChecker
}
