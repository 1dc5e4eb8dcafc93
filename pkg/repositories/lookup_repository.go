package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const (
	fiscalYearsTable    = "fiscal_years"
	fundingSourcesTable = "funding_sources"

	defaultFiscalYearStatus = "open"
)

// LookupRepository fetches or creates the lookup rows referenced by uploaded records.
type LookupRepository struct {
	*Repository
}

var _ LookupRepo = (*LookupRepository)(nil)

func NewLookupRepository(db database.DB, logger ectologger.Logger) *LookupRepository {
	return &LookupRepository{
		Repository: NewRepository(db, logger),
	}
}

// FiscalYearID returns the municipality's fiscal year, creating it on first use.
func (r *LookupRepository) FiscalYearID(ctx context.Context, municipalityID uuid.UUID, year int) (uuid.UUID, error) {
	ctx, span := tracing.StartSpan(ctx, "LookupRepository.FiscalYearID")
	defer span.End()

	ib := fiscalYearInsert(municipalityID, year)

	sb := database.NewSelectBuilder()
	sb.Select("id").From(fiscalYearsTable).Where(sb.Equal("municipality_id", municipalityID), sb.Equal("year", year))

	id, err := r.fetchOrCreate(ctx, ib, sb)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"municipality_id": municipalityID,
			"year":            year,
		}).Error("failed to resolve fiscal year")
		return uuid.Nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to resolve fiscal year %d", year)
	}
	return id, nil
}

// SupplierID matches by tax id first, then by exact name, and creates the supplier when neither matches.
func (r *LookupRepository) SupplierID(ctx context.Context, taxID *string, name string) (uuid.UUID, error) {
	ctx, span := tracing.StartSpan(ctx, "LookupRepository.SupplierID")
	defer span.End()

	if taxID != nil && *taxID != "" {
		id, err := r.findSupplier(ctx, "tax_id", *taxID)
		if err != nil || id != nil {
			return deref(id), err
		}
	}
	if name != "" {
		id, err := r.findSupplier(ctx, "name", name)
		if err != nil || id != nil {
			return deref(id), err
		}
	}

	id := uuid.New()
	ib := database.NewInsertBuilder()
	ib.InsertInto(suppliersTable).
		Cols("id", "tax_id", "name", "created_at", "updated_at").
		Values(id, taxID, name, sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()"))

	query, args := ib.Build()
	if _, err := r.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("supplier_name", name).Error("failed to create supplier")
		return uuid.Nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create supplier '%s'", name)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"supplier_id":   id,
		"supplier_name": name,
	}).Debugf("Created %s on demand", suppliersTable)
	return id, nil
}

// FundingSourceID returns the funding source with name, creating it on first use.
func (r *LookupRepository) FundingSourceID(ctx context.Context, name string) (uuid.UUID, error) {
	ctx, span := tracing.StartSpan(ctx, "LookupRepository.FundingSourceID")
	defer span.End()

	ib := fundingSourceInsert(name)

	sb := database.NewSelectBuilder()
	sb.Select("id").From(fundingSourcesTable).Where(sb.Equal("name", name))

	id, err := r.fetchOrCreate(ctx, ib, sb)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("funding_source", name).Error("failed to resolve funding source")
		return uuid.Nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to resolve funding source '%s'", name)
	}
	return id, nil
}

func fiscalYearInsert(municipalityID uuid.UUID, year int) *database.InsertBuilder {
	ib := database.NewInsertBuilder()
	ib.InsertInto(fiscalYearsTable).
		Cols("id", "municipality_id", "year", "status", "created_at").
		Values(uuid.New(), municipalityID, year, defaultFiscalYearStatus, sqlbuilder.Raw("NOW()"))
	ib.OnConflictDoNothing()
	return ib
}

func fundingSourceInsert(name string) *database.InsertBuilder {
	ib := database.NewInsertBuilder()
	ib.InsertInto(fundingSourcesTable).
		Cols("id", "name", "created_at").
		Values(uuid.New(), name, sqlbuilder.Raw("NOW()"))
	ib.OnConflictDoNothing()
	return ib
}

func (r *LookupRepository) fetchOrCreate(ctx context.Context, ib *database.InsertBuilder, sb *database.SelectBuilder) (uuid.UUID, error) {
	insert, insertArgs := ib.Build()
	if _, err := r.Conn(ctx).ExecContext(ctx, insert, insertArgs...); err != nil {
		return uuid.Nil, err
	}

	query, args := sb.Build()
	var id uuid.UUID
	err := r.Conn(ctx).GetContext(ctx, &id, query, args...)
	return id, err
}

func (r *LookupRepository) findSupplier(ctx context.Context, column, value string) (*uuid.UUID, error) {
	sb := database.NewSelectBuilder()
	sb.Select("id").From(suppliersTable).Where(sb.Equal(column, value)).OrderBy("created_at").Limit(1)

	query, args := sb.Build()
	var id uuid.UUID
	err := r.Conn(ctx).GetContext(ctx, &id, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField(column, value).Error("failed to find supplier")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find supplier")
	}
	return &id, nil
}

func deref(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}
