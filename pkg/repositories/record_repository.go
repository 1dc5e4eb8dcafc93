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
	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// RecordRepository persists every canonical entity type, keyed by natural key.
type RecordRepository struct {
	*Repository
}

var _ RecordRepo = (*RecordRepository)(nil)

func NewRecordRepository(db database.DB, logger ectologger.Logger) *RecordRepository {
	return &RecordRepository{
		Repository: NewRepository(db, logger),
	}
}

// FindExisting returns the id of the stored record sharing record's natural key,
// or nil when there is none. Records without a usable key never match.
func (r *RecordRepository) FindExisting(ctx context.Context, record models.Record) (*uuid.UUID, error) {
	ctx, span := tracing.StartSpan(ctx, "RecordRepository.FindExisting")
	defer span.End()

	key := record.NaturalKey()
	if len(key) == 0 || key.Empty() {
		return nil, nil
	}

	table, err := tableFor(record.EntityType())
	if err != nil {
		return nil, err
	}

	sb := database.NewSelectBuilder()
	sb.Select("id").From(table)
	for _, part := range key {
		value := part.Resolved()
		if value == nil {
			sb.Where(sb.IsNull(part.Column))
			continue
		}
		sb.Where(sb.Equal(part.Column, value))
	}
	sb.Limit(1)

	query, args := sb.Build()
	var id uuid.UUID
	err = r.Conn(ctx).GetContext(ctx, &id, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"entity_type": record.EntityType(),
			"natural_key": key.String(),
		}).Error("failed to find existing record")
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to find existing %s", record.EntityType())
	}

	return &id, nil
}

// Create inserts record and returns its new id. Unique violations surface as DuplicateKeyError.
func (r *RecordRepository) Create(ctx context.Context, record models.Record) (uuid.UUID, error) {
	ctx, span := tracing.StartSpan(ctx, "RecordRepository.Create")
	defer span.End()

	table, err := tableFor(record.EntityType())
	if err != nil {
		return uuid.Nil, err
	}
	if err := r.resolveSupplier(ctx, record); err != nil {
		return uuid.Nil, err
	}
	columns, err := columnsFor(record)
	if err != nil {
		return uuid.Nil, err
	}

	id := uuid.New()
	names := []string{"id"}
	values := []any{id}
	for _, c := range columns {
		names = append(names, c.name)
		values = append(values, c.value)
	}
	names = append(names, "created_at", "updated_at")
	values = append(values, sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()"))

	ib := database.NewInsertBuilder()
	ib.InsertInto(table).Cols(names...).Values(values...)

	query, args := ib.Build()
	if _, err := r.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		if dbErr := fernerrors.FromDatabase(err); fernerrors.IsDuplicateKey(dbErr) {
			return uuid.Nil, dbErr
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"entity_type": record.EntityType(),
		}).Error("failed to create record")
		return uuid.Nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to create %s", record.EntityType())
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_type": record.EntityType(),
		"id":          id,
	}).Debugf("Created %s", table)
	return id, nil
}

// Update overwrites the stored record. Unset lookup references keep their stored value.
func (r *RecordRepository) Update(ctx context.Context, id uuid.UUID, record models.Record) error {
	ctx, span := tracing.StartSpan(ctx, "RecordRepository.Update")
	defer span.End()

	table, err := tableFor(record.EntityType())
	if err != nil {
		return err
	}
	if err := r.resolveSupplier(ctx, record); err != nil {
		return err
	}
	columns, err := columnsFor(record)
	if err != nil {
		return err
	}

	ub := database.NewUpdateBuilder()
	assignments := make([]string, 0, len(columns)+1)
	for _, c := range columns {
		if c.lookup && c.unset() {
			continue
		}
		assignments = append(assignments, ub.Assign(c.name, c.value))
	}
	assignments = append(assignments, ub.Assign("updated_at", sqlbuilder.Raw("NOW()")))
	ub.Update(table).Set(assignments...).Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := r.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		if dbErr := fernerrors.FromDatabase(err); fernerrors.IsDuplicateKey(dbErr) {
			return dbErr
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"entity_type": record.EntityType(),
			"id":          id,
		}).Error("failed to update record")
		return httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to update %s", record.EntityType())
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		return NotFound("%s %s does not exist", record.EntityType(), id)
	}
	return nil
}

// Count returns the number of stored records of a type, optionally scoped to a municipality.
func (r *RecordRepository) Count(ctx context.Context, entityType models.EntityType, municipalityID *uuid.UUID) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "RecordRepository.Count")
	defer span.End()

	table, err := tableFor(entityType)
	if err != nil {
		return 0, err
	}

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)").From(table)
	if municipalityID != nil && entityType != models.EntityTypeSupplier {
		sb.Where(sb.Equal("municipality_id", *municipalityID))
	}

	query, args := sb.Build()
	var count int
	if err := r.Conn(ctx).GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("entity_type", entityType).Error("failed to count records")
		return 0, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to count %s", entityType)
	}
	return count, nil
}

// resolveSupplier links a record to an already stored supplier by tax id. Unknown suppliers stay unlinked.
func (r *RecordRepository) resolveSupplier(ctx context.Context, record models.Record) error {
	taxID, set := supplierRef(record)
	if taxID == nil {
		return nil
	}

	sb := database.NewSelectBuilder()
	sb.Select("id").From(suppliersTable).Where(sb.Equal("tax_id", *taxID)).Limit(1)

	query, args := sb.Build()
	var id uuid.UUID
	err := r.Conn(ctx).GetContext(ctx, &id, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("tax_id", *taxID).Error("failed to resolve supplier")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve supplier")
	}
	set(id)
	return nil
}
