package repositories

import (
	"context"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/validation"
)

const municipalitiesTable = "municipalities"

var referenceTables = map[validation.Reference]string{
	validation.RefMunicipality: municipalitiesTable,
	validation.RefSupplier:     suppliersTable,
}

// ReferenceRepository checks foreign keys for the validation engine.
type ReferenceRepository struct {
	*Repository
}

var _ ReferenceRepo = (*ReferenceRepository)(nil)

func NewReferenceRepository(db database.DB, logger ectologger.Logger) *ReferenceRepository {
	return &ReferenceRepository{
		Repository: NewRepository(db, logger),
	}
}

func (r *ReferenceRepository) Exists(ctx context.Context, ref validation.Reference, id uuid.UUID) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "ReferenceRepository.Exists")
	defer span.End()

	table, ok := referenceTables[ref]
	if !ok {
		return false, fmt.Errorf("unknown reference %q", ref)
	}

	sb := database.NewSelectBuilder()
	sb.Select("COUNT(*)").From(table).Where(sb.Equal("id", id))

	query, args := sb.Build()
	var count int
	if err := r.Conn(ctx).GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"reference": ref,
			"id":        id,
		}).Error("failed to check reference")
		return false, httperror.NewHTTPErrorf(http.StatusInternalServerError, "failed to check %s reference", ref)
	}
	return count > 0, nil
}
