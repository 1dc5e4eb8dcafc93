// Package upload ingests operator-supplied budget, expenditure and project files.
package upload

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/database"
	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/fileparser"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/transform"
	"github.com/Ramsey-B/fern/pkg/validation"
)

// File is one uploaded file.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// Ingestor validates uploaded rows and inserts the valid ones in one transaction.
type Ingestor struct {
	tx         repositories.Transactor
	records    repositories.RecordRepo
	lookups    repositories.LookupRepo
	references validation.ReferenceChecker
	validator  *validation.Engine
	publisher  kafka.Publisher
	logger     ectologger.Logger
}

type Option func(*Ingestor)

// WithPublisher emits an upload.completed event after every committed upload.
func WithPublisher(p kafka.Publisher) Option {
	return func(i *Ingestor) { i.publisher = p }
}

// WithReferences rejects uploads for municipalities that do not exist.
func WithReferences(r validation.ReferenceChecker) Option {
	return func(i *Ingestor) { i.references = r }
}

func NewIngestor(tx repositories.Transactor, records repositories.RecordRepo, lookups repositories.LookupRepo, validator *validation.Engine, logger ectologger.Logger, opts ...Option) *Ingestor {
	i := &Ingestor{
		tx:        tx,
		records:   records,
		lookups:   lookups,
		validator: validator,
		publisher: kafka.NoopPublisher{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Ingestor) UploadBudgets(ctx context.Context, file File, municipalityID uuid.UUID) (*models.UploadResult, error) {
	return i.Upload(ctx, models.EntityTypeBudget, file, municipalityID)
}

func (i *Ingestor) UploadExpenditures(ctx context.Context, file File, municipalityID uuid.UUID) (*models.UploadResult, error) {
	return i.Upload(ctx, models.EntityTypeExpenditure, file, municipalityID)
}

func (i *Ingestor) UploadProjects(ctx context.Context, file File, municipalityID uuid.UUID) (*models.UploadResult, error) {
	return i.Upload(ctx, models.EntityTypeProject, file, municipalityID)
}

// staged is a validated row waiting for insertion.
type staged struct {
	row    int
	record models.Record
}

// Upload parses the file, validates every row and inserts the valid rows
// atomically. Only parse failures and transaction failures are returned as
// errors; row-level problems are reported in the result.
func (i *Ingestor) Upload(ctx context.Context, entityType models.EntityType, file File, municipalityID uuid.UUID) (*models.UploadResult, error) {
	ctx, span := tracing.StartSpan(ctx, "Ingestor.Upload")
	defer span.End()

	logger := i.logger.WithContext(ctx).WithFields(map[string]any{
		"entity_type":     entityType,
		"municipality_id": municipalityID,
		"file_name":       file.Name,
	})
	start := time.Now()

	toRecord, ok := uploadable[entityType]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "uploads are not supported for %s", entityType)
	}

	if err := i.checkOwner(ctx, municipalityID); err != nil {
		tracing.RecordError(span, err)
		return nil, err
	}

	kind, err := fileparser.DetectKind(file.Name, file.MimeType)
	if err != nil {
		return nil, &fernerrors.ParseError{FileName: file.Name, Message: "unsupported file type", Err: err}
	}
	parsed, err := fileparser.ParseTable(kind, file.Name, file.Data)
	if err != nil {
		tracing.RecordError(span, err)
		logger.WithError(err).Warn("Failed to parse upload")
		return nil, err
	}

	rows := parsed.Rows
	result := &models.UploadResult{TotalRecords: len(rows), Errors: []models.UploadRowError{}}
	vctx := validation.Context{MunicipalityID: &municipalityID, SkipForeignKeys: true}

	var ready []staged
	for idx, row := range rows {
		rowNum := parsed.Line(idx)
		record, rowErrs, err := i.prepare(ctx, toRecord, row, municipalityID, vctx)
		if err != nil {
			tracing.RecordError(span, err)
			return nil, err
		}
		if len(rowErrs) > 0 {
			for _, e := range rowErrs {
				e.Row = rowNum
				result.Errors = append(result.Errors, e)
			}
			continue
		}
		ready = append(ready, staged{row: rowNum, record: record})
	}

	var insertErrs []models.UploadRowError
	err = i.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		inserted := 0
		insertErrs = insertErrs[:0]
		for _, s := range ready {
			err := i.tx.WithinSavepoint(ctx, func(ctx context.Context) error {
				return i.insert(ctx, s.record, municipalityID)
			})
			var spErr *database.SavepointError
			if errors.As(err, &spErr) {
				return err
			}
			if err != nil {
				insertErrs = append(insertErrs, models.UploadRowError{Row: s.row, Message: insertMessage(err)})
				continue
			}
			inserted++
		}
		result.SuccessfulInserts = inserted
		return nil
	})
	if err != nil {
		tracing.RecordError(span, err)
		logger.WithError(err).Error("Upload transaction failed, nothing was committed")
		return nil, &fernerrors.TransactionError{Err: err}
	}

	result.Errors = append(result.Errors, insertErrs...)
	sort.SliceStable(result.Errors, func(a, b int) bool { return result.Errors[a].Row < result.Errors[b].Row })
	result.FailedRecords = result.TotalRecords - result.SuccessfulInserts

	metrics.RecordUpload(string(entityType), result.SuccessfulInserts, result.FailedRecords)
	i.publish(ctx, entityType, municipalityID, result, time.Since(start))
	logger.Infof("Upload finished: total=%d inserted=%d failed=%d", result.TotalRecords, result.SuccessfulInserts, result.FailedRecords)
	return result, nil
}

func (i *Ingestor) checkOwner(ctx context.Context, municipalityID uuid.UUID) error {
	if municipalityID == uuid.Nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "municipality id is required")
	}
	if i.references == nil {
		return nil
	}
	exists, err := i.references.Exists(ctx, validation.RefMunicipality, municipalityID)
	if err != nil {
		return fmt.Errorf("failed to check municipality: %w", err)
	}
	if !exists {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "municipality %s does not exist", municipalityID)
	}
	return nil
}

// prepare coerces one row into a canonical record and validates it. Values
// the coercion had to drop are put back so validation reports them as type
// errors rather than missing fields.
func (i *Ingestor) prepare(ctx context.Context, toRecord transform.EntityFunc, row fileparser.Row, municipalityID uuid.UUID, vctx validation.Context) (models.Record, []models.UploadRowError, error) {
	res := toRecord(row, nil)
	record := res.Record
	record.SetOwner(municipalityID)

	data := record.Fields()
	for _, w := range res.Warnings {
		if w.Original == nil {
			continue
		}
		if v, kept := data[w.Field]; !kept || isNaN(v) {
			data[w.Field] = w.Original
		}
	}

	vr, err := i.validator.ValidateEntity(ctx, record.EntityType(), data, vctx)
	if err != nil {
		return nil, nil, err
	}
	if vr.Valid {
		return record, nil, nil
	}

	rowErrs := make([]models.UploadRowError, 0, len(vr.Errors))
	for _, ve := range vr.Errors {
		rowErrs = append(rowErrs, models.UploadRowError{Field: ve.Field, Message: ve.Message, Value: ve.Value})
	}
	return nil, rowErrs, nil
}

// insert resolves the row's lookup entities and writes it.
func (i *Ingestor) insert(ctx context.Context, record models.Record, municipalityID uuid.UUID) error {
	switch r := record.(type) {
	case *models.Budget:
		id, err := i.lookups.FiscalYearID(ctx, municipalityID, *r.FiscalYear)
		if err != nil {
			return err
		}
		r.FiscalYearID = &id
		if r.FundingSourceID, err = i.fundingSource(ctx, r.FundingSource); err != nil {
			return err
		}
	case *models.Expenditure:
		id, err := i.lookups.FiscalYearID(ctx, municipalityID, *r.FiscalYear)
		if err != nil {
			return err
		}
		r.FiscalYearID = &id
		if r.SupplierName != nil || r.SupplierTaxID != nil {
			name := ""
			if r.SupplierName != nil {
				name = *r.SupplierName
			}
			supplierID, err := i.lookups.SupplierID(ctx, r.SupplierTaxID, name)
			if err != nil {
				return err
			}
			r.SupplierID = &supplierID
		}
	case *models.Project:
		var err error
		if r.FundingSourceID, err = i.fundingSource(ctx, r.FundingSource); err != nil {
			return err
		}
	}

	_, err := i.records.Create(ctx, record)
	return err
}

func (i *Ingestor) fundingSource(ctx context.Context, name *string) (*uuid.UUID, error) {
	if name == nil || *name == "" {
		return nil, nil
	}
	id, err := i.lookups.FundingSourceID(ctx, *name)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func (i *Ingestor) publish(ctx context.Context, entityType models.EntityType, municipalityID uuid.UUID, result *models.UploadResult, elapsed time.Duration) {
	err := i.publisher.Publish(ctx, &kafka.Event{
		Type:           kafka.EventUploadCompleted,
		MunicipalityID: municipalityID.String(),
		EntityType:     string(entityType),
		Success:        true,
		Total:          result.TotalRecords,
		Inserted:       result.SuccessfulInserts,
		Failed:         result.FailedRecords,
		DurationMs:     elapsed.Milliseconds(),
	})
	if err != nil {
		i.logger.WithContext(ctx).WithError(err).Warn("failed to publish upload event")
	}
}

var uploadable = map[models.EntityType]transform.EntityFunc{
	models.EntityTypeBudget:      transform.TransformBudget,
	models.EntityTypeExpenditure: transform.TransformExpenditure,
	models.EntityTypeProject:     transform.TransformProject,
}

func insertMessage(err error) string {
	var dup *fernerrors.DuplicateKeyError
	if errors.As(fernerrors.FromDatabase(err), &dup) {
		return "record already exists: " + dup.Error()
	}
	return err.Error()
}

func isNaN(v any) bool {
	f, ok := v.(float64)
	return ok && math.IsNaN(f)
}
