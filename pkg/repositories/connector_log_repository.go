package repositories

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/connector"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const connectorLogsTable = "connector_logs"

var connectorLogStruct = database.NewStruct(new(models.ConnectorLog))

// ConnectorLogRepository stores the per-attempt audit trail of outbound requests
type ConnectorLogRepository struct {
	*Repository
}

var (
	_ ConnectorLogRepo    = (*ConnectorLogRepository)(nil)
	_ connector.LogWriter = (*ConnectorLogRepository)(nil)
)

func NewConnectorLogRepository(db database.DB, logger ectologger.Logger) *ConnectorLogRepository {
	return &ConnectorLogRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create appends one audit record. Logs are never updated.
func (r *ConnectorLogRepository) Create(ctx context.Context, log *models.ConnectorLog) error {
	ctx, span := tracing.StartSpan(ctx, "ConnectorLogRepository.Create")
	defer span.End()

	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(connectorLogsTable).
		Cols("id", "connector_id", "endpoint", "method", "attempt", "request_headers", "request_body",
			"response_status", "response_headers", "response_body", "duration_ms", "error", "created_at").
		Values(log.ID, log.ConnectorID, log.Endpoint, log.Method, log.Attempt, log.RequestHeaders, log.RequestBody,
			log.ResponseStatus, log.ResponseHeaders, log.ResponseBody, log.DurationMs, log.Error, sqlbuilder.Raw("NOW()")).
		Returning("created_at")

	query, args := ib.Build()
	err := r.Conn(ctx).QueryRowContext(ctx, query, args...).Scan(&log.CreatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connector_id": log.ConnectorID,
			"endpoint":     log.Endpoint,
		}).Error("failed to create connector log")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create connector log")
	}
	return nil
}

// ListByConnector returns one page of a connector's logs, newest first, plus the total count.
func (r *ConnectorLogRepository) ListByConnector(ctx context.Context, connectorID uuid.UUID, limit, offset int) ([]models.ConnectorLog, int, error) {
	ctx, span := tracing.StartSpan(ctx, "ConnectorLogRepository.ListByConnector")
	defer span.End()

	cb := database.NewSelectBuilder()
	cb.Select("COUNT(*)").From(connectorLogsTable).Where(cb.Equal("connector_id", connectorID))
	countQuery, countArgs := cb.Build()

	var total int
	if err := r.Conn(ctx).GetContext(ctx, &total, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connector_id": connectorID,
		}).Error("failed to count connector logs")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list connector logs")
	}

	sb := connectorLogStruct.SelectFrom(connectorLogsTable)
	sb.Where(sb.Equal("connector_id", connectorID)).
		OrderBy("created_at").Desc().
		Limit(limit).
		Offset(offset)

	query, args := sb.Build()
	logs := []models.ConnectorLog{}
	if err := r.Conn(ctx).SelectContext(ctx, &logs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connector_id": connectorID,
		}).Error("failed to list connector logs")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list connector logs")
	}

	return logs, total, nil
}

// DeleteOlderThan removes logs created before cutoff and returns how many were deleted.
func (r *ConnectorLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "ConnectorLogRepository.DeleteOlderThan")
	defer span.End()

	db := connectorLogStruct.DeleteFrom(connectorLogsTable)
	db.Where(db.LessThan("created_at", cutoff))

	query, args := db.Build()
	result, err := r.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("cutoff", cutoff).Error("failed to delete connector logs")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete connector logs")
	}

	deleted, _ := result.RowsAffected()
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"cutoff":  cutoff,
		"deleted": deleted,
	}).Debugf("Deleted old %s", connectorLogsTable)
	return deleted, nil
}
