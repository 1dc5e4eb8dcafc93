package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/fern/pkg/database"
	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const connectorsTable = "connectors"

var connectorStruct = database.NewStruct(new(models.ConnectorConfig))

// ConnectorRepository handles database operations for connector configs
type ConnectorRepository struct {
	*Repository
}

var _ ConnectorRepo = (*ConnectorRepository)(nil)

// NewConnectorRepository creates a new connector repository
func NewConnectorRepository(db database.DB, logger ectologger.Logger) *ConnectorRepository {
	return &ConnectorRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create inserts a connector. The credential must already be encrypted.
func (r *ConnectorRepository) Create(ctx context.Context, connector *models.ConnectorConfig) error {
	ctx, span := tracing.StartSpan(ctx, "ConnectorRepository.Create")
	defer span.End()

	if connector.ID == uuid.Nil {
		connector.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(connectorsTable).
		Cols("id", "name", "source_type", "base_url", "credential", "auth_type", "auth_params", "headers", "settings",
			"timeout_ms", "retry_count", "rate_limit_requests", "rate_limit_window_seconds", "active", "created_at", "updated_at").
		Values(connector.ID, connector.Name, connector.SourceType, connector.BaseURL, connector.Credential, connector.AuthType,
			connector.AuthParams, connector.Headers, connector.Settings, connector.TimeoutMs, connector.RetryCount,
			connector.RateLimitRequests, connector.RateLimitWindowSeconds, connector.Active,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.Conn(ctx).QueryRowContext(ctx, query, args...).Scan(&connector.CreatedAt, &connector.UpdatedAt)
	if fernerrors.IsDuplicateKey(err) {
		return Conflict("connector '%s' already exists", connector.Name)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connector_id": connector.ID,
		}).Error("failed to create connector")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create connector")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"connector_id": connector.ID,
	}).Debugf("Created %s", connectorsTable)
	return nil
}

// GetByID retrieves a connector by ID
func (r *ConnectorRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ConnectorConfig, error) {
	ctx, span := tracing.StartSpan(ctx, "ConnectorRepository.GetByID")
	defer span.End()

	sb := connectorStruct.SelectFrom(connectorsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var connector models.ConnectorConfig
	err := r.Conn(ctx).GetContext(ctx, &connector, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "connector %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connector_id": id,
		}).Error("failed to get connector by ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get connector by ID")
	}

	return &connector, nil
}

// GetByName retrieves a connector by its unique name
func (r *ConnectorRepository) GetByName(ctx context.Context, name string) (*models.ConnectorConfig, error) {
	ctx, span := tracing.StartSpan(ctx, "ConnectorRepository.GetByName")
	defer span.End()

	sb := connectorStruct.SelectFrom(connectorsTable)
	sb.Where(sb.Equal("name", name))

	query, args := sb.Build()
	var connector models.ConnectorConfig
	err := r.Conn(ctx).GetContext(ctx, &connector, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "connector '%s' does not exist", name)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connector_name": name,
		}).Error("failed to get connector by name")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get connector by name")
	}

	return &connector, nil
}

// List retrieves all connectors ordered by name
func (r *ConnectorRepository) List(ctx context.Context) ([]models.ConnectorConfig, error) {
	ctx, span := tracing.StartSpan(ctx, "ConnectorRepository.List")
	defer span.End()

	sb := connectorStruct.SelectFrom(connectorsTable)
	sb.OrderBy("name")

	query, args := sb.Build()
	connectors := []models.ConnectorConfig{}
	err := r.Conn(ctx).SelectContext(ctx, &connectors, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list connectors")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list connectors")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"connector_count": len(connectors),
	}).Debugf("Listed %s", connectorsTable)
	return connectors, nil
}

// Update replaces a connector's editable fields
func (r *ConnectorRepository) Update(ctx context.Context, connector *models.ConnectorConfig) error {
	ctx, span := tracing.StartSpan(ctx, "ConnectorRepository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(connectorsTable).
		Set(
			ub.Assign("name", connector.Name),
			ub.Assign("source_type", connector.SourceType),
			ub.Assign("base_url", connector.BaseURL),
			ub.Assign("credential", connector.Credential),
			ub.Assign("auth_type", connector.AuthType),
			ub.Assign("auth_params", connector.AuthParams),
			ub.Assign("headers", connector.Headers),
			ub.Assign("settings", connector.Settings),
			ub.Assign("timeout_ms", connector.TimeoutMs),
			ub.Assign("retry_count", connector.RetryCount),
			ub.Assign("rate_limit_requests", connector.RateLimitRequests),
			ub.Assign("rate_limit_window_seconds", connector.RateLimitWindowSeconds),
			ub.Assign("active", connector.Active),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("id", connector.ID))
	ub.SQL("RETURNING updated_at")

	query, args := ub.Build()
	err := r.Conn(ctx).QueryRowContext(ctx, query, args...).Scan(&connector.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "connector %s does not exist", connector.ID)
	}
	if fernerrors.IsDuplicateKey(err) {
		return Conflict("connector '%s' already exists", connector.Name)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connector_id": connector.ID,
		}).Error("failed to update connector")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update connector")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"connector_id": connector.ID,
	}).Debugf("Updated %s", connectorsTable)
	return nil
}

// Delete removes a connector and, by cascade, its audit logs
func (r *ConnectorRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "ConnectorRepository.Delete")
	defer span.End()

	db := connectorStruct.DeleteFrom(connectorsTable)
	db.Where(db.Equal("id", id))

	query, args := db.Build()
	result, err := r.Conn(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connector_id": id,
		}).Error("failed to delete connector")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete connector")
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "connector %s does not exist", id)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"connector_id": id,
	}).Debugf("Deleted %s", connectorsTable)
	return nil
}

// MarkSynced stamps last_sync_at after a successful sync
func (r *ConnectorRepository) MarkSynced(ctx context.Context, id uuid.UUID, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "ConnectorRepository.MarkSynced")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(connectorsTable).
		Set(ub.Assign("last_sync_at", at), ub.Assign("updated_at", sqlbuilder.Raw("NOW()"))).
		Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := r.Conn(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"connector_id": id,
		}).Error("failed to mark connector synced")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark connector synced")
	}
	return nil
}
