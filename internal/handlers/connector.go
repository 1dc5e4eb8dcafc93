package handlers

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/connector"
	"github.com/Ramsey-B/fern/pkg/crypto"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/utils"
)

const (
	defaultLogPageSize = 50
	maxLogPageSize     = 500
)

// SyncService is the orchestrator surface used by the connector routes.
type SyncService interface {
	SyncData(ctx context.Context, connectorID uuid.UUID, opts models.SyncOptions) *models.SyncResult
	TestConnection(ctx context.Context, connectorID uuid.UUID) (bool, error)
	ExecuteRequest(ctx context.Context, connectorID uuid.UUID, req connector.Request) (*connector.Response, error)
	Invalidate(connectorID uuid.UUID)
	ClearCache() int
}

// ConnectorHandler handles connector management, sync and audit log requests
type ConnectorHandler struct {
	repo      repositories.ConnectorRepo
	logs      repositories.ConnectorLogRepo
	encryptor crypto.Encryptor
	syncs     SyncService
	logger    ectologger.Logger
}

func NewConnectorHandler(repo repositories.ConnectorRepo, logs repositories.ConnectorLogRepo, encryptor crypto.Encryptor, syncs SyncService, logger ectologger.Logger) *ConnectorHandler {
	return &ConnectorHandler{repo: repo, logs: logs, encryptor: encryptor, syncs: syncs, logger: logger}
}

// CreateConnectorRequest is the request body for creating a connector
type CreateConnectorRequest struct {
	Name                   string            `json:"name" validate:"required,max=255"`
	SourceType             models.SourceType `json:"source_type" validate:"required,oneof=procurement_registry budget_source rest_feed"`
	BaseURL                string            `json:"base_url" validate:"required,url"`
	Credential             string            `json:"credential"`
	AuthType               models.AuthType   `json:"auth_type" validate:"omitempty,oneof=none api_key bearer basic oauth"`
	AuthParams             map[string]string `json:"auth_params"`
	Headers                map[string]string `json:"headers"`
	Settings               map[string]any    `json:"settings"`
	TimeoutMs              *int              `json:"timeout_ms" validate:"omitempty,min=100,max=300000"`
	RetryCount             *int              `json:"retry_count" validate:"omitempty,min=0,max=10"`
	RateLimitRequests      *int              `json:"rate_limit_requests" validate:"omitempty,min=1"`
	RateLimitWindowSeconds *int              `json:"rate_limit_window_seconds" validate:"omitempty,min=1"`
	Active                 *bool             `json:"active"`
}

// UpdateConnectorRequest is the request body for updating a connector. Unset fields are left unchanged.
type UpdateConnectorRequest struct {
	Name                   *string            `json:"name" validate:"omitempty,max=255"`
	BaseURL                *string            `json:"base_url" validate:"omitempty,url"`
	Credential             *string            `json:"credential"`
	AuthType               *models.AuthType   `json:"auth_type" validate:"omitempty,oneof=none api_key bearer basic oauth"`
	AuthParams             *map[string]string `json:"auth_params"`
	Headers                *map[string]string `json:"headers"`
	Settings               *map[string]any    `json:"settings"`
	TimeoutMs              *int               `json:"timeout_ms" validate:"omitempty,min=100,max=300000"`
	RetryCount             *int               `json:"retry_count" validate:"omitempty,min=0,max=10"`
	RateLimitRequests      *int               `json:"rate_limit_requests" validate:"omitempty,min=0"`
	RateLimitWindowSeconds *int               `json:"rate_limit_window_seconds" validate:"omitempty,min=1"`
	Active                 *bool              `json:"active"`
}

// LogPage is one page of a connector's audit log
type LogPage struct {
	Logs   []models.ConnectorLog `json:"logs"`
	Total  int                   `json:"total"`
	Limit  int                   `json:"limit"`
	Offset int                   `json:"offset"`
}

// RegisterRoutes registers the connector routes
func (h *ConnectorHandler) RegisterRoutes(g *echo.Group) {
	connectors := g.Group("/connectors")
	connectors.POST("", h.Create)
	connectors.GET("", h.List)
	connectors.DELETE("/cache", h.ClearCache)
	connectors.GET("/:id", h.Get)
	connectors.PUT("/:id", h.Update)
	connectors.DELETE("/:id", h.Delete)
	connectors.POST("/:id/test", h.Test)
	connectors.POST("/:id/sync", h.Sync)
	connectors.POST("/:id/request", h.Request)
	connectors.GET("/:id/logs", h.Logs)
}

// Create handles POST /connectors
func (h *ConnectorHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	req, err := utils.BindRequest[CreateConnectorRequest](c)
	if err != nil {
		return err
	}

	cfg := &models.ConnectorConfig{
		ID:                     uuid.New(),
		Name:                   req.Name,
		SourceType:             req.SourceType,
		BaseURL:                req.BaseURL,
		AuthType:               req.AuthType,
		AuthParams:             database.NewJSONB(req.AuthParams),
		Headers:                database.NewJSONB(req.Headers),
		Settings:               database.NewJSONB(req.Settings),
		TimeoutMs:              models.DefaultConnectorTimeoutMs,
		RetryCount:             models.DefaultConnectorRetryCount,
		RateLimitRequests:      req.RateLimitRequests,
		RateLimitWindowSeconds: req.RateLimitWindowSeconds,
		Active:                 true,
	}
	if cfg.AuthType == "" {
		cfg.AuthType = models.AuthTypeNone
	}
	if req.TimeoutMs != nil {
		cfg.TimeoutMs = *req.TimeoutMs
	}
	if req.RetryCount != nil {
		cfg.RetryCount = *req.RetryCount
	}
	if req.Active != nil {
		cfg.Active = *req.Active
	}
	if err := h.setCredential(cfg, req.Credential); err != nil {
		return err
	}

	if err := h.repo.Create(ctx, cfg); err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"connector_id": cfg.ID,
		"source_type":  cfg.SourceType,
	}).Infof("Created connector %s", cfg.Name)
	return CreatedResponse(c, cfg)
}

// List handles GET /connectors
func (h *ConnectorHandler) List(c echo.Context) error {
	connectors, err := h.repo.List(c.Request().Context())
	if err != nil {
		return err
	}
	return SuccessResponse(c, connectors)
}

// Get handles GET /connectors/:id
func (h *ConnectorHandler) Get(c echo.Context) error {
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	cfg, err := h.repo.GetByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return SuccessResponse(c, cfg)
}

// Update handles PUT /connectors/:id
func (h *ConnectorHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[UpdateConnectorRequest](c)
	if err != nil {
		return err
	}

	cfg, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if req.Name != nil {
		cfg.Name = *req.Name
	}
	if req.BaseURL != nil {
		cfg.BaseURL = *req.BaseURL
	}
	if req.AuthType != nil {
		cfg.AuthType = *req.AuthType
	}
	if req.AuthParams != nil {
		cfg.AuthParams = database.NewJSONB(*req.AuthParams)
	}
	if req.Headers != nil {
		cfg.Headers = database.NewJSONB(*req.Headers)
	}
	if req.Settings != nil {
		cfg.Settings = database.NewJSONB(*req.Settings)
	}
	if req.TimeoutMs != nil {
		cfg.TimeoutMs = *req.TimeoutMs
	}
	if req.RetryCount != nil {
		cfg.RetryCount = *req.RetryCount
	}
	if req.RateLimitRequests != nil {
		cfg.RateLimitRequests = req.RateLimitRequests
	}
	if req.RateLimitWindowSeconds != nil {
		cfg.RateLimitWindowSeconds = req.RateLimitWindowSeconds
	}
	if req.Active != nil {
		cfg.Active = *req.Active
	}
	if req.Credential != nil {
		if err := h.setCredential(cfg, *req.Credential); err != nil {
			return err
		}
	}

	if err := h.repo.Update(ctx, cfg); err != nil {
		return err
	}
	h.syncs.Invalidate(id)

	return SuccessResponse(c, cfg)
}

// Delete handles DELETE /connectors/:id
func (h *ConnectorHandler) Delete(c echo.Context) error {
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.repo.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	h.syncs.Invalidate(id)

	return NoContentResponse(c)
}

// Test handles POST /connectors/:id/test
func (h *ConnectorHandler) Test(c echo.Context) error {
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	connected, err := h.syncs.TestConnection(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return SuccessResponse(c, map[string]bool{"connected": connected})
}

// Sync handles POST /connectors/:id/sync. The result is returned even when
// the run failed, so callers always see counts and per-record errors.
func (h *ConnectorHandler) Sync(c echo.Context) error {
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	opts, err := utils.BindRequest[models.SyncOptions](c)
	if err != nil {
		return err
	}

	return SuccessResponse(c, h.syncs.SyncData(c.Request().Context(), id, opts))
}

// Request handles POST /connectors/:id/request
func (h *ConnectorHandler) Request(c echo.Context) error {
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[connector.Request](c)
	if err != nil {
		return err
	}

	resp, err := h.syncs.ExecuteRequest(c.Request().Context(), id, req)
	if resp == nil {
		return err
	}
	return SuccessResponse(c, resp)
}

// Logs handles GET /connectors/:id/logs
func (h *ConnectorHandler) Logs(c echo.Context) error {
	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	limit, err := QueryInt(c, "limit", defaultLogPageSize, 1, maxLogPageSize)
	if err != nil {
		return err
	}
	offset, err := QueryInt(c, "offset", 0, 0, int(^uint32(0)>>1))
	if err != nil {
		return err
	}

	logs, total, err := h.logs.ListByConnector(c.Request().Context(), id, limit, offset)
	if err != nil {
		return err
	}
	if logs == nil {
		logs = []models.ConnectorLog{}
	}
	return SuccessResponse(c, LogPage{Logs: logs, Total: total, Limit: limit, Offset: offset})
}

// ClearCache handles DELETE /connectors/cache
func (h *ConnectorHandler) ClearCache(c echo.Context) error {
	cleared := h.syncs.ClearCache()
	h.logger.WithContext(c.Request().Context()).Infof("Cleared %d cached connectors", cleared)
	return SuccessResponse(c, map[string]int{"cleared": cleared})
}

func (h *ConnectorHandler) setCredential(cfg *models.ConnectorConfig, plaintext string) error {
	if plaintext == "" {
		cfg.Credential = nil
		return nil
	}
	encrypted, err := h.encryptor.Encrypt(plaintext)
	if err != nil {
		return err
	}
	cfg.Credential = &encrypted
	return nil
}
