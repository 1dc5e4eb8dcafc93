package handlers

import (
	"errors"
	"math"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/transform"
	"github.com/Ramsey-B/fern/pkg/utils"
	"github.com/Ramsey-B/fern/pkg/validation"
)

// EngineHandler exposes the transformation and validation engines directly,
// for operators previewing how source data will be read.
type EngineHandler struct {
	validator *validation.Engine
	logger    ectologger.Logger
}

func NewEngineHandler(validator *validation.Engine, logger ectologger.Logger) *EngineHandler {
	return &EngineHandler{validator: validator, logger: logger}
}

// ValidateRequest is the request body for validating one record
type ValidateRequest struct {
	Data            map[string]any `json:"data" validate:"required"`
	MunicipalityID  *uuid.UUID     `json:"municipality_id"`
	SkipForeignKeys bool           `json:"skip_foreign_keys"`
}

// TransformRequest is the request body for transforming a batch of raw records
type TransformRequest struct {
	Records            []map[string]any         `json:"records" validate:"required,max=1000"`
	Mappings           []transform.FieldMapping `json:"mappings"`
	Aliases            map[string]string        `json:"aliases"`
	ThousandsSeparator string                   `json:"thousands_separator" validate:"omitempty,max=1"`
	DecimalSeparator   string                   `json:"decimal_separator" validate:"omitempty,max=1"`
}

// TransformedRecord is one transformed record as returned to the caller
type TransformedRecord struct {
	Record   map[string]any                 `json:"record"`
	Warnings []models.TransformationWarning `json:"warnings"`
}

// RegisterRoutes registers the engine routes
func (h *EngineHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/validate/:entityType", h.Validate)
	g.POST("/transform/:entityType", h.Transform)
}

// Validate handles POST /validate/:entityType
func (h *EngineHandler) Validate(c echo.Context) error {
	ctx := c.Request().Context()

	entityType, err := ParseEntityType(c)
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[ValidateRequest](c)
	if err != nil {
		return err
	}

	vctx := validation.Context{MunicipalityID: req.MunicipalityID, SkipForeignKeys: req.SkipForeignKeys}
	if vctx.MunicipalityID == nil {
		if id, ok := appctx.GetMunicipalityUUID(ctx); ok {
			vctx.MunicipalityID = &id
		}
	}

	result, err := h.validator.ValidateEntity(ctx, entityType, req.Data, vctx)
	if err != nil {
		if errors.Is(err, validation.ErrUnsupportedEntityType) {
			return BadRequest(err.Error())
		}
		return err
	}
	return SuccessResponse(c, result)
}

// Transform handles POST /transform/:entityType
func (h *EngineHandler) Transform(c echo.Context) error {
	entityType, err := ParseEntityType(c)
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[TransformRequest](c)
	if err != nil {
		return err
	}

	cfg := &transform.Config{
		Mappings: req.Mappings,
		Aliases:  req.Aliases,
		Separators: transform.Separators{
			Thousands: req.ThousandsSeparator,
			Decimal:   req.DecimalSeparator,
		},
	}

	results, err := transform.TransformBatch(entityType, req.Records, cfg)
	if err != nil {
		return BadRequest(err.Error())
	}

	out := ectolinq.Map(results, func(r models.TransformationResult) TransformedRecord {
		return TransformedRecord{Record: renderable(r.Record.Fields()), Warnings: r.Warnings}
	})

	h.logger.WithContext(c.Request().Context()).WithField("entity_type", entityType).Debugf("Transformed %d records", len(out))
	return SuccessResponse(c, map[string]any{"results": out})
}

// renderable drops non-finite amounts, which have no JSON form. The warning
// for the field still carries the original value.
func renderable(fields map[string]any) map[string]any {
	for k, v := range fields {
		if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			fields[k] = nil
		}
	}
	return fields
}
