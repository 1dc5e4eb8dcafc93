package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/upload"
)

const uploadFormField = "file"

// Uploader ingests one parsed file for a municipality.
type Uploader interface {
	Upload(ctx context.Context, entityType models.EntityType, file upload.File, municipalityID uuid.UUID) (*models.UploadResult, error)
}

// UploadHandler handles bulk file uploads
type UploadHandler struct {
	uploader Uploader
	maxBytes int64
	logger   ectologger.Logger
}

func NewUploadHandler(uploader Uploader, maxBytes int64, logger ectologger.Logger) *UploadHandler {
	return &UploadHandler{uploader: uploader, maxBytes: maxBytes, logger: logger}
}

// RegisterRoutes registers the upload routes
func (h *UploadHandler) RegisterRoutes(g *echo.Group) {
	uploads := g.Group("/uploads")
	uploads.POST("/budgets", h.handle(models.EntityTypeBudget))
	uploads.POST("/expenditures", h.handle(models.EntityTypeExpenditure))
	uploads.POST("/projects", h.handle(models.EntityTypeProject))
}

func (h *UploadHandler) handle(entityType models.EntityType) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()

		header, err := c.FormFile(uploadFormField)
		if err != nil {
			return BadRequest("missing multipart file field \"" + uploadFormField + "\"")
		}
		if header.Size > h.maxBytes {
			return httperror.NewHTTPErrorf(http.StatusRequestEntityTooLarge, "file %s exceeds the %d byte upload limit", header.Filename, h.maxBytes)
		}

		municipalityID, err := GetMunicipalityID(c)
		if err != nil {
			return err
		}

		src, err := header.Open()
		if err != nil {
			return err
		}
		defer src.Close()

		data, err := io.ReadAll(io.LimitReader(src, h.maxBytes+1))
		if err != nil {
			return err
		}
		if int64(len(data)) > h.maxBytes {
			return httperror.NewHTTPErrorf(http.StatusRequestEntityTooLarge, "file %s exceeds the %d byte upload limit", header.Filename, h.maxBytes)
		}

		file := upload.File{
			Name:     header.Filename,
			MimeType: header.Header.Get(echo.HeaderContentType),
			Data:     data,
		}

		h.logger.WithContext(ctx).WithFields(map[string]any{
			"entity_type":     entityType,
			"file_name":       file.Name,
			"municipality_id": municipalityID,
			"bytes":           len(data),
		}).Info("Received upload")

		result, err := h.uploader.Upload(ctx, entityType, file, municipalityID)
		if err != nil {
			return err
		}
		return SuccessResponse(c, result)
	}
}
