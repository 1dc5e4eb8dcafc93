package handlers

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	appctx "github.com/Ramsey-B/fern/pkg/context"
	"github.com/Ramsey-B/fern/pkg/models"
)

// ParseUUID parses a UUID from a path parameter
func ParseUUID(c echo.Context, param string) (uuid.UUID, error) {
	idStr := c.Param(param)
	if idStr == "" {
		return uuid.Nil, httperror.NewHTTPError(http.StatusBadRequest, "missing "+param)
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s: must be a valid UUID", param)
	}

	return id, nil
}

// ParseEntityType parses the :entityType path parameter
func ParseEntityType(c echo.Context) (models.EntityType, error) {
	entityType, err := models.ParseEntityType(c.Param("entityType"))
	if err != nil {
		return "", BadRequest(err.Error())
	}
	return entityType, nil
}

// GetMunicipalityID resolves the owning municipality from the X-Municipality-ID
// header, falling back to the municipality_id form value.
func GetMunicipalityID(c echo.Context) (uuid.UUID, error) {
	if id, ok := appctx.GetMunicipalityUUID(c.Request().Context()); ok {
		return id, nil
	}

	raw := c.FormValue("municipality_id")
	if raw == "" {
		return uuid.Nil, BadRequest("municipality is required: set the X-Municipality-ID header or the municipality_id field")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, BadRequest("invalid municipality_id: must be a valid UUID")
	}
	return id, nil
}

// QueryInt reads an integer query parameter, clamped to [min, max].
func QueryInt(c echo.Context, name string, fallback, min, max int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid %s: must be an integer", name)
	}
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}
	return v, nil
}

// SuccessResponse returns a 200 OK with data
func SuccessResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, data)
}

// CreatedResponse returns a 201 Created with data
func CreatedResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusCreated, data)
}

// NoContentResponse returns a 204 No Content
func NoContentResponse(c echo.Context) error {
	return c.NoContent(http.StatusNoContent)
}

// BadRequest returns a 400 Bad Request error
func BadRequest(message string) error {
	return httperror.NewHTTPError(http.StatusBadRequest, message)
}
