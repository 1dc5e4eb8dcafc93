package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/connector"
	"github.com/Ramsey-B/fern/pkg/crypto"
	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/upload"
	"github.com/Ramsey-B/fern/pkg/validation"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeConnectors struct {
	items map[uuid.UUID]*models.ConnectorConfig
}

func (f *fakeConnectors) Create(_ context.Context, c *models.ConnectorConfig) error {
	f.items[c.ID] = c
	return nil
}

func (f *fakeConnectors) GetByID(_ context.Context, id uuid.UUID) (*models.ConnectorConfig, error) {
	c, ok := f.items[id]
	if !ok {
		return nil, repositories.NotFound("connector %s not found", id)
	}
	cp := *c
	return &cp, nil
}

func (f *fakeConnectors) GetByName(_ context.Context, name string) (*models.ConnectorConfig, error) {
	for _, c := range f.items {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, repositories.NotFound("connector %s not found", name)
}

func (f *fakeConnectors) List(_ context.Context) ([]models.ConnectorConfig, error) {
	out := []models.ConnectorConfig{}
	for _, c := range f.items {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakeConnectors) Update(_ context.Context, c *models.ConnectorConfig) error {
	f.items[c.ID] = c
	return nil
}

func (f *fakeConnectors) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := f.items[id]; !ok {
		return repositories.NotFound("connector %s not found", id)
	}
	delete(f.items, id)
	return nil
}

func (f *fakeConnectors) MarkSynced(context.Context, uuid.UUID, time.Time) error { return nil }

type fakeLogs struct {
	logs          []models.ConnectorLog
	limit, offset int
}

func (f *fakeLogs) Create(_ context.Context, l *models.ConnectorLog) error {
	f.logs = append(f.logs, *l)
	return nil
}

func (f *fakeLogs) ListByConnector(_ context.Context, _ uuid.UUID, limit, offset int) ([]models.ConnectorLog, int, error) {
	f.limit, f.offset = limit, offset
	return f.logs, len(f.logs), nil
}

func (f *fakeLogs) DeleteOlderThan(context.Context, time.Time) (int64, error) { return 0, nil }

type fakeSyncs struct {
	invalidated []uuid.UUID
	connected   bool
	testErr     error
	response    *connector.Response
	requestErr  error
	lastOpts    models.SyncOptions
}

func (f *fakeSyncs) SyncData(_ context.Context, id uuid.UUID, opts models.SyncOptions) *models.SyncResult {
	f.lastOpts = opts
	return &models.SyncResult{Success: true, ConnectorID: id, EntityType: opts.EntityType, RecordsFetched: 2, RecordsInserted: 2, Errors: []models.RecordError{}}
}

func (f *fakeSyncs) TestConnection(context.Context, uuid.UUID) (bool, error) {
	return f.connected, f.testErr
}

func (f *fakeSyncs) ExecuteRequest(context.Context, uuid.UUID, connector.Request) (*connector.Response, error) {
	return f.response, f.requestErr
}

func (f *fakeSyncs) Invalidate(id uuid.UUID) { f.invalidated = append(f.invalidated, id) }

func (f *fakeSyncs) ClearCache() int { return 3 }

type fakeUploader struct {
	entityType     models.EntityType
	file           upload.File
	municipalityID uuid.UUID
}

func (f *fakeUploader) Upload(_ context.Context, entityType models.EntityType, file upload.File, municipalityID uuid.UUID) (*models.UploadResult, error) {
	f.entityType, f.file, f.municipalityID = entityType, file, municipalityID
	return &models.UploadResult{TotalRecords: 1, SuccessfulInserts: 1, Errors: []models.UploadRowError{}}, nil
}

type server struct {
	echo       *echo.Echo
	connectors *fakeConnectors
	logs       *fakeLogs
	syncs      *fakeSyncs
	uploader   *fakeUploader
	encryptor  crypto.Encryptor
}

func newServer(t *testing.T) *server {
	t.Helper()
	logger := testLogger()

	encryptor, err := crypto.NewAESEncryptor("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	s := &server{
		echo:       echo.New(),
		connectors: &fakeConnectors{items: map[uuid.UUID]*models.ConnectorConfig{}},
		logs:       &fakeLogs{},
		syncs:      &fakeSyncs{connected: true},
		uploader:   &fakeUploader{},
		encryptor:  encryptor,
	}
	s.echo.HTTPErrorHandler = middleware.Error(logger)
	s.echo.Use(middleware.Context())

	api := s.echo.Group("/api/v1")
	NewConnectorHandler(s.connectors, s.logs, encryptor, s.syncs, logger).RegisterRoutes(api)
	NewEngineHandler(validation.NewEngine(logger, nil), logger).RegisterRoutes(api)
	NewUploadHandler(s.uploader, 1024, logger).RegisterRoutes(api)
	return s
}

func (s *server) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *server) seed() *models.ConnectorConfig {
	cfg := &models.ConnectorConfig{
		ID:         uuid.New(),
		Name:       "mercado publico",
		SourceType: models.SourceTypeProcurementRegistry,
		BaseURL:    "https://api.example.cl",
		AuthType:   models.AuthTypeAPIKey,
		TimeoutMs:  models.DefaultConnectorTimeoutMs,
		Active:     true,
	}
	s.connectors.items[cfg.ID] = cfg
	return cfg
}

func TestConnectorCreate(t *testing.T) {
	s := newServer(t)

	rec := s.do(http.MethodPost, "/api/v1/connectors", map[string]any{
		"name":        "presupuestos",
		"source_type": "budget_source",
		"base_url":    "https://budgets.example.cl",
		"credential":  "secret-token",
		"auth_type":   "bearer",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "secret-token")

	created := decode[models.ConnectorConfig](t, rec)
	stored := s.connectors.items[created.ID]
	require.NotNil(t, stored)
	require.NotNil(t, stored.Credential)
	assert.NotEqual(t, "secret-token", *stored.Credential)

	plain, err := s.encryptor.Decrypt(*stored.Credential)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", plain)
	assert.Equal(t, models.DefaultConnectorTimeoutMs, stored.TimeoutMs)
	assert.Equal(t, models.DefaultConnectorRetryCount, stored.RetryCount)
	assert.True(t, stored.Active)
}

func TestConnectorCreateValidation(t *testing.T) {
	s := newServer(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"missing name", map[string]any{"source_type": "rest_feed", "base_url": "https://x.cl"}},
		{"bad source type", map[string]any{"name": "x", "source_type": "ftp", "base_url": "https://x.cl"}},
		{"bad url", map[string]any{"name": "x", "source_type": "rest_feed", "base_url": "not a url"}},
		{"retry out of range", map[string]any{"name": "x", "source_type": "rest_feed", "base_url": "https://x.cl", "retry_count": 50}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/api/v1/connectors", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
	assert.Empty(t, s.connectors.items)
}

func TestConnectorUpdateInvalidatesCache(t *testing.T) {
	s := newServer(t)
	cfg := s.seed()

	rec := s.do(http.MethodPut, "/api/v1/connectors/"+cfg.ID.String(), map[string]any{
		"retry_count": 5,
		"active":      false,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	stored := s.connectors.items[cfg.ID]
	assert.Equal(t, 5, stored.RetryCount)
	assert.False(t, stored.Active)
	assert.Equal(t, "mercado publico", stored.Name)
	assert.Equal(t, []uuid.UUID{cfg.ID}, s.syncs.invalidated)
}

func TestConnectorGetAndDelete(t *testing.T) {
	s := newServer(t)
	cfg := s.seed()

	rec := s.do(http.MethodGet, "/api/v1/connectors/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/connectors/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/connectors/"+cfg.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, cfg.Name, decode[models.ConnectorConfig](t, rec).Name)

	rec = s.do(http.MethodDelete, "/api/v1/connectors/"+cfg.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, s.connectors.items)
	assert.Equal(t, []uuid.UUID{cfg.ID}, s.syncs.invalidated)
}

func TestConnectorTest(t *testing.T) {
	s := newServer(t)
	cfg := s.seed()

	rec := s.do(http.MethodPost, "/api/v1/connectors/"+cfg.ID.String()+"/test", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]bool{"connected": true}, decode[map[string]bool](t, rec))

	s.syncs.testErr = repositories.NotFound("connector %s not found", cfg.ID)
	rec = s.do(http.MethodPost, "/api/v1/connectors/"+cfg.ID.String()+"/test", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestConnectorSync(t *testing.T) {
	s := newServer(t)
	cfg := s.seed()

	rec := s.do(http.MethodPost, "/api/v1/connectors/"+cfg.ID.String()+"/sync", map[string]any{
		"entity_type": "contract",
		"batch_size":  50,
		"validate":    true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[models.SyncResult](t, rec)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.RecordsInserted)
	assert.Equal(t, models.EntityTypeContract, s.syncs.lastOpts.EntityType)
	assert.Equal(t, 50, s.syncs.lastOpts.BatchSize)
	assert.True(t, s.syncs.lastOpts.Validate)

	rec = s.do(http.MethodPost, "/api/v1/connectors/"+cfg.ID.String()+"/sync", map[string]any{"batch_size": 5000})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConnectorRequest(t *testing.T) {
	s := newServer(t)
	cfg := s.seed()
	path := "/api/v1/connectors/" + cfg.ID.String() + "/request"

	t.Run("success", func(t *testing.T) {
		s.syncs.response = &connector.Response{Success: true, StatusCode: 200, Data: map[string]any{"ok": true}, Attempts: 1}
		s.syncs.requestErr = nil

		rec := s.do(http.MethodPost, path, map[string]any{"endpoint": "/licitaciones"})
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[connector.Response](t, rec)
		assert.True(t, resp.Success)
		assert.Equal(t, 1, resp.Attempts)
	})

	t.Run("upstream failure still returns the response", func(t *testing.T) {
		s.syncs.response = &connector.Response{Success: false, StatusCode: 503, Error: "HTTP 503: down", Attempts: 4}
		s.syncs.requestErr = &fernerrors.SourceError{Kind: fernerrors.KindTransient, StatusCode: 503, Body: "down"}

		rec := s.do(http.MethodPost, path, map[string]any{"endpoint": "/licitaciones"})
		require.Equal(t, http.StatusOK, rec.Code)
		resp := decode[connector.Response](t, rec)
		assert.False(t, resp.Success)
		assert.Equal(t, 503, resp.StatusCode)
	})

	t.Run("no response", func(t *testing.T) {
		s.syncs.response = nil
		s.syncs.requestErr = repositories.NotFound("connector %s not found", cfg.ID)

		rec := s.do(http.MethodPost, path, map[string]any{"endpoint": "/licitaciones"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("endpoint required", func(t *testing.T) {
		rec := s.do(http.MethodPost, path, map[string]any{"method": "GET"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestConnectorLogs(t *testing.T) {
	s := newServer(t)
	cfg := s.seed()
	s.logs.logs = []models.ConnectorLog{{ID: uuid.New(), ConnectorID: cfg.ID, Endpoint: "/a", Method: "GET", Attempt: 1}}

	rec := s.do(http.MethodGet, "/api/v1/connectors/"+cfg.ID.String()+"/logs", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[LogPage](t, rec)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, defaultLogPageSize, page.Limit)
	assert.Equal(t, 0, page.Offset)

	rec = s.do(http.MethodGet, "/api/v1/connectors/"+cfg.ID.String()+"/logs?limit=9000&offset=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxLogPageSize, s.logs.limit)
	assert.Equal(t, 10, s.logs.offset)

	rec = s.do(http.MethodGet, "/api/v1/connectors/"+cfg.ID.String()+"/logs?limit=ten", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConnectorClearCache(t *testing.T) {
	s := newServer(t)

	rec := s.do(http.MethodDelete, "/api/v1/connectors/cache", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"cleared": 3}, decode[map[string]int](t, rec))
}

func TestValidateEndpoint(t *testing.T) {
	s := newServer(t)

	tests := []struct {
		name       string
		data       map[string]any
		wantFields []string
	}{
		{
			name:       "range checked once required fields are present",
			data:       map[string]any{"category": "Educación", "department": "DAEM", "fiscal_year": 1700},
			wantFields: []string{"fiscal_year"},
		},
		{
			name:       "missing required field short-circuits",
			data:       map[string]any{"category": "Educación", "fiscal_year": 1700},
			wantFields: []string{"department"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/api/v1/validate/budgets", map[string]any{
				"data":              tt.data,
				"skip_foreign_keys": true,
			}, middleware.HeaderMunicipalityID, uuid.NewString())
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			result := decode[models.ValidationResult](t, rec)
			assert.False(t, result.Valid)
			fields := []string{}
			for _, e := range result.Errors {
				fields = append(fields, e.Field)
			}
			assert.Equal(t, tt.wantFields, fields)
		})
	}

	rec := s.do(http.MethodPost, "/api/v1/validate/invoices", map[string]any{"data": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestTransformEndpoint(t *testing.T) {
	s := newServer(t)

	rec := s.do(http.MethodPost, "/api/v1/transform/budget", map[string]any{
		"records": []map[string]any{
			{"Categoría": "  Salud ", "Año": "2024", "Monto": "1.234.567,50"},
			{"categoria": "Obras", "ano": "2024", "monto": "mucho"},
		},
		"thousands_separator": ".",
		"decimal_separator":   ",",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode[struct {
		Results []TransformedRecord `json:"results"`
	}](t, rec)
	require.Len(t, body.Results, 2)
	assert.Equal(t, "Salud", body.Results[0].Record["category"])
	assert.InDelta(t, 1234567.5, body.Results[0].Record["approved_amount"], 0.001)
	assert.Nil(t, body.Results[1].Record["approved_amount"])
	assert.NotEmpty(t, body.Results[1].Warnings)

	rec = s.do(http.MethodPost, "/api/v1/transform/budget", map[string]any{
		"records":  []map[string]any{{"a": 1}},
		"mappings": []map[string]any{{"source": "a", "target": "amount", "transform": "no_such_transform"}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func multipartBody(t *testing.T, fileName, content string, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileName != "" {
		part, err := w.CreateFormFile(uploadFormField, fileName)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf, w.FormDataContentType()
}

func TestUploadEndpoints(t *testing.T) {
	muni := uuid.New()

	tests := []struct {
		name       string
		path       string
		fileName   string
		content    string
		header     string
		fields     map[string]string
		wantStatus int
		wantType   models.EntityType
	}{
		{"budgets via header", "/api/v1/uploads/budgets", "b.csv", "category,amount\nSalud,1\n", muni.String(), nil, http.StatusOK, models.EntityTypeBudget},
		{"expenditures via form", "/api/v1/uploads/expenditures", "e.csv", "description\nx\n", "", map[string]string{"municipality_id": muni.String()}, http.StatusOK, models.EntityTypeExpenditure},
		{"projects", "/api/v1/uploads/projects", "p.json", "[]", muni.String(), nil, http.StatusOK, models.EntityTypeProject},
		{"missing file", "/api/v1/uploads/budgets", "", "", muni.String(), nil, http.StatusBadRequest, ""},
		{"missing municipality", "/api/v1/uploads/budgets", "b.csv", "a\n1\n", "", nil, http.StatusBadRequest, ""},
		{"bad municipality", "/api/v1/uploads/budgets", "b.csv", "a\n1\n", "", map[string]string{"municipality_id": "nope"}, http.StatusBadRequest, ""},
		{"too large", "/api/v1/uploads/budgets", "b.csv", strings.Repeat("x", 2048), muni.String(), nil, http.StatusRequestEntityTooLarge, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(t)
			body, contentType := multipartBody(t, tt.fileName, tt.content, tt.fields)

			req := httptest.NewRequest(http.MethodPost, tt.path, body)
			req.Header.Set(echo.HeaderContentType, contentType)
			if tt.header != "" {
				req.Header.Set(middleware.HeaderMunicipalityID, tt.header)
			}
			rec := httptest.NewRecorder()
			s.echo.ServeHTTP(rec, req)

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantStatus != http.StatusOK {
				assert.Empty(t, s.uploader.entityType)
				return
			}
			assert.Equal(t, tt.wantType, s.uploader.entityType)
			assert.Equal(t, muni, s.uploader.municipalityID)
			assert.Equal(t, tt.fileName, s.uploader.file.Name)
			assert.Equal(t, tt.content, string(s.uploader.file.Data))
		})
	}
}

func TestQueryInt(t *testing.T) {
	e := echo.New()
	for _, tt := range []struct {
		query string
		want  int
	}{
		{"", 7},
		{"limit=3", 3},
		{"limit=0", 1},
		{"limit=99", 10},
	} {
		req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
		c := e.NewContext(req, httptest.NewRecorder())
		got, err := QueryInt(c, "limit", 7, 1, 10)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, fmt.Sprintf("query %q", tt.query))
	}
}
