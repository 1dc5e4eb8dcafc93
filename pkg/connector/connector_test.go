package connector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

func TestProcurementConnector_FetchAndTransform(t *testing.T) {
	var query map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/contratos", r.URL.Path)
		query = map[string]string{
			"pagina":     r.URL.Query().Get("pagina"),
			"cantidad":   r.URL.Query().Get("cantidad"),
			"fechaDesde": r.URL.Query().Get("fechaDesde"),
		}
		_, _ = w.Write([]byte(`{
			"Cantidad": 41,
			"Listado": [{
				"Codigo": "1234-56-LE24",
				"Nombre": "Servicio de recolección de residuos",
				"Estado": "Vigente",
				"Total": "12.500.000",
				"Proveedor": {"Rut": "76.086.428-5", "Nombre": "Aseo Sur SpA"},
				"Fechas": {"FechaInicio": "01/03/2024", "FechaTermino": "2025-02-28"}
			}]
		}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.SourceType = models.SourceTypeProcurementRegistry
	conn, err := NewFactory(testLogger()).Build(cfg, "token")
	require.NoError(t, err)
	assert.Equal(t, models.EntityTypeContract, conn.EntityType())
	assert.Equal(t, "/estado", conn.HealthCheckEndpoint())

	from := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	page, err := conn.FetchPage(context.Background(), PageRequest{Page: 1, PageSize: 20, DateFrom: &from})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"pagina": "2", "cantidad": "20", "fechaDesde": "15-01-2024"}, query)
	require.Len(t, page.Records, 1)
	require.NotNil(t, page.Total)
	assert.Equal(t, 41, *page.Total)
	assert.Equal(t, "76.086.428-5", page.Records[0]["proveedor_rut"])

	results, err := conn.Transform(page.Records)
	require.NoError(t, err)
	require.Len(t, results, 1)

	contract, ok := results[0].Record.(*models.Contract)
	require.True(t, ok)
	assert.Equal(t, "1234-56-LE24", contract.ContractNumber)
	assert.Equal(t, "Servicio de recolección de residuos", contract.Title)
	assert.Equal(t, "active", contract.Status)
	require.NotNil(t, contract.Amount)
	assert.Equal(t, 12500000.0, *contract.Amount)
	require.NotNil(t, contract.SupplierTaxID)
	assert.Equal(t, "76086428-5", *contract.SupplierTaxID)
	require.NotNil(t, contract.StartDate)
	assert.Equal(t, "2024-03-01", contract.StartDate.Format(time.DateOnly))
}

func TestBudgetSourceConnector_OffsetPaging(t *testing.T) {
	var offset, limit, municipio string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset = r.URL.Query().Get("offset")
		limit = r.URL.Query().Get("limit")
		municipio = r.URL.Query().Get("municipio")
		_, _ = w.Write([]byte(`{"data":[{"subtitulo":"22","item":"Bienes y servicios","unidad_ejecutora":"Dideco","presupuesto_vigente":"1.500.000,50"}],"meta":{"total":1}}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.SourceType = models.SourceTypeBudgetSource
	cfg.Settings = database.NewJSONB(map[string]any{"municipality_code": "13101"})

	conn, err := NewFactory(testLogger()).Build(cfg, "token")
	require.NoError(t, err)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	page, err := conn.FetchPage(context.Background(), PageRequest{Page: 2, PageSize: 50, DateFrom: &from})
	require.NoError(t, err)
	assert.Equal(t, "100", offset)
	assert.Equal(t, "50", limit)
	assert.Equal(t, "13101", municipio)

	results, err := conn.Transform(page.Records)
	require.NoError(t, err)
	budget := results[0].Record.(*models.Budget)
	require.NotNil(t, budget.FiscalYear)
	assert.Equal(t, 2024, *budget.FiscalYear)
	assert.Equal(t, "22", budget.Category)
	assert.Equal(t, "Dideco", budget.Department)
	require.NotNil(t, budget.ApprovedAmount)
	assert.InDelta(t, 1500000.50, *budget.ApprovedAmount, 0.001)
}

func TestBudgetSourceConnector_KeepsFeedFiscalYear(t *testing.T) {
	tests := []struct {
		name   string
		record string
		want   int
	}{
		{"ejercicio", `{"ejercicio":2023,"subtitulo":"22","unidad_ejecutora":"Dideco"}`, 2023},
		{"year", `{"year":"2022","subtitulo":"22","unidad_ejecutora":"Dideco"}`, 2022},
		{"accented header", `{"Año":2021,"subtitulo":"22","unidad_ejecutora":"Dideco"}`, 2021},
		{"capitalized anio", `{"Anio":2020,"subtitulo":"22","unidad_ejecutora":"Dideco"}`, 2020},
		{"missing uses window", `{"subtitulo":"22","unidad_ejecutora":"Dideco"}`, 2024},
		{"blank uses window", `{"ejercicio":"","subtitulo":"22","unidad_ejecutora":"Dideco"}`, 2024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"data":[` + tt.record + `],"meta":{"total":1}}`))
			}))
			defer server.Close()

			cfg := testConfig(server.URL)
			cfg.SourceType = models.SourceTypeBudgetSource
			conn, err := NewFactory(testLogger()).Build(cfg, "token")
			require.NoError(t, err)

			from := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
			page, err := conn.FetchPage(context.Background(), PageRequest{Page: 1, PageSize: 10, DateFrom: &from})
			require.NoError(t, err)

			results, err := conn.Transform(page.Records)
			require.NoError(t, err)
			require.Len(t, results, 1)
			budget := results[0].Record.(*models.Budget)
			require.NotNil(t, budget.FiscalYear)
			assert.Equal(t, tt.want, *budget.FiscalYear)
		})
	}
}

func TestRestFeedConnector(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "3", r.URL.Query().Get("page"))
		_, _ = w.Write([]byte(`{"result":{"suppliers":[{"rut":"11111111-1","razon_social":"Ferretería  Central"}]}}`))
	}))
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.Settings = database.NewJSONB(map[string]any{
		"endpoint":     "/v1/proveedores",
		"entity_type":  "suppliers",
		"records_path": "result.suppliers",
	})

	conn, err := NewFactory(testLogger()).Build(cfg, "token")
	require.NoError(t, err)
	assert.Equal(t, models.EntityTypeSupplier, conn.EntityType())

	page, err := conn.FetchPage(context.Background(), PageRequest{Page: 2, PageSize: 10})
	require.NoError(t, err)
	results, err := conn.Transform(page.Records)
	require.NoError(t, err)

	supplier := results[0].Record.(*models.Supplier)
	assert.Equal(t, "Ferretería Central", supplier.Name)
	assert.NotEmpty(t, results[0].Warnings)
}

func TestRestFeedConnector_Settings(t *testing.T) {
	cfg := testConfig("https://api.example.cl")

	_, err := NewFactory(testLogger()).Build(cfg, "token")
	assert.ErrorIs(t, err, ErrMissingSetting)

	cfg.Settings = database.NewJSONB(map[string]any{"endpoint": "/x", "entity_type": "invoices"})
	_, err = NewFactory(testLogger()).Build(cfg, "token")
	assert.ErrorIs(t, err, ErrMissingSetting)

	cfg.Settings = database.NewJSONB(map[string]any{"endpoint": "/x", "entity_type": "budget", "pagination": "cursor"})
	_, err = NewFactory(testLogger()).Build(cfg, "token")
	assert.Error(t, err)
}

func TestFactory_UnsupportedSourceType(t *testing.T) {
	cfg := testConfig("https://api.example.cl")
	cfg.SourceType = "ftp"
	_, err := NewFactory(testLogger()).Build(cfg, "")
	assert.ErrorIs(t, err, ErrUnsupportedSourceType)
}

func TestExtract_UnexpectedPayload(t *testing.T) {
	s := &source{recordsPath: "data"}

	_, err := s.extract(map[string]any{"data": "nope"})
	assert.ErrorIs(t, err, ErrUnexpectedPayload)

	_, err = s.extract(map[string]any{"data": []any{1.0}})
	assert.ErrorIs(t, err, ErrUnexpectedPayload)

	page, err := s.extract(map[string]any{})
	require.NoError(t, err)
	assert.Empty(t, page.Records)
}
