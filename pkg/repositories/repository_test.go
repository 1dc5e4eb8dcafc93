package repositories_test

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/database"
	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/repositories"
	"github.com/Ramsey-B/fern/pkg/validation"
)

func getTestLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func getTestDB(t *testing.T) database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	conn, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")
	t.Cleanup(func() { _ = conn.Close() })

	db := database.NewDatabaseInstance(conn, getTestLogger())
	migrations := database.NewMigrationService(getTestLogger(), &database.MigrationConfig{MigrationFolderPath: "../../db/pg"})
	require.NoError(t, migrations.MigratePostgres(db))
	return db
}

func createMunicipality(t *testing.T, db database.DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.ExecContext(context.Background(), "INSERT INTO municipalities (id, name) VALUES ($1, $2)", id, "Test "+id.String()[:8])
	require.NoError(t, err)
	return id
}

// assertNotFound asserts that err is an HTTP 404 error
func assertNotFound(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err), "expected HTTP error, got: %v", err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}

func ptr[T any](v T) *T { return &v }

func TestConnectorRepository_CRUD(t *testing.T) {
	db := getTestDB(t)
	repo := repositories.NewConnectorRepository(db, getTestLogger())
	ctx := context.Background()

	connector := &models.ConnectorConfig{
		Name:       "registry-" + uuid.NewString(),
		SourceType: models.SourceTypeProcurementRegistry,
		BaseURL:    "https://api.example.cl",
		Credential: ptr("ciphertext"),
		AuthType:   models.AuthTypeBearer,
		AuthParams: database.NewJSONB(map[string]string{}),
		Headers:    database.NewJSONB(map[string]string{"Accept": "application/json"}),
		Settings:   database.NewJSONB(map[string]any{"page_size": float64(50)}),
		TimeoutMs:  5000,
		RetryCount: 2,
		Active:     true,
	}
	require.NoError(t, repo.Create(ctx, connector))
	assert.NotEqual(t, uuid.Nil, connector.ID)
	assert.False(t, connector.CreatedAt.IsZero())

	t.Run("duplicate name conflicts", func(t *testing.T) {
		dup := *connector
		dup.ID = uuid.Nil
		err := repo.Create(ctx, &dup)
		require.Error(t, err)
		assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
	})

	got, err := repo.GetByID(ctx, connector.ID)
	require.NoError(t, err)
	assert.Equal(t, connector.Name, got.Name)
	assert.Equal(t, "application/json", got.Headers.Data["Accept"])

	byName, err := repo.GetByName(ctx, connector.Name)
	require.NoError(t, err)
	assert.Equal(t, connector.ID, byName.ID)

	connector.RetryCount = 5
	require.NoError(t, repo.Update(ctx, connector))

	synced := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.MarkSynced(ctx, connector.ID, synced))

	got, err = repo.GetByID(ctx, connector.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.RetryCount)
	require.NotNil(t, got.LastSyncAt)
	assert.True(t, synced.Equal(got.LastSyncAt.UTC()))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, list)

	require.NoError(t, repo.Delete(ctx, connector.ID))
	_, err = repo.GetByID(ctx, connector.ID)
	assertNotFound(t, err)
	assertNotFound(t, repo.Delete(ctx, connector.ID))
}

func TestConnectorLogRepository(t *testing.T) {
	db := getTestDB(t)
	connectors := repositories.NewConnectorRepository(db, getTestLogger())
	logs := repositories.NewConnectorLogRepository(db, getTestLogger())
	ctx := context.Background()

	connector := &models.ConnectorConfig{
		Name:       "feed-" + uuid.NewString(),
		SourceType: models.SourceTypeRestFeed,
		BaseURL:    "https://feed.example.cl",
		AuthType:   models.AuthTypeNone,
		Active:     true,
	}
	require.NoError(t, connectors.Create(ctx, connector))

	for i := 1; i <= 3; i++ {
		require.NoError(t, logs.Create(ctx, &models.ConnectorLog{
			ConnectorID:    connector.ID,
			Endpoint:       "/items",
			Method:         http.MethodGet,
			Attempt:        i,
			ResponseStatus: ptr(http.StatusOK),
			DurationMs:     12,
		}))
	}

	page, total, err := logs.ListByConnector(ctx, connector.ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 2)

	deleted, err := logs.DeleteOlderThan(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deleted, int64(3))
}

func TestRecordRepository_NaturalKeyUpsert(t *testing.T) {
	db := getTestDB(t)
	repo := repositories.NewRecordRepository(db, getTestLogger())
	ctx := context.Background()
	municipalityID := createMunicipality(t, db)

	budget := &models.Budget{
		MunicipalityID: &municipalityID,
		FiscalYear:     ptr(2024),
		Category:       "Salud",
		Department:     "DIDECO",
		ApprovedAmount: ptr(1500000.0),
		Currency:       "CLP",
	}

	existing, err := repo.FindExisting(ctx, budget)
	require.NoError(t, err)
	assert.Nil(t, existing)

	id, err := repo.Create(ctx, budget)
	require.NoError(t, err)

	existing, err = repo.FindExisting(ctx, budget)
	require.NoError(t, err)
	require.NotNil(t, existing)
	assert.Equal(t, id, *existing)

	budget.ApprovedAmount = ptr(2000000.0)
	require.NoError(t, repo.Update(ctx, id, budget))
	assertNotFound(t, repo.Update(ctx, uuid.New(), budget))

	count, err := repo.Count(ctx, models.EntityTypeBudget, &municipalityID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	t.Run("expenditure without document number never matches", func(t *testing.T) {
		exp := &models.Expenditure{MunicipalityID: &municipalityID, Concept: "Compra", Amount: ptr(10.0), Currency: "CLP"}
		found, err := repo.FindExisting(ctx, exp)
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("duplicate contract number is a duplicate key error", func(t *testing.T) {
		contract := &models.Contract{ContractNumber: "C-" + uuid.NewString(), Title: "Aseo", Amount: ptr(100.0), Currency: "CLP", Status: "pending"}
		_, err := repo.Create(ctx, contract)
		require.NoError(t, err)
		_, err = repo.Create(ctx, contract)
		assert.True(t, fernerrors.IsDuplicateKey(err), "got %v", err)
	})
}

func TestLookupRepository_CreatesOnDemand(t *testing.T) {
	db := getTestDB(t)
	repo := repositories.NewLookupRepository(db, getTestLogger())
	ctx := context.Background()
	municipalityID := createMunicipality(t, db)

	first, err := repo.FiscalYearID(ctx, municipalityID, 2025)
	require.NoError(t, err)
	again, err := repo.FiscalYearID(ctx, municipalityID, 2025)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	taxID := "7" + uuid.NewString()[:7] + "-K"
	supplier, err := repo.SupplierID(ctx, &taxID, "Constructora Sur")
	require.NoError(t, err)
	byTax, err := repo.SupplierID(ctx, &taxID, "Another Name")
	require.NoError(t, err)
	assert.Equal(t, supplier, byTax)

	name := "Proveedor " + uuid.NewString()
	byName, err := repo.SupplierID(ctx, nil, name)
	require.NoError(t, err)
	sameName, err := repo.SupplierID(ctx, nil, name)
	require.NoError(t, err)
	assert.Equal(t, byName, sameName)

	source, err := repo.FundingSourceID(ctx, "FNDR "+uuid.NewString())
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, source)

	refs := repositories.NewReferenceRepository(db, getTestLogger())
	ok, err := refs.Exists(ctx, validation.RefMunicipality, municipalityID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = refs.Exists(ctx, validation.RefSupplier, uuid.New())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTxManager_RollsBackOnError(t *testing.T) {
	db := getTestDB(t)
	tx := repositories.NewTxManager(db, getTestLogger())
	records := repositories.NewRecordRepository(db, getTestLogger())
	ctx := context.Background()
	municipalityID := createMunicipality(t, db)

	err := tx.WithinTransaction(ctx, func(ctx context.Context) error {
		project := &models.Project{MunicipalityID: &municipalityID, Name: "Plaza", Status: "planned", Budget: ptr(1.0), Currency: "CLP"}
		if _, err := records.Create(ctx, project); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	count, err := records.Count(ctx, models.EntityTypeProject, &municipalityID)
	require.NoError(t, err)
	assert.Zero(t, count)

	t.Run("savepoint isolates a failing statement", func(t *testing.T) {
		code := "P-" + uuid.NewString()[:8]
		err := tx.WithinTransaction(ctx, func(ctx context.Context) error {
			project := &models.Project{MunicipalityID: &municipalityID, Code: &code, Name: "Parque", Status: "planned", Budget: ptr(1.0), Currency: "CLP"}
			if _, err := records.Create(ctx, project); err != nil {
				return err
			}
			dupErr := tx.WithinSavepoint(ctx, func(ctx context.Context) error {
				_, err := records.Create(ctx, project)
				return err
			})
			assert.True(t, fernerrors.IsDuplicateKey(dupErr), "got %v", dupErr)
			return nil
		})
		require.NoError(t, err)

		count, err := records.Count(ctx, models.EntityTypeProject, &municipalityID)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}
