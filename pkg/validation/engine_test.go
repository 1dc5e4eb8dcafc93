package validation

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

type fakeReferences struct {
	known map[uuid.UUID]bool
	err   error
	calls int
}

func (f *fakeReferences) Exists(_ context.Context, _ Reference, id uuid.UUID) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.known[id], nil
}

func newTestEngine(refs ReferenceChecker) *Engine {
	return NewEngine(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}), refs)
}

func constraints(errs []models.ValidationError) []models.ConstraintKind {
	out := make([]models.ConstraintKind, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Constraint)
	}
	return out
}

func TestValidateEntity_RequiredShortCircuit(t *testing.T) {
	engine := newTestEngine(nil)

	res, err := engine.ValidateEntity(context.Background(), models.EntityTypeBudget, map[string]any{
		"department":      "Obras",
		"currency":        "XXX",
		"approved_amount": -5.0,
	}, Context{})
	require.NoError(t, err)

	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 2)
	assert.Equal(t, "fiscal_year", res.Errors[0].Field)
	assert.Equal(t, "category", res.Errors[1].Field)
	assert.Equal(t, []models.ConstraintKind{models.ConstraintRequired, models.ConstraintRequired}, constraints(res.Errors))
}

func TestValidateEntity_AccumulatesViolations(t *testing.T) {
	engine := newTestEngine(nil)

	res, err := engine.ValidateEntity(context.Background(), models.EntityTypeBudget, map[string]any{
		"fiscal_year":     1850,
		"category":        "Salud",
		"department":      "Dirección de Salud",
		"currency":        "XXX",
		"approved_amount": -5.0,
	}, Context{})
	require.NoError(t, err)

	assert.False(t, res.Valid)
	assert.Equal(t, []models.ConstraintKind{models.ConstraintRange, models.ConstraintRange, models.ConstraintEnum}, constraints(res.Errors))
	assert.Equal(t, "fiscal_year", res.Errors[0].Field)
	assert.Equal(t, "approved_amount", res.Errors[1].Field)
	assert.Equal(t, "currency", res.Errors[2].Field)
	assert.NotEmpty(t, res.Errors[2].SuggestedFix)
}

func TestValidateEntity_Amounts(t *testing.T) {
	engine := newTestEngine(nil)
	base := func(amount any) map[string]any {
		return map[string]any{
			"fiscal_year": 2024,
			"date":        "2024-03-15",
			"concept":     "Compra de insumos",
			"amount":      amount,
		}
	}

	tests := []struct {
		name       string
		amount     any
		valid      bool
		constraint models.ConstraintKind
	}{
		{"positive", 1500.5, true, ""},
		{"numeric string", "2500", true, ""},
		{"zero", 0.0, false, models.ConstraintRange},
		{"negative", -1.0, false, models.ConstraintRange},
		{"NaN", math.NaN(), false, models.ConstraintType},
		{"garbage", "12abc", false, models.ConstraintType},
		{"over ceiling", 2e15, false, models.ConstraintRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := engine.ValidateEntity(context.Background(), models.EntityTypeExpenditure, base(tt.amount), Context{})
			require.NoError(t, err)
			assert.Equal(t, tt.valid, res.Valid)
			if !tt.valid {
				require.Len(t, res.Errors, 1)
				assert.Equal(t, "amount", res.Errors[0].Field)
				assert.Equal(t, tt.constraint, res.Errors[0].Constraint)
			}
		})
	}
}

func TestValidateEntity_ApprovedAmountMayBeZero(t *testing.T) {
	engine := newTestEngine(nil)

	res, err := engine.ValidateEntity(context.Background(), models.EntityTypeBudget, map[string]any{
		"fiscal_year":     2024,
		"category":        "Educación",
		"department":      "DAEM",
		"approved_amount": 0.0,
	}, Context{})
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Errors)
}

func TestValidateEntity_DateOrder(t *testing.T) {
	engine := newTestEngine(nil)

	res, err := engine.ValidateEntity(context.Background(), models.EntityTypeProject, map[string]any{
		"name":       "Pavimentación calle Los Aromos",
		"budget":     120000000.0,
		"status":     "in_progress",
		"start_date": "2024-06-01",
		"end_date":   "2024-01-31",
	}, Context{})
	require.NoError(t, err)

	assert.False(t, res.Valid)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, "end_date", res.Errors[0].Field)
	assert.Equal(t, models.ConstraintRange, res.Errors[0].Constraint)
}

func TestValidateEntity_TypeChecks(t *testing.T) {
	engine := newTestEngine(nil)

	res, err := engine.ValidateEntity(context.Background(), models.EntityTypeSupplier, map[string]any{
		"tax_id": "12.345.678-4",
		"name":   "C",
		"email":  "ventas-at-proveedor",
	}, Context{})
	require.NoError(t, err)

	assert.False(t, res.Valid)
	fields := map[string]models.ConstraintKind{}
	for _, e := range res.Errors {
		fields[e.Field] = e.Constraint
	}
	assert.Equal(t, map[string]models.ConstraintKind{
		"tax_id": models.ConstraintType,
		"name":   models.ConstraintLength,
		"email":  models.ConstraintType,
	}, fields)
}

func TestValidateEntity_ForeignKeys(t *testing.T) {
	known := uuid.New()
	missing := uuid.New()
	data := func(municipality uuid.UUID) map[string]any {
		return map[string]any{
			"municipality_id": municipality.String(),
			"fiscal_year":     2023,
			"category":        "Cultura",
			"department":      "Dideco",
		}
	}

	t.Run("existing reference", func(t *testing.T) {
		refs := &fakeReferences{known: map[uuid.UUID]bool{known: true}}
		res, err := newTestEngine(refs).ValidateEntity(context.Background(), models.EntityTypeBudget, data(known), Context{})
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Equal(t, 1, refs.calls)
	})

	t.Run("missing reference", func(t *testing.T) {
		refs := &fakeReferences{known: map[uuid.UUID]bool{}}
		res, err := newTestEngine(refs).ValidateEntity(context.Background(), models.EntityTypeBudget, data(missing), Context{})
		require.NoError(t, err)
		assert.False(t, res.Valid)
		require.Len(t, res.Errors, 1)
		assert.Equal(t, models.ConstraintForeignKey, res.Errors[0].Constraint)
	})

	t.Run("skipped", func(t *testing.T) {
		refs := &fakeReferences{known: map[uuid.UUID]bool{}}
		res, err := newTestEngine(refs).ValidateEntity(context.Background(), models.EntityTypeBudget, data(missing), Context{SkipForeignKeys: true})
		require.NoError(t, err)
		assert.True(t, res.Valid)
		assert.Zero(t, refs.calls)
	})

	t.Run("owner from context", func(t *testing.T) {
		refs := &fakeReferences{known: map[uuid.UUID]bool{}}
		record := data(known)
		delete(record, "municipality_id")
		res, err := newTestEngine(refs).ValidateEntity(context.Background(), models.EntityTypeBudget, record, Context{MunicipalityID: &missing})
		require.NoError(t, err)
		assert.False(t, res.Valid)
		assert.Equal(t, 1, refs.calls)
	})

	t.Run("lookup failure", func(t *testing.T) {
		refs := &fakeReferences{err: errors.New("connection reset")}
		_, err := newTestEngine(refs).ValidateEntity(context.Background(), models.EntityTypeBudget, data(known), Context{})
		assert.ErrorContains(t, err, "connection reset")
	})
}

func TestValidateEntity_UnsupportedType(t *testing.T) {
	_, err := newTestEngine(nil).ValidateEntity(context.Background(), models.EntityType("invoice"), map[string]any{}, Context{})
	assert.ErrorIs(t, err, ErrUnsupportedEntityType)
}

func TestValidateRecord(t *testing.T) {
	year := 2024
	amount := 990000.0
	record := &models.Budget{FiscalYear: &year, Category: "Deportes", Department: "Dideco", ApprovedAmount: &amount, Currency: "CLP"}

	res, err := newTestEngine(nil).ValidateRecord(context.Background(), record, Context{})
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestValidateBatch(t *testing.T) {
	records := []map[string]any{
		{"contract_number": "C-1", "title": "Servicio de aseo", "supplier_tax_id": "11111111-1", "amount": 100.0, "start_date": "2024-01-01"},
		{"contract_number": "C-2", "title": "Servicio de vigilancia"},
		{"contract_number": "C-3", "title": "Mantención de áreas verdes", "supplier_tax_id": "12345678-5", "amount": 50.0, "start_date": "2024-02-01", "status": "active"},
		{"contract_number": "C-4", "title": "Arriendo", "supplier_tax_id": "11111111-1", "amount": 10.0, "start_date": "2024-02-01", "status": "unknown"},
	}

	batch, err := newTestEngine(nil).ValidateBatch(context.Background(), models.EntityTypeContract, records, Context{})
	require.NoError(t, err)

	require.Len(t, batch.Valid, 2)
	assert.Equal(t, "C-1", batch.Valid[0]["contract_number"])
	assert.Equal(t, "C-3", batch.Valid[1]["contract_number"])

	require.Len(t, batch.Invalid, 2)
	assert.Equal(t, 2, batch.Invalid[0].Position)
	assert.Len(t, batch.Invalid[0].Errors, 3)
	assert.Equal(t, 4, batch.Invalid[1].Position)
	assert.Equal(t, models.ConstraintEnum, batch.Invalid[1].Errors[0].Constraint)
}
