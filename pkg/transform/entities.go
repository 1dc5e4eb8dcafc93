package transform

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Aliases shared by every entity. Keys are normalized field names.
var commonAliases = map[string]string{
	"ano":            "fiscal_year",
	"anio":           "fiscal_year",
	"year":           "fiscal_year",
	"ejercicio":      "fiscal_year",
	"ano_fiscal":     "fiscal_year",
	"categoria":      "category",
	"departamento":   "department",
	"area":           "department",
	"unidad":         "department",
	"moneda":         "currency",
	"descripcion":    "description",
	"fuente":         "funding_source",
	"financiamiento": "funding_source",
	"fecha_inicio":   "start_date",
	"fecha_termino":  "end_date",
	"fecha_fin":      "end_date",
	"estado":         "status",
	"proveedor":      "supplier_name",
	"rut_proveedor":  "supplier_tax_id",
}

var budgetAliases = merge(commonAliases, map[string]string{
	"programa":        "program",
	"monto":           "approved_amount",
	"amount":          "approved_amount",
	"presupuesto":     "approved_amount",
	"monto_aprobado":  "approved_amount",
	"monto_ejecutado": "executed_amount",
	"ejecutado":       "executed_amount",
})

var expenditureAliases = merge(commonAliases, map[string]string{
	"fecha":            "date",
	"concepto":         "concept",
	"glosa":            "concept",
	"description":      "concept",
	"monto":            "amount",
	"numero_documento": "document_number",
	"folio":            "document_number",
})

var projectAliases = merge(commonAliases, map[string]string{
	"codigo":      "code",
	"nombre":      "name",
	"presupuesto": "budget",
	"monto":       "budget",
	"amount":      "budget",
	"ubicacion":   "location",
})

var contractAliases = merge(commonAliases, map[string]string{
	"numero_contrato": "contract_number",
	"id_contrato":     "contract_number",
	"titulo":          "title",
	"nombre":          "title",
	"monto":           "amount",
})

var supplierAliases = map[string]string{
	"rut":          "tax_id",
	"razon_social": "name",
	"nombre":       "name",
	"correo":       "email",
	"telefono":     "phone",
	"direccion":    "address",
	"rubro":        "category",
	"categoria":    "category",
}

func merge(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func separators(cfg *Config) Separators {
	if cfg == nil {
		return DefaultSeparators
	}
	return cfg.Separators.withDefaults()
}

// TransformBudget maps one raw record onto a Budget.
func TransformBudget(raw map[string]any, cfg *Config) models.TransformationResult {
	r := newRecorder(remap(raw, budgetAliases, cfg), separators(cfg))
	b := &models.Budget{
		ID:             uuid.New(),
		FiscalYear:     r.integer("fiscal_year"),
		Category:       r.str("category"),
		Department:     r.str("department"),
		Program:        r.str("program"),
		ApprovedAmount: r.amount("approved_amount"),
		ExecutedAmount: r.amount("executed_amount"),
		Currency:       r.currency("currency"),
		Description:    r.optStr("description"),
		FundingSource:  r.optStr("funding_source"),
	}
	return models.TransformationResult{Record: b, Warnings: r.warnings}
}

// TransformExpenditure maps one raw record onto an Expenditure. A missing
// fiscal year is derived from the payment date.
func TransformExpenditure(raw map[string]any, cfg *Config) models.TransformationResult {
	r := newRecorder(remap(raw, expenditureAliases, cfg), separators(cfg))
	e := &models.Expenditure{
		ID:             uuid.New(),
		FiscalYear:     r.integer("fiscal_year"),
		Date:           r.date("date"),
		Concept:        r.str("concept"),
		Category:       r.optStr("category"),
		Department:     r.optStr("department"),
		Amount:         r.amount("amount"),
		Currency:       r.currency("currency"),
		SupplierName:   r.optStr("supplier_name"),
		SupplierTaxID:  r.taxID("supplier_tax_id"),
		DocumentNumber: r.optStr("document_number"),
	}
	if e.FiscalYear == nil && e.Date != nil {
		year := e.Date.Year()
		e.FiscalYear = &year
		r.warn("fiscal_year", nil, year, "derived from date")
	}
	return models.TransformationResult{Record: e, Warnings: r.warnings}
}

// TransformProject maps one raw record onto a Project.
func TransformProject(raw map[string]any, cfg *Config) models.TransformationResult {
	r := newRecorder(remap(raw, projectAliases, cfg), separators(cfg))
	p := &models.Project{
		ID:            uuid.New(),
		Code:          r.optStr("code"),
		Name:          r.str("name"),
		Description:   r.optStr("description"),
		Status:        r.status("status", ProjectStatuses),
		Budget:        r.amount("budget"),
		Currency:      r.currency("currency"),
		StartDate:     r.date("start_date"),
		EndDate:       r.date("end_date"),
		Location:      r.optStr("location"),
		Department:    r.optStr("department"),
		FundingSource: r.optStr("funding_source"),
	}
	return models.TransformationResult{Record: p, Warnings: r.warnings}
}

// TransformContract maps one raw record onto a Contract.
func TransformContract(raw map[string]any, cfg *Config) models.TransformationResult {
	r := newRecorder(remap(raw, contractAliases, cfg), separators(cfg))
	c := &models.Contract{
		ID:             uuid.New(),
		ContractNumber: r.str("contract_number"),
		Title:          r.str("title"),
		SupplierTaxID:  r.taxID("supplier_tax_id"),
		SupplierName:   r.optStr("supplier_name"),
		Amount:         r.amount("amount"),
		Currency:       r.currency("currency"),
		StartDate:      r.date("start_date"),
		EndDate:        r.date("end_date"),
		Status:         r.status("status", ContractStatuses),
	}
	return models.TransformationResult{Record: c, Warnings: r.warnings}
}

// TransformSupplier maps one raw record onto a Supplier.
func TransformSupplier(raw map[string]any, cfg *Config) models.TransformationResult {
	r := newRecorder(remap(raw, supplierAliases, cfg), separators(cfg))
	s := &models.Supplier{
		ID:       uuid.New(),
		TaxID:    r.taxID("tax_id"),
		Name:     r.str("name"),
		Email:    r.optStr("email"),
		Phone:    r.optStr("phone"),
		Address:  r.optStr("address"),
		Category: r.optStr("category"),
	}
	return models.TransformationResult{Record: s, Warnings: r.warnings}
}

// EntityFunc is the signature shared by the per-entity transforms.
type EntityFunc func(raw map[string]any, cfg *Config) models.TransformationResult

var entityFuncs = map[models.EntityType]EntityFunc{
	models.EntityTypeBudget:      TransformBudget,
	models.EntityTypeExpenditure: TransformExpenditure,
	models.EntityTypeProject:     TransformProject,
	models.EntityTypeContract:    TransformContract,
	models.EntityTypeSupplier:    TransformSupplier,
}

var entityAliases = map[models.EntityType]map[string]string{
	models.EntityTypeBudget:      budgetAliases,
	models.EntityTypeExpenditure: expenditureAliases,
	models.EntityTypeProject:     projectAliases,
	models.EntityTypeContract:    contractAliases,
	models.EntityTypeSupplier:    supplierAliases,
}

// Canonical returns raw under the canonical field names the entity's
// transform reads, without coercing any values.
func Canonical(entityType models.EntityType, raw map[string]any, cfg *Config) (map[string]any, error) {
	aliases, ok := entityAliases[entityType]
	if !ok {
		return nil, fmt.Errorf("no transformation for entity type %q", entityType)
	}
	return remap(raw, aliases, cfg), nil
}

// ForEntity returns the transform for an entity type.
func ForEntity(entityType models.EntityType) (EntityFunc, error) {
	fn, ok := entityFuncs[entityType]
	if !ok {
		return nil, fmt.Errorf("no transformation for entity type %q", entityType)
	}
	return fn, nil
}

// TransformBatch dispatches each record through the entity's transform and
// returns one result per record, in input order. Malformed fields never fail
// the batch; only an unknown entity type or invalid config does.
func TransformBatch(entityType models.EntityType, records []map[string]any, cfg *Config) ([]models.TransformationResult, error) {
	fn, err := ForEntity(entityType)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	results := make([]models.TransformationResult, 0, len(records))
	for _, raw := range records {
		results = append(results, fn(raw, cfg))
	}
	return results, nil
}
