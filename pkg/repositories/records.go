package repositories

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/models"
)

const (
	suppliersTable    = "suppliers"
	budgetsTable      = "budgets"
	expendituresTable = "expenditures"
	projectsTable     = "projects"
	contractsTable    = "contracts"
)

var entityTables = map[models.EntityType]string{
	models.EntityTypeSupplier:    suppliersTable,
	models.EntityTypeBudget:      budgetsTable,
	models.EntityTypeExpenditure: expendituresTable,
	models.EntityTypeProject:     projectsTable,
	models.EntityTypeContract:    contractsTable,
}

func tableFor(entityType models.EntityType) (string, error) {
	table, ok := entityTables[entityType]
	if !ok {
		return "", fmt.Errorf("no table for entity type %q", entityType)
	}
	return table, nil
}

type column struct {
	name  string
	value any
	// lookup columns keep their stored value on update when the incoming one is unset
	lookup bool
}

func (c column) unset() bool {
	id, ok := c.value.(*uuid.UUID)
	return ok && (id == nil || *id == uuid.Nil)
}

// columnsFor lists the persisted columns of a record, excluding id and timestamps.
func columnsFor(record models.Record) ([]column, error) {
	switch rec := record.(type) {
	case *models.Supplier:
		return []column{
			{name: "tax_id", value: rec.TaxID},
			{name: "name", value: rec.Name},
			{name: "email", value: rec.Email},
			{name: "phone", value: rec.Phone},
			{name: "address", value: rec.Address},
			{name: "category", value: rec.Category},
		}, nil
	case *models.Budget:
		return []column{
			{name: "municipality_id", value: rec.MunicipalityID},
			{name: "fiscal_year_id", value: rec.FiscalYearID, lookup: true},
			{name: "fiscal_year", value: rec.FiscalYear},
			{name: "category", value: rec.Category},
			{name: "department", value: rec.Department},
			{name: "program", value: rec.Program},
			{name: "approved_amount", value: rec.ApprovedAmount},
			{name: "executed_amount", value: rec.ExecutedAmount},
			{name: "currency", value: rec.Currency},
			{name: "description", value: rec.Description},
			{name: "funding_source_id", value: rec.FundingSourceID, lookup: true},
		}, nil
	case *models.Expenditure:
		return []column{
			{name: "municipality_id", value: rec.MunicipalityID},
			{name: "fiscal_year_id", value: rec.FiscalYearID, lookup: true},
			{name: "fiscal_year", value: rec.FiscalYear},
			{name: "date", value: rec.Date},
			{name: "concept", value: rec.Concept},
			{name: "category", value: rec.Category},
			{name: "department", value: rec.Department},
			{name: "amount", value: rec.Amount},
			{name: "currency", value: rec.Currency},
			{name: "supplier_id", value: rec.SupplierID, lookup: true},
			{name: "document_number", value: rec.DocumentNumber},
		}, nil
	case *models.Project:
		return []column{
			{name: "municipality_id", value: rec.MunicipalityID},
			{name: "code", value: rec.Code},
			{name: "name", value: rec.Name},
			{name: "description", value: rec.Description},
			{name: "status", value: rec.Status},
			{name: "budget", value: rec.Budget},
			{name: "currency", value: rec.Currency},
			{name: "start_date", value: rec.StartDate},
			{name: "end_date", value: rec.EndDate},
			{name: "location", value: rec.Location},
			{name: "department", value: rec.Department},
			{name: "funding_source_id", value: rec.FundingSourceID, lookup: true},
		}, nil
	case *models.Contract:
		return []column{
			{name: "municipality_id", value: rec.MunicipalityID},
			{name: "contract_number", value: rec.ContractNumber},
			{name: "title", value: rec.Title},
			{name: "supplier_id", value: rec.SupplierID, lookup: true},
			{name: "supplier_tax_id", value: rec.SupplierTaxID},
			{name: "amount", value: rec.Amount},
			{name: "currency", value: rec.Currency},
			{name: "start_date", value: rec.StartDate},
			{name: "end_date", value: rec.EndDate},
			{name: "status", value: rec.Status},
		}, nil
	}
	return nil, fmt.Errorf("unsupported record type %T", record)
}

// supplierRef returns the supplier tax id a record points at when its supplier id is unresolved.
func supplierRef(record models.Record) (*string, func(uuid.UUID)) {
	switch rec := record.(type) {
	case *models.Expenditure:
		if rec.SupplierID == nil && rec.SupplierTaxID != nil && *rec.SupplierTaxID != "" {
			return rec.SupplierTaxID, func(id uuid.UUID) { rec.SupplierID = &id }
		}
	case *models.Contract:
		if rec.SupplierID == nil && rec.SupplierTaxID != nil && *rec.SupplierTaxID != "" {
			return rec.SupplierTaxID, func(id uuid.UUID) { rec.SupplierID = &id }
		}
	}
	return nil, nil
}
