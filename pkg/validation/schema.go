package validation

import (
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/transform"
)

// FieldType is the declared type a field value must be coercible to.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeInteger FieldType = "integer"
	TypeDecimal FieldType = "decimal"
	TypeDate    FieldType = "date"
	TypeEmail   FieldType = "email"
	TypeTaxID   FieldType = "tax_id"
	TypeUUID    FieldType = "uuid"
)

// Reference names the entity a foreign key points at.
type Reference string

const (
	RefMunicipality Reference = "municipality"
	RefSupplier     Reference = "supplier"
)

const (
	// MaxAmount is the ceiling above which an amount is treated as garbage.
	MaxAmount = 1e15

	MinFiscalYear = 2000
	MaxFiscalYear = 2100
	MinDateYear   = 1990
	MaxDateYear   = 2100
)

// FieldRule declares the checks applied to one field.
type FieldRule struct {
	Name      string
	Type      FieldType
	Required  bool
	Min       *float64
	Max       *float64
	MinLength int
	MaxLength int
	Enum      []string
	// AllowZero lets a decimal be zero. Decimals are otherwise strictly positive.
	AllowZero  bool
	ForeignKey Reference
}

// DateOrder requires End to be on or after Start when both are present.
type DateOrder struct {
	Start string
	End   string
}

// Schema is the ordered rule set for one entity type.
type Schema struct {
	EntityType models.EntityType
	Fields     []FieldRule
	DateOrders []DateOrder
}

// Required lists the names of the required fields in declaration order.
func (s Schema) Required() []string {
	var names []string
	for _, f := range s.Fields {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

func bound(v float64) *float64 { return &v }

var currencyCodes = []string{"CLP", "CLF", "USD", "EUR"}

var supplierSchema = Schema{
	EntityType: models.EntityTypeSupplier,
	Fields: []FieldRule{
		{Name: "tax_id", Type: TypeTaxID, Required: true},
		{Name: "name", Type: TypeString, Required: true, MinLength: 2, MaxLength: 255},
		{Name: "email", Type: TypeEmail},
		{Name: "phone", Type: TypeString, MinLength: 6, MaxLength: 30},
		{Name: "address", Type: TypeString, MaxLength: 500},
		{Name: "category", Type: TypeString, MaxLength: 255},
	},
}

var budgetSchema = Schema{
	EntityType: models.EntityTypeBudget,
	Fields: []FieldRule{
		{Name: "municipality_id", Type: TypeUUID, ForeignKey: RefMunicipality},
		{Name: "fiscal_year", Type: TypeInteger, Required: true, Min: bound(MinFiscalYear), Max: bound(MaxFiscalYear)},
		{Name: "category", Type: TypeString, Required: true, MaxLength: 255},
		{Name: "department", Type: TypeString, Required: true, MaxLength: 255},
		{Name: "program", Type: TypeString, MaxLength: 255},
		{Name: "approved_amount", Type: TypeDecimal, AllowZero: true},
		{Name: "executed_amount", Type: TypeDecimal, AllowZero: true},
		{Name: "currency", Type: TypeString, Enum: currencyCodes},
		{Name: "description", Type: TypeString, MaxLength: 2000},
		{Name: "funding_source", Type: TypeString, MaxLength: 255},
	},
}

var expenditureSchema = Schema{
	EntityType: models.EntityTypeExpenditure,
	Fields: []FieldRule{
		{Name: "municipality_id", Type: TypeUUID, ForeignKey: RefMunicipality},
		{Name: "fiscal_year", Type: TypeInteger, Required: true, Min: bound(MinFiscalYear), Max: bound(MaxFiscalYear)},
		{Name: "date", Type: TypeDate, Required: true},
		{Name: "concept", Type: TypeString, Required: true, MinLength: 1, MaxLength: 500},
		{Name: "category", Type: TypeString, MaxLength: 255},
		{Name: "department", Type: TypeString, MaxLength: 255},
		{Name: "amount", Type: TypeDecimal, Required: true},
		{Name: "currency", Type: TypeString, Enum: currencyCodes},
		{Name: "supplier_id", Type: TypeUUID, ForeignKey: RefSupplier},
		{Name: "supplier_name", Type: TypeString, MaxLength: 255},
		{Name: "supplier_tax_id", Type: TypeTaxID},
		{Name: "document_number", Type: TypeString, MaxLength: 100},
	},
}

var projectSchema = Schema{
	EntityType: models.EntityTypeProject,
	Fields: []FieldRule{
		{Name: "municipality_id", Type: TypeUUID, ForeignKey: RefMunicipality},
		{Name: "code", Type: TypeString, MaxLength: 100},
		{Name: "name", Type: TypeString, Required: true, MinLength: 3, MaxLength: 255},
		{Name: "description", Type: TypeString, MaxLength: 2000},
		{Name: "status", Type: TypeString, Enum: transform.ProjectStatuses.Allowed},
		{Name: "budget", Type: TypeDecimal, Required: true},
		{Name: "currency", Type: TypeString, Enum: currencyCodes},
		{Name: "start_date", Type: TypeDate},
		{Name: "end_date", Type: TypeDate},
		{Name: "location", Type: TypeString, MaxLength: 255},
		{Name: "department", Type: TypeString, MaxLength: 255},
		{Name: "funding_source", Type: TypeString, MaxLength: 255},
	},
	DateOrders: []DateOrder{{Start: "start_date", End: "end_date"}},
}

var contractSchema = Schema{
	EntityType: models.EntityTypeContract,
	Fields: []FieldRule{
		{Name: "municipality_id", Type: TypeUUID, ForeignKey: RefMunicipality},
		{Name: "contract_number", Type: TypeString, Required: true, MaxLength: 100},
		{Name: "title", Type: TypeString, Required: true, MinLength: 3, MaxLength: 500},
		{Name: "supplier_id", Type: TypeUUID, ForeignKey: RefSupplier},
		{Name: "supplier_tax_id", Type: TypeTaxID, Required: true},
		{Name: "supplier_name", Type: TypeString, MaxLength: 255},
		{Name: "amount", Type: TypeDecimal, Required: true},
		{Name: "currency", Type: TypeString, Enum: currencyCodes},
		{Name: "start_date", Type: TypeDate, Required: true},
		{Name: "end_date", Type: TypeDate},
		{Name: "status", Type: TypeString, Enum: transform.ContractStatuses.Allowed},
	},
	DateOrders: []DateOrder{{Start: "start_date", End: "end_date"}},
}

// Schemas holds the rule set of every entity type.
var Schemas = map[models.EntityType]Schema{
	models.EntityTypeSupplier:    supplierSchema,
	models.EntityTypeBudget:      budgetSchema,
	models.EntityTypeExpenditure: expenditureSchema,
	models.EntityTypeProject:     projectSchema,
	models.EntityTypeContract:    contractSchema,
}
