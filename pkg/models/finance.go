package models

import (
	"time"

	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// Municipality is the owner of budgets, expenditures, projects and contracts.
type Municipality struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Code      *string   `db:"code" json:"code,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// FiscalYear is created on demand by bulk uploads.
type FiscalYear struct {
	ID             uuid.UUID `db:"id" json:"id"`
	MunicipalityID uuid.UUID `db:"municipality_id" json:"municipality_id"`
	Year           int       `db:"year" json:"year"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// FundingSource is created on demand by bulk uploads.
type FundingSource struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Supplier is keyed by its tax id.
type Supplier struct {
	ID        uuid.UUID `db:"id" json:"id"`
	TaxID     *string   `db:"tax_id" json:"tax_id,omitempty"`
	Name      string    `db:"name" json:"name"`
	Email     *string   `db:"email" json:"email,omitempty"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	Address   *string   `db:"address" json:"address,omitempty"`
	Category  *string   `db:"category" json:"category,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (s *Supplier) EntityType() EntityType { return EntityTypeSupplier }

func (s *Supplier) NaturalKey() NaturalKey {
	return NaturalKey{{Column: "tax_id", Value: s.TaxID}}
}

func (s *Supplier) SetOwner(uuid.UUID) {}

func (s *Supplier) Fields() map[string]any {
	f := map[string]any{}
	putString(f, "tax_id", s.TaxID)
	putValue(f, "name", s.Name)
	putString(f, "email", s.Email)
	putString(f, "phone", s.Phone)
	putString(f, "address", s.Address)
	putString(f, "category", s.Category)
	return f
}

// Budget is one budget line, keyed by municipality, fiscal year, category, department and program.
type Budget struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	MunicipalityID  *uuid.UUID `db:"municipality_id" json:"municipality_id,omitempty"`
	FiscalYearID    *uuid.UUID `db:"fiscal_year_id" json:"fiscal_year_id,omitempty"`
	FiscalYear      *int       `db:"fiscal_year" json:"fiscal_year"`
	Category        string     `db:"category" json:"category"`
	Department      string     `db:"department" json:"department"`
	Program         string     `db:"program" json:"program"`
	ApprovedAmount  *float64   `db:"approved_amount" json:"approved_amount"`
	ExecutedAmount  *float64   `db:"executed_amount" json:"executed_amount,omitempty"`
	Currency        string     `db:"currency" json:"currency"`
	Description     *string    `db:"description" json:"description,omitempty"`
	FundingSourceID *uuid.UUID `db:"funding_source_id" json:"funding_source_id,omitempty"`
	FundingSource   *string    `db:"-" json:"funding_source,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

func (b *Budget) EntityType() EntityType { return EntityTypeBudget }

func (b *Budget) NaturalKey() NaturalKey {
	return NaturalKey{
		{Column: "municipality_id", Value: b.MunicipalityID},
		{Column: "fiscal_year", Value: b.FiscalYear},
		{Column: "category", Value: b.Category},
		{Column: "department", Value: b.Department},
		{Column: "program", Value: b.Program},
	}
}

func (b *Budget) SetOwner(id uuid.UUID) { b.MunicipalityID = &id }

func (b *Budget) Fields() map[string]any {
	f := map[string]any{}
	putUUID(f, "municipality_id", b.MunicipalityID)
	putInt(f, "fiscal_year", b.FiscalYear)
	putValue(f, "category", b.Category)
	putValue(f, "department", b.Department)
	putValue(f, "program", b.Program)
	putFloat(f, "approved_amount", b.ApprovedAmount)
	putFloat(f, "executed_amount", b.ExecutedAmount)
	putValue(f, "currency", b.Currency)
	putString(f, "description", b.Description)
	putString(f, "funding_source", b.FundingSource)
	return f
}

// Expenditure is one recorded payment.
type Expenditure struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	MunicipalityID *uuid.UUID `db:"municipality_id" json:"municipality_id,omitempty"`
	FiscalYearID   *uuid.UUID `db:"fiscal_year_id" json:"fiscal_year_id,omitempty"`
	FiscalYear     *int       `db:"fiscal_year" json:"fiscal_year"`
	Date           *time.Time `db:"date" json:"date"`
	Concept        string     `db:"concept" json:"concept"`
	Category       *string    `db:"category" json:"category,omitempty"`
	Department     *string    `db:"department" json:"department,omitempty"`
	Amount         *float64   `db:"amount" json:"amount"`
	Currency       string     `db:"currency" json:"currency"`
	SupplierID     *uuid.UUID `db:"supplier_id" json:"supplier_id,omitempty"`
	SupplierName   *string    `db:"-" json:"supplier_name,omitempty"`
	SupplierTaxID  *string    `db:"-" json:"supplier_tax_id,omitempty"`
	DocumentNumber *string    `db:"document_number" json:"document_number,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

func (e *Expenditure) EntityType() EntityType { return EntityTypeExpenditure }

func (e *Expenditure) NaturalKey() NaturalKey {
	if e.DocumentNumber == nil || *e.DocumentNumber == "" {
		return nil
	}
	return NaturalKey{
		{Column: "municipality_id", Value: e.MunicipalityID},
		{Column: "document_number", Value: e.DocumentNumber},
	}
}

func (e *Expenditure) SetOwner(id uuid.UUID) { e.MunicipalityID = &id }

func (e *Expenditure) Fields() map[string]any {
	f := map[string]any{}
	putUUID(f, "municipality_id", e.MunicipalityID)
	putInt(f, "fiscal_year", e.FiscalYear)
	putDate(f, "date", e.Date)
	putValue(f, "concept", e.Concept)
	putString(f, "category", e.Category)
	putString(f, "department", e.Department)
	putFloat(f, "amount", e.Amount)
	putValue(f, "currency", e.Currency)
	putUUID(f, "supplier_id", e.SupplierID)
	putString(f, "supplier_name", e.SupplierName)
	putString(f, "supplier_tax_id", e.SupplierTaxID)
	putString(f, "document_number", e.DocumentNumber)
	return f
}

// Project is a public works or social program.
type Project struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	MunicipalityID  *uuid.UUID `db:"municipality_id" json:"municipality_id,omitempty"`
	Code            *string    `db:"code" json:"code,omitempty"`
	Name            string     `db:"name" json:"name"`
	Description     *string    `db:"description" json:"description,omitempty"`
	Status          string     `db:"status" json:"status"`
	Budget          *float64   `db:"budget" json:"budget"`
	Currency        string     `db:"currency" json:"currency"`
	StartDate       *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate         *time.Time `db:"end_date" json:"end_date,omitempty"`
	Location        *string    `db:"location" json:"location,omitempty"`
	Department      *string    `db:"department" json:"department,omitempty"`
	FundingSourceID *uuid.UUID `db:"funding_source_id" json:"funding_source_id,omitempty"`
	FundingSource   *string    `db:"-" json:"funding_source,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updated_at"`
}

func (p *Project) EntityType() EntityType { return EntityTypeProject }

func (p *Project) NaturalKey() NaturalKey {
	if p.Code != nil && *p.Code != "" {
		return NaturalKey{
			{Column: "municipality_id", Value: p.MunicipalityID},
			{Column: "code", Value: p.Code},
		}
	}
	return NaturalKey{
		{Column: "municipality_id", Value: p.MunicipalityID},
		{Column: "name", Value: p.Name},
	}
}

func (p *Project) SetOwner(id uuid.UUID) { p.MunicipalityID = &id }

func (p *Project) Fields() map[string]any {
	f := map[string]any{}
	putUUID(f, "municipality_id", p.MunicipalityID)
	putString(f, "code", p.Code)
	putValue(f, "name", p.Name)
	putString(f, "description", p.Description)
	putValue(f, "status", p.Status)
	putFloat(f, "budget", p.Budget)
	putValue(f, "currency", p.Currency)
	putDate(f, "start_date", p.StartDate)
	putDate(f, "end_date", p.EndDate)
	putString(f, "location", p.Location)
	putString(f, "department", p.Department)
	putString(f, "funding_source", p.FundingSource)
	return f
}

// Contract is keyed by its contract number.
type Contract struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	MunicipalityID *uuid.UUID `db:"municipality_id" json:"municipality_id,omitempty"`
	ContractNumber string     `db:"contract_number" json:"contract_number"`
	Title          string     `db:"title" json:"title"`
	SupplierID     *uuid.UUID `db:"supplier_id" json:"supplier_id,omitempty"`
	SupplierTaxID  *string    `db:"supplier_tax_id" json:"supplier_tax_id,omitempty"`
	SupplierName   *string    `db:"-" json:"supplier_name,omitempty"`
	Amount         *float64   `db:"amount" json:"amount"`
	Currency       string     `db:"currency" json:"currency"`
	StartDate      *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate        *time.Time `db:"end_date" json:"end_date,omitempty"`
	Status         string     `db:"status" json:"status"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

func (c *Contract) EntityType() EntityType { return EntityTypeContract }

func (c *Contract) NaturalKey() NaturalKey {
	return NaturalKey{{Column: "contract_number", Value: c.ContractNumber}}
}

func (c *Contract) SetOwner(id uuid.UUID) { c.MunicipalityID = &id }

func (c *Contract) Fields() map[string]any {
	f := map[string]any{}
	putUUID(f, "municipality_id", c.MunicipalityID)
	putValue(f, "contract_number", c.ContractNumber)
	putValue(f, "title", c.Title)
	putUUID(f, "supplier_id", c.SupplierID)
	putString(f, "supplier_tax_id", c.SupplierTaxID)
	putString(f, "supplier_name", c.SupplierName)
	putFloat(f, "amount", c.Amount)
	putValue(f, "currency", c.Currency)
	putDate(f, "start_date", c.StartDate)
	putDate(f, "end_date", c.EndDate)
	putValue(f, "status", c.Status)
	return f
}

func putValue(f map[string]any, key string, v string) {
	if v != "" {
		f[key] = v
	}
}

func putString(f map[string]any, key string, v *string) {
	if v != nil && *v != "" {
		f[key] = *v
	}
}

func putInt(f map[string]any, key string, v *int) {
	if v != nil {
		f[key] = *v
	}
}

func putFloat(f map[string]any, key string, v *float64) {
	if v != nil {
		f[key] = *v
	}
}

func putUUID(f map[string]any, key string, v *uuid.UUID) {
	if v != nil && *v != uuid.Nil {
		f[key] = v.String()
	}
}

func putDate(f map[string]any, key string, v *time.Time) {
	if v != nil {
		f[key] = v.Format(dateLayout)
	}
}
