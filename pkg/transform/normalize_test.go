package transform

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		name  string
		input string
		seps  Separators
		want  float64
	}{
		{"peso with dotted grouping", "$1.234.567", DefaultSeparators, 1234567},
		{"comma grouping with decimals", "1,234.56", DefaultSeparators, 1234.56},
		{"plain number", "4500", DefaultSeparators, 4500},
		{"clp token", "CLP 12,000", DefaultSeparators, 12000},
		{"uf token", "UF 1,500.25", DefaultSeparators, 1500.25},
		{"us dollar symbol", "US$ 99.90", DefaultSeparators, 99.9},
		{"negative", "-1,000", DefaultSeparators, -1000},
		{"european separators", "1.234,56", Separators{Thousands: ".", Decimal: ","}, 1234.56},
		{"zero value separators use defaults", "2,000.5", Separators{}, 2000.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _, err := ParseAmount(tt.input, tt.seps)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}

	t.Run("garbage is NaN", func(t *testing.T) {
		got, _, err := ParseAmount("twelve", DefaultSeparators)
		assert.Error(t, err)
		assert.True(t, math.IsNaN(got))
	})
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantISO bool
	}{
		{"2024-03-15", "2024-03-15", true},
		{"2024-03-15T10:30:00Z", "2024-03-15", true},
		{"15/03/2024", "2024-03-15", false},
		{"5-1-2023", "2023-01-05", false},
		{"15.03.2024", "2024-03-15", false},
		{"15/03/24", "2024-03-15", false},
		{"01/01/49", "2049-01-01", false},
		{"01/01/50", "1950-01-01", false},
		{"31/12/99", "1999-12-31", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, iso, err := ParseDate(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Format(isoDateLayout))
			assert.Equal(t, tt.wantISO, iso)
		})
	}

	for _, bad := range []string{"31/02/2024", "2024/13/01", "yesterday", "13/13/13", ""} {
		t.Run("rejects "+bad, func(t *testing.T) {
			_, _, err := ParseDate(bad)
			assert.Error(t, err)
		})
	}
}

func TestParseDate_ISOIsIdempotent(t *testing.T) {
	first, iso, err := ParseDate("2023-07-09T08:00:00-04:00")
	require.NoError(t, err)
	assert.True(t, iso)

	second, iso, err := ParseDate(first.Format(time.RFC3339Nano))
	require.NoError(t, err)
	assert.True(t, iso)
	assert.True(t, first.Equal(second))
}

func TestParseInteger(t *testing.T) {
	n, stripped, err := ParseInteger("2,024")
	require.NoError(t, err)
	assert.Equal(t, 2024, n)
	assert.Equal(t, "2024", stripped)

	n, _, err = ParseInteger("-15")
	require.NoError(t, err)
	assert.Equal(t, -15, n)

	_, _, err = ParseInteger("n/a")
	assert.Error(t, err)
}

func TestNormalizeCurrencyCode(t *testing.T) {
	tests := []struct {
		input     string
		want      string
		wantKnown bool
	}{
		{"", "CLP", true},
		{"CLP", "CLP", true},
		{"Pesos", "CLP", true},
		{"peso chileno", "CLP", true},
		{"UF", "CLF", true},
		{"Unidad de Fomento", "CLF", true},
		{"dólar", "USD", true},
		{"US$", "USD", true},
		{"Euros", "EUR", true},
		{"gbp", "GBP", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, known := NormalizeCurrencyCode(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantKnown, known)
		})
	}
}

func TestNormalizeTaxID(t *testing.T) {
	assert.Equal(t, "12345678-5", NormalizeTaxID("12.345.678-5"))
	assert.Equal(t, "7654321-K", NormalizeTaxID("7.654.321-k"))
	assert.Equal(t, "11111111-1", NormalizeTaxID("111111111"))
	assert.Equal(t, "", NormalizeTaxID(""))
}

func TestFold(t *testing.T) {
	assert.Equal(t, "en ejecucion", Fold("  En_Ejecución "))
	assert.Equal(t, "fiscal_year", NormalizeFieldName("Fiscal  Year"))
	assert.Equal(t, "ano_fiscal", NormalizeFieldName("Año-Fiscal"))
	assert.Equal(t, "a b", CollapseString("  a \t  b "))
}

func TestStatusVocabulary(t *testing.T) {
	tests := []struct {
		input     string
		want      string
		wantKnown bool
	}{
		{"", "planned", true},
		{"In Progress", "in_progress", true},
		{"in-progress", "in_progress", true},
		{"active", "in_progress", true},
		{"En curso", "in_progress", true},
		{"EN EJECUCIÓN", "in_progress", true},
		{"Terminado", "completed", true},
		{"in_progress", "in_progress", true},
		{"exploding", "exploding", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, known := ProjectStatuses.Normalize(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantKnown, known)
		})
	}

	got, _ := ContractStatuses.Normalize("")
	assert.Equal(t, "pending", got)
	got, _ = ContractStatuses.Normalize("Vigente")
	assert.Equal(t, "active", got)
	assert.True(t, ContractStatuses.Contains("terminated"))
	assert.False(t, ContractStatuses.Contains("vigente"))
}
