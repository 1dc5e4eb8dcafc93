package connector

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/transform"
)

// Field names used by budget transparency feeds (DIPRES/SUBDERE style).
var budgetSourceAliases = map[string]string{
	"subtitulo":             "category",
	"item":                  "program",
	"asignacion":            "program",
	"unidad_ejecutora":      "department",
	"presupuesto_inicial":   "approved_amount",
	"presupuesto_vigente":   "approved_amount",
	"devengado":             "executed_amount",
	"gasto_devengado":       "executed_amount",
	"fuente_financiamiento": "funding_source",
}

// BudgetSourceConnector syncs budget lines from an offset-paged budget feed.
type BudgetSourceConnector struct {
	*source
	municipalityCode string
}

func NewBudgetSourceConnector(client *Client) *BudgetSourceConnector {
	s := settings{cfg: client.config}
	params := s.params("params")
	code := s.str("municipality_code", "")
	if code != "" {
		params["municipio"] = code
	}
	return &BudgetSourceConnector{
		municipalityCode: code,
		source: &source{
			client:        client,
			entityType:    models.EntityTypeBudget,
			endpoint:      s.str("endpoint", "/presupuesto"),
			health:        s.str("health_endpoint", "/health"),
			recordsPath:   s.str("records_path", "data"),
			totalPath:     s.str("total_path", "meta.total"),
			style:         pageStyleOffset,
			pageParam:     s.str("page_param", "offset"),
			sizeParam:     s.str("size_param", "limit"),
			dateFromParam: s.str("date_from_param", "desde"),
			dateToParam:   s.str("date_to_param", "hasta"),
			dateLayout:    s.str("date_layout", "2006-01-02"),
			params:        params,
			transformCfg: &transform.Config{
				Aliases:    mergeAliases(budgetSourceAliases, s.aliases()),
				Separators: s.separators(transform.Separators{Thousands: ".", Decimal: ","}),
			},
		},
	}
}

// FetchPage fetches one page and fills in the fiscal year from the request
// window when the feed leaves it implicit.
func (c *BudgetSourceConnector) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	page, err := c.fetch(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.DateFrom == nil {
		return page, nil
	}
	for _, record := range page.Records {
		fields, err := transform.Canonical(models.EntityTypeBudget, record, c.transformCfg)
		if err != nil {
			return nil, err
		}
		if _, ok := transform.ToString(fields["fiscal_year"]); ok {
			continue
		}
		record["fiscal_year"] = req.DateFrom.Year()
	}
	return page, nil
}
