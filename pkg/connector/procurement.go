package connector

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/transform"
)

// Field names used by public procurement registries (Mercado Público style),
// after nested objects are flattened.
var procurementAliases = map[string]string{
	"codigo":                "contract_number",
	"codigo_contrato":       "contract_number",
	"nombre":                "title",
	"estado":                "status",
	"proveedor_rut":         "supplier_tax_id",
	"proveedor_rutsucursal": "supplier_tax_id",
	"proveedor_nombre":      "supplier_name",
	"total":                 "amount",
	"monto_total":           "amount",
	"tipo_moneda":           "currency",
	"fechas_fechainicio":    "start_date",
	"fechas_fechatermino":   "end_date",
	"fecha_inicio":          "start_date",
	"fecha_termino":         "end_date",
}

// ProcurementConnector syncs contracts from a procurement registry.
type ProcurementConnector struct {
	*source
}

func NewProcurementConnector(client *Client) *ProcurementConnector {
	s := settings{cfg: client.config}
	return &ProcurementConnector{source: &source{
		client:        client,
		entityType:    models.EntityTypeContract,
		endpoint:      s.str("endpoint", "/contratos"),
		health:        s.str("health_endpoint", "/estado"),
		recordsPath:   s.str("records_path", "Listado"),
		totalPath:     s.str("total_path", "Cantidad"),
		style:         pageStyleNumber,
		firstPage:     1,
		pageParam:     s.str("page_param", "pagina"),
		sizeParam:     s.str("size_param", "cantidad"),
		dateFromParam: s.str("date_from_param", "fechaDesde"),
		dateToParam:   s.str("date_to_param", "fechaHasta"),
		dateLayout:    s.str("date_layout", "02-01-2006"),
		params:        s.params("params"),
		flatten:       true,
		transformCfg: &transform.Config{
			Aliases:    mergeAliases(procurementAliases, s.aliases()),
			Separators: s.separators(transform.Separators{Thousands: ".", Decimal: ","}),
		},
	}}
}

func (c *ProcurementConnector) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	return c.fetch(ctx, req)
}
