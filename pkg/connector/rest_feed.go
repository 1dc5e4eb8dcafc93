package connector

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/transform"
)

// RestFeedConnector is a generic JSON feed described entirely by settings:
// endpoint, entity_type, records_path, total_path, pagination (page|offset|none).
type RestFeedConnector struct {
	*source
}

func NewRestFeedConnector(client *Client) (*RestFeedConnector, error) {
	s := settings{cfg: client.config}

	endpoint := s.str("endpoint", "")
	if endpoint == "" {
		return nil, fmt.Errorf("%w: endpoint", ErrMissingSetting)
	}
	entityType, err := models.ParseEntityType(s.str("entity_type", ""))
	if err != nil {
		return nil, fmt.Errorf("%w: entity_type: %v", ErrMissingSetting, err)
	}

	style := pageStyle(s.str("pagination", string(pageStyleNumber)))
	switch style {
	case pageStyleNumber, pageStyleOffset, pageStyleNone:
	default:
		return nil, fmt.Errorf("unsupported pagination %q", style)
	}

	pageParam, sizeParam := "page", "per_page"
	if style == pageStyleOffset {
		pageParam, sizeParam = "offset", "limit"
	}

	return &RestFeedConnector{source: &source{
		client:        client,
		entityType:    entityType,
		endpoint:      endpoint,
		health:        s.str("health_endpoint", endpoint),
		recordsPath:   s.str("records_path", ""),
		totalPath:     s.str("total_path", ""),
		style:         style,
		firstPage:     s.integer("first_page", 1),
		pageParam:     s.str("page_param", pageParam),
		sizeParam:     s.str("size_param", sizeParam),
		dateFromParam: s.str("date_from_param", "date_from"),
		dateToParam:   s.str("date_to_param", "date_to"),
		dateLayout:    s.str("date_layout", "2006-01-02"),
		params:        s.params("params"),
		flatten:       s.str("flatten", "false") == "true",
		transformCfg: &transform.Config{
			Aliases:    s.aliases(),
			Separators: s.separators(transform.DefaultSeparators),
		},
	}}, nil
}

func (c *RestFeedConnector) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	return c.fetch(ctx, req)
}
